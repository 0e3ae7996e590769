package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/ai-integration-platform/models"
	"github.com/upb/ai-integration-platform/repositories/memory"
	"github.com/upb/ai-integration-platform/services/audit"
)

func auditFixture(t *testing.T) *AuditHandler {
	t.Helper()
	ctx := context.Background()
	repo := memory.NewRepositories().RouteAudits
	for i, user := range []string{"alice", "alice", "alice", "bob"} {
		a := models.NewRouteAudit(fmt.Sprintf("req-%d", i+1), user, "text-generation").
			WithResult("a", true, models.Dollars(0.01)).
			WithAttempts([]models.AttemptRecord{{Provider: "a", Outcome: models.OutcomeSuccess}})
		require.NoError(t, repo.Insert(ctx, a))
	}
	return NewAuditHandler(audit.NewService(repo, zap.NewNop(), audit.DefaultConfig()), zap.NewNop())
}

// serveAudit routes through chi so URL params resolve
func serveAudit(handler *AuditHandler, target, user string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Get("/api/v1/routes", handler.HandleList)
	r.Get("/api/v1/routes/{requestID}", handler.HandleGet)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, spendRequest(target, user))
	return w
}

func TestAuditHandler_HandleList(t *testing.T) {
	handler := auditFixture(t)

	t.Run("pages newest first", func(t *testing.T) {
		w := serveAudit(handler, "/api/v1/routes?limit=2", "alice")
		require.Equal(t, http.StatusOK, w.Code)

		data := decodeData(t, w)
		routes, ok := data["routes"].([]interface{})
		require.True(t, ok)
		require.Len(t, routes, 2)
		assert.Equal(t, "req-3", routes[0].(map[string]interface{})["request_id"])
		assert.Equal(t, float64(2), data["limit"])

		w = serveAudit(handler, "/api/v1/routes?limit=2&offset=2", "alice")
		routes = decodeData(t, w)["routes"].([]interface{})
		require.Len(t, routes, 1)
		assert.Equal(t, "req-1", routes[0].(map[string]interface{})["request_id"])
	})

	t.Run("user with no routes gets an empty list", func(t *testing.T) {
		w := serveAudit(handler, "/api/v1/routes", "carol")
		require.Equal(t, http.StatusOK, w.Code)
		routes, ok := decodeData(t, w)["routes"].([]interface{})
		require.True(t, ok)
		assert.Empty(t, routes)
	})

	tests := []struct {
		name   string
		target string
	}{
		{"zero limit", "/api/v1/routes?limit=0"},
		{"limit too large", "/api/v1/routes?limit=1000"},
		{"non-numeric limit", "/api/v1/routes?limit=ten"},
		{"negative offset", "/api/v1/routes?offset=-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveAudit(handler, tt.target, "alice")
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	t.Run("missing identity", func(t *testing.T) {
		w := serveAudit(handler, "/api/v1/routes", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAuditHandler_HandleGet(t *testing.T) {
	handler := auditFixture(t)

	t.Run("own audit", func(t *testing.T) {
		w := serveAudit(handler, "/api/v1/routes/req-2", "alice")
		require.Equal(t, http.StatusOK, w.Code)

		data := decodeData(t, w)
		assert.Equal(t, "req-2", data["request_id"])
		assert.Equal(t, "a", data["provider_used"])
	})

	t.Run("other user's audit is not found", func(t *testing.T) {
		w := serveAudit(handler, "/api/v1/routes/req-4", "alice")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("unknown request", func(t *testing.T) {
		w := serveAudit(handler, "/api/v1/routes/missing", "alice")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
