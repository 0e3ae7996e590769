package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// dbChecker pings a database the way the postgres store does
type dbChecker struct{ db *sql.DB }

func (c dbChecker) Ready(ctx context.Context) error { return c.db.PingContext(ctx) }

type providerCount int

func (c providerCount) Count() int { return int(c) }

func decodeHealth(t *testing.T, w *httptest.ResponseRecorder) HealthResponse {
	t.Helper()
	var response struct {
		Data HealthResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	return response.Data
}

func TestHandleHealth(t *testing.T) {
	handler := NewHealthHandler(nil, nil, zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeHealth(t, w)
	assert.Equal(t, "healthy", data.Status)
	assert.NotEmpty(t, data.Timestamp)
}

func TestHandleReadiness(t *testing.T) {
	logger := zap.NewNop()

	t.Run("ready when database answers ping", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectPing()

		handler := NewHealthHandler(dbChecker{db}, providerCount(3), logger)
		w := httptest.NewRecorder()
		handler.HandleReadiness(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		data := decodeHealth(t, w)
		assert.Equal(t, "ready", data.Status)
		assert.Equal(t, "healthy", data.Checks["store"])
		assert.Equal(t, "configured", data.Checks["providers"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not ready when ping fails", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		handler := NewHealthHandler(dbChecker{db}, providerCount(3), logger)
		w := httptest.NewRecorder()
		handler.HandleReadiness(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		data := decodeHealth(t, w)
		assert.Equal(t, "not_ready", data.Status)
		assert.Equal(t, "unhealthy", data.Checks["store"])
	})

	t.Run("memory store without providers", func(t *testing.T) {
		handler := NewHealthHandler(nil, providerCount(0), logger)
		w := httptest.NewRecorder()
		handler.HandleReadiness(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		data := decodeHealth(t, w)
		assert.Equal(t, "memory", data.Checks["store"])
		assert.Equal(t, "none_configured", data.Checks["providers"])
	})
}
