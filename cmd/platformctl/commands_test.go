package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway records the last request and answers with a fixed envelope
type fakeGateway struct {
	status int
	body   string

	method string
	path   string
	query  string
	user   string
	auth   string
	sent   map[string]interface{}
}

func (g *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.method = r.Method
	g.path = r.URL.Path
	g.query = r.URL.RawQuery
	g.user = r.Header.Get("X-User-ID")
	g.auth = r.Header.Get("Authorization")
	if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
		_ = json.Unmarshal(raw, &g.sent)
	}

	w.Header().Set("Content-Type", "application/json")
	status := g.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, g.body)
}

func execute(t *testing.T, gw *fakeGateway, args ...string) (string, error) {
	t.Helper()
	ts := httptest.NewServer(gw)
	t.Cleanup(ts.Close)

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(append([]string{"--server", ts.URL}, args...))

	err := root.Execute()
	return buf.String(), err
}

func TestRootCommand_AllSubcommands(t *testing.T) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"--help"})

	require.NoError(t, root.Execute())

	output := buf.String()
	for _, sub := range []string{"health", "providers", "spend", "route"} {
		assert.Contains(t, output, sub)
	}
}

func TestHealthCommand(t *testing.T) {
	gw := &fakeGateway{body: `{"data":{
		"openai-gpt-4o-mini":{"status":"healthy","success_rate":0.95,"avg_latency_ms":420,"samples":20,"circuit_state":"closed"},
		"anthropic-claude-haiku":{"status":"unhealthy","success_rate":0.3,"avg_latency_ms":1200,"samples":10,"circuit_state":"open"}
	}}`}

	out, err := execute(t, gw, "health")
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/providers/health", gw.path)
	assert.Contains(t, out, "PROVIDER")
	assert.Contains(t, out, "95%")
	assert.Contains(t, out, "1200ms")
	assert.Contains(t, out, "open")
	// Rows are sorted by provider id
	assert.Less(t, bytes.Index([]byte(out), []byte("anthropic")), bytes.Index([]byte(out), []byte("openai")))
}

func TestProvidersCommand(t *testing.T) {
	gw := &fakeGateway{body: `{"data":[
		{"id":"stability-sdxl","vendor":"stability","model":"sdxl","capabilities":["image-generation"],
		 "pricing":{"per_request":0.04,"per_thousand_tokens":0,"per_unit":0},"enabled":false}
	]}`}

	t.Run("table", func(t *testing.T) {
		out, err := execute(t, gw, "providers")
		require.NoError(t, err)
		assert.Contains(t, out, "stability-sdxl")
		assert.Contains(t, out, "$0.04")
		assert.Contains(t, out, "image-generation")
		assert.Contains(t, out, "false")
	})

	t.Run("json", func(t *testing.T) {
		out, err := execute(t, gw, "providers", "--json")
		require.NoError(t, err)

		var decoded []map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(out), &decoded))
		require.Len(t, decoded, 1)
		assert.Equal(t, "stability-sdxl", decoded[0]["id"])
	})
}

func TestSpendCommand(t *testing.T) {
	gw := &fakeGateway{body: `{"data":{
		"user_id":"alice","date":"2026-03-14","spent":0.3,"daily_budget":1,"remaining":0.7,"unlimited":false,
		"records":[{"user_id":"alice","provider_id":"openai-gpt-4o-mini","amount":0.25,"request_id":"req-1","created_at":"2026-03-14T12:00:00Z"}]
	}}`}

	t.Run("requires user", func(t *testing.T) {
		t.Setenv("PLATFORM_USER", "")
		_, err := execute(t, gw, "spend")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--user")
	})

	t.Run("summary and records", func(t *testing.T) {
		out, err := execute(t, gw, "spend", "--user", "alice", "--date", "2026-03-14")
		require.NoError(t, err)

		assert.Equal(t, "alice", gw.user)
		assert.Equal(t, "date=2026-03-14", gw.query)
		assert.Contains(t, out, "Spent:      $0.3")
		assert.Contains(t, out, "Budget:     $1")
		assert.Contains(t, out, "Remaining:  $0.7")
		assert.Contains(t, out, "req-1")
	})
}

func TestRouteCommand(t *testing.T) {
	gw := &fakeGateway{body: `{"data":{"success":true,"provider_used":"openai-gpt-4o-mini","output":"bonjour",
		"cost_incurred":0.0012,"request_id":"req-9","deduplicated":false}}`}

	out, err := execute(t, gw,
		"--user", "alice", "--token", "tok",
		"route", "--capability", "translation", "--prompt", "hello",
		"--max-cost", "0.01", "--prefer", "openai-gpt-4o-mini", "--key", "k1")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gw.method)
	assert.Equal(t, "/api/v1/route", gw.path)
	assert.Equal(t, "Bearer tok", gw.auth)
	assert.Equal(t, "translation", gw.sent["capability"])
	assert.Equal(t, 0.01, gw.sent["max_cost"])
	assert.Equal(t, "openai-gpt-4o-mini", gw.sent["preferred_provider"])
	assert.Equal(t, "k1", gw.sent["idempotency_key"])

	assert.Contains(t, out, "req-9")
	assert.Contains(t, out, "$0.0012")
	assert.Contains(t, out, "bonjour")
}

func TestRouteCommand_Errors(t *testing.T) {
	t.Run("missing flags", func(t *testing.T) {
		_, err := execute(t, &fakeGateway{}, "route", "--prompt", "hello")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "capability")
	})

	t.Run("invalid max cost", func(t *testing.T) {
		_, err := execute(t, &fakeGateway{}, "route", "--capability", "text-generation", "--prompt", "hi", "--max-cost", "cheap")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--max-cost")
	})

	t.Run("api error", func(t *testing.T) {
		gw := &fakeGateway{
			status: http.StatusTooManyRequests,
			body:   `{"error":"budget_exceeded","message":"budget: daily budget exceeded"}`,
		}
		_, err := execute(t, gw, "--user", "alice", "route", "--capability", "text-generation", "--prompt", "hi")
		require.Error(t, err)

		var apiErr *apiError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
		assert.Equal(t, "budget_exceeded", apiErr.Code)
	})
}

func TestClient_ServerNotRunning(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	addr := ts.URL
	ts.Close()

	root := NewRootCmd()
	root.SetOut(new(bytes.Buffer))
	root.SetArgs([]string{"--server", addr, "health"})

	err := root.Execute()
	assert.ErrorIs(t, err, ErrServerNotRunning)
}
