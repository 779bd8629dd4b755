// internal/api/handler_test.go
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copilot-metrics-service/internal/aggregate"
	"copilot-metrics-service/internal/auth"
	gh "copilot-metrics-service/internal/github"
	"copilot-metrics-service/internal/model"
	"copilot-metrics-service/internal/store"
)

type testEnv struct {
	router   http.Handler
	sessions *auth.Sessions
}

// setupAPI builds a router whose clients talk to the given fake upstream.
func setupAPI(t *testing.T, upstream http.Handler) *testEnv {
	t.Helper()
	if upstream == nil {
		upstream = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
	}
	server := httptest.NewServer(upstream)
	t.Cleanup(server.Close)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	sessions := auth.NewSessions(time.Hour)
	oauth := auth.NewOAuth("client-id", "client-secret", "http://localhost:3000/auth/callback")
	newClient := func(token string) *gh.Client {
		c := gh.NewClient(token, logger)
		require.NoError(t, c.WithBaseURL(server.URL))
		c.SetPageDelay(0)
		return c
	}

	router := NewRouter(logger, sessions, oauth, store.NewMemoryStore(), aggregate.New(logger), newClient)
	return &testEnv{router: router, sessions: sessions}
}

// authedRequest creates a request carrying a fresh valid session.
func (e *testEnv) authedRequest(t *testing.T, method, target string, body *strings.Reader) *http.Request {
	t.Helper()
	sid, err := e.sessions.Create("test-token",
		model.Identity{Login: "smith", Email: "smith@example.com"},
		json.RawMessage(`{"login": "smith"}`))
	require.NoError(t, err)

	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, body)
	}
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: sid})
	return req
}

func TestHealthCheck(t *testing.T) {
	env := setupAPI(t, nil)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rec.Body.String())
}

func TestAuthRequired(t *testing.T) {
	env := setupAPI(t, nil)

	for _, target := range []string{
		"/api/user",
		"/api/repos",
		"/api/activity",
		"/api/orgs",
		"/api/full",
		"/api/copilot/org/acme",
		"/api/copilot/usage",
	} {
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)
		assert.JSONEq(t, `{"error": "Not authenticated"}`, rec.Body.String(), target)
	}
}

func TestAuthStatus(t *testing.T) {
	env := setupAPI(t, nil)

	t.Run("unauthenticated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/status", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"authenticated": false}`, rec.Body.String())
	})

	t.Run("authenticated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, env.authedRequest(t, http.MethodGet, "/api/auth/status", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"authenticated": true, "user": {"login": "smith"}}`, rec.Body.String())
	})
}

func TestUsageRoundTrip(t *testing.T) {
	env := setupAPI(t, nil)

	t.Run("empty record before any save", func(t *testing.T) {
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, env.authedRequest(t, http.MethodGet, "/api/copilot/usage", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.EqualValues(t, 0, body["completionsAccepted"])
		assert.Equal(t, "0", body["acceptanceRate"])
		assert.Nil(t, body["lastUpdated"])
	})

	t.Run("save then read back with acceptance rate", func(t *testing.T) {
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, env.authedRequest(t, http.MethodPost, "/api/copilot/usage",
			strings.NewReader(`{"completionsAccepted": 9, "completionsRejected": 2, "linesGenerated": 120}`)))
		require.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		env.router.ServeHTTP(rec, env.authedRequest(t, http.MethodGet, "/api/copilot/usage", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.EqualValues(t, 9, body["completionsAccepted"])
		assert.EqualValues(t, 2, body["completionsRejected"])
		assert.EqualValues(t, 120, body["linesGenerated"])
		assert.Equal(t, "81.8", body["acceptanceRate"])
		assert.NotNil(t, body["lastUpdated"])
	})

	t.Run("malformed body is rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, env.authedRequest(t, http.MethodPost, "/api/copilot/usage",
			strings.NewReader(`not json`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestOrgCopilotBilling_ErrorMapping(t *testing.T) {
	cases := []struct {
		name         string
		upstreamCode int
		wantCode     int
		wantMessage  string
	}{
		{"not found", http.StatusNotFound, http.StatusNotFound, "Organization not found or no Copilot access"},
		{"forbidden", http.StatusForbidden, http.StatusForbidden, "No permission to access Copilot data for this organization"},
		{"upstream failure", http.StatusBadGateway, http.StatusInternalServerError, "Failed to fetch Copilot data"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.upstreamCode)
				w.Write([]byte(`{"message": "nope"}`))
			})
			env := setupAPI(t, upstream)

			rec := httptest.NewRecorder()
			env.router.ServeHTTP(rec, env.authedRequest(t, http.MethodGet, "/api/copilot/org/acme", nil))

			assert.Equal(t, tc.wantCode, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.wantMessage, body["error"])
		})
	}
}

func TestGetActivity(t *testing.T) {
	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/user/repos") {
			w.Write([]byte(`[]`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	env := setupAPI(t, upstream)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, env.authedRequest(t, http.MethodGet, "/api/activity", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var metrics model.ActivityMetrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metrics))
	assert.Zero(t, metrics.TotalCommits)
	assert.NotNil(t, metrics.RecentRepos)
}

func TestAuthRedirect(t *testing.T) {
	env := setupAPI(t, nil)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/github", nil))

	require.Equal(t, http.StatusFound, rec.Code)
	location := rec.Header().Get("Location")
	assert.Contains(t, location, "github.com/login/oauth/authorize")
	assert.Contains(t, location, "client_id=client-id")
	assert.Contains(t, location, "state=")

	var stateSet bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == stateCookie && c.Value != "" {
			stateSet = true
		}
	}
	assert.True(t, stateSet, "state cookie should be set")
}

func TestAuthCallback_MissingCode(t *testing.T) {
	env := setupAPI(t, nil)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/callback", nil))

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/?error=no_code", rec.Header().Get("Location"))
}

func TestLogout(t *testing.T) {
	env := setupAPI(t, nil)
	req := env.authedRequest(t, http.MethodGet, "/auth/logout", nil)
	sid := req.Cookies()[0].Value

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	_, ok := env.sessions.Get(sid)
	assert.False(t, ok, "session should be destroyed")
}
