// internal/api/handler.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"copilot-metrics-service/internal/aggregate"
	"copilot-metrics-service/internal/auth"
	apperrors "copilot-metrics-service/internal/errors"
	gh "copilot-metrics-service/internal/github"
	"copilot-metrics-service/internal/model"
	"copilot-metrics-service/internal/store"
)

const (
	sessionCookie = "session_id"
	stateCookie   = "oauth_state"
)

// ClientFactory builds an API client for one credential. Injected so tests
// can point clients at a fake upstream.
type ClientFactory func(token string) *gh.Client

// Handler is the container for API dependencies.
type Handler struct {
	logger    *slog.Logger
	sessions  *auth.Sessions
	oauth     *auth.OAuth
	usage     store.UsageStore
	agg       *aggregate.Service
	newClient ClientFactory
}

// NewRouter creates and configures a new chi router with all API routes.
func NewRouter(logger *slog.Logger, sessions *auth.Sessions, oauth *auth.OAuth, usage store.UsageStore, agg *aggregate.Service, newClient ClientFactory) http.Handler {
	h := &Handler{
		logger:    logger,
		sessions:  sessions,
		oauth:     oauth,
		usage:     usage,
		agg:       agg,
		newClient: newClient,
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger) // Chi's default logger
	r.Use(middleware.Recoverer)

	r.Get("/health", h.healthCheck)

	r.Get("/auth/github", h.authRedirect)
	r.Get("/auth/callback", h.authCallback)
	r.Get("/auth/logout", h.logout)

	r.Get("/api/auth/status", h.authStatus)
	r.Group(func(r chi.Router) {
		r.Use(h.requireSession)
		r.Get("/api/user", h.getUser)
		r.Get("/api/repos", h.getRepos)
		r.Get("/api/activity", h.getActivity)
		r.Get("/api/orgs", h.getOrgs)
		r.Get("/api/full", h.getFullData)
		r.Get("/api/copilot/org/{org}", h.getOrgCopilotBilling)
		r.Get("/api/copilot/usage", h.getUsage)
		r.Post("/api/copilot/usage", h.saveUsage)
	})

	return r
}

type ctxKey int

const sessionKey ctxKey = iota

// requireSession rejects requests without a valid session before any core
// code runs, and stashes the session in the request context.
func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := h.currentSession(r)
		if !ok {
			respondWithError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey, sess)))
	})
}

func sessionFrom(ctx context.Context) *auth.Session {
	return ctx.Value(sessionKey).(*auth.Session)
}

func (h *Handler) currentSession(r *http.Request) (*auth.Session, bool) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil, false
	}
	return h.sessions.Get(cookie.Value)
}

// healthCheck is a simple health endpoint.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// authRedirect initiates the OAuth handshake.
// GET /auth/github
func (h *Handler) authRedirect(w http.ResponseWriter, r *http.Request) {
	state, err := auth.RandomID()
	if err != nil {
		h.logger.Error("Failed to generate OAuth state", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
	})
	http.Redirect(w, r, h.oauth.AuthCodeURL(state), http.StatusFound)
}

// authCallback finishes the OAuth handshake: validates state, exchanges the
// code, resolves the authenticated identity, and creates a session.
// GET /auth/callback
func (h *Handler) authCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Redirect(w, r, "/?error=no_code", http.StatusFound)
		return
	}
	stateC, err := r.Cookie(stateCookie)
	if err != nil || stateC.Value == "" || stateC.Value != r.URL.Query().Get("state") {
		http.Redirect(w, r, "/?error=state_mismatch", http.StatusFound)
		return
	}

	token, err := h.oauth.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("OAuth token exchange failed", "error", err)
		http.Redirect(w, r, "/?error=auth_failed", http.StatusFound)
		return
	}

	client := h.newClient(token)
	user, err := client.User(r.Context())
	if err != nil {
		h.logger.Error("Failed to fetch authenticated user", "error", err)
		http.Redirect(w, r, "/?error=auth_failed", http.StatusFound)
		return
	}
	rawUser, err := json.Marshal(user)
	if err != nil {
		http.Redirect(w, r, "/?error=auth_failed", http.StatusFound)
		return
	}

	identity := model.Identity{Login: user.GetLogin(), Email: user.GetEmail()}
	sid, err := h.sessions.Create(token, identity, rawUser)
	if err != nil {
		h.logger.Error("Failed to create session", "error", err)
		http.Redirect(w, r, "/?error=auth_failed", http.StatusFound)
		return
	}
	h.logger.Info("User authenticated", "login", identity.Login)

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
	})
	http.Redirect(w, r, "/", http.StatusFound)
}

// logout destroys the session.
// GET /auth/logout
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		h.sessions.Delete(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	http.Redirect(w, r, "/", http.StatusFound)
}

// authStatus reports whether the caller holds a valid session.
// GET /api/auth/status
func (h *Handler) authStatus(w http.ResponseWriter, r *http.Request) {
	if sess, ok := h.currentSession(r); ok {
		respondWithJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"user":          json.RawMessage(sess.User),
		})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"authenticated": false})
}

// getUser proxies the authenticated user's profile.
// GET /api/user
func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	client := h.newClient(sess.Token)

	var user json.RawMessage
	if err := client.Get(r.Context(), "user", &user); err != nil {
		h.logger.Error("Failed to fetch user", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch user data")
		return
	}
	respondWithJSON(w, http.StatusOK, user)
}

// getRepos returns one page of the user's most recently updated repositories.
// GET /api/repos
func (h *Handler) getRepos(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	client := h.newClient(sess.Token)

	repos, err := client.RecentRepositories(r.Context(), 20)
	if err != nil {
		h.logger.Error("Failed to fetch repos", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch repos")
		return
	}
	respondWithJSON(w, http.StatusOK, repos)
}

// getActivity runs the activity aggregation pipeline.
// GET /api/activity
func (h *Handler) getActivity(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	client := h.newClient(sess.Token)

	metrics, err := h.agg.Activity(r.Context(), client, sess.Identity)
	if err != nil {
		h.logger.Error("Activity fetch failed", "login", sess.Identity.Login, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch activity data")
		return
	}
	respondWithJSON(w, http.StatusOK, metrics)
}

// getOrgs returns the user's organizations.
// GET /api/orgs
func (h *Handler) getOrgs(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	client := h.newClient(sess.Token)

	orgs, err := client.Organizations(r.Context())
	if err != nil {
		h.logger.Error("Failed to fetch organizations", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch organizations")
		return
	}
	respondWithJSON(w, http.StatusOK, orgs)
}

// getFullData runs the full aggregation pipeline.
// GET /api/full
func (h *Handler) getFullData(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	client := h.newClient(sess.Token)

	data, err := h.agg.FullData(r.Context(), client, sess.Identity)
	if err != nil {
		h.logger.Error("Full data fetch failed", "login", sess.Identity.Login, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch full GitHub data")
		return
	}
	respondWithJSON(w, http.StatusOK, data)
}

// getOrgCopilotBilling returns the Copilot billing summary for one
// organization, distinguishing not-found from forbidden upstream failures.
// GET /api/copilot/org/{org}
func (h *Handler) getOrgCopilotBilling(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	client := h.newClient(sess.Token)
	org := chi.URLParam(r, "org")

	billing, err := client.OrgCopilotBilling(r.Context(), org)
	if err != nil {
		var notFound *apperrors.NotFoundError
		var forbidden *apperrors.ForbiddenError
		switch {
		case errors.As(err, &notFound):
			respondWithError(w, http.StatusNotFound, "Organization not found or no Copilot access")
		case errors.As(err, &forbidden):
			respondWithError(w, http.StatusForbidden, "No permission to access Copilot data for this organization")
		default:
			h.logger.Error("Copilot billing fetch failed", "org", org, "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to fetch Copilot data")
		}
		return
	}
	respondWithJSON(w, http.StatusOK, billing)
}

// usageResponse is a UsageRecord plus the derived acceptance rate.
type usageResponse struct {
	model.UsageRecord
	AcceptanceRate string `json:"acceptanceRate"`
}

// getUsage returns the user's self-reported usage counters.
// GET /api/copilot/usage
func (h *Handler) getUsage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())

	rec, _, err := h.usage.Get(r.Context(), sess.Identity.Login)
	if err != nil {
		h.logger.Error("Failed to load usage record", "login", sess.Identity.Login, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	resp := usageResponse{UsageRecord: rec, AcceptanceRate: "0"}
	if total := rec.CompletionsAccepted + rec.CompletionsRejected; total > 0 {
		resp.AcceptanceRate = fmt.Sprintf("%.1f", float64(rec.CompletionsAccepted)/float64(total)*100)
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// saveUsage replaces the user's usage counters (last write wins).
// POST /api/copilot/usage
func (h *Handler) saveUsage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())

	var body struct {
		CompletionsAccepted int `json:"completionsAccepted"`
		CompletionsRejected int `json:"completionsRejected"`
		LinesGenerated      int `json:"linesGenerated"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	now := time.Now().UTC()
	rec := model.UsageRecord{
		CompletionsAccepted: body.CompletionsAccepted,
		CompletionsRejected: body.CompletionsRejected,
		LinesGenerated:      body.LinesGenerated,
		LastUpdated:         &now,
	}
	if err := h.usage.Put(r.Context(), sess.Identity.Login, rec); err != nil {
		h.logger.Error("Failed to save usage record", "login", sess.Identity.Login, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondWithJSON(w, http.StatusOK, rec)
}

// respondWithJSON writes a JSON response with the given status code.
func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Internal server error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(body)
}

// respondWithError writes a JSON error payload.
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
