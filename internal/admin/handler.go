// Package admin serves the maintenance endpoints. Every request must carry
// the admin key in X-Admin-Key.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/auritra-bit/sunnie-bot-V2/internal/auth"
	"github.com/auritra-bit/sunnie-bot-V2/internal/store"
)

type Refresher interface {
	Refresh(ctx context.Context, t store.Table) error
}

type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Reconciler rebuilds a user's row from the ledger.
type Reconciler interface {
	Reconcile(ctx context.Context, userID string) (bool, error)
}

type Handler struct {
	key        *auth.AdminKey
	tokens     *auth.TokenVerifier
	cache      Refresher
	sweeper    Sweeper
	reconciler Reconciler
	logger     *zap.SugaredLogger
}

// NewHandler returns nil when no admin key is configured, which leaves the
// admin routes unmounted. tokens may be nil.
func NewHandler(key *auth.AdminKey, tokens *auth.TokenVerifier, cache Refresher, sweeper Sweeper, reconciler Reconciler, logger *zap.SugaredLogger) *Handler {
	if key == nil {
		return nil
	}
	return &Handler{key: key, tokens: tokens, cache: cache, sweeper: sweeper, reconciler: reconciler, logger: logger}
}

func (h *Handler) authorized(w http.ResponseWriter, r *http.Request) bool {
	if err := h.key.Check(r.Header.Get("X-Admin-Key")); err != nil {
		h.logger.Warnw("admin request rejected", "path", r.URL.Path, "remote", r.RemoteAddr)
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return false
	}
	return true
}

// Refresh reloads every table, or the one named by ?table=.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}
	tables := store.AllTables
	if name := r.URL.Query().Get("table"); name != "" {
		tables = []store.Table{store.Table(name)}
	}
	for _, t := range tables {
		if err := h.cache.Refresh(r.Context(), t); err != nil {
			h.logger.Warnw("admin refresh failed", "table", t, "err", err)
			h.writeJSON(w, statusFor(err), map[string]string{"error": err.Error(), "table": string(t)})
			return
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"refreshed": tables})
}

func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}
	n, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		h.logger.Warnw("admin sweep failed", "err", err)
		h.writeJSON(w, statusFor(err), map[string]any{"error": err.Error(), "deleted": n})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

// Reconcile rebuilds ?user='s projection from the ledger.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}
	userID := r.URL.Query().Get("user")
	if userID == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user is required"})
		return
	}
	changed, err := h.reconciler.Reconcile(r.Context(), userID)
	if err != nil {
		h.writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"changed": changed})
}

// Token issues a transport token for ?sub= valid for ?ttl= (a Go duration).
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}
	if h.tokens == nil {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "token auth disabled"})
		return
	}
	q := r.URL.Query()
	sub := q.Get("sub")
	if sub == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "sub is required"})
		return
	}
	var ttl time.Duration
	if v := q.Get("ttl"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ttl"})
			return
		}
		ttl = d
	}
	tok, err := h.tokens.Issue(sub, ttl)
	if err != nil {
		h.logger.Errorw("issue token failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "issue failed"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"access_token": tok, "token_type": "Bearer"})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrUnknownTable):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrStoreRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, store.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Debugw("write response failed", "err", err)
	}
}
