package authserver

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stonefire/cloudsync/internal/syncerr"
)

const stateTTL = 10 * time.Minute

type Handler struct {
	auth   Authorizer
	mu     sync.Mutex
	states map[string]time.Time
	now    func() time.Time
}

func NewHandler(auth Authorizer) *Handler {
	return &Handler{
		auth:   auth,
		states: make(map[string]time.Time),
		now:    time.Now,
	}
}

// Grant redirects the operator to the vendor consent page.
func (h *Handler) Grant(ctx *gin.Context) {
	state := uuid.NewString()

	h.mu.Lock()
	h.expire()
	h.states[state] = h.now().Add(stateTTL)
	h.mu.Unlock()

	ctx.Redirect(http.StatusFound, h.auth.AuthCodeURL(state))
}

// Code receives the authorization code and exchanges it for the first credential set.
func (h *Handler) Code(ctx *gin.Context) {
	if e := ctx.Query("error"); e != "" {
		slog.Warn("authorization denied", "error", e, "description", ctx.Query("error_description"))
		ctx.String(http.StatusBadRequest, "Authorization denied: %s", e)
		return
	}

	code := ctx.Query("code")
	if code == "" {
		ctx.String(http.StatusBadRequest, "missing code")
		return
	}

	if !h.consume(ctx.Query("state")) {
		ctx.String(http.StatusBadRequest, "unknown or expired state, start again at /grant")
		return
	}

	if _, err := h.auth.Exchange(ctx.Request.Context(), code); err != nil {
		slog.Error("authorization code exchange failed", "kind", syncerr.KindOf(err), "error", err)
		status := http.StatusBadGateway
		if syncerr.Is(err, syncerr.KindAuthRejected) {
			status = http.StatusBadRequest
		}
		ctx.String(status, "Authorization failed: %v", err)
		return
	}

	ctx.String(http.StatusOK, "Access granted!")
}

func (h *Handler) consume(state string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.expire()

	if _, ok := h.states[state]; !ok {
		return false
	}
	delete(h.states, state)
	return true
}

// expire must be called with mu held.
func (h *Handler) expire() {
	now := h.now()
	for s, exp := range h.states {
		if now.After(exp) {
			delete(h.states, s)
		}
	}
}
