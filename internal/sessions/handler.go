package sessions

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/script-narration/backend/internal/review"
	"github.com/script-narration/backend/pkg/response"
)

// Handler serves read-only session endpoints. All mutation happens over the
// WebSocket relay; these exist for join pages and operational visibility.
type Handler struct {
	registry  *Registry
	trendStep time.Duration
}

// NewHandler creates a session handler.
func NewHandler(registry *Registry, trendStep time.Duration) *Handler {
	return &Handler{registry: registry, trendStep: trendStep}
}

// List returns all live sessions.
// GET /sessions
func (h *Handler) List(c *gin.Context) {
	response.OK(c, h.registry.List())
}

// GetByID returns one session, so a join page can show its name before the
// listener connects.
// GET /sessions/:id
func (h *Handler) GetByID(c *gin.Context) {
	s, ok := h.registry.Get(c.Param("id"))
	if !ok {
		response.NotFound(c, "session not found")
		return
	}
	response.OK(c, gin.H{
		"id":            s.ID,
		"name":          s.Name,
		"state":         s.State,
		"listenerCount": len(s.Listeners),
	})
}

// Listeners returns the full listener set of a session.
// GET /sessions/:id/listeners
func (h *Handler) Listeners(c *gin.Context) {
	s, ok := h.registry.Get(c.Param("id"))
	if !ok {
		response.NotFound(c, "session not found")
		return
	}
	response.OK(c, s.ListenerSnapshot())
}

// Trend returns the cross-listener average over the session's feedback log
// so far, on the fixed review-mode grid.
// GET /sessions/:id/trend
func (h *Handler) Trend(c *gin.Context) {
	if _, ok := h.registry.Get(c.Param("id")); !ok {
		response.NotFound(c, "session not found")
		return
	}
	log := h.registry.FeedbackLog(c.Param("id"))
	response.OK(c, review.AverageTrend(log, h.trendStep))
}
