package audit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wardenhq/warden/internal/auth"
	"github.com/wardenhq/warden/internal/hierarchy"
)

// Handler exposes read access to the audit trail.
type Handler struct {
	sink Sink
}

// NewHandler creates a new audit handler.
func NewHandler(sink Sink) *Handler {
	return &Handler{sink: sink}
}

// RegisterRoutes sets up audit routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/audit/events", h.ListEvents)
}

// ListEvents handles GET /v1/audit/events
func (h *Handler) ListEvents(c *gin.Context) {
	actor, ok := auth.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "admin identity required",
		})
		return
	}
	if !hierarchy.HasPermission(actor.Role, hierarchy.PermAuditView) {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "audit access requires the top role",
		})
		return
	}

	f := Filter{
		ActorID:   c.Query("actorId"),
		TargetID:  c.Query("targetId"),
		EventType: EventType(c.Query("eventType")),
	}
	if v := c.Query("limit"); v != "" {
		f.Limit, _ = strconv.Atoi(v)
	}
	if v := c.Query("from"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "from must be RFC3339",
			})
			return
		}
		f.From = ts
	}
	if v := c.Query("to"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "to must be RFC3339",
			})
			return
		}
		f.To = ts
	}

	events, err := h.sink.Query(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "failed to query audit trail",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
