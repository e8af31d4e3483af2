// Package auth resolves the acting admin for each request.
//
// Credential verification happens upstream: the perimeter gateway
// authenticates the session and forwards the admin identifier in a
// header. This package turns that identifier into a hierarchy.Actor by
// loading the live directory record, so role and activation state are
// always current rather than whatever the session was issued with.
package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wardenhq/warden/internal/directory"
	"github.com/wardenhq/warden/internal/hierarchy"
)

// Headers set by the upstream gateway.
const (
	HeaderAdminID   = "X-Admin-ID"
	HeaderDeviceID  = "X-Device-ID"
	HeaderRequestID = "X-Request-ID"
)

// ContextKeyActor is the gin context key holding the resolved actor.
const ContextKeyActor = "actor"

// Middleware resolves the forwarded admin identifier against the
// directory and stores the actor in the request context. Requests
// without the header pass through unresolved; RequireActor is the gate.
func Middleware(admins directory.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		adminID := c.GetHeader(HeaderAdminID)
		if adminID == "" {
			c.Next()
			return
		}

		a, err := admins.Get(c.Request.Context(), adminID)
		if err != nil {
			// Unknown admin: continue unresolved rather than failing
			// open with header-supplied claims.
			c.Next()
			return
		}

		c.Set(ContextKeyActor, hierarchy.Actor{
			AdminID:  a.AdminID,
			Role:     a.Role,
			IsActive: a.IsActive,
			DeviceID: c.GetHeader(HeaderDeviceID),
		})
		c.Next()
	}
}

// RequireActor rejects requests that did not resolve to an active admin.
func RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "admin identity required",
			})
			return
		}
		if !actor.IsActive {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "admin account is not active",
			})
			return
		}
		c.Next()
	}
}

// ActorFrom extracts the resolved actor from the gin context.
func ActorFrom(c *gin.Context) (hierarchy.Actor, bool) {
	v, exists := c.Get(ContextKeyActor)
	if !exists {
		return hierarchy.Actor{}, false
	}
	actor, ok := v.(hierarchy.Actor)
	return actor, ok
}
