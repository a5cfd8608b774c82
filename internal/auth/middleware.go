package auth

import (
	"errors"
	"log/slog"
	"net/http"

	dom "tasktracker/internal/domain"

	"github.com/gin-gonic/gin"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "session_id"

const contextKeyActor = "actor"

// ActorFromContext returns the actor set by RequireSession.
func ActorFromContext(c *gin.Context) (dom.Actor, bool) {
	v, ok := c.Get(contextKeyActor)
	if !ok {
		return dom.Actor{}, false
	}
	a, ok := v.(dom.Actor)
	return a, ok
}

// RequireSession returns a middleware that resolves the session cookie
// to an actor and puts it in the context. Missing or invalid sessions
// get 401 before any handler runs.
func RequireSession(sessions *Store, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, err := c.Cookie(SessionCookieName)
		if err != nil || sessionID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		actor, err := sessions.Actor(c.Request.Context(), sessionID)
		if errors.Is(err, ErrNoSession) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		if err != nil {
			log.ErrorContext(c.Request.Context(), "session lookup failed", "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session lookup failed"})
			return
		}
		c.Set(contextKeyActor, actor)
		c.Next()
	}
}
