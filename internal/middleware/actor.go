package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/scopegrant/internal/auditctx"
)

// Headers the upstream authentication layer sets on forwarded requests. The
// engine trusts them for attribution only, never for authorization decisions.
const (
	ActorTypeHeader = "X-Actor-Type"
	ActorIDHeader   = "X-Actor-Id"
)

// Actor lifts the acting principal from the forwarded headers into the request
// context so mutations can attribute grants to the caller when the payload does
// not name a granter explicitly.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorType := c.GetHeader(ActorTypeHeader)
		actorID := c.GetHeader(ActorIDHeader)
		if actorType != "" && actorID != "" {
			ctx := auditctx.WithActor(c.Request.Context(), auditctx.Actor{
				PrincipalType: actorType,
				PrincipalID:   actorID,
				IPAddress:     c.ClientIP(),
				UserAgent:     c.Request.UserAgent(),
			})
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}
