package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const actorKey = "actor"

// UserAuth enforces bearer JWT tokens signed with HS256 and stores the
// resolved actor on the request context.
func UserAuth(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		actor, err := Parse(tokenStr, signingKey, issuer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// RequireRoles aborts with 403 unless the actor holds one of the roles.
func RequireRoles(roles ...Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no identity"})
			return
		}
		for _, r := range roles {
			if actor.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "role not permitted"})
	}
}

// ActorFrom returns the authenticated actor stored by UserAuth.
func ActorFrom(c *gin.Context) (Actor, bool) {
	val, ok := c.Get(actorKey)
	if !ok {
		return Actor{}, false
	}
	actor, ok := val.(Actor)
	return actor, ok
}
