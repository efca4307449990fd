// README: Firebase ID-token auth middleware; exposes caller identity to handlers.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"opsconsole/internal/infra"
)

const (
	ctxUID     = "caller_uid"
	ctxRole    = "caller_role"
	ctxName    = "caller_name"
	ctxPicture = "caller_picture"
)

const RoleAdmin = "admin"

// Auth verifies the "Authorization: Bearer <id token>" header and stores the
// caller's uid, role, name and picture claims in the gin context.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header is required"})
			return
		}
		idToken, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(idToken) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bearer token is required"})
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), strings.TrimSpace(idToken))
		if err != nil || token == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization token"})
			return
		}

		c.Set(ctxUID, token.UID)
		c.Set(ctxRole, claim(token.Claims, "role"))
		c.Set(ctxName, claim(token.Claims, "name"))
		c.Set(ctxPicture, claim(token.Claims, "picture"))
		c.Next()
	}
}

// DevAuth marks every request as coming from a local admin. Only wired when
// token verification is disabled.
func DevAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ctxUID, "dev")
		c.Set(ctxRole, RoleAdmin)
		c.Set(ctxName, "Developer")
		c.Next()
	}
}

// RequireRole rejects callers whose role claim is not one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := CallerRole(c)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}

func CallerUID(c *gin.Context) string     { return c.GetString(ctxUID) }
func CallerRole(c *gin.Context) string    { return c.GetString(ctxRole) }
func CallerName(c *gin.Context) string    { return c.GetString(ctxName) }
func CallerPicture(c *gin.Context) string { return c.GetString(ctxPicture) }

func claim(claims map[string]interface{}, key string) string {
	v, _ := claims[key].(string)
	return v
}
