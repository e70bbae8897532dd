package authz

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireAction aborts with 403 unless the authenticated user's role allows
// the action. It expects RequireAuth to have set user_email and user_role.
func RequireAction(action Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		email := c.GetString("user_email")
		if email == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "User not authenticated",
			})
			return
		}

		role := ParseRole(c.GetString("user_role"))
		if !HasPermission(Permissions, role, action) {
			log.Printf("AUTHZ DENIED - User %s (role %q) cannot %s", email, c.GetString("user_role"), action)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Your role does not allow this operation",
			})
			return
		}

		c.Next()
	}
}
