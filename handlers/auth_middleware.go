package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tylerweaver-alt/compliance-dashboard-sub002/services"
)

type AuthMiddleware struct {
	Auth *services.AuthService
}

func NewAuthMiddleware(auth *services.AuthService) *AuthMiddleware {
	if auth.JWTSecret == "" {
		log.Println("⚠️  JWT_SECRET not set, authenticated routes will reject every request")
	}
	return &AuthMiddleware{Auth: auth}
}

// RequireAuth validates the bearer token and stores the acting user in the context
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := m.Auth.ExtractTokenFromHeader(c.GetHeader("Authorization"))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		claims, err := m.Auth.ValidateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token: " + err.Error()})
			c.Abort()
			return
		}

		c.Set("user_id", claims.Subject)
		c.Set("user_email", claims.Email)
		c.Set("user_role", claims.Role)

		c.Next()
	}
}
