package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lalith-99/huddle/internal/auth"
)

// Context keys for storing claims in gin.Context.
//
// Why string constants instead of inline strings?
//   - Typo protection. c.Get("usr_id") compiles fine and silently returns nil.
//   - Handlers and the rate limiter import these, so everyone agrees on the keys.
const (
	ContextKeyUserID = "user_id"
	ContextKeyEmail  = "email"
)

// TokenParser is the part of *auth.Issuer the middleware needs.
type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

// AuthMiddleware returns a Gin middleware that validates bearer tokens.
//
// How it works:
//   - Runs BEFORE the handler. On a bad token it calls c.Abort(), the
//     handler never runs and the client gets a 401.
//   - On success it stores the claims with c.Set() and calls c.Next().
//
// Browsers cannot set headers on a websocket handshake, so a "token" query
// parameter is accepted when the Authorization header is absent.
func AuthMiddleware(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing or malformed authorization, expected: Bearer <token>",
			})
			return
		}

		claims, err := tokens.Parse(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyEmail, claims.Email)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		token := c.Query("token")
		return token, token != ""
	}
	// Split "Bearer eyJhbG..." into ["Bearer", "eyJhbG..."]
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// ---------------------------------------------------------------
// Helper functions for handlers to extract claims from context.
//
// c.Get() returns (any, bool); these do the type assertion once. A missing
// key yields uuid.Nil, which matches no row.
// ---------------------------------------------------------------

func GetUserID(c *gin.Context) uuid.UUID {
	val, exists := c.Get(ContextKeyUserID)
	if !exists {
		return uuid.Nil
	}
	id, ok := val.(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return id
}

func GetEmail(c *gin.Context) string {
	val, exists := c.Get(ContextKeyEmail)
	if !exists {
		return ""
	}
	email, ok := val.(string)
	if !ok {
		return ""
	}
	return email
}
