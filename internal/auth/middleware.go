package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/abduss/clientdrop/internal/token"
	"github.com/gin-gonic/gin"
)

type contextKey string

const accountContextKey contextKey = "clientdropAccount"

// ContextAccount represents the authenticated account stored in the request context.
type ContextAccount struct {
	ID   int64
	Code string
	Name string
}

// AuthMiddleware validates bearer session tokens and injects the authenticated account.
func AuthMiddleware(service *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		tokenString := extractBearerToken(authHeader)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		claims, err := service.ValidateSession(tokenString)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, token.ErrExpiredCredential) {
				msg = "session expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		c.Set(string(accountContextKey), ContextAccount{
			ID:   claims.AccountID,
			Code: claims.Code,
			Name: claims.Name,
		})

		c.Next()
	}
}

// CurrentAccount extracts the authenticated account from the context.
func CurrentAccount(c *gin.Context) (ContextAccount, bool) {
	value, exists := c.Get(string(accountContextKey))
	if !exists {
		return ContextAccount{}, false
	}
	account, ok := value.(ContextAccount)
	return account, ok
}

// RequireAccount fetches the authenticated account id.
func RequireAccount(c *gin.Context) (int64, ContextAccount, bool) {
	account, ok := CurrentAccount(c)
	if !ok || account.ID <= 0 {
		return 0, ContextAccount{}, false
	}
	return account.ID, account, true
}

func extractBearerToken(header string) string {
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
