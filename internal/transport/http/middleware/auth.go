package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ErlanBelekov/identity-service/internal/domain"
	ctxlog "github.com/ErlanBelekov/identity-service/internal/log"
	"github.com/gin-gonic/gin"
)

// UserIDKey is the gin context key under which Auth stores the token subject.
const UserIDKey = "userID"

const (
	errTokenNotFound = "Authorization token not found"
	errTokenExpired  = "Your token has expired. Please log in again to get a new token."
	errTokenInvalid  = "Invalid token. Please log in again to get a new token."
)

// TokenVerifier is satisfied by *usecase.AuthUsecase.
type TokenVerifier interface {
	VerifyToken(raw string) (string, error)
}

// Auth validates a Bearer JWT and sets UserIDKey in the gin context.
func Auth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortUnauthorized(c, errTokenNotFound)
			return
		}

		userID, err := verifier.VerifyToken(raw)
		if err != nil {
			if errors.Is(err, domain.ErrTokenExpired) {
				abortUnauthorized(c, errTokenExpired)
				return
			}
			abortUnauthorized(c, errTokenInvalid)
			return
		}

		c.Set(UserIDKey, userID)
		c.Request = c.Request.WithContext(ctxlog.WithUserID(c.Request.Context(), userID))
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"status":  http.StatusUnauthorized,
		"success": false,
		"message": msg,
	})
}
