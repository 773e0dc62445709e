package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ErlanBelekov/identity-service/internal/domain"
	"github.com/gin-gonic/gin"
)

// UserKey holds the *domain.User resolved by LoadUser.
const UserKey = "user"

const errLoginFirst = "Login first to access this endpoint."

const defaultLookupTimeout = 5 * time.Second

// UserFinder is satisfied by every repository.UserRepository.
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
}

// LoadUser runs after Auth. It resolves the token subject to a stored user so
// a token that outlived its account is refused. The lookup is bounded by
// timeout (5s when zero); a store that does not answer in time yields 503.
func LoadUser(users UserFinder, logger *slog.Logger, timeout time.Duration) gin.HandlerFunc {
	if timeout <= 0 {
		timeout = defaultLookupTimeout
	}
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		user, err := users.FindByID(ctx, c.GetString(UserIDKey))
		cancel()
		if err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				abortUnauthorized(c, errLoginFirst)
				return
			}
			logger.ErrorContext(c.Request.Context(), "load user", "error", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"status":  http.StatusServiceUnavailable,
				"success": false,
				"message": "Service temporarily unavailable",
			})
			return
		}
		c.Set(UserKey, user)
		c.Next()
	}
}
