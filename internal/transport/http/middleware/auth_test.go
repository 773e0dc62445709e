package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ErlanBelekov/identity-service/internal/domain"
	ctxlog "github.com/ErlanBelekov/identity-service/internal/log"
	"github.com/ErlanBelekov/identity-service/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeVerifier struct {
	verify func(raw string) (string, error)
}

func (f fakeVerifier) VerifyToken(raw string) (string, error) { return f.verify(raw) }

// newEngine builds a minimal gin engine with the Auth middleware protecting GET /protected.
// The handler writes the userID from the gin context and the request context
// so we can assert both were set.
func newEngine(v middleware.TokenVerifier) *gin.Engine {
	r := gin.New()
	r.GET("/protected", middleware.Auth(v), func(c *gin.Context) {
		c.String(http.StatusOK, "%s|%s", c.GetString(middleware.UserIDKey), ctxlog.UserIDFromContext(c.Request.Context()))
	})
	return r
}

func serve(r http.Handler, authHeader string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	r.ServeHTTP(w, req)
	return w
}

func message(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Status  int    `json:"status"`
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	if body.Success || body.Status != http.StatusUnauthorized {
		t.Errorf("envelope = %+v", body)
	}
	return body.Message
}

var neverCalled = fakeVerifier{verify: func(string) (string, error) {
	panic("verifier must not be called")
}}

func TestAuth_MissingHeader_Returns401(t *testing.T) {
	w := serve(newEngine(neverCalled), "")

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if got := message(t, w); got != "Authorization token not found" {
		t.Errorf("message = %q", got)
	}
}

func TestAuth_NonBearerScheme_Returns401(t *testing.T) {
	for _, h := range []string{"Basic dXNlcjpwYXNz", "Bearer", "Bearer   ", "bearer abc"} {
		w := serve(newEngine(neverCalled), h)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("%q: status = %d, want 401", h, w.Code)
		}
		if got := message(t, w); got != "Authorization token not found" {
			t.Errorf("%q: message = %q", h, got)
		}
	}
}

func TestAuth_ExpiredToken_Returns401WithExpiryMessage(t *testing.T) {
	v := fakeVerifier{verify: func(string) (string, error) {
		return "", domain.Unauthorized("Invalid or expired token", domain.ErrTokenExpired)
	}}
	w := serve(newEngine(v), "Bearer expired")

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if got := message(t, w); got != "Your token has expired. Please log in again to get a new token." {
		t.Errorf("message = %q", got)
	}
}

func TestAuth_InvalidToken_Returns401(t *testing.T) {
	v := fakeVerifier{verify: func(string) (string, error) {
		return "", domain.Unauthorized("Invalid or expired token", fmt.Errorf("%w: bad signature", domain.ErrTokenInvalid))
	}}
	w := serve(newEngine(v), "Bearer not.a.jwt")

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if got := message(t, w); got != "Invalid token. Please log in again to get a new token." {
		t.Errorf("message = %q", got)
	}
}

func TestAuth_ValidToken_PassesAndSetsUserID(t *testing.T) {
	const userID = "user-abc"
	v := fakeVerifier{verify: func(raw string) (string, error) {
		if raw != "good" {
			return "", errors.New("unexpected token")
		}
		return userID, nil
	}}
	w := serve(newEngine(v), "Bearer good")

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if got, want := w.Body.String(), userID+"|"+userID; got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
}

type fakeUsers struct {
	findByID func(ctx context.Context, id string) (*domain.User, error)
}

func (f fakeUsers) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return f.findByID(ctx, id)
}

func newLoadUserEngine(users middleware.UserFinder) *gin.Engine {
	return newLoadUserEngineWithTimeout(users, time.Second)
}

func newLoadUserEngineWithTimeout(users middleware.UserFinder, timeout time.Duration) *gin.Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := gin.New()
	r.GET("/protected", func(c *gin.Context) {
		c.Set(middleware.UserIDKey, "user-1")
	}, middleware.LoadUser(users, logger, timeout), func(c *gin.Context) {
		u := c.MustGet(middleware.UserKey).(*domain.User)
		c.String(http.StatusOK, u.Email)
	})
	return r
}

func TestLoadUser_MissingUser_Returns401(t *testing.T) {
	users := fakeUsers{findByID: func(_ context.Context, _ string) (*domain.User, error) {
		return nil, domain.ErrUserNotFound
	}}
	w := serve(newLoadUserEngine(users), "")

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if got := message(t, w); got != "Login first to access this endpoint." {
		t.Errorf("message = %q", got)
	}
}

func TestLoadUser_StoreError_Returns503(t *testing.T) {
	users := fakeUsers{findByID: func(_ context.Context, _ string) (*domain.User, error) {
		return nil, errors.New("db down")
	}}
	w := serve(newLoadUserEngine(users), "")

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestLoadUser_Found_SetsUser(t *testing.T) {
	users := fakeUsers{findByID: func(_ context.Context, id string) (*domain.User, error) {
		return &domain.User{ID: id, Email: "a@x.com"}, nil
	}}
	w := serve(newLoadUserEngine(users), "")

	if w.Code != http.StatusOK || w.Body.String() != "a@x.com" {
		t.Errorf("got %d %q", w.Code, w.Body.String())
	}
}

func TestLoadUser_StalledStore_Returns503AfterTimeout(t *testing.T) {
	users := fakeUsers{findByID: func(ctx context.Context, _ string) (*domain.User, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	r := newLoadUserEngineWithTimeout(users, 50*time.Millisecond)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- serve(r, "") }()

	select {
	case w := <-done:
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", w.Code)
		}
		var body struct {
			Success bool   `json:"success"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode %q: %v", w.Body.String(), err)
		}
		if body.Success || body.Message != "Service temporarily unavailable" {
			t.Errorf("envelope = %+v", body)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("LoadUser did not give up on a stalled store")
	}
}
