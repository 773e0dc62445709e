package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ErlanBelekov/identity-service/internal/transport/http/handler"
	"github.com/ErlanBelekov/identity-service/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"

	sloggin "github.com/samber/slog-gin"
)

// Deps carries everything the router wires into its routes.
type Deps struct {
	Logger         *slog.Logger
	AuthHandler    *handler.AuthHandler
	ProductHandler *handler.ProductHandler
	Verifier       middleware.TokenVerifier
	Users          middleware.UserFinder
	// CallTimeout bounds the user lookup done for every protected request.
	CallTimeout time.Duration
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.CustomRecovery(func(c *gin.Context, rec any) {
		d.Logger.ErrorContext(c.Request.Context(), "panic recovered",
			"panic", rec, "method", c.Request.Method, "path", c.Request.URL.Path)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"status":  http.StatusInternalServerError,
			"success": false,
			"message": "Something went wrong",
		})
	}))
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.NewWithConfig(d.Logger, sloggin.Config{
		WithRequestID: false,
		Filters:       []sloggin.Filter{sloggin.IgnorePath("/favicon.ico")},
	}))
	r.Use(middleware.Metrics())

	v1 := r.Group("/api/v1")

	auth := v1.Group("/auth")
	auth.POST("/signup", d.AuthHandler.SignUp)
	auth.POST("/verify", d.AuthHandler.Verify)
	auth.POST("/login", d.AuthHandler.Login)
	auth.POST("/forgotpassword", d.AuthHandler.ForgotPassword)
	auth.POST("/resetpassword", d.AuthHandler.ResetPassword)

	// Protected product routes
	products := v1.Group("/product", middleware.Auth(d.Verifier), middleware.LoadUser(d.Users, d.Logger, d.CallTimeout))
	products.GET("/all", d.ProductHandler.List)
	products.POST("/create", d.ProductHandler.Create)
	products.GET("/:id", d.ProductHandler.GetByID)
	products.PUT("/:id", d.ProductHandler.Update)
	products.DELETE("/:id", d.ProductHandler.Delete)

	return r
}
