package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ErlanBelekov/identity-service/config"
	"github.com/ErlanBelekov/identity-service/internal/domain"
	"github.com/ErlanBelekov/identity-service/internal/email"
	"github.com/ErlanBelekov/identity-service/internal/health"
	"github.com/ErlanBelekov/identity-service/internal/infrastructure/memory"
	"github.com/ErlanBelekov/identity-service/internal/infrastructure/postgres"
	ctxlog "github.com/ErlanBelekov/identity-service/internal/log"
	"github.com/ErlanBelekov/identity-service/internal/metrics"
	"github.com/ErlanBelekov/identity-service/internal/otp"
	"github.com/ErlanBelekov/identity-service/internal/password"
	"github.com/ErlanBelekov/identity-service/internal/repository"
	"github.com/ErlanBelekov/identity-service/internal/scheduler"
	"github.com/ErlanBelekov/identity-service/internal/token"
	httptransport "github.com/ErlanBelekov/identity-service/internal/transport/http"
	"github.com/ErlanBelekov/identity-service/internal/transport/http/handler"
	"github.com/ErlanBelekov/identity-service/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

type stores struct {
	users    repository.UserRepository
	products repository.ProductRepository
	deps     []health.Dependency
	close    func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := ctxlog.New(os.Stdout, cfg.Env, cfg.SlogLevel())

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer st.close()

	signer, err := token.NewSigner([]byte(cfg.JWTSecret), domain.TokenTTL)
	if err != nil {
		stop()
		log.Fatalf("token signer: %v", err)
	}

	sender, err := email.NewSender(email.Config{
		Provider:     cfg.EmailProvider,
		From:         cfg.EmailFrom,
		ResendAPIKey: cfg.ResendAPIKey,
		SMTP: email.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
		},
	}, logger)
	if err != nil {
		stop()
		log.Fatalf("email: %v", err)
	}

	// Auth
	authUsecase := usecase.NewAuthUsecase(
		st.users,
		sender,
		password.NewHasher(cfg.BcryptCost),
		otp.NewGenerator(),
		signer,
		logger,
		usecase.AuthOptions{CallTimeout: cfg.CallTimeout},
	)
	authHandler := handler.NewAuthHandler(authUsecase, logger, cfg.ExposeSignupOTP)

	// Products
	productUsecase := usecase.NewProductUsecase(st.products, cfg.CallTimeout)
	productHandler := handler.NewProductHandler(productUsecase, logger)

	metrics.Register()
	checker := health.NewChecker(logger, prometheus.DefaultRegisterer, st.deps...)

	if cfg.SweepInProcess {
		sweeper, err := scheduler.NewOTPSweeper(st.users, logger, cfg.OTPSweepSchedule)
		if err != nil {
			stop()
			log.Fatalf("sweeper: %v", err)
		}
		go sweeper.Start(ctx)
	}

	srv := http.Server{
		Addr: ":" + cfg.Port,
		Handler: httptransport.NewRouter(httptransport.Deps{
			Logger:         logger,
			AuthHandler:    authHandler,
			ProductHandler: productHandler,
			Verifier:       authUsecase,
			Users:          st.users,
			CallTimeout:    cfg.CallTimeout,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	go func() {
		logger.Info("server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
}

// openStores connects to Postgres, or falls back to in-memory stores when
// running locally without DATABASE_URL.
func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory stores; data is lost on restart")
		users := memory.NewUserRepository()
		return &stores{
			users:    users,
			products: memory.NewProductRepository(),
			deps:     []health.Dependency{{Name: "memory", Pinger: users}},
			close:    func() {},
		}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	logger.Info("db connected")

	if cfg.RunMigrations {
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("migrations applied")
	}

	return &stores{
		users:    postgres.NewUserRepository(pool),
		products: postgres.NewProductRepository(pool),
		deps:     []health.Dependency{{Name: "postgres", Pinger: pool}},
		close:    pool.Close,
	}, nil
}
