// sweeper clears expired one-time codes from Postgres on a cron schedule.
// Run it when the API servers set SWEEP_IN_PROCESS=false.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ErlanBelekov/identity-service/config"
	"github.com/ErlanBelekov/identity-service/internal/health"
	"github.com/ErlanBelekov/identity-service/internal/infrastructure/postgres"
	ctxlog "github.com/ErlanBelekov/identity-service/internal/log"
	"github.com/ErlanBelekov/identity-service/internal/metrics"
	"github.com/ErlanBelekov/identity-service/internal/scheduler"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.LoadSweeper()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := ctxlog.New(os.Stdout, cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	logger.Info("db connected")

	metrics.Register()
	checker := health.NewChecker(logger, prometheus.DefaultRegisterer, health.Dependency{Name: "postgres", Pinger: pool})

	sweeper, err := scheduler.NewOTPSweeper(postgres.NewUserRepository(pool), logger, cfg.OTPSweepSchedule)
	if err != nil {
		stop()
		log.Fatalf("sweeper: %v", err)
	}
	done := make(chan struct{})
	go func() {
		sweeper.Start(ctx)
		close(done)
	}()

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("sweeper did not stop in time")
	}

	logger.Info("sweeper shut down")
}
