package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cmlabs-hris/hris-presence-go/internal/config"
	appHTTP "github.com/cmlabs-hris/hris-presence-go/internal/handler/http"
	"github.com/cmlabs-hris/hris-presence-go/internal/pkg/cron"
	"github.com/cmlabs-hris/hris-presence-go/internal/pkg/database"
	"github.com/cmlabs-hris/hris-presence-go/internal/pkg/jwt"
	"github.com/cmlabs-hris/hris-presence-go/internal/pkg/realtime"
	"github.com/cmlabs-hris/hris-presence-go/internal/repository/postgresql"
	attendanceService "github.com/cmlabs-hris/hris-presence-go/internal/service/attendance"
	originService "github.com/cmlabs-hris/hris-presence-go/internal/service/origin"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if err := cfg.ValidateServer(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.App.LogLevel),
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgreSQLDB(ctx, cfg.DatabaseURL())
	if err != nil {
		return fmt.Errorf("error connecting to database: %w", err)
	}
	defer db.Close()

	loc, err := time.LoadLocation(cfg.App.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone: %w", err)
	}

	attendanceRepo := postgresql.NewAttendanceRepository(db)
	originRepo := postgresql.NewOriginRepository(db)

	hub := realtime.NewHub()
	JWTService := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessExpiration)
	attendanceSvc := attendanceService.NewAttendanceService(db, attendanceRepo, loc)
	originSvc := originService.NewOriginService(originRepo, hub)

	scheduler := cron.NewScheduler(slog.Default())
	attendanceJobs := cron.NewAttendanceJobs(attendanceSvc, cfg.Cron.StaleSessionAfter, cfg.Cron.AutoCloseInterval)
	if err := attendanceJobs.RegisterJobs(scheduler); err != nil {
		return err
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	attendanceHandler := appHTTP.NewAttendanceHandler(attendanceSvc)
	originHandler := appHTTP.NewOriginHandler(originSvc)
	realtimeHandler := appHTTP.NewRealtimeHandler(attendanceSvc, JWTService, hub, appHTTP.RealtimeConfig{
		AllowedOrigins: cfg.App.AllowedOrigins,
		PingInterval:   cfg.App.RealtimePingInterval,
	})

	router := appHTTP.NewRouter(
		cfg.App,
		JWTService,
		attendanceHandler,
		originHandler,
		realtimeHandler,
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server running", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
