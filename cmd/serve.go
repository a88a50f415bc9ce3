package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/yourusername/freelance-billing/handlers"
	"github.com/yourusername/freelance-billing/logger"
	"github.com/yourusername/freelance-billing/scheduler"
)

const shutdownTimeout = 15 * time.Second

var withScheduler bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the billing HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().BoolVar(&withScheduler, "scheduler", true, "run the recurring billing and reminder cron jobs")
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if withScheduler {
		sched := scheduler.New(a.svc, logger.WithComponent("scheduler"))
		if err := sched.Register(cfg.RecurringSchedule, cfg.ReminderSchedule); err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
	}

	gin.SetMode(gin.ReleaseMode)
	router := handlers.NewRouter(handlers.RouterDeps{
		DB:       a.db,
		Cfg:      cfg,
		Service:  a.svc,
		Provider: a.provider,
		Metrics:  a.metrics,
		Logger:   logger.WithComponent("http"),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("version", version).Msg("Starting freelance billing API server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
