package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Veraticus/finbot/internal/api/middleware"
	"github.com/Veraticus/finbot/internal/billing"
	"github.com/Veraticus/finbot/internal/common"
	"github.com/Veraticus/finbot/internal/messenger"
	"github.com/Veraticus/finbot/internal/scheduler"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Messenger webhook and background scheduler",
		Long: `Start the HTTP server that receives Messenger webhook events and the
scheduler that posts subscription charges and sends monthly reports.`,
		RunE: runServe,
	}

	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	cmd.Flags().Bool("no-scheduler", false, "serve the webhook without running billing or reports")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	if err := cfg.RequireMessenger(); err != nil {
		return common.NewUserError("Messenger credentials are required; set messenger.access_token and messenger.verify_token", err)
	}

	store, err := initStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer closeStorage(store)

	resolver, err := newResolver(cfg)
	if err != nil {
		return fmt.Errorf("failed to create intent resolver: %w", err)
	}

	notifier, err := messenger.NewClient(messenger.ClientConfig{
		AccessToken: cfg.Messenger.AccessToken,
		BaseURL:     cfg.Messenger.BaseURL,
		APIVersion:  cfg.Messenger.APIVersion,
	}, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to create messenger client: %w", err)
	}

	dispatcher := newDispatcher(cfg, store, resolver, notifier)
	webhook := messenger.NewWebhook(dispatcher, messenger.WebhookConfig{
		VerifyToken: cfg.Messenger.VerifyToken,
		AppSecret:   cfg.Messenger.AppSecret,
	}, slog.Default())
	if cfg.Messenger.AppSecret == "" {
		slog.Warn("messenger.app_secret is not set; webhook signatures will not be verified")
	}

	mux := http.NewServeMux()
	mux.Handle("/webhook", webhook)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	logger := slog.Default()
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           middleware.Chain(mux, middleware.Recovery(logger), middleware.RequestID, middleware.Logger(logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	schedDone := make(chan error, 1)
	if noSched, _ := cmd.Flags().GetBool("no-scheduler"); noSched {
		schedDone <- nil
	} else {
		engine := billing.NewEngine(store, notifier, logger)
		sched := scheduler.New(engine, newAggregator(cfg, store, notifier), store, scheduler.Config{
			Location:        cfg.Budget.Location,
			BillingInterval: cfg.Scheduler.BillingInterval,
			ReportDay:       cfg.Scheduler.ReportDay,
			ReportHour:      cfg.Scheduler.ReportHour,
		}, time.Now, logger)
		go func() { schedDone <- sched.Run(runCtx) }()
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("webhook server listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			stop()
			<-schedDone
			return fmt.Errorf("server failed: %w", err)
		}
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}

	stop()
	return <-schedDone
}
