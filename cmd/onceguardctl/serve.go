package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/loykin/onceguard/internal/audit/factory"
	"github.com/loykin/onceguard/internal/auth"
	"github.com/loykin/onceguard/internal/config"
	"github.com/loykin/onceguard/internal/dedup"
	"github.com/loykin/onceguard/internal/logger"
	"github.com/loykin/onceguard/internal/metrics"
	"github.com/loykin/onceguard/internal/server"
	"github.com/loykin/onceguard/internal/store"
	tlsconfig "github.com/loykin/onceguard/internal/tls"

	_ "github.com/loykin/onceguard/internal/store/postgres"
	_ "github.com/loykin/onceguard/internal/store/sqlite"

	"github.com/loykin/onceguard/internal/sweeper"
)

func createServeCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the coordinator HTTP daemon",
		Long: `serve loads a TOML config, wires up the store, audit sink,
decision-trail logger, auth service, and TLS, then serves the
try-start/complete/status API until interrupted.

Examples:
  onceguardctl serve --config coordinator.toml`,
		RunE: func(*cobra.Command, []string) error {
			return runServe(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to TOML config file (required)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runServe(configPath string) error {
	fc, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, closeLog, err := logger.New(fc.LoggerConfig())
	if err != nil {
		return fmt.Errorf("set up logger: %w", err)
	}
	defer func() { _ = closeLog.Close() }()

	st, err := store.New(fc.StoreBuilderConfig())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()
	if err := st.EnsureSchema(context.Background()); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	sink, err := factory.NewSinkFromDSN(fc.Audit.DSN)
	if err != nil {
		return fmt.Errorf("open audit sink: %w", err)
	}
	defer func() { _ = sink.Close() }()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	coord := dedup.New(st, fc.DedupConfig(), log)

	var authSvc *auth.Service
	if fc.Auth.AdminUsername != "" || len(fc.Auth.APIKeys) > 0 {
		authSvc, err = auth.New(fc.AuthServiceConfig())
		if err != nil {
			return fmt.Errorf("set up auth: %w", err)
		}
	}

	router := server.New(coord, fc.ProcessorID, fc.Server.BasePath, sink, authSvc)

	tlsCfg, err := tlsconfig.SetupTLS(fc.Server)
	if err != nil {
		return fmt.Errorf("set up TLS: %w", err)
	}

	httpServer := &http.Server{
		Addr:              fc.Server.Bind,
		Handler:           router.Handler(),
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var sw *sweeper.Sweeper
	if sweepable, ok := st.(store.Sweepable); ok {
		sw = sweeper.New(sweepable, fc.ProcessorID, fc.Sweep.Schedule, sink, log)
		if err := sw.Start(); err != nil {
			return fmt.Errorf("start sweeper: %w", err)
		}
		defer sw.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("onceguard listening", "bind", fc.Server.Bind, "tls", tlsCfg != nil)
		var serveErr error
		if tlsCfg != nil {
			serveErr = httpServer.ListenAndServeTLS("", "")
		} else {
			serveErr = httpServer.ListenAndServe()
		}
		if serveErr != nil && serveErr != http.ErrServerClosed {
			errCh <- serveErr
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case s := <-sig:
		log.Info("shutting down", "signal", s.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
