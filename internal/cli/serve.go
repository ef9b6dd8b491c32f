package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dealguard/dealguard/internal/api"
	"github.com/dealguard/dealguard/internal/config"
	"github.com/dealguard/dealguard/internal/metrics"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s", "server", "run"},
	Short:   "Start the DealGuard server",
	Long: `Start the DealGuard server in main mode.

This command starts the HTTP server that handles the CRM connection
lifecycle, deal sync, and risk scoring.

Example:
  dealguard serve --config config.yaml --db ./data/dealguard.db

The server will start listening on the address configured in the config file.`,
	RunE: runServe,
}

var serveFlags struct {
	Host       string
	Port       int
	Timeout    time.Duration
	TLS        bool
	TLSCert    string
	TLSKey     string
	TLSVersion string
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.Host, "host", "", "Server host (overrides config)")
	serveCmd.Flags().IntVar(&serveFlags.Port, "port", 0, "Server port (overrides config)")
	serveCmd.Flags().DurationVar(&serveFlags.Timeout, "timeout", 0, "Shutdown timeout (overrides config)")
	serveCmd.Flags().BoolVar(&serveFlags.TLS, "tls", false, "Enable TLS/HTTPS")
	serveCmd.Flags().StringVar(&serveFlags.TLSCert, "cert", "", "TLS certificate file path")
	serveCmd.Flags().StringVar(&serveFlags.TLSKey, "key", "", "TLS key file path")
	serveCmd.Flags().StringVar(&serveFlags.TLSVersion, "tls-version", "", "Minimum TLS version (1.2 or 1.3)")

	RootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if globalFlags.Verbose {
		log.Println("Starting DealGuard server...")
		log.Printf("Config path: %s", globalFlags.Config)
		log.Printf("Database path: %s", globalFlags.DBPath)
	}

	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer svc.Close()
	cfg := svc.cfg

	// Apply CLI flags to config
	if serveFlags.Host != "" {
		cfg.Server.Host = serveFlags.Host
	}
	if serveFlags.Port != 0 {
		cfg.Server.HTTPPort = serveFlags.Port
	}
	if serveFlags.Timeout != 0 {
		cfg.Server.ShutdownTimeout = serveFlags.Timeout
	}
	if serveFlags.TLS {
		cfg.Server.TLS.Enabled = true
	}
	if serveFlags.TLSCert != "" {
		cfg.Server.TLS.CertFile = serveFlags.TLSCert
	}
	if serveFlags.TLSKey != "" {
		cfg.Server.TLS.KeyFile = serveFlags.TLSKey
	}
	if serveFlags.TLSVersion != "" {
		cfg.Server.TLS.MinVersion = serveFlags.TLSVersion
	}
	if cfg.Server.TLS.Enabled {
		if err := validateTLSConfig(cfg.Server.TLS); err != nil {
			return fmt.Errorf("TLS validation failed: %w", err)
		}
	}

	m := metrics.NewMetrics("dealguard")
	svc.connections.SetRefreshRecorder(m)
	server := api.NewServer(cfg, svc.store, svc.connections, svc.syncer, m, svc.logger)

	// Reload logging level when the config file changes on disk.
	svc.loader.SetOnChange(func(updated *config.Config) {
		svc.logger.Info("configuration reloaded", "log_level", updated.Server.LogLevel)
	})
	if err := svc.loader.StartWatcher(); err != nil {
		svc.logger.Warn("config watcher unavailable", "error", err.Error())
	}
	defer svc.loader.StopWatcher()

	// Graceful shutdown on SIGINT/SIGTERM.
	go func() {
		sig := api.WaitForSignal(api.SetupSignalHandler())
		svc.logger.Info("received shutdown signal", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			svc.logger.Error("shutdown error", "error", err.Error())
			os.Exit(1)
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	if cfg.Server.TLS.Enabled {
		log.Printf("Starting DealGuard HTTPS server on %s", addr)
	} else {
		log.Printf("Starting DealGuard HTTP server on %s", addr)
	}
	log.Printf("Database: %s (WAL mode enabled)", cfg.Storage.Path)

	if err := server.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func validateTLSConfig(tls config.TLSConfig) error {
	if tls.CertFile == "" || tls.KeyFile == "" {
		return errors.New("tls requires both cert and key files")
	}
	if _, err := os.Stat(tls.CertFile); err != nil {
		return fmt.Errorf("cert file: %w", err)
	}
	if _, err := os.Stat(tls.KeyFile); err != nil {
		return fmt.Errorf("key file: %w", err)
	}
	return nil
}
