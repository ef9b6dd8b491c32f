package cli

import (
	"fmt"

	"github.com/dealguard/dealguard/internal/config"
	"github.com/dealguard/dealguard/internal/connect"
	"github.com/dealguard/dealguard/internal/hubspot"
	"github.com/dealguard/dealguard/internal/logging"
	"github.com/dealguard/dealguard/internal/notify"
	"github.com/dealguard/dealguard/internal/store"
	"github.com/dealguard/dealguard/internal/syncer"
)

// services is the wired object graph shared by the serve, sync, and status
// commands.
type services struct {
	cfg         *config.Config
	loader      *config.Loader
	logger      *logging.Logger
	store       store.Store
	connections *connect.Manager
	syncer      *syncer.Syncer
}

func buildServices() (*services, error) {
	loader := config.NewLoader(globalFlags.Config)
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if globalFlags.DBPath != "" {
		cfg.Storage.Path = globalFlags.DBPath
	}

	level := logging.ParseLevel(cfg.Server.LogLevel)
	if globalFlags.Verbose {
		level = logging.LevelDebug
	}
	logger := logging.NewLogger(logging.WithLevel(level))

	st, err := store.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	notifier := notify.NewTelegramNotifier(cfg.Telegram, logger)
	crm := hubspot.New(cfg.HubSpot, logger)
	connections := connect.NewManager(st, crm, cfg, logger, notifier)
	sy := syncer.New(st, crm, connections, cfg, logger, notifier)

	return &services{
		cfg:         cfg,
		loader:      loader,
		logger:      logger,
		store:       st,
		connections: connections,
		syncer:      sy,
	}, nil
}

func (s *services) Close() {
	if err := s.store.Close(); err != nil {
		s.logger.Error("error closing store", "error", err.Error())
	}
}
