package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/okamoto/hr-dashboard/internal/api"
	"github.com/okamoto/hr-dashboard/internal/config"
	"github.com/okamoto/hr-dashboard/internal/database"
	"github.com/okamoto/hr-dashboard/internal/httpclient"
	"github.com/okamoto/hr-dashboard/internal/loader"
	"github.com/okamoto/hr-dashboard/internal/logging"
	"github.com/okamoto/hr-dashboard/internal/repository"
	"github.com/okamoto/hr-dashboard/internal/store"
	"github.com/okamoto/hr-dashboard/internal/transformer"
	"go.uber.org/zap"
)

// app holds the components shared by every subcommand
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *database.SQLiteDB
	state  *repository.StateRepository
	source *api.Client
	synth  transformer.Synthesizer
	store  *store.Store
	loader *loader.Loader
}

// newApp loads configuration and opens logging, storage and the source client
func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	db, err := database.Open(cfg.Storage.Path, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	synth, err := transformer.NewRandomSynthesizer(cfg.Synth.Seed, logger)
	if err != nil {
		_ = db.Close()
		_ = logger.Sync()
		return nil, err
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		db:     db,
		state:  repository.NewStateRepository(database.NewKVRepository(db, logger), cfg.Storage.Key, logger),
		source: api.NewClient(&cfg.Source, httpclient.New(cfg.Source, logger), logger),
		synth:  synth,
	}, nil
}

// openStore creates and rehydrates the store, then the loader writing into
// it. persister may be nil, in which case state is written on close.
func (a *app) openStore(ctx context.Context, persister store.Persister) error {
	a.store = store.New(store.Options{PersistEmployees: a.cfg.Storage.PersistEmployees}, a.state, persister, a.logger)
	if err := a.store.Hydrate(ctx); err != nil {
		return err
	}

	a.loader = loader.New(&a.cfg.Loader, a.source, a.synth, a.store, a.logger)
	return nil
}

// ensureLoaded runs the loader and turns a failed fetch into the user-facing error
func (a *app) ensureLoaded(ctx context.Context) error {
	state, err := a.loader.Load(ctx)
	if err != nil {
		if state.Error != "" {
			a.logger.Debug("load failed", zap.Error(err))
			return errors.New(state.Error)
		}
		return fmt.Errorf("load employees: %w", err)
	}
	return nil
}

// close cancels loading, flushes the store and releases resources
func (a *app) close() {
	if a.loader != nil {
		a.loader.Close()
	}
	if a.store != nil {
		if err := a.store.Flush(context.Background()); err != nil {
			a.logger.Error("failed to flush store", zap.Error(err))
		}
	}
	if err := a.source.Close(); err != nil {
		a.logger.Warn("failed to close source client", zap.Error(err))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close database", zap.Error(err))
	}
	_ = a.logger.Sync()
}
