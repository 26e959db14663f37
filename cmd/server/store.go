package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/crudexec/construction-sub006/config"
	"github.com/crudexec/construction-sub006/ledger"
	"github.com/crudexec/construction-sub006/ledger/store"
	"github.com/crudexec/construction-sub006/store/postgres"
	"github.com/crudexec/construction-sub006/store/sqlite"
)

// backend is what every command needs from a store.
type backend interface {
	ledger.TxStore
	Migrate(ctx context.Context) error
	Reset(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// memoryBackend adapts the in-process store. Its schema is implicit.
type memoryBackend struct {
	*store.Memory
}

func (memoryBackend) Migrate(context.Context) error { return nil }
func (memoryBackend) Ping(context.Context) error    { return nil }
func (memoryBackend) Close() error                  { return nil }

func openStore(ctx context.Context, cfg config.DBConfig, log zerolog.Logger) (backend, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		log.Warn().Msg("using in-memory store; data is lost on exit")
		return memoryBackend{store.NewMemory()}, nil

	case config.DriverSQLite:
		st, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("sqlite store opened")
		return st, nil

	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
			URL:      cfg.ConnectionString(),
			MaxConns: cfg.MaxConns,
			MinConns: cfg.MinConns,
		})
		if err != nil {
			return nil, err
		}
		st, err := postgres.New(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		log.Info().Str("host", cfg.Host).Str("database", cfg.Name).Msg("postgres store opened")
		return st, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}
