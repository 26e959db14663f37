/*
main.go - Application entry point

PURPOSE:
  Command-line front end for the construction ledger. Loads configuration,
  opens the configured store and runs one of the commands below.

COMMANDS:
  serve               Start the HTTP API (default when no command is given)
  migrate             Apply the schema and exit
  scenario [name]     List scenarios, or reset the store and seed one

GLOBAL FLAGS (override the environment):
  --db         Store driver: sqlite | postgres | memory (DB_DRIVER)
  --sqlite     SQLite database path (SQLITE_PATH)
  --port       HTTP server port (HTTP_PORT)
  --log-level  debug | info | warn | error (LOG_LEVEL)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests (HTTP_SHUTDOWN_TIMEOUT)
  3. Stop the audit scheduler
  4. Close the store

EXAMPLES:
  # SQLite file database
  ./server serve --sqlite=./data/ledger.db

  # Postgres from DATABASE_URL
  DATABASE_URL=postgres://... ./server serve --db=postgres

  # Seed demo data
  ./server scenario full-project --tenant=demo

SEE ALSO:
  - config/config.go: Environment keys
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/crudexec/construction-sub006/api"
	"github.com/crudexec/construction-sub006/config"
	"github.com/crudexec/construction-sub006/ledger"
	"github.com/crudexec/construction-sub006/logging"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// rootOptions holds the global flags.
type rootOptions struct {
	driver     string
	sqlitePath string
	port       int
	logLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "server",
		Short:        "Construction ledger API",
		Long:         "Contracts, change orders, purchasing and site inventory over a transactional store.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.driver, "db", "", "store driver (sqlite|postgres|memory)")
	cmd.PersistentFlags().StringVar(&opts.sqlitePath, "sqlite", "", "SQLite database path")
	cmd.PersistentFlags().IntVar(&opts.port, "port", 0, "HTTP server port")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	})
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newScenarioCommand(opts))

	return cmd
}

// loadConfig reads the environment and applies flags that were set.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DB.Driver = opts.driver
	}
	if flags.Changed("sqlite") {
		cfg.DB.SQLitePath = opts.sqlitePath
	}
	if flags.Changed("port") {
		cfg.HTTP.Port = opts.port
	}
	if flags.Changed("log-level") {
		cfg.App.LogLevel = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.New(logging.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel, Out: os.Stderr}).
		With().Str("service", cfg.App.Name).Logger()
	return cfg, logger, nil
}

func runServe(cmd *cobra.Command, opts *rootOptions) error {
	cfg, logger, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg.DB, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	l := ledger.New(st, ledger.Options{Logger: logger})
	scheduler := api.NewAuditScheduler(l.Audit, cfg.Audit.Interval, cfg.Audit.Repair, logger)
	handler := api.NewHandler(l, st, scheduler, cfg.Retry.Attempts)
	router := api.NewRouter(handler, api.RouterOptions{
		Logger:      logger,
		CORSOrigins: cfg.HTTP.CORSOrigins,
		Ping:        st.Ping,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	scheduler.Start()
	defer scheduler.Stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Str("driver", cfg.DB.Driver).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the schema and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			st, err := openStore(cmd.Context(), cfg.DB, logger)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info().Str("driver", cfg.DB.Driver).Msg("schema applied")
			return nil
		},
	}
}

func newScenarioCommand(opts *rootOptions) *cobra.Command {
	var tenant, user string

	cmd := &cobra.Command{
		Use:   "scenario [name]",
		Short: "List demo scenarios, or reset the store and seed one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				for _, s := range api.Scenarios() {
					fmt.Fprintf(cmd.OutOrStdout(), "%-18s %s\n", s.ID, s.Description)
				}
				return nil
			}

			cfg, logger, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			st, err := openStore(ctx, cfg.DB, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Reset(ctx); err != nil {
				return fmt.Errorf("reset store: %w", err)
			}
			l := ledger.New(st, ledger.Options{Logger: logger})
			actor := ledger.Actor{TenantID: ledger.TenantID(tenant), UserID: ledger.UserID(user), Role: ledger.RoleAdmin}
			if err := api.SeedScenario(ctx, l, actor, args[0]); err != nil {
				return err
			}
			logger.Info().Str("scenario", args[0]).Str("tenant_id", tenant).Msg("scenario loaded")
			return nil
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "demo", "tenant to seed")
	cmd.Flags().StringVar(&user, "user", "demo-admin", "user recorded as creator")
	return cmd
}
