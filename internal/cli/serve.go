package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ryanKinoti/LCS-v1/internal/catalog"
	"github.com/ryanKinoti/LCS-v1/internal/config"
	"github.com/ryanKinoti/LCS-v1/internal/devserver"
	"github.com/ryanKinoti/LCS-v1/internal/logging"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	Port int
	Seed bool
	Dev  bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the development backend and identity emulator",
		Long: `Run the development backend: the accounts API, the identity emulator and
the revocation feed, backed by SQLite or PostgreSQL.

With --seed an admin, a technician and a customer account are created along
with sample bookings.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.Config
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = opts.Port
			}
			if cmd.Flags().Changed("seed") {
				cfg.Database.Seed = opts.Seed
			}
			log, err := rootOpts.logger(cmd)
			if err != nil {
				return err
			}

			srv, store, err := newDevServer(cmd.Context(), cfg, log, opts.Dev)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return srv.ListenAndServe(ctx, cfg.Addr())
		},
	}

	cmd.Flags().IntVarP(&opts.Port, "port", "p", 8000, "listen port")
	cmd.Flags().BoolVar(&opts.Seed, "seed", true, "create seed accounts and bookings")
	cmd.Flags().BoolVar(&opts.Dev, "dev", false, "expose the account-disable endpoint")

	return cmd
}

// newDevServer opens the database, seeds it when configured and builds the
// server. The caller closes the store.
func newDevServer(ctx context.Context, cfg *config.Config, log *logrus.Logger, dev bool) (*devserver.Server, *devserver.Store, error) {
	cat, err := catalog.Load()
	if err != nil {
		return nil, nil, err
	}
	store, err := devserver.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s database: %w", cfg.Database.Driver, err)
	}
	if cfg.Database.Seed {
		if err := store.Seed(ctx, cat); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("seed database: %w", err)
		}
		log.WithField("driver", cfg.Database.Driver).Info("database seeded")
	}

	srv := devserver.New(devserver.Options{
		Store:           store,
		Catalog:         cat,
		Logger:          logging.Component(log, "devserver"),
		SigninPerMinute: cfg.Server.SigninPerMinute,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		DevEndpoints:    dev,
	})
	return srv, store, nil
}
