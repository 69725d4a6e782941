package main

import (
	"context"
	"io"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pg-sharding/reshard/donor"
	"github.com/pg-sharding/reshard/pkg"
	"github.com/pg-sharding/reshard/pkg/catalog"
	"github.com/pg-sharding/reshard/pkg/config"
	"github.com/pg-sharding/reshard/pkg/models/spqrerror"
	"github.com/pg-sharding/reshard/pkg/shardstore"
	"github.com/pg-sharding/reshard/pkg/spqrlog"
	"github.com/pg-sharding/reshard/pkg/statistics"
	"github.com/pg-sharding/reshard/qdb"
)

var (
	cfgPath   string
	logLevel  string
	prettyLog bool
)

var rootCmd = &cobra.Command{
	Use: "reshard-donor --config `path-to-config`",
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgStr, err := config.LoadDonorCfg(cfgPath)
		if err != nil {
			return err
		}
		cfg := config.DonorConfig()
		applyFlags(cmd, cfg)

		spqrlog.ReloadLogger(cfg.LogFileName, cfg.LogLevel, cfg.PrettyLogging)
		spqrlog.Zero.Info().
			Str("version", pkg.VersionRevision).
			Str("shard", cfg.ShardID).
			Msg("starting resharding donor")
		spqrlog.Zero.Debug().Msg(cfgStr)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		err = run(ctx, cfg)
		if err != nil {
			spqrlog.Zero.Error().Err(err).Msg("")
		}
		return err
	},
}

// applyFlags lets flags passed explicitly override the config file.
func applyFlags(cmd *cobra.Command, cfg *config.Donor) {
	if cmd.Flags().Changed("pretty-log") {
		cfg.PrettyLogging = prettyLog
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = logLevel
	}
}

type shardStore interface {
	shardstore.Store
	shardstore.RoutingCacheStore
}

func newShardStore(ctx context.Context, cfg *config.Donor) (shardStore, func(), error) {
	if cfg.ShardConnStr == "" {
		spqrlog.Zero.Warn().Msg("shard_conn_str is not set, using in-memory shard store")
		return shardstore.NewMemStore(), func() {}, nil
	}
	store, err := shardstore.NewPgStore(ctx, cfg.ShardConnStr, cfg.ReshardSchema, cfg.ReplicaCount, cfg.MajorityPollInterval)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to shard")
	}
	return store, store.Close, nil
}

func run(ctx context.Context, cfg *config.Donor) error {
	if cfg.ShardID == "" {
		return spqrerror.New(spqrerror.SPQR_INVALID_REQUEST, "shard_id is not set").
			WithHint("set shard_id to the id the coordinator uses for this shard")
	}

	db, err := qdb.NewQDB(cfg.QdbType, cfg.QdbAddr, cfg.MemQdbBackup)
	if err != nil {
		return errors.Wrap(err, "failed to open qdb")
	}
	if c, ok := db.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				spqrlog.Zero.Error().Err(err).Msg("failed to close qdb")
			}
		}()
	}

	store, closeStore, err := newShardStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	cache := catalog.NewCache(db, store)
	svc := donor.NewService(donor.Deps{
		DB:       db,
		Store:    store,
		External: donor.NewExternalState(cfg.ShardID, cache, db),
		Cache:    cache,
		Retry: donor.RetryPolicy{
			Base: cfg.RetryBackoffBase,
			Cap:  cfg.RetryBackoffCap,
		},
		WriteConflictMaxRetries: cfg.WriteConflictMaxRetries,
		LatencyQuantiles:        cfg.LatencyQuantiles,
	}, db)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.Serve(gctx)
	})
	if cfg.MetricsAddr != "" {
		mux := statistics.NewMux(func() any {
			return svc.ReportForCurrentOp()
		})
		g.Go(func() error {
			return statistics.StartMetricsServer(gctx, cfg.MetricsAddr, mux)
		})
	}
	return g.Wait()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "/etc/reshard/donor.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level, overrides config")
	rootCmd.PersistentFlags().BoolVarP(&prettyLog, "pretty-log", "P", false, "write logs in human readable format, overrides config")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		spqrlog.Zero.Fatal().Err(err).Msg("")
	}
}
