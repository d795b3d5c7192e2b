// Command murmur runs the feed consistency engine and autonomous
// engagement scheduler.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/murmurfeed/murmur/internal/agent"
	"github.com/murmurfeed/murmur/internal/config"
	"github.com/murmurfeed/murmur/internal/domain"
	"github.com/murmurfeed/murmur/internal/httpserver"
	"github.com/murmurfeed/murmur/internal/jsonstore"
	"github.com/murmurfeed/murmur/internal/metrics"
	"github.com/murmurfeed/murmur/internal/proposer"
	"github.com/murmurfeed/murmur/internal/sqlite"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configDir string

	root := &cobra.Command{
		Use:           "murmur",
		Short:         "Social feed engine with an autonomous engagement agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configDir, "config", "config", "configuration directory")

	root.AddCommand(
		newServeCmd(&configDir),
		newRebuildCmd(&configDir),
		newCycleCmd(&configDir),
	)
	return root
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// bootstrap loads config and assembles the store, ledger, and engine, the
// pieces every subcommand needs.
func bootstrap(ctx context.Context, configDir string, logger *slog.Logger) (*config.Config, *domain.Engine, *sqlite.Ledger, *metrics.Metrics, error) {
	godotenv.Load()

	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	store, err := jsonstore.New(cfg.Server.DataDir, logger)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("create document store: %w", err)
	}

	ledger, err := sqlite.Open(cfg.Server.LedgerPath)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("open action ledger: %w", err)
	}

	m := metrics.New()
	engine := domain.NewEngine(store, cfg.Tiers, cfg.Ranking.Sort, cfg.Agent.Persona, logger, m)
	if err := engine.Load(ctx); err != nil {
		ledger.Close()
		return nil, nil, nil, nil, fmt.Errorf("load store: %w", err)
	}
	return cfg, engine, ledger, m, nil
}

// newProposer builds the OpenAI-backed proposer, falling back to nil
// (simulation mode) when credentials are missing.
func newProposer(cfg *config.Config, logger *slog.Logger) domain.Proposer {
	p, err := proposer.NewOpenAI(cfg.Agent.Model, logger)
	if err != nil {
		logger.Warn("content proposer unavailable, agent runs in simulation mode", "error", err)
		return nil
	}
	return p
}

func newServeCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the feed engine, agent scheduler, and HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			cfg, engine, ledger, m, err := bootstrap(ctx, *configDir, logger)
			if err != nil {
				return err
			}
			defer ledger.Close()

			scheduler := agent.New(engine, newProposer(cfg, logger), ledger, cfg.Agent, logger, m)

			watcher := config.NewWatcher(*configDir, logger)
			watcher.OnTiers = func(tiers []domain.Tier) { engine.SetTiers(ctx, tiers) }
			watcher.OnRanking = func(r config.RankingConfig) { engine.SetRanking(ctx, r.Sort) }
			watcher.OnAgent = scheduler.SetConfig

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			go engine.RunReconciliation(ctx, cfg.Server.RebuildCadence.Std())
			go scheduler.Run(ctx)
			go func() {
				if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
					logger.Error("config watcher exited with error", "error", err)
				}
			}()

			server := httpserver.NewServer(cfg.Server, engine, m, logger)
			go func() {
				if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server exited with error", "error", err)
				}
			}()

			logger.Info("server started", "port", cfg.Server.Port, "data_dir", cfg.Server.DataDir)

			sig := <-sigCh
			logger.Info("received signal, shutting down", "signal", sig.String())
			cancel()

			if err := server.Shutdown(context.Background()); err != nil {
				logger.Error("error shutting down http server", "error", err)
			}
			return nil
		},
	}
}

func newRebuildCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Load the canonical store, rebuild the feed document, and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger()
			_, engine, ledger, _, err := bootstrap(cmd.Context(), *configDir, logger)
			if err != nil {
				return err
			}
			defer ledger.Close()

			// Load already materialized once; run an explicit rebuild so
			// the command is useful even on a fresh store.
			if err := engine.Rebuild(cmd.Context()); err != nil {
				return fmt.Errorf("rebuild feed: %w", err)
			}
			meta := engine.FeedMeta()
			logger.Info("feed rebuilt", "entries", meta.EntryCount, "last_updated", meta.LastUpdated)
			return nil
		},
	}
}

func newCycleCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cycle",
		Short: "Run a single agent scheduler cycle and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger()
			cfg, engine, ledger, m, err := bootstrap(cmd.Context(), *configDir, logger)
			if err != nil {
				return err
			}
			defer ledger.Close()

			scheduler := agent.New(engine, newProposer(cfg, logger), ledger, cfg.Agent, logger, m)
			result := scheduler.RunCycle(cmd.Context())
			logger.Info("cycle finished",
				"outcome", result.Outcome,
				"proposed", result.Proposed,
				"rejected", result.Rejected,
				"declined", result.Declined,
				"applied", result.Applied,
			)
			return nil
		},
	}
}
