package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/IWhitebird/trophy-leaderboard/config"
	"github.com/IWhitebird/trophy-leaderboard/internal/logging"
	"github.com/IWhitebird/trophy-leaderboard/internal/ranking"
)

// @title        Trophy Leaderboard API
// @version      1.0
// @description  Real-time trophy rankings with tie-aware competition ranks.
// @BasePath     /

const Version = "1.0.0"

var (
	cfg *config.AppConfig

	rootCmd = &cobra.Command{
		Use:   "leaderboard",
		Short: "Trophy ranking service",
		Long: fmt.Sprintf(`leaderboard (v%s)

Serves tie-aware trophy rankings backed by a Redis score index,
a top-N snapshot and PostgreSQL as the system of record.`, Version),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg = config.NewAppConfig()
			return logging.Init(cfg.LogLevel)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logging.Sync()
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server, the Kafka consumer and the snapshot monitor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	rebuildCmd = &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the top-N snapshot from the score index",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return withEngine(cmd.Context(), func(ctx context.Context, engine *ranking.Engine) error {
				if !engine.RebuildSnapshot(ctx, limit) {
					return fmt.Errorf("snapshot rebuild failed")
				}
				fmt.Println("snapshot rebuilt")
				return nil
			})
		},
	}

	monitorCmd = &cobra.Command{
		Use:   "monitor",
		Short: "Run one snapshot health check and rebuild when needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, engine *ranking.Engine) error {
				return printJSON(engine.MonitorAndRebuild(ctx))
			})
		},
	}

	invalidateCmd = &cobra.Command{
		Use:   "invalidate",
		Short: "Drop the cached top-N snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, engine *ranking.Engine) error {
				return engine.InvalidateSnapshot(ctx)
			})
		},
	}

	resetCmd = &cobra.Command{
		Use:   "reset",
		Short: "Clear the score index and snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			repopulate, _ := cmd.Flags().GetBool("repopulate")
			return withEngine(cmd.Context(), func(ctx context.Context, engine *ranking.Engine) error {
				if err := engine.ResetIndex(ctx); err != nil {
					return err
				}
				if !repopulate {
					return nil
				}
				n, err := engine.Repopulate(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("index repopulated with %d players\n", n)
				return nil
			})
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("leaderboard v%s\n", Version)
		},
	}
)

func init() {
	rebuildCmd.Flags().Int("limit", 0, "snapshot size (0 uses RANKING_SNAPSHOT_LIMIT)")
	resetCmd.Flags().Bool("repopulate", false, "reseed the index from the durable store after clearing it")

	rootCmd.AddCommand(serveCmd, rebuildCmd, monitorCmd, invalidateCmd, resetCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// withEngine runs fn against a fully wired engine and tears it down after.
func withEngine(parent context.Context, fn func(ctx context.Context, engine *ranking.Engine) error) error {
	engine, cleanup, err := setupEngine(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(parent, cfg.Ranking.BackgroundTimeout+time.Minute)
	defer cancel()
	return fn(ctx, engine)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
