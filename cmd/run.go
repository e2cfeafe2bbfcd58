package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/feedlark/reelwatch/internal/auth"
	"github.com/feedlark/reelwatch/internal/browser"
	"github.com/feedlark/reelwatch/internal/config"
	"github.com/feedlark/reelwatch/internal/feed"
	"github.com/feedlark/reelwatch/internal/observability"
	"github.com/feedlark/reelwatch/internal/sink"
)

// newRunCmd creates the `run` command, the main collection entry point.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Opens the feed and collects records until stopped",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Flag overrides go through viper so precedence over config file
			// and env vars is handled in one place.
			if err := viper.BindPFlag("feed.max_items", cmd.Flags().Lookup("max-items")); err != nil {
				return err
			}
			if err := viper.BindPFlag("output.format", cmd.Flags().Lookup("format")); err != nil {
				return err
			}
			if err := viper.BindPFlag("output.file", cmd.Flags().Lookup("output")); err != nil {
				return err
			}
			if err := viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			cfg, err := config.NewFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runID := uuid.New().String()
			logger.Info("Starting collection run",
				zap.String("run_id", runID),
				zap.String("feed_url", cfg.Feed.URL),
				zap.Int("max_items", cfg.Feed.MaxItems))

			b, err := browser.Launch(ctx, cfg.Browser, logger)
			if err != nil {
				return err
			}
			defer b.Close()

			store := browser.NewCookieStore(cfg.Browser.CookieFile, logger)
			authMgr := auth.NewManager(store, logger)
			if err := authMgr.EnsureSession(ctx, b, cfg.Auth); err != nil {
				return fmt.Errorf("session setup failed: %w", err)
			}

			if err := b.Navigate(ctx, cfg.Feed.URL); err != nil {
				return err
			}

			writer, outPath := newSink(cfg.Output)
			logger.Info("Writing checkpoints", zap.String("path", outPath))

			session := feed.NewSession(b.Page(), writer, cfg.Feed, logger)
			summary, err := session.Run(b.Tab())
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Run ended with error",
					zap.String("run_id", runID), zap.Error(err))
				return err
			}

			logger.Info("Run finished",
				zap.String("run_id", runID),
				zap.String("reason", summary.Reason),
				zap.Int("collected", summary.Collected),
				zap.Int("duplicates", summary.Duplicates),
				zap.Int("cycles", summary.Cycles),
				zap.Int("checkpoints", summary.Checkpoints))

			fmt.Printf("\nCollected %d records (%d duplicates discarded). Output: %s\n",
				summary.Collected, summary.Duplicates, outPath)
			return nil
		},
	}

	runCmd.Flags().IntP("max-items", "n", 0, "Stop after collecting this many records (0 = unbounded).")
	runCmd.Flags().StringP("format", "f", "json", "Output format ('json' or 'csv').")
	runCmd.Flags().StringP("output", "o", "", "Output file path. Defaults to a timestamped file in output.dir.")
	runCmd.Flags().Bool("headless", true, "Run the browser headless.")

	return runCmd
}

// newSink builds the checkpoint writer from the output config.
func newSink(cfg config.OutputConfig) (feed.CheckpointWriter, string) {
	path := cfg.File
	if cfg.Format == "csv" {
		if path == "" {
			path = filepath.Join(cfg.Dir, "reels.csv")
		}
		s := sink.NewCSVSink(path)
		return s, s.Path()
	}
	if path == "" {
		path = sink.DefaultJSONPath(cfg.Dir)
	}
	s := sink.NewJSONSink(path)
	return s, s.Path()
}
