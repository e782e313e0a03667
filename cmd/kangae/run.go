package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harunnryd/kangae/internal/concurrency"
	"github.com/harunnryd/kangae/internal/errors"
	"github.com/harunnryd/kangae/internal/store"
	"github.com/harunnryd/kangae/internal/tool"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon with scheduled maintenance and health sweeps",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAPIKey(cfg); err != nil {
			return err
		}
		c, err := buildComponents(cfg)
		if err != nil {
			return err
		}

		// One daemon per data root.
		lock, err := store.AcquireDataLock(c.dataRoot, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", errConfig, err)
		}
		defer func() {
			if err := lock.Release(); err != nil {
				slog.Warn("release data lock", "error", err)
			}
		}()

		if cfg.Scheduler.Enabled {
			if err := c.scheduler.Start(cmd.Context()); err != nil {
				return errors.Wrap(err, "start scheduler")
			}
			defer c.scheduler.Stop()
		}

		// Initial sweep off the startup path so stale data from a previous
		// run is reclaimed before the first scheduled tick.
		concurrency.SafeGo(func() {
			removed, err := c.service.PerformMaintenance(cmd.Context(), tool.MaintenanceInput{Systems: []string{"all"}})
			if err != nil {
				slog.Warn("startup maintenance failed", "error", err)
				return
			}
			slog.Info("startup maintenance complete", "removed", removed)
		}, nil)

		slog.Info("daemon started", "data_root", c.dataRoot, "scheduler", cfg.Scheduler.Enabled)

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		select {
		case s := <-sig:
			slog.Info("shutting down", "signal", s.String())
		case <-cmd.Context().Done():
			slog.Info("shutting down", "reason", "context canceled")
		}

		return c.history.Save()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
