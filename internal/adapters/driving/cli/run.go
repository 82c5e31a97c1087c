package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sitesync/internal/logger"
)

var (
	runNoScheduler bool
	runNoWatch     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync workers",
	Long: `Starts the worker pool that processes queued sync jobs, the scheduler
for recurring syncs and the policy watcher. Runs until interrupted.

Refuses to start when fewer than two sites are registered.

Run one runner per data directory. Workers of a single runner never apply
the same item to the same target at once; a second runner sharing the store
can overwrite a newer write with an older one. The store refuses to record
such a regression and the job retries.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runNoScheduler, "no-scheduler", false, "do not run scheduled syncs")
	runCmd.Flags().BoolVar(&runNoWatch, "no-watch", false, "do not reload the field policy on config changes")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	if syncService == nil {
		return errNoSyncService
	}
	if dispatcher == nil {
		return errors.New("dispatcher not configured")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := syncService.CheckEnvironment(ctx); err != nil {
		return fmt.Errorf("refusing to start: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return quiet(dispatcher.Start(gctx))
	})
	if scheduler != nil && !runNoScheduler {
		g.Go(func() error {
			return quiet(scheduler.Start(gctx))
		})
	}
	if policyWatcher != nil && !runNoWatch {
		g.Go(func() error {
			return quiet(policyWatcher.Watch(gctx))
		})
	}

	cmd.Println("Workers running. Press Ctrl+C to stop.")

	<-gctx.Done()
	logger.Info("run: shutting down")
	if err := dispatcher.Stop(); err != nil {
		logger.Warn("run: stopping dispatcher: %v", err)
	}
	if scheduler != nil {
		if err := scheduler.Stop(); err != nil {
			logger.Warn("run: stopping scheduler: %v", err)
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}
	cmd.Println("Stopped.")
	return nil
}

// quiet drops the error a component returns when its context is cancelled.
func quiet(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
