// Package cli provides the sitesync command line interface.
//
// Commands talk to the engine through the driving ports only. Services are
// built once per invocation by the bootstrap function registered with
// SetBootstrap, or injected directly with SetServices in tests.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sitesync/internal/core/ports/driven"
	"github.com/custodia-labs/sitesync/internal/core/ports/driving"
	"github.com/custodia-labs/sitesync/internal/logger"
)

// skipServices marks commands that run without engine services.
const skipServices = "skip-services"

var version = "dev"

// Services are the engine components the commands use.
type Services struct {
	Sync       driving.SyncService
	Dispatcher driving.Dispatcher
	Scheduler  driving.Scheduler
	Config     driven.ConfigStore

	// Watcher reloads the field policy until its context ends. Optional.
	Watcher Watcher

	// Close releases stores. Optional.
	Close func() error
}

// Watcher watches configuration for changes.
type Watcher interface {
	Watch(ctx context.Context) error
}

// Bootstrap builds Services from a configuration directory.
type Bootstrap func(ctx context.Context, configDir string) (*Services, error)

var (
	bootstrap Bootstrap

	syncService   driving.SyncService
	dispatcher    driving.Dispatcher
	scheduler     driving.Scheduler
	configStore   driven.ConfigStore
	policyWatcher Watcher
	closeServices func() error
)

var (
	configDir    string
	verbose      bool
	logFormat    string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "sitesync",
	Short: "Synchronise content across a network of sites",
	Long: `sitesync replicates content (articles, pages, configuration) from a
source site to one or more target sites.

Syncs are queued as durable jobs and processed by a pool of workers started
with "sitesync run". Every pair outcome is recorded and can be inspected
with "sitesync jobs" and "sitesync audit".`,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configDir, "config", "", "configuration directory (default ~/.sitesync)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVar(&logFormat, "log-format", "text", "log format: text or json")
	flags.StringVarP(&outputFormat, "output", "o", formatText, "output format: text, json or yaml")
}

// SetBootstrap registers the function that builds services on first use.
func SetBootstrap(b Bootstrap) {
	bootstrap = b
}

// SetServices injects services directly.
func SetServices(s *Services) {
	if s == nil {
		s = &Services{}
	}
	syncService = s.Sync
	dispatcher = s.Dispatcher
	scheduler = s.Scheduler
	configStore = s.Config
	policyWatcher = s.Watcher
	closeServices = s.Close
}

// Execute runs the root command.
func Execute(v string) error {
	if v != "" {
		version = v
	}
	err := rootCmd.Execute()
	if cerr := Close(); err == nil {
		err = cerr
	}
	return err
}

// Close releases the services built by the bootstrap.
func Close() error {
	if closeServices == nil {
		return nil
	}
	fn := closeServices
	closeServices = nil
	return fn()
}

func setup(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)
	if err := logger.SetFormat(logFormat); err != nil {
		return err
	}
	if err := validateFormat(outputFormat); err != nil {
		return err
	}

	if cmd.Annotations[skipServices] == "true" || bootstrap == nil || syncService != nil {
		return nil
	}

	s, err := bootstrap(cmd.Context(), configDir)
	if err != nil {
		return fmt.Errorf("start up: %w", err)
	}
	SetServices(s)
	return nil
}

func teardown(_ *cobra.Command, _ []string) error {
	return Close()
}

var errNoSyncService = errors.New("sync service not configured")
