// Command sitesync synchronises content across a network of sites.
package main

import (
	"context"
	"os"

	"github.com/custodia-labs/sitesync/internal/adapters/driving/cli"
	"github.com/custodia-labs/sitesync/internal/app"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cli.SetBootstrap(func(ctx context.Context, configDir string) (*cli.Services, error) {
		a, err := app.New(ctx, configDir)
		if err != nil {
			return nil, err
		}
		return &cli.Services{
			Sync:       a.Sync,
			Dispatcher: a.Dispatcher,
			Scheduler:  a.Scheduler,
			Config:     a.Config,
			Watcher:    a.Watcher,
			Close:      a.Close,
		}, nil
	})

	if err := cli.Execute(version); err != nil {
		os.Exit(1)
	}
}
