package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "List registered sites",
	Args:  cobra.NoArgs,
	RunE:  runSites,
}

func init() {
	rootCmd.AddCommand(sitesCmd)
}

func runSites(cmd *cobra.Command, _ []string) error {
	if syncService == nil {
		return errNoSyncService
	}

	sites, err := syncService.Sites(cmd.Context())
	if err != nil {
		return fmt.Errorf("list sites: %w", err)
	}

	views := make([]siteView, 0, len(sites))
	for i := range sites {
		views = append(views, newSiteView(&sites[i]))
	}

	return render(cmd, views, func(w io.Writer, st styles) {
		if len(sites) == 0 {
			fmt.Fprintln(w, "No sites registered. Add [[sites]] to config.toml.")
			return
		}
		t := newTable(st, "ID", "NAME", "DRIVER", "KINDS")
		for _, v := range views {
			kinds := "all"
			if len(v.Kinds) > 0 {
				kinds = strings.Join(v.Kinds, ",")
			}
			t.Row(v.ID, orDash(v.Name), v.Driver, kinds)
		}
		fmt.Fprintln(w, t.Render())
	})
}
