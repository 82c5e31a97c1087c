package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sitesync/internal/core/domain"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the site network and summarise jobs",
	Long: `Checks that the site network can be synced (at least two registered
sites) and summarises jobs by status. Exits non-zero when the
environment is incompatible.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type statusView struct {
	Compatible bool           `json:"compatible" yaml:"compatible"`
	Problem    string         `json:"problem,omitempty" yaml:"problem,omitempty"`
	Sites      int            `json:"sites" yaml:"sites"`
	Jobs       map[string]int `json:"jobs" yaml:"jobs"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	if syncService == nil {
		return errNoSyncService
	}

	ctx := cmd.Context()
	envErr := syncService.CheckEnvironment(ctx)

	sites, err := syncService.Sites(ctx)
	if err != nil {
		return fmt.Errorf("list sites: %w", err)
	}
	jobs, err := syncService.Jobs(ctx, domain.JobFilter{})
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	view := statusView{
		Compatible: envErr == nil,
		Sites:      len(sites),
		Jobs:       countStatuses(jobs),
	}
	if envErr != nil {
		view.Problem = envErr.Error()
	}

	err = render(cmd, view, func(w io.Writer, st styles) {
		env := st.paint(st.success, "ok")
		if envErr != nil {
			env = st.paint(st.failure, "incompatible") + " (" + envErr.Error() + ")"
		}
		fmt.Fprintf(w, "%s %s\n", st.heading("Environment:"), env)
		fmt.Fprintf(w, "%s %d\n", st.heading("Sites:"), view.Sites)
		fmt.Fprintf(w, "%s %s\n", st.heading("Jobs:"), summary(st, view.Jobs))
	})
	if err != nil {
		return err
	}
	return envErr
}
