package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sitesync/internal/core/domain"
)

var (
	jobsStatus []string
	jobsSource string
	jobsLimit  int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect sync jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sync jobs",
	Long: `Lists sync jobs, most recent first, with a per-status summary.

Examples:
  sitesync jobs list
  sitesync jobs list --status failed_retryable,dead_letter
  sitesync jobs list --source main --limit 5`,
	Args: cobra.NoArgs,
	RunE: runJobsList,
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show a job and its pair records",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsShow,
}

func init() {
	jobsListCmd.Flags().StringSliceVar(&jobsStatus, "status", nil, "only jobs in these statuses")
	jobsListCmd.Flags().StringVar(&jobsSource, "source", "", "only jobs from this source site")
	jobsListCmd.Flags().IntVar(&jobsLimit, "limit", 20, "maximum jobs to list (0 = all)")
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsShowCmd)
	rootCmd.AddCommand(jobsCmd)
}

type jobListView struct {
	Counts map[string]int `json:"counts" yaml:"counts"`
	Jobs   []jobView      `json:"jobs" yaml:"jobs"`
}

func runJobsList(cmd *cobra.Command, _ []string) error {
	if syncService == nil {
		return errNoSyncService
	}

	filter := domain.JobFilter{SourceSiteID: jobsSource, Limit: jobsLimit}
	for _, s := range jobsStatus {
		status := domain.JobStatus(strings.TrimSpace(s))
		if !status.Valid() {
			return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, s)
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	jobs, err := syncService.Jobs(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	view := jobListView{Counts: countStatuses(jobs), Jobs: make([]jobView, 0, len(jobs))}
	for i := range jobs {
		view.Jobs = append(view.Jobs, newJobView(&jobs[i]))
	}

	return render(cmd, view, func(w io.Writer, st styles) {
		if len(jobs) == 0 {
			fmt.Fprintln(w, "No jobs found.")
			return
		}
		t := newTable(st, "ID", "STATUS", "SOURCE", "TARGETS", "SELECTOR", "ATTEMPTS", "CREATED", "LAST ERROR")
		for i := range jobs {
			j := &jobs[i]
			t.Row(j.ID, st.status(j.Status), j.SourceSiteID, strings.Join(j.TargetSiteIDs, ","),
				j.Selector.String(), fmt.Sprint(j.Attempts), formatTime(j.CreatedAt), orDash(truncate(j.LastError, 40)))
		}
		fmt.Fprintln(w, t.Render())
		fmt.Fprintf(w, "%s %s\n", st.heading("Summary:"), summary(st, view.Counts))
	})
}

func runJobsShow(cmd *cobra.Command, args []string) error {
	if syncService == nil {
		return errNoSyncService
	}

	report, err := syncService.Job(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}
	return renderReport(cmd, report)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
