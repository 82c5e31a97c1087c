package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sitesync/internal/core/domain"
	"github.com/custodia-labs/sitesync/internal/core/ports/driving"
)

// pollInterval is how often --wait checks job progress.
var pollInterval = 500 * time.Millisecond

var (
	syncFrom    string
	syncTo      []string
	syncWait    bool
	syncTimeout time.Duration
)

var syncCmd = &cobra.Command{
	Use:   "sync <selector>",
	Short: "Queue a sync from a source site to target sites",
	Long: `Queues a sync job replicating the selected content from the source site
to each target site.

Selectors:
  article:*                every article
  page:category=news       pages in a category
  article:12,15,19         specific ids
  config:site-settings     a single entity

The job is processed by the workers of "sitesync run". Use --wait to follow
it until it finishes.`,
	Args: cobra.ExactArgs(1),
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncFrom, "from", "", "source site id")
	syncCmd.Flags().StringSliceVar(&syncTo, "to", nil, "target site ids (comma separated or repeated)")
	syncCmd.Flags().BoolVar(&syncWait, "wait", false, "wait for the job to finish")
	syncCmd.Flags().DurationVar(&syncTimeout, "timeout", 0, "give up waiting after this long (0 = no limit)")
	_ = syncCmd.MarkFlagRequired("from")
	_ = syncCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	if syncService == nil {
		return errNoSyncService
	}

	selector, err := domain.ParseSelector(args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	jobID, err := syncService.EnqueueSync(ctx, driving.EnqueueRequest{
		SourceSiteID:  syncFrom,
		TargetSiteIDs: syncTo,
		Selector:      selector,
	})
	if err != nil {
		return fmt.Errorf("enqueue sync: %w", err)
	}

	if !syncWait {
		if outputFormat != formatText {
			return render(cmd, map[string]string{"job_id": jobID}, nil)
		}
		cmd.Printf("Queued job %s: %s from %s to %s\n",
			jobID, selector, syncFrom, strings.Join(syncTo, ", "))
		return nil
	}

	if outputFormat == formatText {
		cmd.Printf("Queued job %s, waiting for workers...\n", jobID)
	}

	if syncTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, syncTimeout)
		defer cancel()
	}

	report, err := waitForJob(ctx, cmd, syncService, jobID)
	if err != nil {
		return err
	}
	if err := renderReport(cmd, report); err != nil {
		return err
	}
	if report.Job.Status != domain.JobCompleted {
		return fmt.Errorf("job %s finished as %s", jobID, report.Job.Status)
	}
	return nil
}

// waitForJob polls the job until it reaches a terminal status, printing
// status changes in text mode.
func waitForJob(
	ctx context.Context,
	cmd *cobra.Command,
	svc driving.SyncService,
	jobID string,
) (*driving.JobReport, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var last domain.JobStatus
	for {
		report, err := svc.Job(ctx, jobID)
		if err != nil {
			return nil, fmt.Errorf("job status: %w", err)
		}
		if report.Job.Status != last && outputFormat == formatText {
			cmd.Printf("  %s (%d records)\n", report.Job.Status, len(report.Records))
			last = report.Job.Status
		}
		if report.Job.Status.IsTerminal() {
			return report, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for job %s: %w", jobID, ctx.Err())
		case <-ticker.C:
		}
	}
}

type reportView struct {
	Job     jobView        `json:"job" yaml:"job"`
	Counts  map[string]int `json:"counts" yaml:"counts"`
	Records []recordView   `json:"records" yaml:"records"`
}

func newReportView(r *driving.JobReport) reportView {
	v := reportView{
		Job:     newJobView(&r.Job),
		Counts:  make(map[string]int),
		Records: make([]recordView, 0, len(r.Records)),
	}
	for o, n := range r.Counts() {
		v.Counts[string(o)] = n
	}
	for i := range r.Records {
		v.Records = append(v.Records, newRecordView(&r.Records[i]))
	}
	return v
}

// renderReport prints a job with its records.
func renderReport(cmd *cobra.Command, r *driving.JobReport) error {
	return render(cmd, newReportView(r), func(w io.Writer, st styles) {
		j := &r.Job
		fmt.Fprintf(w, "%s %s\n", st.heading("Job"), j.ID)
		fmt.Fprintf(w, "  Status:    %s\n", st.status(j.Status))
		fmt.Fprintf(w, "  Source:    %s\n", j.SourceSiteID)
		fmt.Fprintf(w, "  Targets:   %s\n", strings.Join(j.TargetSiteIDs, ", "))
		fmt.Fprintf(w, "  Selector:  %s\n", j.Selector)
		fmt.Fprintf(w, "  Attempts:  %d\n", j.Attempts)
		fmt.Fprintf(w, "  Created:   %s\n", formatTime(j.CreatedAt))
		fmt.Fprintf(w, "  Finished:  %s\n", formatTime(j.FinishedAt))
		if j.LastError != "" {
			fmt.Fprintf(w, "  Error:     %s\n", st.paint(st.failure, j.LastError))
		}
		if j.CancelRequested && !j.Status.IsTerminal() {
			fmt.Fprintln(w, "  Cancellation requested")
		}

		counts := r.Counts()
		fmt.Fprintf(w, "  Records:   %d success, %d skipped, %d failed\n",
			counts[domain.OutcomeSuccess], counts[domain.OutcomeSkipped], counts[domain.OutcomeFailed])
		if len(r.Records) == 0 {
			return
		}

		t := newTable(st, "TARGET", "UNIT", "OUTCOME", "REV", "TARGET ID", "DETAIL")
		for i := range r.Records {
			rec := &r.Records[i]
			t.Row(rec.TargetSiteID, rec.UnitKey.String(), st.outcome(rec.Outcome),
				fmt.Sprint(rec.AppliedRevision), orDash(rec.TargetID), orDash(rec.Detail))
		}
		fmt.Fprintln(w, t.Render())
	})
}
