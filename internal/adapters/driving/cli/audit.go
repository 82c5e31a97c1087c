package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sitesync/internal/core/domain"
)

var (
	auditJob    string
	auditEvents []string
	auditLimit  int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the audit log",
	Long: `Shows audit log entries in the order they were written. With --limit
only the most recent entries are shown.

Events: enqueued, pair, retry, completed, dead_letter, cancelled.`,
	Args: cobra.NoArgs,
	RunE: runAudit,
}

func init() {
	auditCmd.Flags().StringVar(&auditJob, "job", "", "only entries for this job")
	auditCmd.Flags().StringSliceVar(&auditEvents, "event", nil, "only these events")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "maximum entries (0 = all)")
	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, _ []string) error {
	if syncService == nil {
		return errNoSyncService
	}

	filter := domain.AuditFilter{JobID: auditJob, Limit: auditLimit}
	for _, e := range auditEvents {
		filter.Events = append(filter.Events, domain.AuditEvent(strings.TrimSpace(e)))
	}

	entries, err := syncService.Audit(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}

	views := make([]auditView, 0, len(entries))
	for i := range entries {
		views = append(views, newAuditView(&entries[i]))
	}

	return render(cmd, views, func(w io.Writer, st styles) {
		if len(entries) == 0 {
			fmt.Fprintln(w, "No audit entries.")
			return
		}
		t := newTable(st, "SEQ", "TIME", "JOB", "EVENT", "TARGET", "UNIT", "OUTCOME", "MESSAGE")
		for i := range entries {
			e := &entries[i]
			t.Row(fmt.Sprint(e.Seq), formatTime(e.At), e.JobID, string(e.Event),
				orDash(e.TargetSiteID), orDash(e.UnitKey.String()), st.outcome(e.Outcome), orDash(e.Message))
		}
		fmt.Fprintln(w, t.Render())
	})
}
