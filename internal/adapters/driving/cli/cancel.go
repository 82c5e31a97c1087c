package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sitesync/internal/core/domain"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a sync job",
	Long: `Cancels a queued job, or asks a running job to stop after the pair in
progress. Pairs already written are not rolled back.`,
	Args: cobra.ExactArgs(1),
	RunE: runCancel,
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}

func runCancel(cmd *cobra.Command, args []string) error {
	if syncService == nil {
		return errNoSyncService
	}

	jobID := args[0]
	job, err := syncService.Cancel(cmd.Context(), jobID)
	switch {
	case errors.Is(err, domain.ErrJobTerminal):
		return fmt.Errorf("job %s has already finished", jobID)
	case err != nil:
		return fmt.Errorf("cancel job: %w", err)
	}

	if outputFormat != formatText {
		return render(cmd, newJobView(job), nil)
	}
	if job.Status == domain.JobCancelled {
		cmd.Printf("Job %s cancelled.\n", jobID)
	} else {
		cmd.Printf("Cancellation requested for job %s; it stops after the current pair.\n", jobID)
	}
	return nil
}
