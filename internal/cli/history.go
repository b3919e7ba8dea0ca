package cli

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/agentflow/internal/domain"
	"github.com/shaiso/agentflow/internal/repo"
)

// ErrNoArchive — архив отчётов не настроен.
var ErrNoArchive = errors.New("report archive is not configured (set db.url)")

// NewHistoryCmd создаёт группу команд для архива отчётов.
func NewHistoryCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	var workflowID string
	var status string
	var limit int
	var offset int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived run reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			a, err := openApp(cmd.Context(), appFn)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Reports == nil {
				return ErrNoArchive
			}

			items, err := a.Reports.List(cmd.Context(), repo.ReportFilter{
				WorkflowID: workflowID,
				Status:     domain.WorkflowStatus(status),
				Limit:      limit,
				Offset:     offset,
			})
			if err != nil {
				return err
			}

			headers := []string{"RUN_ID", "WORKFLOW", "STATUS", "EXIT", "DURATION", "SAVED"}
			rows := make([][]string, len(items))
			for i, r := range items {
				rows[i] = []string{
					r.RunID.String(),
					r.WorkflowID,
					string(r.Status),
					strconv.Itoa(r.ExitCode),
					(time.Duration(r.DurationMs) * time.Millisecond).String(),
					r.SavedAt.Format(time.RFC3339),
				}
			}

			out.Print(headers, rows, items)
			return nil
		},
	}

	cmd.Flags().StringVar(&workflowID, "workflow", "", "Filter by workflow ID")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (completed, failed, paused)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of results to skip")

	cmd.AddCommand(newHistoryShowCmd(appFn, outputFn))

	return cmd
}

func newHistoryShowCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show an archived run report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			runID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid run id %q: %w", args[0], err)
			}

			a, err := openApp(cmd.Context(), appFn)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Reports == nil {
				return ErrNoArchive
			}

			report, err := a.Reports.Get(cmd.Context(), runID)
			if err != nil {
				return err
			}
			out.Report(report)
			return nil
		},
	}
}
