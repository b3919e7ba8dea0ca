package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaiso/agentflow/internal/orchestrator"
)

// NewRemoteCmd создаёт группу команд для работы с agentflow-server через HTTP API.
func NewRemoteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Manage runs on an agentflow server",
	}

	cmd.AddCommand(
		newRemoteValidateCmd(clientFn, outputFn),
		newRemoteStartCmd(clientFn, outputFn),
		newRemoteListCmd(clientFn, outputFn),
		newRemoteShowCmd(clientFn, outputFn),
		newRemoteResumeCmd(clientFn, outputFn),
		newRemoteGraphCmd(clientFn, outputFn),
		newRemoteHistoryCmd(clientFn, outputFn),
	)

	return cmd
}

func newRemoteValidateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a workflow definition on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			result, err := clientFn().Validate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if out.JSONMode() {
				out.JSON(result)
			}
			if !result.Valid {
				for _, msg := range result.Errors {
					out.Error(msg)
				}
				return &ExitError{Code: orchestrator.ExitValidation}
			}
			if !out.JSONMode() {
				out.Success("Workflow is valid")
			}
			return nil
		},
	}
}

func newRemoteStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var inputs []string
	var async bool

	cmd := &cobra.Command{
		Use:   "start FILE",
		Short: "Start a run on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			input, err := parseInputs(inputs)
			if err != nil {
				return inputError(out, err)
			}

			if async {
				run, err := client.SubmitRun(cmd.Context(), args[0], input)
				if err != nil {
					return err
				}
				out.Success(fmt.Sprintf("Run submitted: %s", run.RunID))
				printRuns(out, []RunSummary{*run}, run)
				return nil
			}

			report, err := client.StartRun(cmd.Context(), args[0], input)
			if err != nil {
				return err
			}
			out.Report(report)
			return reportExit(report)
		},
	}

	cmd.Flags().StringSliceVar(&inputs, "input", nil, "Input values as KEY=VALUE (repeatable)")
	cmd.Flags().BoolVar(&async, "async", false, "Return immediately without waiting for the run")

	return cmd
}

func newRemoteListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			runs, err := clientFn().ListRuns(cmd.Context(), status)
			if err != nil {
				return err
			}
			printRuns(out, runs, runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (running, paused, completed, failed)")

	return cmd
}

func newRemoteShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show a run report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := clientFn().GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			outputFn().Report(report)
			return nil
		},
	}
}

func newRemoteResumeCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var taskID string
	var inputs []string

	cmd := &cobra.Command{
		Use:   "resume RUN_ID [ANSWER]",
		Short: "Answer a paused task and continue the run",
		Long: `Answer a paused task and continue the run.

ANSWER is passed to the task as input.answer. Additional task inputs
can be supplied with --input.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			input, err := parseInputs(inputs)
			if err != nil {
				return inputError(out, err)
			}
			if len(args) == 2 {
				if input == nil {
					input = make(map[string]any)
				}
				input["answer"] = parseValue(args[1])
			}

			report, err := clientFn().ResumeRun(cmd.Context(), args[0], taskID, input)
			if err != nil {
				return err
			}
			out.Report(report)
			return reportExit(report)
		},
	}

	cmd.Flags().StringVar(&taskID, "task", "", "ID of the task awaiting input (required)")
	cmd.Flags().StringSliceVar(&inputs, "input", nil, "Task input values as KEY=VALUE (repeatable)")
	_ = cmd.MarkFlagRequired("task")

	return cmd
}

func newRemoteGraphCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "graph RUN_ID",
		Short: "Export the graph of a run with task statuses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := clientFn().RunGraph(cmd.Context(), args[0], format)
			if err != nil {
				return err
			}
			_, err = outputFn().Writer().Write(data)
			return err
		},
	}

	cmd.Flags().StringVar(&format, "format", "dot", "Output format (dot, json)")

	return cmd
}

func newRemoteHistoryCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts HistoryOpts

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived run reports on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			items, err := clientFn().ListHistory(cmd.Context(), opts)
			if err != nil {
				return err
			}

			headers := []string{"RUN_ID", "WORKFLOW", "STATUS", "EXIT", "DURATION_MS", "SAVED"}
			rows := make([][]string, len(items))
			for i, h := range items {
				rows[i] = []string{h.RunID, h.WorkflowID, h.Status, strconv.Itoa(h.ExitCode), strconv.FormatInt(h.DurationMs, 10), h.SavedAt}
			}
			out.Print(headers, rows, items)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.WorkflowID, "workflow", "", "Filter by workflow ID")
	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of results")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Number of results to skip")

	return cmd
}

func printRuns(out *Output, runs []RunSummary, jsonData any) {
	headers := []string{"RUN_ID", "WORKFLOW", "STATUS", "EXIT", "STARTED"}
	rows := make([][]string, len(runs))
	for i, r := range runs {
		rows[i] = []string{r.RunID, r.WorkflowID, r.Status, strconv.Itoa(r.ExitCode), r.StartedAt}
	}
	out.Print(headers, rows, jsonData)
}
