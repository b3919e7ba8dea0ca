package cli

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/agentflow/internal/orchestrator"
	"github.com/shaiso/agentflow/internal/runs"
)

// NewRunCmd создаёт команду выполнения workflow в процессе CLI.
//
// Если run остановился на task, ожидающем ввода, ответы берутся
// из --answer, а с --interactive запрашиваются из stdin.
// Код выхода процесса — код выхода отчёта.
func NewRunCmd(appFn AppFunc, outputFn func() *Output, stdin io.Reader) *cobra.Command {
	var inputs []string
	var inputFile string
	var answers []string
	var interactive bool

	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Execute a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			def, err := loadDefinition(out, args[0])
			if err != nil {
				return err
			}

			input, err := parseInputs(inputs)
			if err != nil {
				return inputError(out, err)
			}
			if inputFile != "" {
				base, err := loadInputFile(inputFile)
				if err != nil {
					return inputError(out, err)
				}
				input = mergeInputs(base, input)
			}

			answerSet, err := parseAnswers(answers)
			if err != nil {
				return inputError(out, err)
			}

			a, err := openApp(ctx, appFn)
			if err != nil {
				return err
			}
			defer a.Close()

			run, err := a.Runs.Prepare(def)
			if err != nil {
				return reportValidation(out, err)
			}

			report, err := a.Runs.Execute(ctx, run, input)
			if err != nil {
				if report != nil {
					out.Report(report)
				}
				return err
			}

			var prompter *bufio.Reader
			if interactive {
				prompter = bufio.NewReader(stdin)
			}
			report, err = answerQuestions(cmd, a.Runs, run, report, answerSet, prompter, out)
			if err != nil {
				return err
			}

			out.Report(report)
			return reportExit(report)
		},
	}

	cmd.Flags().StringSliceVar(&inputs, "input", nil, "Input values as KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&inputFile, "input-file", "", "JSON or YAML file with input values")
	cmd.Flags().StringArrayVar(&answers, "answer", nil, "Answer for a paused task as TASK=VALUE or TASK.KEY=VALUE (repeatable)")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Prompt on stdin for unanswered questions")

	return cmd
}

// answerQuestions продолжает run, пока есть ответы на вопросы ожидающих tasks.
// Каждый ответ используется один раз.
func answerQuestions(
	cmd *cobra.Command,
	manager *runs.Manager,
	run *runs.Run,
	report *orchestrator.Report,
	answers map[string]map[string]any,
	prompter *bufio.Reader,
	out *Output,
) (*orchestrator.Report, error) {
	for report.Paused() {
		taskID, input, ok := nextAnswer(report, answers, prompter, out)
		if !ok {
			return report, nil
		}

		var err error
		report, err = manager.Resume(cmd.Context(), run.ID(), taskID, input)
		if err != nil {
			return nil, err
		}
	}
	return report, nil
}

func nextAnswer(
	report *orchestrator.Report,
	answers map[string]map[string]any,
	prompter *bufio.Reader,
	out *Output,
) (string, map[string]any, bool) {
	ids := make([]string, 0, len(report.Questions))
	for id := range report.Questions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if input, ok := answers[id]; ok {
			delete(answers, id)
			return id, input, true
		}
	}

	if prompter == nil || len(ids) == 0 {
		return "", nil, false
	}

	id := ids[0]
	fmt.Fprintf(out.errW, "%s: %s\n> ", id, report.Questions[id])
	line, err := prompter.ReadString('\n')
	line = strings.TrimSpace(line)
	if err != nil && line == "" {
		return "", nil, false
	}
	return id, map[string]any{"answer": line}, true
}
