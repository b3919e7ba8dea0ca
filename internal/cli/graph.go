package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/agentflow/internal/graph"
)

// NewGraphCmd создаёт команду экспорта графа определения.
//
// Граф строится по определению без запуска, поэтому статусов у узлов нет.
func NewGraphCmd(outputFn func() *Output) *cobra.Command {
	var format string
	var outputPath string

	cmd := &cobra.Command{
		Use:   "graph FILE",
		Short: "Export the task graph of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			if out.JSONMode() && !cmd.Flags().Changed("format") {
				format = graph.FormatJSON
			}
			renderer, err := graph.RendererFor(format)
			if err != nil {
				return err
			}

			def, err := loadDefinition(out, args[0])
			if err != nil {
				return err
			}

			var w io.Writer = out.Writer()
			if outputPath != "" {
				f, err := os.Create(outputPath)
				if err != nil {
					return fmt.Errorf("create output file: %w", err)
				}
				defer f.Close()
				w = f
			}

			if err := renderer.Render(w, graph.ExportDefinition(def)); err != nil {
				return fmt.Errorf("render graph: %w", err)
			}
			if outputPath != "" {
				out.Success(fmt.Sprintf("Graph written to %s", outputPath))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", graph.FormatDOT, "Output format (dot, json)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write to file instead of stdout")

	return cmd
}
