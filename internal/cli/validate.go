package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewValidateCmd создаёт команду проверки определения.
func NewValidateCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a workflow definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			def, err := loadDefinition(out, args[0])
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), appFn)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Runs.Validate(def); err != nil {
				if out.JSONMode() {
					out.JSON(map[string]any{"valid": false, "errors": validationMessages(err)})
				}
				return reportValidation(out, err)
			}

			if out.JSONMode() {
				out.JSON(map[string]any{"valid": true})
				return nil
			}
			out.Success(fmt.Sprintf("Workflow %s is valid (%d tasks)", def.ID, len(def.Tasks)))
			return nil
		},
	}
}
