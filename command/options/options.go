package options

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"cost-dashboard/command/app"
)

// Command returns the options subcommand, which runs the bootstrap query and
// prints the filter options as JSON.
func Command(a *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "options",
		Short: "Print the available filter options and date bounds",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.Open(cmd.Context()); err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(a.Service.FilterOptions())
		},
	}
}
