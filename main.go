package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cost-dashboard/command/app"
	cmdoptions "cost-dashboard/command/options"
	cmdreport "cost-dashboard/command/report"
	cmdweb "cost-dashboard/command/web"
)

// Cost dashboard over the Azure billing table.
// Usage:
//   costdash web [--addr :8080] [--ui ./ui/dist]
//   costdash options
//   costdash report [--start 2024-10-01] [--end 2024-10-31] [--env prd] [--format json]
// Notes:
// - Connection settings come from config.yml (or --config / CONFIG_PATH), a .env file and
//   the DB_HOST, DB_PORT, DB_NAME, DB_USER, DB_PASSWORD environment variables.

func newRootCommand(a *app.App) *cobra.Command {
	root := &cobra.Command{
		Use:           "costdash",
		Short:         "Cloud cost dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.Init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.Close()
		},
	}
	root.PersistentFlags().StringVar(&a.ConfigPath, "config", "", "config file (default is $CONFIG_PATH or ./config.yml)")
	root.PersistentFlags().BoolVarP(&a.Verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(cmdweb.Command(a))
	root.AddCommand(cmdoptions.Command(a))
	root.AddCommand(cmdreport.Command(a))
	return root
}

func main() {
	a := &app.App{}
	if err := newRootCommand(a).Execute(); err != nil {
		a.Close()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
