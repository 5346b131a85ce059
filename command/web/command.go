package web

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cost-dashboard/command/app"
)

// Command returns the web subcommand.
//
// Usage:
//
//	costdash web [--addr :8080] [--ui ./ui/dist]
func Command(a *app.App) *cobra.Command {
	var addr, uiDir string
	cmd := &cobra.Command{
		Use:   "web",
		Short: "Serve the cost dashboard API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := a.Open(ctx); err != nil {
				return err
			}
			if !cmd.Flags().Changed("addr") && a.Config.Web.Addr != "" {
				addr = a.Config.Web.Addr
			}
			if !cmd.Flags().Changed("ui") && a.Config.Web.UI != "" {
				uiDir = a.Config.Web.UI
			}

			e := New(Options{
				Service:  a.Service,
				Health:   a.DB,
				Registry: a.Registry,
				Logger:   a.Logger,
				UIDir:    uiDir,
			})
			return Run(ctx, e, addr, a.Logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "http listen address (host:port)")
	cmd.Flags().StringVar(&uiDir, "ui", "./ui/dist", "directory containing built UI (Vite dist)")
	return cmd
}
