package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"cost-dashboard/command/app"
	costcsv "cost-dashboard/connectors/csv"
	"cost-dashboard/domain/cloudspending"
	cerrors "cost-dashboard/internal/errors"
)

// Format names a report output format
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
)

type flags struct {
	start, end string
	envs       []string
	apps       []string
	clusters   []string
	format     string
	sort       string
	desc       bool
	out        string
}

// Command returns the report subcommand: a one-shot aggregation printed to
// stdout, or written to --out for the csv format.
func Command(a *app.App) *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Aggregate costs for a filter selection",
		Long: `Aggregate the billing records matching the selected filters.

Dates default to the bounds of the data. Without --env every environment is
selected; application and cluster filters are skipped when empty or "all".

Examples:
  costdash report --start 2024-10-01 --end 2024-10-31
  costdash report --env prd,acc --app billing --format json
  costdash report --format csv --sort resource_group --desc=false --out costs.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, col, err := f.validate()
			if err != nil {
				return err
			}
			if err := a.Open(cmd.Context()); err != nil {
				return err
			}
			spec, err := f.spec(a.Service.FilterOptions(), cmd.Flags().Changed("env"))
			if err != nil {
				return err
			}
			res, err := a.Service.ComputeAggregates(cmd.Context(), spec)
			if err != nil {
				return err
			}
			rows := cloudspending.SortTable(res.ByResourceGroupApplication, col, f.desc)
			if format == FormatCSV && f.out != "" {
				return costcsv.WriteCostTableFile(f.out, rows)
			}
			return Render(cmd.OutOrStdout(), format, res, rows, a.Service.Settings().CurrencySymbol)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.start, "start", "", "first day to include (YYYY-MM-DD)")
	fl.StringVar(&f.end, "end", "", "last day to include (YYYY-MM-DD)")
	fl.StringSliceVar(&f.envs, "env", nil, "environments (devtst, acc, prd)")
	fl.StringSliceVar(&f.apps, "app", nil, "applications, or all")
	fl.StringSliceVar(&f.clusters, "cluster", nil, "clusters, or all")
	fl.StringVarP(&f.format, "format", "f", string(FormatTable), "output format (table, json, csv)")
	fl.StringVar(&f.sort, "sort", string(cloudspending.ColumnCost), "table sort column (cost, resource_group, application)")
	fl.BoolVar(&f.desc, "desc", true, "sort descending")
	fl.StringVarP(&f.out, "out", "o", "", "write the csv table to this file")
	return cmd
}

func (f flags) validate() (Format, cloudspending.TableColumn, error) {
	format := Format(strings.ToLower(f.format))
	switch format {
	case FormatTable, FormatJSON, FormatCSV:
	default:
		return "", "", cerrors.Input(fmt.Sprintf("unknown format %q", f.format))
	}
	col, err := cloudspending.ParseTableColumn(f.sort)
	if err != nil {
		return "", "", err
	}
	return format, col, nil
}

func (f flags) spec(opts cloudspending.FilterOptions, envChanged bool) (cloudspending.FilterSpec, error) {
	spec := cloudspending.FilterSpec{
		Environments: cloudspending.CanonicalEnvironments(),
		Applications: f.apps,
		Clusters:     f.clusters,
	}
	var err error
	if spec.Start, err = parseDate("start", f.start, opts.MinDate); err != nil {
		return spec, err
	}
	if spec.End, err = parseDate("end", f.end, opts.MaxDate); err != nil {
		return spec, err
	}
	if envChanged {
		if spec.Environments, err = cloudspending.ParseEnvironments(f.envs); err != nil {
			return spec, err
		}
	}
	return spec, nil
}

func parseDate(name, v string, fallback *time.Time) (time.Time, error) {
	if v == "" {
		if fallback == nil {
			return time.Time{}, nil
		}
		return *fallback, nil
	}
	t, err := time.Parse(cloudspending.DateLayout, v)
	if err != nil {
		return time.Time{}, cerrors.Input(fmt.Sprintf("--%s must be a date formatted as YYYY-MM-DD, got %q", name, v))
	}
	return t, nil
}

// Render writes the aggregate and its sorted table in the given format.
func Render(w io.Writer, format Format, res cloudspending.AggregateResult, rows []cloudspending.ResourceGroupCost, symbol string) error {
	switch format {
	case FormatJSON:
		res.ByResourceGroupApplication = rows
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case FormatCSV:
		return costcsv.WriteCostTable(w, rows)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if res.Degraded {
		fmt.Fprintln(tw, "warning: cost data unavailable, showing zeros")
	}
	fmt.Fprintf(tw, "Total cost\t%s\n", cloudspending.FormatMoney(symbol, res.TotalCost))
	fmt.Fprintf(tw, "Total budget\t%s\n", cloudspending.FormatMoney(symbol, res.TotalBudget))
	fmt.Fprintf(tw, "Applications\t%d\n", res.ApplicationCount)
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "APPLICATION\tCOST")
	for _, a := range res.ByApplication {
		fmt.Fprintf(tw, "%s\t%s\n", orDash(a.Application), cloudspending.FormatMoney(symbol, a.Cost))
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "RESOURCE GROUP\tAPPLICATION\tCOST")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", orDash(r.ResourceGroup), orDash(r.Application), cloudspending.FormatMoney(symbol, r.Cost))
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
