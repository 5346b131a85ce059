package csv

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"

	"cost-dashboard/domain/cloudspending"
)

var costTableHeader = []string{"resource_group", "application", "cost"}

// WriteCostTable writes the resource group / application costs with a header row.
// Costs are written with two decimals and no grouping.
func WriteCostTable(out io.Writer, rows []cloudspending.ResourceGroupCost) error {
	w := csv.NewWriter(out)
	if err := w.Write(costTableHeader); err != nil {
		return err
	}
	for _, r := range rows {
		row := []string{r.ResourceGroup, r.Application, r.Cost.StringFixed(2)}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// WriteCostTableFile writes the cost table to path, creating parent directories.
func WriteCostTableFile(path string, rows []cloudspending.ResourceGroupCost) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := WriteCostTable(f, rows); err != nil {
		return err
	}
	return f.Close()
}
