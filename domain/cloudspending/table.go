package cloudspending

import (
	"fmt"
	"sort"
	"strings"

	lo "github.com/samber/lo"

	cerrors "cost-dashboard/internal/errors"
)

// TableColumn names a sortable column of the cost table
type TableColumn string

const (
	ColumnCost          TableColumn = "cost"
	ColumnResourceGroup TableColumn = "resource_group"
	ColumnApplication   TableColumn = "application"
)

const (
	// DefaultPageSize matches the page size of the dashboard table.
	DefaultPageSize = 10
	// MaxPageSize caps the rows returned in one page.
	MaxPageSize = 1000
)

// TableQuery selects the ordering and page of the cost table.
type TableQuery struct {
	SortBy   TableColumn
	Desc     bool
	Page     int // 1-based
	PageSize int
}

// CostTable is one page of the resource group / application cost table.
type CostTable struct {
	Rows       []ResourceGroupCost `json:"rows"`
	TotalRows  int                 `json:"total_rows"`
	Page       int                 `json:"page"`
	PageSize   int                 `json:"page_size"`
	PageCount  int                 `json:"page_count"`
	SortBy     TableColumn         `json:"sort_by"`
	Descending bool                `json:"descending"`
	Degraded   bool                `json:"degraded"`
}

// ParseTableColumn validates a column name; "" selects cost.
func ParseTableColumn(s string) (TableColumn, error) {
	switch c := TableColumn(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return ColumnCost, nil
	case ColumnCost, ColumnResourceGroup, ColumnApplication:
		return c, nil
	default:
		return "", cerrors.Input(fmt.Sprintf("unknown table column %q", s))
	}
}

// SortTable returns a stably sorted copy of rows.
func SortTable(rows []ResourceGroupCost, by TableColumn, desc bool) []ResourceGroupCost {
	out := append([]ResourceGroupCost(nil), rows...)
	less := func(a, b ResourceGroupCost) bool {
		switch by {
		case ColumnResourceGroup:
			return a.ResourceGroup < b.ResourceGroup
		case ColumnApplication:
			return a.Application < b.Application
		default:
			return a.Cost.LessThan(b.Cost)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if desc {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})
	return out
}

// BuildTable sorts rows and cuts the requested page. Out of range pages are
// empty; page sizes above MaxPageSize are clamped.
func BuildTable(rows []ResourceGroupCost, q TableQuery) CostTable {
	if q.SortBy == "" {
		q.SortBy = ColumnCost
	}
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	q.PageSize = min(q.PageSize, MaxPageSize)
	if q.Page <= 0 {
		q.Page = 1
	}

	sorted := SortTable(rows, q.SortBy, q.Desc)
	pageCount := (len(sorted) + q.PageSize - 1) / q.PageSize
	page := []ResourceGroupCost{}
	if q.Page <= pageCount {
		start := (q.Page - 1) * q.PageSize
		page = append(page, lo.Slice(sorted, start, start+q.PageSize)...)
	}

	return CostTable{
		Rows:       page,
		TotalRows:  len(sorted),
		Page:       q.Page,
		PageSize:   q.PageSize,
		PageCount:  pageCount,
		SortBy:     q.SortBy,
		Descending: q.Desc,
	}
}
