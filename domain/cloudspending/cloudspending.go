package cloudspending

import (
	"time"

	"github.com/shopspring/decimal"
)

// CostRecord represents a single billing row of the costs table.
// NULL strings in the store are read as "", a NULL date as the zero time.
type CostRecord struct {
	ID             int64     `json:"id"`
	Cost           float64   `json:"cost"`
	Date           time.Time `json:"date"` // UTC midnight
	Service        string    `json:"service"`
	ResourceGroup  string    `json:"resource_group"`
	Currency       string    `json:"currency"`
	SubscriptionID string    `json:"subscription_id"`
	Subscription   string    `json:"subscription"`
	Application    string    `json:"application"`
	Environment    string    `json:"environment"`
	Cluster        string    `json:"cluster"`
}

// FilterSpec is the set of constraints driving one aggregation.
type FilterSpec struct {
	Start        time.Time
	End          time.Time
	Environments []Environment
	Applications []string
	Clusters     []string
}

// ApplicationCost is the summed cost of one application
type ApplicationCost struct {
	Application string          `json:"application"`
	Cost        decimal.Decimal `json:"cost"`
}

// ResourceGroupCost is the summed cost of one (resource group, application) pair
type ResourceGroupCost struct {
	ResourceGroup string          `json:"resource_group"`
	Application   string          `json:"application"`
	Cost          decimal.Decimal `json:"cost"`
}

// AggregateResult is the computed summary for one FilterSpec. It is never
// mutated after Aggregate returns it.
type AggregateResult struct {
	TotalCost                  decimal.Decimal     `json:"total_cost"`
	TotalBudget                decimal.Decimal     `json:"total_budget"`
	ApplicationCount           int                 `json:"application_count"`
	ByApplication              []ApplicationCost   `json:"by_application"`
	ByResourceGroupApplication []ResourceGroupCost `json:"by_resource_group_application"`
	// Degraded is set when the records could not be fetched and zeros are shown instead.
	Degraded bool `json:"degraded"`
}

// FilterOptions is the option universe and date bounds shown in filter controls.
type FilterOptions struct {
	Applications []string      `json:"applications"`
	Clusters     []string      `json:"clusters"`
	Environments []Environment `json:"environments"`
	MinDate      *time.Time    `json:"min_date"`
	MaxDate      *time.Time    `json:"max_date"`
	Degraded     bool          `json:"degraded"`
}

// EmptyFilterOptions is the degraded bootstrap value.
func EmptyFilterOptions() FilterOptions {
	return FilterOptions{
		Applications: []string{},
		Clusters:     []string{},
		Environments: CanonicalEnvironments(),
		Degraded:     true,
	}
}
