package cloudspending

import (
	"sort"

	lo "github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Filter returns the records matching spec, in input order.
//
// The environment filter is strict: no selected environment matches nothing.
// Application and cluster filters are skipped when their selection is empty
// or contains All. A start date after the end date matches nothing.
func Filter(records []CostRecord, spec FilterSpec) []CostRecord {
	start, end := TruncateDate(spec.Start), TruncateDate(spec.End)
	if start.After(end) {
		return []CostRecord{}
	}

	envs := toSet(spec.Environments)
	clusters, byCluster := selection(spec.Clusters)
	apps, byApp := selection(spec.Applications)

	return lo.Filter(records, func(r CostRecord, _ int) bool {
		if r.Date.IsZero() {
			return false
		}
		d := TruncateDate(r.Date)
		if d.Before(start) || d.After(end) {
			return false
		}
		env, ok := NormalizeEnvironment(r.Environment)
		if !ok {
			return false
		}
		if _, ok := envs[env]; !ok {
			return false
		}
		if byCluster {
			if _, ok := clusters[r.Cluster]; !ok {
				return false
			}
		}
		if byApp {
			if _, ok := apps[r.Application]; !ok {
				return false
			}
		}
		return true
	})
}

// Aggregate filters records by spec and summarizes the remaining rows.
func Aggregate(records []CostRecord, spec FilterSpec, budget decimal.Decimal) AggregateResult {
	return Summarize(Filter(records, spec), budget)
}

// Summarize computes totals and grouped series over already filtered records.
// Groups are sorted by cost descending; equal costs keep first-seen order.
func Summarize(records []CostRecord, budget decimal.Decimal) AggregateResult {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(decimal.NewFromFloat(r.Cost))
	}

	appKeys, appSums := groupSum(records, func(r CostRecord) string { return r.Application })
	byApp := make([]ApplicationCost, 0, len(appKeys))
	for _, k := range appKeys {
		byApp = append(byApp, ApplicationCost{Application: k, Cost: appSums[k]})
	}
	sort.SliceStable(byApp, func(i, j int) bool { return byApp[i].Cost.GreaterThan(byApp[j].Cost) })

	type rgKey struct{ resourceGroup, application string }
	rgKeys, rgSums := groupSum(records, func(r CostRecord) rgKey { return rgKey{r.ResourceGroup, r.Application} })
	byRG := make([]ResourceGroupCost, 0, len(rgKeys))
	for _, k := range rgKeys {
		byRG = append(byRG, ResourceGroupCost{ResourceGroup: k.resourceGroup, Application: k.application, Cost: rgSums[k]})
	}
	sort.SliceStable(byRG, func(i, j int) bool { return byRG[i].Cost.GreaterThan(byRG[j].Cost) })

	apps := lo.Uniq(lo.Compact(lo.Map(records, func(r CostRecord, _ int) string { return r.Application })))

	return AggregateResult{
		TotalCost:                  total,
		TotalBudget:                budget,
		ApplicationCount:           len(apps),
		ByApplication:              byApp,
		ByResourceGroupApplication: byRG,
	}
}

// groupSum sums cost per key, returning keys in first-seen order.
func groupSum[K comparable](records []CostRecord, key func(CostRecord) K) ([]K, map[K]decimal.Decimal) {
	var keys []K
	sums := make(map[K]decimal.Decimal)
	for _, r := range records {
		k := key(r)
		sum, ok := sums[k]
		if !ok {
			keys = append(keys, k)
		}
		sums[k] = sum.Add(decimal.NewFromFloat(r.Cost))
	}
	return keys, sums
}

func selection(values []string) (map[string]struct{}, bool) {
	if len(values) == 0 || lo.Contains(values, All) {
		return nil, false
	}
	return toSet(values), true
}

func toSet[T comparable](values []T) map[T]struct{} {
	return lo.SliceToMap(values, func(v T) (T, struct{}) { return v, struct{}{} })
}
