package cloudspending

import (
	"fmt"
	"slices"
	"strings"

	cerrors "cost-dashboard/internal/errors"
)

// Environment is a canonical environment tag
type Environment string

const (
	DevTst Environment = "devtst"
	Acc    Environment = "acc"
	Prd    Environment = "prd"
)

// All is the sentinel selection that disables the application and cluster filters.
const All = "all"

// rawEnvironments maps each canonical tag to the raw values found in the data.
var rawEnvironments = map[Environment][]string{
	DevTst: {"dev", "tst", "devtst", "devtest"},
	Acc:    {"acc"},
	Prd:    {"prd"},
}

// CanonicalEnvironments returns the fixed environment list in display order.
func CanonicalEnvironments() []Environment {
	return []Environment{DevTst, Acc, Prd}
}

// RawValues returns the raw environment strings matched by e.
func (e Environment) RawValues() []string {
	return append([]string(nil), rawEnvironments[e]...)
}

// ParseEnvironment parses a canonical tag, case-insensitively.
func ParseEnvironment(s string) (Environment, bool) {
	e := Environment(strings.ToLower(strings.TrimSpace(s)))
	_, ok := rawEnvironments[e]
	return e, ok
}

// NormalizeEnvironment maps a raw environment value onto its canonical tag.
func NormalizeEnvironment(raw string) (Environment, bool) {
	for _, e := range CanonicalEnvironments() {
		if slices.Contains(e.RawValues(), raw) {
			return e, true
		}
	}
	return "", false
}

// ParseEnvironments parses a selection of canonical tags, dropping duplicates.
func ParseEnvironments(values []string) ([]Environment, error) {
	out := make([]Environment, 0, len(values))
	for _, v := range values {
		e, ok := ParseEnvironment(v)
		if !ok {
			return nil, cerrors.Input(fmt.Sprintf("unknown environment %q", v))
		}
		if !slices.Contains(out, e) {
			out = append(out, e)
		}
	}
	return out, nil
}
