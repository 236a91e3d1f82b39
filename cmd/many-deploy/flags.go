package main

import (
	"fmt"
	"maps"
	"math/big"
	"slices"
	"strings"

	"github.com/systemstart/many-deploy/pkg/units"
)

// tokenSupplies collects -sim-token Kind=supply flags. Supplies are in
// whole tokens with 18 decimals.
type tokenSupplies map[string]*big.Int

func (t tokenSupplies) String() string {
	parts := make([]string, 0, len(t))
	for _, k := range slices.Sorted(maps.Keys(t)) {
		parts = append(parts, k+"="+units.FormatUnits(t[k], units.Ether))
	}
	return strings.Join(parts, ",")
}

func (t tokenSupplies) Set(v string) error {
	kind, supply, ok := strings.Cut(v, "=")
	if !ok || kind == "" {
		return fmt.Errorf("expected Kind=supply, got %q", v)
	}
	amount, err := units.ParseEther(supply)
	if err != nil {
		return fmt.Errorf("supply for %s: %w", kind, err)
	}
	t[kind] = amount
	return nil
}
