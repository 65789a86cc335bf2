package econ

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// Currency identifies one entry of the closed currency catalog.
type Currency string

type CurrencyDef struct {
	ID      Currency
	Symbol  string
	Name    string
	Primary bool
	// Start is the balance an account reads before its first mutation.
	// Non-zero only for the primary currency in practice.
	Start decimal.Decimal
}

// Catalog is the closed set of currencies. Loaded once from config,
// never mutated at runtime.
type Catalog struct {
	order   []Currency
	defs    map[Currency]CurrencyDef
	primary Currency
}

func NewCatalog(defs []CurrencyDef) (*Catalog, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("currency catalog is empty")
	}
	c := &Catalog{defs: make(map[Currency]CurrencyDef, len(defs))}
	for _, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("currency with empty id")
		}
		if _, dup := c.defs[d.ID]; dup {
			return nil, fmt.Errorf("duplicate currency %q", d.ID)
		}
		if d.Start.IsNegative() {
			return nil, fmt.Errorf("currency %q: negative starting balance", d.ID)
		}
		d.Start = Clamp2(d.Start)
		c.defs[d.ID] = d
		c.order = append(c.order, d.ID)
		if d.Primary {
			if c.primary != "" {
				return nil, fmt.Errorf("more than one primary currency (%q, %q)", c.primary, d.ID)
			}
			c.primary = d.ID
		}
	}
	if c.primary == "" {
		return nil, fmt.Errorf("no primary currency configured")
	}
	return c, nil
}

func (c *Catalog) Primary() Currency { return c.primary }

func (c *Catalog) Lookup(id Currency) (CurrencyDef, bool) {
	d, ok := c.defs[id]
	return d, ok
}

// All returns defs in configured order.
func (c *Catalog) All() []CurrencyDef {
	out := make([]CurrencyDef, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.defs[id])
	}
	return out
}

// Start returns the default balance an absent cell reads as.
func (c *Catalog) Start(id Currency) decimal.Decimal {
	if d, ok := c.defs[id]; ok {
		return d.Start
	}
	return decimal.Zero
}

// Format renders an amount for display: "1,250.5g". Grouping works
// off the decimal's own digits; a float64 round-trip would corrupt
// balances past 2^53.
func (c *Catalog) Format(id Currency, amount decimal.Decimal) string {
	sym := string(id)
	if d, ok := c.defs[id]; ok {
		sym = d.Symbol
	}
	s := amount.String()
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	intPart, frac, _ := strings.Cut(s, ".")
	n, ok := new(big.Int).SetString(intPart, 10)
	if !ok {
		return amount.String() + sym
	}
	out := humanize.BigComma(n)
	if frac != "" {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out + sym
}

// Clamp2 rounds to 2 decimal places, half up. Every amount the ledger
// stores has passed through this.
func Clamp2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// SortedAccounts is a helper for deterministic iteration in reports
// and snapshots.
func SortedAccounts[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
