package asset

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Asset describes one tracked stablecoin. Loaded once at startup and never
// mutated afterwards.
type Asset struct {
	ID       string
	Symbol   string
	Name     string
	Address  string
	Decimals int32
}

// TradeSize is one probe notional, in whole base-asset units.
type TradeSize struct {
	Label string
	Value int64
}

// Universe is the immutable set of tracked assets, eligible base assets, and
// trade sizes for one process lifetime.
type Universe struct {
	assets   []Asset
	bySymbol map[string]Asset
	bases    map[string]struct{}
	sizes    []TradeSize
	byLabel  map[string]TradeSize
}

// Definition is the raw configuration shape for one tracked asset.
type Definition struct {
	ID       string `mapstructure:"id"`
	Symbol   string `mapstructure:"symbol"`
	Name     string `mapstructure:"name"`
	Address  string `mapstructure:"address"`
	Decimals int32  `mapstructure:"decimals"`
}

// SizeDefinition is the raw configuration shape for one trade size.
type SizeDefinition struct {
	Label string `mapstructure:"label"`
	Value int64  `mapstructure:"value"`
}

// NewUniverse validates definitions and builds the lookup structures.
// Contract addresses are checksummed through go-ethereum so that lookups and
// provider requests always use the canonical form.
func NewUniverse(defs []Definition, bases []string, sizes []SizeDefinition) (*Universe, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("at least one tracked asset is required")
	}
	if len(sizes) == 0 {
		return nil, fmt.Errorf("at least one trade size is required")
	}

	u := &Universe{
		bySymbol: make(map[string]Asset, len(defs)),
		bases:    make(map[string]struct{}, len(bases)),
		byLabel:  make(map[string]TradeSize, len(sizes)),
	}

	for _, def := range defs {
		if def.ID == "" || def.Symbol == "" {
			return nil, fmt.Errorf("asset id and symbol are required: %+v", def)
		}
		if !common.IsHexAddress(def.Address) {
			return nil, fmt.Errorf("asset %s: invalid contract address %q", def.Symbol, def.Address)
		}
		if def.Decimals != 6 && def.Decimals != 18 {
			return nil, fmt.Errorf("asset %s: decimals must be 6 or 18, got %d", def.Symbol, def.Decimals)
		}
		key := strings.ToUpper(def.Symbol)
		if _, dup := u.bySymbol[key]; dup {
			return nil, fmt.Errorf("duplicate asset symbol %s", def.Symbol)
		}
		a := Asset{
			ID:       def.ID,
			Symbol:   def.Symbol,
			Name:     def.Name,
			Address:  common.HexToAddress(def.Address).Hex(),
			Decimals: def.Decimals,
		}
		u.assets = append(u.assets, a)
		u.bySymbol[key] = a
	}

	for _, base := range bases {
		key := strings.ToUpper(base)
		if _, ok := u.bySymbol[key]; !ok {
			return nil, fmt.Errorf("base asset %s is not a tracked asset", base)
		}
		u.bases[key] = struct{}{}
	}
	if len(u.bases) == 0 {
		return nil, fmt.Errorf("at least one base asset is required")
	}

	for _, size := range sizes {
		if size.Label == "" || size.Value <= 0 {
			return nil, fmt.Errorf("trade size requires a label and a positive value: %+v", size)
		}
		if _, dup := u.byLabel[size.Label]; dup {
			return nil, fmt.Errorf("duplicate trade size label %s", size.Label)
		}
		ts := TradeSize{Label: size.Label, Value: size.Value}
		u.sizes = append(u.sizes, ts)
		u.byLabel[size.Label] = ts
	}

	return u, nil
}

// Assets returns tracked assets in configuration order.
func (u *Universe) Assets() []Asset {
	out := make([]Asset, len(u.assets))
	copy(out, u.assets)
	return out
}

// Sizes returns trade sizes in configuration order.
func (u *Universe) Sizes() []TradeSize {
	out := make([]TradeSize, len(u.sizes))
	copy(out, u.sizes)
	return out
}

// BySymbol resolves an asset by symbol, case-insensitively.
func (u *Universe) BySymbol(symbol string) (Asset, bool) {
	a, ok := u.bySymbol[strings.ToUpper(symbol)]
	return a, ok
}

// Base resolves an eligible base asset. Symbols that are tracked but not
// configured as bases are rejected.
func (u *Universe) Base(symbol string) (Asset, error) {
	key := strings.ToUpper(symbol)
	if _, ok := u.bases[key]; !ok {
		return Asset{}, fmt.Errorf("asset %s is not an eligible base asset", symbol)
	}
	return u.bySymbol[key], nil
}

// Size resolves a trade size by label.
func (u *Universe) Size(label string) (TradeSize, error) {
	ts, ok := u.byLabel[label]
	if !ok {
		return TradeSize{}, fmt.Errorf("unknown trade size %q", label)
	}
	return ts, nil
}

// SizeLabels returns the configured labels in order, for error messages and
// request validation.
func (u *Universe) SizeLabels() []string {
	labels := make([]string, len(u.sizes))
	for i, s := range u.sizes {
		labels[i] = s.Label
	}
	return labels
}
