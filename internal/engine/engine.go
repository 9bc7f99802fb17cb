// Package engine orchestrates one aggregation run: for a base asset and every
// tracked stablecoin and trade size, obtain a winning quote, derive price and
// peg deviation, and assemble the per-asset result set.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pegwatch/internal/asset"
	"pegwatch/internal/pricing"
	"pegwatch/internal/provider"
	"pegwatch/internal/selector"
)

// QuoteSelector is the slice of selector behaviour the engine depends on.
type QuoteSelector interface {
	Select(ctx context.Context, req provider.Request) *provider.Quote
	Policy() selector.Policy
	Priority() []string
}

// Cell is one priced (asset, trade size) measurement. A missing cell is
// represented by a nil *Cell, never by zero values.
type Cell struct {
	Price        decimal.Decimal
	DeviationBps decimal.Decimal
	BuyAmount    string
	SellAmount   string
	Source       string
}

// PriceRecord is the per-asset output. Price and DeviationBps are nil
// together when no size could be priced at the primary trade size.
type PriceRecord struct {
	Asset        asset.Asset
	Price        *decimal.Decimal
	DeviationBps *decimal.Decimal
	Source       string
	BySize       map[string]*Cell
}

// Result is the outcome of one aggregation run.
type Result struct {
	Base          asset.Asset
	PrimarySize   asset.TradeSize
	Records       []PriceRecord
	PrimarySource string
	Timestamp     time.Time
}

// Engine wires the asset universe to a quote selector.
type Engine struct {
	universe *asset.Universe
	selector QuoteSelector
	logger   zerolog.Logger
}

// New constructs an Engine.
func New(universe *asset.Universe, sel QuoteSelector, logger zerolog.Logger) *Engine {
	return &Engine{
		universe: universe,
		selector: sel,
		logger:   logger.With().Str("component", "engine").Logger(),
	}
}

// Aggregate runs one full round. An unknown base asset or trade size rejects
// the call; provider failures never do, they produce nil cells and the run
// always completes.
func (e *Engine) Aggregate(ctx context.Context, baseSymbol, primarySizeLabel string) (*Result, error) {
	base, err := e.universe.Base(baseSymbol)
	if err != nil {
		return nil, err
	}
	primary, err := e.universe.Size(primarySizeLabel)
	if err != nil {
		return nil, err
	}

	sizes := e.universe.Sizes()
	assets := e.universe.Assets()

	type assetOutcome struct {
		cells map[string]*Cell
		wins  map[string]int
	}
	outcomes := make([]assetOutcome, len(assets))

	var wg sync.WaitGroup
	for i, a := range assets {
		if a.Symbol == base.Symbol {
			// Identity shortcut: the base trades 1:1 with itself at
			// every size, no network call.
			outcomes[i] = assetOutcome{cells: identityCells(sizes)}
			continue
		}

		wg.Add(1)
		go func(slot int, a asset.Asset) {
			defer wg.Done()
			cells := make(map[string]*Cell, len(sizes))
			wins := make(map[string]int)
			for _, size := range sizes {
				cell := e.quoteCell(ctx, base, a, size)
				if cell != nil {
					wins[cell.Source]++
				}
				cells[size.Label] = cell
			}
			// Local accumulation only; merged after the join so
			// concurrent assets cannot interleave the counters.
			outcomes[slot] = assetOutcome{cells: cells, wins: wins}
		}(i, a)
	}
	wg.Wait()

	wins := make(map[string]int)
	records := make([]PriceRecord, 0, len(assets))
	firstSource := ""
	for i, a := range assets {
		outcome := outcomes[i]
		for source, n := range outcome.wins {
			wins[source] += n
		}
		record := PriceRecord{Asset: a, BySize: outcome.cells}
		if cell := outcome.cells[primary.Label]; cell != nil {
			price := cell.Price
			deviation := cell.DeviationBps
			record.Price = &price
			record.DeviationBps = &deviation
			record.Source = cell.Source
		}
		if a.Symbol != base.Symbol && firstSource == "" {
			// Deterministic: configuration order, not arrival order.
			for _, size := range sizes {
				if cell := outcome.cells[size.Label]; cell != nil {
					firstSource = cell.Source
					break
				}
			}
		}
		records = append(records, record)
	}

	result := &Result{
		Base:          base,
		PrimarySize:   primary,
		Records:       records,
		PrimarySource: e.primarySource(firstSource, wins),
		Timestamp:     time.Now().UTC(),
	}
	return result, nil
}

// quoteCell prices one (asset, size) cell, or returns nil when every provider
// declined.
func (e *Engine) quoteCell(ctx context.Context, base, a asset.Asset, size asset.TradeSize) *Cell {
	sellRaw := decimal.NewFromInt(size.Value).Shift(base.Decimals).String()

	quote := e.selector.Select(ctx, provider.Request{
		SellToken:  base.Address,
		BuyToken:   a.Address,
		SellAmount: sellRaw,
	})
	if quote == nil {
		e.logger.Debug().
			Str("asset", a.Symbol).
			Str("size", size.Label).
			Msg("no provider could price cell")
		return nil
	}

	price, err := pricing.Ratio(quote.SellAmount, quote.BuyAmount, base.Decimals, a.Decimals)
	if err != nil {
		e.logger.Warn().Err(err).
			Str("asset", a.Symbol).
			Str("size", size.Label).
			Str("source", quote.Source).
			Msg("discarding unparseable quote")
		return nil
	}

	return &Cell{
		Price:        price,
		DeviationBps: pricing.DeviationFromPeg(price),
		BuyAmount:    quote.BuyAmount,
		SellAmount:   quote.SellAmount,
		Source:       quote.Source,
	}
}

// primarySource attributes one source label to the run: the first successful
// cell's source under the fallback policy, the most frequent winner under
// best-of with ties broken by adapter priority.
func (e *Engine) primarySource(firstSource string, wins map[string]int) string {
	if e.selector.Policy() == selector.PolicyFallback {
		return firstSource
	}

	best := ""
	bestCount := 0
	for _, name := range e.selector.Priority() {
		if count := wins[name]; count > bestCount {
			best = name
			bestCount = count
		}
	}
	return best
}

func identityCells(sizes []asset.TradeSize) map[string]*Cell {
	cells := make(map[string]*Cell, len(sizes))
	for _, size := range sizes {
		cells[size.Label] = &Cell{
			Price:        decimal.NewFromInt(1),
			DeviationBps: decimal.Zero,
		}
	}
	return cells
}
