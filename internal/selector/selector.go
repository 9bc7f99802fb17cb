// Package selector reduces the results of several quote providers to a single
// winning quote per request, under a configurable policy.
package selector

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/rs/zerolog"

	"pegwatch/internal/provider"
)

// Policy names a selection strategy.
type Policy string

const (
	// PolicyFallback tries adapters in priority order and stops at the
	// first success. Later adapters are not called.
	PolicyFallback Policy = "fallback"
	// PolicyBest queries every adapter concurrently and keeps the quote
	// with the strictly greatest raw buy amount.
	PolicyBest Policy = "best"
)

// ParsePolicy validates a configured policy string.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyFallback:
		return PolicyFallback, nil
	case PolicyBest:
		return PolicyBest, nil
	default:
		return "", fmt.Errorf("unknown selection policy %q (want %q or %q)", s, PolicyFallback, PolicyBest)
	}
}

// Selector dispatches quote requests across a fixed, priority-ordered set of
// adapters.
type Selector struct {
	adapters []provider.Adapter
	policy   Policy
	logger   zerolog.Logger
}

// New builds a Selector. Adapter order is the priority order: it decides the
// fallback sequence and breaks best-of ties.
func New(adapters []provider.Adapter, policy Policy, logger zerolog.Logger) (*Selector, error) {
	if len(adapters) == 0 {
		return nil, fmt.Errorf("at least one adapter is required")
	}
	if _, err := ParsePolicy(string(policy)); err != nil {
		return nil, err
	}
	return &Selector{
		adapters: adapters,
		policy:   policy,
		logger:   logger.With().Str("component", "selector").Logger(),
	}, nil
}

// Policy reports the active selection policy.
func (s *Selector) Policy() Policy { return s.policy }

// Priority returns adapter source labels in priority order.
func (s *Selector) Priority() []string {
	names := make([]string, len(s.adapters))
	for i, a := range s.adapters {
		names[i] = a.Name()
	}
	return names
}

// Select resolves one request to a winning quote, or nil when every adapter
// returned no quote. A nil result must surface as a null price/deviation
// cell, never as a zero deviation.
func (s *Selector) Select(ctx context.Context, req provider.Request) *provider.Quote {
	if s.policy == PolicyBest {
		return s.selectBest(ctx, req)
	}
	return s.selectFallback(ctx, req)
}

func (s *Selector) selectFallback(ctx context.Context, req provider.Request) *provider.Quote {
	for _, adapter := range s.adapters {
		if ctx.Err() != nil {
			return nil
		}
		if quote := adapter.Quote(ctx, req); quote != nil {
			return quote
		}
	}
	return nil
}

func (s *Selector) selectBest(ctx context.Context, req provider.Request) *provider.Quote {
	results := make([]*provider.Quote, len(s.adapters))

	var wg sync.WaitGroup
	for i, adapter := range s.adapters {
		wg.Add(1)
		go func(slot int, a provider.Adapter) {
			defer wg.Done()
			results[slot] = a.Quote(ctx, req)
		}(i, adapter)
	}
	wg.Wait()

	// Results are ranked in priority order, so on equal buy amounts the
	// earlier adapter wins deterministically.
	var best *provider.Quote
	var bestAmount *big.Int
	for i, quote := range results {
		if quote == nil {
			continue
		}
		amount, ok := new(big.Int).SetString(quote.BuyAmount, 10)
		if !ok {
			s.logger.Warn().
				Str("source", s.adapters[i].Name()).
				Str("buy_amount", quote.BuyAmount).
				Msg("discarding quote with non-integer buy amount")
			continue
		}
		if best == nil || amount.Cmp(bestAmount) > 0 {
			best = quote
			bestAmount = amount
		}
	}
	return best
}
