package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"pegwatch/internal/collector"
	"pegwatch/internal/engine"
)

// Fetch runs one aggregation round immediately and prints the result matrix.
// With opts.Store it also persists snapshots the way a scheduled round would.
func (a *App) Fetch(ctx context.Context, opts FetchOptions) error {
	eng, universe, err := a.newEngine()
	if err != nil {
		return err
	}

	base := opts.Base
	if base == "" {
		base = a.Config.Aggregation.DefaultBase
	}
	size := opts.Size
	if size == "" {
		size = a.Config.Aggregation.PrimarySize
	}

	var result *engine.Result
	if opts.Store {
		store, closeStore, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			return fmt.Errorf("database.dsn not configured; cannot store snapshots")
		}
		if closeStore != nil {
			defer closeStore()
		}

		cfg := *a.Config
		cfg.Aggregation.DefaultBase = base
		cfg.Aggregation.PrimarySize = size
		coll := collector.New(&cfg, nil, eng, universe, store, store, a.newNotifier(), a.Logger)

		bucket := time.Now().UTC().Truncate(a.Config.Scheduler.Interval)
		var stored int
		result, stored, err = coll.Collect(ctx, bucket)
		if err != nil {
			return err
		}
		a.Logger.Info().Int("stored", stored).Msg("snapshots persisted")
	} else {
		result, err = eng.Aggregate(ctx, base, size)
		if err != nil {
			return err
		}
	}

	printResult(result)
	return nil
}

func printResult(result *engine.Result) {
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Base: %s\tSize: %s\tSource: %s\n", result.Base.Symbol, result.PrimarySize.Label, result.PrimarySource)
	fmt.Fprintln(writer, "Symbol\tPrice\tDeviation (bps)\tSource")

	for _, record := range result.Records {
		price := "n/a"
		deviation := "n/a"
		if record.Price != nil && record.DeviationBps != nil {
			price = record.Price.StringFixed(6)
			deviation = record.DeviationBps.StringFixed(2)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", record.Asset.Symbol, price, deviation, record.Source)
	}

	writer.Flush()
}
