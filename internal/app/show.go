package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Show prints each tracked asset's most recent stored snapshot.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show snapshots")
	}
	if closeStore != nil {
		defer closeStore()
	}

	snapshots, err := store.ListLatestSnapshots(ctx, "", "")
	if err != nil {
		return err
	}
	if len(snapshots) == 0 {
		fmt.Fprintln(os.Stdout, "no snapshots found")
		return nil
	}
	if opts.Limit > 0 && len(snapshots) > opts.Limit {
		snapshots = snapshots[:opts.Limit]
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tSymbol\tBase\tSize\tPrice\tDeviation (bps)\tSource")

	for _, snapshot := range snapshots {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			snapshot.Bucket.UTC().Format(time.RFC3339),
			snapshot.Symbol,
			snapshot.BaseSymbol,
			snapshot.SizeLabel,
			snapshot.Price.StringFixed(6),
			snapshot.DeviationBps.StringFixed(2),
			snapshot.Source,
		)
	}

	writer.Flush()
	return nil
}
