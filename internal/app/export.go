package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"pegwatch/internal/storage"
)

// Export renders historical deviation data as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	universe, err := a.Config.Universe()
	if err != nil {
		return err
	}

	var assetIDs []string
	if len(opts.Symbols) == 0 {
		for _, tracked := range universe.Assets() {
			assetIDs = append(assetIDs, tracked.ID)
		}
	} else {
		for _, symbol := range opts.Symbols {
			tracked, ok := universe.BySymbol(strings.TrimSpace(symbol))
			if !ok {
				return fmt.Errorf("unknown symbol %q", symbol)
			}
			assetIDs = append(assetIDs, tracked.ID)
		}
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Scheduler.Interval)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	snapshots, err := store.ListHistory(ctx, assetIDs, from)
	if err != nil {
		return err
	}
	if len(snapshots) == 0 {
		a.Logger.Info().Msg("no snapshots found for export window")
		return nil
	}

	downsampled := downsampleSnapshots(snapshots, opts.MaxPoints)
	a.Logger.Info().Int("total", len(snapshots)).Int("exported", len(downsampled)).Msg("exporting snapshots")

	if opts.CSVPath != "" {
		if err := writeSnapshotsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeSnapshotsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleSnapshots(snapshots []storage.Snapshot, max int) []storage.Snapshot {
	if max <= 0 || len(snapshots) <= max {
		return snapshots
	}

	result := make([]storage.Snapshot, 0, max)
	step := float64(len(snapshots)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(snapshots) {
			idx = len(snapshots) - 1
		}
		result = append(result, snapshots[idx])
	}
	return result
}

func writeSnapshotsCSV(path string, snapshots []storage.Snapshot) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"bucket_ts", "symbol", "base_symbol", "size_label", "price", "deviation_bps", "source"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, snapshot := range snapshots {
		record := []string{
			snapshot.Bucket.Format(time.RFC3339),
			snapshot.Symbol,
			snapshot.BaseSymbol,
			snapshot.SizeLabel,
			snapshot.Price.String(),
			snapshot.DeviationBps.String(),
			snapshot.Source,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeSnapshotsPNG(path string, snapshots []storage.Snapshot) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	type series struct {
		x []time.Time
		y []float64
	}
	bySymbol := make(map[string]*series)
	for _, snapshot := range snapshots {
		s, ok := bySymbol[snapshot.Symbol]
		if !ok {
			s = &series{}
			bySymbol[snapshot.Symbol] = s
		}
		s.x = append(s.x, snapshot.Bucket)
		s.y = append(s.y, snapshot.DeviationBps.InexactFloat64())
	}

	symbols := make([]string, 0, len(bySymbol))
	for symbol := range bySymbol {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	bpsFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Deviation (bps)",
			ValueFormatter: bpsFormatter,
		},
	}
	for _, symbol := range symbols {
		s := bySymbol[symbol]
		graph.Series = append(graph.Series, chart.TimeSeries{
			Name:    symbol,
			XValues: s.x,
			YValues: s.y,
		})
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
