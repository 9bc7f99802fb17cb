package httpapi

import (
	"crypto/subtle"
	"net/http"
	"sort"
	"strings"
	"time"

	"pegwatch/internal/engine"
	"pegwatch/internal/storage"
)

// timeframes maps history window labels to hours; -1 means all data.
var timeframes = map[string]int{
	"24h": 24,
	"7d":  168,
	"30d": 720,
	"90d": 2160,
	"all": -1,
}

type sizePriceJSON struct {
	Price        float64 `json:"price"`
	DeviationBps float64 `json:"deviationBps"`
	Source       string  `json:"source,omitempty"`
}

type priceJSON struct {
	ID           string                    `json:"id"`
	Symbol       string                    `json:"symbol"`
	Name         string                    `json:"name"`
	Price        *float64                  `json:"price"`
	DeviationBps *float64                  `json:"deviationBps"`
	Source       string                    `json:"source,omitempty"`
	PricesBySize map[string]*sizePriceJSON `json:"pricesBySize,omitempty"`
}

// handlePrices serves either a live aggregation round or the latest stored
// snapshots. Unpriceable assets carry explicit nulls, never zeros.
func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	base := r.URL.Query().Get("base")
	if base == "" {
		base = s.defaultBase
	}
	size := r.URL.Query().Get("size")
	if size == "" {
		size = s.defaultSize
	}
	live := r.URL.Query().Get("live") == "true"

	if _, err := s.universe.Base(base); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.universe.Size(size); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid size, must be one of: "+strings.Join(s.universe.SizeLabels(), ", "))
		return
	}

	if !live && s.store != nil {
		snapshots, err := s.store.ListLatestSnapshots(r.Context(), base, size)
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to read latest snapshots")
			s.writeError(w, http.StatusInternalServerError, "storage unavailable")
			return
		}
		if len(snapshots) > 0 {
			prices := make([]priceJSON, 0, len(snapshots))
			var latest time.Time
			for _, snap := range snapshots {
				price := snap.Price.InexactFloat64()
				deviation := snap.DeviationBps.InexactFloat64()
				prices = append(prices, priceJSON{
					ID:           snap.AssetID,
					Symbol:       snap.Symbol,
					Name:         snap.Name,
					Price:        &price,
					DeviationBps: &deviation,
					Source:       snap.Source,
				})
				if snap.Bucket.After(latest) {
					latest = snap.Bucket
				}
			}
			s.writeJSON(w, http.StatusOK, map[string]any{
				"success":   true,
				"base":      base,
				"size":      size,
				"timestamp": latest.Unix(),
				"prices":    prices,
				"source":    "database",
			})
			return
		}
		// No stored rows for the requested base/size pair; fall
		// through to a live round.
	}

	result, err := s.aggregator.Aggregate(r.Context(), base, size)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"base":      result.Base.Symbol,
		"size":      result.PrimarySize.Label,
		"timestamp": result.Timestamp.Unix(),
		"prices":    recordsJSON(result),
		"source":    result.PrimarySource,
	})
}

func recordsJSON(result *engine.Result) []priceJSON {
	prices := make([]priceJSON, 0, len(result.Records))
	for _, record := range result.Records {
		item := priceJSON{
			ID:     record.Asset.ID,
			Symbol: record.Asset.Symbol,
			Name:   record.Asset.Name,
			Source: record.Source,
		}
		if record.Price != nil && record.DeviationBps != nil {
			price := record.Price.InexactFloat64()
			deviation := record.DeviationBps.InexactFloat64()
			item.Price = &price
			item.DeviationBps = &deviation
		}
		item.PricesBySize = make(map[string]*sizePriceJSON, len(record.BySize))
		for label, cell := range record.BySize {
			if cell == nil {
				item.PricesBySize[label] = nil
				continue
			}
			item.PricesBySize[label] = &sizePriceJSON{
				Price:        cell.Price.InexactFloat64(),
				DeviationBps: cell.DeviationBps.InexactFloat64(),
				Source:       cell.Source,
			}
		}
		prices = append(prices, item)
	}
	return prices
}

type historyPointJSON struct {
	Timestamp    int64   `json:"timestamp"`
	Price        float64 `json:"price"`
	DeviationBps float64 `json:"deviationBps"`
}

// handleHistory serves stored deviation history grouped by symbol plus a
// merged time series keyed by bucket.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "history requires a configured database")
		return
	}

	symbolsParam := r.URL.Query().Get("symbols")
	if symbolsParam == "" {
		symbolsParam = "all"
	}
	timeframe := r.URL.Query().Get("timeframe")
	if timeframe == "" {
		timeframe = "24h"
	}

	hours, ok := timeframes[timeframe]
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid timeframe")
		return
	}

	var assetIDs []string
	if symbolsParam == "all" {
		for _, a := range s.universe.Assets() {
			assetIDs = append(assetIDs, a.ID)
		}
	} else {
		for _, symbol := range strings.Split(symbolsParam, ",") {
			if a, ok := s.universe.BySymbol(strings.TrimSpace(symbol)); ok {
				assetIDs = append(assetIDs, a.ID)
			}
		}
	}
	if len(assetIDs) == 0 {
		s.writeError(w, http.StatusBadRequest, "no valid stablecoins specified")
		return
	}

	var (
		snapshots []storage.Snapshot
		err       error
	)
	if hours < 0 {
		snapshots, err = s.store.ListAllHistory(r.Context(), assetIDs)
	} else {
		from := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
		snapshots, err = s.store.ListHistory(r.Context(), assetIDs, from)
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read history")
		s.writeError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}

	bySymbol := make(map[string][]historyPointJSON)
	merged := make(map[int64]map[string]any)
	for _, snap := range snapshots {
		point := historyPointJSON{
			Timestamp:    snap.Bucket.Unix(),
			Price:        snap.Price.InexactFloat64(),
			DeviationBps: snap.DeviationBps.InexactFloat64(),
		}
		bySymbol[snap.Symbol] = append(bySymbol[snap.Symbol], point)

		ts := snap.Bucket.Unix()
		row, ok := merged[ts]
		if !ok {
			row = map[string]any{"timestamp": ts}
			merged[ts] = row
		}
		row[snap.Symbol] = point.DeviationBps
	}

	timeSeries := make([]map[string]any, 0, len(merged))
	for _, row := range merged {
		timeSeries = append(timeSeries, row)
	}
	sort.Slice(timeSeries, func(i, j int) bool {
		return timeSeries[i]["timestamp"].(int64) < timeSeries[j]["timestamp"].(int64)
	})

	symbols := make([]string, 0, len(bySymbol))
	for symbol := range bySymbol {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"timeframe":  timeframe,
		"symbols":    symbols,
		"bySymbol":   bySymbol,
		"timeSeries": timeSeries,
		"dataPoints": len(snapshots),
	})
}

// handleCronFetch triggers one collection round. When a cron secret is
// configured the caller must present it as a bearer token.
func (s *Server) handleCronFetch(w http.ResponseWriter, r *http.Request) {
	if secret := s.cfg.CronSecret; secret != "" {
		auth := r.Header.Get("Authorization")
		expected := "Bearer " + secret
		if subtle.ConstantTimeCompare([]byte(auth), []byte(expected)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
	}

	if s.collector == nil {
		s.writeError(w, http.StatusServiceUnavailable, "collector not configured")
		return
	}

	bucket := time.Now().UTC().Truncate(s.interval)
	result, inserted, err := s.collector.Collect(r.Context(), bucket)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	summary := make([]map[string]any, 0, len(result.Records))
	for _, record := range result.Records {
		item := map[string]any{"symbol": record.Asset.Symbol}
		if record.Price != nil && record.DeviationBps != nil {
			item["price"] = record.Price.InexactFloat64()
			item["deviationBps"] = record.DeviationBps.InexactFloat64()
		} else {
			item["price"] = nil
			item["deviationBps"] = nil
		}
		summary = append(summary, item)
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"stored":    inserted,
		"timestamp": bucket.Unix(),
		"source":    result.PrimarySource,
		"prices":    summary,
	})
}
