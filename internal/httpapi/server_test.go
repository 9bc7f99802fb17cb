package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pegwatch/internal/asset"
	"pegwatch/internal/config"
	"pegwatch/internal/engine"
	"pegwatch/internal/storage"
)

type fakeAggregator struct {
	result *engine.Result
	err    error
}

func (f *fakeAggregator) Aggregate(ctx context.Context, baseSymbol, primarySizeLabel string) (*engine.Result, error) {
	return f.result, f.err
}

func testUniverse(t *testing.T) *asset.Universe {
	t.Helper()
	u, err := asset.NewUniverse(
		[]asset.Definition{
			{ID: "tether", Symbol: "USDT", Name: "Tether", Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Decimals: 6},
			{ID: "ripple-usd", Symbol: "RLUSD", Name: "Ripple USD", Address: "0x8292Bb45bf1Ee4d140127049757C2E0fF06317eD", Decimals: 18},
		},
		[]string{"USDT"},
		[]asset.SizeDefinition{
			{Label: "1M", Value: 1_000_000},
			{Label: "5M", Value: 5_000_000},
		},
	)
	if err != nil {
		t.Fatalf("build universe: %v", err)
	}
	return u
}

func testServer(t *testing.T, agg Aggregator, cronSecret string) *Server {
	t.Helper()
	cfg := &config.Config{}
	cfg.HTTP.CronSecret = cronSecret
	cfg.Aggregation.DefaultBase = "USDT"
	cfg.Aggregation.PrimarySize = "1M"
	cfg.Scheduler.Interval = 5 * time.Minute
	return NewServer(cfg, testUniverse(t), agg, nil, nil, zerolog.Nop())
}

func testResult(u *asset.Universe) *engine.Result {
	usdt, _ := u.BySymbol("USDT")
	rlusd, _ := u.BySymbol("RLUSD")

	one := decimal.NewFromInt(1)
	price := decimal.RequireFromString("0.9995")
	deviation := decimal.RequireFromString("-5.00")

	return &engine.Result{
		Base:        usdt,
		PrimarySize: asset.TradeSize{Label: "1M", Value: 1_000_000},
		Records: []engine.PriceRecord{
			{
				Asset:        usdt,
				Price:        &one,
				DeviationBps: &decimal.Zero,
				BySize: map[string]*engine.Cell{
					"1M": {Price: one, DeviationBps: decimal.Zero},
				},
			},
			{
				Asset:        rlusd,
				Price:        &price,
				DeviationBps: &deviation,
				Source:       "0x",
				BySize: map[string]*engine.Cell{
					"1M": {Price: price, DeviationBps: deviation, Source: "0x"},
				},
			},
		},
		PrimarySource: "0x",
		Timestamp:     time.Now().UTC(),
	}
}

func TestPricesLive(t *testing.T) {
	srv := testServer(t, &fakeAggregator{result: testResult(testUniverse(t))}, "")

	req := httptest.NewRequest(http.MethodGet, "/api/prices?live=true", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Success bool        `json:"success"`
		Base    string      `json:"base"`
		Source  string      `json:"source"`
		Prices  []priceJSON `json:"prices"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !body.Success || body.Base != "USDT" || body.Source != "0x" {
		t.Fatalf("unexpected envelope: %+v", body)
	}
	if len(body.Prices) != 2 {
		t.Fatalf("expected 2 price rows, got %d", len(body.Prices))
	}
	if body.Prices[1].Price == nil || *body.Prices[1].Price != 0.9995 {
		t.Fatalf("unexpected RLUSD price: %v", body.Prices[1].Price)
	}
}

func TestPricesNullsForUnpricedAsset(t *testing.T) {
	u := testUniverse(t)
	result := testResult(u)
	// Strip RLUSD's pricing to model total provider failure.
	result.Records[1].Price = nil
	result.Records[1].DeviationBps = nil
	result.Records[1].Source = ""
	result.Records[1].BySize["1M"] = nil

	srv := testServer(t, &fakeAggregator{result: result}, "")

	req := httptest.NewRequest(http.MethodGet, "/api/prices?live=true", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	var body struct {
		Prices []struct {
			Symbol       string                     `json:"symbol"`
			Price        *float64                   `json:"price"`
			DeviationBps *float64                   `json:"deviationBps"`
			PricesBySize map[string]json.RawMessage `json:"pricesBySize"`
		} `json:"prices"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	rlusd := body.Prices[1]
	if rlusd.Price != nil || rlusd.DeviationBps != nil {
		t.Fatalf("unpriced asset should serialize as null, got %v / %v", rlusd.Price, rlusd.DeviationBps)
	}
	if string(rlusd.PricesBySize["1M"]) != "null" {
		t.Fatalf("missing cell should serialize as null, got %s", rlusd.PricesBySize["1M"])
	}
}

// filterStore serves canned snapshots keyed by (base, size) and records the
// filter each lookup carried.
type filterStore struct {
	rows     map[string][]storage.Snapshot
	lastBase string
	lastSize string
}

func (f *filterStore) SeedStablecoins(ctx context.Context, rows []storage.StablecoinRow) error {
	return nil
}

func (f *filterStore) UpsertSnapshot(ctx context.Context, snapshot storage.Snapshot) error {
	return nil
}

func (f *filterStore) ListLatestSnapshots(ctx context.Context, baseSymbol, sizeLabel string) ([]storage.Snapshot, error) {
	f.lastBase = baseSymbol
	f.lastSize = sizeLabel
	return f.rows[baseSymbol+"/"+sizeLabel], nil
}

func (f *filterStore) ListHistory(ctx context.Context, assetIDs []string, from time.Time) ([]storage.Snapshot, error) {
	return nil, nil
}

func (f *filterStore) ListAllHistory(ctx context.Context, assetIDs []string) ([]storage.Snapshot, error) {
	return nil, nil
}

func (f *filterStore) CountSnapshots(ctx context.Context) (int64, error) {
	return 0, nil
}

func TestPricesStoredPathFiltersByBaseAndSize(t *testing.T) {
	u := testUniverse(t)
	store := &filterStore{
		rows: map[string][]storage.Snapshot{
			"USDT/1M": {
				{
					AssetID:      "ripple-usd",
					Symbol:       "RLUSD",
					Name:         "Ripple USD",
					Bucket:       time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC),
					BaseSymbol:   "USDT",
					SizeLabel:    "1M",
					Price:        decimal.RequireFromString("0.9995"),
					DeviationBps: decimal.RequireFromString("-5.00"),
					Source:       "0x",
				},
			},
		},
	}

	cfg := &config.Config{}
	cfg.Aggregation.DefaultBase = "USDT"
	cfg.Aggregation.PrimarySize = "1M"
	cfg.Scheduler.Interval = 5 * time.Minute
	srv := NewServer(cfg, u, &fakeAggregator{result: testResult(u)}, nil, store, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/prices?base=USDT&size=1M", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if store.lastBase != "USDT" || store.lastSize != "1M" {
		t.Fatalf("requested pair should be pushed into the lookup, got %s/%s", store.lastBase, store.lastSize)
	}

	var body struct {
		Source string      `json:"source"`
		Base   string      `json:"base"`
		Size   string      `json:"size"`
		Prices []priceJSON `json:"prices"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Source != "database" {
		t.Fatalf("expected the stored path, got source %q", body.Source)
	}
	if body.Base != "USDT" || body.Size != "1M" {
		t.Fatalf("response labels should match the served rows, got %s/%s", body.Base, body.Size)
	}
	if len(body.Prices) != 1 || body.Prices[0].Symbol != "RLUSD" {
		t.Fatalf("unexpected rows: %+v", body.Prices)
	}

	// A pair with no stored rows falls through to a live round instead of
	// serving rows labeled with the wrong base or size.
	req = httptest.NewRequest(http.MethodGet, "/api/prices?base=USDT&size=5M", nil)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if store.lastSize != "5M" {
		t.Fatalf("second lookup should carry the new size, got %s", store.lastSize)
	}
	var live struct {
		Source string `json:"source"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &live); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if live.Source == "database" {
		t.Fatal("unmatched pair should not be served from the store")
	}
}

func TestPricesRejectsUnknownBase(t *testing.T) {
	srv := testServer(t, &fakeAggregator{}, "")

	req := httptest.NewRequest(http.MethodGet, "/api/prices?base=RLUSD", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("non-base asset should be rejected, got %d", rec.Code)
	}
}

func TestPricesRejectsUnknownSize(t *testing.T) {
	srv := testServer(t, &fakeAggregator{}, "")

	req := httptest.NewRequest(http.MethodGet, "/api/prices?size=100M", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown size should be rejected, got %d", rec.Code)
	}
}

func TestHistoryWithoutStore(t *testing.T) {
	srv := testServer(t, &fakeAggregator{}, "")

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("history without a store should be 503, got %d", rec.Code)
	}
}

func TestCronFetchAuth(t *testing.T) {
	srv := testServer(t, &fakeAggregator{}, "cron-secret")

	req := httptest.NewRequest(http.MethodPost, "/api/cron/fetch", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing bearer token should be 401, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/cron/fetch", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong bearer token should be 401, got %d", rec.Code)
	}

	// Correct token passes auth; with no collector wired the endpoint
	// reports unavailability rather than unauthorized.
	req = httptest.NewRequest(http.MethodPost, "/api/cron/fetch", nil)
	req.Header.Set("Authorization", "Bearer cron-secret")
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with no collector, got %d", rec.Code)
	}
}
