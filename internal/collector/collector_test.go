package collector

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pegwatch/internal/alerting"
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

type memStore struct {
	seeded    []storage.StablecoinRow
	snapshots []storage.Snapshot
}

func (m *memStore) SeedStablecoins(ctx context.Context, rows []storage.StablecoinRow) error {
	m.seeded = rows
	return nil
}

func (m *memStore) UpsertSnapshot(ctx context.Context, snapshot storage.Snapshot) error {
	m.snapshots = append(m.snapshots, snapshot)
	return nil
}

func (m *memStore) ListLatestSnapshots(ctx context.Context, baseSymbol, sizeLabel string) ([]storage.Snapshot, error) {
	return m.snapshots, nil
}

func (m *memStore) ListHistory(ctx context.Context, assetIDs []string, from time.Time) ([]storage.Snapshot, error) {
	return m.snapshots, nil
}

func (m *memStore) ListAllHistory(ctx context.Context, assetIDs []string) ([]storage.Snapshot, error) {
	return m.snapshots, nil
}

func (m *memStore) CountSnapshots(ctx context.Context) (int64, error) {
	return int64(len(m.snapshots)), nil
}

type memAlertStore struct {
	alerts []storage.AlertRecord
}

func (m *memAlertStore) InsertAlert(ctx context.Context, alert storage.AlertRecord) (storage.AlertRecord, error) {
	m.alerts = append(m.alerts, alert)
	return alert, nil
}

func (m *memAlertStore) ListRecentAlerts(ctx context.Context, limit int) ([]storage.AlertRecord, error) {
	return m.alerts, nil
}

func (m *memAlertStore) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	return nil
}

type memNotifier struct {
	notes []alerting.Notification
}

func (m *memNotifier) Notify(ctx context.Context, note alerting.Notification) error {
	m.notes = append(m.notes, note)
	return nil
}

func testUniverse(t *testing.T) *asset.Universe {
	t.Helper()
	u, err := asset.NewUniverse(
		[]asset.Definition{
			{ID: "tether", Symbol: "USDT", Name: "Tether", Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Decimals: 6},
			{ID: "ripple-usd", Symbol: "RLUSD", Name: "Ripple USD", Address: "0x8292Bb45bf1Ee4d140127049757C2E0fF06317eD", Decimals: 18},
			{ID: "dai", Symbol: "DAI", Name: "Dai", Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", Decimals: 18},
		},
		[]string{"USDT"},
		[]asset.SizeDefinition{{Label: "1M", Value: 1_000_000}},
	)
	if err != nil {
		t.Fatalf("build universe: %v", err)
	}
	return u
}

func testResult(t *testing.T, u *asset.Universe, rlusdDeviation string) *engine.Result {
	t.Helper()
	usdt, _ := u.BySymbol("USDT")
	rlusd, _ := u.BySymbol("RLUSD")
	dai, _ := u.BySymbol("DAI")

	one := decimal.NewFromInt(1)
	deviation := decimal.RequireFromString(rlusdDeviation)
	price := one.Add(deviation.Div(decimal.NewFromInt(10_000)))

	return &engine.Result{
		Base:        usdt,
		PrimarySize: asset.TradeSize{Label: "1M", Value: 1_000_000},
		Records: []engine.PriceRecord{
			{Asset: usdt, Price: &one, DeviationBps: &decimal.Zero},
			{Asset: rlusd, Price: &price, DeviationBps: &deviation, Source: "0x"},
			// DAI could not be priced this round.
			{Asset: dai},
		},
		PrimarySource: "0x",
		Timestamp:     time.Now().UTC(),
	}
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Aggregation.DefaultBase = "USDT"
	cfg.Aggregation.PrimarySize = "1M"
	cfg.Alerting.Enabled = true
	cfg.Alerting.ThresholdBps = 25
	cfg.Alerting.Cooldown = 30 * time.Minute
	cfg.Alerting.Channels = []string{"telegram"}
	return cfg
}

func TestCollectStoresOnlyPricedRecords(t *testing.T) {
	u := testUniverse(t)
	store := &memStore{}
	agg := &fakeAggregator{result: testResult(t, u, "-5.00")}

	coll := New(testConfig(), nil, agg, u, store, nil, nil, zerolog.Nop())

	bucket := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	result, inserted, err := coll.Collect(context.Background(), bucket)
	if err != nil {
		t.Fatalf("Collect should succeed: %v", err)
	}
	if result == nil {
		t.Fatal("expected a result")
	}
	if inserted != 2 {
		t.Fatalf("expected 2 stored snapshots (base and RLUSD), got %d", inserted)
	}
	if len(store.seeded) != 3 {
		t.Fatalf("every tracked asset should be seeded, got %d", len(store.seeded))
	}
	for _, snap := range store.snapshots {
		if snap.Symbol == "DAI" {
			t.Fatal("unpriced asset must not produce a snapshot row")
		}
		if !snap.Bucket.Equal(bucket) {
			t.Fatalf("snapshot bucket mismatch: %s", snap.Bucket)
		}
	}
}

func TestCollectWithoutStore(t *testing.T) {
	u := testUniverse(t)
	agg := &fakeAggregator{result: testResult(t, u, "-5.00")}

	coll := New(testConfig(), nil, agg, u, nil, nil, nil, zerolog.Nop())

	_, inserted, err := coll.Collect(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("Collect without storage should still succeed: %v", err)
	}
	if inserted != 0 {
		t.Fatalf("nothing should be stored, got %d", inserted)
	}
}

func TestAlertFiresAboveThreshold(t *testing.T) {
	u := testUniverse(t)
	alerts := &memAlertStore{}
	notifier := &memNotifier{}
	agg := &fakeAggregator{result: testResult(t, u, "-42.00")}

	coll := New(testConfig(), nil, agg, u, &memStore{}, alerts, notifier, zerolog.Nop())

	bucket := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	if _, _, err := coll.Collect(context.Background(), bucket); err != nil {
		t.Fatalf("Collect should succeed: %v", err)
	}

	if len(notifier.notes) != 1 {
		t.Fatalf("expected one alert, got %d", len(notifier.notes))
	}
	note := notifier.notes[0]
	if note.Symbol != "RLUSD" || note.Direction != "discount" {
		t.Fatalf("unexpected alert %+v", note)
	}
	if len(alerts.alerts) != 1 {
		t.Fatalf("alert should be persisted, got %d records", len(alerts.alerts))
	}
}

func TestAlertRespectsThreshold(t *testing.T) {
	u := testUniverse(t)
	notifier := &memNotifier{}
	agg := &fakeAggregator{result: testResult(t, u, "-5.00")}

	coll := New(testConfig(), nil, agg, u, &memStore{}, nil, notifier, zerolog.Nop())

	if _, _, err := coll.Collect(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("Collect should succeed: %v", err)
	}
	if len(notifier.notes) != 0 {
		t.Fatalf("deviation within threshold should not alert, got %d", len(notifier.notes))
	}
}

func TestAlertCooldown(t *testing.T) {
	u := testUniverse(t)
	notifier := &memNotifier{}
	agg := &fakeAggregator{result: testResult(t, u, "-42.00")}

	coll := New(testConfig(), nil, agg, u, &memStore{}, nil, notifier, zerolog.Nop())

	base := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		bucket := base.Add(time.Duration(i) * 5 * time.Minute)
		if _, _, err := coll.Collect(context.Background(), bucket); err != nil {
			t.Fatalf("Collect should succeed: %v", err)
		}
	}
	if len(notifier.notes) != 1 {
		t.Fatalf("cooldown should suppress repeat alerts, got %d", len(notifier.notes))
	}

	// Past the cooldown window the same asset may alert again.
	bucket := base.Add(31 * time.Minute)
	if _, _, err := coll.Collect(context.Background(), bucket); err != nil {
		t.Fatalf("Collect should succeed: %v", err)
	}
	if len(notifier.notes) != 2 {
		t.Fatalf("expected a second alert after cooldown, got %d", len(notifier.notes))
	}
}

func TestClassifyDeviation(t *testing.T) {
	if got := classifyDeviation(decimal.RequireFromString("3")); got != "premium" {
		t.Fatalf("expected premium, got %s", got)
	}
	if got := classifyDeviation(decimal.RequireFromString("-3")); got != "discount" {
		t.Fatalf("expected discount, got %s", got)
	}
	if got := classifyDeviation(decimal.Zero); got != "flat" {
		t.Fatalf("expected flat, got %s", got)
	}
}
