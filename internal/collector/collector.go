// Package collector runs scheduled aggregation rounds and persists the
// resulting peg snapshots.
package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pegwatch/internal/alerting"
	"pegwatch/internal/asset"
	"pegwatch/internal/config"
	"pegwatch/internal/engine"
	"pegwatch/internal/scheduler"
	"pegwatch/internal/storage"
)

// Aggregator is the slice of engine behaviour the collector depends on.
type Aggregator interface {
	Aggregate(ctx context.Context, baseSymbol, primarySizeLabel string) (*engine.Result, error)
}

// Collector orchestrates aggregation, persistence, and alerting.
type Collector struct {
	scheduler  *scheduler.Scheduler
	aggregator Aggregator
	universe   *asset.Universe
	store      storage.SnapshotStore
	alertStore storage.AlertStore
	notifier   alerting.Notifier
	logger     zerolog.Logger

	baseSymbol  string
	primarySize string
	threshold   decimal.Decimal
	cooldown    time.Duration
	channels    []string
	alertsOn    bool
	locker      storage.AdvisoryLocker
	lockKey     int64

	mu        sync.Mutex
	lastAlert map[string]time.Time
}

// New constructs the collector.
func New(cfg *config.Config, sched *scheduler.Scheduler, aggregator Aggregator, universe *asset.Universe, store storage.SnapshotStore, alertStore storage.AlertStore, notifier alerting.Notifier, logger zerolog.Logger) *Collector {
	threshold := decimal.Zero
	if cfg.Alerting.Enabled && cfg.Alerting.ThresholdBps > 0 {
		threshold = decimal.NewFromFloat(cfg.Alerting.ThresholdBps)
	}

	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Collector{
		scheduler:   sched,
		aggregator:  aggregator,
		universe:    universe,
		store:       store,
		alertStore:  alertStore,
		notifier:    notifier,
		logger:      logger.With().Str("component", "collector").Logger(),
		baseSymbol:  cfg.Aggregation.DefaultBase,
		primarySize: cfg.Aggregation.PrimarySize,
		threshold:   threshold,
		cooldown:    cfg.Alerting.Cooldown,
		channels:    cfg.Alerting.Channels,
		alertsOn:    cfg.Alerting.Enabled,
		locker:      locker,
		lockKey:     cfg.Scheduler.AdvisoryLockKey,
		lastAlert:   make(map[string]time.Time),
	}
}

// Run begins the aligned collection loop.
func (c *Collector) Run(ctx context.Context) error {
	if c.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return c.scheduler.Run(ctx, c.ProcessBucket)
}

// ProcessBucket executes one collection round for a time bucket. Returns the
// error of the aggregation itself; individual unpriceable assets are not
// errors, they simply produce no snapshot row.
func (c *Collector) ProcessBucket(ctx context.Context, bucket time.Time) error {
	unlock, proceed, err := c.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		c.logger.Debug().Time("bucket", bucket).Msg("skip bucket because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	_, err = c.collect(ctx, bucket)
	return err
}

// Collect runs one round immediately and reports how many snapshots were
// stored. Used by the one-shot fetch path and the HTTP cron trigger.
func (c *Collector) Collect(ctx context.Context, bucket time.Time) (*engine.Result, int, error) {
	return c.collectResult(ctx, bucket)
}

func (c *Collector) collect(ctx context.Context, bucket time.Time) (int, error) {
	_, inserted, err := c.collectResult(ctx, bucket)
	return inserted, err
}

func (c *Collector) collectResult(ctx context.Context, bucket time.Time) (*engine.Result, int, error) {
	result, err := c.aggregator.Aggregate(ctx, c.baseSymbol, c.primarySize)
	if err != nil {
		return nil, 0, fmt.Errorf("aggregate %s at %s: %w", c.baseSymbol, c.primarySize, err)
	}

	inserted := 0
	if c.store != nil {
		if err := c.seed(ctx); err != nil {
			c.logger.Error().Err(err).Msg("failed to seed stablecoin rows")
		}
		for _, record := range result.Records {
			if record.Price == nil || record.DeviationBps == nil {
				continue
			}
			snapshot := storage.Snapshot{
				AssetID:      record.Asset.ID,
				Symbol:       record.Asset.Symbol,
				Name:         record.Asset.Name,
				Bucket:       bucket,
				BaseSymbol:   result.Base.Symbol,
				SizeLabel:    result.PrimarySize.Label,
				Price:        *record.Price,
				DeviationBps: *record.DeviationBps,
				Source:       record.Source,
			}
			if err := c.store.UpsertSnapshot(ctx, snapshot); err != nil {
				c.logger.Error().Err(err).
					Str("asset", record.Asset.Symbol).
					Time("bucket", bucket).
					Msg("failed to upsert snapshot")
				continue
			}
			inserted++
		}
	}

	c.logger.Info().Time("bucket", bucket).
		Str("base", result.Base.Symbol).
		Str("size", result.PrimarySize.Label).
		Str("primary_source", result.PrimarySource).
		Int("stored", inserted).
		Msg("collection round complete")

	c.maybeAlert(ctx, bucket, result)

	return result, inserted, nil
}

func (c *Collector) seed(ctx context.Context) error {
	assets := c.universe.Assets()
	rows := make([]storage.StablecoinRow, len(assets))
	for i, a := range assets {
		rows[i] = storage.StablecoinRow{ID: a.ID, Symbol: a.Symbol, Name: a.Name}
	}
	return c.store.SeedStablecoins(ctx, rows)
}

func (c *Collector) maybeAlert(ctx context.Context, bucket time.Time, result *engine.Result) {
	if !c.alertsOn || c.notifier == nil || c.threshold.IsZero() {
		return
	}

	for _, record := range result.Records {
		if record.DeviationBps == nil || record.Price == nil {
			continue
		}
		deviation := *record.DeviationBps
		if !deviation.Abs().GreaterThan(c.threshold) {
			continue
		}
		if !c.cooldownElapsed(record.Asset.ID, bucket) {
			continue
		}

		direction := classifyDeviation(deviation)
		note := alerting.Notification{
			Bucket:       bucket,
			Symbol:       record.Asset.Symbol,
			BaseSymbol:   result.Base.Symbol,
			SizeLabel:    result.PrimarySize.Label,
			Price:        *record.Price,
			DeviationBps: deviation,
			ThresholdBps: c.threshold,
			Direction:    direction,
			Source:       record.Source,
			Channels:     c.channels,
		}
		if c.alertStore != nil {
			rec := storage.AlertRecord{
				AssetID:      record.Asset.ID,
				SampleTS:     bucket,
				DeviationBps: deviation,
				ThresholdBps: c.threshold,
				Direction:    direction,
				Channels:     c.channels,
			}
			if _, err := c.alertStore.InsertAlert(ctx, rec); err != nil {
				c.logger.Error().Err(err).
					Str("asset", record.Asset.Symbol).
					Time("bucket", bucket).
					Msg("failed to persist alert record")
			}
		}
		if err := c.notifier.Notify(ctx, note); err != nil {
			c.logger.Error().Err(err).
				Str("asset", record.Asset.Symbol).
				Time("bucket", bucket).
				Msg("failed to dispatch alert")
		}
	}
}

// cooldownElapsed reports whether an alert for the asset may fire at the
// given bucket, and records the emission time when it may.
func (c *Collector) cooldownElapsed(assetID string, bucket time.Time) bool {
	if c.cooldown <= 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if last, ok := c.lastAlert[assetID]; ok && bucket.Sub(last) < c.cooldown {
		return false
	}
	c.lastAlert[assetID] = bucket
	return true
}

func classifyDeviation(d decimal.Decimal) string {
	switch d.Sign() {
	case 1:
		return "premium"
	case -1:
		return "discount"
	default:
		return "flat"
	}
}

func (c *Collector) acquireLock(ctx context.Context) (func(), bool, error) {
	if c.lockKey == 0 || c.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := c.locker.TryAdvisoryLock(ctx, c.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
