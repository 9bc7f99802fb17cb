package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	seedStablecoinSQL = `INSERT INTO stablecoins (id, symbol, name)
    VALUES ($1, $2, $3)
    ON CONFLICT (id) DO UPDATE
    SET symbol = EXCLUDED.symbol,
        name   = EXCLUDED.name;`

	upsertSnapshotSQL = `INSERT INTO price_snapshots (
        stablecoin_id,
        bucket_ts,
        base_symbol,
        size_label,
        price,
        deviation_bps,
        source
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    ON CONFLICT (stablecoin_id, bucket_ts, size_label) DO UPDATE
    SET
        base_symbol   = EXCLUDED.base_symbol,
        price         = EXCLUDED.price,
        deviation_bps = EXCLUDED.deviation_bps,
        source        = EXCLUDED.source;`

	listLatestSnapshotsSQL = `SELECT DISTINCT ON (p.stablecoin_id)
        p.stablecoin_id,
        s.symbol,
        s.name,
        p.bucket_ts,
        p.base_symbol,
        p.size_label,
        p.price,
        p.deviation_bps,
        p.source,
        p.created_at
    FROM price_snapshots p
    JOIN stablecoins s ON s.id = p.stablecoin_id
    WHERE ($1 = '' OR p.base_symbol = $1)
      AND ($2 = '' OR p.size_label = $2)
    ORDER BY p.stablecoin_id, p.bucket_ts DESC;`

	listHistorySQL = `SELECT
        p.stablecoin_id,
        s.symbol,
        s.name,
        p.bucket_ts,
        p.base_symbol,
        p.size_label,
        p.price,
        p.deviation_bps,
        p.source,
        p.created_at
    FROM price_snapshots p
    JOIN stablecoins s ON s.id = p.stablecoin_id
    WHERE p.stablecoin_id = ANY($1)
      AND p.bucket_ts >= $2
    ORDER BY p.bucket_ts;`

	listAllHistorySQL = `SELECT
        p.stablecoin_id,
        s.symbol,
        s.name,
        p.bucket_ts,
        p.base_symbol,
        p.size_label,
        p.price,
        p.deviation_bps,
        p.source,
        p.created_at
    FROM price_snapshots p
    JOIN stablecoins s ON s.id = p.stablecoin_id
    WHERE p.stablecoin_id = ANY($1)
    ORDER BY p.bucket_ts;`

	countSnapshotsSQL = `SELECT COUNT(*) FROM price_snapshots;`

	insertAlertSQL = `INSERT INTO alerts (
        stablecoin_id,
        sample_ts,
        deviation_bps,
        threshold_bps,
        direction,
        channels
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (stablecoin_id, sample_ts) DO UPDATE
    SET deviation_bps = EXCLUDED.deviation_bps,
        threshold_bps = EXCLUDED.threshold_bps,
        direction     = EXCLUDED.direction,
        channels      = EXCLUDED.channels
    RETURNING id, stablecoin_id, sample_ts, deviation_bps, threshold_bps, direction, channels, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        stablecoin_id,
        sample_ts,
        deviation_bps,
        threshold_bps,
        direction,
        channels,
        created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// SnapshotStore defines operations for peg snapshot persistence.
type SnapshotStore interface {
	SeedStablecoins(ctx context.Context, rows []StablecoinRow) error
	UpsertSnapshot(ctx context.Context, snapshot Snapshot) error
	ListLatestSnapshots(ctx context.Context, baseSymbol, sizeLabel string) ([]Snapshot, error)
	ListHistory(ctx context.Context, assetIDs []string, from time.Time) ([]Snapshot, error)
	ListAllHistory(ctx context.Context, assetIDs []string) ([]Snapshot, error)
	CountSnapshots(ctx context.Context) (int64, error)
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to snapshots and alerts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// Best effort: the lock is session-scoped and releasing the
		// connection drops it anyway.
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// SeedStablecoins upserts the tracked-asset reference rows.
func (s *Store) SeedStablecoins(ctx context.Context, rows []StablecoinRow) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, row := range rows {
		if _, execErr := pool.Exec(ctx, seedStablecoinSQL, row.ID, row.Symbol, row.Name); execErr != nil {
			return fmt.Errorf("seed stablecoin %s: %w", row.ID, execErr)
		}
	}
	return nil
}

// UpsertSnapshot persists or updates one peg observation.
func (s *Store) UpsertSnapshot(ctx context.Context, snapshot Snapshot) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, upsertSnapshotSQL,
		snapshot.AssetID,
		snapshot.Bucket,
		snapshot.BaseSymbol,
		snapshot.SizeLabel,
		snapshot.Price.String(),
		snapshot.DeviationBps.String(),
		snapshot.Source,
	)
	if execErr != nil {
		return fmt.Errorf("upsert snapshot: %w", execErr)
	}
	return nil
}

// ListLatestSnapshots returns each tracked asset's most recent observation,
// restricted to the given base symbol and size label. Empty filter values
// match every row.
func (s *Store) ListLatestSnapshots(ctx context.Context, baseSymbol, sizeLabel string) ([]Snapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listLatestSnapshotsSQL, baseSymbol, sizeLabel)
	if queryErr != nil {
		return nil, fmt.Errorf("list latest snapshots: %w", queryErr)
	}
	defer rows.Close()

	return collectSnapshots(rows)
}

// ListHistory lists snapshots for the given assets from a point in time.
func (s *Store) ListHistory(ctx context.Context, assetIDs []string, from time.Time) ([]Snapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listHistorySQL, assetIDs, from)
	if queryErr != nil {
		return nil, fmt.Errorf("list history: %w", queryErr)
	}
	defer rows.Close()

	return collectSnapshots(rows)
}

// ListAllHistory lists every stored snapshot for the given assets.
func (s *Store) ListAllHistory(ctx context.Context, assetIDs []string) ([]Snapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listAllHistorySQL, assetIDs)
	if queryErr != nil {
		return nil, fmt.Errorf("list all history: %w", queryErr)
	}
	defer rows.Close()

	return collectSnapshots(rows)
}

// CountSnapshots counts stored observations.
func (s *Store) CountSnapshots(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSnapshotsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count snapshots: %w", scanErr)
	}
	return count, nil
}

// InsertAlert persists an alert emission.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.AssetID,
		alert.SampleTS,
		alert.DeviationBps.String(),
		alert.ThresholdBps.String(),
		alert.Direction,
		alert.Channels,
	)

	rec, scanErr := scanAlert(row)
	if scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		rec, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteAlertsBefore deletes historical alerts.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

func collectSnapshots(rows pgx.Rows) ([]Snapshot, error) {
	snapshots := make([]Snapshot, 0)
	for rows.Next() {
		snapshot, scanErr := scanSnapshot(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		snapshots = append(snapshots, snapshot)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return snapshots, nil
}

func scanSnapshot(rows pgx.Rows) (Snapshot, error) {
	var (
		snapshot     Snapshot
		priceStr     string
		deviationStr string
	)

	if err := rows.Scan(
		&snapshot.AssetID,
		&snapshot.Symbol,
		&snapshot.Name,
		&snapshot.Bucket,
		&snapshot.BaseSymbol,
		&snapshot.SizeLabel,
		&priceStr,
		&deviationStr,
		&snapshot.Source,
		&snapshot.CreatedAt,
	); err != nil {
		return Snapshot{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return Snapshot{}, fmt.Errorf("parse price: %w", err)
	}
	deviation, err := decimal.NewFromString(deviationStr)
	if err != nil {
		return Snapshot{}, fmt.Errorf("parse deviation bps: %w", err)
	}

	snapshot.Price = price
	snapshot.DeviationBps = deviation
	return snapshot, nil
}

func scanAlert(row pgx.Row) (AlertRecord, error) {
	var (
		rec          AlertRecord
		deviationStr string
		thresholdStr string
	)

	if err := row.Scan(
		&rec.ID,
		&rec.AssetID,
		&rec.SampleTS,
		&deviationStr,
		&thresholdStr,
		&rec.Direction,
		&rec.Channels,
		&rec.CreatedAt,
	); err != nil {
		return AlertRecord{}, err
	}

	deviation, err := decimal.NewFromString(deviationStr)
	if err != nil {
		return AlertRecord{}, fmt.Errorf("parse deviation bps: %w", err)
	}
	threshold, err := decimal.NewFromString(thresholdStr)
	if err != nil {
		return AlertRecord{}, fmt.Errorf("parse threshold bps: %w", err)
	}

	rec.DeviationBps = deviation
	rec.ThresholdBps = threshold
	return rec, nil
}
