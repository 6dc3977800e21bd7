package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	migrateSQL = `CREATE TABLE IF NOT EXISTS snapshot_samples (
        fetched_at      TIMESTAMPTZ PRIMARY KEY,
        slot_height     BIGINT NOT NULL,
        total_lamports  BIGINT NOT NULL,
        balances        JSONB NOT NULL DEFAULT '{}',
        tx_count        INT NOT NULL DEFAULT 0,
        status          TEXT NOT NULL DEFAULT 'complete',
        error           TEXT,
        created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
    );
    CREATE INDEX IF NOT EXISTS idx_snapshot_samples_slot ON snapshot_samples (slot_height);

    CREATE TABLE IF NOT EXISTS alerts (
        id          BIGSERIAL PRIMARY KEY,
        kind        TEXT NOT NULL,
        wallet      TEXT NOT NULL DEFAULT '',
        detail      TEXT NOT NULL DEFAULT '',
        channels    TEXT[] NOT NULL DEFAULT '{}',
        created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	upsertSampleSQL = `INSERT INTO snapshot_samples (
        fetched_at,
        slot_height,
        total_lamports,
        balances,
        tx_count,
        status,
        error
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    ON CONFLICT (fetched_at) DO UPDATE
    SET
        slot_height    = EXCLUDED.slot_height,
        total_lamports = EXCLUDED.total_lamports,
        balances       = EXCLUDED.balances,
        tx_count       = EXCLUDED.tx_count,
        status         = EXCLUDED.status,
        error          = EXCLUDED.error;`

	listSamplesBetweenSQL = `SELECT
        fetched_at, slot_height, total_lamports, balances, tx_count, status, error, created_at
    FROM snapshot_samples
    WHERE fetched_at >= $1
      AND fetched_at < $2
    ORDER BY fetched_at;`

	listRecentSamplesSQL = `SELECT
        fetched_at, slot_height, total_lamports, balances, tx_count, status, error, created_at
    FROM snapshot_samples
    ORDER BY fetched_at DESC
    LIMIT $1;`

	countSamplesSQL = `SELECT COUNT(*) FROM snapshot_samples;`

	deleteSamplesBeforeSQL = `DELETE FROM snapshot_samples WHERE fetched_at < $1;`

	insertAlertSQL = `INSERT INTO alerts (kind, wallet, detail, channels)
    VALUES ($1,$2,$3,$4)
    RETURNING id, kind, wallet, detail, channels, created_at;`

	listRecentAlertsSQL = `SELECT id, kind, wallet, detail, channels, created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// SampleStore defines operations for snapshot sample persistence.
type SampleStore interface {
	UpsertSample(ctx context.Context, sample SnapshotSample) error
	ListSamplesBetween(ctx context.Context, from, to time.Time) ([]SnapshotSample, error)
	ListRecentSamples(ctx context.Context, limit int) ([]SnapshotSample, error)
	CountSamples(ctx context.Context) (int64, error)
	DeleteSamplesBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to snapshot samples and alerts.
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

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, migrateSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
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
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
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

// UpsertSample persists or updates a snapshot sample.
func (s *Store) UpsertSample(ctx context.Context, sample SnapshotSample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var errMsg interface{}
	if sample.Error != nil {
		errMsg = *sample.Error
	}

	_, execErr := pool.Exec(ctx, upsertSampleSQL,
		sample.FetchedAt,
		int64(sample.SlotHeight),
		int64(sample.TotalLamports),
		[]byte(sample.Balances),
		sample.TxCount,
		sample.Status,
		errMsg,
	)
	if execErr != nil {
		return fmt.Errorf("upsert snapshot sample: %w", execErr)
	}
	return nil
}

// ListSamplesBetween lists samples within a time window.
func (s *Store) ListSamplesBetween(ctx context.Context, from, to time.Time) ([]SnapshotSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSamplesBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list samples between: %w", queryErr)
	}
	defer rows.Close()

	return collectSamples(rows, 0)
}

// ListRecentSamples lists the most recent samples ordered by descending fetch time.
func (s *Store) ListRecentSamples(ctx context.Context, limit int) ([]SnapshotSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSamplesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent samples: %w", queryErr)
	}
	defer rows.Close()

	return collectSamples(rows, limit)
}

// CountSamples counts stored samples.
func (s *Store) CountSamples(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSamplesSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count samples: %w", scanErr)
	}
	return count, nil
}

// DeleteSamplesBefore prunes samples fetched before the cutoff.
func (s *Store) DeleteSamplesBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	cmdTag, execErr := pool.Exec(ctx, deleteSamplesBeforeSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("delete samples before: %w", execErr)
	}
	return cmdTag.RowsAffected(), nil
}

// InsertAlert persists an alert emission.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.Kind,
		alert.Wallet,
		alert.Detail,
		alert.Channels,
	)

	var rec AlertRecord
	if scanErr := row.Scan(
		&rec.ID,
		&rec.Kind,
		&rec.Wallet,
		&rec.Detail,
		&rec.Channels,
		&rec.CreatedAt,
	); scanErr != nil {
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
		var rec AlertRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.Kind,
			&rec.Wallet,
			&rec.Detail,
			&rec.Channels,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

func collectSamples(rows pgx.Rows, capacityHint int) ([]SnapshotSample, error) {
	samples := make([]SnapshotSample, 0, capacityHint)
	for rows.Next() {
		sample, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

func scanSample(row pgx.Row) (SnapshotSample, error) {
	var sample SnapshotSample
	var slot, totalLamports int64
	var errMsg *string

	if err := row.Scan(
		&sample.FetchedAt,
		&slot,
		&totalLamports,
		&sample.Balances,
		&sample.TxCount,
		&sample.Status,
		&errMsg,
		&sample.CreatedAt,
	); err != nil {
		return SnapshotSample{}, fmt.Errorf("scan snapshot sample: %w", err)
	}

	sample.SlotHeight = uint64(slot)
	sample.TotalLamports = uint64(totalLamports)
	sample.Error = errMsg
	return sample, nil
}

var (
	_ SampleStore    = (*Store)(nil)
	_ AlertStore     = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
