package db

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/anstrom/netsweep/internal/errors"
)

// ScanRepository records sweep runs.
type ScanRepository struct {
	db *DB
}

// NewScanRepository creates a new scan repository.
func NewScanRepository(db *DB) *ScanRepository {
	return &ScanRepository{db: db}
}

// Create inserts a running scan.
func (r *ScanRepository) Create(ctx context.Context, scan *Scan) error {
	if scan.ID == uuid.Nil {
		scan.ID = uuid.New()
	}
	scan.Status = ScanStatusRunning

	query := `
		INSERT INTO scans (id, ip_range, status, trigger, hosts_total)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING started_at`

	err := r.db.QueryRowxContext(ctx, query,
		scan.ID, scan.IPRange, scan.Status, scan.Trigger, scan.HostsTotal,
	).Scan(&scan.StartedAt)
	if err != nil {
		return sanitizeDBError("create scan", err)
	}
	return nil
}

// Complete marks a scan completed with its live-host count.
func (r *ScanRepository) Complete(ctx context.Context, id uuid.UUID, hostsAlive int) error {
	return completeScan(ctx, r.db, id, hostsAlive)
}

func completeScan(ctx context.Context, exec sqlx.ExecerContext, id uuid.UUID, hostsAlive int) error {
	query := `
		UPDATE scans SET status = $2, hosts_alive = $3, completed_at = NOW()
		WHERE id = $1`
	return finishScan(ctx, exec, "complete scan", query, id, ScanStatusCompleted, hostsAlive)
}

// Fail marks a scan failed and stores a sanitized reason.
func (r *ScanRepository) Fail(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE scans SET status = $2, error = $3, completed_at = NOW()
		WHERE id = $1`
	return finishScan(ctx, r.db, "fail scan", query, id, ScanStatusFailed, reason)
}

func finishScan(ctx context.Context, exec sqlx.ExecerContext, op, query string, args ...interface{}) error {
	result, err := exec.ExecContext(ctx, query, args...)
	if err != nil {
		return sanitizeDBError(op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return sanitizeDBError(op, err)
	}
	if n == 0 {
		return errors.ErrNotFound("scan", args[0])
	}
	return nil
}

// Get retrieves a scan by id.
func (r *ScanRepository) Get(ctx context.Context, id uuid.UUID) (*Scan, error) {
	var scan Scan
	query := `SELECT id, ip_range, status, trigger, hosts_total, hosts_alive, error, started_at, completed_at
		FROM scans WHERE id = $1`
	if err := r.db.GetContext(ctx, &scan, query, id); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrNotFound("scan", id)
		}
		return nil, sanitizeDBError("get scan", err)
	}
	return &scan, nil
}

// ListRecent returns the newest scans first.
func (r *ScanRepository) ListRecent(ctx context.Context, limit int) ([]*Scan, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, ip_range, status, trigger, hosts_total, hosts_alive, error, started_at, completed_at
		FROM scans ORDER BY started_at DESC LIMIT $1`

	scans := []*Scan{}
	if err := r.db.SelectContext(ctx, &scans, query, limit); err != nil {
		return nil, sanitizeDBError("list scans", err)
	}
	return scans, nil
}

// FailStale marks scans left running by a previous process as failed.
func (r *ScanRepository) FailStale(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE scans SET status = $1, error = $2, completed_at = NOW() WHERE status = $3`,
		ScanStatusFailed, "interrupted by shutdown", ScanStatusRunning)
	if err != nil {
		return 0, sanitizeDBError("fail stale scans", err)
	}
	return result.RowsAffected()
}

// Store bundles the repositories the rest of netsweep talks to.
type Store struct {
	db      *DB
	Devices *DeviceRepository
	History *HistoryRepository
	Scans   *ScanRepository
}

// NewStore builds every repository over one connection pool.
func NewStore(db *DB) *Store {
	return &Store{
		db:      db,
		Devices: NewDeviceRepository(db),
		History: NewHistoryRepository(db),
		Scans:   NewScanRepository(db),
	}
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateScan records the start of a sweep.
func (s *Store) CreateScan(ctx context.Context, scan *Scan) error {
	return s.Scans.Create(ctx, scan)
}

// FailScan marks a sweep failed.
func (s *Store) FailScan(ctx context.Context, id uuid.UUID, reason string) error {
	return s.Scans.Fail(ctx, id, reason)
}

// ListScans returns the most recent sweeps.
func (s *Store) ListScans(ctx context.Context, limit int) ([]*Scan, error) {
	return s.Scans.ListRecent(ctx, limit)
}

// SweepRecord is what PersistSweep committed for one sweep.
type SweepRecord struct {
	Devices        []*Device
	MarkedInactive int64
}

// PersistSweep writes a finished sweep in one transaction: every observation
// with its history entry, the inactive marking of unseen devices in network,
// and the scan's completion. If any step fails nothing is kept, so devices
// and history only ever reflect completed sweeps.
func (s *Store) PersistSweep(ctx context.Context, scanID uuid.UUID, network string,
	observations []*Observation) (*SweepRecord, error) {
	record := &SweepRecord{Devices: make([]*Device, 0, len(observations))}
	err := s.db.WithTx(ctx, "persist sweep", func(tx *sqlx.Tx) error {
		seen := make([]int64, 0, len(observations))
		for _, obs := range observations {
			device, err := s.Devices.recordObservation(ctx, tx, scanID, obs)
			if err != nil {
				return err
			}
			record.Devices = append(record.Devices, device)
			seen = append(seen, device.ID)
		}

		n, err := markInactive(ctx, tx, network, seen)
		if err != nil {
			return err
		}
		record.MarkedInactive = n

		return completeScan(ctx, tx, scanID, len(record.Devices))
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListDevices returns known devices.
func (s *Store) ListDevices(ctx context.Context, filter DeviceFilter) ([]*Device, error) {
	return s.Devices.List(ctx, filter)
}

// DeviceHistory returns the history of one device, oldest first. It fails
// with a not-found error when the device is unknown.
func (s *Store) DeviceHistory(ctx context.Context, deviceID int64) ([]*HistoryEntry, error) {
	exists, err := s.Devices.Exists(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.ErrNotFound("device", deviceID)
	}
	return s.History.ListForDevice(ctx, deviceID)
}
