package db

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// HistoryRepository reads the append-only sweep history.
type HistoryRepository struct {
	db *DB
}

// NewHistoryRepository creates a new history repository.
func NewHistoryRepository(db *DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func appendHistory(ctx context.Context, tx *sqlx.Tx, entry *HistoryEntry) error {
	query := `
		INSERT INTO scan_history (device_id, scan_id, open_ports, status)
		VALUES (:device_id, :scan_id, :open_ports, :status)
		RETURNING id, scanned_at`

	rows, err := sqlx.NamedQueryContext(ctx, tx, query, entry)
	if err != nil {
		return sanitizeDBError("append history", err)
	}
	defer func() { _ = rows.Close() }()

	if rows.Next() {
		if err := rows.Scan(&entry.ID, &entry.ScannedAt); err != nil {
			return sanitizeDBError("scan appended history", err)
		}
	}
	return sanitizeDBError("append history", rows.Err())
}

// ListForDevice returns every entry for deviceID, oldest first. An unknown
// device yields an empty slice.
func (r *HistoryRepository) ListForDevice(ctx context.Context, deviceID int64) ([]*HistoryEntry, error) {
	query := `
		SELECT id, device_id, scan_id, scanned_at, open_ports, status
		FROM scan_history
		WHERE device_id = $1
		ORDER BY scanned_at ASC, id ASC`

	entries := []*HistoryEntry{}
	if err := r.db.SelectContext(ctx, &entries, query, deviceID); err != nil {
		return nil, sanitizeDBError("list history", err)
	}
	return entries, nil
}

// CountForDevice returns how many sweeps have recorded deviceID.
func (r *HistoryRepository) CountForDevice(ctx context.Context, deviceID int64) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM scan_history WHERE device_id = $1`, deviceID); err != nil {
		return 0, sanitizeDBError("count history", err)
	}
	return n, nil
}
