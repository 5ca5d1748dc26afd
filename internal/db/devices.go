package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/anstrom/netsweep/internal/errors"
)

const deviceColumns = `id, identity_key, ip_address, mac_address, hostname, vendor,
	is_active, open_ports, response_time_ms, first_seen, last_seen`

// DeviceFilter narrows ListDevices.
type DeviceFilter struct {
	ActiveOnly bool
	Network    string
}

// DeviceRepository handles device persistence.
type DeviceRepository struct {
	db *DB
}

// NewDeviceRepository creates a new device repository.
func NewDeviceRepository(db *DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// List returns known devices ordered by address.
func (r *DeviceRepository) List(ctx context.Context, filter DeviceFilter) ([]*Device, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.ActiveOnly {
		where = append(where, "is_active")
	}
	if filter.Network != "" {
		args = append(args, filter.Network)
		where = append(where, fmt.Sprintf("ip_address <<= $%d::cidr", len(args)))
	}

	query := `SELECT ` + deviceColumns + ` FROM devices`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ip_address, id"

	devices := []*Device{}
	if err := r.db.SelectContext(ctx, &devices, query, args...); err != nil {
		return nil, sanitizeDBError("list devices", err)
	}
	return devices, nil
}

// GetByID retrieves a device by its numeric id.
func (r *DeviceRepository) GetByID(ctx context.Context, id int64) (*Device, error) {
	var device Device
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = $1`

	if err := r.db.GetContext(ctx, &device, query, id); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrNotFound("device", id)
		}
		return nil, sanitizeDBError("get device", err)
	}
	return &device, nil
}

// Exists reports whether a device id is known.
func (r *DeviceRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM devices WHERE id = $1)`, id); err != nil {
		return false, sanitizeDBError("check device", err)
	}
	return exists, nil
}

// findForUpdate resolves the row an observation belongs to. A MAC match wins;
// otherwise the most recently seen device at the same IP that has no MAC, or
// whose MAC is unknown in this observation, is reused.
func (r *DeviceRepository) findForUpdate(ctx context.Context, tx *sqlx.Tx, obs *Observation) (*Device, error) {
	var device Device

	if len(obs.MAC) > 0 {
		err := tx.GetContext(ctx, &device,
			`SELECT `+deviceColumns+` FROM devices WHERE identity_key = $1 FOR UPDATE`,
			MACIdentity(obs.MAC))
		switch {
		case err == nil:
			return &device, nil
		case !stderrors.Is(err, sql.ErrNoRows):
			return nil, sanitizeDBError("lookup device by mac", err)
		}

		// Promote a device that was previously only known by its IP.
		err = tx.GetContext(ctx, &device,
			`SELECT `+deviceColumns+` FROM devices WHERE identity_key = $1 FOR UPDATE`,
			IPIdentity(obs.IP))
		switch {
		case err == nil:
			return &device, nil
		case stderrors.Is(err, sql.ErrNoRows):
			return nil, nil
		default:
			return nil, sanitizeDBError("lookup device by ip", err)
		}
	}

	err := tx.GetContext(ctx, &device,
		`SELECT `+deviceColumns+` FROM devices
		WHERE ip_address = $1
		ORDER BY (identity_key = $2) DESC, last_seen DESC
		LIMIT 1 FOR UPDATE`,
		IPAddr{IP: obs.IP}, IPIdentity(obs.IP))
	switch {
	case err == nil:
		return &device, nil
	case stderrors.Is(err, sql.ErrNoRows):
		return nil, nil
	default:
		return nil, sanitizeDBError("lookup device by ip", err)
	}
}

// upsert writes the observation onto an existing row or inserts a new one.
func (r *DeviceRepository) upsert(ctx context.Context, tx *sqlx.Tx, obs *Observation) (*Device, error) {
	existing, err := r.findForUpdate(ctx, tx, obs)
	if err != nil {
		return nil, err
	}

	device := &Device{
		IdentityKey: obs.IdentityKey(),
		IPAddress:   IPAddr{IP: obs.IP},
		MACAddress:  MACAddr{HardwareAddr: obs.MAC},
		Hostname:    nullableString(obs.Hostname),
		Vendor:      nullableString(obs.Vendor),
		IsActive:    true,
		OpenPorts:   PortList(obs.OpenPorts).Sorted(),
	}
	if obs.RTT > 0 {
		ms := float64(obs.RTT.Microseconds()) / 1000
		device.ResponseTimeMS = &ms
	}

	var query string
	if existing != nil {
		device.ID = existing.ID
		if len(obs.MAC) == 0 {
			device.IdentityKey = existing.IdentityKey
		}
		query = `
			UPDATE devices SET
				identity_key = :identity_key,
				ip_address = :ip_address,
				mac_address = COALESCE(:mac_address, mac_address),
				hostname = COALESCE(:hostname, hostname),
				vendor = COALESCE(:vendor, vendor),
				is_active = TRUE,
				open_ports = :open_ports,
				response_time_ms = :response_time_ms,
				last_seen = NOW()
			WHERE id = :id
			RETURNING ` + deviceColumns
	} else {
		query = `
			INSERT INTO devices (
				identity_key, ip_address, mac_address, hostname, vendor,
				is_active, open_ports, response_time_ms
			)
			VALUES (
				:identity_key, :ip_address, :mac_address, :hostname, :vendor,
				TRUE, :open_ports, :response_time_ms
			)
			RETURNING ` + deviceColumns
	}

	rows, err := sqlx.NamedQueryContext(ctx, tx, query, device)
	if err != nil {
		return nil, sanitizeDBError("upsert device", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, sanitizeDBError("upsert device", err)
		}
		return nil, errors.NewDatabaseError(errors.CodeDatabaseQuery, "upsert returned no row").WithOperation("upsert device")
	}
	var saved Device
	if err := rows.StructScan(&saved); err != nil {
		return nil, sanitizeDBError("scan upserted device", err)
	}
	return &saved, nil
}

// RecordObservation upserts the device and appends its history entry for
// scanID in a single transaction. Either both rows are written or neither.
func (r *DeviceRepository) RecordObservation(ctx context.Context, scanID uuid.UUID, obs *Observation) (*Device, error) {
	var saved *Device
	err := r.db.WithTx(ctx, "record observation", func(tx *sqlx.Tx) error {
		device, err := r.recordObservation(ctx, tx, scanID, obs)
		if err != nil {
			return err
		}
		saved = device
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (r *DeviceRepository) recordObservation(ctx context.Context, tx *sqlx.Tx, scanID uuid.UUID, obs *Observation) (*Device, error) {
	device, err := r.upsert(ctx, tx, obs)
	if err != nil {
		return nil, err
	}
	entry := &HistoryEntry{
		DeviceID:  device.ID,
		ScanID:    scanID,
		OpenPorts: device.OpenPorts,
		Status:    HistoryStatusCompleted,
	}
	if err := appendHistory(ctx, tx, entry); err != nil {
		return nil, err
	}
	return device, nil
}

// MarkInactive flags every active device inside network that is not in seen.
func (r *DeviceRepository) MarkInactive(ctx context.Context, network string, seen []int64) (int64, error) {
	return markInactive(ctx, r.db, network, seen)
}

func markInactive(ctx context.Context, exec sqlx.ExecerContext, network string, seen []int64) (int64, error) {
	query := `
		UPDATE devices SET is_active = FALSE, open_ports = '{}'
		WHERE is_active AND ip_address <<= $1::cidr AND NOT (id = ANY($2))`

	ids := pq.Int64Array(seen)
	if ids == nil {
		ids = pq.Int64Array{}
	}
	result, err := exec.ExecContext(ctx, query, network, ids)
	if err != nil {
		return 0, sanitizeDBError("mark devices inactive", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, sanitizeDBError("mark devices inactive", err)
	}
	return n, nil
}
