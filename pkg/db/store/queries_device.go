package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/subseactl/fleetd/internal/metrics"
)

// UpsertDeviceRollup is the idempotent upsert primitive (§4.1(i)): the
// Device row is created on first contact and otherwise only advanced when
// the incoming hb_seq is not behind the stored rollup, so a late or
// duplicate frame can never clobber a newer one.
func (q *Queries) UpsertDeviceRollup(ctx context.Context, arg UpsertDeviceRollupParams) (Device, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO devices (mid, firmware_tag, last_hb_seq, last_contact_at, last_state, position, power, environment, network)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (mid) DO UPDATE SET
			firmware_tag    = CASE WHEN $3 >= devices.last_hb_seq THEN EXCLUDED.firmware_tag ELSE devices.firmware_tag END,
			last_hb_seq     = CASE WHEN $3 >= devices.last_hb_seq THEN EXCLUDED.last_hb_seq ELSE devices.last_hb_seq END,
			last_contact_at = CASE WHEN $3 >= devices.last_hb_seq THEN EXCLUDED.last_contact_at ELSE devices.last_contact_at END,
			last_state      = CASE WHEN $3 >= devices.last_hb_seq THEN EXCLUDED.last_state ELSE devices.last_state END,
			position        = CASE WHEN $3 >= devices.last_hb_seq THEN EXCLUDED.position ELSE devices.position END,
			power           = CASE WHEN $3 >= devices.last_hb_seq THEN EXCLUDED.power ELSE devices.power END,
			environment     = CASE WHEN $3 >= devices.last_hb_seq THEN EXCLUDED.environment ELSE devices.environment END,
			network         = CASE WHEN $3 >= devices.last_hb_seq THEN EXCLUDED.network ELSE devices.network END,
			updated_at      = now()
		RETURNING mid, firmware_tag, last_hb_seq, last_contact_at, last_state, position, power, environment, network, created_at, updated_at
	`, arg.MID, arg.FirmwareTag, arg.HbSeq, arg.ReceivedAt, arg.LastState, arg.Position, arg.Power, arg.Environment, arg.Network)

	var d Device
	err := row.Scan(&d.MID, &d.FirmwareTag, &d.LastHbSeq, &d.LastContactAt, &d.LastState, &d.Position, &d.Power, &d.Environment, &d.Network, &d.CreatedAt, &d.UpdatedAt)
	metrics.ObserveStoreOp("upsert_device_rollup", err == nil)
	if err != nil {
		return Device{}, fmt.Errorf("upsert device rollup: %w", err)
	}
	return d, nil
}

func (q *Queries) GetDevice(ctx context.Context, mid string) (Device, error) {
	row := q.db.QueryRow(ctx, `
		SELECT mid, firmware_tag, last_hb_seq, last_contact_at, last_state, position, power, environment, network, created_at, updated_at
		FROM devices WHERE mid = $1
	`, mid)

	var d Device
	err := row.Scan(&d.MID, &d.FirmwareTag, &d.LastHbSeq, &d.LastContactAt, &d.LastState, &d.Position, &d.Power, &d.Environment, &d.Network, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Device{}, ErrNoRows
		}
		return Device{}, fmt.Errorf("get device: %w", err)
	}
	return d, nil
}

func (q *Queries) ListDevices(ctx context.Context, arg ListDevicesParams) ([]Device, error) {
	rows, err := q.db.Query(ctx, `
		SELECT mid, firmware_tag, last_hb_seq, last_contact_at, last_state, position, power, environment, network, created_at, updated_at
		FROM devices
		WHERE ($2 = '' OR mid > $2)
		ORDER BY mid
		LIMIT $1
	`, arg.Limit, arg.Cursor.String)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var out []Device
	for rows.Next() {
		var d Device
		if err := rows.Scan(&d.MID, &d.FirmwareTag, &d.LastHbSeq, &d.LastContactAt, &d.LastState, &d.Position, &d.Power, &d.Environment, &d.Network, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("list devices scan: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
