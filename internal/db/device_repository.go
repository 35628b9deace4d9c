package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/udisondev/goicq/internal/device"
)

// ErrNoDevice is returned by DeviceRepository.Load when uin has no device.
var ErrNoDevice = errors.New("no stored device")

// DeviceRepository keeps one generated device per account as JSONB.
type DeviceRepository struct {
	pool *pgxpool.Pool
}

// NewDeviceRepository создаёт новый PostgreSQL repository устройств.
func NewDeviceRepository(pool *pgxpool.Pool) *DeviceRepository {
	return &DeviceRepository{pool: pool}
}

// Load returns the device of uin or ErrNoDevice.
func (r *DeviceRepository) Load(ctx context.Context, uin int64) (*device.Device, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `SELECT device FROM devices WHERE uin = $1`, uin).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoDevice
	}
	if err != nil {
		return nil, fmt.Errorf("querying device of %d: %w", uin, err)
	}
	var d device.Device
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("parsing device of %d: %w", uin, err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Save stores d for uin, replacing an existing row.
func (r *DeviceRepository) Save(ctx context.Context, uin int64, d *device.Device) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encoding device: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO devices (uin, device) VALUES ($1, $2)
		 ON CONFLICT (uin) DO UPDATE SET device = EXCLUDED.device`,
		uin, raw,
	)
	if err != nil {
		return fmt.Errorf("saving device of %d: %w", uin, err)
	}
	return nil
}

// LoadOrGenerate returns the stored device of uin, generating and storing
// one with protocol proto on first use.
func (r *DeviceRepository) LoadOrGenerate(ctx context.Context, uin int64, proto device.Protocol) (*device.Device, error) {
	d, err := r.Load(ctx, uin)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, ErrNoDevice) {
		return nil, err
	}
	if d, err = device.Generate(); err != nil {
		return nil, err
	}
	d.Protocol = proto
	if err := r.Save(ctx, uin, d); err != nil {
		return nil, err
	}
	slog.Info("generated device", "uin", uin, "imei", d.IMEI)
	return d, nil
}
