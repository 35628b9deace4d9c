package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"

	"github.com/udisondev/goicq/internal/config"
	"github.com/udisondev/goicq/internal/db"
	"github.com/udisondev/goicq/internal/device"
	"github.com/udisondev/goicq/internal/login"
)

// storage picks where tokens and devices live: files under data_dir or
// PostgreSQL.
type storage struct {
	cfg      config.Client
	database *db.DB
	tokens   login.TokenStore
}

func openStorage(ctx context.Context, cfg config.Client) (*storage, error) {
	if cfg.Uin == 0 {
		return nil, errors.New("uin is not set")
	}
	st := &storage{cfg: cfg}

	if cfg.TokenStore != config.TokenStorePostgres {
		st.tokens = login.NewFileStore(cfg.DataDir)
		return st, nil
	}

	database, err := db.New(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	slog.Info("database connected")
	if err := db.RunMigrations(ctx, cfg.Database.DSN()); err != nil {
		database.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	st.database = database
	st.tokens = database.Tokens()
	return st, nil
}

func (s *storage) dir() string {
	return filepath.Join(s.cfg.DataDir, strconv.FormatInt(s.cfg.Uin, 10))
}

// device loads the account's device, generating one on first use.
func (s *storage) device(ctx context.Context) (*device.Device, error) {
	proto := device.Protocol(s.cfg.Protocol)
	if s.database != nil {
		return s.database.Devices().LoadOrGenerate(ctx, s.cfg.Uin, proto)
	}

	path := filepath.Join(s.dir(), "device.json")
	d, created, err := device.LoadOrGenerate(path)
	if err != nil {
		return nil, err
	}
	if created {
		slog.Info("generated device", "path", path, "imei", d.IMEI)
	}
	if d.Protocol != proto {
		d.Protocol = proto
		if err := d.Save(path); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (s *storage) Close() {
	if s.database != nil {
		s.database.Close()
	}
}
