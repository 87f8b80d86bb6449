package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "numwatch/pkg/logx"
)

//go:embed migrations.sql
var migrations string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(context.Background(), migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Load(ctx context.Context) (map[string]Record, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, last_number, latest_numbers, image_url, button_updated, first_run_completed, enabled FROM sites ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]Record{}
	for rows.Next() {
		var (
			id, typ, latest, image string
			last                   sql.NullString
			updated, firstRun      bool
			enabled                sql.NullBool
		)
		if err := rows.Scan(&id, &typ, &last, &latest, &image, &updated, &firstRun, &enabled); err != nil {
			return nil, err
		}
		r := Record{
			Type:              typ,
			LastNumber:        last.String,
			LatestNumbers:     []string{},
			ImageURL:          image,
			ButtonUpdated:     updated,
			FirstRunCompleted: firstRun,
		}
		if latest != "" {
			if err := json.Unmarshal([]byte(latest), &r.LatestNumbers); err != nil {
				s.log.Warn("skipping unreadable site record", logx.Site(id), logx.Err(err))
				continue
			}
		}
		if enabled.Valid {
			v := enabled.Bool
			r.Enabled = &v
		}
		out[id] = r
	}
	return out, rows.Err()
}

func (s *sqliteStore) Save(ctx context.Context, id string, r Record) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	latest, err := json.Marshal(append([]string{}, r.LatestNumbers...))
	if err != nil {
		return err
	}
	var enabled any
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sites(id, type, last_number, latest_numbers, image_url, button_updated, first_run_completed, enabled, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   type=excluded.type,
		   last_number=excluded.last_number,
		   latest_numbers=excluded.latest_numbers,
		   image_url=excluded.image_url,
		   button_updated=excluded.button_updated,
		   first_run_completed=excluded.first_run_completed,
		   enabled=excluded.enabled,
		   updated_at=excluded.updated_at`,
		id, r.Type, nullStr(r.LastNumber), string(latest), r.ImageURL, r.ButtonUpdated, r.FirstRunCompleted, enabled,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
