package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"alertd/internal/alert"
	logx "alertd/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	p := strings.TrimSpace(cfg.Path)
	if p == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Save(ctx context.Context, rec alert.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: empty id", alert.ErrPersistence)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts(id, line, saved_at) VALUES(?,?,?)
		 ON CONFLICT(id) DO UPDATE SET line=excluded.line, saved_at=excluded.saved_at`,
		rec.ID, EncodeLine(rec), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("%w: save %s: %w", alert.ErrPersistence, rec.ID, err)
	}
	return nil
}

func (s *sqliteStore) Erase(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%w: erase %s: %w", alert.ErrPersistence, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: erase %s: %w", alert.ErrPersistence, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: no entry for %s", alert.ErrUnknownID, id)
	}
	return nil
}

func (s *sqliteStore) ScanAll(ctx context.Context) (ScanResult, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, line FROM alerts ORDER BY id`)
	if err != nil {
		return ScanResult{}, err
	}
	defer rows.Close()

	var res ScanResult
	for rows.Next() {
		var id, line string
		if err := rows.Scan(&id, &line); err != nil {
			return res, err
		}
		p, err := DecodeLine(id, line)
		if err != nil {
			s.log.Warn("malformed alert row skipped", logx.String("id", id), logx.Err(err))
			res.Malformed = append(res.Malformed, id)
			continue
		}
		res.Records = append(res.Records, p)
	}
	return res, rows.Err()
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
