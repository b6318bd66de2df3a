package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "agentdeck/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

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

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) GetSettings(ctx context.Context) (Settings, bool, error) {
	if s == nil || s.db == nil {
		return Settings{}, false, ErrDisabled
	}
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM settings WHERE id = 1`).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return Settings{}, false, nil
	}
	if err != nil {
		return Settings{}, false, err
	}
	var st Settings
	if err := json.Unmarshal([]byte(body), &st); err != nil {
		return Settings{}, false, fmt.Errorf("settings row corrupt: %w", err)
	}
	return st, true, nil
}

func (s *sqliteStore) PutSettings(ctx context.Context, st Settings) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO settings(id, body) VALUES(1, ?)
		 ON CONFLICT(id) DO UPDATE SET body=excluded.body`,
		string(b),
	)
	return err
}

func (s *sqliteStore) GetCustomization(ctx context.Context, label string) (Customization, bool, error) {
	if s == nil || s.db == nil {
		return Customization{}, false, ErrDisabled
	}
	var name sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT display_name FROM customizations WHERE label = ?`, label).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return Customization{}, false, nil
	}
	if err != nil {
		return Customization{}, false, err
	}
	return Customization{DisplayName: name.String}, true, nil
}

func (s *sqliteStore) PutCustomization(ctx context.Context, label string, c Customization) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if label == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO customizations(label, display_name) VALUES(?,?)
		 ON CONFLICT(label) DO UPDATE SET display_name=excluded.display_name`,
		label, nullStr(c.DisplayName),
	)
	return err
}

func (s *sqliteStore) DeleteCustomization(ctx context.Context, label string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM customizations WHERE label = ?`, label)
	return err
}

func (s *sqliteStore) ListCustomizations(ctx context.Context) (map[string]Customization, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx, `SELECT label, display_name FROM customizations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]Customization{}
	for rows.Next() {
		var label string
		var name sql.NullString
		if err := rows.Scan(&label, &name); err != nil {
			return nil, err
		}
		out[label] = Customization{DisplayName: name.String}
	}
	return out, rows.Err()
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	ok := 0
	if e.OK {
		ok = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, action, label, ok, message, took_ms) VALUES(?,?,?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.Action, e.Label, ok, nullStr(e.Message), e.TookMS,
	)
	return err
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
