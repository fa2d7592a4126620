package statestore

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/vpnhouse/killswitch-lib-go/killswitch"
)

const sqliteSchema = `
create table if not exists killswitch_state (
    id   integer primary key check (id = 1),
    mode text not null
);`

// SQLite keeps the kill switch mode in a single-row table, for daemons
// that already carry a sqlite database around.
type SQLite struct {
	db *sqlx.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open state db %s: %w", path, err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init state db: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Load() (killswitch.Mode, error) {
	var raw string
	err := s.db.Get(&raw, `select mode from killswitch_state where id = 1`)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return killswitch.ModeOff, nil
		}
		return killswitch.ModeOff, fmt.Errorf("load state: %w", err)
	}

	mode, err := killswitch.ParseMode(raw)
	if err != nil {
		zap.L().Warn("corrupt kill switch state, assuming off", zap.Error(err))
		return killswitch.ModeOff, nil
	}
	return mode, nil
}

func (s *SQLite) Save(mode killswitch.Mode) error {
	_, err := s.db.Exec(
		`insert into killswitch_state (id, mode) values (1, ?)
		 on conflict (id) do update set mode = excluded.mode`,
		mode.String(),
	)
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
