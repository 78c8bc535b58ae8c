package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/LdDl/cityflow"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// SQLiteStore keeps network states under named slots and history of epoch statistics
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) database file and prepares schema. WAL mode is enabled.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "Can't open sqlite db")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "Can't ping sqlite db")
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "Can't enable WAL mode")
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "Schema migration failed")
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS states (
		slot TEXT PRIMARY KEY,
		epoch INTEGER NOT NULL,
		saved_at DATETIME NOT NULL,
		payload BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS epoch_stats (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		epoch INTEGER NOT NULL,
		recorded_at DATETIME NOT NULL,
		payload JSON NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_epoch_stats_epoch ON epoch_stats(epoch);
	`
	if _, err := s.db.Exec(query); err != nil {
		return errors.Wrap(err, "Can't create tables")
	}
	return nil
}

// SaveState implements cityflow.StateStore. Existing slot is overwritten.
func (s *SQLiteStore) SaveState(ctx context.Context, slot string, state *cityflow.NetworkState) error {
	payload, err := cityflow.MarshalState(state)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO states (slot, epoch, saved_at, payload) VALUES (?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET epoch = excluded.epoch, saved_at = excluded.saved_at, payload = excluded.payload`,
		slot, state.Epoch, time.Now().UTC(), payload,
	)
	if err != nil {
		return errors.Wrapf(err, "Can't save state to slot '%s'", slot)
	}
	return nil
}

// LoadState implements cityflow.StateStore
func (s *SQLiteStore) LoadState(ctx context.Context, slot string) (*cityflow.NetworkState, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, "SELECT payload FROM states WHERE slot = ?", slot).Scan(&payload)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Wrapf(cityflow.ErrStateNotFound, "slot '%s'", slot)
		}
		return nil, errors.Wrapf(err, "Can't load state from slot '%s'", slot)
	}
	return cityflow.UnmarshalState(payload)
}

// Slots returns names of saved slots
func (s *SQLiteStore) Slots(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT slot FROM states ORDER BY slot")
	if err != nil {
		return nil, errors.Wrap(err, "Can't query slots")
	}
	defer rows.Close()
	slots := []string{}
	for rows.Next() {
		var slot string
		if err := rows.Scan(&slot); err != nil {
			return nil, errors.Wrap(err, "Can't scan slot")
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

// PublishStats implements cityflow.StatsSink
func (s *SQLiteStore) PublishStats(ctx context.Context, stats *cityflow.EpochStats) error {
	payload, err := json.Marshal(stats)
	if err != nil {
		return errors.Wrap(err, "Can't marshal stats")
	}
	_, err = s.db.ExecContext(ctx, "INSERT INTO epoch_stats (epoch, recorded_at, payload) VALUES (?, ?, ?)",
		stats.Epoch, time.Now().UTC(), string(payload))
	if err != nil {
		return errors.Wrapf(err, "Can't insert stats of epoch %d", stats.Epoch)
	}
	return nil
}

// StatsHistory returns up to limit most recent records in chronological order. Non-positive limit means all.
func (s *SQLiteStore) StatsHistory(ctx context.Context, limit int) ([]*cityflow.EpochStats, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM (
			SELECT id, payload FROM epoch_stats ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "Can't query stats history")
	}
	defer rows.Close()
	history := []*cityflow.EpochStats{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, errors.Wrap(err, "Can't scan stats")
		}
		stats := &cityflow.EpochStats{}
		if err := json.Unmarshal([]byte(payload), stats); err != nil {
			return nil, errors.Wrap(err, "Can't unmarshal stats")
		}
		history = append(history, stats)
	}
	return history, rows.Err()
}
