// Package sqlite persists hosted game histories in SQLite so a game can be
// restored by replaying its events.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mitchelldurbincs/turnsim/internal/sim"
)

var ErrNotFound = errors.New("game not found")

const schema = `
CREATE TABLE IF NOT EXISTS games (
	id            TEXT PRIMARY KEY,
	game          TEXT NOT NULL,
	agents        TEXT NOT NULL,
	seed          INTEGER NOT NULL,
	terminal      INTEGER NOT NULL DEFAULT 0,
	action_number INTEGER NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	game_id   TEXT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
	seq       INTEGER NOT NULL,
	action    INTEGER,
	rewards   TEXT,
	state_key TEXT NOT NULL,
	PRIMARY KEY (game_id, seq)
);
`

// GameRecord is the stored metadata of one hosted game.
type GameRecord struct {
	ID           string
	Game         string
	Agents       []string
	Seed         int64
	Terminal     bool
	ActionNumber int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Store provides SQLite-backed game history persistence.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a SQLite store at path and creates its tables.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// SaveGame inserts or updates the metadata of a game.
func (s *Store) SaveGame(ctx context.Context, rec GameRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	rec.ID = strings.TrimSpace(rec.ID)
	if rec.ID == "" {
		return fmt.Errorf("game id is required")
	}
	if rec.Game == "" {
		return fmt.Errorf("game name is required")
	}
	agents, err := json.Marshal(rec.Agents)
	if err != nil {
		return fmt.Errorf("marshal agents: %w", err)
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO games (id, game, agents, seed, terminal, action_number, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	terminal = excluded.terminal,
	action_number = excluded.action_number,
	updated_at = excluded.updated_at
`,
		rec.ID,
		rec.Game,
		string(agents),
		rec.Seed,
		boolToInt(rec.Terminal),
		rec.ActionNumber,
		rec.CreatedAt.UTC().UnixMilli(),
		now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save game: %w", err)
	}
	return nil
}

// AppendEvents stores records at sequence numbers startSeq, startSeq+1, ...
// Records already stored at a sequence number are left untouched.
func (s *Store) AppendEvents(ctx context.Context, gameID string, startSeq int, records []sim.EventRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO events (game_id, seq, action, rewards, state_key)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(game_id, seq) DO NOTHING
`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		var action sql.NullInt64
		if rec.Action != nil {
			action = sql.NullInt64{Int64: int64(*rec.Action), Valid: true}
		}
		var rewards sql.NullString
		if rec.Rewards != nil {
			b, err := json.Marshal(rec.Rewards)
			if err != nil {
				return fmt.Errorf("marshal rewards: %w", err)
			}
			rewards = sql.NullString{String: string(b), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, gameID, startSeq+i, action, rewards, string(rec.State)); err != nil {
			return fmt.Errorf("insert event %d: %w", startSeq+i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit events: %w", err)
	}
	return nil
}

// LoadGame returns a game's metadata and its events in sequence order.
func (s *Store) LoadGame(ctx context.Context, id string) (GameRecord, []sim.EventRecord, error) {
	if err := s.ready(ctx); err != nil {
		return GameRecord{}, nil, err
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, game, agents, seed, terminal, action_number, created_at, updated_at
FROM games WHERE id = ?
`, id)
	rec, err := scanGame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return GameRecord{}, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return GameRecord{}, nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT action, rewards, state_key FROM events WHERE game_id = ? ORDER BY seq ASC
`, id)
	if err != nil {
		return GameRecord{}, nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []sim.EventRecord
	for rows.Next() {
		var (
			action  sql.NullInt64
			rewards sql.NullString
			key     string
		)
		if err := rows.Scan(&action, &rewards, &key); err != nil {
			return GameRecord{}, nil, fmt.Errorf("scan event: %w", err)
		}
		ev := sim.EventRecord{State: sim.StateKey(key)}
		if action.Valid {
			a := sim.Action(action.Int64)
			ev.Action = &a
		}
		if rewards.Valid {
			if err := json.Unmarshal([]byte(rewards.String), &ev.Rewards); err != nil {
				return GameRecord{}, nil, fmt.Errorf("decode rewards: %w", err)
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return GameRecord{}, nil, fmt.Errorf("iterate events: %w", err)
	}
	return rec, events, nil
}

// ListGames lists games newest first.
func (s *Store) ListGames(ctx context.Context, limit int) ([]GameRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, game, agents, seed, terminal, action_number, created_at, updated_at
FROM games ORDER BY created_at DESC, id ASC LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	var out []GameRecord
	for rows.Next() {
		rec, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate games: %w", err)
	}
	return out, nil
}

// DeleteGame removes a game and its events.
func (s *Store) DeleteGame(ctx context.Context, id string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM games WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete game: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	// foreign_keys may be off on some connections; remove events explicitly
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM events WHERE game_id = ?`, id); err != nil {
		return fmt.Errorf("delete events: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGame(row scanner) (GameRecord, error) {
	var (
		rec       GameRecord
		agents    string
		terminal  int
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&rec.ID, &rec.Game, &agents, &rec.Seed, &terminal, &rec.ActionNumber, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return GameRecord{}, err
		}
		return GameRecord{}, fmt.Errorf("scan game: %w", err)
	}
	if err := json.Unmarshal([]byte(agents), &rec.Agents); err != nil {
		return GameRecord{}, fmt.Errorf("decode agents: %w", err)
	}
	rec.Terminal = terminal != 0
	rec.CreatedAt = time.UnixMilli(createdAt).UTC()
	rec.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
