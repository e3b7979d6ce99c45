package execution

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// Store persists planned and executed actions in a per-user SQLite file.
// The full action is stored as a JSON payload; id, intent, status and
// timestamps are lifted into columns for filtering and ordering.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

func OpenStore(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create action store directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create action lock directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open action sqlite: %w", err)
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS actions (
			action_id   TEXT PRIMARY KEY,
			intent_type TEXT NOT NULL,
			status      TEXT NOT NULL,
			chain_id    TEXT NOT NULL,
			created_at  INTEGER NOT NULL,
			updated_at  INTEGER NOT NULL,
			payload     BLOB NOT NULL
		)`,
		"CREATE INDEX IF NOT EXISTS idx_actions_status_updated ON actions(status, updated_at DESC)",
	}
	for _, q := range schema {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init action schema: %w", err)
		}
	}
	return &Store{db: db, lock: flock.New(lockPath)}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Save(action Action) error {
	if strings.TrimSpace(action.ActionID) == "" {
		return fmt.Errorf("save action: missing action id")
	}
	payload, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("marshal action: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	locked, err := s.lock.TryLockContext(ctx, 25*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock action store: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock action store: timed out acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	_, err = s.db.Exec(`
		INSERT INTO actions (action_id, intent_type, status, chain_id, created_at, updated_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(action_id) DO UPDATE SET
			intent_type=excluded.intent_type,
			status=excluded.status,
			chain_id=excluded.chain_id,
			updated_at=excluded.updated_at,
			payload=excluded.payload
	`, action.ActionID, action.IntentType, action.Status, action.ChainID,
		timestampUnix(action.CreatedAt), timestampUnix(action.UpdatedAt), payload)
	if err != nil {
		return fmt.Errorf("save action: %w", err)
	}
	return nil
}

func (s *Store) Get(actionID string) (Action, error) {
	row := s.db.QueryRow("SELECT payload FROM actions WHERE action_id = ?", actionID)
	action, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Action{}, fmt.Errorf("action not found: %s", actionID)
	}
	return action, err
}

// Latest returns the most recently touched action, so status lookups can
// default to the action the user just ran. Saves within the same second
// tie-break on insertion order.
func (s *Store) Latest() (Action, error) {
	row := s.db.QueryRow("SELECT payload FROM actions ORDER BY updated_at DESC, rowid DESC LIMIT 1")
	action, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Action{}, fmt.Errorf("no actions recorded yet")
	}
	return action, err
}

func (s *Store) List(status string, limit int) ([]Action, error) {
	if limit <= 0 {
		limit = 20
	}
	query := "SELECT payload FROM actions ORDER BY updated_at DESC, rowid DESC LIMIT ?"
	args := []any{limit}
	if strings.TrimSpace(status) != "" {
		query = "SELECT payload FROM actions WHERE status = ? ORDER BY updated_at DESC, rowid DESC LIMIT ?"
		args = []any{status, limit}
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	actions := make([]Action, 0)
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate action rows: %w", err)
	}
	return actions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAction(row rowScanner) (Action, error) {
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Action{}, err
		}
		return Action{}, fmt.Errorf("read action: %w", err)
	}
	var action Action
	if err := json.Unmarshal(payload, &action); err != nil {
		return Action{}, fmt.Errorf("decode action payload: %w", err)
	}
	return action, nil
}

// timestampUnix converts an action's RFC3339 timestamp to a sortable row
// value, substituting the current time when the field is unset.
func timestampUnix(v string) int64 {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC().Unix()
	}
	return time.Now().UTC().Unix()
}
