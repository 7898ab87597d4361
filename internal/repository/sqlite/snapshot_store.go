package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"replyBandit/business/bandit"
	"replyBandit/domain"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshot_versions (
	version_id  TEXT PRIMARY KEY,
	parent_id   TEXT,
	dim         INTEGER NOT NULL,
	lambda      REAL NOT NULL,
	updates     INTEGER NOT NULL,
	arms_json   TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	FOREIGN KEY (parent_id) REFERENCES snapshot_versions(version_id)
);

CREATE TABLE IF NOT EXISTS active_snapshot (
	id          INTEGER PRIMARY KEY CHECK (id = 1),
	version_id  TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES snapshot_versions(version_id)
);
`

// SnapshotStore keeps every saved arm-store snapshot as an immutable version
// and tracks which one is active.
type SnapshotStore struct {
	db *sql.DB
}

var _ bandit.SnapshotRepository = (*SnapshotStore)(nil)

// NewSnapshotStore opens a SQLite database and runs migrations.
func NewSnapshotStore(dbPath string) (*SnapshotStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// sqlite has a single writer
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SnapshotStore{db: db}, nil
}

func (s *SnapshotStore) Close() error {
	return s.db.Close()
}

// SaveSnapshot inserts a new version and makes it active atomically.
func (s *SnapshotStore) SaveSnapshot(ctx context.Context, snap domain.StoreSnapshot) (string, error) {
	armsJSON, err := json.Marshal(snap.Arms)
	if err != nil {
		return "", fmt.Errorf("marshal arms: %w", err)
	}
	id := uuid.NewString()
	created := snap.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var parent interface{}
	if snap.ParentID != "" {
		parent = snap.ParentID
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshot_versions (version_id, parent_id, dim, lambda, updates, arms_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, parent, snap.Dim, snap.Lambda, snap.Updates, string(armsJSON), created.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("insert version: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO active_snapshot (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		id,
	)
	if err != nil {
		return "", fmt.Errorf("set active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// LatestSnapshot reads the active version.
func (s *SnapshotStore) LatestSnapshot(ctx context.Context) (domain.StoreSnapshot, bool, error) {
	var versionID string
	err := s.db.QueryRowContext(ctx, `SELECT version_id FROM active_snapshot WHERE id = 1`).Scan(&versionID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StoreSnapshot{}, false, nil
	}
	if err != nil {
		return domain.StoreSnapshot{}, false, fmt.Errorf("get active: %w", err)
	}
	snap, err := s.GetVersion(ctx, versionID)
	if err != nil {
		return domain.StoreSnapshot{}, false, err
	}
	return snap, true, nil
}

func (s *SnapshotStore) GetVersion(ctx context.Context, id string) (domain.StoreSnapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT version_id, parent_id, dim, lambda, updates, arms_json, created_at
		 FROM snapshot_versions WHERE version_id = ?`, id,
	)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StoreSnapshot{}, fmt.Errorf("%w: snapshot %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return domain.StoreSnapshot{}, fmt.Errorf("get version %s: %w", id, err)
	}
	return snap, nil
}

// Activate points the active pointer at an earlier version.
func (s *SnapshotStore) Activate(ctx context.Context, id string) error {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM snapshot_versions WHERE version_id = ?`, id,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: snapshot %s", domain.ErrNotFound, id)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO active_snapshot (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		id,
	)
	if err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	return nil
}

// ListVersions returns the most recent versions, newest first.
func (s *SnapshotStore) ListVersions(ctx context.Context, limit int) ([]domain.StoreSnapshot, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT version_id, parent_id, dim, lambda, updates, arms_json, created_at
		 FROM snapshot_versions ORDER BY rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var out []domain.StoreSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (domain.StoreSnapshot, error) {
	var snap domain.StoreSnapshot
	var parentID sql.NullString
	var armsJSON string
	var createdStr string

	if err := row.Scan(&snap.VersionID, &parentID, &snap.Dim, &snap.Lambda, &snap.Updates, &armsJSON, &createdStr); err != nil {
		return domain.StoreSnapshot{}, err
	}
	if parentID.Valid {
		snap.ParentID = parentID.String
	}
	if err := json.Unmarshal([]byte(armsJSON), &snap.Arms); err != nil {
		return domain.StoreSnapshot{}, fmt.Errorf("unmarshal arms: %w", err)
	}
	snap.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return snap, nil
}
