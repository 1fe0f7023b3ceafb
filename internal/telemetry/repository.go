package telemetry

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"codeberg.org/ferrule/dcmictl/internal/errors"
)

const defaultDirPerm = 0o755

// Repository persists snapshots.
type Repository interface {
	Store(ctx context.Context, session string, snapshot *Snapshot) error
	Close() error
}

type sqliteRepository struct {
	db *sql.DB
	mu sync.Mutex
}

// NewRepository opens (creating if needed) the sqlite database at dbPath
// and ensures the schema exists.
func NewRepository(dbPath string) (Repository, error) {
	if dbPath == "" {
		return nil, errors.New(ErrInvalidDBPath)
	}

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
			return nil, errors.Wrap(ErrStorageInit, err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, errors.Wrap(ErrStorageInit, err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteRepository{db: db}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS telemetry (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            session TEXT NOT NULL,
            timestamp INTEGER NOT NULL,
            card INTEGER NOT NULL,
            device INTEGER NOT NULL,
            temperature_c INTEGER,
            power_draw_w INTEGER,
            memory_used_mb INTEGER,
            util_aicore INTEGER,
            health TEXT
        );
        CREATE INDEX IF NOT EXISTS idx_telemetry_session_time
            ON telemetry (session, timestamp)
    `)
	if err != nil {
		return errors.Wrap(ErrStorageInit, err)
	}
	return nil
}

func (r *sqliteRepository) Store(ctx context.Context, session string, snapshot *Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `
        INSERT INTO telemetry (
            session, timestamp, card, device,
            temperature_c, power_draw_w, memory_used_mb, util_aicore, health
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
    `,
		session,
		snapshot.Timestamp.Unix(),
		snapshot.Card,
		snapshot.Device,
		nullable(snapshot.TemperatureC),
		nullable(snapshot.PowerDrawW),
		nullable(snapshot.MemoryUsedMB),
		nullable(snapshot.UtilAICore),
		snapshot.Health,
	)
	if err != nil {
		return errors.Wrap(ErrStorageAccess, err)
	}

	return nil
}

func (r *sqliteRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.db.Close(); err != nil {
		return errors.Wrap(ErrStorageClose, err)
	}
	return nil
}

func nullable(r Reading) any {
	if !r.Valid {
		return nil
	}
	return r.Value
}
