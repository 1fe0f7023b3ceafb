// Package telemetry records device telemetry snapshots collected through
// the core into a local sqlite database. It is a consumer-side convenience
// for the CLI's watch mode; the core itself never caches or stores
// telemetry.
package telemetry

import (
	"context"
	"time"

	"github.com/google/uuid"

	"codeberg.org/ferrule/dcmictl/internal/errors"
)

const (
	// Configuration errors
	ErrInvalidDBPath = errors.ErrorCode("telemetry_invalid_db_path")

	// Storage errors
	ErrStorageInit   = errors.ErrorCode("telemetry_storage_init_failed")
	ErrStorageAccess = errors.ErrorCode("telemetry_storage_access_failed")
	ErrStorageClose  = errors.ErrorCode("telemetry_storage_close_failed")

	// Collection errors
	ErrInvalidSnapshot = errors.ErrorCode("telemetry_invalid_snapshot")
	ErrRecordTimeout   = errors.ErrorCode("telemetry_record_timeout")
)

// Snapshot is one device's telemetry at one instant. Unavailable readings
// keep their Valid flag false and are stored as NULL.
type Snapshot struct {
	Timestamp time.Time
	Card      int32
	Device    int32

	TemperatureC Reading
	PowerDrawW   Reading
	MemoryUsedMB Reading
	UtilAICore   Reading
	Health       string
}

// Reading is a possibly-unavailable integer sample.
type Reading struct {
	Value int64
	Valid bool
}

// Collector records snapshots for one session.
type Collector interface {
	Record(ctx context.Context, snapshot *Snapshot) error
	Close() error
}

type service struct {
	repo    Repository
	session string
}

// NewCollector opens the sqlite store and starts a new recording session
// tagged with a fresh session ID.
func NewCollector(dbPath string) (Collector, error) {
	repo, err := NewRepository(dbPath)
	if err != nil {
		return nil, err
	}
	return &service{
		repo:    repo,
		session: uuid.NewString(),
	}, nil
}

func (s *service) Record(ctx context.Context, snapshot *Snapshot) error {
	if snapshot == nil {
		return errors.New(ErrInvalidSnapshot)
	}

	select {
	case <-ctx.Done():
		return errors.Wrap(ErrRecordTimeout, ctx.Err())
	default:
	}

	return s.repo.Store(ctx, s.session, snapshot)
}

func (s *service) Close() error {
	return s.repo.Close()
}
