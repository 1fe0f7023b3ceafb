package telemetry_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/ferrule/dcmictl/internal/errors"
	"codeberg.org/ferrule/dcmictl/internal/telemetry"
)

func TestCollectorRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "telemetry.db")

	collector, err := telemetry.NewCollector(dbPath)
	require.NoError(t, err)
	defer collector.Close()

	snapshot := &telemetry.Snapshot{
		Timestamp:    time.Unix(1700000000, 0),
		Card:         0,
		Device:       0,
		TemperatureC: telemetry.Reading{Value: 42, Valid: true},
		PowerDrawW:   telemetry.Reading{Value: 115, Valid: true},
		MemoryUsedMB: telemetry.Reading{Value: 2656, Valid: true},
		UtilAICore:   telemetry.Reading{Valid: false},
		Health:       "ok",
	}
	require.NoError(t, collector.Record(context.Background(), snapshot))
	require.NoError(t, collector.Close())

	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer db.Close()

	var (
		session string
		temp    sql.NullInt64
		util    sql.NullInt64
		health  string
	)
	row := db.QueryRow(`SELECT session, temperature_c, util_aicore, health FROM telemetry`)
	require.NoError(t, row.Scan(&session, &temp, &util, &health))

	assert.NotEmpty(t, session)
	assert.True(t, temp.Valid)
	assert.EqualValues(t, 42, temp.Int64)
	assert.False(t, util.Valid, "unavailable readings must be stored as NULL")
	assert.Equal(t, "ok", health)
}

func TestCollectorRejectsNilSnapshot(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "telemetry.db")

	collector, err := telemetry.NewCollector(dbPath)
	require.NoError(t, err)
	defer collector.Close()

	err = collector.Record(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, telemetry.ErrInvalidSnapshot, errors.CodeOf(err))
}

func TestNewRepositoryRequiresPath(t *testing.T) {
	_, err := telemetry.NewRepository("")
	require.Error(t, err)
	assert.Equal(t, telemetry.ErrInvalidDBPath, errors.CodeOf(err))
}

func TestRecordHonorsContext(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "telemetry.db")

	collector, err := telemetry.NewCollector(dbPath)
	require.NoError(t, err)
	defer collector.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = collector.Record(ctx, &telemetry.Snapshot{Timestamp: time.Now()})
	require.Error(t, err)
	assert.Equal(t, telemetry.ErrRecordTimeout, errors.CodeOf(err))
}
