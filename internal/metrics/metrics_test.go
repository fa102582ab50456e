package metrics

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/pimonitor/internal/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		DBPath:       filepath.Join(dir, "db", "metrics.db"),
		BackupDir:    filepath.Join(dir, "backups"),
		BatchSize:    2,
		BatchTimeout: time.Hour,
		Enabled:      true,
	}
}

func sample(at time.Time) *Sample {
	return &Sample{
		Timestamp:    at,
		CPUPercent:   12.5,
		MemPercent:   40,
		DiskPercent:  55,
		CPUTemp:      48.2,
		BoardTemp:    36,
		FanPWM:       -1,
		FanDuty:      255,
		FanEngaged:   true,
		DisplayOn:    true,
		Temperature:  "warm",
		Load:         "low",
		DiskActivity: "idle",
		Health:       "normal",
	}
}

func countSamples(t *testing.T, path string) int {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM samples").Scan(&n))
	return n
}

func TestDisabledUsesNoop(t *testing.T) {
	c, err := NewService(DefaultConfig(), logger.Nop())
	require.NoError(t, err)

	assert.IsType(t, &noopCollector{}, c)
	assert.NoError(t, c.Record(context.Background(), sample(time.Now())))
	_, err = uuid.Parse(c.Session())
	assert.NoError(t, err)
	assert.NoError(t, c.Close())
}

func TestValidate(t *testing.T) {
	cfg := Config{Enabled: true}
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.BatchSize = -1
	assert.Error(t, cfg.Validate())

	_, err := NewService(Config{Enabled: true}, logger.Nop())
	assert.Error(t, err)
}

func TestRecordFlushesInBatches(t *testing.T) {
	cfg := testConfig(t)
	c, err := NewService(cfg, logger.Nop())
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, c.Record(context.Background(), sample(now)))
	assert.Equal(t, 0, countSamples(t, cfg.DBPath))

	require.NoError(t, c.Record(context.Background(), sample(now.Add(time.Second))))
	assert.Equal(t, 2, countSamples(t, cfg.DBPath))

	require.NoError(t, c.Record(context.Background(), sample(now.Add(2*time.Second))))
	require.NoError(t, c.Close())
	assert.Equal(t, 3, countSamples(t, cfg.DBPath))

	assert.NoError(t, c.Close(), "close is idempotent")
}

func TestRecordStampsSession(t *testing.T) {
	cfg := testConfig(t)
	c, err := NewService(cfg, logger.Nop())
	require.NoError(t, err)

	s := sample(time.Now())
	require.NoError(t, c.Record(context.Background(), s))
	require.NoError(t, c.Close())
	assert.Equal(t, c.Session(), s.Session)

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()

	var session string
	require.NoError(t, db.QueryRow("SELECT session FROM samples").Scan(&session))
	assert.Equal(t, c.Session(), session)
}

func TestRecordRejectsNilAndCancelled(t *testing.T) {
	c, err := NewService(testConfig(t), logger.Nop())
	require.NoError(t, err)
	defer c.Close()

	assert.Error(t, c.Record(context.Background(), nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, c.Record(ctx, sample(time.Now())))
}

func TestPeriodicFlush(t *testing.T) {
	cfg := testConfig(t)
	cfg.BatchSize = 100
	cfg.BatchTimeout = 10 * time.Millisecond

	repo, err := NewRepository(cfg, logger.Nop())
	require.NoError(t, err)
	defer repo.Close()

	require.NoError(t, repo.Record(sample(time.Now())))
	assert.Eventually(t, func() bool { return countSamples(t, cfg.DBPath) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestSchemaMigrationBacksUpOldVersion(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755))

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
		INSERT INTO schema_versions VALUES (99, datetime('now'));`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	repo, err := NewRepository(cfg, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	backups, err := filepath.Glob(filepath.Join(cfg.BackupDir, "metrics_v99_*.db"))
	require.NoError(t, err)
	assert.Len(t, backups, 1)

	db, err = sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()

	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)
}
