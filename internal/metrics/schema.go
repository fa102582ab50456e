package metrics

import (
	"database/sql"

	"codeberg.org/mutker/pimonitor/internal/errors"
	"codeberg.org/mutker/pimonitor/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS samples (
	       id            INTEGER PRIMARY KEY AUTOINCREMENT,
	       session       TEXT    NOT NULL,
	       timestamp     INTEGER NOT NULL,
	       cpu_percent   REAL    NOT NULL,
	       mem_percent   REAL    NOT NULL,
	       disk_percent  REAL    NOT NULL,
	       cpu_temp      REAL    NOT NULL,
	       board_temp    INTEGER NOT NULL CHECK (typeof(board_temp) = 'integer'),
	       fan_pwm       INTEGER NOT NULL CHECK (fan_pwm BETWEEN -1 AND 255),
	       fan_duty      INTEGER NOT NULL CHECK (fan_duty BETWEEN 0 AND 255),
	       fan_engaged   INTEGER NOT NULL CHECK (fan_engaged IN (0, 1)),
	       display_on    INTEGER NOT NULL CHECK (display_on IN (0, 1)),
	       temperature   TEXT    NOT NULL,
	       load          TEXT    NOT NULL,
	       disk_activity TEXT    NOT NULL,
	       health        TEXT    NOT NULL
	   );
	   CREATE INDEX IF NOT EXISTS samples_session_timestamp ON samples (session, timestamp);`

	insertSampleSQL = `
    INSERT INTO samples (
        session, timestamp,
        cpu_percent, mem_percent, disk_percent, cpu_temp,
        board_temp, fan_pwm, fan_duty, fan_engaged, display_on,
        temperature, load, disk_activity, health
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
)

// InitSchema creates a new database schema with the current version
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	log.Debug().Msg("Creating database...")

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Debug().Err(err).Msg("Failed to rollback transaction")
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err).WithMessage("failed to create tables")
	}

	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err).WithMessage("failed to record schema version")
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	log.Info().
		Int("version", SchemaVersion).
		Msg("Schema initialized successfully")

	return nil
}

// GetSchemaVersion returns the current schema version, or 0 for a new database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err).WithMessage("failed to read schema version")
	}

	return version, nil
}

// TableExists checks if a table exists
func TableExists(db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errors.New().Wrap(ErrSchemaValidationFailed, err).WithMessage("failed to check table " + tableName)
	}
	return exists, nil
}
