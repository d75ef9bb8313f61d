package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/varoOP/shinkrolist/internal/domain"
	_ "modernc.org/sqlite"
)

// DB represents the database connection
type DB struct {
	handler  *sql.DB
	log      zerolog.Logger
	lock     sync.RWMutex
	squirrel sq.StatementBuilderType
	driver   domain.StoreDriver
}

// NewDB opens the configured database and migrates it to the latest schema.
// For sqlite, dsn is the directory holding shinkrolist.db.
func NewDB(driver domain.StoreDriver, dsn string, log zerolog.Logger) (*DB, error) {
	db := &DB{
		log:      log.With().Str("module", "database").Logger(),
		squirrel: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		driver:   driver,
	}

	var err error
	switch driver {
	case domain.StoreDriverSQLite, "":
		db.driver = domain.StoreDriverSQLite
		if dsn == "" {
			dsn = "."
		}
		if err := os.MkdirAll(dsn, 0o755); err != nil {
			return nil, errors.Wrap(err, "unable to create database directory")
		}
		db.handler, err = sql.Open("sqlite", filepath.Join(dsn, "shinkrolist.db")+"?_pragma=busy_timeout%3d1000&_time_format=sqlite")
		if err != nil {
			return nil, errors.Wrap(err, "unable to connect to database")
		}
		if _, err = db.handler.Exec(`PRAGMA journal_mode = wal;`); err != nil {
			db.handler.Close()
			return nil, errors.Wrap(err, "unable to enable WAL mode")
		}

	case domain.StoreDriverPostgres:
		db.handler, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, errors.Wrap(err, "unable to connect to database")
		}
		if err := db.handler.Ping(); err != nil {
			db.handler.Close()
			return nil, errors.Wrap(err, "unable to reach postgres")
		}

	default:
		return nil, errors.Errorf("unsupported database driver %q", driver)
	}

	// Ensure schema is up to date (migrates if needed)
	if err := db.Migrate(); err != nil {
		db.handler.Close()
		return nil, errors.Wrap(err, "failed to migrate schema")
	}

	return db, nil
}

// Migrate handles database schema creation and migrations using versioning
func (db *DB) Migrate() error {
	db.lock.Lock()
	defer db.lock.Unlock()

	schema, migrations := sqliteSchema, sqliteMigrations
	if db.driver == domain.StoreDriverPostgres {
		schema, migrations = postgresSchema, postgresMigrations
	}

	tx, err := db.handler.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	version, err := db.schemaVersion(tx)
	if err != nil {
		return errors.Wrap(err, "failed to query schema version")
	}

	if version == len(migrations) {
		return nil
	} else if version > len(migrations) {
		return errors.Errorf("database schema version (%d) is newer than supported (%d)", version, len(migrations))
	}

	db.log.Info().Msgf("Beginning database schema upgrade from version %v to version: %v", version, len(migrations))

	if version == 0 {
		if _, err := tx.Exec(schema); err != nil {
			return errors.Wrap(err, "failed to initialize schema")
		}
		db.log.Info().Msg("Created initial database schema")
	} else {
		for i := version; i < len(migrations); i++ {
			if migrations[i] == "" {
				continue // version 0 uses the base schema
			}
			db.log.Info().Msgf("Upgrading database schema to version: %v", i+1)
			if _, err := tx.Exec(migrations[i]); err != nil {
				return errors.Wrapf(err, "failed to execute migration #%v", i)
			}
		}
	}

	if err := db.setSchemaVersion(tx, len(migrations)); err != nil {
		return errors.Wrap(err, "failed to bump schema version")
	}

	db.log.Info().Msgf("Database schema upgraded to version: %v", len(migrations))
	return tx.Commit()
}

func (db *DB) schemaVersion(tx *sql.Tx) (int, error) {
	var version int
	if db.driver == domain.StoreDriverSQLite {
		err := tx.QueryRow("PRAGMA user_version").Scan(&version)
		return version, err
	}

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return 0, err
	}
	err := tx.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	return version, err
}

func (db *DB) setSchemaVersion(tx *sql.Tx, version int) error {
	if db.driver == domain.StoreDriverSQLite {
		_, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", version))
		return err
	}

	if _, err := tx.Exec(`DELETE FROM schema_version`); err != nil {
		return err
	}
	_, err := tx.Exec(`INSERT INTO schema_version (version) VALUES ($1)`, version)
	return err
}

// Driver returns the backend in use.
func (db *DB) Driver() domain.StoreDriver {
	return db.driver
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.driver == domain.StoreDriverSQLite {
		if _, err := db.handler.Exec(`PRAGMA optimize;`); err != nil {
			return errors.Wrap(err, "query planner optimization")
		}
	}

	return db.handler.Close()
}

// Ping checks if the database connection is alive
func (db *DB) Ping(ctx context.Context) error {
	return db.handler.PingContext(ctx)
}
