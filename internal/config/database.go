package config

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/Kerhoff/wishlist/migrations"
)

// Supported SQL drivers for the document table.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Database holds database connection and configuration
type Database struct {
	*sql.DB
	Driver string
	logger *logrus.Logger
}

// ParseDatabaseURL maps DATABASE_URL to a database/sql driver name and DSN.
// postgres:// and postgresql:// go to lib/pq, sqlite://<path> to modernc sqlite.
func ParseDatabaseURL(databaseURL string) (driver, dsn string, err error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return DriverPostgres, databaseURL, nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		path := strings.TrimPrefix(databaseURL, "sqlite://")
		if path == "" {
			return "", "", errors.New("sqlite DATABASE_URL needs a file path")
		}
		// Applied to every pooled connection.
		return DriverSQLite, path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", nil
	default:
		return "", "", fmt.Errorf("unsupported DATABASE_URL scheme in %q", databaseURL)
	}
}

// NewDatabase creates a new database connection
func NewDatabase(databaseURL string, logger *logrus.Logger) (*Database, error) {
	driver, dsn, err := ParseDatabaseURL(databaseURL)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverPostgres {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.WithField("driver", driver).Info("Database connection established successfully")

	return &Database{
		DB:     db,
		Driver: driver,
		logger: logger,
	}, nil
}

// Migrate runs the embedded migrations
func (d *Database) Migrate() error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	var driver database.Driver
	switch d.Driver {
	case DriverPostgres:
		driver, err = postgres.WithInstance(d.DB, &postgres.Config{})
	case DriverSQLite:
		driver, err = migratesqlite.WithInstance(d.DB, &migratesqlite.Config{})
	default:
		err = fmt.Errorf("no migration driver for %q", d.Driver)
	}
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, d.Driver, driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	// m.Close would also close d.DB, which outlives the migration run.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.logger.Info("Database migrations completed successfully")
	return nil
}

// Close closes the database connection
func (d *Database) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
