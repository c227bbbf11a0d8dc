package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/chrisx599/ChatEmail/pkg/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MemoryPath opens a private in-memory database. Useful in tests.
const MemoryPath = ":memory:"

type Client struct {
	db   *sql.DB
	path string
}

func NewClient(dbPath string) (*Client, error) {
	if dbPath != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows one writer; a single connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if dbPath != MemoryPath {
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	c := &Client{db: db, path: dbPath}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	version, _, err := c.SchemaVersion()
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite client initialized",
		zap.String("path", dbPath),
		zap.Uint("schema_version", version),
	)

	return c, nil
}

// migrate applies pending migrations. Reopening at the current version is a no-op.
func (c *Client) migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	defer src.Close()

	driver, err := migratesqlite.WithInstance(c.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	// m.Close would close c.db through the driver, so it is not called.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// SchemaVersion reports the applied migration version.
func (c *Client) SchemaVersion() (uint, bool, error) {
	var (
		version int64
		dirty   bool
	)
	err := c.db.QueryRow("SELECT version, dirty FROM "+migratesqlite.DefaultMigrationsTable+" LIMIT 1").Scan(&version, &dirty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read schema version: %w", err)
	}
	return uint(version), dirty, nil
}

func (c *Client) Path() string {
	return c.path
}

func (c *Client) Ping() error {
	return c.db.Ping()
}

func (c *Client) Close() error {
	return c.db.Close()
}
