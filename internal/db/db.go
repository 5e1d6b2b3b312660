package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/storebot/internal/config"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 3

// Init initializes the SQLite database at baseDir/storebot.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.storebot.
func Init(baseDir string) (*sql.DB, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	_ = os.Chmod(baseDir, 0700)

	// Pragmas in the connection string apply to every pooled connection
	dbPath := filepath.Join(baseDir, "storebot.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: catalog, engagement, scheduling
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS users (
		  id               INTEGER PRIMARY KEY,
		  username         TEXT,
		  first_name       TEXT,
		  last_name        TEXT,
		  role             TEXT NOT NULL DEFAULT 'buyer',
		  store_name       TEXT,
		  phone            TEXT,
		  channel_username TEXT,
		  is_premium       INTEGER NOT NULL DEFAULT 0,
		  premium_until    INTEGER,
		  created_at       INTEGER NOT NULL,
		  updated_at       INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS products (
		  id                  TEXT PRIMARY KEY,
		  seller_id           INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		  title               TEXT,
		  description         TEXT,
		  price               REAL,
		  category            TEXT,
		  product_type        TEXT NOT NULL DEFAULT 'standard',
		  category_fields     TEXT,
		  image_path          TEXT NOT NULL,
		  original_image_path TEXT,
		  is_active           INTEGER NOT NULL DEFAULT 1,
		  is_public           INTEGER NOT NULL DEFAULT 1,
		  likes_count         INTEGER NOT NULL DEFAULT 0,
		  saves_count         INTEGER NOT NULL DEFAULT 0,
		  orders_count        INTEGER NOT NULL DEFAULT 0,
		  views_count         INTEGER NOT NULL DEFAULT 0,
		  like_enabled        INTEGER NOT NULL DEFAULT 1,
		  save_enabled        INTEGER NOT NULL DEFAULT 1,
		  order_enabled       INTEGER NOT NULL DEFAULT 1,
		  custom_button_text  TEXT,
		  custom_button_url   TEXT,
		  created_at          INTEGER NOT NULL,
		  updated_at          INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_products_seller
		ON products(seller_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS engagements (
		  user_id    INTEGER NOT NULL,
		  product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		  liked      INTEGER NOT NULL DEFAULT 0,
		  saved      INTEGER NOT NULL DEFAULT 0,
		  PRIMARY KEY (user_id, product_id)
		);

		CREATE TABLE IF NOT EXISTS orders (
		  id         TEXT PRIMARY KEY,
		  buyer_id   INTEGER NOT NULL,
		  seller_id  INTEGER NOT NULL,
		  product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		  quantity   INTEGER NOT NULL DEFAULT 1,
		  status     TEXT NOT NULL DEFAULT 'pending',
		  created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS schedules (
		  id             TEXT PRIMARY KEY,
		  seller_id      INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		  product_id     TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		  channel        TEXT NOT NULL,
		  interval_days  INTEGER NOT NULL,
		  post_time      TEXT NOT NULL,
		  is_active      INTEGER NOT NULL DEFAULT 1,
		  last_posted_at INTEGER,
		  next_post_at   INTEGER,
		  created_at     INTEGER NOT NULL,
		  updated_at     INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_schedules_due
		ON schedules(next_post_at)
		WHERE is_active = 1;

		CREATE TABLE IF NOT EXISTS channel_posts (
		  id         INTEGER PRIMARY KEY AUTOINCREMENT,
		  product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		  channel    TEXT NOT NULL,
		  message_id INTEGER NOT NULL,
		  posted_at  INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_channel_posts_product
		ON channel_posts(product_id);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Migration 1 -> 2: durable intake drafts
	if version < 2 {
		schema := `
		CREATE TABLE IF NOT EXISTS drafts (
		  user_id    INTEGER PRIMARY KEY,
		  state      TEXT NOT NULL,
		  data_json  TEXT NOT NULL,
		  updated_at INTEGER NOT NULL
		);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 2 failed: %w", err)
		}
		if err := SetUserVersion(db, 2); err != nil {
			return err
		}
	}

	// Migration 2 -> 3: pending edits, order contact details, save recency
	if version < 3 {
		schema := `
		CREATE TABLE IF NOT EXISTS pending_inputs (
		  user_id    INTEGER PRIMARY KEY,
		  action     TEXT NOT NULL,
		  product_id TEXT,
		  data_json  TEXT NOT NULL,
		  updated_at INTEGER NOT NULL
		);

		ALTER TABLE engagements ADD COLUMN updated_at INTEGER NOT NULL DEFAULT 0;
		ALTER TABLE orders ADD COLUMN buyer_phone TEXT;
		ALTER TABLE orders ADD COLUMN buyer_location TEXT;

		CREATE INDEX IF NOT EXISTS idx_orders_seller
		ON orders(seller_id, created_at DESC);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 3 failed: %w", err)
		}
		if err := SetUserVersion(db, 3); err != nil {
			return err
		}
	}

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
