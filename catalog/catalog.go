// Package catalog implements the Catalog Store (C1): durable relational
// persistence for targets, clone jobs/items, and bucket index state/objects,
// backed by a single-file embedded SQLite database configured for
// write-ahead journaling, foreign-key enforcement, and memory-mapped reads.
//
// All multi-row writes execute inside an explicit transaction. The store
// exposes typed repository operations, never raw query strings, to its
// callers.
package catalog

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the single-file embedded relational store. The underlying
// connection pool is pinned to one physical connection (SetMaxOpenConns(1))
// so that writes serialize the way a single mutex-guarded connection would,
// which is what the WAL + foreign-key configuration below assumes.
type Store struct {
	db *sql.DB
}

// Open creates or upgrades the database at path and returns a ready Store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(pragmas); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite pragmas: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

const pragmas = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA foreign_keys = ON;
PRAGMA temp_store = MEMORY;
PRAGMA mmap_size = 268435456;
`

const schema = `
CREATE TABLE IF NOT EXISTS targets (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  provider TEXT NOT NULL,
  endpoint TEXT NOT NULL,
  region TEXT,
  force_path_style INTEGER NOT NULL DEFAULT 1,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_targets_name ON targets(name);

CREATE TABLE IF NOT EXISTS target_credentials (
  target_id TEXT PRIMARY KEY,
  access_key_id TEXT NOT NULL,
  secret_access_key TEXT NOT NULL,
  session_token TEXT,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  FOREIGN KEY(target_id) REFERENCES targets(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS clone_jobs (
  id TEXT PRIMARY KEY,
  status TEXT NOT NULL,
  source_target_id TEXT NOT NULL,
  source_bucket TEXT NOT NULL,
  source_prefix TEXT NOT NULL,
  dest_target_id TEXT NOT NULL,
  dest_bucket TEXT NOT NULL,
  dest_prefix TEXT NOT NULL,
  conflict_policy TEXT NOT NULL,
  is_same_target INTEGER NOT NULL,
  enumeration_token TEXT,
  enumeration_complete INTEGER NOT NULL DEFAULT 0,
  total_items INTEGER NOT NULL DEFAULT 0,
  completed_items INTEGER NOT NULL DEFAULT 0,
  failed_items INTEGER NOT NULL DEFAULT 0,
  skipped_items INTEGER NOT NULL DEFAULT 0,
  total_bytes INTEGER NOT NULL DEFAULT 0,
  transferred_bytes INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  completed_at INTEGER,
  FOREIGN KEY(source_target_id) REFERENCES targets(id) ON DELETE CASCADE,
  FOREIGN KEY(dest_target_id) REFERENCES targets(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_clone_jobs_status ON clone_jobs(status);

CREATE TABLE IF NOT EXISTS clone_job_items (
  id TEXT PRIMARY KEY,
  job_id TEXT NOT NULL,
  source_key TEXT NOT NULL,
  dest_key TEXT NOT NULL,
  size INTEGER NOT NULL,
  source_etag TEXT,
  source_last_modified TEXT,
  status TEXT NOT NULL,
  error_message TEXT,
  retry_count INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  FOREIGN KEY(job_id) REFERENCES clone_jobs(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_clone_job_items_job_status ON clone_job_items(job_id, status);
CREATE INDEX IF NOT EXISTS idx_clone_job_items_created_at ON clone_job_items(created_at);

CREATE TABLE IF NOT EXISTS bucket_index_state (
  target_id TEXT NOT NULL,
  bucket TEXT NOT NULL,
  status TEXT NOT NULL,
  total_objects INTEGER NOT NULL DEFAULT 0,
  indexed_objects INTEGER NOT NULL DEFAULT 0,
  total_size INTEGER NOT NULL DEFAULT 0,
  continuation_token TEXT,
  last_indexed_at INTEGER,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  PRIMARY KEY (target_id, bucket),
  FOREIGN KEY(target_id) REFERENCES targets(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS bucket_index_objects (
  target_id TEXT NOT NULL,
  bucket TEXT NOT NULL,
  key TEXT NOT NULL,
  parent_prefix TEXT NOT NULL,
  name TEXT NOT NULL,
  is_folder INTEGER NOT NULL,
  size INTEGER NOT NULL DEFAULT 0,
  last_modified TEXT,
  etag TEXT,
  storage_class TEXT,
  PRIMARY KEY (target_id, bucket, key)
);

CREATE INDEX IF NOT EXISTS idx_bucket_index_objects_parent
  ON bucket_index_objects(target_id, bucket, parent_prefix);
`

func migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

func nowEpoch() int64 {
	return time.Now().Unix()
}
