package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Open opens a DB, tunes the pool and ensures schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:qhlc.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/qhlc?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	tunePool(driver, db)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := ensureSchema(ctx, db, driver); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// tunePool keeps SQLite to a single writer so conditional updates serialize.
func tunePool(driver Driver, db *sql.DB) {
	switch driver {
	case DriverSQLite:
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	default:
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(45 * time.Minute)
		db.SetConnMaxIdleTime(15 * time.Minute)
	}
}

func ensureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	}
	// Try the whole script first; some drivers reject multiple statements.
	if _, err := db.ExecContext(ctx, schema); err == nil {
		return nil
	}
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	return nil
}

const schemaSQLite = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  role TEXT NOT NULL DEFAULT 'user',
  password_hash TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS exams (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  duration_min INTEGER NOT NULL,
  total_marks REAL NOT NULL,
  passing_marks REAL NOT NULL,
  exam_type TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'draft',
  start_at INTEGER NOT NULL,
  end_at INTEGER NOT NULL,
  results_published BOOLEAN NOT NULL DEFAULT 0,
  shuffle_questions BOOLEAN NOT NULL DEFAULT 0,
  created_by TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS questions (
  id TEXT PRIMARY KEY,
  exam_id TEXT NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
  question_text TEXT NOT NULL,
  question_type TEXT NOT NULL,
  options_json TEXT NOT NULL DEFAULT '[]',
  correct_answer TEXT NOT NULL DEFAULT '',
  marks REAL NOT NULL,
  order_number INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS attempts (
  id TEXT PRIMARY KEY,
  exam_id TEXT NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
  user_id TEXT NOT NULL,
  status TEXT NOT NULL,
  started_at INTEGER NOT NULL,
  submitted_at INTEGER,
  total_score REAL NOT NULL DEFAULT 0,
  evaluated_by TEXT NOT NULL DEFAULT '',
  remarks TEXT NOT NULL DEFAULT '',
  updated_at INTEGER NOT NULL,
  notify_status TEXT NOT NULL DEFAULT '',
  notify_error TEXT NOT NULL DEFAULT ''
);

DROP INDEX IF EXISTS attempts_one_open;
CREATE UNIQUE INDEX IF NOT EXISTS attempts_one_pending
  ON attempts (user_id, exam_id) WHERE status = 'pending';

CREATE TABLE IF NOT EXISTS answers (
  id TEXT PRIMARY KEY,
  attempt_id TEXT NOT NULL REFERENCES attempts(id) ON DELETE CASCADE,
  question_id TEXT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
  answer_text TEXT NOT NULL DEFAULT '',
  grade TEXT NOT NULL DEFAULT 'ungraded',
  score_awarded REAL NOT NULL DEFAULT 0,
  evaluated_by TEXT NOT NULL DEFAULT '',
  remarks TEXT NOT NULL DEFAULT '',
  updated_at INTEGER NOT NULL,
  UNIQUE (attempt_id, question_id)
);

CREATE TABLE IF NOT EXISTS certificates (
  id TEXT PRIMARY KEY,
  serial TEXT NOT NULL UNIQUE,
  user_id TEXT NOT NULL,
  exam_id TEXT NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
  score REAL NOT NULL,
  percentage REAL NOT NULL,
  issued_at INTEGER NOT NULL,
  UNIQUE (user_id, exam_id)
);

CREATE TABLE IF NOT EXISTS event_log (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,                         -- e.g., attempt.submitted
  key TEXT NOT NULL,                         -- natural key: attempt or exam id
  data TEXT NOT NULL,                        -- JSON payload
  created_at INTEGER NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  role TEXT NOT NULL DEFAULT 'user',
  password_hash TEXT NOT NULL DEFAULT '',
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS exams (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  duration_min INTEGER NOT NULL,
  total_marks DOUBLE PRECISION NOT NULL,
  passing_marks DOUBLE PRECISION NOT NULL,
  exam_type TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'draft',
  start_at BIGINT NOT NULL,
  end_at BIGINT NOT NULL,
  results_published BOOLEAN NOT NULL DEFAULT FALSE,
  shuffle_questions BOOLEAN NOT NULL DEFAULT FALSE,
  created_by TEXT NOT NULL DEFAULT '',
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS questions (
  id TEXT PRIMARY KEY,
  exam_id TEXT NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
  question_text TEXT NOT NULL,
  question_type TEXT NOT NULL,
  options_json TEXT NOT NULL DEFAULT '[]',
  correct_answer TEXT NOT NULL DEFAULT '',
  marks DOUBLE PRECISION NOT NULL,
  order_number INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS attempts (
  id TEXT PRIMARY KEY,
  exam_id TEXT NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
  user_id TEXT NOT NULL,
  status TEXT NOT NULL,
  started_at BIGINT NOT NULL,
  submitted_at BIGINT,
  total_score DOUBLE PRECISION NOT NULL DEFAULT 0,
  evaluated_by TEXT NOT NULL DEFAULT '',
  remarks TEXT NOT NULL DEFAULT '',
  updated_at BIGINT NOT NULL,
  notify_status TEXT NOT NULL DEFAULT '',
  notify_error TEXT NOT NULL DEFAULT ''
);

DROP INDEX IF EXISTS attempts_one_open;
CREATE UNIQUE INDEX IF NOT EXISTS attempts_one_pending
  ON attempts (user_id, exam_id) WHERE status = 'pending';

CREATE TABLE IF NOT EXISTS answers (
  id TEXT PRIMARY KEY,
  attempt_id TEXT NOT NULL REFERENCES attempts(id) ON DELETE CASCADE,
  question_id TEXT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
  answer_text TEXT NOT NULL DEFAULT '',
  grade TEXT NOT NULL DEFAULT 'ungraded',
  score_awarded DOUBLE PRECISION NOT NULL DEFAULT 0,
  evaluated_by TEXT NOT NULL DEFAULT '',
  remarks TEXT NOT NULL DEFAULT '',
  updated_at BIGINT NOT NULL,
  UNIQUE (attempt_id, question_id)
);

CREATE TABLE IF NOT EXISTS certificates (
  id TEXT PRIMARY KEY,
  serial TEXT NOT NULL UNIQUE,
  user_id TEXT NOT NULL,
  exam_id TEXT NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
  score DOUBLE PRECISION NOT NULL,
  percentage DOUBLE PRECISION NOT NULL,
  issued_at BIGINT NOT NULL,
  UNIQUE (user_id, exam_id)
);

CREATE TABLE IF NOT EXISTS event_log (
  seq BIGSERIAL PRIMARY KEY,
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,
  key TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at BIGINT NOT NULL
);
`
