// Package eventlog is the optional durable layer for the investigation
// event stream: a Postgres table of every emitted event plus a Replay
// function that reconstructs an investigation's stream byte-exactly
// (§8's replay-determinism property applied to the wire, not just the
// scoring). Nothing in pkg/investigation or pkg/stream depends on this
// package; an investigation runs correctly with eventlog entirely absent.
//
// Grounded on the teacher's pkg/database/client.go (pgx + golang-migrate +
// embedded SQL migrations, applied automatically on startup) and
// pkg/events/publisher.go's plain-*sql.DB approach — this package skips
// ent and the NOTIFY/LISTEN machinery entirely, since pkg/stream already
// owns live fan-out and this table exists only for replay.
package eventlog

import (
	"context"
	stdsql "database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/fourkites/rca-engine/pkg/stream"
)

//go:embed migrations
var migrationsFS embed.FS

// Config holds the connection parameters for the event log database.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns int
	MaxIdleConns int
}

// Store persists and replays investigation events.
type Store struct {
	db *stdsql.DB
}

// Open connects to Postgres, applies pending migrations, and returns a
// ready Store.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("eventlog: ping database: %w", err)
	}

	if err := runMigrations(db, cfg.Database); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("eventlog: run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// NewFromDB wraps an already-open *sql.DB (useful for tests sharing a
// testcontainers instance across packages). Migrations are still applied.
func NewFromDB(db *stdsql.DB, databaseName string) (*Store, error) {
	if err := runMigrations(db, databaseName); err != nil {
		return nil, fmt.Errorf("eventlog: run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

func runMigrations(db *stdsql.DB, databaseName string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, databaseName, driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	// Don't call m.Close() — it would close the shared *sql.DB via the
	// postgres driver. Only the source side needs releasing.
	return sourceDriver.Close()
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append persists one event at the given sequence position. seq must be
// strictly increasing per investigation; a duplicate (investigationID,
// seq) pair is silently skipped (ON CONFLICT DO NOTHING, no error), which
// de-dups double-delivery from an at-least-once publisher.
func (s *Store) Append(ctx context.Context, investigationID string, seq int64, e stream.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO investigation_events (investigation_id, seq, kind, body, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (investigation_id, seq) DO NOTHING`,
		investigationID, seq, string(e.Kind), []byte(e.Body), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("eventlog: append event: %w", err)
	}
	return nil
}

// Replay returns every event recorded for investigationID in publish
// order, reconstructing the stream exactly as it was emitted.
func (s *Store) Replay(ctx context.Context, investigationID string) ([]stream.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, body FROM investigation_events
		 WHERE investigation_id = $1 ORDER BY seq ASC`,
		investigationID,
	)
	if err != nil {
		return nil, fmt.Errorf("eventlog: query events: %w", err)
	}
	defer rows.Close()

	var events []stream.Event
	for rows.Next() {
		var kind string
		var body []byte
		if err := rows.Scan(&kind, &body); err != nil {
			return nil, fmt.Errorf("eventlog: scan event: %w", err)
		}
		events = append(events, stream.Event{Kind: stream.Kind(kind), Body: json.RawMessage(body)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("eventlog: iterate events: %w", err)
	}
	return events, nil
}

// LastSeq returns the highest persisted sequence number for
// investigationID, or 0 if nothing has been persisted yet — used on
// process restart to resume Append at the right position.
func (s *Store) LastSeq(ctx context.Context, investigationID string) (int64, error) {
	var seq stdsql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(seq) FROM investigation_events WHERE investigation_id = $1`,
		investigationID,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("eventlog: query last seq: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}
