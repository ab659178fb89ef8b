// Package journal persists gate decisions for later audit.
//
// The Journal observer queues decisions in memory and a single background
// writer inserts them, so the request path never waits on the database.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/Mindburn-Labs/triad/pkg/gate"
)

// Dialect selects placeholder syntax and DDL.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// Entry is one journaled decision.
type Entry struct {
	ID          int64
	At          time.Time
	Outcome     gate.Outcome
	Check       gate.Check
	Fingerprint string
	Path        string
	Duration    time.Duration
}

// EntryFromDecision converts an observed decision.
func EntryFromDecision(d gate.Decision) Entry {
	return Entry{
		At:          d.At,
		Outcome:     d.Outcome,
		Check:       d.Check,
		Fingerprint: d.Fingerprint,
		Path:        d.Path,
		Duration:    d.Duration,
	}
}

// Store reads and writes the gate_decisions table.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects using the Postgres URL when set, otherwise the SQLite path.
func Open(databaseURL, sqlitePath string) (*sql.DB, Dialect, error) {
	switch {
	case databaseURL != "":
		db, err := sql.Open("postgres", databaseURL)
		if err != nil {
			return nil, "", fmt.Errorf("open postgres journal: %w", err)
		}
		return db, Postgres, nil
	case sqlitePath != "":
		db, err := sql.Open("sqlite", sqlitePath)
		if err != nil {
			return nil, "", fmt.Errorf("open sqlite journal: %w", err)
		}
		// SQLite allows one writer; a single connection also keeps
		// ":memory:" databases coherent.
		db.SetMaxOpenConns(1)
		return db, SQLite, nil
	default:
		return nil, "", errors.New("journal: no database configured")
	}
}

// NewStore wraps db and creates the table if needed.
func NewStore(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	if dialect != SQLite && dialect != Postgres {
		return nil, fmt.Errorf("journal: unsupported dialect %q", dialect)
	}
	s := &Store{db: db, dialect: dialect}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("journal migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	id := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.dialect == Postgres {
		id = "BIGSERIAL PRIMARY KEY"
	}
	query := `CREATE TABLE IF NOT EXISTS gate_decisions (
		id ` + id + `,
		decided_at BIGINT NOT NULL,
		outcome TEXT NOT NULL,
		check_name TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		path TEXT NOT NULL,
		duration_us BIGINT NOT NULL
	)`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// rebind rewrites ? placeholders for Postgres.
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Insert writes e.
func (s *Store) Insert(ctx context.Context, e Entry) error {
	query := s.rebind(`INSERT INTO gate_decisions (decided_at, outcome, check_name, fingerprint, path, duration_us) VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		e.At.UnixMilli(), e.Outcome.String(), string(e.Check), e.Fingerprint, e.Path, e.Duration.Microseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert decision: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	query := s.rebind(`SELECT id, decided_at, outcome, check_name, fingerprint, path, duration_us FROM gate_decisions ORDER BY id DESC LIMIT ?`)
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var (
			e                  Entry
			atMs, durUs        int64
			outcome, checkName string
		)
		if err := rows.Scan(&e.ID, &atMs, &outcome, &checkName, &e.Fingerprint, &e.Path, &durUs); err != nil {
			return nil, err
		}
		if err := e.Outcome.UnmarshalText([]byte(outcome)); err != nil {
			return nil, err
		}
		e.At = time.UnixMilli(atMs)
		e.Check = gate.Check(checkName)
		e.Duration = time.Duration(durUs) * time.Microsecond
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// CountByOutcome tallies journaled decisions per outcome.
func (s *Store) CountByOutcome(ctx context.Context) (map[gate.Outcome]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM gate_decisions GROUP BY outcome`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[gate.Outcome]int64)
	for rows.Next() {
		var (
			name string
			n    int64
			o    gate.Outcome
		)
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		if err := o.UnmarshalText([]byte(name)); err != nil {
			return nil, err
		}
		counts[o] = n
	}
	return counts, rows.Err()
}
