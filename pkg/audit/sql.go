package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Mindburn-Labs/returns-core/pkg/contracts"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS audit_log (
	session_id   TEXT    NOT NULL,
	seq          INTEGER NOT NULL,
	timestamp    TEXT    NOT NULL,
	actor        TEXT    NOT NULL,
	type         TEXT    NOT NULL,
	payload      TEXT    NOT NULL,
	payload_hash TEXT    NOT NULL,
	prev_hash    TEXT    NOT NULL,
	entry_hash   TEXT    NOT NULL,
	PRIMARY KEY (session_id, seq)
);`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS audit_log (
	session_id   TEXT   NOT NULL,
	seq          BIGINT NOT NULL,
	timestamp    TEXT   NOT NULL,
	actor        TEXT   NOT NULL,
	type         TEXT   NOT NULL,
	payload      TEXT   NOT NULL,
	payload_hash TEXT   NOT NULL,
	prev_hash    TEXT   NOT NULL,
	entry_hash   TEXT   NOT NULL,
	PRIMARY KEY (session_id, seq)
);`

// SQLLog implements Log on database/sql. Appends run inside a transaction
// that reads the session tail, so concurrent appenders for the same session
// serialize on the composite primary key rather than corrupting the chain.
type SQLLog struct {
	db      *sql.DB
	dialect dialect
	clock   func() time.Time
}

// NewSQLiteLog wraps an open SQLite handle and creates the audit table.
func NewSQLiteLog(db *sql.DB) (*SQLLog, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("audit: create schema: %w", err)
	}
	return &SQLLog{db: db, dialect: dialectSQLite, clock: time.Now}, nil
}

// NewPostgresLog wraps an open Postgres handle without migrating. Call
// Migrate once at bootstrap.
func NewPostgresLog(db *sql.DB) *SQLLog {
	return &SQLLog{db: db, dialect: dialectPostgres, clock: time.Now}
}

// Migrate creates the audit table if it does not exist.
func (l *SQLLog) Migrate(ctx context.Context) error {
	schema := sqliteSchema
	if l.dialect == dialectPostgres {
		schema = postgresSchema
	}
	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("audit: migrate: %w", err)
	}
	return nil
}

// WithClock overrides the clock for deterministic testing.
func (l *SQLLog) WithClock(clock func() time.Time) *SQLLog {
	l.clock = clock
	return l
}

func (l *SQLLog) rebind(query string) string {
	if l.dialect != dialectPostgres {
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

func (l *SQLLog) Append(ctx context.Context, sessionID string, actor contracts.ActorRole, typ contracts.AuditEntryType, payload any) (*Entry, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("audit: begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var prev *Entry
	row := tx.QueryRowContext(ctx, l.rebind(`
		SELECT seq, entry_hash FROM audit_log
		WHERE session_id = ? ORDER BY seq DESC LIMIT 1`), sessionID)
	var tail Entry
	switch err := row.Scan(&tail.Seq, &tail.EntryHash); {
	case err == nil:
		prev = &tail
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, fmt.Errorf("audit: read session tail: %w", err)
	}

	e, err := build(sessionID, actor, typ, payload, prev, l.clock())
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, l.rebind(`
		INSERT INTO audit_log (session_id, seq, timestamp, actor, type, payload, payload_hash, prev_hash, entry_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		e.SessionID, e.Seq, e.Timestamp.Format(time.RFC3339Nano),
		string(e.Actor), string(e.Type), string(e.Payload),
		e.PayloadHash, e.PrevHash, e.EntryHash)
	if err != nil {
		return nil, fmt.Errorf("audit: insert entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("audit: commit append: %w", err)
	}
	return e, nil
}

func (l *SQLLog) Session(ctx context.Context, sessionID string) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, l.rebind(`
		SELECT session_id, seq, timestamp, actor, type, payload, payload_hash, prev_hash, entry_hash
		FROM audit_log WHERE session_id = ? ORDER BY seq ASC`), sessionID)
	if err != nil {
		return nil, fmt.Errorf("audit: query session: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			ts      string
			actor   string
			typ     string
			payload string
		)
		if err := rows.Scan(&e.SessionID, &e.Seq, &ts, &actor, &typ, &payload, &e.PayloadHash, &e.PrevHash, &e.EntryHash); err != nil {
			return nil, fmt.Errorf("audit: scan entry: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("audit: parse timestamp: %w", err)
		}
		e.Timestamp = t
		e.Actor = contracts.ActorRole(actor)
		e.Type = contracts.AuditEntryType(typ)
		e.Payload = []byte(payload)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate session: %w", err)
	}
	return entries, nil
}

func (l *SQLLog) VerifyChain(ctx context.Context, sessionID string) error {
	entries, err := l.Session(ctx, sessionID)
	if err != nil {
		return err
	}
	return verify(entries)
}
