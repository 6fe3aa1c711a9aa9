package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"printer_shutdown/internal/models"
)

// eventTimestamp is SQLite's datetime() layout with fixed-width nanoseconds,
// so text order equals time order.
const eventTimestamp = "2006-01-02 15:04:05.000000000"

const (
	insertEventSQL = `INSERT INTO watch_events (id, occurred_at, type, message, meta) VALUES (?, ?, ?, ?, ?)`
	eventColumns   = `id, occurred_at, type, message, meta`
	selectEventSQL = `SELECT ` + eventColumns + ` FROM watch_events`
)

// EventSQLite is the append-only watch event log.
type EventSQLite struct {
	db *sql.DB
}

func NewEventSQLite(db *sql.DB) *EventSQLite { return &EventSQLite{db: db} }

var _ EventRepo = (*EventSQLite)(nil)

// Append inserts e. An empty EventID gets a uuid and a zero OccurredAt gets the current time.
func (r *EventSQLite) Append(ctx context.Context, e models.WatchEvent) error {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	at := e.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}

	_, err := r.db.ExecContext(ctx, insertEventSQL,
		e.EventID,
		at.UTC().Format(eventTimestamp),
		normalizeType(e.Type),
		e.Description,
		encodeMeta(e.Metadata),
	)
	if err != nil {
		return fmt.Errorf("insert %s event: %w", e.Type, err)
	}
	return nil
}

// List returns events in [from, to] (zero = unbounded), optionally of one
// type, oldest first. With limit > 0 only the newest limit events are kept.
// Events with equal timestamps keep insertion order (rowid).
func (r *EventSQLite) List(ctx context.Context, from, to time.Time, typ string, limit int) ([]models.WatchEvent, error) {
	q, args := listEventsQuery(from, to, normalizeType(typ), limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query watch events: %w", err)
	}
	defer rows.Close()

	out := make([]models.WatchEvent, 0)
	for rows.Next() {
		var (
			ev   models.WatchEvent
			meta sql.NullString
		)
		if err := rows.Scan(&ev.EventID, &ev.OccurredAt, &ev.Type, &ev.Description, &meta); err != nil {
			return nil, fmt.Errorf("scan watch event: %w", err)
		}
		ev.OccurredAt = ev.OccurredAt.UTC()
		ev.Metadata = decodeMeta(meta)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate watch events: %w", err)
	}
	return out, nil
}

func listEventsQuery(from, to time.Time, typ string, limit int) (string, []any) {
	var (
		where []string
		args  []any
	)
	if !from.IsZero() {
		where = append(where, "occurred_at >= ?")
		args = append(args, from.UTC().Format(eventTimestamp))
	}
	if !to.IsZero() {
		where = append(where, "occurred_at <= ?")
		args = append(args, to.UTC().Format(eventTimestamp))
	}
	if typ != "" {
		where = append(where, "type = ?")
		args = append(args, typ)
	}

	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}
	if limit <= 0 {
		return selectEventSQL + cond + " ORDER BY occurred_at ASC, rowid ASC", args
	}
	newest := "SELECT rowid AS seq, " + eventColumns + " FROM watch_events" + cond +
		" ORDER BY occurred_at DESC, seq DESC LIMIT " + strconv.Itoa(limit)
	return "SELECT " + eventColumns + " FROM (" + newest + ") ORDER BY occurred_at ASC, seq ASC", args
}

func normalizeType(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// encodeMeta returns nil (SQL NULL) for absent or unencodable metadata.
func encodeMeta(v any) *string {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return nil
	}
	s := string(b)
	return &s
}

// decodeMeta keeps the raw string when the column is not valid JSON.
func decodeMeta(ns sql.NullString) any {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(ns.String), &v); err != nil {
		return ns.String
	}
	return v
}
