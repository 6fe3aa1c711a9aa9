package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"printer_shutdown/internal/models"
)

type StatusSQLite struct {
	db *sql.DB
}

func NewStatusSQLite(db *sql.DB) *StatusSQLite {
	return &StatusSQLite{db: db}
}

const (
	printerStatusRowID = 1

	upsertStatusSQL = `
		INSERT INTO printer_status (id, status, kind, fraction_printed, bed_temp_c, fetched_at, observed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status=excluded.status,
			kind=excluded.kind,
			fraction_printed=excluded.fraction_printed,
			bed_temp_c=excluded.bed_temp_c,
			fetched_at=excluded.fetched_at,
			observed_at=excluded.observed_at
	`

	selectStatusSQL = `
		SELECT id, status, kind, fraction_printed, bed_temp_c, fetched_at, observed_at
		FROM printer_status WHERE id=?
	`
)

// Save overwrites the printer_status row. Kind is derived from the snapshot
// when empty; zero timestamps become now.
func (r *StatusSQLite) Save(ctx context.Context, st models.PrinterStatus) error {
	now := time.Now().UTC()

	fetched := utcOr(st.Snapshot.FetchedAt, now)
	observed := utcOr(st.ObservedAt, now)
	kind := st.Kind
	if kind == "" {
		kind = st.Snapshot.Kind()
	}

	_, err := r.db.ExecContext(ctx, upsertStatusSQL,
		printerStatusRowID,
		st.Snapshot.Status,
		kind,
		st.Snapshot.FractionPrinted,
		st.Snapshot.BedTempC,
		fetched,
		observed,
	)
	if err != nil {
		return fmt.Errorf("save printer status: %w", err)
	}
	return nil
}

// Load returns the zero value (ID 0) when nothing was observed yet.
func (r *StatusSQLite) Load(ctx context.Context) (models.PrinterStatus, error) {
	var st models.PrinterStatus
	err := r.db.QueryRowContext(ctx, selectStatusSQL, printerStatusRowID).Scan(
		&st.ID,
		&st.Snapshot.Status,
		&st.Kind,
		&st.Snapshot.FractionPrinted,
		&st.Snapshot.BedTempC,
		&st.Snapshot.FetchedAt,
		&st.ObservedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.PrinterStatus{}, nil
		}
		return models.PrinterStatus{}, fmt.Errorf("load printer status: %w", err)
	}
	st.Snapshot.FetchedAt = st.Snapshot.FetchedAt.UTC()
	st.ObservedAt = st.ObservedAt.UTC()
	return st, nil
}

func utcOr(t, fallback time.Time) time.Time {
	if t.IsZero() {
		return fallback
	}
	return t.UTC()
}
