package repository

import (
	"context"
	"database/sql"
	"time"

	"printer_shutdown/internal/models"
)

type Authorization interface {
	Create(ctx context.Context, username, hash string) (int, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// StatusRepo keeps the last observed printer status (single row).
type StatusRepo interface {
	Save(ctx context.Context, s models.PrinterStatus) error
	Load(ctx context.Context) (models.PrinterStatus, error)
}

type EventRepo interface {
	Append(ctx context.Context, e models.WatchEvent) error
	List(ctx context.Context, from, to time.Time, typ string, limit int) ([]models.WatchEvent, error)
}

type Repository struct {
	StatusRepo StatusRepo
	EventRepo  EventRepo
	Auth       Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		StatusRepo: NewStatusSQLite(db),
		EventRepo:  NewEventSQLite(db),
		Auth:       NewUserRepository(db),
	}
}
