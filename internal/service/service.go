package service

import (
	"context"
	"time"

	"printer_shutdown/internal/models"
	"printer_shutdown/internal/repository"
)

type Authorization interface {
	SignUp(ctx context.Context, username, password string) (int, error)
	GenerateToken(ctx context.Context, username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
	EnsureUser(ctx context.Context, username, password string) (bool, error)
}

// Watch queues arm/disarm/toggle requests for the control loop.
type Watch interface {
	Submit(ctx context.Context, kind, source string) error
}

// Monitoring exposes the live watch state.
type Monitoring interface {
	GetState(ctx context.Context) (models.WatchState, error)
}

// PrinterStatus exposes the last observed printer snapshot.
type PrinterStatus interface {
	GetLast(ctx context.Context) (models.PrinterStatus, error)
}

// EventLog exposes append-only logs with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.WatchEvent, error)
}

// Watcher runs the control loop. Stop via context cancellation.
type Watcher interface {
	Run(ctx context.Context, tick time.Duration)
}

type Service struct {
	Watch
	Monitoring
	PrinterStatus
	EventLog
	Watcher
	Authorization
}

// NewService wires the repositories and the control loop into the services
// used by handlers and the MQTT bridge.
func NewService(repos *repository.Repository, ctrl *Controller, auth AuthConfig) *Service {
	return &Service{
		Watch:         NewWatchService(ctrl),
		Monitoring:    NewMonitoringService(ctrl),
		PrinterStatus: NewPrinterStatusService(repos.StatusRepo),
		EventLog:      NewEventLogService(repos.EventRepo),
		Watcher:       ctrl,
		Authorization: NewAuthService(repos.Auth, auth),
	}
}
