package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"printer_shutdown/internal/models"
	"printer_shutdown/internal/repository"
)

const maxLogLimit = 1000

// LogFilter narrows the event log.
type LogFilter struct {
	From  time.Time // inclusive; zero means no lower bound
	To    time.Time // inclusive; zero means no upper bound
	Type  string    // "", ARMED, DISARMED, SHUTDOWN, SHUTDOWN_FAILED, POLL_FAILED, NETWORK
	Limit int       // newest N events; 0 means all, capped at maxLogLimit
}

type EventLogService struct {
	eventRepo repository.EventRepo
}

func NewEventLogService(eventRepo repository.EventRepo) *EventLogService {
	return &EventLogService{eventRepo: eventRepo}
}

var (
	errInvalidTimeRange = errors.New("invalid time range: from must be <= to")
	errInvalidLimit     = errors.New("invalid limit: must be >= 0")
	errUnknownEventType = errors.New("unknown event type")
)

var knownEventTypes = map[string]struct{}{
	models.EventArmed:          {},
	models.EventDisarmed:       {},
	models.EventShutdown:       {},
	models.EventShutdownFailed: {},
	models.EventPollFailed:     {},
	models.EventNetwork:        {},
}

// IsValidationError reports whether err came from filter validation.
func IsValidationError(err error) bool {
	return errors.Is(err, errInvalidTimeRange) || errors.Is(err, errInvalidLimit) || errors.Is(err, errUnknownEventType)
}

func normalizeEventType(s string) string {
	return strings.TrimSpace(strings.ToUpper(s))
}

// normalizeFilter converts bounds to UTC, uppercases the type and caps the limit.
func normalizeFilter(f LogFilter) (LogFilter, error) {
	out := LogFilter{
		From:  toUTC(f.From),
		To:    toUTC(f.To),
		Type:  normalizeEventType(f.Type),
		Limit: f.Limit,
	}

	if !out.From.IsZero() && !out.To.IsZero() && out.From.After(out.To) {
		return LogFilter{}, errInvalidTimeRange
	}
	if out.Limit < 0 {
		return LogFilter{}, errInvalidLimit
	}
	if out.Limit == 0 || out.Limit > maxLogLimit {
		out.Limit = maxLogLimit
	}
	if _, ok := knownEventTypes[out.Type]; out.Type != "" && !ok {
		return LogFilter{}, errUnknownEventType
	}
	return out, nil
}

func (s *EventLogService) List(ctx context.Context, f LogFilter) ([]models.WatchEvent, error) {
	nf, err := normalizeFilter(f)
	if err != nil {
		return nil, err
	}
	return s.eventRepo.List(ctx, nf.From, nf.To, nf.Type, nf.Limit)
}
