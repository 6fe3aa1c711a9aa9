package service

import (
	"context"
	"time"

	"printer_shutdown/internal/models"
	"printer_shutdown/internal/repository"
)

type PrinterStatusService struct {
	statusRepo repository.StatusRepo
}

func NewPrinterStatusService(statusRepo repository.StatusRepo) *PrinterStatusService {
	return &PrinterStatusService{statusRepo: statusRepo}
}

// GetLast returns the last persisted snapshot. Before the first successful
// poll it returns a baseline with an unknown status.
func (s *PrinterStatusService) GetLast(ctx context.Context) (models.PrinterStatus, error) {
	st, err := s.statusRepo.Load(ctx)
	if err != nil {
		return models.PrinterStatus{}, err
	}
	if st.ID == 0 {
		return baselineStatus(), nil
	}
	st.ObservedAt = toUTC(st.ObservedAt)
	st.Snapshot.FetchedAt = toUTC(st.Snapshot.FetchedAt)
	return st, nil
}

func baselineStatus() models.PrinterStatus {
	return models.PrinterStatus{
		ID:   0,
		Kind: models.KindOther,
	}
}

// toUTC normalizes non-zero time to UTC, preserving zero values.
func toUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
