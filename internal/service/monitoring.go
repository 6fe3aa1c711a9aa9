package service

import (
	"context"

	"printer_shutdown/internal/models"
)

// StateSource is implemented by Controller.
type StateSource interface {
	State() models.WatchState
}

type MonitoringService struct {
	src StateSource
}

func NewMonitoringService(src StateSource) *MonitoringService {
	return &MonitoringService{src: src}
}

// GetState returns the state published by the last loop tick.
func (s *MonitoringService) GetState(ctx context.Context) (models.WatchState, error) {
	if err := ctx.Err(); err != nil {
		return models.WatchState{}, err
	}
	return s.src.State(), nil
}
