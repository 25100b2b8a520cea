package service

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/portfolioledger/internal/domain"
)

const maxEventPage = 1000

// EventLog reads the committed ledger event log.
type EventLog struct {
	uow domain.UnitOfWork
}

// NewEventLog creates an EventLog over uow.
func NewEventLog(uow domain.UnitOfWork) *EventLog {
	return &EventLog{uow: uow}
}

// After returns up to limit events with Seq greater than after.
func (l *EventLog) After(ctx context.Context, after uint64, limit int) ([]domain.Event, error) {
	if limit <= 0 || limit > maxEventPage {
		limit = maxEventPage
	}
	events, err := l.uow.Events(ctx, after, limit)
	if err != nil {
		return nil, fmt.Errorf("event_log: after %d: %w", after, err)
	}
	return events, nil
}
