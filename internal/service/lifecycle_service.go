package service

import (
	"context"
	"time"

	"booking-service/internal/models"
	"booking-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// RecomputeSummary counts what one lifecycle pass did
type RecomputeSummary struct {
	Scanned int `json:"scanned"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// LifecycleService keeps stored event statuses in line with DeriveEventStatus
type LifecycleService struct {
	store     EventStore
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewLifecycleService creates a new lifecycle service
func NewLifecycleService(store EventStore, publisher Publisher) *LifecycleService {
	return &LifecycleService{
		store:     store,
		publisher: publisher,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// RecomputeEventStatuses scans every scheduler-managed event and writes the
// statuses that changed. A failed write is logged and counted; the scan goes on.
func (s *LifecycleService) RecomputeEventStatuses(ctx context.Context) (*RecomputeSummary, error) {
	ctx, span := util.StartSpan(ctx, "LifecycleService.RecomputeEventStatuses")
	defer span.End()

	events, err := s.store.ListSchedulableEvents(ctx)
	if err != nil {
		return nil, util.RecordError(span, err)
	}

	now := s.now()
	summary := &RecomputeSummary{Scanned: len(events)}

	for i := range events {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		updated, err := s.apply(ctx, &events[i], now)
		if err != nil {
			summary.Failed++
			util.EventStatusFailuresTotal.Inc()
			s.logger.Error("Failed to update event status",
				zap.String("event_id", events[i].ID),
				zap.Error(err))
			continue
		}
		if updated {
			summary.Updated++
		}
	}

	span.SetAttributes(
		attribute.Int("scanned", summary.Scanned),
		attribute.Int("updated", summary.Updated),
		attribute.Int("failed", summary.Failed))
	return summary, nil
}

// RecomputeEvent re-derives a single event's status
func (s *LifecycleService) RecomputeEvent(ctx context.Context, eventID string) (bool, error) {
	event, err := s.store.GetEventByID(ctx, eventID)
	if err != nil {
		return false, err
	}
	if !models.IsSchedulerManaged(event.Status) {
		return false, nil
	}
	return s.apply(ctx, event, s.now())
}

// HandleBookingConfirmed refreshes the event a newly confirmed booking belongs to
func (s *LifecycleService) HandleBookingConfirmed(ctx context.Context, event *models.BookingConfirmedEvent) error {
	_, err := s.RecomputeEvent(ctx, event.EventRef)
	return err
}

func (s *LifecycleService) apply(ctx context.Context, event *models.Event, now time.Time) (bool, error) {
	next := models.DeriveEventStatus(event, now)
	if next == event.Status {
		return false, nil
	}

	updated, err := s.store.UpdateEventStatus(ctx, event.ID, event.Status, next)
	if err != nil {
		return false, err
	}
	if !updated {
		s.logger.Debug("Event status changed concurrently, skipping",
			zap.String("event_id", event.ID))
		return false, nil
	}

	util.EventStatusUpdatesTotal.WithLabelValues(next).Inc()
	s.logger.Info("Event status updated",
		zap.String("event_id", event.ID),
		zap.String("from", event.Status),
		zap.String("to", next))

	if err := s.publisher.PublishEventStatusChanged(ctx, event.ID, event.Status, next); err != nil {
		s.logger.Error("Failed to publish EventStatusChanged event", zap.Error(err))
	}
	event.Status = next
	return true, nil
}
