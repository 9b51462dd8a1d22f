package application

import (
	"context"
	"time"

	"planning-tracker/internal/domain"
	"planning-tracker/internal/ports"
)

// TimelineRecorder appends immutable stage-change events.
type TimelineRecorder struct {
	store ports.AggregateStore
	now   func() time.Time
	newID func() string
}

func NewTimelineRecorder(store ports.AggregateStore, now func() time.Time, newID func() string) *TimelineRecorder {
	return &TimelineRecorder{store: store, now: now, newID: newID}
}

// Build stamps a new event with the current time. It does not persist it.
func (r *TimelineRecorder) Build(appID string, stage domain.ApplicationStatus, label, details string) domain.TimelineEvent {
	return domain.TimelineEvent{
		ID:            r.newID(),
		ApplicationID: appID,
		Timestamp:     r.now().UTC(),
		Stage:         stage,
		Event:         label,
		Details:       details,
	}
}

func (r *TimelineRecorder) Record(ctx context.Context, appID string, stage domain.ApplicationStatus, label, details string) (domain.TimelineEvent, error) {
	event := r.Build(appID, stage, label, details)
	if err := r.store.PutTimelineEvent(ctx, event); err != nil {
		return domain.TimelineEvent{}, err
	}
	return event, nil
}
