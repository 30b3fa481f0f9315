package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"whygo/internal/domain"
	"whygo/internal/repo"
)

const (
	GoalCreated      = "goal.created"
	GoalUpdated      = "goal.updated"
	GoalApproved     = "goal.approved"
	GoalStatus       = "goal.status_changed"
	GoalDeleted      = "goal.deleted"
	OutcomeUpdated   = "outcome.updated"
	EmployeeUpserted = "employee.upserted"
)

// Types lists every event type the service emits.
var Types = []string{GoalCreated, GoalUpdated, GoalApproved, GoalStatus, GoalDeleted, OutcomeUpdated, EmployeeUpserted}

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes an event document through w so it commits with the
// surrounding batch.
func (wr Writer) Append(ctx context.Context, w repo.Writer, evtType, entityKind, entityID, actorID string, payload EventPayload) (domain.Event, error) {
	now := time.Now
	if wr.Now != nil {
		now = wr.Now
	}
	if payload == nil {
		payload = EventPayload{}
	}
	evt := domain.Event{
		ID:         uuid.NewString(),
		TS:         now().UTC().Format("2006-01-02T15:04:05.000000000Z"),
		Type:       evtType,
		EntityKind: entityKind,
		EntityID:   entityID,
		ActorID:    actorID,
		Payload:    payload,
	}
	if err := w.Create(ctx, domain.CollectionEvents, evt.ID, evt); err != nil {
		return domain.Event{}, err
	}
	return evt, nil
}
