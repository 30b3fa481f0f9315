package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"whygo/internal/domain"
	"whygo/internal/engine/auth"
	"whygo/internal/events"
	"whygo/internal/repo"
)

// OptionalFloat distinguishes an absent value from an explicit null.
type OptionalFloat struct {
	Set   bool
	Value *float64
}

func SomeFloat(v float64) OptionalFloat { return OptionalFloat{Set: true, Value: &v} }

func NullFloat() OptionalFloat { return OptionalFloat{Set: true} }

type OptionalStatus struct {
	Set   bool
	Value *domain.StatusIndicator
}

func SomeStatus(s domain.StatusIndicator) OptionalStatus {
	return OptionalStatus{Set: true, Value: &s}
}

func NullStatus() OptionalStatus { return OptionalStatus{Set: true} }

// OutcomePatch is either a details edit (description, unit, targets) or a
// progress update (quarter actual and status). Nil fields are left alone.
type OutcomePatch struct {
	Description  *string
	Unit         *string
	AnnualTarget *domain.Target
	Q1Target     *domain.Target
	Q2Target     *domain.Target
	Q3Target     *domain.Target
	Q4Target     *domain.Target

	Quarter string
	Actual  OptionalFloat
	Status  OptionalStatus
}

func (p OutcomePatch) details() bool {
	return p.Description != nil || p.Unit != nil || p.AnnualTarget != nil ||
		p.Q1Target != nil || p.Q2Target != nil || p.Q3Target != nil || p.Q4Target != nil
}

func (p OutcomePatch) progress() bool {
	return p.Actual.Set || p.Status.Set
}

func validateOutcomePatch(p OutcomePatch) error {
	var v validator
	if !p.details() && !p.progress() {
		v.add("patch", "no fields supplied")
	}
	if p.Description != nil && strings.TrimSpace(*p.Description) == "" {
		v.add("description", "must not be empty")
	}
	if p.progress() || p.Quarter != "" {
		switch {
		case p.Quarter == "":
			v.add("quarter", "is required with actual or status")
		case !domain.IsQuarter(p.Quarter):
			v.add("quarter", "must be one of q1, q2, q3, q4")
		case !p.progress():
			v.add("quarter", "given without actual or status")
		}
	}
	if p.Status.Set && p.Status.Value != nil && !p.Status.Value.Valid() {
		v.add("status", "must be one of +, ~, -")
	}
	return v.err()
}

func (e Engine) getOutcome(ctx context.Context, id string) (domain.Outcome, error) {
	var o domain.Outcome
	if err := e.Store.Get(ctx, domain.CollectionOutcomes, id, &o); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Outcome{}, fmt.Errorf("outcome %s: %w", id, repo.ErrNotFound)
		}
		return domain.Outcome{}, err
	}
	return o, nil
}

// UpdateOutcome applies a details or progress patch. A patch touching any
// details field needs details permission; otherwise progress permission
// applies. Only the supplied fields are written.
func (e Engine) UpdateOutcome(ctx context.Context, actor domain.Actor, id string, patch OutcomePatch) (o domain.Outcome, err error) {
	started := time.Now()
	defer func() { e.finish("update_outcome", started, actor, id, err) }()

	o, err = e.getOutcome(ctx, id)
	if err != nil {
		return domain.Outcome{}, err
	}
	kind := "progress"
	if patch.details() {
		kind = "details"
		if !auth.CanEditOutcomeDetails(actor) {
			return domain.Outcome{}, auth.ForbiddenError{Action: "edit outcome details", Reason: "only executives and department heads edit outcome details"}
		}
	} else if !auth.CanUpdateOutcomeProgress(actor, o) {
		return domain.Outcome{}, auth.ForbiddenError{Action: "update outcome progress", Reason: "only the owner or a manager may update progress"}
	}
	if err := validateOutcomePatch(patch); err != nil {
		return domain.Outcome{}, err
	}

	fields := map[string]any{}
	var changed []string
	set := func(name string, value any) {
		fields[name] = value
		changed = append(changed, name)
	}
	if patch.Description != nil {
		o.Description = strings.TrimSpace(*patch.Description)
		set("description", o.Description)
	}
	if patch.Unit != nil {
		o.Unit = strings.TrimSpace(*patch.Unit)
		set("unit", o.Unit)
	}
	targets := []struct {
		name string
		in   *domain.Target
		dst  *domain.Target
	}{
		{"annualTarget", patch.AnnualTarget, &o.AnnualTarget},
		{"q1Target", patch.Q1Target, &o.Q1Target},
		{"q2Target", patch.Q2Target, &o.Q2Target},
		{"q3Target", patch.Q3Target, &o.Q3Target},
		{"q4Target", patch.Q4Target, &o.Q4Target},
	}
	for _, t := range targets {
		if t.in != nil {
			*t.dst = *t.in
			set(t.name, *t.in)
		}
	}
	if patch.Actual.Set {
		o.SetActual(patch.Quarter, patch.Actual.Value)
		set(patch.Quarter+"Actual", patch.Actual.Value)
	}
	if patch.Status.Set {
		o.SetStatus(patch.Quarter, patch.Status.Value)
		set(patch.Quarter+"Status", patch.Status.Value)
	}
	o.UpdatedAt, o.UpdatedBy = e.stamp(), actor.ID
	fields["updatedAt"] = o.UpdatedAt
	fields["updatedBy"] = o.UpdatedBy

	err = e.Store.Batch(ctx, func(w repo.Writer) error {
		if err := w.Update(ctx, domain.CollectionOutcomes, id, fields); err != nil {
			return err
		}
		return e.appendEvent(ctx, w, events.OutcomeUpdated, "outcome", id, actor.ID, events.EventPayload{
			"kind":    kind,
			"whygoId": o.WhygoID,
			"fields":  changed,
		})
	})
	if err != nil {
		return domain.Outcome{}, StoreWriteError{Op: "update outcome", Err: err}
	}
	return o, nil
}

// ListOutcomes returns the outcomes of a goal the actor may view, in sort order.
func (e Engine) ListOutcomes(ctx context.Context, actor domain.Actor, goalID string) ([]domain.Outcome, error) {
	if _, err := e.GetGoal(ctx, actor, goalID); err != nil {
		return nil, err
	}
	return e.listOutcomes(ctx, goalID)
}

func (e Engine) listOutcomes(ctx context.Context, goalID string) ([]domain.Outcome, error) {
	docs, err := e.Store.Query(ctx, repo.Query{
		Collection: domain.CollectionOutcomes,
		Where:      []repo.Filter{repo.Where("whygoId", repo.OpEq, goalID)},
		OrderBy:    []repo.Order{{Field: "sortOrder"}},
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Outcome, 0, len(docs))
	for _, d := range docs {
		var o domain.Outcome
		if err := d.Decode(&o); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}
