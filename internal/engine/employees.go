package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"whygo/internal/domain"
	"whygo/internal/engine/auth"
	"whygo/internal/events"
	"whygo/internal/repo"
)

func (e Engine) ListEmployees(ctx context.Context, department string) ([]domain.Actor, error) {
	if department != "" {
		if canon, ok := domain.CanonicalDepartment(department); ok {
			department = canon
		}
	}
	return e.Repo.ListEmployees(ctx, department)
}

func (e Engine) GetEmployee(ctx context.Context, id string) (domain.Actor, error) {
	a, err := e.Repo.GetEmployee(ctx, id)
	if err != nil {
		return domain.Actor{}, fmt.Errorf("employee %s: %w", id, err)
	}
	return a, nil
}

func validateEmployee(a *domain.Actor) error {
	var v validator
	if strings.TrimSpace(a.ID) == "" {
		v.add("id", "is required")
	}
	if strings.TrimSpace(a.Name) == "" {
		v.add("name", "is required")
	}
	if !a.Level.Valid() {
		v.add("level", "unknown level %q", a.Level)
	}
	if dept, ok := domain.CanonicalDepartment(a.Department); ok {
		a.Department = dept
	} else {
		v.add("department", "unknown department %q", a.Department)
	}
	if a.ReportsTo != nil {
		if strings.TrimSpace(*a.ReportsTo) == "" {
			a.ReportsTo = nil
		} else if *a.ReportsTo == a.ID {
			v.add("reportsTo", "employee cannot report to themselves")
		}
	}
	return v.err()
}

// UpsertEmployee creates or replaces an employee record. Only executives
// may change the roster.
func (e Engine) UpsertEmployee(ctx context.Context, actor domain.Actor, emp domain.Actor) (out domain.Actor, err error) {
	started := time.Now()
	defer func() { e.finish("upsert_employee", started, actor, emp.ID, err) }()

	if err := validateEmployee(&emp); err != nil {
		return domain.Actor{}, err
	}
	if !auth.CanEditEmployee(actor) {
		return domain.Actor{}, auth.ForbiddenError{Action: "edit employee", Reason: "only executives manage employees"}
	}
	return e.writeEmployee(ctx, actor.ID, emp)
}

// SeedEmployee writes an employee without an authorization check. It backs
// the administrative CLI, which runs with direct database access.
func (e Engine) SeedEmployee(ctx context.Context, emp domain.Actor) (domain.Actor, error) {
	if err := validateEmployee(&emp); err != nil {
		return domain.Actor{}, err
	}
	return e.writeEmployee(ctx, "system", emp)
}

func (e Engine) writeEmployee(ctx context.Context, actorID string, emp domain.Actor) (domain.Actor, error) {
	r := e.Repo
	r.Now = e.now
	var out domain.Actor
	err := e.Store.Batch(ctx, func(w repo.Writer) error {
		var err error
		out, err = r.UpsertEmployee(ctx, w, emp)
		if err != nil {
			return err
		}
		return e.appendEvent(ctx, w, events.EmployeeUpserted, "employee", emp.ID, actorID, events.EventPayload{
			"level":      emp.Level,
			"department": emp.Department,
		})
	})
	if err != nil {
		return domain.Actor{}, StoreWriteError{Op: "upsert employee", Err: err}
	}
	return out, nil
}

// Reports returns the direct reports of managerID, or the whole reporting
// tree beneath them when all is set. Managers see their own reports;
// management-level actors see anyone's.
func (e Engine) Reports(ctx context.Context, actor domain.Actor, managerID string, all bool) ([]domain.Actor, error) {
	if managerID != actor.ID && !auth.CanAccessManagement(actor) {
		return nil, auth.ForbiddenError{Action: "view reports", Reason: "only your own reports are visible"}
	}
	if _, err := e.GetEmployee(ctx, managerID); err != nil {
		return nil, err
	}
	roster, err := e.Repo.ListEmployees(ctx, "")
	if err != nil {
		return nil, err
	}
	var res []domain.Actor
	if all {
		res = auth.AllReports(managerID, roster)
	} else {
		res = auth.DirectReports(managerID, roster)
	}
	if res == nil {
		res = []domain.Actor{}
	}
	return res, nil
}
