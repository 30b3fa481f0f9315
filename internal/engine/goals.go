package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"whygo/internal/domain"
	"whygo/internal/engine/auth"
	"whygo/internal/events"
	"whygo/internal/ids"
	"whygo/internal/repo"
)

// GoalInput is the form submitted to create a goal.
type GoalInput struct {
	// ID may carry an id minted by an earlier attempt so a retry does not
	// create a second goal.
	ID           string
	Level        domain.GoalLevel
	Year         int
	Department   string
	Goal         string
	Why          string
	ParentGoalID string
	Outcomes     []OutcomeInput
}

// OutcomeInput is one outcome row of the create form. Targets accept
// numbers or strings; anything that is not a number becomes an empty target.
type OutcomeInput struct {
	Description  string
	Unit         string
	AnnualTarget any
	Q1Target     any
	Q2Target     any
	Q3Target     any
	Q4Target     any
	OwnerID      string
}

func (in OutcomeInput) blank() bool {
	if strings.TrimSpace(in.Description) != "" || strings.TrimSpace(in.Unit) != "" || strings.TrimSpace(in.OwnerID) != "" {
		return false
	}
	for _, t := range []any{in.AnnualTarget, in.Q1Target, in.Q2Target, in.Q3Target, in.Q4Target} {
		if !domain.ParseTarget(t).IsEmpty() {
			return false
		}
	}
	return true
}

// GoalPatch carries the goal fields to change. Nil fields are left alone;
// an empty ParentGoalID clears the parent link.
type GoalPatch struct {
	Goal         *string
	Why          *string
	ParentGoalID *string
}

type GoalFilter struct {
	Year         int
	Level        domain.GoalLevel
	Department   string
	OwnerID      string
	ParentGoalID string
	Status       domain.GoalStatus
}

// GoalNode is a goal with its outcomes and the visible goals beneath it.
type GoalNode struct {
	Goal     domain.Goal      `json:"goal"`
	Outcomes []domain.Outcome `json:"outcomes"`
	Children []GoalNode       `json:"children"`
}

const mintAttempts = 3

func textLen(s string) int {
	return utf8.RuneCountInString(strings.TrimSpace(s))
}

func (e Engine) minGoalLength() int {
	if e.Config != nil {
		return e.Config.Goals.MinGoalLength
	}
	return 10
}

func (e Engine) minWhyLength() int {
	if e.Config != nil {
		return e.Config.Goals.MinWhyLength
	}
	return 50
}

func (e Engine) checkGoalText(v *validator, goal, why *string) {
	if goal != nil && textLen(*goal) < e.minGoalLength() {
		v.add("goal", "must be at least %d characters", e.minGoalLength())
	}
	if why != nil && textLen(*why) < e.minWhyLength() {
		v.add("why", "must be at least %d characters", e.minWhyLength())
	}
}

// validateGoalInput normalizes in and collects every field violation.
func (e Engine) validateGoalInput(in *GoalInput) error {
	var v validator
	if in.Year == 0 {
		in.Year = e.now().Year()
		if e.Config != nil && e.Config.Goals.DefaultYear != 0 {
			in.Year = e.Config.Goals.DefaultYear
		}
	}
	if in.Year < 2000 || in.Year > 2099 {
		v.add("year", "must be between 2000 and 2099")
	}
	switch {
	case in.Level == "":
		v.add("level", "is required")
	case !in.Level.Valid():
		v.add("level", "unknown level %q", in.Level)
	case in.Level == domain.GoalCompany:
		in.Department = ""
	default:
		dept, ok := domain.CanonicalDepartment(in.Department)
		switch {
		case strings.TrimSpace(in.Department) == "":
			v.add("department", "is required for %s goals", in.Level)
		case !ok || !e.Config.HasDepartment(dept):
			v.add("department", "unknown department %q", in.Department)
		default:
			in.Department = dept
		}
	}
	e.checkGoalText(&v, &in.Goal, &in.Why)
	if in.ID != "" {
		parsed, err := ids.ParseGoalID(in.ID)
		if err != nil {
			v.add("id", "%v", err)
		} else if parsed.Level != in.Level || parsed.Year != in.Year {
			v.add("id", "does not match level and year")
		} else if parsed.Department != nil && in.Department != "" && *parsed.Department != ids.DepartmentToken(in.Department) {
			v.add("id", "does not match department %q", in.Department)
		}
	}
	rows := in.Outcomes[:0:0]
	for _, o := range in.Outcomes {
		if !o.blank() {
			rows = append(rows, o)
		}
	}
	in.Outcomes = rows
	for i, o := range in.Outcomes {
		if strings.TrimSpace(o.Description) == "" {
			v.add(fmt.Sprintf("outcomes[%d].description", i), "is required")
		}
	}
	return v.err()
}

// outcomeOwners resolves the display name of every outcome owner.
func (e Engine) outcomeOwners(ctx context.Context, actor domain.Actor, in []OutcomeInput) (map[string]string, error) {
	names := map[string]string{actor.ID: actor.Name}
	var v validator
	for i, o := range in {
		id := strings.TrimSpace(o.OwnerID)
		if id == "" {
			continue
		}
		if _, ok := names[id]; ok {
			continue
		}
		emp, err := e.Repo.GetEmployee(ctx, id)
		if errors.Is(err, repo.ErrNotFound) {
			v.add(fmt.Sprintf("outcomes[%d].ownerId", i), "unknown employee %q", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		names[id] = emp.Name
	}
	return names, v.err()
}

// CreateGoal validates, authorizes and writes a goal with its outcomes in
// one batch. It returns the goal id.
func (e Engine) CreateGoal(ctx context.Context, actor domain.Actor, in GoalInput) (id string, err error) {
	started := time.Now()
	defer func() { e.finish("create_goal", started, actor, id, err) }()

	if err := e.validateGoalInput(&in); err != nil {
		return "", err
	}
	if !auth.CanCreateGoal(actor, in.Level) {
		return "", auth.ForbiddenError{Action: "create goal", Reason: fmt.Sprintf("%s cannot create %s goals", actor.Level, in.Level)}
	}
	owners, err := e.outcomeOwners(ctx, actor, in.Outcomes)
	if err != nil {
		return "", err
	}

	if in.ID != "" {
		var existing domain.Goal
		err := e.Store.Get(ctx, domain.CollectionGoals, in.ID, &existing)
		switch {
		case err == nil && existing.CreatedBy == actor.ID:
			return in.ID, nil
		case err == nil:
			return "", fmt.Errorf("goal %s: %w", in.ID, repo.ErrAlreadyExists)
		case !errors.Is(err, repo.ErrNotFound):
			return "", err
		}
		if err := e.writeNewGoal(ctx, actor, in.ID, in, owners); err != nil {
			return "", err
		}
		return in.ID, nil
	}
	for attempt := 1; ; attempt++ {
		minted, err := ids.GenerateGoalID(in.Level, in.Department, in.Year)
		if err != nil {
			return "", err
		}
		err = e.writeNewGoal(ctx, actor, minted, in, owners)
		if errors.Is(err, repo.ErrAlreadyExists) && attempt < mintAttempts {
			continue
		}
		if err != nil {
			return "", err
		}
		return minted, nil
	}
}

func (e Engine) writeNewGoal(ctx context.Context, actor domain.Actor, id string, in GoalInput, owners map[string]string) error {
	now := e.stamp()
	g := domain.Goal{
		ID:        id,
		Level:     in.Level,
		Year:      in.Year,
		OwnerID:   actor.ID,
		OwnerName: actor.Name,
		Goal:      strings.TrimSpace(in.Goal),
		Why:       strings.TrimSpace(in.Why),
		Status:    domain.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: actor.ID,
		UpdatedBy: actor.ID,
	}
	if in.Level != domain.GoalCompany {
		dept := in.Department
		g.Department = &dept
	}
	if p := strings.TrimSpace(in.ParentGoalID); p != "" {
		g.ParentGoalID = &p
	}
	outcomes := make([]domain.Outcome, 0, len(in.Outcomes))
	for i, o := range in.Outcomes {
		ownerID := strings.TrimSpace(o.OwnerID)
		if ownerID == "" {
			ownerID = actor.ID
		}
		outcomes = append(outcomes, domain.Outcome{
			ID:           ids.GenerateOutcomeID(id, i+1),
			WhygoID:      id,
			Description:  strings.TrimSpace(o.Description),
			Unit:         strings.TrimSpace(o.Unit),
			AnnualTarget: domain.ParseTarget(o.AnnualTarget),
			Q1Target:     domain.ParseTarget(o.Q1Target),
			Q2Target:     domain.ParseTarget(o.Q2Target),
			Q3Target:     domain.ParseTarget(o.Q3Target),
			Q4Target:     domain.ParseTarget(o.Q4Target),
			OwnerID:      ownerID,
			OwnerName:    owners[ownerID],
			SortOrder:    i + 1,
			CreatedAt:    now,
			UpdatedAt:    now,
			CreatedBy:    actor.ID,
			UpdatedBy:    actor.ID,
		})
	}
	err := e.Store.Batch(ctx, func(w repo.Writer) error {
		if err := w.Create(ctx, domain.CollectionGoals, g.ID, g); err != nil {
			return err
		}
		for _, o := range outcomes {
			if err := w.Create(ctx, domain.CollectionOutcomes, o.ID, o); err != nil {
				return err
			}
		}
		return e.appendEvent(ctx, w, events.GoalCreated, "goal", g.ID, actor.ID, events.EventPayload{
			"level":    g.Level,
			"year":     g.Year,
			"outcomes": len(outcomes),
		})
	})
	if err != nil {
		return StoreWriteError{Op: "create goal", Err: err}
	}
	return nil
}

func (e Engine) getGoal(ctx context.Context, id string) (domain.Goal, error) {
	var g domain.Goal
	if err := e.Store.Get(ctx, domain.CollectionGoals, id, &g); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Goal{}, fmt.Errorf("goal %s: %w", id, repo.ErrNotFound)
		}
		return domain.Goal{}, err
	}
	return g, nil
}

// UpdateGoal writes only the supplied fields plus the update stamps.
func (e Engine) UpdateGoal(ctx context.Context, actor domain.Actor, id string, patch GoalPatch) (g domain.Goal, err error) {
	started := time.Now()
	defer func() { e.finish("update_goal", started, actor, id, err) }()

	g, err = e.getGoal(ctx, id)
	if err != nil {
		return domain.Goal{}, err
	}
	if !auth.CanEditGoal(actor, g) {
		reason := "not permitted for this goal"
		if g.Approved() && g.OwnerID == actor.ID {
			reason = "goal is approved and locked for its owner"
		}
		return domain.Goal{}, auth.ForbiddenError{Action: "edit goal", Reason: reason}
	}
	var v validator
	e.checkGoalText(&v, patch.Goal, patch.Why)
	if patch.Goal == nil && patch.Why == nil && patch.ParentGoalID == nil {
		v.add("patch", "no fields supplied")
	}
	if patch.ParentGoalID != nil && strings.TrimSpace(*patch.ParentGoalID) == id {
		v.add("parentGoalId", "goal cannot be its own parent")
	}
	if err := v.err(); err != nil {
		return domain.Goal{}, err
	}

	fields := map[string]any{}
	var changed []string
	if patch.Goal != nil {
		g.Goal = strings.TrimSpace(*patch.Goal)
		fields["goal"] = g.Goal
		changed = append(changed, "goal")
	}
	if patch.Why != nil {
		g.Why = strings.TrimSpace(*patch.Why)
		fields["why"] = g.Why
		changed = append(changed, "why")
	}
	if patch.ParentGoalID != nil {
		g.ParentGoalID = nil
		if p := strings.TrimSpace(*patch.ParentGoalID); p != "" {
			g.ParentGoalID = &p
		}
		fields["parentGoalId"] = g.ParentGoalID
		changed = append(changed, "parentGoalId")
	}
	g.UpdatedAt = e.stamp()
	g.UpdatedBy = actor.ID
	fields["updatedAt"] = g.UpdatedAt
	fields["updatedBy"] = g.UpdatedBy

	err = e.Store.Batch(ctx, func(w repo.Writer) error {
		if err := w.Update(ctx, domain.CollectionGoals, id, fields); err != nil {
			return err
		}
		return e.appendEvent(ctx, w, events.GoalUpdated, "goal", id, actor.ID, events.EventPayload{"fields": changed})
	})
	if err != nil {
		return domain.Goal{}, StoreWriteError{Op: "update goal", Err: err}
	}
	return g, nil
}

// ApproveGoal sets the approval lock. Approval cannot be revoked.
func (e Engine) ApproveGoal(ctx context.Context, actor domain.Actor, id string) (g domain.Goal, err error) {
	started := time.Now()
	defer func() { e.finish("approve_goal", started, actor, id, err) }()

	g, err = e.getGoal(ctx, id)
	if err != nil {
		return domain.Goal{}, err
	}
	if !auth.CanApproveGoal(actor, g) {
		return domain.Goal{}, auth.ForbiddenError{Action: "approve goal", Reason: fmt.Sprintf("%s cannot approve %s goals", actor.Level, g.Level)}
	}
	if g.Approved() {
		return domain.Goal{}, fmt.Errorf("goal %s: %w", id, ErrAlreadyApproved)
	}
	now := e.stamp()
	by, name := actor.ID, actor.Name
	g.ApprovedBy, g.ApprovedByName, g.ApprovedAt = &by, &name, &now
	g.UpdatedAt, g.UpdatedBy = now, actor.ID
	err = e.Store.Batch(ctx, func(w repo.Writer) error {
		if err := w.Update(ctx, domain.CollectionGoals, id, map[string]any{
			"approvedBy":     by,
			"approvedByName": name,
			"approvedAt":     now,
			"updatedAt":      now,
			"updatedBy":      actor.ID,
		}); err != nil {
			return err
		}
		return e.appendEvent(ctx, w, events.GoalApproved, "goal", id, actor.ID, nil)
	})
	if err != nil {
		return domain.Goal{}, StoreWriteError{Op: "approve goal", Err: err}
	}
	return g, nil
}

var goalTransitions = map[domain.GoalStatus][]domain.GoalStatus{
	domain.StatusDraft:     {domain.StatusActive},
	domain.StatusActive:    {domain.StatusCompleted, domain.StatusArchived},
	domain.StatusCompleted: {domain.StatusArchived},
}

func ensureGoalTransition(from, to domain.GoalStatus) error {
	for _, next := range goalTransitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%s -> %s: %w", from, to, ErrInvalidTransition)
}

func (e Engine) SetGoalStatus(ctx context.Context, actor domain.Actor, id string, status domain.GoalStatus) (g domain.Goal, err error) {
	started := time.Now()
	defer func() { e.finish("set_goal_status", started, actor, id, err) }()

	g, err = e.getGoal(ctx, id)
	if err != nil {
		return domain.Goal{}, err
	}
	if !auth.CanEditGoal(actor, g) {
		return domain.Goal{}, auth.ForbiddenError{Action: "change goal status", Reason: "not permitted for this goal"}
	}
	if err := ensureGoalTransition(g.Status, status); err != nil {
		return domain.Goal{}, err
	}
	from := g.Status
	g.Status = status
	g.UpdatedAt, g.UpdatedBy = e.stamp(), actor.ID
	err = e.Store.Batch(ctx, func(w repo.Writer) error {
		if err := w.Update(ctx, domain.CollectionGoals, id, map[string]any{
			"status":    status,
			"updatedAt": g.UpdatedAt,
			"updatedBy": actor.ID,
		}); err != nil {
			return err
		}
		return e.appendEvent(ctx, w, events.GoalStatus, "goal", id, actor.ID, events.EventPayload{"from": from, "to": status})
	})
	if err != nil {
		return domain.Goal{}, StoreWriteError{Op: "set goal status", Err: err}
	}
	return g, nil
}

// DeleteGoal removes a goal and every outcome it owns. When the documents
// fit in one batch the delete is atomic. Larger goals lose their outcomes
// in chunks first and the goal last, so a partial failure leaves the goal
// in place and a second call finishes the cascade.
func (e Engine) DeleteGoal(ctx context.Context, actor domain.Actor, id string) (err error) {
	started := time.Now()
	defer func() { e.finish("delete_goal", started, actor, id, err) }()

	g, err := e.getGoal(ctx, id)
	if err != nil {
		return err
	}
	if !auth.CanDeleteGoal(actor, g) {
		return auth.ForbiddenError{Action: "delete goal", Reason: "not permitted for this goal"}
	}
	outcomes, err := e.outcomeIDs(ctx, id)
	if err != nil {
		return err
	}
	deleteGoal := func(w repo.Writer) error {
		if err := w.Delete(ctx, domain.CollectionGoals, id); err != nil {
			return err
		}
		return e.appendEvent(ctx, w, events.GoalDeleted, "goal", id, actor.ID, events.EventPayload{"outcomes": len(outcomes)})
	}

	limit := e.maxBatchWrites()
	if len(outcomes)+2 <= limit {
		err := e.Store.Batch(ctx, func(w repo.Writer) error {
			for _, oid := range outcomes {
				if err := w.Delete(ctx, domain.CollectionOutcomes, oid); err != nil {
					return err
				}
			}
			return deleteGoal(w)
		})
		if err != nil {
			return StoreWriteError{Op: "delete goal", Err: err}
		}
		return nil
	}

	e.log().Info("deleting goal in chunks", "id", id, "outcomes", len(outcomes), "limit", limit)
	for start := 0; start < len(outcomes); start += limit {
		end := min(start+limit, len(outcomes))
		chunk := outcomes[start:end]
		err := e.Store.Batch(ctx, func(w repo.Writer) error {
			for _, oid := range chunk {
				if err := w.Delete(ctx, domain.CollectionOutcomes, oid); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			remaining := append([]string{id}, outcomes[start:]...)
			return CascadeError{GoalID: id, Remaining: remaining, Err: err}
		}
	}
	if err := e.Store.Batch(ctx, deleteGoal); err != nil {
		return CascadeError{GoalID: id, Remaining: []string{id}, Err: err}
	}
	return nil
}

func (e Engine) outcomeIDs(ctx context.Context, goalID string) ([]string, error) {
	docs, err := e.Store.Query(ctx, repo.Query{
		Collection: domain.CollectionOutcomes,
		Where:      []repo.Filter{repo.Where("whygoId", repo.OpEq, goalID)},
	})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out, nil
}

// GetGoal returns a goal the actor may view.
func (e Engine) GetGoal(ctx context.Context, actor domain.Actor, id string) (domain.Goal, error) {
	g, err := e.getGoal(ctx, id)
	if err != nil {
		return domain.Goal{}, err
	}
	if !auth.CanViewGoal(actor, g) {
		return domain.Goal{}, auth.ForbiddenError{Action: "view goal", Reason: "goal is outside your visibility"}
	}
	return g, nil
}

// ListGoals returns the goals matching f that the actor may view.
func (e Engine) ListGoals(ctx context.Context, actor domain.Actor, f GoalFilter) ([]domain.Goal, error) {
	q := repo.Query{
		Collection: domain.CollectionGoals,
		OrderBy:    []repo.Order{{Field: "year", Desc: true}, {Field: "createdAt"}},
	}
	if f.Year != 0 {
		q.Where = append(q.Where, repo.Where("year", repo.OpEq, f.Year))
	}
	if f.Level != "" {
		q.Where = append(q.Where, repo.Where("level", repo.OpEq, string(f.Level)))
	}
	if f.Department != "" {
		dept := f.Department
		if canon, ok := domain.CanonicalDepartment(dept); ok {
			dept = canon
		}
		q.Where = append(q.Where, repo.Where("department", repo.OpEq, dept))
	}
	if f.OwnerID != "" {
		q.Where = append(q.Where, repo.Where("ownerId", repo.OpEq, f.OwnerID))
	}
	if f.ParentGoalID != "" {
		q.Where = append(q.Where, repo.Where("parentGoalId", repo.OpEq, f.ParentGoalID))
	}
	if f.Status != "" {
		q.Where = append(q.Where, repo.Where("status", repo.OpEq, string(f.Status)))
	}
	docs, err := e.Store.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	goals := make([]domain.Goal, 0, len(docs))
	for _, d := range docs {
		var g domain.Goal
		if err := d.Decode(&g); err != nil {
			return nil, err
		}
		if auth.CanViewGoal(actor, g) {
			goals = append(goals, g)
		}
	}
	return goals, nil
}

// GoalTree returns the goal rooted at id with its visible descendants.
// Children are found through parentGoalId; a parent cycle is cut at the
// first repeated goal.
func (e Engine) GoalTree(ctx context.Context, actor domain.Actor, id string) (GoalNode, error) {
	root, err := e.GetGoal(ctx, actor, id)
	if err != nil {
		return GoalNode{}, err
	}
	visited := map[string]bool{}
	var build func(g domain.Goal) (GoalNode, error)
	build = func(g domain.Goal) (GoalNode, error) {
		visited[g.ID] = true
		outcomes, err := e.listOutcomes(ctx, g.ID)
		if err != nil {
			return GoalNode{}, err
		}
		children, err := e.ListGoals(ctx, actor, GoalFilter{ParentGoalID: g.ID})
		if err != nil {
			return GoalNode{}, err
		}
		node := GoalNode{Goal: g, Outcomes: outcomes, Children: []GoalNode{}}
		for _, c := range children {
			if visited[c.ID] {
				continue
			}
			child, err := build(c)
			if err != nil {
				return GoalNode{}, err
			}
			node.Children = append(node.Children, child)
		}
		return node, nil
	}
	return build(root)
}
