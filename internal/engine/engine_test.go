package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"whygo/internal/config"
	"whygo/internal/db"
	"whygo/internal/domain"
	"whygo/internal/engine"
	"whygo/internal/engine/auth"
	"whygo/internal/migrate"
	"whygo/internal/repo"
)

const longWhy = "Because steady growth funds every team and keeps the company independent."

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Exec   domain.Actor
	Head   domain.Actor
	Mgr    domain.Actor
	IC     domain.Actor
	Other  domain.Actor
}

func strPtr(s string) *string { return &s }

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("Acme")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	eng.Metrics = engine.NewMetrics(prometheus.NewRegistry())
	env := testEnv{Engine: eng, Ctx: context.Background()}

	seed := func(a domain.Actor) domain.Actor {
		out, err := eng.SeedEmployee(env.Ctx, a)
		if err != nil {
			t.Fatalf("seed %s: %v", a.ID, err)
		}
		return out
	}
	env.Exec = seed(domain.Actor{ID: "e-exec", Name: "Erin Exec", Level: domain.LevelExecutive, Department: "Executive"})
	env.Head = seed(domain.Actor{ID: "e-head", Name: "Sam Head", Level: domain.LevelDepartmentHead, Department: "Sales", ReportsTo: strPtr("e-exec")})
	env.Mgr = seed(domain.Actor{ID: "e-mgr", Name: "Mia Manager", Level: domain.LevelManager, Department: "Sales", ReportsTo: strPtr("e-head")})
	env.IC = seed(domain.Actor{ID: "e-ic", Name: "Ian Contributor", Level: domain.LevelIndividualContributor, Department: "sales", ReportsTo: strPtr("e-mgr")})
	env.Other = seed(domain.Actor{ID: "e-mkt", Name: "Max Marketing", Level: domain.LevelDepartmentHead, Department: "Marketing", ReportsTo: strPtr("e-exec")})
	return env
}

func (env testEnv) companyGoal(t *testing.T, outcomes ...engine.OutcomeInput) string {
	t.Helper()
	id, err := env.Engine.CreateGoal(env.Ctx, env.Exec, engine.GoalInput{
		Level:    domain.GoalCompany,
		Goal:     "Double annual recurring revenue",
		Why:      longWhy,
		Outcomes: outcomes,
	})
	if err != nil {
		t.Fatalf("create company goal: %v", err)
	}
	return id
}

func (env testEnv) outcomes(t *testing.T, goalID string) []domain.Outcome {
	t.Helper()
	out, err := env.Engine.ListOutcomes(env.Ctx, env.Exec, goalID)
	if err != nil {
		t.Fatalf("list outcomes: %v", err)
	}
	return out
}

func TestCreateGoalWritesGoalAndOutcomes(t *testing.T) {
	env := newTestEnv(t)
	id := env.companyGoal(t,
		engine.OutcomeInput{Description: "New logos", Unit: "customers", AnnualTarget: "120", Q1Target: 30.0},
		engine.OutcomeInput{},
		engine.OutcomeInput{Description: "Churn", Unit: "%", AnnualTarget: "", Q1Target: "n/a"},
		engine.OutcomeInput{Description: "Pipeline", OwnerID: "e-mgr"},
	)
	if !strings.HasPrefix(id, "cg_26_") {
		t.Fatalf("unexpected id %s", id)
	}
	g, err := env.Engine.GetGoal(env.Ctx, env.IC, id)
	if err != nil {
		t.Fatalf("get goal: %v", err)
	}
	if g.Status != domain.StatusActive || g.Department != nil || g.Approved() || g.OwnerID != env.Exec.ID {
		t.Fatalf("unexpected goal %+v", g)
	}
	out := env.outcomes(t, id)
	if len(out) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(out))
	}
	for i, o := range out {
		if o.SortOrder != i+1 {
			t.Fatalf("outcome %d sortOrder %d", i, o.SortOrder)
		}
		if o.ID != id+"_o"+string(rune('1'+i)) {
			t.Fatalf("outcome %d id %s", i, o.ID)
		}
		if o.Q1Actual != nil || o.Q1Status != nil {
			t.Fatalf("outcome %d should start without progress", i)
		}
	}
	if v, ok := out[0].AnnualTarget.Value(); !ok || v != 120 {
		t.Fatalf("annual target = %v %v", v, ok)
	}
	if !out[1].AnnualTarget.IsEmpty() || !out[1].Q1Target.IsEmpty() {
		t.Fatalf("blank and unparseable targets must stay empty")
	}
	if out[2].OwnerID != "e-mgr" || out[2].OwnerName != "Mia Manager" {
		t.Fatalf("outcome owner = %s/%s", out[2].OwnerID, out[2].OwnerName)
	}
	evts, err := env.Engine.Repo.ListEvents(env.Ctx, repo.EventFilter{EntityID: id})
	if err != nil || len(evts) != 1 || evts[0].Type != "goal.created" {
		t.Fatalf("events = %+v err=%v", evts, err)
	}
}

func TestCreateGoalValidatesBeforePermission(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateGoal(env.Ctx, env.IC, engine.GoalInput{
		Level: domain.GoalCompany,
		Goal:  "short",
		Why:   "too short",
		Outcomes: []engine.OutcomeInput{
			{Unit: "units"},
		},
	})
	var verr engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	fields := map[string]bool{}
	for _, f := range verr.Fields {
		fields[f.Field] = true
	}
	for _, want := range []string{"goal", "why", "outcomes[0].description"} {
		if !fields[want] {
			t.Fatalf("missing field error %s in %v", want, verr.Fields)
		}
	}

	_, err = env.Engine.CreateGoal(env.Ctx, env.IC, engine.GoalInput{
		Level: domain.GoalCompany,
		Goal:  "Double annual recurring revenue",
		Why:   longWhy,
	})
	var ferr auth.ForbiddenError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if engine.Kind(err) != engine.KindForbidden {
		t.Fatalf("kind = %s", engine.Kind(err))
	}
}

func TestCreateGoalRequiresDepartment(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateGoal(env.Ctx, env.Head, engine.GoalInput{
		Level: domain.GoalDepartment,
		Goal:  "Grow the enterprise segment",
		Why:   longWhy,
	})
	if engine.Kind(err) != engine.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	id, err := env.Engine.CreateGoal(env.Ctx, env.Head, engine.GoalInput{
		Level:      domain.GoalDepartment,
		Department: "sales",
		Goal:       "Grow the enterprise segment",
		Why:        longWhy,
	})
	if err != nil {
		t.Fatalf("create department goal: %v", err)
	}
	if !strings.HasPrefix(id, "dg_sales_26_") {
		t.Fatalf("unexpected id %s", id)
	}
	g, err := env.Engine.GetGoal(env.Ctx, env.Head, id)
	if err != nil || g.Department == nil || *g.Department != "Sales" {
		t.Fatalf("department not canonical: %+v %v", g, err)
	}
}

func TestCreateGoalIsAtomic(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Repo.DB.Exec(`CREATE TRIGGER fail_third_outcome BEFORE INSERT ON documents
WHEN NEW.collection = 'outcomes' AND NEW.id LIKE '%_o3'
BEGIN SELECT RAISE(ABORT, 'simulated write failure'); END;`)
	if err != nil {
		t.Fatalf("create trigger: %v", err)
	}
	id := "cg_26_abcd"
	_, err = env.Engine.CreateGoal(env.Ctx, env.Exec, engine.GoalInput{
		ID:    id,
		Level: domain.GoalCompany,
		Goal:  "Double annual recurring revenue",
		Why:   longWhy,
		Outcomes: []engine.OutcomeInput{
			{Description: "one"}, {Description: "two"}, {Description: "three"}, {Description: "four"},
		},
	})
	if engine.Kind(err) != engine.KindStoreWrite {
		t.Fatalf("expected store write error, got %v", err)
	}
	var g domain.Goal
	if err := env.Engine.Store.Get(env.Ctx, domain.CollectionGoals, id, &g); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("goal should not exist: %v", err)
	}
	for _, oid := range []string{id + "_o1", id + "_o2"} {
		var o domain.Outcome
		if err := env.Engine.Store.Get(env.Ctx, domain.CollectionOutcomes, oid, &o); !errors.Is(err, repo.ErrNotFound) {
			t.Fatalf("outcome %s should not exist: %v", oid, err)
		}
	}
	evts, _ := env.Engine.Repo.ListEvents(env.Ctx, repo.EventFilter{Type: "goal.created"})
	if len(evts) != 0 {
		t.Fatalf("no event expected, got %d", len(evts))
	}
}

func TestCreateGoalRetryWithMintedID(t *testing.T) {
	env := newTestEnv(t)
	in := engine.GoalInput{
		ID:       "cg_26_r3ty",
		Level:    domain.GoalCompany,
		Goal:     "Double annual recurring revenue",
		Why:      longWhy,
		Outcomes: []engine.OutcomeInput{{Description: "one"}, {Description: "two"}},
	}
	first, err := env.Engine.CreateGoal(env.Ctx, env.Exec, in)
	if err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	second, err := env.Engine.CreateGoal(env.Ctx, env.Exec, in)
	if err != nil || second != first {
		t.Fatalf("retry = %s %v", second, err)
	}
	if n := len(env.outcomes(t, first)); n != 2 {
		t.Fatalf("expected 2 outcomes after retry, got %d", n)
	}
	in.ID = "ig_sales_26_zzzz"
	if _, err := env.Engine.CreateGoal(env.Ctx, env.Exec, in); engine.Kind(err) != engine.KindValidation {
		t.Fatalf("mismatched id should fail validation, got %v", err)
	}
}

func TestCreateGoalRetryIDMustMatchDepartment(t *testing.T) {
	env := newTestEnv(t)
	in := engine.GoalInput{
		ID:         "dg_marketing_26_k3x9",
		Level:      domain.GoalDepartment,
		Department: "Sales",
		Goal:       "Grow the sales pipeline",
		Why:        longWhy,
	}
	if _, err := env.Engine.CreateGoal(env.Ctx, env.Head, in); engine.Kind(err) != engine.KindValidation {
		t.Fatalf("id for another department should fail validation, got %v", err)
	}
	in.ID = "dg_sales_26_k3x9"
	id, err := env.Engine.CreateGoal(env.Ctx, env.Head, in)
	if err != nil || id != in.ID {
		t.Fatalf("matching id = %s %v", id, err)
	}
}

func TestUpdateGoalWritesOnlySuppliedFields(t *testing.T) {
	env := newTestEnv(t)
	id := env.companyGoal(t)
	newGoal := "Triple annual recurring revenue"
	g, err := env.Engine.UpdateGoal(env.Ctx, env.Exec, id, engine.GoalPatch{Goal: &newGoal})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if g.Goal != newGoal || g.Why != longWhy {
		t.Fatalf("unexpected goal %+v", g)
	}
	short := "meh"
	_, err = env.Engine.UpdateGoal(env.Ctx, env.Exec, id, engine.GoalPatch{Why: &short})
	if engine.Kind(err) != engine.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, err = env.Engine.UpdateGoal(env.Ctx, env.Exec, "cg_26_none", engine.GoalPatch{Goal: &newGoal})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateOutcomeProgressClearsOnlyActual(t *testing.T) {
	env := newTestEnv(t)
	id := env.companyGoal(t, engine.OutcomeInput{Description: "New logos", AnnualTarget: 100, Q2Target: 25})
	oid := id + "_o1"
	steps := []engine.OutcomePatch{
		{Quarter: "q2", Actual: engine.SomeFloat(40), Status: engine.SomeStatus(domain.OnPace)},
		{Quarter: "q3", Actual: engine.SomeFloat(10)},
		{Quarter: "q2", Actual: engine.NullFloat()},
	}
	for i, p := range steps {
		if _, err := env.Engine.UpdateOutcome(env.Ctx, env.Exec, oid, p); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	o := env.outcomes(t, id)[0]
	if o.Q2Actual != nil {
		t.Fatalf("q2Actual should be cleared, got %v", *o.Q2Actual)
	}
	if o.Q3Actual == nil || *o.Q3Actual != 10 {
		t.Fatalf("q3Actual changed: %v", o.Q3Actual)
	}
	if o.Q2Status == nil || *o.Q2Status != domain.OnPace {
		t.Fatalf("q2Status changed: %v", o.Q2Status)
	}
	if v, ok := o.Q2Target.Value(); !ok || v != 25 {
		t.Fatalf("q2Target changed: %v", o.Q2Target)
	}
	if o.Description != "New logos" {
		t.Fatalf("description changed: %s", o.Description)
	}
}

func TestUpdateOutcomePermissions(t *testing.T) {
	env := newTestEnv(t)
	id, err := env.Engine.CreateGoal(env.Ctx, env.IC, engine.GoalInput{
		Level:      domain.GoalIndividual,
		Department: "Sales",
		Goal:       "Close ten enterprise deals",
		Why:        longWhy,
		Outcomes:   []engine.OutcomeInput{{Description: "Deals closed", AnnualTarget: 10}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	oid := id + "_o1"
	desc := "Enterprise deals closed"

	if _, err := env.Engine.UpdateOutcome(env.Ctx, env.IC, oid, engine.OutcomePatch{Description: &desc}); engine.Kind(err) != engine.KindForbidden {
		t.Fatalf("owner IC must not edit details: %v", err)
	}
	if _, err := env.Engine.UpdateOutcome(env.Ctx, env.Mgr, oid, engine.OutcomePatch{Description: &desc}); engine.Kind(err) != engine.KindForbidden {
		t.Fatalf("manager must not edit details: %v", err)
	}
	if _, err := env.Engine.UpdateOutcome(env.Ctx, env.Head, oid, engine.OutcomePatch{Description: &desc}); err != nil {
		t.Fatalf("head edits details: %v", err)
	}
	if _, err := env.Engine.UpdateOutcome(env.Ctx, env.IC, oid, engine.OutcomePatch{Description: &desc, Quarter: "q1", Actual: engine.SomeFloat(1)}); engine.Kind(err) != engine.KindForbidden {
		t.Fatalf("details alongside progress need details permission: %v", err)
	}
	if o := env.outcomes(t, id)[0]; o.Q1Actual != nil {
		t.Fatalf("rejected patch wrote q1Actual: %v", *o.Q1Actual)
	}
	if _, err := env.Engine.UpdateOutcome(env.Ctx, env.IC, oid, engine.OutcomePatch{Quarter: "q1", Actual: engine.SomeFloat(2)}); err != nil {
		t.Fatalf("owner updates progress: %v", err)
	}

	stranger, err := env.Engine.SeedEmployee(env.Ctx, domain.Actor{ID: "e-ic2", Name: "Ivy", Level: domain.LevelIndividualContributor, Department: "Sales"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.UpdateOutcome(env.Ctx, stranger, oid, engine.OutcomePatch{Quarter: "q1", Actual: engine.SomeFloat(3)}); engine.Kind(err) != engine.KindForbidden {
		t.Fatalf("other IC must not update progress: %v", err)
	}
	if _, err := env.Engine.UpdateOutcome(env.Ctx, env.IC, oid, engine.OutcomePatch{Quarter: "q5", Actual: engine.SomeFloat(3)}); engine.Kind(err) != engine.KindValidation {
		t.Fatalf("bad quarter: %v", err)
	}
}

func TestApprovalLocksOwner(t *testing.T) {
	env := newTestEnv(t)
	id, err := env.Engine.CreateGoal(env.Ctx, env.IC, engine.GoalInput{
		Level:      domain.GoalIndividual,
		Department: "Sales",
		Goal:       "Close ten enterprise deals",
		Why:        longWhy,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.Engine.ApproveGoal(env.Ctx, env.IC, id); engine.Kind(err) != engine.KindForbidden {
		t.Fatalf("IC cannot approve: %v", err)
	}
	g, err := env.Engine.ApproveGoal(env.Ctx, env.Mgr, id)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if g.ApprovedBy == nil || *g.ApprovedBy != env.Mgr.ID || g.ApprovedAt == nil {
		t.Fatalf("approval not recorded: %+v", g)
	}
	if _, err := env.Engine.ApproveGoal(env.Ctx, env.Mgr, id); !errors.Is(err, engine.ErrAlreadyApproved) {
		t.Fatalf("second approval: %v", err)
	}
	text := "Close twelve enterprise deals"
	if _, err := env.Engine.UpdateGoal(env.Ctx, env.IC, id, engine.GoalPatch{Goal: &text}); engine.Kind(err) != engine.KindForbidden {
		t.Fatalf("owner edit after approval: %v", err)
	}
	if _, err := env.Engine.UpdateGoal(env.Ctx, env.Head, id, engine.GoalPatch{Goal: &text}); err != nil {
		t.Fatalf("head edit after approval: %v", err)
	}
	if _, err := env.Engine.UpdateGoal(env.Ctx, env.Other, id, engine.GoalPatch{Goal: &text}); engine.Kind(err) != engine.KindForbidden {
		t.Fatalf("other department head edit: %v", err)
	}
}

func TestSetGoalStatusTransitions(t *testing.T) {
	env := newTestEnv(t)
	id := env.companyGoal(t)
	if _, err := env.Engine.SetGoalStatus(env.Ctx, env.Exec, id, domain.StatusDraft); !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("active -> draft: %v", err)
	}
	if _, err := env.Engine.SetGoalStatus(env.Ctx, env.Exec, id, domain.StatusCompleted); err != nil {
		t.Fatalf("active -> completed: %v", err)
	}
	g, err := env.Engine.SetGoalStatus(env.Ctx, env.Exec, id, domain.StatusArchived)
	if err != nil || g.Status != domain.StatusArchived {
		t.Fatalf("completed -> archived: %v", err)
	}
	if _, err := env.Engine.SetGoalStatus(env.Ctx, env.Exec, id, domain.StatusActive); engine.Kind(err) != engine.KindConflict {
		t.Fatalf("archived -> active: %v", err)
	}
}

func TestDeleteGoalRemovesOutcomes(t *testing.T) {
	env := newTestEnv(t)
	id := env.companyGoal(t, engine.OutcomeInput{Description: "one"}, engine.OutcomeInput{Description: "two"})
	if err := env.Engine.DeleteGoal(env.Ctx, env.Head, id); engine.Kind(err) != engine.KindForbidden {
		t.Fatalf("head cannot delete company goal: %v", err)
	}
	if err := env.Engine.DeleteGoal(env.Ctx, env.Exec, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.GetGoal(env.Ctx, env.Exec, id); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("goal still present: %v", err)
	}
	docs, err := env.Engine.Store.Query(env.Ctx, repo.Query{Collection: domain.CollectionOutcomes})
	if err != nil || len(docs) != 0 {
		t.Fatalf("outcomes left: %d %v", len(docs), err)
	}
	if err := env.Engine.DeleteGoal(env.Ctx, env.Exec, id); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

type flakyStore struct {
	engine.DocumentStore
	failOn  int
	batches int
}

func (s *flakyStore) Batch(ctx context.Context, fn func(w repo.Writer) error) error {
	s.batches++
	if s.batches == s.failOn {
		return errors.New("store unavailable")
	}
	return s.DocumentStore.Batch(ctx, fn)
}

func TestDeleteGoalChunkedCascadeIsRetrySafe(t *testing.T) {
	env := newTestEnv(t)
	var rows []engine.OutcomeInput
	for _, d := range []string{"a", "b", "c", "d", "e"} {
		rows = append(rows, engine.OutcomeInput{Description: d})
	}
	id := env.companyGoal(t, rows...)

	eng := env.Engine
	eng.Config.Store.MaxBatchWrites = 2
	real := eng.Store
	eng.Store = &flakyStore{DocumentStore: real, failOn: 2}
	err := eng.DeleteGoal(env.Ctx, env.Exec, id)
	var cerr engine.CascadeError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected cascade error, got %v", err)
	}
	if len(cerr.Remaining) != 4 || cerr.Remaining[0] != id {
		t.Fatalf("remaining = %v", cerr.Remaining)
	}
	if engine.Kind(err) != engine.KindStoreWrite {
		t.Fatalf("kind = %s", engine.Kind(err))
	}
	if n := len(env.outcomes(t, id)); n != 3 {
		t.Fatalf("expected 3 outcomes left, got %d", n)
	}

	eng.Store = real
	if err := eng.DeleteGoal(env.Ctx, env.Exec, id); err != nil {
		t.Fatalf("retry delete: %v", err)
	}
	docs, _ := real.Query(env.Ctx, repo.Query{Collection: domain.CollectionOutcomes})
	if len(docs) != 0 {
		t.Fatalf("outcomes left after retry: %d", len(docs))
	}
}

func TestListGoalsRespectsVisibility(t *testing.T) {
	env := newTestEnv(t)
	company := env.companyGoal(t)
	dept, err := env.Engine.CreateGoal(env.Ctx, env.Head, engine.GoalInput{
		Level: domain.GoalDepartment, Department: "Sales", Goal: "Grow the enterprise segment", Why: longWhy, ParentGoalID: company,
	})
	if err != nil {
		t.Fatal(err)
	}
	indiv, err := env.Engine.CreateGoal(env.Ctx, env.IC, engine.GoalInput{
		Level: domain.GoalIndividual, Department: "Sales", Goal: "Close ten enterprise deals", Why: longWhy, ParentGoalID: dept,
	})
	if err != nil {
		t.Fatal(err)
	}

	ids := func(a domain.Actor) map[string]bool {
		goals, err := env.Engine.ListGoals(env.Ctx, a, engine.GoalFilter{})
		if err != nil {
			t.Fatal(err)
		}
		out := map[string]bool{}
		for _, g := range goals {
			out[g.ID] = true
		}
		return out
	}
	if got := ids(env.Exec); len(got) != 3 {
		t.Fatalf("exec sees %v", got)
	}
	if got := ids(env.Other); !got[company] || got[dept] || !got[indiv] {
		t.Fatalf("marketing head sees %v", got)
	}
	stranger, _ := env.Engine.SeedEmployee(env.Ctx, domain.Actor{ID: "e-ic2", Name: "Ivy", Level: domain.LevelIndividualContributor, Department: "Sales"})
	if got := ids(stranger); !got[company] || !got[dept] || got[indiv] {
		t.Fatalf("other IC sees %v", got)
	}

	tree, err := env.Engine.GoalTree(env.Ctx, env.Exec, company)
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	if len(tree.Children) != 1 || tree.Children[0].Goal.ID != dept || len(tree.Children[0].Children) != 1 {
		t.Fatalf("unexpected tree %+v", tree)
	}
	tree, err = env.Engine.GoalTree(env.Ctx, stranger, company)
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	if len(tree.Children) != 1 || len(tree.Children[0].Children) != 0 {
		t.Fatalf("hidden goals leaked into tree %+v", tree)
	}
}

func TestEmployeesAndReports(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.UpsertEmployee(env.Ctx, env.Head, domain.Actor{ID: "e-new", Name: "New", Level: domain.LevelManager, Department: "Sales"})
	if engine.Kind(err) != engine.KindForbidden {
		t.Fatalf("head cannot edit employees: %v", err)
	}
	_, err = env.Engine.UpsertEmployee(env.Ctx, env.Exec, domain.Actor{ID: "e-new", Name: "New", Level: "boss", Department: "Nowhere"})
	if engine.Kind(err) != engine.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := env.Engine.UpsertEmployee(env.Ctx, env.Exec, domain.Actor{ID: "e-new", Name: "New", Level: domain.LevelManager, Department: "Sales", ReportsTo: strPtr("e-head")}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	direct, err := env.Engine.Reports(env.Ctx, env.Head, env.Head.ID, false)
	if err != nil || len(direct) != 2 {
		t.Fatalf("direct reports = %v %v", direct, err)
	}
	all, err := env.Engine.Reports(env.Ctx, env.Exec, env.Exec.ID, true)
	if err != nil || len(all) != 5 {
		t.Fatalf("all reports = %d %v", len(all), err)
	}
	if _, err := env.Engine.Reports(env.Ctx, env.IC, env.Head.ID, false); engine.Kind(err) != engine.KindForbidden {
		t.Fatalf("IC reading head's reports: %v", err)
	}
}
