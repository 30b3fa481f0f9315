package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"whygo/internal/domain"
	"whygo/internal/engine"
)

type CreateGoalResponse struct {
	ID string `json:"id" example:"cg_26_k3x9"`
}

func registerGoals(api huma.API, s *service) {
	huma.Register(api, huma.Operation{
		OperationID: "goals-list",
		Method:      http.MethodGet,
		Path:        "/goals",
		Summary:     "List goals visible to the caller",
	}, func(ctx context.Context, input *struct {
		Year         int    `query:"year"`
		Level        string `query:"level"`
		Department   string `query:"department"`
		OwnerID      string `query:"ownerId"`
		ParentGoalID string `query:"parentGoalId"`
		Status       string `query:"status"`
	}) (*struct {
		Body goalList `json:"body"`
	}, error) {
		actor, authErr := currentActor(ctx, s.resolver)
		if authErr != nil {
			return nil, authErr
		}
		goals, err := s.engine.ListGoals(ctx, actor, engine.GoalFilter{
			Year:         input.Year,
			Level:        domain.GoalLevel(input.Level),
			Department:   input.Department,
			OwnerID:      input.OwnerID,
			ParentGoalID: input.ParentGoalID,
			Status:       domain.GoalStatus(input.Status),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body goalList `json:"body"`
		}{Body: goalList{Items: goals}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "goals-create",
		Method:        http.MethodPost,
		Path:          "/goals",
		Summary:       "Create a goal with its outcomes",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusForbidden, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body CreateGoalRequest `json:"body"`
	}) (*struct {
		Body CreateGoalResponse `json:"body"`
	}, error) {
		actor, authErr := currentActor(ctx, s.resolver)
		if authErr != nil {
			return nil, authErr
		}
		id, err := s.engine.CreateGoal(ctx, actor, goalInput(input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CreateGoalResponse `json:"body"`
		}{Body: CreateGoalResponse{ID: id}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "goals-get",
		Method:      http.MethodGet,
		Path:        "/goals/{id}",
		Summary:     "Get a goal with its outcomes",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body GoalDetailResponse `json:"body"`
	}, error) {
		actor, authErr := currentActor(ctx, s.resolver)
		if authErr != nil {
			return nil, authErr
		}
		g, err := s.engine.GetGoal(ctx, actor, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		outcomes, err := s.engine.ListOutcomes(ctx, actor, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body GoalDetailResponse `json:"body"`
		}{Body: GoalDetailResponse{Goal: g, Outcomes: mapOutcomes(outcomes)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "goals-update",
		Method:      http.MethodPatch,
		Path:        "/goals/{id}",
		Summary:     "Edit goal text or parent link",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body UpdateGoalRequest `json:"body"`
	}) (*struct {
		Body domain.Goal `json:"body"`
	}, error) {
		actor, authErr := currentActor(ctx, s.resolver)
		if authErr != nil {
			return nil, authErr
		}
		patch := engine.GoalPatch{Goal: input.Body.Goal, Why: input.Body.Why, ParentGoalID: input.Body.ParentGoalID}
		if raw, ok := rawBodyMap(ctx)["parentGoalId"]; ok && isNullRaw(raw) {
			empty := ""
			patch.ParentGoalID = &empty
		}
		g, err := s.engine.UpdateGoal(ctx, actor, input.ID, patch)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Goal `json:"body"`
		}{Body: g}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "goals-delete",
		Method:        http.MethodDelete,
		Path:          "/goals/{id}",
		Summary:       "Delete a goal and its outcomes",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		actor, authErr := currentActor(ctx, s.resolver)
		if authErr != nil {
			return nil, authErr
		}
		if err := s.engine.DeleteGoal(ctx, actor, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "goals-approve",
		Method:      http.MethodPost,
		Path:        "/goals/{id}/approve",
		Summary:     "Approve a goal",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Goal `json:"body"`
	}, error) {
		actor, authErr := currentActor(ctx, s.resolver)
		if authErr != nil {
			return nil, authErr
		}
		g, err := s.engine.ApproveGoal(ctx, actor, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Goal `json:"body"`
		}{Body: g}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "goals-status",
		Method:      http.MethodPatch,
		Path:        "/goals/{id}/status",
		Summary:     "Move a goal through its lifecycle",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body GoalStatusRequest `json:"body"`
	}) (*struct {
		Body domain.Goal `json:"body"`
	}, error) {
		actor, authErr := currentActor(ctx, s.resolver)
		if authErr != nil {
			return nil, authErr
		}
		g, err := s.engine.SetGoalStatus(ctx, actor, input.ID, domain.GoalStatus(input.Body.Status))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Goal `json:"body"`
		}{Body: g}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "goals-outcomes",
		Method:      http.MethodGet,
		Path:        "/goals/{id}/outcomes",
		Summary:     "List the outcomes of a goal",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body outcomeList `json:"body"`
	}, error) {
		actor, authErr := currentActor(ctx, s.resolver)
		if authErr != nil {
			return nil, authErr
		}
		outcomes, err := s.engine.ListOutcomes(ctx, actor, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body outcomeList `json:"body"`
		}{Body: outcomeList{Items: mapOutcomes(outcomes)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "goals-tree",
		Method:      http.MethodGet,
		Path:        "/goals/{id}/tree",
		Summary:     "Goal with its visible descendants",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body GoalTreeResponse `json:"body"`
	}, error) {
		actor, authErr := currentActor(ctx, s.resolver)
		if authErr != nil {
			return nil, authErr
		}
		node, err := s.engine.GoalTree(ctx, actor, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body GoalTreeResponse `json:"body"`
		}{Body: treeResponse(node)}, nil
	})
}

func registerOutcomes(api huma.API, s *service) {
	huma.Register(api, huma.Operation{
		OperationID: "outcomes-update",
		Method:      http.MethodPatch,
		Path:        "/outcomes/{id}",
		Summary:     "Edit outcome details or record quarterly progress",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body UpdateOutcomeRequest `json:"body"`
	}) (*struct {
		Body OutcomeResponse `json:"body"`
	}, error) {
		actor, authErr := currentActor(ctx, s.resolver)
		if authErr != nil {
			return nil, authErr
		}
		o, err := s.engine.UpdateOutcome(ctx, actor, input.ID, outcomePatch(input.Body, rawBodyMap(ctx)))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OutcomeResponse `json:"body"`
		}{Body: outcomeResponse(o)}, nil
	})
}

// outcomePatch builds the engine patch from the decoded body and its raw
// keys. A key that is present with a null value clears the field.
func outcomePatch(req UpdateOutcomeRequest, raw map[string]json.RawMessage) engine.OutcomePatch {
	patch := engine.OutcomePatch{
		Description: req.Description,
		Unit:        req.Unit,
		Quarter:     strings.ToLower(strings.TrimSpace(req.Quarter)),
	}
	target := func(key string, v any) *domain.Target {
		if _, ok := raw[key]; !ok {
			return nil
		}
		t := domain.ParseTarget(v)
		return &t
	}
	patch.AnnualTarget = target("annualTarget", req.AnnualTarget)
	patch.Q1Target = target("q1Target", req.Q1Target)
	patch.Q2Target = target("q2Target", req.Q2Target)
	patch.Q3Target = target("q3Target", req.Q3Target)
	patch.Q4Target = target("q4Target", req.Q4Target)

	if v, ok := raw["actual"]; ok {
		if isNullRaw(v) || req.Actual == nil {
			patch.Actual = engine.NullFloat()
		} else {
			patch.Actual = engine.SomeFloat(*req.Actual)
		}
	}
	if v, ok := raw["status"]; ok {
		if isNullRaw(v) || req.Status == nil {
			patch.Status = engine.NullStatus()
		} else {
			patch.Status = engine.SomeStatus(domain.StatusIndicator(*req.Status))
		}
	}
	return patch
}
