package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"whygo/internal/domain"
	"whygo/internal/engine/auth"
	"whygo/internal/repo"
)

func registerEmployees(api huma.API, s *service) {
	huma.Register(api, huma.Operation{
		OperationID: "employees-list",
		Method:      http.MethodGet,
		Path:        "/employees",
		Summary:     "List employees",
	}, func(ctx context.Context, input *struct {
		Department string `query:"department"`
	}) (*struct {
		Body employeeList `json:"body"`
	}, error) {
		if _, authErr := currentActor(ctx, s.resolver); authErr != nil {
			return nil, authErr
		}
		items, err := s.engine.ListEmployees(ctx, input.Department)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body employeeList `json:"body"`
		}{Body: employeeList{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "employees-get",
		Method:      http.MethodGet,
		Path:        "/employees/{id}",
		Summary:     "Get an employee",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Actor `json:"body"`
	}, error) {
		if _, authErr := currentActor(ctx, s.resolver); authErr != nil {
			return nil, authErr
		}
		a, err := s.engine.GetEmployee(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Actor `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "employees-put",
		Method:      http.MethodPut,
		Path:        "/employees/{id}",
		Summary:     "Create or replace an employee",
		Errors:      []int{http.StatusForbidden, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body EmployeeRequest `json:"body"`
	}) (*struct {
		Body domain.Actor `json:"body"`
	}, error) {
		actor, authErr := currentActor(ctx, s.resolver)
		if authErr != nil {
			return nil, authErr
		}
		emp := domain.Actor{
			ID:         input.ID,
			Email:      strings.TrimSpace(input.Body.Email),
			Name:       strings.TrimSpace(input.Body.Name),
			Level:      domain.ActorLevel(input.Body.Level),
			Department: input.Body.Department,
			ReportsTo:  input.Body.ReportsTo,
		}
		out, err := s.engine.UpsertEmployee(ctx, actor, emp)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Actor `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "employees-reports",
		Method:      http.MethodGet,
		Path:        "/employees/{id}/reports",
		Summary:     "Direct or full reporting tree of a manager",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID  string `path:"id"`
		All bool   `query:"all"`
	}) (*struct {
		Body employeeList `json:"body"`
	}, error) {
		actor, authErr := currentActor(ctx, s.resolver)
		if authErr != nil {
			return nil, authErr
		}
		items, err := s.engine.Reports(ctx, actor, input.ID, input.All)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body employeeList `json:"body"`
		}{Body: employeeList{Items: items}}, nil
	})
}

func registerEvents(api huma.API, s *service) {
	huma.Register(api, huma.Operation{
		OperationID: "events-list",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Audit log, oldest first",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entityKind"`
		EntityID   string `query:"entityId"`
		Cursor     string `query:"cursor"`
		Limit      int    `query:"limit"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		actor, authErr := currentActor(ctx, s.resolver)
		if authErr != nil {
			return nil, authErr
		}
		if !auth.CanAccessManagement(actor) {
			return nil, handleError(auth.ForbiddenError{Action: "view events", Reason: "management access required"})
		}
		var after int64
		if c := strings.TrimSpace(input.Cursor); c != "" {
			v, err := strconv.ParseInt(c, 10, 64)
			if err != nil || v < 0 {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": c})
			}
			after = v
		}
		limit := normalizeLimit(input.Limit)
		items, err := s.engine.Repo.ListEvents(ctx, repo.EventFilter{
			AfterSeq:   after,
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Limit:      limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		res := paginatedEvents{Items: items}
		if len(items) == limit {
			res.NextCursor = strconv.FormatInt(items[len(items)-1].Seq, 10)
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: res}, nil
	})
}
