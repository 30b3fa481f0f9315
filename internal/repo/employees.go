package repo

import (
	"context"
	"errors"
	"strings"

	"whygo/internal/domain"
)

func (r Repo) GetEmployee(ctx context.Context, id string) (domain.Actor, error) {
	var a domain.Actor
	if err := r.Get(ctx, domain.CollectionEmployees, id, &a); err != nil {
		return domain.Actor{}, err
	}
	a.ID = id
	return a, nil
}

// UpsertEmployee writes the employee document, keeping the original
// createdAt when one exists.
func (r Repo) UpsertEmployee(ctx context.Context, w Writer, a domain.Actor) (domain.Actor, error) {
	if strings.TrimSpace(a.ID) == "" {
		return domain.Actor{}, errors.New("employee id required")
	}
	now := r.now()
	if existing, err := r.GetEmployee(ctx, a.ID); err == nil {
		a.CreatedAt = existing.CreatedAt
	} else if !errors.Is(err, ErrNotFound) {
		return domain.Actor{}, err
	}
	if a.CreatedAt == "" {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if w == nil {
		w = r
	}
	if err := w.Set(ctx, domain.CollectionEmployees, a.ID, a); err != nil {
		return domain.Actor{}, err
	}
	return a, nil
}

// ListEmployees returns employees ordered by name. Empty department means all.
func (r Repo) ListEmployees(ctx context.Context, department string) ([]domain.Actor, error) {
	q := Query{Collection: domain.CollectionEmployees, OrderBy: []Order{{Field: "name"}}}
	if department != "" {
		q.Where = append(q.Where, Where("department", OpEq, department))
	}
	docs, err := r.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Actor, 0, len(docs))
	for _, d := range docs {
		var a domain.Actor
		if err := d.Decode(&a); err != nil {
			return nil, err
		}
		a.ID = d.ID
		out = append(out, a)
	}
	return out, nil
}
