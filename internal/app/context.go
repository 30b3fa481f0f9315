package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"whygo/internal/config"
	"whygo/internal/domain"
	"whygo/internal/repo"
)

// ErrInvalidOverride is returned for an override naming an unknown level or department.
var ErrInvalidOverride = errors.New("invalid actor override")

// Override replaces actor attributes for local testing. It only takes
// effect when the resolver runs in development mode.
type Override struct {
	Department string
	Level      domain.ActorLevel
}

func (o *Override) empty() bool {
	return o == nil || (strings.TrimSpace(o.Department) == "" && strings.TrimSpace(string(o.Level)) == "")
}

// ActorResolver turns an authenticated principal id into the employee record
// authorization decisions run against.
type ActorResolver struct {
	Repo    repo.Repo
	DevMode bool
}

func (r ActorResolver) Resolve(ctx context.Context, id string, ov *Override) (domain.Actor, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Actor{}, fmt.Errorf("actor id required")
	}
	a, err := r.Repo.GetEmployee(ctx, id)
	if err != nil {
		return domain.Actor{}, fmt.Errorf("employee %s: %w", id, err)
	}
	if !r.DevMode || ov.empty() {
		return a, nil
	}
	if d := strings.TrimSpace(ov.Department); d != "" {
		canon, ok := domain.CanonicalDepartment(d)
		if !ok {
			return domain.Actor{}, fmt.Errorf("department %q: %w", d, ErrInvalidOverride)
		}
		a.Department = canon
	}
	if l := domain.ActorLevel(strings.TrimSpace(string(ov.Level))); l != "" {
		if !l.Valid() {
			return domain.Actor{}, fmt.Errorf("level %q: %w", l, ErrInvalidOverride)
		}
		a.Level = l
	}
	return a, nil
}

// ResolveConfig returns the active organization config. A whygo.yml in the
// workspace wins and is copied into the database; otherwise the stored copy
// is used, and a default is seeded when neither exists.
func ResolveConfig(ctx context.Context, workspace string, r repo.Repo) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		if err := r.UpsertConfig(ctx, cfg); err != nil {
			return nil, fmt.Errorf("store config: %w", err)
		}
		return cfg, nil
	}
	stored, err := r.GetConfig(ctx)
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	cfg = config.Default("WhyGo")
	if err := r.UpsertConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("seed config: %w", err)
	}
	return cfg, nil
}
