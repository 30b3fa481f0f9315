package engine

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"whygo/internal/config"
	"whygo/internal/domain"
	"whygo/internal/events"
	"whygo/internal/repo"
)

// DocumentStore is the storage surface the lifecycle operations need.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string, dst any) error
	Query(ctx context.Context, q repo.Query) ([]repo.Document, error)
	Batch(ctx context.Context, fn func(w repo.Writer) error) error
}

type Engine struct {
	Store   DocumentStore
	Repo    repo.Repo
	Events  events.Writer
	Config  *config.Config
	Now     func() time.Time
	Logger  *slog.Logger
	Metrics *Metrics
}

func New(db *sql.DB, cfg *config.Config) Engine {
	r := repo.Repo{DB: db}
	if cfg == nil {
		cfg = config.Default("WhyGo")
	}
	return Engine{
		Store:  r,
		Repo:   r,
		Events: events.Writer{},
		Config: cfg,
		Now:    time.Now,
		Logger: slog.Default().With("component", "engine"),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) log() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// finish records metrics and logs the outcome of an operation.
func (e Engine) finish(op string, started time.Time, actor domain.Actor, id string, err error) {
	e.Metrics.observe(op, started, err)
	if err != nil {
		e.log().Warn("operation failed", "op", op, "actor", actor.ID, "id", id, "kind", Kind(err), "err", err)
		return
	}
	e.log().Info("operation succeeded", "op", op, "actor", actor.ID, "id", id)
}

func (e Engine) appendEvent(ctx context.Context, w repo.Writer, evtType, entityKind, entityID, actorID string, payload events.EventPayload) error {
	wr := e.Events
	if wr.Now == nil {
		wr.Now = e.now
	}
	_, err := wr.Append(ctx, w, evtType, entityKind, entityID, actorID, payload)
	return err
}

func (e Engine) maxBatchWrites() int {
	if e.Config != nil && e.Config.Store.MaxBatchWrites > 1 {
		return e.Config.Store.MaxBatchWrites
	}
	return 500
}
