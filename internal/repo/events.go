package repo

import (
	"context"

	"whygo/internal/domain"
)

// EventFilter narrows ListEvents. Zero values match everything.
type EventFilter struct {
	AfterSeq   int64
	Type       string
	EntityKind string
	EntityID   string
	Limit      int
}

// ListEvents returns audit events in append order.
func (r Repo) ListEvents(ctx context.Context, f EventFilter) ([]domain.Event, error) {
	q := Query{Collection: domain.CollectionEvents, AfterSeq: f.AfterSeq, Limit: f.Limit}
	if f.Type != "" {
		q.Where = append(q.Where, Where("type", OpEq, f.Type))
	}
	if f.EntityKind != "" {
		q.Where = append(q.Where, Where("entityKind", OpEq, f.EntityKind))
	}
	if f.EntityID != "" {
		q.Where = append(q.Where, Where("entityId", OpEq, f.EntityID))
	}
	docs, err := r.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Event, 0, len(docs))
	for _, d := range docs {
		var e domain.Event
		if err := d.Decode(&e); err != nil {
			return nil, err
		}
		e.Seq = d.Seq
		out = append(out, e)
	}
	return out, nil
}

// LatestEventSeq returns the sequence of the newest event, or zero.
func (r Repo) LatestEventSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM documents WHERE collection=?`, domain.CollectionEvents).Scan(&seq)
	return seq, err
}
