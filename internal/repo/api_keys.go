package repo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"whygo/internal/domain"
)

// HashAPIKey returns a stable SHA-256 hex digest for the provided key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

// InsertAPIKey stores a hashed API key. KeyHash must already contain the
// hashed value; it doubles as the document id so lookups are point reads.
func (r Repo) InsertAPIKey(ctx context.Context, key domain.APIKey) error {
	if key.ID == "" {
		return errors.New("id required")
	}
	if key.ActorID == "" {
		return errors.New("actor_id required")
	}
	if key.KeyHash == "" {
		return errors.New("key_hash required")
	}
	if key.CreatedAt == "" {
		key.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	return r.Create(ctx, domain.CollectionAPIKeys, key.KeyHash, key)
}

// GetAPIKeyByHash returns an API key by its hashed value.
func (r Repo) GetAPIKeyByHash(ctx context.Context, hash string) (domain.APIKey, error) {
	var key domain.APIKey
	if err := r.Get(ctx, domain.CollectionAPIKeys, hash, &key); err != nil {
		return domain.APIKey{}, err
	}
	return key, nil
}

// ListAPIKeys returns API keys, optionally filtered by actor ID.
func (r Repo) ListAPIKeys(ctx context.Context, actorID string) ([]domain.APIKey, error) {
	q := Query{Collection: domain.CollectionAPIKeys, OrderBy: []Order{{Field: "createdAt", Desc: true}}}
	if actorID != "" {
		q.Where = append(q.Where, Where("actorId", OpEq, actorID))
	}
	docs, err := r.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	keys := make([]domain.APIKey, 0, len(docs))
	for _, d := range docs {
		var key domain.APIKey
		if err := d.Decode(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// DeleteAPIKey deletes an API key by its ID.
func (r Repo) DeleteAPIKey(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("id required")
	}
	docs, err := r.Query(ctx, Query{Collection: domain.CollectionAPIKeys, Where: []Filter{Where("id", OpEq, id)}, Limit: 1})
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return ErrNotFound
	}
	return r.Delete(ctx, domain.CollectionAPIKeys, docs[0].ID)
}
