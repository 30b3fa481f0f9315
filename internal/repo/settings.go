package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"whygo/internal/config"
	"whygo/internal/domain"
)

const configDocID = "config"

// UpsertConfig stores the organization config as the settings/config document.
func (r Repo) UpsertConfig(ctx context.Context, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config required")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return r.Set(ctx, domain.CollectionSettings, configDocID, cfg)
}

// GetConfig returns the stored organization config.
func (r Repo) GetConfig(ctx context.Context) (*config.Config, error) {
	var raw json.RawMessage
	if err := r.Get(ctx, domain.CollectionSettings, configDocID, &raw); err != nil {
		return nil, err
	}
	cfg := config.Default("WhyGo")
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("decode stored config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("stored config invalid: %w", err)
	}
	return cfg, nil
}
