package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/merchwatch/crawler/internal/merch"
)

// SettingsStore reads the keyword-settings singleton row. The settings
// document is stored as jsonb so new knobs never need a migration.
type SettingsStore struct {
	pool Pool
}

// NewSettingsStore wraps a pool.
func NewSettingsStore(pool Pool) *SettingsStore {
	return &SettingsStore{pool: pool}
}

const selectSettingsSQL = `
SELECT settings FROM keyword_settings WHERE id = 1`

// Get returns the stored settings, falling back to defaults when the
// singleton row is absent.
func (s *SettingsStore) Get(ctx context.Context) (merch.Settings, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, selectSettingsSQL).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return merch.DefaultSettings(), nil
	}
	if err != nil {
		return merch.Settings{}, fmt.Errorf("select settings: %w", err)
	}
	settings := merch.DefaultSettings()
	if err := json.Unmarshal(raw, &settings); err != nil {
		return merch.Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return settings, nil
}

const upsertSettingsSQL = `
INSERT INTO keyword_settings (id, settings) VALUES (1, $1)
ON CONFLICT (id) DO UPDATE SET settings = EXCLUDED.settings`

// Put overwrites the singleton row.
func (s *SettingsStore) Put(ctx context.Context, settings merch.Settings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if _, err := s.pool.Exec(ctx, upsertSettingsSQL, raw); err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	return nil
}
