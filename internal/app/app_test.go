package app_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/merchwatch/crawler/internal/app"
	"github.com/merchwatch/crawler/internal/config"
)

// Without a DSN the container falls back to in-memory stores and no
// external clients, so it must build completely offline.
func TestNewWithoutExternalServices(t *testing.T) {
	cfg, v, err := config.Load("")
	require.NoError(t, err)
	require.Empty(t, cfg.DB.DSN)

	container, err := app.New(context.Background(), cfg, v, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(container.Close)

	assert.NotNil(t, container.Pipeline)
	assert.NotNil(t, container.Products)
	assert.NotNil(t, container.Serp)
	assert.NotNil(t, container.Metrics)
	assert.Equal(t, 200, container.Settings.MaxItemsPerRun, "defaults served when no settings row exists")
}

func TestNewAppliesSettingsOverride(t *testing.T) {
	t.Setenv("MERCHWATCH_SETTINGS_MAX_ITEMS_PER_RUN", "25")

	cfg, v, err := config.Load("")
	require.NoError(t, err)

	container, err := app.New(context.Background(), cfg, v, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(container.Close)

	assert.Equal(t, 25, container.Settings.MaxItemsPerRun)
}
