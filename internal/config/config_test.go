package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaults значения по умолчанию пригодны для локального запуска
func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "memory", cfg.EventBus.Kind)
	assert.Equal(t, 2112, cfg.Metrics.GetMetricsPort())
	assert.Equal(t, 8, cfg.Engine.GetLoadWorkers())
	assert.NotEmpty(t, cfg.Archive.Path)
}

// TestSaveLoadRoundTrip конфигурация переживает запись и чтение YAML
func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")

	cfg := Default()
	cfg.Archive.RegionID = 7
	cfg.EventBus.Kind = "jetstream"
	cfg.EventBus.URL = "nats://localhost:4222"
	cfg.Metrics.Port = 9999
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), loaded.Archive.RegionID)
	assert.Equal(t, "jetstream", loaded.EventBus.Kind)
	assert.Equal(t, 9999, loaded.Metrics.GetMetricsPort())
}

// TestEnvFallbacks ENV перекрывает дефолт, но не явный конфиг
func TestEnvFallbacks(t *testing.T) {
	t.Setenv("LANDEDIT_METRICS_PORT", "3333")
	t.Setenv("LANDEDIT_LOAD_WORKERS", "4")

	cfg := Default()
	cfg.Metrics.Port = 0
	cfg.Engine.LoadWorkers = 0
	assert.Equal(t, 3333, cfg.Metrics.GetMetricsPort())
	assert.Equal(t, 4, cfg.Engine.GetLoadWorkers())

	cfg.Metrics.Port = 5555
	assert.Equal(t, 5555, cfg.Metrics.GetMetricsPort(), "явный порт важнее ENV")
}

// TestLoadMissingFile отсутствующий файл — ошибка
func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "ghost.yml"))
	assert.Error(t, err)
}
