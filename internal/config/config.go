package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации редактора ландшафта.

type Config struct {
	Archive   ArchiveConfig   `yaml:"archive"`
	DocStore  DocStoreConfig  `yaml:"docstore"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Engine    EngineConfig    `yaml:"engine"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ArchiveConfig описывает хранилище игровых архивов (DAT-блобы).
type ArchiveConfig struct {
	Path           string `yaml:"path"`          // Каталог BadgerDB с архивом региона
	RegionID       uint32 `yaml:"region_id"`     // Идентификатор региона
	CacheEntries   int64  `yaml:"cache_entries"` // Ёмкость ristretto-кеша распакованных лэндблоков
	CacheMaxCostMB int64  `yaml:"cache_max_cost_mb"`
}

// DocStoreConfig описывает транзакционное хранилище документов правок.
type DocStoreConfig struct {
	Path string `yaml:"path"` // Каталог BadgerDB с документами
}

// EventBusConfig выбирает реализацию шины событий.
// kind: "memory" (по умолчанию) или "jetstream".
type EventBusConfig struct {
	Kind      string `yaml:"kind"`
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
	Buffer    int    `yaml:"buffer"`
}

// EngineConfig содержит настройки движка слияния.
type EngineConfig struct {
	LoadWorkers int `yaml:"load_workers"` // Параллелизм распаковки лэндблоков чанка
}

// MetricsConfig настраивает Prometheus-эндпоинт.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// TelemetryConfig настраивает OpenTelemetry.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// GetMetricsPort возвращает порт метрик с приоритетом: config -> env -> default
func (m *MetricsConfig) GetMetricsPort() int {
	return getPortWithEnvFallback(m.Port, "LANDEDIT_METRICS_PORT", 2112)
}

// GetLoadWorkers возвращает число воркеров загрузки (минимум 1)
func (e *EngineConfig) GetLoadWorkers() int {
	if e.LoadWorkers > 0 {
		return e.LoadWorkers
	}
	if envVal := os.Getenv("LANDEDIT_LOAD_WORKERS"); envVal != "" {
		if n, err := strconv.Atoi(envVal); err == nil && n > 0 {
			return n
		}
	}
	return 8
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// Load читает YAML файл конфигурации.
// Если path == "", пытается прочитать из ENV LANDEDIT_CONFIG или возвращает значения по умолчанию.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("LANDEDIT_CONFIG")
	}

	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default возвращает конфигурацию по умолчанию.
func Default() *Config {
	return &Config{
		Archive: ArchiveConfig{
			Path:           "data/archive",
			RegionID:       1,
			CacheEntries:   4096,
			CacheMaxCostMB: 256,
		},
		DocStore: DocStoreConfig{Path: "data/documents"},
		EventBus: EventBusConfig{Kind: "memory", Buffer: 1024},
		Engine:   EngineConfig{LoadWorkers: 8},
		Metrics:  MetricsConfig{Enabled: true},
		Telemetry: TelemetryConfig{
			ServiceName: "landedit",
		},
	}
}

// Save сохраняет конфигурацию в YAML файл.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
