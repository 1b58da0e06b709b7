package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dereth/landedit/internal/archive"
	"github.com/dereth/landedit/internal/config"
	"github.com/dereth/landedit/internal/docstore"
	"github.com/dereth/landedit/internal/eventbus"
	"github.com/dereth/landedit/internal/logging"
	"github.com/dereth/landedit/internal/observability"
	"github.com/dereth/landedit/internal/terrain"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML-конфигурации (иначе LANDEDIT_CONFIG или значения по умолчанию)")
	flag.Parse()

	// Инициализируем систему логирования
	if err := logging.InitDefaultLogger("landedit"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()

	logging.Info("🗺️  Запуск сервиса редактирования ландшафта...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Error("❌ Ошибка загрузки конфигурации: %v", err)
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}
	logging.Info("📡 Конфигурация: регион=%d, архив=%s, документы=%s",
		cfg.Archive.RegionID, cfg.Archive.Path, cfg.DocStore.Path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// === ТЕЛЕМЕТРИЯ ===
	if cfg.Telemetry.Enabled {
		shutdown, err := observability.InitTelemetry(ctx, cfg.Telemetry.ServiceName)
		if err != nil {
			logging.Error("Ошибка инициализации телеметрии: %v", err)
		} else {
			defer func() {
				shutdownCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
				defer c()
				_ = shutdown(shutdownCtx)
			}()
		}
	}

	// === ШИНА СОБЫТИЙ ===
	var bus eventbus.EventBus
	switch cfg.EventBus.Kind {
	case "jetstream":
		bus, err = eventbus.NewJetStreamBus(cfg.EventBus.URL, cfg.EventBus.Stream,
			time.Duration(cfg.EventBus.Retention)*time.Hour)
		if err != nil {
			logging.Error("❌ Ошибка подключения к JetStream: %v", err)
			log.Fatalf("❌ Ошибка подключения к JetStream: %v", err)
		}
		logging.Info("✅ Шина событий: JetStream %s (stream %s)", cfg.EventBus.URL, cfg.EventBus.Stream)
	default:
		bus = eventbus.NewMemoryBus(cfg.EventBus.Buffer)
		logging.Info("✅ Шина событий: in-memory (буфер %d)", cfg.EventBus.Buffer)
	}
	eventbus.Init(bus)
	defer bus.Close()

	if err := eventbus.StartLoggingListener(bus); err != nil {
		logging.Error("Ошибка подписки лога на шину: %v", err)
	}

	// === МЕТРИКИ ===
	if cfg.Metrics.Enabled {
		exporter := eventbus.NewMetricsExporter(bus)
		addr := fmt.Sprintf(":%d", cfg.Metrics.GetMetricsPort())
		exporter.StartHTTP(addr)
		defer exporter.Stop()
		logging.Info("📊 Prometheus-метрики: http://localhost%s/metrics", addr)
	}

	// === ХРАНИЛИЩА ===
	logging.Debug("Открытие архива региона...")
	archiveStore, err := archive.NewBadgerStore(cfg.Archive.Path)
	if err != nil {
		logging.Error("❌ Ошибка открытия архива: %v", err)
		log.Fatalf("❌ Ошибка открытия архива: %v", err)
	}
	defer archiveStore.Close()

	reader, err := archive.NewReader(archiveStore, archive.ReaderConfig{
		CacheEntries: cfg.Archive.CacheEntries,
		CacheMaxCost: cfg.Archive.CacheMaxCostMB << 20,
	})
	if err != nil {
		logging.Error("❌ Ошибка создания читателя архива: %v", err)
		log.Fatalf("❌ Ошибка создания читателя архива: %v", err)
	}
	defer reader.Close()

	logging.Debug("Открытие хранилища документов...")
	docs, err := docstore.NewBadgerStore(cfg.DocStore.Path)
	if err != nil {
		logging.Error("❌ Ошибка открытия хранилища документов: %v", err)
		log.Fatalf("❌ Ошибка открытия хранилища документов: %v", err)
	}
	defer docs.Close()

	// === ДОКУМЕНТ РЕГИОНА ===
	logging.Debug("Инициализация документа региона %d...", cfg.Archive.RegionID)
	doc := terrain.New(cfg.Archive.RegionID, reader, docs, bus,
		terrain.WithLoadWorkers(cfg.Engine.GetLoadWorkers()))
	if err := doc.InitializeForEditing(ctx); err != nil {
		logging.Error("❌ Ошибка инициализации документа: %v", err)
		log.Fatalf("❌ Ошибка инициализации документа: %v", err)
	}

	logging.Info("✅ Документ региона %d готов (версия %d, слоёв %d)",
		doc.RegionID(), doc.Version(), len(doc.LayerIDs()))
	logging.Info("✅ Сервис запущен")

	// Ждем сигнала для завершения
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logging.Info("📡 Получен сигнал %v, завершение работы...", sig)

	cancel()
	logging.Info("👋 Сервис остановлен")
}
