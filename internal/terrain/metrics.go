package terrain

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Метрики движка слияния. Регистрируются один раз на процесс.
var (
	metricsOnce sync.Once

	chunkLoadsTotal         prometheus.Counter
	chunkLoadSeconds        prometheus.Histogram
	recomputeSeconds        prometheus.Histogram
	exportedLandblocksTotal prometheus.Counter
)

func initMetrics() {
	metricsOnce.Do(func() {
		chunkLoadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "landedit",
			Name:      "chunk_loads_total",
			Help:      "Число чанков, загруженных из базового архива.",
		})
		chunkLoadSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "landedit",
			Name:      "chunk_load_seconds",
			Help:      "Длительность загрузки чанка (распаковка лэндблоков).",
			Buckets:   prometheus.DefBuckets,
		})
		recomputeSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "landedit",
			Name:      "chunk_recompute_seconds",
			Help:      "Длительность пересчёта слияния чанка.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		})
		exportedLandblocksTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "landedit",
			Name:      "exported_landblocks_total",
			Help:      "Число лэндблоков, переписанных при экспорте в архив.",
		})

		prometheus.MustRegister(chunkLoadsTotal, chunkLoadSeconds, recomputeSeconds, exportedLandblocksTotal)
	})
}
