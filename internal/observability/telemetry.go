// Package observability provides logging and metrics for StageZero.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lvonguyen/stagezero/internal/config"
)

// Metrics holds Prometheus metrics for the classification pipeline.
type Metrics struct {
	LogsClassified    prometheus.Counter
	LogsWithMatches   prometheus.Counter
	TechniqueMatches  *prometheus.CounterVec
	IOCsExtracted     *prometheus.CounterVec
	ClassifyDuration  prometheus.Histogram
	ReportsBuilt      *prometheus.CounterVec
	IndexSize         prometheus.Gauge
	RequestsTotal     *prometheus.CounterVec
	DeliveryAttempts  *prometheus.CounterVec
}

// NewLogger builds the structured logger from config.
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zcfg = zap.NewProductionConfig()
		zcfg.EncoderConfig.TimeKey = "timestamp"
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	switch cfg.Level {
	case "debug":
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		zcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zcfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	zcfg.InitialFields = map[string]interface{}{
		"service": "stagezero",
	}
	return zcfg.Build()
}

// NewMetrics registers and returns the pipeline metrics.
func NewMetrics() *Metrics {
	namespace := "stagezero"

	return &Metrics{
		LogsClassified: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logs_classified_total",
			Help:      "Total log records classified",
		}),
		LogsWithMatches: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logs_with_matches_total",
			Help:      "Classified logs with at least one technique match",
		}),
		TechniqueMatches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "technique_matches_total",
			Help:      "Technique matches by match type",
		}, []string{"match_type"}),
		IOCsExtracted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "iocs_extracted_total",
			Help:      "Unique indicators extracted by kind",
		}, []string{"kind"}),
		ClassifyDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classify_batch_duration_seconds",
			Help:      "Batch classification duration",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		ReportsBuilt: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_built_total",
			Help:      "Reports built by overall severity",
		}, []string{"severity"}),
		IndexSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "technique_index_size",
			Help:      "Techniques in the loaded index",
		}),
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		DeliveryAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_attempts_total",
			Help:      "Watsonx delivery attempts by outcome",
		}, []string{"status"}),
	}
}

// Handler returns the Prometheus scrape handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
