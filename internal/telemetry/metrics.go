package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics — метрики исполнения процессов.
type Metrics struct {
	registry *prometheus.Registry

	// ProcessesStarted — запущенные процессы по типам.
	ProcessesStarted *prometheus.CounterVec

	// ProcessesFinished — завершённые процессы по типам и статусам.
	ProcessesFinished *prometheus.CounterVec

	// ProcessesActive — процессы в памяти runtime.
	ProcessesActive prometheus.Gauge

	// ProcessDuration — длительность процессов от старта до
	// терминального статуса.
	ProcessDuration *prometheus.HistogramVec

	// HandlerCalls — side-effect вызовы обработчиков.
	HandlerCalls *prometheus.CounterVec

	// HandlerCallDuration — длительность вызовов обработчиков.
	HandlerCallDuration prometheus.Histogram

	// SignalsReceived — принятые сигналы по видам.
	SignalsReceived *prometheus.CounterVec

	// SignalsRejected — отброшенные невалидные сигналы.
	SignalsRejected prometheus.Counter

	// CheckpointsSaved — сохранённые чекпоинты прогресса.
	CheckpointsSaved prometheus.Counter
}

// NewMetrics создаёт и регистрирует метрики в собственном registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ProcessesStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "procedura",
			Name:      "processes_started_total",
			Help:      "Number of started processes.",
		}, []string{"process_type"}),
		ProcessesFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "procedura",
			Name:      "processes_finished_total",
			Help:      "Number of finished processes.",
		}, []string{"process_type", "status"}),
		ProcessesActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "procedura",
			Name:      "processes_active",
			Help:      "Number of processes currently held in memory.",
		}),
		ProcessDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "procedura",
			Name:      "process_duration_seconds",
			Help:      "Process duration from start to terminal status.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 10),
		}, []string{"process_type"}),
		HandlerCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "procedura",
			Name:      "handler_calls_total",
			Help:      "Number of side-effect handler calls.",
		}, []string{"outcome"}),
		HandlerCallDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "procedura",
			Name:      "handler_call_duration_seconds",
			Help:      "Handler call duration including retries.",
			Buckets:   prometheus.DefBuckets,
		}),
		SignalsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "procedura",
			Name:      "signals_received_total",
			Help:      "Number of received external signals.",
		}, []string{"kind"}),
		SignalsRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "procedura",
			Name:      "signals_rejected_total",
			Help:      "Number of rejected invalid signals.",
		}),
		CheckpointsSaved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "procedura",
			Name:      "checkpoints_saved_total",
			Help:      "Number of persisted progress checkpoints.",
		}),
	}
}

// Handler возвращает HTTP-обработчик для /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
