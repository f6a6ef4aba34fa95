package observe

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vango-dev/dataverse/pkg/dataverse"
)

// MetricsConfig configures the Prometheus tick metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "dataverse").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for tick duration.
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus tick metrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "dataverse",
		// Ticks are expected to fit well inside a frame.
		Buckets:  []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .025, .05},
		Registry: prometheus.DefaultRegisterer,
	}
}

// Metrics is a dataverse.Observer recording Prometheus metrics.
//
// Metrics collected:
//   - dataverse_ticks_total: Counter of ticks by status
//   - dataverse_tick_duration_seconds: Histogram of tick duration
//   - dataverse_changed_atoms_total: Counter of hot atoms changed
//   - dataverse_recomputations_total: Counter of evaluation runs
//   - dataverse_deliveries_total: Counter of tap callbacks invoked
//   - dataverse_failures_total: Counter of failures by type
//   - dataverse_hot_nodes: Gauge of hot nodes after the last tick
type Metrics struct {
	ticksTotal     *prometheus.CounterVec
	tickDuration   prometheus.Histogram
	changedAtoms   prometheus.Counter
	recomputations prometheus.Counter
	deliveries     prometheus.Counter
	failures       *prometheus.CounterVec
	hotNodes       prometheus.Gauge
}

// NewMetrics registers the tick metrics with the configured registry.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		ticksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "ticks_total",
			Help:        "Total number of ticks run",
			ConstLabels: config.ConstLabels,
		}, []string{"status"}),

		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "tick_duration_seconds",
			Help:        "Tick duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		changedAtoms: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "changed_atoms_total",
			Help:        "Total number of hot atoms changed between ticks",
			ConstLabels: config.ConstLabels,
		}),

		recomputations: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "recomputations_total",
			Help:        "Total number of derivation evaluations during ticks",
			ConstLabels: config.ConstLabels,
		}),

		deliveries: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "deliveries_total",
			Help:        "Total number of tap callbacks invoked",
			ConstLabels: config.ConstLabels,
		}),

		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "failures_total",
			Help:        "Total tick failures by type",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),

		hotNodes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "hot_nodes",
			Help:        "Number of hot nodes after the last tick",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// ObserveTick implements dataverse.Observer.
func (m *Metrics) ObserveTick(stats dataverse.TickStats, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ticksTotal.WithLabelValues(status).Inc()
	m.tickDuration.Observe(stats.Duration.Seconds())
	m.changedAtoms.Add(float64(stats.Changed))
	m.recomputations.Add(float64(stats.Recomputed))
	m.deliveries.Add(float64(stats.Delivered))
	m.hotNodes.Set(float64(stats.Hot))

	for _, e := range unjoin(err) {
		m.failures.WithLabelValues(categorizeError(e)).Inc()
	}
}

// categorizeError returns a low-cardinality label for a tick error.
func categorizeError(err error) string {
	var (
		ev *dataverse.EvaluationError
		se *dataverse.SubscriberError
	)
	switch {
	case errors.Is(err, dataverse.ErrCycleDetected):
		return "cycle"
	case errors.Is(err, dataverse.ErrOutOfRange):
		return "out_of_range"
	case errors.As(err, &se):
		return "subscriber"
	case errors.As(err, &ev):
		return "evaluation"
	default:
		return "internal"
	}
}

// unjoin splits an errors.Join result into its parts.
func unjoin(err error) []error {
	if err == nil {
		return nil
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}
