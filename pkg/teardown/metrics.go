package teardown

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/apimachinery/pkg/types"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
)

// FinalizeOutcome represents how a finalize pass ended.
type FinalizeOutcome string

const (
	// OutcomeFinalized indicates the finalizer was removed.
	OutcomeFinalized FinalizeOutcome = "finalized"

	// OutcomeSkipped indicates the parent did not carry the finalizer, so only
	// children were deleted.
	OutcomeSkipped FinalizeOutcome = "skipped"

	// OutcomeDeferred indicates the handler reported cleanup still in progress.
	OutcomeDeferred FinalizeOutcome = "deferred"

	// OutcomeError indicates a step of the pass failed.
	OutcomeError FinalizeOutcome = "error"
)

// MetricsProvider records finalize metrics.
type MetricsProvider interface {
	// RecordFinalize records the duration and outcome of a pass.
	RecordFinalize(controllerName string, duration time.Duration, outcome FinalizeOutcome)

	// RecordResourceOperation records an API operation issued by a pass.
	RecordResourceOperation(controllerName, operation string, success bool)

	// RecordHandlerDuration records how long a finalize handler ran.
	RecordHandlerDuration(poolName string, duration time.Duration)

	// RecordQueueDepth sets the number of invocations waiting for a pool worker.
	RecordQueueDepth(poolName string, depth int)

	// RecordBackoffDelay records a delay applied before completion.
	RecordBackoffDelay(controllerName, reason string, delay time.Duration)

	// RecordCompletionDrop records a completion message that was not delivered.
	RecordCompletionDrop(controllerName, reason string)

	// Registry returns the underlying Prometheus registry.
	Registry() prometheus.Registerer
}

// MetricsConfig configures the metrics provider.
type MetricsConfig struct {
	// Namespace is the Prometheus namespace for all metrics.
	// Default: "teardown"
	Namespace string

	// Subsystem is the Prometheus subsystem for all metrics.
	// Default: "finalizer"
	Subsystem string

	// DurationBuckets are the histogram buckets for durations.
	// Default: {0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300}
	DurationBuckets []float64

	// Registry is the Prometheus registry to use.
	// Default: the controller-runtime metrics registry
	Registry prometheus.Registerer
}

// DefaultMetricsConfig returns the default metrics configuration.
func DefaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		Namespace: "teardown",
		Subsystem: "finalizer",
		DurationBuckets: []float64{
			0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300,
		},
		Registry: ctrlmetrics.Registry,
	}
}

type metricsProvider struct {
	config *MetricsConfig

	finalizeDuration   *prometheus.HistogramVec
	finalizeTotal      *prometheus.CounterVec
	resourceOperations *prometheus.CounterVec
	handlerDuration    *prometheus.HistogramVec
	queueDepth         *prometheus.GaugeVec
	backoffDelay       *prometheus.HistogramVec
	completionDrops    *prometheus.CounterVec
}

// NewMetricsProvider creates a MetricsProvider and registers its metrics.
// A nil config uses DefaultMetricsConfig.
func NewMetricsProvider(config *MetricsConfig) MetricsProvider {
	if config == nil {
		config = DefaultMetricsConfig()
	}
	if config.Registry == nil {
		config.Registry = ctrlmetrics.Registry
	}

	mp := &metricsProvider{config: config}
	mp.initMetrics()
	return mp
}

func (mp *metricsProvider) initMetrics() {
	mp.finalizeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: mp.config.Namespace,
			Subsystem: mp.config.Subsystem,
			Name:      "finalize_duration_seconds",
			Help:      "Duration of finalize passes in seconds, including backoff delays",
			Buckets:   mp.config.DurationBuckets,
		},
		[]string{"controller", "outcome"},
	)

	mp.finalizeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: mp.config.Namespace,
			Subsystem: mp.config.Subsystem,
			Name:      "finalize_total",
			Help:      "Total number of finalize passes",
		},
		[]string{"controller", "outcome"},
	)

	mp.resourceOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: mp.config.Namespace,
			Subsystem: mp.config.Subsystem,
			Name:      "resource_operations_total",
			Help:      "Total number of API operations issued by finalize passes",
		},
		[]string{"controller", "operation", "success"},
	)

	mp.handlerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: mp.config.Namespace,
			Subsystem: mp.config.Subsystem,
			Name:      "handler_duration_seconds",
			Help:      "Duration of finalize handler invocations in seconds",
			Buckets:   mp.config.DurationBuckets,
		},
		[]string{"pool"},
	)

	mp.queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: mp.config.Namespace,
			Subsystem: mp.config.Subsystem,
			Name:      "handler_pool_queue_depth",
			Help:      "Number of handler invocations waiting for a worker",
		},
		[]string{"pool"},
	)

	mp.backoffDelay = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: mp.config.Namespace,
			Subsystem: mp.config.Subsystem,
			Name:      "backoff_delay_seconds",
			Help:      "Delay applied before signaling completion",
			Buckets:   mp.config.DurationBuckets,
		},
		[]string{"controller", "reason"},
	)

	mp.completionDrops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: mp.config.Namespace,
			Subsystem: mp.config.Subsystem,
			Name:      "completion_drops_total",
			Help:      "Total number of completion messages that could not be delivered",
		},
		[]string{"controller", "reason"},
	)

	mp.config.Registry.MustRegister(
		mp.finalizeDuration,
		mp.finalizeTotal,
		mp.resourceOperations,
		mp.handlerDuration,
		mp.queueDepth,
		mp.backoffDelay,
		mp.completionDrops,
	)
}

func (mp *metricsProvider) RecordFinalize(controllerName string, duration time.Duration, outcome FinalizeOutcome) {
	mp.finalizeDuration.WithLabelValues(controllerName, string(outcome)).Observe(duration.Seconds())
	mp.finalizeTotal.WithLabelValues(controllerName, string(outcome)).Inc()
}

func (mp *metricsProvider) RecordResourceOperation(controllerName, operation string, success bool) {
	mp.resourceOperations.WithLabelValues(controllerName, operation, boolToString(success)).Inc()
}

func (mp *metricsProvider) RecordHandlerDuration(poolName string, duration time.Duration) {
	mp.handlerDuration.WithLabelValues(poolName).Observe(duration.Seconds())
}

func (mp *metricsProvider) RecordQueueDepth(poolName string, depth int) {
	mp.queueDepth.WithLabelValues(poolName).Set(float64(depth))
}

func (mp *metricsProvider) RecordBackoffDelay(controllerName, reason string, delay time.Duration) {
	mp.backoffDelay.WithLabelValues(controllerName, reason).Observe(delay.Seconds())
}

func (mp *metricsProvider) RecordCompletionDrop(controllerName, reason string) {
	mp.completionDrops.WithLabelValues(controllerName, reason).Inc()
}

func (mp *metricsProvider) Registry() prometheus.Registerer {
	return mp.config.Registry
}

// NoopMetricsProvider is a MetricsProvider that does nothing.
type NoopMetricsProvider struct{}

// NewNoopMetricsProvider creates a new no-op metrics provider.
func NewNoopMetricsProvider() MetricsProvider {
	return &NoopMetricsProvider{}
}

func (n *NoopMetricsProvider) RecordFinalize(string, time.Duration, FinalizeOutcome) {}
func (n *NoopMetricsProvider) RecordResourceOperation(string, string, bool)          {}
func (n *NoopMetricsProvider) RecordHandlerDuration(string, time.Duration)           {}
func (n *NoopMetricsProvider) RecordQueueDepth(string, int)                          {}
func (n *NoopMetricsProvider) RecordBackoffDelay(string, string, time.Duration)      {}
func (n *NoopMetricsProvider) RecordCompletionDrop(string, string)                   {}

func (n *NoopMetricsProvider) Registry() prometheus.Registerer {
	return prometheus.NewRegistry()
}

func boolToString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// instrumentedClient records every API operation issued through it.
type instrumentedClient struct {
	Client
	controller string
	metrics    MetricsProvider
}

func (c *instrumentedClient) DeleteResource(ctx context.Context, typ *K8sType, id types.NamespacedName) error {
	err := c.Client.DeleteResource(ctx, typ, id)
	c.metrics.RecordResourceOperation(c.controller, "delete", err == nil)
	return err
}

func (c *instrumentedClient) PatchResource(ctx context.Context, typ *K8sType, id types.NamespacedName, patch Patch) error {
	err := c.Client.PatchResource(ctx, typ, id, patch)
	op := "patch"
	if patch.SubResource != "" {
		op = "patch-" + patch.SubResource
	}
	c.metrics.RecordResourceOperation(c.controller, op, err == nil)
	return err
}
