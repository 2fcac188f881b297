package teardown

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"k8s.io/apimachinery/pkg/types"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
)

func TestFinalizeOutcomeValues(t *testing.T) {
	tests := []struct {
		outcome FinalizeOutcome
		want    string
	}{
		{OutcomeFinalized, "finalized"},
		{OutcomeSkipped, "skipped"},
		{OutcomeDeferred, "deferred"},
		{OutcomeError, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if string(tt.outcome) != tt.want {
				t.Errorf("FinalizeOutcome = %q, want %q", string(tt.outcome), tt.want)
			}
		})
	}
}

func TestDefaultMetricsConfig(t *testing.T) {
	config := DefaultMetricsConfig()

	if config.Namespace != "teardown" {
		t.Errorf("Namespace = %q, want %q", config.Namespace, "teardown")
	}
	if config.Subsystem != "finalizer" {
		t.Errorf("Subsystem = %q, want %q", config.Subsystem, "finalizer")
	}
	if len(config.DurationBuckets) != 13 {
		t.Errorf("DurationBuckets length = %d, want 13", len(config.DurationBuckets))
	}
	if config.Registry != ctrlmetrics.Registry {
		t.Error("Registry should be the controller-runtime registry by default")
	}
}

func newTestMetrics(t *testing.T) (MetricsProvider, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	config := DefaultMetricsConfig()
	config.Registry = registry
	return NewMetricsProvider(config), registry
}

func TestMetricsProviderRecords(t *testing.T) {
	mp, registry := newTestMetrics(t)

	mp.RecordFinalize("my-op", 2*time.Second, OutcomeFinalized)
	mp.RecordFinalize("my-op", time.Second, OutcomeDeferred)
	mp.RecordFinalize("my-op", time.Second, OutcomeDeferred)
	mp.RecordResourceOperation("my-op", "delete", true)
	mp.RecordResourceOperation("my-op", "delete", false)
	mp.RecordHandlerDuration("pool", 100*time.Millisecond)
	mp.RecordQueueDepth("pool", 5)
	mp.RecordBackoffDelay("my-op", "error", 5*time.Second)
	mp.RecordCompletionDrop("my-op", "full")

	expected := `
# HELP teardown_finalizer_finalize_total Total number of finalize passes
# TYPE teardown_finalizer_finalize_total counter
teardown_finalizer_finalize_total{controller="my-op",outcome="deferred"} 2
teardown_finalizer_finalize_total{controller="my-op",outcome="finalized"} 1
# HELP teardown_finalizer_resource_operations_total Total number of API operations issued by finalize passes
# TYPE teardown_finalizer_resource_operations_total counter
teardown_finalizer_resource_operations_total{controller="my-op",operation="delete",success="false"} 1
teardown_finalizer_resource_operations_total{controller="my-op",operation="delete",success="true"} 1
# HELP teardown_finalizer_handler_pool_queue_depth Number of handler invocations waiting for a worker
# TYPE teardown_finalizer_handler_pool_queue_depth gauge
teardown_finalizer_handler_pool_queue_depth{pool="pool"} 5
# HELP teardown_finalizer_completion_drops_total Total number of completion messages that could not be delivered
# TYPE teardown_finalizer_completion_drops_total counter
teardown_finalizer_completion_drops_total{controller="my-op",reason="full"} 1
`
	err := testutil.GatherAndCompare(registry, strings.NewReader(expected),
		"teardown_finalizer_finalize_total",
		"teardown_finalizer_resource_operations_total",
		"teardown_finalizer_handler_pool_queue_depth",
		"teardown_finalizer_completion_drops_total",
	)
	if err != nil {
		t.Error(err)
	}

	if got := testutil.CollectAndCount(registry, "teardown_finalizer_handler_duration_seconds"); got != 1 {
		t.Errorf("handler_duration_seconds series = %d, want 1", got)
	}
	if got := testutil.CollectAndCount(registry, "teardown_finalizer_backoff_delay_seconds"); got != 1 {
		t.Errorf("backoff_delay_seconds series = %d, want 1", got)
	}
}

func TestMetricsProviderHistogramSum(t *testing.T) {
	mp, registry := newTestMetrics(t)
	mp.RecordFinalize("my-op", 1500*time.Millisecond, OutcomeError)

	families, err := registry.Gather()
	if err != nil {
		t.Fatal(err)
	}
	var histogram *dto.Histogram
	for _, mf := range families {
		if mf.GetName() == "teardown_finalizer_finalize_duration_seconds" {
			histogram = mf.GetMetric()[0].GetHistogram()
		}
	}
	if histogram == nil {
		t.Fatal("finalize_duration_seconds not gathered")
	}
	if histogram.GetSampleCount() != 1 || histogram.GetSampleSum() != 1.5 {
		t.Errorf("histogram = (%d, %v), want (1, 1.5)", histogram.GetSampleCount(), histogram.GetSampleSum())
	}
}

func TestNoopMetricsProvider(t *testing.T) {
	mp := NewNoopMetricsProvider()
	mp.RecordFinalize("c", time.Second, OutcomeFinalized)
	mp.RecordResourceOperation("c", "delete", true)
	mp.RecordHandlerDuration("p", time.Second)
	mp.RecordQueueDepth("p", 1)
	mp.RecordBackoffDelay("c", "error", time.Second)
	mp.RecordCompletionDrop("c", "closed")
	if mp.Registry() == nil {
		t.Error("Registry() should not be nil")
	}
}

func TestInstrumentedClient(t *testing.T) {
	mp, registry := newTestMetrics(t)
	c := &instrumentedClient{
		Client: &funcClient{
			deleteFunc: func(context.Context, *K8sType, types.NamespacedName) error { return errors.New("boom") },
		},
		controller: "my-op",
		metrics:    mp,
	}

	id := types.NamespacedName{Namespace: "default", Name: "gb"}
	_ = c.DeleteResource(context.Background(), &configMapType, id)
	_ = c.PatchResource(context.Background(), &guestbookType, id, Patch{Type: types.JSONPatchType})
	_ = c.PatchResource(context.Background(), &guestbookType, id, Patch{Type: types.MergePatchType, SubResource: "status"})

	expected := `
# HELP teardown_finalizer_resource_operations_total Total number of API operations issued by finalize passes
# TYPE teardown_finalizer_resource_operations_total counter
teardown_finalizer_resource_operations_total{controller="my-op",operation="delete",success="false"} 1
teardown_finalizer_resource_operations_total{controller="my-op",operation="patch",success="true"} 1
teardown_finalizer_resource_operations_total{controller="my-op",operation="patch-status",success="true"} 1
`
	if err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "teardown_finalizer_resource_operations_total"); err != nil {
		t.Error(err)
	}
}
