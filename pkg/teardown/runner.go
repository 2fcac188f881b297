package teardown

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/tools/record"
	"k8s.io/utils/clock"
)

// Event reasons recorded on the parent.
const (
	ReasonFinalized                = "Finalized"
	ReasonFinalizeFailed           = "FinalizeFailed"
	ReasonFinalizeRetriesExhausted = "FinalizeRetriesExhausted"
)

// FinalizeTask is one finalize pass for one parent.
type FinalizeTask struct {
	// Request is the snapshot of the parent and its children.
	Request SyncRequest

	// IndexKey is the parent's slot in the dispatcher queue. It is returned
	// unchanged in the completion message.
	IndexKey string

	// Attempt is the number of passes already run for this parent, 0 for the
	// first one. It selects the retry delay.
	Attempt int
}

// PhaseObserver is called at the end of every pass, before the completion
// message is sent.
type PhaseObserver func(parent types.NamespacedName, history *PhaseHistory)

// FinalizeRunner drives finalize passes. A runner is shared by all parents of
// one type and is safe for concurrent use; each pass is strictly sequential.
type FinalizeRunner struct {
	client   Client
	handler  Handler
	config   *RuntimeConfig
	pool     *HandlerPool
	sender   CompletionSender
	log      logr.Logger
	name     string
	policies RetryPolicies
	metrics  MetricsProvider
	recorder record.EventRecorder
	clock    clock.Clock
	observer PhaseObserver

	inflight sync.WaitGroup
}

// NewFinalizeRunner creates a runner with DefaultRetryPolicies, no metrics and
// no event recorder. The pool must be started separately.
//
// Example:
//
//	runner := teardown.NewFinalizeRunner(teardown.NewClient(mgr.GetClient()), handler, config, pool, sender, log).
//	    WithRetryPolicies(teardown.FixedRetryPolicies(3*time.Second, 5*time.Second)).
//	    WithMetrics(teardown.NewMetricsProvider(nil)).
//	    WithEventRecorder(mgr.GetEventRecorderFor("guestbook-finalizer"))
func NewFinalizeRunner(c Client, handler Handler, config *RuntimeConfig, pool *HandlerPool, sender CompletionSender, log logr.Logger) *FinalizeRunner {
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &FinalizeRunner{
		client:   c,
		handler:  handler,
		config:   config,
		pool:     pool,
		sender:   sender,
		log:      log,
		name:     config.operatorName,
		policies: DefaultRetryPolicies(),
		metrics:  NewNoopMetricsProvider(),
		clock:    clock.RealClock{},
	}
}

// WithName sets the controller label used for metrics. Default: the operator name.
func (r *FinalizeRunner) WithName(name string) *FinalizeRunner {
	r.name = name
	return r
}

// WithRetryPolicies sets the delays applied before completion.
func (r *FinalizeRunner) WithRetryPolicies(policies RetryPolicies) *FinalizeRunner {
	r.policies = policies
	return r
}

// WithMetrics sets the metrics provider.
func (r *FinalizeRunner) WithMetrics(metrics MetricsProvider) *FinalizeRunner {
	if metrics != nil {
		r.metrics = metrics
	}
	return r
}

// WithEventRecorder records events on the parent.
func (r *FinalizeRunner) WithEventRecorder(recorder record.EventRecorder) *FinalizeRunner {
	r.recorder = recorder
	return r
}

// WithClock sets the clock used for delays and pass timing.
func (r *FinalizeRunner) WithClock(c clock.Clock) *FinalizeRunner {
	if c != nil {
		r.clock = c
	}
	return r
}

// WithPhaseObserver registers a callback receiving the phase history of every pass.
func (r *FinalizeRunner) WithPhaseObserver(observer PhaseObserver) *FinalizeRunner {
	r.observer = observer
	return r
}

// Spawn runs the pass on its own goroutine.
func (r *FinalizeRunner) Spawn(ctx context.Context, task FinalizeTask) {
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		r.Finalize(ctx, task)
	}()
}

// Wait blocks until every pass started with Spawn has returned.
func (r *FinalizeRunner) Wait() {
	r.inflight.Wait()
}

// Finalize runs one pass and returns once its completion message was handed
// to the sender.
//
// Children are deleted first, whether or not the parent carries the
// finalizer. If it does, the handler runs, the status is patched if it
// changed, and the finalizer is removed once the handler reports the parent
// as finalized. Errors and unfinished cleanup delay the completion according
// to the retry policies. Exactly one completion message is sent per call.
func (r *FinalizeRunner) Finalize(ctx context.Context, task FinalizeTask) {
	start := r.clock.Now()
	parent := task.Request.Parent
	id := parentID(parent)
	log := r.log.WithValues("parent", id.String(), "indexKey", task.IndexKey, "attempt", task.Attempt)
	history := newPhaseHistory()

	c := &instrumentedClient{Client: r.client, controller: r.name, metrics: r.metrics}
	outcome, err := r.finalize(ctx, c, task.Request, history, log)

	switch {
	case err != nil:
		r.advance(history, log, PhaseFailed, KindOf(err).String())
		log.Error(err, "Failed to finalize parent", "kind", KindOf(err).String())
		r.event(parent, corev1.EventTypeWarning, ReasonFinalizeFailed, "Finalize failed: %v", err)
		r.wait(ctx, log, parent, "error", r.policies.Error, task.Attempt)
	case outcome == OutcomeDeferred:
		r.wait(ctx, log, parent, "not-finalized", r.policies.NotFinalized, task.Attempt)
	case outcome == OutcomeFinalized:
		r.event(parent, corev1.EventTypeNormal, ReasonFinalized, "Removed finalizer %s", r.config.operatorName)
	}

	r.advance(history, log, PhaseCompleted, string(outcome))
	r.metrics.RecordFinalize(r.name, r.clock.Since(start), outcome)
	log.V(1).Info("finalize pass finished", "outcome", outcome, "phases", history.String())
	if r.observer != nil {
		r.observer(id, history)
	}

	r.complete(ctx, log, id, task.IndexKey)
}

func (r *FinalizeRunner) finalize(ctx context.Context, c Client, req SyncRequest, history *PhaseHistory, log logr.Logger) (FinalizeOutcome, error) {
	parent := req.Parent
	if parent == nil {
		return OutcomeError, errors.New("finalize task has no parent")
	}

	if err := DeleteChildren(ctx, c, r.config, req.Children, log); err != nil {
		return OutcomeError, fmt.Errorf("failed to delete children: %w", err)
	}
	r.advance(history, log, PhaseChildrenDeleted, fmt.Sprintf("%d children", len(req.Children)))

	if _, ok := FinalizerIndex(parent.GetFinalizers(), r.config.operatorName); !ok {
		log.V(1).Info("parent does not carry the finalizer, nothing left to do", "finalizer", r.config.operatorName)
		r.advance(history, log, PhaseDone, "finalizer absent")
		return OutcomeSkipped, nil
	}

	update := StatusUpdate{
		ParentID:        ObjectID(parent),
		ResourceVersion: parent.GetResourceVersion(),
		Generation:      parent.GetGeneration(),
		OldStatus:       statusOf(parent),
	}

	returned, resp, err := r.pool.Invoke(ctx, r.handler, req)
	if err != nil {
		return OutcomeError, fmt.Errorf("failed to invoke finalize handler: %w", err)
	}
	log.V(1).Info("finalize handler completed without error", "finalized", resp.Finalized)
	r.advance(history, log, PhaseHandlerInvoked, "")

	update.NewStatus = resp.Status
	patched, err := UpdateStatusIfDifferent(ctx, c, r.config, update)
	if err != nil {
		return OutcomeError, fmt.Errorf("failed to update status: %w", err)
	}
	r.advance(history, log, PhaseStatusReconciled, fmt.Sprintf("patched=%t", patched))

	if !resp.Finalized {
		log.Info("handler reported parent is not finalized yet")
		r.advance(history, log, PhaseDeferred, "")
		return OutcomeDeferred, nil
	}

	log.Info("handler reported parent is finalized, removing finalizer")
	if err := RemoveFinalizer(ctx, c, r.config, returned.Parent); err != nil {
		return OutcomeError, fmt.Errorf("failed to remove finalizer: %w", err)
	}
	r.advance(history, log, PhaseMarkerRemoved, "")
	return OutcomeFinalized, nil
}

func (r *FinalizeRunner) advance(history *PhaseHistory, log logr.Logger, to FinalizePhase, reason string) {
	if err := history.Advance(to, reason); err != nil {
		log.Error(err, "unexpected finalize phase")
	}
}

// wait blocks for the policy delay. A cancelled ctx ends the wait early.
func (r *FinalizeRunner) wait(ctx context.Context, log logr.Logger, parent *unstructured.Unstructured, reason string, policy RetryPolicy, attempt int) {
	delay, exhausted := policy.Delay(attempt)
	if exhausted {
		log.Info("retry attempts exhausted, delaying completion by the maximum delay", "reason", reason, "delay", delay.String())
		r.event(parent, corev1.EventTypeWarning, ReasonFinalizeRetriesExhausted,
			"Finalize retried %d times (%s), next attempt in %s", attempt, reason, delay)
	}
	r.metrics.RecordBackoffDelay(r.name, reason, delay)
	if delay <= 0 {
		return
	}

	log.V(1).Info("delaying completion", "reason", reason, "delay", delay.String())
	select {
	case <-r.clock.After(delay):
	case <-ctx.Done():
		log.V(1).Info("context done, completing without waiting out the delay")
	}
}

// complete sends the pass's single completion message. The send does not
// observe cancellation of ctx, so the dispatcher always gets its slot back.
func (r *FinalizeRunner) complete(ctx context.Context, log logr.Logger, id types.NamespacedName, indexKey string) {
	parentType := r.config.ParentType()
	msg := ResourceMessage{
		EventType:    EventUpdateOperationComplete,
		ResourceType: &parentType,
		ResourceID:   id,
		IndexKey:     indexKey,
	}
	err := r.sender.Send(context.WithoutCancel(ctx), msg)
	if err == nil {
		return
	}

	reason := "error"
	switch {
	case errors.Is(err, ErrCompletionChannelClosed):
		reason = "closed"
	case errors.Is(err, ErrCompletionChannelFull):
		reason = "full"
	}
	r.metrics.RecordCompletionDrop(r.name, reason)
	log.Error(err, "failed to send completion event", "reason", reason)
}

func (r *FinalizeRunner) event(parent *unstructured.Unstructured, eventType, reason, messageFmt string, args ...interface{}) {
	if r.recorder == nil || parent == nil {
		return
	}
	r.recorder.Eventf(parent, eventType, reason, messageFmt, args...)
}

func parentID(parent *unstructured.Unstructured) types.NamespacedName {
	if parent == nil {
		return types.NamespacedName{}
	}
	return ObjectID(parent)
}
