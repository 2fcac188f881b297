package teardown

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"
	"sigs.k8s.io/controller-runtime/pkg/manager"
)

// Handler holds the domain specific finalize logic.
type Handler interface {
	// Finalize is called for a parent being deleted while it still carries the
	// operator's finalizer. All children have been deleted, or are being deleted,
	// by the time it is called.
	//
	// Finalize runs on a HandlerPool worker and may block. It is called again on
	// every pass until it returns a response with Finalized set.
	//
	// Example:
	//
	//	func (h *MyHandler) Finalize(ctx context.Context, req teardown.SyncRequest) teardown.FinalizeResponse {
	//	    if err := h.releaseExternalVolume(ctx, req.Parent); err != nil {
	//	        return teardown.FinalizeResponse{Status: map[string]interface{}{"phase": "Terminating", "message": err.Error()}}
	//	    }
	//	    return teardown.FinalizeResponse{Finalized: true}
	//	}
	Finalize(ctx context.Context, req SyncRequest) FinalizeResponse
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, req SyncRequest) FinalizeResponse

// Finalize calls f(ctx, req).
func (f HandlerFunc) Finalize(ctx context.Context, req SyncRequest) FinalizeResponse {
	return f(ctx, req)
}

// PoolOptions configures a HandlerPool.
type PoolOptions struct {
	// Workers is the number of goroutines running handlers. Default: 4.
	Workers int

	// QueueSize is the number of invocations that may wait for a worker. Default: 64.
	QueueSize int

	// Logger for the pool.
	Logger logr.Logger

	// Metrics receives handler timings and queue depth. Default: NoopMetricsProvider.
	Metrics MetricsProvider

	// Name labels the pool's metrics.
	Name string

	// Clock measures handler duration. Default: the real clock.
	Clock clock.PassiveClock
}

// HandlerPool runs finalize handlers on a fixed set of worker goroutines, so a
// slow handler only ever occupies a worker and never the goroutine driving a
// pass.
//
// HandlerPool implements manager.Runnable; add it to a manager or call Start
// directly.
type HandlerPool struct {
	opts    PoolOptions
	queue   chan *invocation
	stopped chan struct{}
	drained chan struct{}
	once    sync.Once
	workers sync.WaitGroup
}

var _ manager.Runnable = &HandlerPool{}

type invocation struct {
	ctx     context.Context
	handler Handler
	request SyncRequest
	reply   chan invocationResult
}

type invocationResult struct {
	request  SyncRequest
	response FinalizeResponse
	err      error
}

// NewHandlerPool creates a pool. No handler runs until Start is called.
func NewHandlerPool(opts PoolOptions) *HandlerPool {
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.Metrics == nil {
		opts.Metrics = NewNoopMetricsProvider()
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	return &HandlerPool{
		opts:    opts,
		queue:   make(chan *invocation, opts.QueueSize),
		stopped: make(chan struct{}),
		drained: make(chan struct{}),
	}
}

// Start runs the workers and blocks until ctx is cancelled. Invocations still
// queued at shutdown fail with ErrPoolStopped.
func (p *HandlerPool) Start(ctx context.Context) error {
	p.opts.Logger.Info("starting handler pool", "workers", p.opts.Workers, "queueSize", p.opts.QueueSize)

	for i := range p.opts.Workers {
		p.workers.Add(1)
		go p.worker(ctx, i)
	}

	<-ctx.Done()
	p.opts.Logger.Info("handler pool shutting down")
	p.once.Do(func() { close(p.stopped) })
	p.workers.Wait()
	p.drain()
	close(p.drained)

	p.opts.Logger.Info("handler pool shutdown complete")
	return nil
}

func (p *HandlerPool) drain() {
	for {
		select {
		case item := <-p.queue:
			item.reply <- invocationResult{request: item.request, err: ErrPoolStopped}
		default:
			return
		}
	}
}

// Invoke runs handler against req on a pool worker and waits for the result.
// The request is handed to the worker and returned alongside the response.
//
// Invoke fails with ErrPoolStopped if the pool shuts down before the handler
// ran, and with ErrHandlerPanic if the handler panicked. ctx bounds the whole
// call: once it is done Invoke returns ErrHandlerAbandoned wrapping ctx.Err()
// without waiting for the handler, which still receives ctx.
func (p *HandlerPool) Invoke(ctx context.Context, handler Handler, req SyncRequest) (SyncRequest, FinalizeResponse, error) {
	item := &invocation{
		ctx:     ctx,
		handler: handler,
		request: req,
		reply:   make(chan invocationResult, 1),
	}

	select {
	case <-p.stopped:
		return req, FinalizeResponse{}, ErrPoolStopped
	default:
	}

	select {
	case p.queue <- item:
		p.opts.Metrics.RecordQueueDepth(p.opts.Name, len(p.queue))
	case <-p.stopped:
		return req, FinalizeResponse{}, ErrPoolStopped
	case <-ctx.Done():
		return req, FinalizeResponse{}, fmt.Errorf("%w: %w", ErrHandlerAbandoned, ctx.Err())
	}

	select {
	case result := <-item.reply:
		return result.request, result.response, result.err
	case <-ctx.Done():
		return req, FinalizeResponse{}, fmt.Errorf("%w: %w", ErrHandlerAbandoned, ctx.Err())
	case <-p.drained:
		select {
		case result := <-item.reply:
			return result.request, result.response, result.err
		default:
			return req, FinalizeResponse{}, ErrPoolStopped
		}
	}
}

func (p *HandlerPool) worker(ctx context.Context, id int) {
	defer p.workers.Done()
	log := p.opts.Logger.WithValues("worker", id)
	log.V(1).Info("worker started")
	defer log.V(1).Info("worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case item := <-p.queue:
			p.opts.Metrics.RecordQueueDepth(p.opts.Name, len(p.queue))
			if err := item.ctx.Err(); err != nil {
				// The caller already gave up on this invocation.
				item.reply <- invocationResult{request: item.request, err: fmt.Errorf("%w: %w", ErrHandlerAbandoned, err)}
				continue
			}
			item.reply <- p.run(log, item)
		}
	}
}

func (p *HandlerPool) run(log logr.Logger, item *invocation) (result invocationResult) {
	parent := ObjectID(item.request.Parent)
	start := p.opts.Clock.Now()
	result.request = item.request

	defer func() {
		elapsed := p.opts.Clock.Since(start)
		p.opts.Metrics.RecordHandlerDuration(p.opts.Name, elapsed)
		log.V(1).Info("finished invoking handler", "parent", parent.String(), "durationMs", elapsed.Milliseconds())

		if r := recover(); r != nil {
			log.Error(fmt.Errorf("%v", r), "finalize handler panicked", "parent", parent.String(), "stack", string(debug.Stack()))
			result.response = FinalizeResponse{}
			result.err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()

	result.response = item.handler.Finalize(item.ctx, item.request)
	return result
}
