package teardowntest

import (
	"context"
	"sync"

	"github.com/streamline-controllers/teardown/pkg/teardown"
)

// FakeHandler is a configurable finalize handler for testing.
// Use NewFakeHandler to create instances.
type FakeHandler struct {
	mu           sync.Mutex
	finalizeFunc func(ctx context.Context, req teardown.SyncRequest) teardown.FinalizeResponse
	response     teardown.FinalizeResponse

	// Tracking
	calls []teardown.SyncRequest
}

// NewFakeHandler creates a handler that reports every parent as finalized
// without a status.
func NewFakeHandler() *FakeHandler {
	return &FakeHandler{
		response: teardown.FinalizeResponse{Finalized: true},
	}
}

// WithResponse sets the response returned by Finalize.
func (h *FakeHandler) WithResponse(resp teardown.FinalizeResponse) *FakeHandler {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.response = resp
	return h
}

// WithFinalize sets the Finalize implementation. It overrides WithResponse.
func (h *FakeHandler) WithFinalize(fn func(ctx context.Context, req teardown.SyncRequest) teardown.FinalizeResponse) *FakeHandler {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.finalizeFunc = fn
	return h
}

// Finalize implements teardown.Handler.
func (h *FakeHandler) Finalize(ctx context.Context, req teardown.SyncRequest) teardown.FinalizeResponse {
	h.mu.Lock()
	h.calls = append(h.calls, req.DeepCopy())
	fn, resp := h.finalizeFunc, h.response
	h.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return resp
}

// Calls returns copies of the requests passed to Finalize.
func (h *FakeHandler) Calls() []teardown.SyncRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	calls := make([]teardown.SyncRequest, len(h.calls))
	copy(calls, h.calls)
	return calls
}

// CallCount returns the number of Finalize calls.
func (h *FakeHandler) CallCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

// ClearCalls resets all call tracking.
func (h *FakeHandler) ClearCalls() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = nil
}

// Verify interface compliance
var _ teardown.Handler = &FakeHandler{}
