// Package teardowntest provides testing utilities for finalize handlers and
// runners.
//
// The package makes it easy to drive finalize passes without a Kubernetes
// cluster: objects live in an in-memory FakeClient that applies the JSON and
// merge patches a pass sends.
//
// # Basic Usage
//
//	func TestMyHandler_Finalize(t *testing.T) {
//	    parent := teardowntest.NewObject(guestbookType, "default", "gb",
//	        teardowntest.WithFinalizers("guestbook.example.com/finalizer"),
//	        teardowntest.Deleting(),
//	    )
//	    c := teardowntest.NewFakeClient(parent)
//	    sender := teardowntest.NewRecordingSender()
//
//	    runner := teardown.NewFinalizeRunner(c, &MyHandler{}, config, pool, sender, logr.Discard())
//	    runner.Finalize(ctx, teardown.FinalizeTask{Request: teardown.SyncRequest{Parent: parent}, IndexKey: "gb"})
//
//	    parentType := config.ParentType()
//	    teardowntest.AssertFinalizers(t, c, &parentType, teardowntest.ID(parent))
//	    teardowntest.AssertCompletion(t, sender.Messages()[0], teardowntest.ID(parent), "gb")
//	}
//
// # Fake Client
//
// Errors can be injected per operation:
//
//	c := teardowntest.NewFakeClient(parent, child).
//	    WithDeleteErrorFor(teardowntest.ID(child), errors.New("connection refused")).
//	    WithConflicts(1)
//
// # Test Handlers
//
//	handler := teardowntest.NewFakeHandler().
//	    WithResponse(teardown.FinalizeResponse{Status: map[string]interface{}{"phase": "Draining"}})
package teardowntest
