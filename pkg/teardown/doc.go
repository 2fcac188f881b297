// Package teardown implements the finalize path of a parent/child reconciliation
// engine built on top of Kubernetes controller-runtime.
//
// When a parent resource carrying the operator's finalizer is marked for deletion,
// the dispatcher hands one FinalizeTask per parent to a FinalizeRunner. A single
// pass:
//
//   - deletes every owned child that is not already being deleted
//   - if the operator's finalizer is present, runs the user's Handler on a
//     dedicated HandlerPool, patches the parent status if it changed, and removes
//     the finalizer once the handler reports the parent as finalized
//   - emits exactly one completion ResourceMessage, releasing the parent's slot
//     in the dispatcher queue
//
// Failures never escape a pass. They are logged, delayed according to the
// runner's RetryPolicies, and retried when the platform requeues the parent.
//
// # Basic Usage
//
//	config, err := teardown.NewRuntimeConfig("guestbook.example.com/finalizer", parentType, configMapType)
//	if err != nil {
//	    return err
//	}
//
//	pool := teardown.NewHandlerPool(teardown.PoolOptions{Workers: 4, Logger: log})
//	if err := mgr.Add(pool); err != nil {
//	    return err
//	}
//
//	sender := teardown.NewChannelCompletionSender(completions, time.Second)
//	runner := teardown.NewFinalizeRunner(teardown.NewClient(mgr.GetClient()), &MyHandler{}, config, pool, sender, log)
//
//	runner.Spawn(ctx, teardown.FinalizeTask{Request: req, IndexKey: key})
package teardown
