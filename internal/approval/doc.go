// Package approval tracks plan approval requests for gated teammates.
//
// A teammate whose tool policy requires plan approval does not execute a
// board task it claims. Instead a request is opened on the [Gate] and stays
// pending until a response arrives for the same (team, teammate) pair. The
// teammate's worker then claims the decided request exactly once through
// [Gate.ClaimNextApproved] or [Gate.ClaimNextRejected] and acts on it.
//
// Requests live in memory only; a restart forgets them and the underlying
// board task is released back to the board by crash recovery.
//
// # Usage
//
//	gate := approval.NewGate(approval.WithEmitter(hub))
//	req := gate.CreateRequest("demo", "dev", "3", "migrate schema")
//
//	// A response for the wrong teammate is ignored.
//	gate.ApplyResponse("demo", "dev", req.RequestID, true, "go ahead")
//
//	if req, ok := gate.ClaimNextApproved("demo", "dev"); ok {
//	    // execute task req.TaskID
//	}
//
// # Thread Safety
//
// All methods on [Gate] are safe for concurrent use via an internal mutex.
package approval
