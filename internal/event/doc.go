// Package event carries team notifications to observers.
//
// Every state change the team manager makes is emitted as a [Record] through
// an [Emitter]. The [Hub] implementation does two things with each record:
// it appends it to the team's bounded [Queue], which callers drain to see what
// happened since they last looked, and it publishes it on a synchronous [Bus]
// for in-process subscribers such as the presentation adapter.
//
// Queues are in-memory only. They are a recency signal, not a log: draining
// clears them, and a full queue drops its oldest records.
//
// # Thread Safety
//
// [Bus], [Queue] and [Hub] are safe for concurrent use. Bus handlers run
// synchronously on the emitting goroutine and are protected against panics.
//
// # Basic Usage
//
//	hub := event.NewHub(1000, logger)
//	hub.Bus().Subscribe(string(protocol.EventWorkerStarted), func(e event.Event) {
//	    rec := e.(event.Record)
//	    log.Printf("worker %v started", rec.Payload["teammate"])
//	})
//	hub.Emit("demo", protocol.EventWorkerStarted, map[string]any{"teammate": "dev"})
//	for _, rec := range hub.Drain("demo") {
//	    fmt.Println(rec.ID, rec.Type)
//	}
package event
