// Package worker runs one background polling loop per teammate.
//
// A [Worker] moves through starting, active, idle and stopped. Each tick it
// calls its [PollFunc]; a poll that did work keeps it active and polls again
// immediately, a poll that did nothing makes it idle and it sleeps for the
// poll interval. An idle worker whose last activity is older than the idle
// timeout retires itself.
//
// The [Supervisor] is the registry keyed by (team, teammate). It guarantees
// at most one live worker per key: starting a key that already has a live
// worker is a no-op, and starting a key whose worker is on its way out
// schedules a replacement for the moment the old loop returns.
//
// Stopping is cooperative. A stop request is observed between polls, so a
// poll already executing a work item always runs to completion.
package worker
