// Package dirlock implements cross-process mutual exclusion on a shared
// filesystem using atomic directory creation.
//
// A lock is held while its directory exists. Acquirers retry on a fixed
// interval until a deadline and fail with a TIMEOUT error rather than
// blocking forever. A lock directory whose modification time is older than
// the staleness threshold is assumed to belong to a crashed holder and is
// removed before the next attempt.
//
// Each lock directory carries an owner file with a random token so a holder
// whose lock was reclaimed never removes its successor's lock on Release.
package dirlock
