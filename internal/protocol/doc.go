// Package protocol holds the vocabulary shared by every teamwork component:
// status enums, event types, the durable record types for teams, messages,
// work items, board tasks and approval requests, and name/field validation.
//
// The package has no state and no I/O. Stores persist these records as JSON,
// so field tags here are the on-disk format.
package protocol
