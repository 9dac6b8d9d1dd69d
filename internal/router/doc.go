// Package router delivers messages between the members of a team.
//
// A [Router] validates a send, expands broadcasts into one message per other
// member, appends a delivered copy of each message to the recipient's durable
// inbox, and tracks the in-memory status of every message it minted:
// pending, then delivered, then processed once the recipient acknowledges it.
// Status never moves backwards.
//
// Routers do not survive a restart. The inbox logs written through the
// [InboxWriter] are the durable record of what was delivered; a router only
// answers questions about messages it sent itself.
package router
