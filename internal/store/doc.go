// Package store persists teams, teammate inboxes and work items under a
// teams root directory, one directory per team:
//
//	<root>/<team>/config.json
//	<root>/<team>/.config.lock/
//	<root>/<team>/inboxes/<member>.jsonl
//	<root>/<team>/inboxes/<member>.lock/
//	<root>/<team>/work_items/<owner>.jsonl
//	<root>/<team>/work_items/<owner>.lock/
//
// Every mutation holds the matching dirlock. Inbox and work-item logs are
// JSONL files; appends use O_APPEND and rewrites go through a temp file and
// rename so readers never observe a half-written file.
package store
