// Package taskboard stores a team's shared, dependency-aware task board.
//
// Each team board is a directory under the tasks root holding one JSON file
// per task, a _meta.json id counter and a .board.lock directory lock. Every
// mutation (id minting, edge maintenance, claims) runs under the board lock,
// so concurrent claimers in any number of goroutines or processes never win
// the same task.
//
// Dependencies are pairwise: blocked_by on one side, blocks on the other,
// always written together. Completing a task removes its id from every other
// task's blocked_by in the same locked operation.
package taskboard
