// Package team is the control plane for teams of autonomous workers.
//
// The central type is [Manager], a façade over the durable store, the task
// board, the message router, the plan approval gate, the worker supervisor
// and the execution runner:
//
//   - [Manager.CreateTeam] and [Manager.SpawnTeammate] persist members and
//     start one worker per non-lead teammate.
//   - [Manager.SendMessage] delivers messages; workers drain their inboxes,
//     turning messages into work items and acknowledging them.
//   - [Manager.FanoutWork] assigns explicit work items, and
//     [Manager.CollectWork] reports on them.
//   - [Manager.CreateTask] posts to the shared board, from which idle
//     workers claim tasks on their own.
//   - Teammates whose policy requires plan approval open a request instead
//     of executing a claimed task; [Manager.RespondPlanApproval] decides it.
//   - [Manager.ExportState] and [Manager.ImportState] carry a team's
//     runtime picture across a restart.
//
// # Worker Poll
//
// Every poll does the first of these that finds something to do:
//
//  1. drain and acknowledge new inbox messages;
//  2. execute the oldest queued work item;
//  3. resume or drop a decided plan approval, or claim a board task.
//
// # Respawn
//
// Idle workers retire after the idle timeout. Any new assignment (fanout,
// retry, a message, a board post, or a change written by another process and
// seen by [Manager.WatchExternalChanges]) starts the teammate's worker again.
package team
