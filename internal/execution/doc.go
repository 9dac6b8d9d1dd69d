// Package execution turns a work item into a result.
//
// The capability that actually performs an instruction is injected as an
// [Executor]. A [Runner] wraps it with the two policies every execution
// shares: a global concurrency bound, so that many teammates do not all call
// the executor at once, and local retries with exponential backoff for
// transient failures such as rate limits and timeouts.
//
// When no Executor is configured the Runner falls back to a [StepLoop]: a
// bounded multi-turn exchange with a [Model] that may call tools through a
// [ToolRunner]. The teammate's tool policy decides which tools the model is
// offered and which calls are refused.
package execution
