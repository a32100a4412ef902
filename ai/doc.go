// Package ai provides the synchronous embedding path. It is the slow
// fallback to the batch pipeline: each call computes vectors inline instead
// of registering an asynchronous job, and it shares no state with the
// orchestrator or its ledger.
package ai
