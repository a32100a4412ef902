// Package core defines the domain model shared by every stage of the batch
// embedding pipeline: collections and their schemas, pending items, chunk
// descriptors, batch jobs with their status state machine, and the request
// token that correlates an external result line back to a source row.
package core
