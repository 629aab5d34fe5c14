// Package reconcile turns batches of permission edit intents into report
// store calls.
//
// The report store has no partial update for a permission row, so a level
// change is always a delete of the old row followed by creation of a new
// one. Batch items are independent: each is attempted regardless of how its
// neighbors fared, and the aggregate is computed only after every item has
// finished. Callers must read the per-item results to learn what actually
// changed; a partial batch is reported as such, never collapsed into a
// blanket success or failure.
package reconcile
