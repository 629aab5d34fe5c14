// Package provision coordinates user writes across the report store and the
// identity store as a single logical operation.
//
// The two backends are independently owned, so a write can succeed in one
// and fail in the other. The coordinator runs each operation as an explicit
// saga: ordered forward steps with per-step compensations that roll back the
// already-committed steps in reverse when a later step fails. The rollback is
// deliberately asymmetric. The report store is authoritative for "does this
// person have reporting access", the identity store for "can this person log
// in"; inconsistencies are biased toward a login-capable account without
// reporting access (a visible lockout) over a report store record without a
// login (a silent access risk).
//
// A failed compensation never overrides the failure that triggered it; it is
// logged, audited, and surfaced on the result instead. Once the first write
// commits, the saga runs to completion even if the caller's context is
// cancelled.
package provision
