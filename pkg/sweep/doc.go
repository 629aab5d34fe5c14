// Package sweep periodically reconciles the two backends' user populations.
//
// The write path tolerates partial failure on purpose, so over time a user
// can exist in only one backend: a report store record without a login, or a
// login without reporting access. The sweeper enumerates report store users
// on a cron schedule, looks each up in the identity store, and records every
// one-sided account in the audit trail. It never mutates anything; the
// orphans it finds are an operator's decision to resolve.
package sweep
