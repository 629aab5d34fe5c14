// Package identitystore provides the admin client for the authentication
// and profile backend.
//
// All calls use the service-role key; there are no interactive login flows
// here. Users are created admin-privileged and auto-confirmed with a
// temporary password, and a needs_password_reset profile flag forces a
// credential change on first login. Accounts are keyed by UUID; the email is
// the only join key shared with the report store.
package identitystore
