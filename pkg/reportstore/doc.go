// Package reportstore provides the client and domain types for the reporting
// SaaS backend.
//
// The report store owns users (numeric ids), groups, and permission rows.
// Permissions are created and destroyed atomically; the backend has no
// partial-field update, so an edit is always a delete-then-recreate pair.
// Entity kinds form a closed enumeration and the kind itself determines
// whether a scoping item id is required.
//
// All client calls authenticate with a bearer token from the token broker
// and honor the caller's context deadline.
package reportstore
