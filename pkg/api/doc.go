// Package api provides the HTTP surface of the synchronization engine.
//
// Three endpoint families are exposed:
//
//   - POST /auth: resolve a user's synchronization state, admin role, and a
//     report store viewer token for an embedding frontend. An unknown user is
//     a successful response with synced=false, not an error.
//   - POST /users: list report store users enriched with their groups.
//   - GET/POST /user-management: read a user's permission rows and apply
//     management actions (create, update, delete, permission batches).
//     Partially successful batches answer 207 with per-item results.
//
// Every response is JSON, every endpoint is CORS-open for the embedding
// frontend, and failures carry the backend stage where they happened so the
// caller can explain which system is inconsistent. Permission reads go
// through a short-lived per-user snapshot cache scoped to a management
// dialog session; any write for a user drops that user's snapshot.
package api
