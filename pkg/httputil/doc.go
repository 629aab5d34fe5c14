// Package httputil provides JSON request/response helpers shared by the API
// handlers.
//
// Responses follow one shape: {"success": bool, ...} on success and
// {"success": false, "error": "..."} on failure, so the embedding frontend
// can treat every endpoint uniformly. WriteMultiStatus answers 207 for
// permission batches where some items succeeded and some failed.
//
// Request helpers parse JSON bodies and query parameters:
//
//	var req ManagementRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // error response already written
//	}
//	userID, err := httputil.ParseQueryInt64(r, "userId", 0)
package httputil
