// Package middleware provides HTTP middleware for the permsync API: CORS,
// request-ID propagation, and Redis-backed distributed rate limiting.
//
// The API is consumed by a browser dashboard served from a different origin,
// so CORS is wide open and every pre-flight OPTIONS request is answered with
// an empty 200. Rate limiting protects the upstream SaaS backends rather
// than permsync itself and fails open when Redis is unavailable.
package middleware
