// Package token acquires and caches the signed service token used for every
// report store call.
//
// The report store issues short-lived bearer tokens through a non-interactive
// embed_secret grant: the request carries a random nonce, a unix timestamp,
// and an HMAC-SHA256 signature over the canonical lowercased message
//
//	embed_nonce=<nonce>&user_email=<email>&timestamp=<ts>
//
// keyed by the shared embed secret. The broker caches the resulting token
// until five minutes before its reported expiry. Concurrent refreshes are
// allowed to race; tokens are interchangeable so the worst case is one
// redundant fetch.
//
// Broker implements oauth2.TokenSource so it composes with standard HTTP
// client plumbing.
package token
