// Package observability provides structured logging, Prometheus metrics, health
// checks, and optional OpenTelemetry tracing for permsync.
//
// # Structured Logging
//
// Create a logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("email", email).Info("user provisioned")
//
// Loggers flow through context so handlers and the provisioning saga share
// request-scoped fields (request_id, user_id):
//
//	logger := observability.FromContext(ctx)
//
// # Prometheus Metrics
//
// Metrics cover the HTTP surface plus the domain: token refreshes, backend
// calls by store and operation, provisioning outcomes by stage, compensation
// failures, and permission batch items. Compensation failures get a dedicated
// counter because each one is an operator-visible inconsistency between the
// two backends.
//
// # Health Checks
//
// The health server exposes /healthz (liveness) and /readyz (readiness with
// dependency detail). The audit database is a hard dependency; Redis is soft
// because rate limiting fails open.
package observability
