// Package config provides application configuration management from environment variables.
//
// # Overview
//
// Configuration is assembled from defaults, an optional YAML file
// (PERMSYNC_CONFIG_FILE), and PERMSYNC_* environment variables, in that
// order. Required service secrets are validated at load time so a
// misconfigured deployment fails immediately with a ConfigurationError
// instead of a downstream backend failure.
//
// # Configuration Structure
//
// Server settings:
//
//	PERMSYNC_HOST="0.0.0.0"
//	PERMSYNC_PORT="8080"
//	PERMSYNC_HEALTH_PORT="9090"
//	PERMSYNC_READ_TIMEOUT="15s"
//	PERMSYNC_WRITE_TIMEOUT="30s"
//
// Report store settings (all required except the admin group):
//
//	PERMSYNC_REPORT_STORE_URL="https://reports.example.com/api"
//	PERMSYNC_SITE_ID="acme"
//	PERMSYNC_SERVICE_ACCOUNT_EMAIL="svc@example.com"
//	PERMSYNC_EMBED_SECRET="..."
//	PERMSYNC_ADMIN_GROUP="Administrators"
//
// Identity store settings (both required):
//
//	PERMSYNC_IDENTITY_STORE_URL="https://auth.example.com"
//	PERMSYNC_IDENTITY_STORE_SERVICE_KEY="..."
//
// Optional subsystems:
//
//	PERMSYNC_REDIS_URL="redis://localhost:6379"  # enables distributed rate limiting
//	PERMSYNC_AUDIT_DB_PATH="permsync-audit.db"
//	PERMSYNC_SWEEP_SCHEDULE="@hourly"            # enables the orphan sweep
//
// Observability settings:
//
//	PERMSYNC_LOG_LEVEL="info"  # debug, info, warn, error
//	PERMSYNC_METRICS_ENABLED="true"
//	PERMSYNC_OTEL_ENABLED="false"
//	PERMSYNC_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
package config
