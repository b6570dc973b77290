// Package notifications delivers scan events via an ntfy-compatible webhook.
//
// The default implementation posts to the webhook URL configured in
// config.toml and degrades to a no-op when notifications are disabled. The
// scan-complete and error toggles suppress their event families
// independently, so an operator can keep breaker alerts without the
// per-scan chatter.
//
// Extend this package if you need alternative transports; the orchestrator
// depends only on the simple Service interface.
package notifications
