// Package llm provides an OpenAI-compatible chat client for AI-assisted
// metadata decisions.
//
// This package is used by:
//   - Edition selector: pick the best edition inside a duplicate group
//   - Metadata resolution: last-resort album disambiguation with web context
//
// # Configuration
//
// Requires api_key and model; base_url, referer, title, and timeout are
// optional. Without an API key the client reports itself unconfigured and
// callers downgrade to detect-only behaviour instead of guessing.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.CompleteJSON: send system/user prompts, receive a JSON response.
// Client.CompleteText: send system/user prompts, receive a bare text line
// (pipe-delimited answer contracts), with code fences already stripped.
// Client.HealthCheck: verify API key and model availability before a scan.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors, network timeouts, and
// empty-content responses with exponential backoff (base 1s, max 10s, up to
// 5 attempts by default), honoring Retry-After when the server sends one.
// Context cancellation aborts retries immediately.
package llm
