// Package config loads, normalizes, and validates the engine's TOML
// configuration.
//
// Load resolves the config path (explicit flag, DEADWAX_CONFIG, the default
// user location, then a project-local deadwax.toml), applies defaults for
// every omitted key, expands ~ in paths, and validates cross-field
// constraints before any component starts.
package config
