// Package config loads application configuration from defaults, an optional
// YAML file, and environment variable overrides. Every pipeline limit is
// expressed here so deployments can retune them without code changes.
package config
