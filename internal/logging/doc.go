// Package logging provides leveled logging configured via the LOG_LEVEL and
// DEBUG environment variables. It wraps the standard library logger so that
// every package in the application logs through a single, consistently
// formatted sink.
package logging
