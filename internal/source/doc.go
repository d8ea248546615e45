// Package source defines conversion requests and validated source
// descriptors. Validation applies its checks in a fixed order and fails fast
// on the first violation; the metadata probe is injected and only runs once
// the cheap size and type checks have passed, so a rejected oversized file
// never initializes a decoder.
package source
