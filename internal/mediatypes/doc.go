// Package mediatypes defines the allow-list of video formats accepted as
// conversion sources, and helpers for extension/MIME-type consistency checks
// used by source validation.
package mediatypes
