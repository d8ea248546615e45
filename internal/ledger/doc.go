// Package ledger records the outcome of every conversion, successful or
// failed, in an embedded Pebble store keyed by job ID. The server consults
// it to answer job status queries after the in-memory job has been reaped.
package ledger
