// Package supervise watches running conversions for forward progress.
//
// Each conversion gets a Supervisor carrying a stall deadline scaled to the
// job's estimated frame count. Every progress signal resets the deadline; a
// job that goes silent for the full deadline is canceled through the
// supervisor's derived context. Progress is published on a bounded channel
// at a fixed cadence so consumers see a steady stream rather than a
// per-frame flood.
package supervise
