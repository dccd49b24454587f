// Package config defines the pipeline tuning knobs an ambient CLI
// entrypoint wires up before constructing a pipeline, grounded in the
// teacher's flow.Config / flow.SystemInit (flow/flow.go). The NIC
// driver/DPDK-specific fields from the teacher's Config (HWTXChecksum,
// MbufCacheSize, DPDKArgs, scheduler core pinning) have no equivalent
// here since the driver and scheduler are out of this module's scope
// (spec.md §1); what remains are the knobs the core itself actually
// consumes: ring/burst sizing, parse stack depth, and log level.
package config

import "github.com/sirupsen/logrus"

// Config holds the tunables applied before a pipeline is
// constructed.
type Config struct {
	// RingCapacity is the mbuf pool size and the capacity of the
	// ioiface.Ring the pipeline reads from. Default 256 if zero.
	RingCapacity int
	// BurstSize is how many mbufs a single Recv/Send call moves at
	// once. Default 32 if zero, matching the teacher's burstSize.
	BurstSize int
	// MbufCapacity is the per-mbuf payload capacity (excluding
	// headroom). Default 2048 if zero.
	MbufCapacity int
	// StackSize is the parse-stack depth every packet.NewStack call
	// uses. Default packet.DefaultStackSize if zero.
	StackSize int
	// LogLevel configures the package-wide logrus level. Default
	// logrus.InfoLevel if unset (zero value).
	LogLevel logrus.Level
}

const (
	defaultRingCapacity = 256
	defaultBurstSize    = 32
	defaultMbufCapacity = 2048
	defaultStackSize    = 4
)

// WithDefaults returns a copy of c with zero fields filled from the
// defaults above, matching SystemInit's "if args.X != 0" pattern.
func (c Config) WithDefaults() Config {
	if c.RingCapacity == 0 {
		c.RingCapacity = defaultRingCapacity
	}
	if c.BurstSize == 0 {
		c.BurstSize = defaultBurstSize
	}
	if c.MbufCapacity == 0 {
		c.MbufCapacity = defaultMbufCapacity
	}
	if c.StackSize == 0 {
		c.StackSize = defaultStackSize
	}
	if c.LogLevel == 0 {
		c.LogLevel = logrus.InfoLevel
	}
	return c
}
