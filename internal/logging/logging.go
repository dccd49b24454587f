// Package logging wraps logrus with the leveled helpers the rest of
// this module calls into, mirroring the teacher's
// common.LogWarning/common.LogDebug/common.LogError convenience
// functions in flow/flow.go (backed there by a hand-rolled LogType
// bitmask; here by logrus's leveled logger directly, since logrus
// already provides exactly that bitmask-like level filtering).
package logging

import "github.com/sirupsen/logrus"

// SetLevel configures the package-wide logrus level, matching
// common.SetLogType's role at startup.
func SetLevel(level logrus.Level) {
	logrus.SetLevel(level)
}

// Debug logs a debug-level condition — parse stack overflow, a
// dropped packet, a pool running low.
func Debug(msg string, fields logrus.Fields) {
	logrus.WithFields(fields).Debug(msg)
}

// Info logs a routine operational event — startup configuration, a
// run's final tick count.
func Info(msg string, fields logrus.Fields) {
	logrus.WithFields(fields).Info(msg)
}

// Warning logs a recoverable but noteworthy condition.
func Warning(msg string, fields logrus.Fields) {
	logrus.WithFields(fields).Warn(msg)
}

// Error logs an operational failure that does not abort the process.
func Error(msg string, fields logrus.Fields) {
	logrus.WithFields(fields).Error(msg)
}
