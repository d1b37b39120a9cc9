package rewind

import (
	"driftpursuit/rewind/internal/history"
	"driftpursuit/rewind/internal/logging"
)

const (
	// MinCaptureInterval is the floor applied to capture intervals.
	MinCaptureInterval = 1.0 / 120.0
	// DefaultCaptureInterval records at 30 Hz.
	DefaultCaptureInterval = 1.0 / 30.0
	// DefaultRetentionWindow keeps ten seconds of history.
	DefaultRetentionWindow = history.DefaultRetentionWindow
)

// Config enumerates every per-entity tunable of an engine.
type Config struct {
	// CaptureInterval is the minimum simulated time between two recorded snapshots, in seconds.
	CaptureInterval float64
	// RetentionWindow is how many seconds of history the buffer keeps.
	RetentionWindow float64
	// RecordVelocityAndMode also captures velocity and movement mode when the entity exposes them.
	RecordVelocityAndMode bool
	// PauseAnimationDuringScrub is advisory for the presentation layer; the engine never touches animation.
	PauseAnimationDuringScrub bool
}

// DefaultConfig returns the character defaults.
func DefaultConfig() Config {
	return Config{
		CaptureInterval:           DefaultCaptureInterval,
		RetentionWindow:           DefaultRetentionWindow,
		RecordVelocityAndMode:     true,
		PauseAnimationDuringScrub: true,
	}
}

// normalize clamps invalid values instead of failing, logging each adjustment.
func (c Config) normalize(logger *logging.Logger) Config {
	//1.- A continuously running simulation cannot abort on bad tuning, so fall back to the minimum.
	if !(c.CaptureInterval >= MinCaptureInterval) {
		logger.Warn("capture interval below minimum; clamping",
			logging.Float64("requested", c.CaptureInterval),
			logging.Float64("applied", MinCaptureInterval))
		c.CaptureInterval = MinCaptureInterval
	}
	//2.- The window must hold at least two captures for interpolation to be meaningful.
	if !(c.RetentionWindow > 0) {
		logger.Warn("retention window must be positive; using default",
			logging.Float64("requested", c.RetentionWindow),
			logging.Float64("applied", DefaultRetentionWindow))
		c.RetentionWindow = DefaultRetentionWindow
	}
	if c.RetentionWindow < c.CaptureInterval {
		logger.Warn("retention window shorter than capture interval; widening",
			logging.Float64("requested", c.RetentionWindow),
			logging.Float64("applied", c.CaptureInterval))
		c.RetentionWindow = c.CaptureInterval
	}
	return c
}
