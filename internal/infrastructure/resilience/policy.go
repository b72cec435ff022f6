package resilience

import "time"

type Config struct {
	// FailureRatio trips the breaker when the rolling-window failure rate
	// reaches it, once MinObservations samples have been recorded.
	FailureRatio    float64
	MinObservations int
	Window          time.Duration

	OpenTimeout      time.Duration
	SuccessThreshold int
	HalfOpenMaxCalls int

	// Adaptive mode lowers the effective failure ratio while the window
	// already holds many failures, isolating a struggling dependency
	// faster on its second wave of errors.
	Adaptive          bool
	AdaptiveTrigger   int
	AdaptiveReduction float64
	MinFailureRatio   float64
}

func DefaultConfig() Config {
	return Config{
		FailureRatio:    0.5,
		MinObservations: 5,
		Window:          60 * time.Second,

		OpenTimeout:      30 * time.Second,
		SuccessThreshold: 3,
		HalfOpenMaxCalls: 1,

		Adaptive:          true,
		AdaptiveTrigger:   10,
		AdaptiveReduction: 0.2,
		MinFailureRatio:   0.25,
	}
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	if out.FailureRatio <= 0 || out.FailureRatio > 1 {
		out.FailureRatio = def.FailureRatio
	}
	if out.MinObservations <= 0 {
		out.MinObservations = def.MinObservations
	}
	if out.Window <= 0 {
		out.Window = def.Window
	}
	if out.OpenTimeout <= 0 {
		out.OpenTimeout = def.OpenTimeout
	}
	if out.SuccessThreshold <= 0 {
		out.SuccessThreshold = def.SuccessThreshold
	}
	if out.HalfOpenMaxCalls <= 0 {
		out.HalfOpenMaxCalls = def.HalfOpenMaxCalls
	}
	if out.AdaptiveTrigger <= 0 {
		out.AdaptiveTrigger = def.AdaptiveTrigger
	}
	if out.AdaptiveReduction <= 0 || out.AdaptiveReduction >= 1 {
		out.AdaptiveReduction = def.AdaptiveReduction
	}
	if out.MinFailureRatio <= 0 || out.MinFailureRatio > out.FailureRatio {
		out.MinFailureRatio = min(def.MinFailureRatio, out.FailureRatio)
	}
	return out
}
