package position

import (
	"supmap-tracking/internal/gis"
	"supmap-tracking/internal/navigation"
)

// Throttle decides which samples of a continuous stream are delivered.
// A sample passes when the time since the last delivered sample reaches
// MinInterval or the distance from it reaches MinDistance, whichever comes first.
// The first sample always passes.
type Throttle struct {
	thresholds navigation.Thresholds
	last       *navigation.Sample
}

func NewThrottle(thresholds navigation.Thresholds) *Throttle {
	return &Throttle{thresholds: thresholds}
}

func (t *Throttle) Accept(sample navigation.Sample) bool {
	if t.last == nil || t.exceeded(sample) {
		t.last = &sample
		return true
	}
	return false
}

func (t *Throttle) exceeded(sample navigation.Sample) bool {
	if sample.CapturedAt.Sub(t.last.CapturedAt) >= t.thresholds.MinInterval {
		return true
	}
	return gis.Haversine(t.last.Point, sample.Point) >= t.thresholds.MinDistance
}
