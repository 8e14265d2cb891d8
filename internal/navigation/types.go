package navigation

import (
	"fmt"
	"time"
)

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"latitude" validate:"latitude"`
	Lon float64 `json:"longitude" validate:"longitude"`
}

func (p Point) Validate() error {
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: latitude %f", ErrInvalidPoint, p.Lat)
	}
	if p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("%w: longitude %f", ErrInvalidPoint, p.Lon)
	}
	return nil
}

// Sample is one position fix produced by a position source.
type Sample struct {
	Point      Point     `json:"point"`
	Accuracy   float64   `json:"accuracy"`
	CapturedAt time.Time `json:"captured_at"`
}

func (s Sample) Validate() error {
	if err := s.Point.Validate(); err != nil {
		return err
	}
	if s.Accuracy < 0 {
		return fmt.Errorf("invalid accuracy: %f", s.Accuracy)
	}
	if s.CapturedAt.IsZero() {
		return fmt.Errorf("missing capture time")
	}
	return nil
}

// TimestampMillis returns the capture time as milliseconds since the Unix epoch.
func (s Sample) TimestampMillis() int64 {
	return s.CapturedAt.UnixMilli()
}

type Destination struct {
	Point Point `json:"point"`
}

// Route is the path from an origin to the destination, as returned by the
// routing provider. Distance is in meters and Duration in seconds.
type Route struct {
	Polyline []Point `json:"polyline"`
	Distance float64 `json:"distance_meters"`
	Duration float64 `json:"duration_seconds"`
}

// Clone returns a deep copy so readers never share the polyline backing array.
func (r Route) Clone() Route {
	points := make([]Point, len(r.Polyline))
	copy(points, r.Polyline)
	return Route{Polyline: points, Distance: r.Distance, Duration: r.Duration}
}

type Permissions struct {
	Foreground bool `json:"foreground"`
	Background bool `json:"background"`
}

// Thresholds gate delivery of continuous updates. A sample is delivered when
// either threshold is exceeded.
type Thresholds struct {
	MinInterval time.Duration
	MinDistance float64
}

// Subscription is a handle on a continuous delivery of samples.
// Cancel is idempotent. A callback already running when Cancel is called may
// still complete; no new one starts afterwards.
type Subscription interface {
	Cancel()
}
