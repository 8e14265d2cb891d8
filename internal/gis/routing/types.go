package routing

import (
	"errors"
	"fmt"

	"supmap-tracking/internal/navigation"
)

type RouteRequest struct {
	Locations []LocationRequest `json:"locations"`
	Costing   Costing           `json:"costing"`
}

func (r RouteRequest) Validate() error {
	if len(r.Locations) < 2 {
		return errors.New("at least 2 locations must be provided")
	}
	if !r.Costing.IsValid() {
		return fmt.Errorf("costing %q is invalid", r.Costing)
	}
	return nil
}

type LocationRequest struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type Costing string

const (
	CostingAuto         Costing = "auto"
	CostingBicycle      Costing = "bicycle"
	CostingTruck        Costing = "truck"
	CostingMotorScooter Costing = "motor_scooter"
	CostingPedestrian   Costing = "pedestrian"
)

func (c Costing) IsValid() bool {
	switch c {
	case CostingAuto, CostingBicycle, CostingTruck, CostingMotorScooter, CostingPedestrian:
		return true
	default:
		return false
	}
}

// Response specific

type RouteResponse struct {
	Data    []Trip `json:"data"`
	Message string `json:"message"`
}

type Trip struct {
	Legs    []Leg   `json:"legs"`
	Summary Summary `json:"summary"`
}

// Summary holds the trip totals: Length in meters, Time in seconds.
type Summary struct {
	Time   float64 `json:"time"`
	Length float64 `json:"length"`
}

type Leg struct {
	Summary Summary            `json:"summary"`
	Shape   []navigation.Point `json:"shape"`
}

// toRoute flattens the legs into one polyline. Consecutive legs share their
// junction point, which is kept once.
func (t Trip) toRoute() (navigation.Route, error) {
	var polyline []navigation.Point
	for _, leg := range t.Legs {
		for i, p := range leg.Shape {
			if i == 0 && len(polyline) > 0 && polyline[len(polyline)-1] == p {
				continue
			}
			if err := p.Validate(); err != nil {
				return navigation.Route{}, fmt.Errorf("%w: malformed geometry: %v", navigation.ErrRouteLookup, err)
			}
			polyline = append(polyline, p)
		}
	}
	if len(polyline) == 0 {
		return navigation.Route{}, fmt.Errorf("%w: empty geometry", navigation.ErrRouteLookup)
	}
	if t.Summary.Length < 0 || t.Summary.Time < 0 {
		return navigation.Route{}, fmt.Errorf("%w: negative summary (length %f, time %f)",
			navigation.ErrRouteLookup, t.Summary.Length, t.Summary.Time)
	}
	return navigation.Route{
		Polyline: polyline,
		Distance: t.Summary.Length,
		Duration: t.Summary.Time,
	}, nil
}
