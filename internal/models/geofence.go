package models

import "math"

// GeofenceSide is the last confirmed side of the home region. It starts
// Unknown each time monitoring is armed and only moves to Inside/Outside on a
// confirmed platform region event.
type GeofenceSide int

const (
	SideUnknown GeofenceSide = 0
	SideInside  GeofenceSide = 1
	SideOutside GeofenceSide = -1
)

func (s GeofenceSide) String() string {
	switch s {
	case SideInside:
		return "inside"
	case SideOutside:
		return "outside"
	default:
		return "unknown"
	}
}

// GeofenceEventType mirrors the platform's enter/exit callback types.
type GeofenceEventType string

const (
	GeofenceEnter GeofenceEventType = "enter"
	GeofenceExit  GeofenceEventType = "exit"
)

// Region is a circular monitored region.
type Region struct {
	Identifier   string  `json:"identifier"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters float64 `json:"radius_meters"`
}

const earthRadiusMeters = 6371000

// Contains reports whether the given coordinates fall inside the region,
// using the haversine great-circle distance.
func (r Region) Contains(lat, lon float64) bool {
	phi1 := r.Latitude * math.Pi / 180
	phi2 := lat * math.Pi / 180
	deltaPhi := (lat - r.Latitude) * math.Pi / 180
	deltaLambda := (lon - r.Longitude) * math.Pi / 180

	a := math.Sin(deltaPhi/2)*math.Sin(deltaPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*
			math.Sin(deltaLambda/2)*math.Sin(deltaLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters*c <= r.RadiusMeters
}

// GeofenceEvent is a boundary-crossing report delivered by the platform.
type GeofenceEvent struct {
	Type   GeofenceEventType `json:"type"`
	Region Region            `json:"region"`
}
