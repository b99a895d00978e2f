package topic

import "fmt"

// Topic identifies one of the broker topics the router knows how to route.
// The zero value is Unknown, the fallback variant used for any topic name
// that is not part of the closed set below.
type Topic int

const (
	Unknown Topic = iota
	RawVehicleData
	TrafficAlerts
	TrafficData
	IntersectionData
	SensorHealth
)

// known lists every routable topic in subscription order.
var known = []Topic{RawVehicleData, TrafficAlerts, TrafficData, IntersectionData, SensorHealth}

// All returns the routable topics. Unknown is never part of the result.
func All() []Topic {
	out := make([]Topic, len(known))
	copy(out, known)
	return out
}

// Parse maps a broker topic name to its Topic, or Unknown.
func Parse(name string) Topic {
	for _, t := range known {
		if t.String() == name {
			return t
		}
	}
	return Unknown
}

// String returns the broker topic name.
func (t Topic) String() string {
	switch t {
	case RawVehicleData:
		return "raw-vehicle-data"
	case TrafficAlerts:
		return "traffic-alerts"
	case TrafficData:
		return "traffic-data"
	case IntersectionData:
		return "intersection-data"
	case SensorHealth:
		return "sensor-health"
	case Unknown:
		return "unknown"
	}
	return fmt.Sprintf("topic(%d)", int(t))
}

// Endpoint is the path segment the forwarding sink posts this topic to.
func (t Topic) Endpoint() string {
	switch t {
	case RawVehicleData:
		return "vehicle"
	case TrafficAlerts:
		return "alert"
	case TrafficData:
		return "traffic"
	case IntersectionData:
		return "intersection"
	case SensorHealth:
		return "sensor"
	}
	return "unknown"
}

// Collection is the document store collection this topic is persisted to.
func (t Topic) Collection() string {
	switch t {
	case RawVehicleData:
		return "vehicle_records"
	case TrafficAlerts:
		return "alerts"
	case TrafficData:
		return "traffic_metrics"
	case IntersectionData:
		return "intersections"
	case SensorHealth:
		return "sensor_health"
	}
	return "unknown_data"
}
