package store

import (
	"strings"

	"traffic-router/internal/topic"
)

// IndexKind is the ordering or type of a single index key.
type IndexKind int

const (
	Ascending IndexKind = iota
	Descending
	Geo2DSphere
)

// IndexKey is one field of an index.
type IndexKey struct {
	Field string
	Kind  IndexKind
}

// IndexSpec describes a secondary index. Keys are ordered; a spec with more
// than one key is a compound index.
type IndexSpec struct {
	Keys []IndexKey
}

// Name returns the default server-side name for the index, e.g.
// "location_2dsphere_sensor_id_1".
func (s IndexSpec) Name() string {
	parts := make([]string, 0, len(s.Keys)*2)
	for _, k := range s.Keys {
		parts = append(parts, k.Field)
		switch k.Kind {
		case Descending:
			parts = append(parts, "-1")
		case Geo2DSphere:
			parts = append(parts, "2dsphere")
		default:
			parts = append(parts, "1")
		}
	}
	return strings.Join(parts, "_")
}

func asc(field string) IndexSpec  { return IndexSpec{Keys: []IndexKey{{field, Ascending}}} }
func desc(field string) IndexSpec { return IndexSpec{Keys: []IndexKey{{field, Descending}}} }

func geo(field string) IndexSpec {
	return IndexSpec{Keys: []IndexKey{{"location", Geo2DSphere}, {field, Ascending}}}
}

// ReceivedAtField is the receipt timestamp the storage sink adds to every
// document.
const ReceivedAtField = "received_at"

// IndexesFor returns the secondary indexes provisioned for a topic's
// collection.
func IndexesFor(t topic.Topic) []IndexSpec {
	switch t {
	case topic.RawVehicleData:
		return []IndexSpec{asc("sensor_id"), asc("vehicle_type"), desc(ReceivedAtField)}
	case topic.TrafficAlerts:
		return []IndexSpec{asc("sensor_id"), asc("alert_type"), asc("severity")}
	case topic.TrafficData:
		return []IndexSpec{geo("sensor_id"), asc("sensor_id"), asc("congestion_level")}
	case topic.IntersectionData:
		return []IndexSpec{geo("intersection_id"), asc("intersection_id"), asc("traffic_light_status")}
	case topic.SensorHealth:
		return []IndexSpec{asc("sensor_id"), asc("status")}
	}
	return []IndexSpec{desc(ReceivedAtField)}
}
