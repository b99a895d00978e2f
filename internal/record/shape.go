package record

import (
	"fmt"

	"traffic-router/internal/topic"
)

type fieldType int

const (
	stringField fieldType = iota
	numberField
	boolField
	objectField
)

func (f fieldType) String() string {
	switch f {
	case stringField:
		return "string"
	case numberField:
		return "number"
	case boolField:
		return "bool"
	case objectField:
		return "object"
	}
	return "value"
}

func (f fieldType) matches(v interface{}) bool {
	switch f {
	case stringField:
		_, ok := v.(string)
		return ok
	case numberField:
		_, ok := v.(float64)
		return ok
	case boolField:
		_, ok := v.(bool)
		return ok
	case objectField:
		_, ok := v.(map[string]interface{})
		return ok
	}
	return false
}

// shape lists the typed fields a topic's records may carry. Fields are
// optional, but when present (and not null) they must have the listed type.
type shape map[string]fieldType

var common = shape{
	"sensor_id":  stringField,
	"location_x": numberField,
	"location_y": numberField,
}

var shapes = map[topic.Topic]shape{
	topic.RawVehicleData: {
		"vehicle_type": stringField,
		"speed":        numberField,
		"direction":    stringField,
	},
	topic.TrafficAlerts: {
		"alert_type": stringField,
		"severity":   stringField,
		"message":    stringField,
	},
	topic.TrafficData: {
		"density":           numberField,
		"vehicle_number":    numberField,
		"congestion_level":  stringField,
		"incident_detected": boolField,
	},
	topic.IntersectionData: {
		"intersection_id":         stringField,
		"traffic_light_status":    stringField,
		"average_wait_time":       numberField,
		"queue_length_by_lane":    objectField,
		"risky_behavior_detected": boolField,
	},
	topic.SensorHealth: {
		"status":        stringField,
		"battery_level": numberField,
		"uptime":        numberField,
	},
}

func shapeOf(t topic.Topic) shape {
	return shapes[t]
}

func (s shape) check(evt Event) *DecodeError {
	for _, fields := range []shape{common, s} {
		for name, want := range fields {
			v, ok := evt[name]
			if !ok || v == nil {
				continue
			}
			if !want.matches(v) {
				return &DecodeError{Field: name, Err: fmt.Errorf("want %s, got %T", want, v)}
			}
		}
	}
	return nil
}
