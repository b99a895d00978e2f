package record

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traffic-router/internal/topic"
)

func TestDecode_Valid(t *testing.T) {
	payload := []byte(`{"sensor_id":"S-1","density":42,"congestion_level":"high","location_x":12.3,"location_y":45.6,"extra":{"a":1}}`)

	evt, err := Decode(topic.TrafficData, payload)
	require.NoError(t, err)
	assert.Equal(t, "S-1", evt["sensor_id"])
	assert.Equal(t, float64(42), evt["density"])
	assert.Equal(t, map[string]interface{}{"a": float64(1)}, evt["extra"])

	x, ok := evt.Float("location_x")
	assert.True(t, ok)
	assert.Equal(t, 12.3, x)
}

func TestDecode_Failures(t *testing.T) {
	tests := []struct {
		name    string
		topic   topic.Topic
		payload string
		field   string
	}{
		{"not json", topic.TrafficData, `{"sensor_id":`, ""},
		{"array", topic.TrafficData, `[1,2,3]`, ""},
		{"scalar", topic.SensorHealth, `"ok"`, ""},
		{"null", topic.SensorHealth, `null`, ""},
		{"wrong common field", topic.TrafficAlerts, `{"sensor_id":7}`, "sensor_id"},
		{"wrong topic field", topic.SensorHealth, `{"battery_level":"full"}`, "battery_level"},
		{"non numeric location", topic.TrafficData, `{"location_x":"12.3"}`, "location_x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.topic, []byte(tt.payload))
			require.Error(t, err)

			var de *DecodeError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, tt.topic.String(), de.Topic)
			assert.Equal(t, tt.field, de.Field)
		})
	}
}

func TestDecode_NullAndUnknownFieldsAllowed(t *testing.T) {
	evt, err := Decode(topic.SensorHealth, []byte(`{"status":null,"firmware":"1.2.0"}`))
	require.NoError(t, err)
	assert.Nil(t, evt["status"])
	assert.Equal(t, "1.2.0", evt["firmware"])

	// unknown topics only need to be an object
	evt, err = Decode(topic.Unknown, []byte(`{"status":3}`))
	require.NoError(t, err)
	assert.Equal(t, float64(3), evt["status"])
}

func TestEvent_CloneDoesNotAlias(t *testing.T) {
	evt := Event{"a": 1.0}
	c := evt.Clone()
	c["b"] = 2.0
	_, ok := evt["b"]
	assert.False(t, ok)
}
