package record

import (
	"fmt"

	"github.com/bytedance/sonic"

	"traffic-router/internal/topic"
)

// Envelope is one message as delivered by the broker. The payload stays
// opaque until the router decodes it.
type Envelope struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Payload   []byte
}

// Event is a decoded telemetry record. Keys are field names as sent by the
// producer; values are whatever the JSON decoder produced for them.
type Event map[string]interface{}

// Clone returns a shallow copy so callers can add fields without touching
// the original.
func (e Event) Clone() Event {
	out := make(Event, len(e)+2)
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Float returns the numeric value stored under key.
func (e Event) Float(key string) (float64, bool) {
	switch v := e[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// DecodeError reports a payload that is not a well-formed record for its
// topic. The payload is immutable, so redelivery would fail the same way.
type DecodeError struct {
	Topic string
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("decode %s: field %q: %v", e.Topic, e.Field, e.Err)
	}
	return fmt.Sprintf("decode %s: %v", e.Topic, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

var codec = sonic.ConfigStd

// Decode parses payload as a JSON object and checks it against the record
// shape of t. Fields outside the shape are kept as-is.
func Decode(t topic.Topic, payload []byte) (Event, error) {
	var evt Event
	if err := codec.Unmarshal(payload, &evt); err != nil {
		return nil, &DecodeError{Topic: t.String(), Err: err}
	}
	if evt == nil {
		return nil, &DecodeError{Topic: t.String(), Err: fmt.Errorf("payload is not a JSON object")}
	}
	if err := shapeOf(t).check(evt); err != nil {
		err.Topic = t.String()
		return nil, err
	}
	return evt, nil
}

// Encode marshals an event back to JSON.
func Encode(evt Event) ([]byte, error) {
	return codec.Marshal(evt)
}
