package simulator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"traffic-router/internal/record"
	"traffic-router/internal/topic"
)

type MockProducer struct {
	mock.Mock
	mu     sync.Mutex
	fail   error
	topics []string
}

func (m *MockProducer) Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error {
	args := m.Called(msg, deliveryChan)
	if err := args.Error(0); err != nil {
		return err
	}
	m.mu.Lock()
	m.topics = append(m.topics, *msg.TopicPartition.Topic)
	m.mu.Unlock()

	report := *msg
	report.TopicPartition.Error = m.fail
	deliveryChan <- &report
	return nil
}

func (m *MockProducer) Flush(timeoutMs int) int {
	return m.Called(timeoutMs).Int(0)
}

func (m *MockProducer) Close() {
	m.Called()
}

func TestGenerator_RecordsDecodeForTheirTopic(t *testing.T) {
	g := NewGenerator(5, 42)
	for i := 0; i < 20; i++ {
		for _, tp := range topic.All() {
			evt := g.Record(tp)
			payload, err := record.Encode(evt)
			require.NoError(t, err)

			decoded, err := record.Decode(tp, payload)
			require.NoError(t, err, "topic %s: %s", tp, payload)
			assert.NotEmpty(t, decoded["sensor_id"])

			_, okX := decoded.Float("location_x")
			_, okY := decoded.Float("location_y")
			assert.True(t, okX && okY)
		}
	}
}

func TestGenerator_Deterministic(t *testing.T) {
	a, b := NewGenerator(3, 7), NewGenerator(3, 7)
	for _, tp := range topic.All() {
		ra, rb := a.Record(tp), b.Record(tp)
		delete(ra, "timestamp")
		delete(rb, "timestamp")
		assert.Equal(t, ra, rb)
	}
}

func TestSimulator_PublishBatch(t *testing.T) {
	p := &MockProducer{}
	p.On("Produce", mock.Anything, mock.Anything).Return(nil)

	s := New(p, NewGenerator(2, 1), 0)
	require.NoError(t, s.PublishBatch(context.Background()))

	p.AssertNumberOfCalls(t, "Produce", 5)
	want := make([]string, 0, 5)
	for _, tp := range topic.All() {
		want = append(want, tp.String())
	}
	assert.Equal(t, want, p.topics)
}

func TestSimulator_PublishBatchReportsDeliveryFailures(t *testing.T) {
	p := &MockProducer{fail: kafka.NewError(kafka.ErrMsgTimedOut, "timed out", false)}
	p.On("Produce", mock.Anything, mock.Anything).Return(nil)

	err := New(p, NewGenerator(2, 1), 0).PublishBatch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "5 of 5")
}

func TestSimulator_PublishBatchProduceError(t *testing.T) {
	p := &MockProducer{}
	p.On("Produce", mock.Anything, mock.Anything).Return(errors.New("queue full"))

	err := New(p, NewGenerator(2, 1), 0).PublishBatch(context.Background())
	require.Error(t, err)
	p.AssertNumberOfCalls(t, "Produce", 1)
}
