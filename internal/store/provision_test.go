package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"traffic-router/internal/topic"
)

type MockCollection struct {
	mock.Mock
}

func (m *MockCollection) Name() string {
	return m.Called().String(0)
}

func (m *MockCollection) HasDocuments(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockCollection) CreateIndex(ctx context.Context, spec IndexSpec) error {
	return m.Called(ctx, spec).Error(0)
}

func (m *MockCollection) InsertOne(ctx context.Context, doc interface{}) error {
	return m.Called(ctx, doc).Error(0)
}

func TestProvisioner_EmptyCollectionCreatesAllIndexes(t *testing.T) {
	coll := &MockCollection{}
	coll.On("Name").Return("traffic_metrics")
	coll.On("HasDocuments", mock.Anything).Return(false, nil)
	coll.On("CreateIndex", mock.Anything, mock.Anything).Return(nil)

	err := NewProvisioner(nil).Ensure(context.Background(), coll, topic.TrafficData)
	require.NoError(t, err)

	coll.AssertNumberOfCalls(t, "CreateIndex", len(IndexesFor(topic.TrafficData)))
	for _, spec := range IndexesFor(topic.TrafficData) {
		coll.AssertCalled(t, "CreateIndex", mock.Anything, spec)
	}
}

func TestProvisioner_PopulatedCollectionIsSkipped(t *testing.T) {
	coll := &MockCollection{}
	coll.On("Name").Return("alerts")
	coll.On("HasDocuments", mock.Anything).Return(true, nil)

	p := NewProvisioner(nil)
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Ensure(context.Background(), coll, topic.TrafficAlerts))
	}
	coll.AssertNotCalled(t, "CreateIndex", mock.Anything, mock.Anything)
}

func TestProvisioner_FailedIndexDoesNotStopOthers(t *testing.T) {
	specs := IndexesFor(topic.SensorHealth)
	require.Len(t, specs, 2)

	coll := &MockCollection{}
	coll.On("Name").Return("sensor_health")
	coll.On("HasDocuments", mock.Anything).Return(false, nil)
	coll.On("CreateIndex", mock.Anything, specs[0]).Return(errors.New("not primary"))
	coll.On("CreateIndex", mock.Anything, specs[1]).Return(nil)

	err := NewProvisioner(nil).Ensure(context.Background(), coll, topic.SensorHealth)
	require.Error(t, err)
	assert.Contains(t, err.Error(), specs[0].Name())
	coll.AssertNumberOfCalls(t, "CreateIndex", 2)
}

func TestProvisioner_ProbeFailureStillProvisions(t *testing.T) {
	coll := &MockCollection{}
	coll.On("Name").Return("intersections")
	coll.On("HasDocuments", mock.Anything).Return(false, errors.New("timeout"))
	coll.On("CreateIndex", mock.Anything, mock.Anything).Return(nil)

	err := NewProvisioner(nil).Ensure(context.Background(), coll, topic.IntersectionData)
	assert.Error(t, err)
	coll.AssertNumberOfCalls(t, "CreateIndex", len(IndexesFor(topic.IntersectionData)))
}

// countingCollection emulates create-if-absent server semantics.
type countingCollection struct {
	mu      sync.Mutex
	indexes map[string]int
	docs    int
}

func (c *countingCollection) Name() string { return "traffic_metrics" }

func (c *countingCollection) HasDocuments(context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.docs > 0, nil
}

func (c *countingCollection) CreateIndex(_ context.Context, spec IndexSpec) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.indexes[spec.Name()]++
	return nil
}

func (c *countingCollection) InsertOne(context.Context, interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs++
	return nil
}

func TestProvisioner_ConcurrentCallersConverge(t *testing.T) {
	coll := &countingCollection{indexes: make(map[string]int)}
	p := NewProvisioner(nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, p.Ensure(context.Background(), coll, topic.TrafficData))
		}()
	}
	wg.Wait()

	assert.Len(t, coll.indexes, len(IndexesFor(topic.TrafficData)))
}

func TestIndexesFor(t *testing.T) {
	for _, tp := range append(topic.All(), topic.Unknown) {
		specs := IndexesFor(tp)
		assert.NotEmpty(t, specs, tp.String())
		names := make(map[string]bool)
		for _, s := range specs {
			assert.False(t, names[s.Name()], "duplicate index %s on %s", s.Name(), tp)
			names[s.Name()] = true
		}
	}

	traffic := IndexesFor(topic.TrafficData)
	assert.Equal(t, "location_2dsphere_sensor_id_1", traffic[0].Name())
}

func TestIndexModel(t *testing.T) {
	m := indexModel(IndexSpec{Keys: []IndexKey{{"location", Geo2DSphere}, {"sensor_id", Ascending}, {ReceivedAtField, Descending}}})
	assert.Equal(t, bson.D{
		{Key: "location", Value: "2dsphere"},
		{Key: "sensor_id", Value: 1},
		{Key: "received_at", Value: -1},
	}, m.Keys)
	require.NotNil(t, m.Options)
	require.NotNil(t, m.Options.Name)
	assert.Equal(t, "location_2dsphere_sensor_id_1_received_at_-1", *m.Options.Name)
}

func TestIsIndexExists(t *testing.T) {
	assert.False(t, isIndexExists(nil))
	assert.False(t, isIndexExists(errors.New("boom")))
	assert.True(t, isIndexExists(mongo.CommandError{Code: codeIndexOptionsConflict, Message: "conflict"}))
	assert.True(t, isIndexExists(fmt.Errorf("create: %w", mongo.CommandError{Code: codeIndexKeySpecsConflict})))
	assert.False(t, isIndexExists(mongo.CommandError{Code: 11000}))
}
