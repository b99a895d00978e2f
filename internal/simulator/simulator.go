package simulator

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/sirupsen/logrus"

	"traffic-router/internal/config"
	"traffic-router/internal/record"
	"traffic-router/internal/topic"
)

// Producer abstracts the confluent producer.
type Producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Flush(timeoutMs int) int
	Close()
}

// NewKafkaProducer creates a confluent producer for the simulator.
func NewKafkaProducer(cfg config.KafkaConfig) (*kafka.Producer, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": strings.Join(cfg.BrokerList(), ","),
		"client.id":         "traffic-simulator",
		"acks":              "all",
		"linger.ms":         5,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}
	return p, nil
}

// Simulator publishes one synthetic record per topic on every tick.
type Simulator struct {
	producer Producer
	gen      *Generator
	interval time.Duration
}

// New builds a Simulator. A non-positive interval defaults to five seconds.
func New(p Producer, gen *Generator, interval time.Duration) *Simulator {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Simulator{producer: p, gen: gen, interval: interval}
}

// Run publishes until ctx is cancelled, then flushes outstanding messages.
func (s *Simulator) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer s.producer.Flush(5000)

	for {
		if err := s.PublishBatch(ctx); err != nil {
			logrus.Errorf("Error in producer: %v", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// PublishBatch produces one record to every known topic and waits for the
// delivery reports.
func (s *Simulator) PublishBatch(ctx context.Context) error {
	topics := topic.All()
	delivery := make(chan kafka.Event, len(topics))

	sent := 0
	for _, t := range topics {
		evt := s.gen.Record(t)
		value, err := record.Encode(evt)
		if err != nil {
			return fmt.Errorf("encode %s: %w", t, err)
		}
		name := t.String()
		key, _ := evt["sensor_id"].(string)
		err = s.producer.Produce(&kafka.Message{
			TopicPartition: kafka.TopicPartition{Topic: &name, Partition: kafka.PartitionAny},
			Key:            []byte(key),
			Value:          value,
		}, delivery)
		if err != nil {
			return fmt.Errorf("produce %s: %w", t, err)
		}
		sent++
	}

	var failed int
	for i := 0; i < sent; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-delivery:
			m, ok := ev.(*kafka.Message)
			if !ok {
				continue
			}
			if m.TopicPartition.Error != nil {
				failed++
				logrus.Warnf("delivery to %s failed: %v", *m.TopicPartition.Topic, m.TopicPartition.Error)
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d messages not delivered", failed, sent)
	}
	logrus.Infof("Traffic data sent | topics=%d", sent)
	return nil
}

// Generator produces plausible telemetry for a fixed set of sensors placed
// around a single intersection.
type Generator struct {
	rnd     *rand.Rand
	sensors int
	now     func() time.Time
}

// NewGenerator builds a Generator for n sensors. The same seed yields the
// same sequence of records.
func NewGenerator(n int, seed int64) *Generator {
	if n <= 0 {
		n = 1
	}
	return &Generator{rnd: rand.New(rand.NewSource(seed)), sensors: n, now: time.Now}
}

// Base coordinates of the simulated deployment (longitude, latitude).
const (
	baseLon = -73.856077
	baseLat = 40.848447
)

func (g *Generator) choice(options ...string) string {
	return options[g.rnd.Intn(len(options))]
}

func (g *Generator) intn(max int) float64 {
	return float64(g.rnd.Intn(max + 1))
}

// Record builds one record shaped for t.
func (g *Generator) Record(t topic.Topic) record.Event {
	sensor := g.rnd.Intn(g.sensors)
	evt := record.Event{
		"sensor_id":  fmt.Sprintf("sensor-%03d", sensor),
		"timestamp":  g.now().UTC().Format(time.RFC3339),
		"location_x": baseLon + float64(sensor)*0.001,
		"location_y": baseLat + float64(sensor)*0.0005,
	}

	switch t {
	case topic.RawVehicleData:
		evt["vehicle_type"] = g.choice("car", "bus", "motorcycle", "truck", "bicycle")
		evt["speed"] = g.intn(80)
		evt["direction"] = g.choice("north", "south", "east", "west")
	case topic.TrafficAlerts:
		evt["alert_type"] = g.choice("congestion", "accident", "roadwork", "wrong_way_vehicle")
		evt["severity"] = g.choice("low", "medium", "high")
		evt["message"] = "automated alert from " + evt["sensor_id"].(string)
	case topic.TrafficData:
		evt["density"] = g.intn(100)
		evt["travel_time"] = g.intn(60)
		evt["vehicle_number"] = g.intn(200)
		evt["speed"] = g.intn(80)
		evt["congestion_level"] = g.choice("low", "medium", "high")
		evt["incident_detected"] = g.rnd.Float64() > 0.8
		evt["weather_conditions"] = g.choice("sunny", "rain", "snow", "fog")
		evt["road_condition"] = g.choice("dry", "wet", "icy")
	case topic.IntersectionData:
		evt["intersection_id"] = fmt.Sprintf("intersection-%02d", sensor%3)
		evt["traffic_light_status"] = g.choice("red", "yellow", "green")
		evt["average_wait_time"] = g.intn(120)
		evt["stopped_vehicles_count"] = g.intn(50)
		evt["queue_length_by_lane"] = map[string]interface{}{
			"lane1": g.intn(20),
			"lane2": g.intn(20),
			"lane3": g.intn(20),
		}
		evt["risky_behavior_detected"] = g.rnd.Float64() > 0.7
	case topic.SensorHealth:
		evt["status"] = g.choice("online", "online", "online", "degraded", "offline")
		evt["battery_level"] = g.intn(100)
		evt["uptime"] = g.intn(86_400)
		evt["temperature"] = 15 + g.intn(25)
	}
	return evt
}
