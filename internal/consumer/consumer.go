package consumer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/sirupsen/logrus"

	"traffic-router/internal/config"
	"traffic-router/internal/record"
)

// KafkaConsumer is the subset of *kafka.Consumer the loop uses.
type KafkaConsumer interface {
	SubscribeTopics(topics []string, rebalanceCb kafka.RebalanceCb) error
	Poll(timeoutMs int) kafka.Event
	StoreMessage(m *kafka.Message) ([]kafka.TopicPartition, error)
	Close() error
}

// Handler processes one message. It must not fail; the loop advances past
// the message as soon as Handle returns.
type Handler interface {
	Handle(ctx context.Context, env record.Envelope)
}

// FatalError ends the loop. The process is expected to disconnect and exit.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return "fatal consumer error: " + e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// ConfigMap builds the librdkafka settings for the router's consumer group.
// Offsets are stored manually after each message is handled and committed
// in the background, so nothing is acknowledged before it was dispatched.
func ConfigMap(cfg config.KafkaConfig) *kafka.ConfigMap {
	return &kafka.ConfigMap{
		"bootstrap.servers":        strings.Join(cfg.BrokerList(), ","),
		"group.id":                 cfg.GroupID,
		"client.id":                cfg.ClientID,
		"auto.offset.reset":        "earliest",
		"enable.auto.commit":       true,
		"enable.auto.offset.store": false,
	}
}

// NewKafkaConsumer creates a confluent consumer from cfg.
func NewKafkaConsumer(cfg config.KafkaConfig) (*kafka.Consumer, error) {
	c, err := kafka.NewConsumer(ConfigMap(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}
	return c, nil
}

// Loop feeds every message of the subscribed topics to a Handler, one at a
// time, in the order the broker delivers them.
type Loop struct {
	consumer    KafkaConsumer
	topics      []string
	handler     Handler
	pollTimeout int
	brokersDown time.Duration

	running atomic.Bool
	closed  atomic.Bool
}

// New builds a Loop. pollTimeoutMs bounds how long a single Poll blocks,
// which is also how quickly the loop notices cancellation.
func New(c KafkaConsumer, topics []string, h Handler, pollTimeoutMs int) *Loop {
	if pollTimeoutMs <= 0 {
		pollTimeoutMs = 100
	}
	return &Loop{consumer: c, topics: topics, handler: h, pollTimeout: pollTimeoutMs}
}

// SetBrokersDownTimeout makes Run fail with a *FatalError once every broker
// has been reported down for longer than d without a message arriving in
// between. Zero (the default) waits forever.
func (l *Loop) SetBrokersDownTimeout(d time.Duration) {
	l.brokersDown = d
}

// Running reports whether Run is currently consuming.
func (l *Loop) Running() bool { return l.running.Load() }

// Run subscribes and consumes until ctx is cancelled (nil) or the broker
// client reports a fatal error (*FatalError).
func (l *Loop) Run(ctx context.Context) error {
	if err := l.consumer.SubscribeTopics(l.topics, nil); err != nil {
		return &FatalError{Err: fmt.Errorf("failed to subscribe to topics: %w", err)}
	}
	for _, t := range l.topics {
		logrus.Infof("Subscribed to topic: %s", t)
	}

	l.running.Store(true)
	defer l.running.Store(false)

	var downSince time.Time
	for {
		select {
		case <-ctx.Done():
			logrus.Info("Context cancelled, stopping consumption loop")
			return nil
		default:
		}

		if !downSince.IsZero() && l.brokersDown > 0 && time.Since(downSince) > l.brokersDown {
			return &FatalError{Err: fmt.Errorf("all brokers down for more than %s", l.brokersDown)}
		}

		switch ev := l.consumer.Poll(l.pollTimeout).(type) {
		case nil:
			continue
		case *kafka.Message:
			downSince = time.Time{}
			l.dispatch(ctx, ev)
		case kafka.Error:
			if ev.IsFatal() {
				return &FatalError{Err: ev}
			}
			if ev.Code() == kafka.ErrAllBrokersDown && downSince.IsZero() {
				downSince = time.Now()
			}
			logrus.WithField("code", ev.Code().String()).Errorf("Consumer error: %v", ev)
		default:
			logrus.Debugf("Ignored consumer event: %v", ev)
		}
	}
}

func (l *Loop) dispatch(ctx context.Context, msg *kafka.Message) {
	if msg.TopicPartition.Error != nil {
		logrus.Errorf("Consumer delivered a failed message: %v", msg.TopicPartition.Error)
		return
	}

	env := record.Envelope{
		Partition: msg.TopicPartition.Partition,
		Offset:    int64(msg.TopicPartition.Offset),
		Key:       msg.Key,
		Payload:   msg.Value,
	}
	if msg.TopicPartition.Topic != nil {
		env.Topic = *msg.TopicPartition.Topic
	}

	logrus.Debugf("Received message from topic: %s", env.Topic)
	// Shutdown must not abort a message halfway; its offset is stored next.
	l.handler.Handle(context.WithoutCancel(ctx), env)

	if _, err := l.consumer.StoreMessage(msg); err != nil {
		logrus.WithFields(logrus.Fields{"topic": env.Topic, "partition": env.Partition, "offset": env.Offset}).
			Warnf("failed to store offset: %v", err)
	}
}

// ErrCloseTimeout is returned by Close when the broker client did not shut
// down within the allotted time.
var ErrCloseTimeout = errors.New("consumer close timed out")

// Close leaves the group and releases the client, waiting at most timeout.
// It must not be called while Run is still polling. Only the first call
// does anything.
func (l *Loop) Close(timeout time.Duration) error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- l.consumer.Close() }()

	if timeout <= 0 {
		return <-done
	}
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return ErrCloseTimeout
	}
}
