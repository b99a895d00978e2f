package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"traffic-router/internal/journal"
	"traffic-router/internal/metrics"
	"traffic-router/internal/record"
	"traffic-router/internal/sink"
	"traffic-router/internal/topic"
)

// Recorder receives every message the router failed to deliver.
type Recorder interface {
	Record(journal.Entry) error
}

// Options carries the optional collaborators of a Router.
type Options struct {
	Metrics *metrics.Metrics
	Journal Recorder
}

// Router dispatches broker messages to the sink their topic is routed to.
//
// Handle never fails: malformed payloads, unknown topics and sink failures
// are logged (with the raw payload, for offline replay) and swallowed so the
// consumption loop always moves on to the next message.
type Router struct {
	registry *topic.Registry
	sinks    map[topic.Kind]sink.Sink
	metrics  *metrics.Metrics
	journal  Recorder
	now      func() time.Time
}

// New builds a Router. sinks must hold a Sink for every kind the registry
// routes to; a missing one turns into a logged failure per message.
func New(reg *topic.Registry, sinks map[topic.Kind]sink.Sink, opts Options) *Router {
	return &Router{
		registry: reg,
		sinks:    sinks,
		metrics:  opts.Metrics,
		journal:  opts.Journal,
		now:      time.Now,
	}
}

// Handle decodes, routes and sends one message.
func (r *Router) Handle(ctx context.Context, env record.Envelope) {
	log := logrus.WithFields(logrus.Fields{
		"topic":     env.Topic,
		"partition": env.Partition,
		"offset":    env.Offset,
	})

	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("panic: %v", rec)
			log.WithField("payload", string(env.Payload)).Errorf("Error processing message: %v", err)
			r.fail(env, metrics.OutcomeSinkError, err)
		}
	}()

	dest, ok := r.registry.Resolve(env.Topic)
	if !ok {
		log.Warnf("No route for topic %s, using fallback %s destination %q", env.Topic, dest.Kind, dest.Target)
		r.metrics.Fallback(env.Topic)
	}

	evt, err := record.Decode(dest.Topic, env.Payload)
	if err != nil {
		log.WithField("payload", string(env.Payload)).Errorf("Dropping malformed message: %v", err)
		r.fail(env, metrics.OutcomeDecodeError, err)
		return
	}

	sk, ok := r.sinks[dest.Kind]
	if !ok {
		err := fmt.Errorf("no %s sink configured", dest.Kind)
		log.WithField("payload", string(env.Payload)).Errorf("Error processing message: %v", err)
		r.fail(env, metrics.OutcomeSinkError, err)
		return
	}

	start := time.Now()
	err = sk.Send(ctx, dest, evt)
	r.metrics.SinkDuration(string(dest.Kind), time.Since(start))
	if err != nil {
		fields := logrus.Fields{"payload": string(env.Payload), "target": dest.Target}
		var se *sink.Error
		if errors.As(err, &se) {
			fields["failure"] = se.Kind.String()
		}
		log.WithFields(fields).Errorf("Error sending %s data to %s: %v", env.Topic, dest.Target, err)
		r.fail(env, metrics.OutcomeSinkError, err)
		return
	}

	r.metrics.Message(env.Topic, metrics.OutcomeSuccess)
	log.Debugf("Data sent to %s %q", dest.Kind, dest.Target)
}

func (r *Router) fail(env record.Envelope, outcome string, cause error) {
	r.metrics.Message(env.Topic, outcome)
	if r.journal == nil {
		return
	}
	kind := outcome
	var se *sink.Error
	if errors.As(cause, &se) {
		kind = outcome + ":" + se.Kind.String()
	}
	err := r.journal.Record(journal.Entry{
		Time:      r.now(),
		Topic:     env.Topic,
		Partition: env.Partition,
		Offset:    env.Offset,
		Kind:      kind,
		Err:       cause.Error(),
		Payload:   env.Payload,
	})
	if err != nil {
		logrus.Warnf("failure journal write failed: %v", err)
	}
}
