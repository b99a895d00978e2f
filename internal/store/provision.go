package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"traffic-router/internal/metrics"
	"traffic-router/internal/topic"
)

// Provisioner creates the secondary indexes of a collection the first time
// data arrives for it.
//
// An empty collection is taken as "not provisioned yet". The probe only
// saves round trips: CreateIndex is create-if-absent, so two processes that
// both see an empty collection and provision it concurrently end up with the
// same indexes.
type Provisioner struct {
	metrics *metrics.Metrics
}

// NewProvisioner builds a Provisioner. m may be nil.
func NewProvisioner(m *metrics.Metrics) *Provisioner {
	return &Provisioner{metrics: m}
}

// Ensure provisions coll with the indexes of t unless it already holds
// documents. A failed probe falls through to Create.
func (p *Provisioner) Ensure(ctx context.Context, coll Collection, t topic.Topic) error {
	populated, err := coll.HasDocuments(ctx)
	if err != nil {
		logrus.WithField("collection", coll.Name()).
			Warnf("document probe failed, provisioning indexes regardless: %v", err)
	}
	if populated {
		return nil
	}

	cerr := p.Create(ctx, coll, t)
	if err != nil {
		return errors.Join(fmt.Errorf("probe: %w", err), cerr)
	}
	return cerr
}

// Create creates every index of t on coll without probing first. A failed
// index does not stop the remaining ones; all failures are returned joined.
func (p *Provisioner) Create(ctx context.Context, coll Collection, t topic.Topic) error {
	log := logrus.WithFields(logrus.Fields{"collection": coll.Name(), "topic": t.String()})

	var errs []error
	for _, spec := range IndexesFor(t) {
		if err := coll.CreateIndex(ctx, spec); err != nil {
			log.WithField("index", spec.Name()).Errorf("index creation failed: %v", err)
			p.metrics.IndexProvisioned(coll.Name(), false)
			errs = append(errs, fmt.Errorf("index %s: %w", spec.Name(), err))
			continue
		}
		p.metrics.IndexProvisioned(coll.Name(), true)
		log.WithField("index", spec.Name()).Info("index ensured")
	}
	return errors.Join(errs...)
}
