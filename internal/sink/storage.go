package sink

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"traffic-router/internal/record"
	"traffic-router/internal/store"
	"traffic-router/internal/topic"
)

// Coordinate fields that make a record location-bearing.
const (
	LocationXField = "location_x"
	LocationYField = "location_y"
	LocationField  = "location"
)

// MaxProvisionAttempts bounds how many messages of a collection may try to
// provision its indexes. After that the collection is left as it is.
const MaxProvisionAttempts = 3

// provisionState tracks index provisioning of one collection. After a failed
// attempt the emptiness probe is skipped, since our own inserts have
// populated the collection by then.
type provisionState struct {
	done     bool
	attempts int
}

// Storage inserts events into the collection named by the destination.
type Storage struct {
	db          store.Database
	provisioner *store.Provisioner
	timeout     time.Duration
	now         func() time.Time

	mu    sync.Mutex
	state map[string]provisionState
}

// NewStorage builds a storage sink. timeout bounds each store operation;
// zero leaves it to the driver.
func NewStorage(db store.Database, p *store.Provisioner, timeout time.Duration) *Storage {
	return &Storage{
		db:          db,
		provisioner: p,
		timeout:     timeout,
		now:         time.Now,
		state:       make(map[string]provisionState),
	}
}

// Send implements Sink.
func (s *Storage) Send(ctx context.Context, dest topic.Destination, evt record.Event) error {
	name := dest.Target
	if name == "" {
		name = topic.Unknown.Collection()
	}
	coll := s.db.Collection(name)

	s.provision(ctx, coll, dest.Topic)

	doc := Document(evt, s.now())

	ictx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := coll.InsertOne(ictx, doc); err != nil {
		kind := Write
		if store.IsConnectionError(err) {
			kind = Connection
		}
		return &Error{Kind: kind, Target: name, Err: err}
	}
	return nil
}

// provision runs the index provisioner the first time a collection is seen
// by this process, and again on later messages while it keeps failing, up
// to MaxProvisionAttempts. Failures are logged and never block the insert.
func (s *Storage) provision(ctx context.Context, coll store.Collection, t topic.Topic) {
	s.mu.Lock()
	st := s.state[coll.Name()]
	s.mu.Unlock()
	if st.done {
		return
	}

	pctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var err error
	if st.attempts > 0 {
		err = s.provisioner.Create(pctx, coll, t)
	} else {
		err = s.provisioner.Ensure(pctx, coll, t)
	}
	st.attempts++

	log := logrus.WithFields(logrus.Fields{"collection": coll.Name(), "topic": t.String(), "attempt": st.attempts})
	switch {
	case err == nil:
		st.done = true
	case st.attempts >= MaxProvisionAttempts:
		log.Errorf("index provisioning abandoned after %d attempts: %v", st.attempts, err)
		st.done = true
	default:
		log.Warnf("index provisioning incomplete, continuing with insert: %v", err)
	}

	s.mu.Lock()
	s.state[coll.Name()] = st
	s.mu.Unlock()
}

func (s *Storage) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Document builds the stored form of evt: a copy with the receipt time and,
// when both coordinates are numeric, a GeoJSON location.
func Document(evt record.Event, receivedAt time.Time) record.Event {
	doc := evt.Clone()
	doc[store.ReceivedAtField] = receivedAt.UTC()

	x, okX := evt.Float(LocationXField)
	y, okY := evt.Float(LocationYField)
	if okX && okY {
		doc[LocationField] = store.NewPoint(x, y)
	}
	return doc
}
