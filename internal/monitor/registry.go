package monitor

import (
	"errors"
	"sort"
	"sync"

	"github.com/genricoloni/nowplaying-xml/internal/domain"
)

var (
	// ErrUnknownSubscription is returned when unsubscribing an ID that is not registered
	ErrUnknownSubscription = errors.New("unknown subscription")
	// ErrNilHandler is returned when subscribing a nil handler
	ErrNilHandler = errors.New("nil handler")
)

type registration struct {
	kind    domain.EventKind
	handler domain.Handler
}

// registry tracks player notification handlers
type registry struct {
	mu   sync.Mutex
	next domain.SubscriptionID
	subs map[domain.SubscriptionID]registration
}

func newRegistry() *registry {
	return &registry{subs: make(map[domain.SubscriptionID]registration)}
}

func (r *registry) add(kind domain.EventKind, h domain.Handler) (domain.SubscriptionID, error) {
	if h == nil {
		return 0, ErrNilHandler
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	r.subs[r.next] = registration{kind: kind, handler: h}
	return r.next, nil
}

func (r *registry) remove(id domain.SubscriptionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[id]; !ok {
		return ErrUnknownSubscription
	}
	delete(r.subs, id)
	return nil
}

// handlers returns the handlers registered for kind in subscription order.
// The result is a snapshot, so handlers may (un)subscribe while it is iterated.
func (r *registry) handlers(kind domain.EventKind) []domain.Handler {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]domain.SubscriptionID, 0, len(r.subs))
	for id, reg := range r.subs {
		if reg.kind == kind {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]domain.Handler, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.subs[id].handler)
	}
	return out
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}
