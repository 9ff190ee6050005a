package workspace

import (
	"sync"

	"vigil/internal/diagnostics"
)

// emitter is a set of listeners. Listeners are invoked from a snapshot so
// they may subscribe or unsubscribe while being notified.
type emitter[F any] struct {
	mu   sync.Mutex
	next int
	fns  map[int]F
}

func (e *emitter[F]) add(fn F) diagnostics.Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fns == nil {
		e.fns = make(map[int]F)
	}
	id := e.next
	e.next++
	e.fns[id] = fn
	return diagnostics.SubscriptionFunc(func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.fns, id)
	})
}

// snapshot returns the listeners in subscription order.
func (e *emitter[F]) snapshot() []F {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]F, 0, len(e.fns))
	for id := 0; id < e.next; id++ {
		if fn, ok := e.fns[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func (e *emitter[F]) len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.fns)
}
