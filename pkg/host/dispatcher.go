package host

import (
	"sort"
	"sync"
)

// Dispatcher delivers payloads to callbacks connected to a named signal.
type Dispatcher struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]func(any)
	nextID uint64
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{subs: make(map[string]map[uint64]func(any))}
}

// Connect subscribes fn to signal. The returned function disconnects it and
// is safe to call more than once.
func (d *Dispatcher) Connect(signal string, fn func(any)) func() {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	if d.subs[signal] == nil {
		d.subs[signal] = make(map[uint64]func(any))
	}
	d.subs[signal][id] = fn
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			delete(d.subs[signal], id)
			if len(d.subs[signal]) == 0 {
				delete(d.subs, signal)
			}
		})
	}
}

// Send calls every callback connected to signal, in connection order.
// It returns the number of callbacks invoked.
func (d *Dispatcher) Send(signal string, payload any) int {
	d.mu.RLock()
	ids := make([]uint64, 0, len(d.subs[signal]))
	for id := range d.subs[signal] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(any), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, d.subs[signal][id])
	}
	d.mu.RUnlock()

	for _, fn := range fns {
		fn(payload)
	}
	return len(fns)
}

// Connected returns the number of callbacks connected to signal.
func (d *Dispatcher) Connected(signal string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs[signal])
}
