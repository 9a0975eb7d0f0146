package store

import (
	"sort"
	"sync"
)

// broadcaster delivers change notifications to registered observers. Dispatch
// runs on a dedicated goroutine so an observer that mutates the store cannot
// re-enter the call that triggered the notification. One broadcast is
// delivered per signal, in signal order; within a broadcast, observers are
// invoked in subscription order.
type broadcaster struct {
	mu        sync.Mutex
	cond      *sync.Cond
	observers map[int]func()
	nextID    int
	pending   int
	closed    bool

	done chan struct{}
}

func newBroadcaster() *broadcaster {
	b := &broadcaster{
		observers: make(map[int]func()),
		done:      make(chan struct{}),
	}
	b.cond = sync.NewCond(&b.mu)
	go b.run()
	return b
}

func (b *broadcaster) run() {
	defer close(b.done)
	for {
		b.mu.Lock()
		for b.pending == 0 && !b.closed {
			b.cond.Wait()
		}
		if b.pending == 0 && b.closed {
			b.mu.Unlock()
			return
		}
		b.pending--
		fns := b.snapshotLocked()
		b.mu.Unlock()

		for _, fn := range fns {
			fn()
		}
	}
}

// snapshotLocked returns the observer functions in subscription order.
// Callers must hold b.mu.
func (b *broadcaster) snapshotLocked() []func() {
	ids := make([]int, 0, len(b.observers))
	for id := range b.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(), len(ids))
	for i, id := range ids {
		fns[i] = b.observers[id]
	}
	return fns
}

// subscribe registers fn and returns a disposer that unregisters it.
func (b *broadcaster) subscribe(fn func()) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.observers[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.observers, id)
		b.mu.Unlock()
	}
}

// signal enqueues one broadcast. Signals after close are dropped.
func (b *broadcaster) signal() {
	b.mu.Lock()
	if !b.closed {
		b.pending++
		b.cond.Signal()
	}
	b.mu.Unlock()
}

// close stops accepting signals and waits for queued broadcasts to drain.
func (b *broadcaster) close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		<-b.done
		return
	}
	b.closed = true
	b.cond.Broadcast()
	b.mu.Unlock()
	<-b.done
}
