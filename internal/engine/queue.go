package engine

import (
	"sync"
)

// eventQueue is a thread-safe FIFO queue for execution events.
//
// The queue is unbounded so that recording a journal message never blocks on
// a slow listener.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the dispatch loop.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // buffered, size 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue. Returns false if the queue
// is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front event without blocking.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]

	// Release the slot's references (messages, results) for GC.
	q.events[0] = Event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available. It is
// closed by Close.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Close signals that no more events will be enqueued.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}

// dispatcher delivers queued events to a listener on its own goroutine.
type dispatcher struct {
	queue    *eventQueue
	listener Listener
	done     chan struct{}
}

func startDispatcher(l Listener) *dispatcher {
	d := &dispatcher{queue: newEventQueue(), listener: l, done: make(chan struct{})}
	go d.run()
	return d
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		if e, ok := d.queue.TryDequeue(); ok {
			d.listener.HandleEvent(e)
			continue
		}
		<-d.queue.Wait()
		d.queue.mu.Lock()
		drained := d.queue.closed && len(d.queue.events) == 0
		d.queue.mu.Unlock()
		if drained {
			return
		}
	}
}

// Stop closes the queue and waits until every queued event was delivered.
func (d *dispatcher) Stop() {
	d.queue.Close()
	<-d.done
}
