package vault

import (
	"sync"

	"github.com/sadopc/sealtrack/internal/replica"
)

type eventKind int

const (
	kindChange eventKind = iota
	kindDelete
	kindSync
	kindError
	kindBarrier
)

type event struct {
	kind    eventKind
	docType string
	id      string
	// sid and seq identify the stored revision; events older than one
	// already delivered for the same sid are dropped.
	sid     string
	seq     int64
	doc     Document
	info    replica.Info
	err     error
	barrier chan struct{}
}

// queue is an unbounded FIFO drained by one goroutine.
type queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []event
	closed  bool
	seen    map[string]int64

	deliver func(event)
	done    chan struct{}
}

func newQueue(deliver func(event)) *queue {
	q := &queue{
		seen:    make(map[string]int64),
		deliver: deliver,
		done:    make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

func (q *queue) push(evs ...event) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.pending = append(q.pending, evs...)
	q.cond.Signal()
	return nil
}

func (q *queue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if q.closed {
			q.mu.Unlock()
			return
		}
		ev := q.pending[0]
		q.pending[0] = event{}
		q.pending = q.pending[1:]

		stale := false
		if ev.sid != "" {
			if last, ok := q.seen[ev.sid]; ok && ev.seq < last {
				stale = true
			} else {
				q.seen[ev.sid] = ev.seq
			}
		}
		q.mu.Unlock()

		switch {
		case ev.kind == kindBarrier:
			close(ev.barrier)
		case !stale:
			q.deliver(ev)
		}
	}
}

// reset forgets delivered sequences; used after the database is cleared.
func (q *queue) reset() {
	q.mu.Lock()
	q.seen = make(map[string]int64)
	q.mu.Unlock()
}

// close drops pending events, releases waiting Flush calls and waits for the
// dispatcher to exit.
func (q *queue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	for _, ev := range q.pending {
		if ev.kind == kindBarrier {
			close(ev.barrier)
		}
	}
	q.pending = nil
	q.cond.Broadcast()
	q.mu.Unlock()
	<-q.done
}
