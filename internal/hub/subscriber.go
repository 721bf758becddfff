package hub

import (
	"log/slog"
	"sync"

	"github.com/foxseedlab/gatekeeper/internal/call"
)

const defaultQueueSize = 64

// subscriber delivers events to one handler on its own goroutine.
type subscriber struct {
	id      string
	cid     string
	queue   chan call.CustomEvent
	handler func(call.CustomEvent)
	done    chan struct{}
	once    sync.Once
}

func newSubscriber(id, cid string, size int, handler func(call.CustomEvent)) *subscriber {
	s := &subscriber{
		id:      id,
		cid:     cid,
		queue:   make(chan call.CustomEvent, size),
		handler: handler,
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.queue:
			select {
			case <-s.done:
				return
			default:
			}
			s.handler(ev)
		}
	}
}

// trySend never blocks; a full queue drops the event.
func (s *subscriber) trySend(ev call.CustomEvent) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.queue <- ev:
		return true
	default:
		slog.Warn("dropping custom event for slow subscriber", "call_cid", s.cid, "subscription_id", s.id)
		return false
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}
