// Package sse streams case change notifications to HTTP clients as
// Server-Sent Events. A client may follow a single case with ?case=<id>;
// corpus-wide events reach every client.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const (
	heartbeatInterval = 15 * time.Second
	subscriberBuffer  = 64
)

// frame is one encoded SSE message. caseID is empty for corpus-wide events.
type frame struct {
	caseID string
	raw    []byte
}

type subscriber struct {
	caseID string // empty follows every case
	out    chan []byte
}

func (s *subscriber) wants(f frame) bool {
	return s.caseID == "" || f.caseID == "" || f.caseID == s.caseID
}

type change struct {
	kind   string
	caseID string
}

// Broker fans case changes out to subscribers.
//
// The run loop owns the subscriber set and the corpus throttle; everything
// else reaches it over channels.
type Broker struct {
	throttle time.Duration

	join    chan *subscriber
	leave   chan *subscriber
	changes chan change
	count   chan chan int

	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewBroker starts a broker that emits at most one corpus.updated event per
// throttle interval.
func NewBroker(throttle time.Duration) *Broker {
	if throttle <= 0 {
		throttle = 2 * time.Second
	}
	b := &Broker{
		throttle: throttle,
		join:     make(chan *subscriber),
		leave:    make(chan *subscriber),
		changes:  make(chan change, 256),
		count:    make(chan chan int),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go b.run()
	return b
}

func encode(event string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", event, payload), nil
}

func (b *Broker) run() {
	defer close(b.done)

	subs := make(map[*subscriber]struct{})
	var lastCorpus time.Time

	send := func(f frame) {
		for s := range subs {
			if !s.wants(f) {
				continue
			}
			select {
			case s.out <- f.raw:
			default: // slow client
			}
		}
	}

	for {
		select {
		case <-b.quit:
			for s := range subs {
				close(s.out)
			}
			return

		case s := <-b.join:
			subs[s] = struct{}{}

		case s := <-b.leave:
			if _, ok := subs[s]; ok {
				delete(subs, s)
				close(s.out)
			}

		case c := <-b.changes:
			if raw, err := encode("case."+c.kind, map[string]string{"case": c.caseID}); err == nil {
				send(frame{caseID: c.caseID, raw: raw})
			}
			if now := time.Now(); now.Sub(lastCorpus) >= b.throttle {
				lastCorpus = now
				if raw, err := encode("corpus.updated", map[string]string{}); err == nil {
					send(frame{raw: raw})
				}
			}

		case reply := <-b.count:
			reply <- len(subs)
		}
	}
}

// Subscribe registers a client following caseID, or every case when caseID
// is empty. The returned cancel func unregisters it and closes the channel.
// On a closed broker the channel is already closed.
func (b *Broker) Subscribe(caseID string) (<-chan []byte, func()) {
	s := &subscriber{caseID: caseID, out: make(chan []byte, subscriberBuffer)}
	select {
	case b.join <- s:
	case <-b.done:
		close(s.out)
		return s.out, func() {}
	}
	return s.out, func() {
		select {
		case b.leave <- s:
		case <-b.done:
		}
	}
}

// Clients returns the number of subscribers.
func (b *Broker) Clients() int {
	reply := make(chan int, 1)
	select {
	case b.count <- reply:
		return <-reply
	case <-b.done:
		return 0
	}
}

// PublishCaseEvent broadcasts "case.<kind>" for caseID, followed by a
// throttled corpus.updated. It matches the case service change hook.
func (b *Broker) PublishCaseEvent(kind, caseID string) {
	select {
	case b.changes <- change{kind: kind, caseID: caseID}:
	case <-b.done:
	}
}

// Close stops the broker and closes every subscriber channel.
func (b *Broker) Close() {
	b.closeOnce.Do(func() { close(b.quit) })
	<-b.done
}

// ServeHTTP is the SSE endpoint handler (GET /events[?case=<id>]).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, cancel := b.Subscribe(r.URL.Query().Get("case"))
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			_, _ = w.Write([]byte(": ping\n\n"))
		case raw, ok := <-events:
			if !ok {
				return
			}
			_, _ = w.Write(raw)
		}
		flusher.Flush()
	}
}
