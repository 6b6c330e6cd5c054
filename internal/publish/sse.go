package publish

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// broadcaster fans a Snapshot out to every connected SSE subscriber. Each
// subscriber has a buffered channel of size 1; broadcast is non-blocking, so
// a subscriber that hasn't drained the previous frame simply misses the
// intermediate one (spec.md §4.5: "at-most-one-in-flight per subscriber").
type broadcaster struct {
	mu   sync.Mutex
	subs map[string]chan any
}

func (b *broadcaster) init() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = make(map[string]chan any)
	}
}

func (b *broadcaster) subscribe() (id string, ch chan any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id = uuid.NewString()
	ch = make(chan any, 1)
	b.subs[id] = ch
	return id, ch
}

func (b *broadcaster) unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

func (b *broadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *broadcaster) broadcast(v any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- v:
		default:
			// subscriber hasn't drained the last frame; drop this one.
		}
	}
}

// closeAll sends a final event (spec.md §5's "bye" event) to every
// subscriber, best-effort and non-blocking.
func (b *broadcaster) closeAll(v any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- v:
		default:
		}
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	id, ch := s.broadcaster.subscribe()
	s.Metrics.SetSSESubscribers(s.broadcaster.count())
	defer func() {
		s.broadcaster.unsubscribe(id)
		s.Metrics.SetSSESubscribers(s.broadcaster.count())
	}()

	if err := writeEvent(w, s.State.Snapshot()); err != nil {
		return
	}
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-ch:
			if err := writeEvent(w, v); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", body)
	return err
}
