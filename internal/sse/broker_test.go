package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// drain collects every frame already queued on ch.
func drain(ch <-chan []byte) []string {
	var out []string
	for {
		select {
		case raw, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, string(raw))
		default:
			return out
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 1s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubscribe_CancelRemovesClient(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()

	_, cancelAll := b.Subscribe("")
	events, cancelAcme := b.Subscribe("acme")
	if n := b.Clients(); n != 2 {
		t.Fatalf("clients = %d, want 2", n)
	}

	cancelAcme()
	if n := b.Clients(); n != 1 {
		t.Fatalf("clients after cancel = %d, want 1", n)
	}
	if _, ok := <-events; ok {
		t.Error("cancelled subscription channel still open")
	}
	cancelAll()
	cancelAll()
	if n := b.Clients(); n != 0 {
		t.Fatalf("clients = %d, want 0", n)
	}
}

func TestPublishCaseEvent_FiltersByCase(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()

	all, cancelAll := b.Subscribe("")
	defer cancelAll()
	acme, cancelAcme := b.Subscribe("acme")
	defer cancelAcme()

	b.PublishCaseEvent("imported", "acme")
	b.PublishCaseEvent("removed", "beta")

	var gotAll, gotAcme []string
	waitFor(t, func() bool {
		gotAll = append(gotAll, drain(all)...)
		gotAcme = append(gotAcme, drain(acme)...)
		return len(gotAll) == 3
	})

	// One corpus.updated per throttle window, after the first change.
	want := []string{"event: case.imported", "event: corpus.updated", "event: case.removed"}
	for i, prefix := range want {
		if !strings.HasPrefix(gotAll[i], prefix) {
			t.Errorf("all[%d] = %q, want prefix %q", i, gotAll[i], prefix)
		}
	}
	if !strings.Contains(gotAll[2], `"case":"beta"`) {
		t.Errorf("removed payload = %q", gotAll[2])
	}

	if len(gotAcme) != 2 {
		t.Fatalf("acme frames = %q, want case.imported and corpus.updated", gotAcme)
	}
	if !strings.Contains(gotAcme[0], `"case":"acme"`) {
		t.Errorf("acme frame = %q", gotAcme[0])
	}
	for _, f := range gotAcme {
		if strings.Contains(f, "beta") {
			t.Errorf("acme subscriber received %q", f)
		}
	}
}

func TestPublishCaseEvent_SlowClientDoesNotBlock(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	_, cancel := b.Subscribe("")
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 4*subscriberBuffer; i++ {
			b.PublishCaseEvent("imported", "acme")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publishing blocked on a full subscriber")
	}
	if b.Clients() != 1 {
		t.Error("slow client was dropped")
	}
}

func TestClose(t *testing.T) {
	b := NewBroker(time.Second)
	events, cancel := b.Subscribe("")

	b.Close()
	b.Close()

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("subscriber channel not closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}
	cancel()

	if b.Clients() != 0 {
		t.Error("clients after close")
	}
	late, _ := b.Subscribe("acme")
	if _, ok := <-late; ok {
		t.Error("subscription on a closed broker is open")
	}
	b.PublishCaseEvent("removed", "acme")
}

// syncRecorder guards the body against the concurrent read in the test.
type syncRecorder struct {
	*httptest.ResponseRecorder
	mu sync.Mutex
}

func (r *syncRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ResponseRecorder.Write(p)
}

func (r *syncRecorder) body() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ResponseRecorder.Body.String()
}

func TestServeHTTP_CaseQuery(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events?case=acme", nil).WithContext(ctx)
	w := &syncRecorder{ResponseRecorder: httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()
	waitFor(t, func() bool { return b.Clients() == 1 })

	b.PublishCaseEvent("removed", "beta")
	b.PublishCaseEvent("imported", "acme")
	waitFor(t, func() bool { return strings.Contains(w.body(), "case.imported") })

	cancel()
	<-done

	body := w.body()
	if strings.Contains(body, `"case":"beta"`) {
		t.Errorf("stream for acme carried beta: %q", body)
	}
	if !strings.Contains(body, "event: corpus.updated") {
		t.Errorf("stream missing corpus.updated: %q", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	waitFor(t, func() bool { return b.Clients() == 0 })
}
