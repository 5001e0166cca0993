package broadcast

import (
	"testing"
	"time"
)

func TestSubscribeThenPublishDelivers(t *testing.T) {
	f := New(4, time.Hour)
	sub := f.Subscribe("doc-1")
	defer sub.Close()

	f.Publish("doc-1", Update{Version: "v1", State: []byte(`"hello"`)})

	done := make(chan struct{})
	u, lagged, ok := sub.Recv(done)
	if !ok {
		t.Fatalf("expected delivery")
	}
	if lagged != 0 {
		t.Fatalf("expected no lag, got %d", lagged)
	}
	if u.Version != "v1" {
		t.Fatalf("got version %q want v1", u.Version)
	}
}

func TestPublishWithNoSubscribersDoesNotBlockOrPanic(t *testing.T) {
	f := New(4, time.Hour)
	f.Publish("no-subs", Update{Version: "v1"})
}

// spec.md §4.6: producers never block on a full buffer; oldest entries
// are dropped and the subscriber receives a lagged signal.
func TestFullBufferDropsOldestAndSignalsLag(t *testing.T) {
	f := New(2, time.Hour)
	sub := f.Subscribe("doc-1")
	defer sub.Close()

	f.Publish("doc-1", Update{Version: "v1"})
	f.Publish("doc-1", Update{Version: "v2"})
	f.Publish("doc-1", Update{Version: "v3"}) // buffer cap 2: drops v1

	done := make(chan struct{})
	u, lagged, ok := sub.Recv(done)
	if !ok {
		t.Fatalf("expected delivery")
	}
	if u.Version != "v2" {
		t.Fatalf("expected oldest surviving entry v2, got %q", u.Version)
	}
	if lagged != 1 {
		t.Fatalf("expected 1 dropped update reported, got %d", lagged)
	}

	u, lagged, ok = sub.Recv(done)
	if !ok || u.Version != "v3" || lagged != 0 {
		t.Fatalf("got u=%+v lagged=%d ok=%v", u, lagged, ok)
	}
}

func TestCloseDetachesSubscriber(t *testing.T) {
	f := New(4, time.Hour)
	sub := f.Subscribe("doc-1")
	rc := f.channelFor("doc-1")
	if rc.subscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", rc.subscriberCount())
	}
	sub.Close()
	if rc.subscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers after close, got %d", rc.subscriberCount())
	}
}

func TestReapDropsResourcesWithNoSubscribers(t *testing.T) {
	f := New(4, time.Hour)
	sub := f.Subscribe("doc-1")
	sub.Close()

	f.Reap()

	f.mu.Lock()
	_, stillPresent := f.resources["doc-1"]
	f.mu.Unlock()
	if stillPresent {
		t.Fatalf("expected reaped resource to be removed from the registry")
	}
}

func TestReapKeepsResourcesWithSubscribers(t *testing.T) {
	f := New(4, time.Hour)
	sub := f.Subscribe("doc-1")
	defer sub.Close()

	f.Reap()

	f.mu.Lock()
	_, stillPresent := f.resources["doc-1"]
	f.mu.Unlock()
	if !stillPresent {
		t.Fatalf("expected active resource to survive reap")
	}
}
