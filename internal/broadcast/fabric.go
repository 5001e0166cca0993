// Package broadcast implements the Broadcast Fabric (C6): one
// multi-producer/multi-consumer channel per resource, created lazily,
// reaped when idle, and safe under concurrent producers and consumers
// (spec.md §4.6, §5). It is grounded on
// other_examples/dde9945a_streamspace-dev-streamspace__...hub.go's
// register/unregister/broadcast channel shape, deliberately replacing
// that hub's "disconnect slow clients" policy with spec.md's
// drop-oldest-plus-lag-signal policy.
package broadcast

import (
	"sync"
	"sync/atomic"
	"time"
)

// Update is one published state change: the resource's entire current
// state and the version it now carries (spec.md §4.6's "fetch the
// entire current resource state and publish (state, new_version)").
type Update struct {
	Version string
	State   []byte
}

// DefaultCapacity is the suggested per-resource buffer bound from
// spec.md §4.6 ("suggested 100-1000").
const DefaultCapacity = 256

// DefaultIdleInterval is the suggested reap cadence from spec.md §4.6
// ("suggested every 5 minutes").
const DefaultIdleInterval = 5 * time.Minute

// Subscription is one consumer's handle on a resource's channel.
// Delivered updates and any lag (entries dropped because the consumer
// fell behind) are surfaced through Recv.
type Subscription struct {
	ch  chan Update
	lag int64 // atomic: updates dropped since the last Recv
	rc  *resourceChannel
	id  uint64
}

// Recv blocks until an update is available or done fires. Close does
// not wake a blocked Recv: the delivery channel is never closed.
// lagged reports how many updates were dropped before the one returned
// (0 means none).
func (s *Subscription) Recv(done <-chan struct{}) (u Update, lagged uint64, ok bool) {
	select {
	case u, ok = <-s.ch:
		lagged = uint64(atomic.SwapInt64(&s.lag, 0))
		return u, lagged, ok
	case <-done:
		return Update{}, 0, false
	}
}

// Updates exposes the subscriber's delivery channel for callers that
// need to select over it alongside other events (e.g. a keep-alive
// ticker). Use TakeLag after reading to learn whether entries were
// dropped before the value received.
func (s *Subscription) Updates() <-chan Update { return s.ch }

// TakeLag returns and resets the count of updates dropped since the
// last call.
func (s *Subscription) TakeLag() uint64 {
	return uint64(atomic.SwapInt64(&s.lag, 0))
}

// Close detaches the subscription from its resource channel so the
// fabric can reap an idle resource promptly (spec.md §4.4
// "Termination").
func (s *Subscription) Close() {
	s.rc.unsubscribe(s.id)
}

// resourceChannel is the fan-out point for a single resource: a set of
// bounded per-subscriber buffers, all fed by the same publish call.
type resourceChannel struct {
	mu           sync.Mutex
	subs         map[uint64]*Subscription
	nextID       uint64
	capacity     int
	lastActivity time.Time
}

func newResourceChannel(capacity int) *resourceChannel {
	return &resourceChannel{
		subs:         make(map[uint64]*Subscription),
		capacity:     capacity,
		lastActivity: time.Now(),
	}
}

func (rc *resourceChannel) subscribe() *Subscription {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.nextID++
	s := &Subscription{
		ch: make(chan Update, rc.capacity),
		rc: rc,
		id: rc.nextID,
	}
	rc.subs[s.id] = s
	rc.lastActivity = time.Now()
	return s
}

func (rc *resourceChannel) unsubscribe(id uint64) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	delete(rc.subs, id)
	rc.lastActivity = time.Now()
}

func (rc *resourceChannel) subscriberCount() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.subs)
}

// publish delivers u to every current subscriber. A full subscriber
// buffer drops its oldest entry and increments that subscriber's lag
// counter rather than blocking the producer (spec.md §4.6 "producers
// never block on a full buffer").
func (rc *resourceChannel) publish(u Update) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.lastActivity = time.Now()

	for _, s := range rc.subs {
		select {
		case s.ch <- u:
			continue
		default:
		}
		select {
		case <-s.ch:
			atomic.AddInt64(&s.lag, 1)
		default:
		}
		select {
		case s.ch <- u:
		default:
			atomic.AddInt64(&s.lag, 1)
		}
	}
}

// Fabric is the resource registry: resource id -> resourceChannel.
// Creation is lazy; idle resources are dropped by Reap.
type Fabric struct {
	mu           sync.Mutex // registry lock; taken before any resource lock, never while one is held (spec.md §5 lock ordering)
	resources    map[string]*resourceChannel
	capacity     int
	idleInterval time.Duration
	metrics      *metrics
}

// New returns a Fabric with the given per-resource buffer capacity and
// idle-reap interval. Passing 0 for either selects the spec's
// suggested defaults.
func New(capacity int, idleInterval time.Duration) *Fabric {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if idleInterval <= 0 {
		idleInterval = DefaultIdleInterval
	}
	return &Fabric{
		resources:    make(map[string]*resourceChannel),
		capacity:     capacity,
		idleInterval: idleInterval,
		metrics:      newMetrics(),
	}
}

func (f *Fabric) channelFor(resourceID string) *resourceChannel {
	f.mu.Lock()
	defer f.mu.Unlock()
	rc, ok := f.resources[resourceID]
	if !ok {
		rc = newResourceChannel(f.capacity)
		f.resources[resourceID] = rc
	}
	return rc
}

// Subscribe attaches a new subscriber to resourceID's channel, creating
// the channel on first use.
func (f *Fabric) Subscribe(resourceID string) *Subscription {
	rc := f.channelFor(resourceID)
	sub := rc.subscribe()
	f.metrics.subscribers.WithLabelValues(resourceID).Inc()
	return sub
}

// Publish fans out u to every current subscriber of resourceID.
// Publishing to a resource with no subscribers is not an error
// (spec.md §4.5 step 7).
func (f *Fabric) Publish(resourceID string, u Update) {
	rc := f.channelFor(resourceID)
	rc.publish(u)
	f.metrics.published.WithLabelValues(resourceID).Inc()
}

// Unsubscribe detaches a subscription and decrements the subscriber
// gauge that Subscribe incremented. Subscription.Close alone detaches
// without touching metrics.
func (f *Fabric) Unsubscribe(resourceID string, sub *Subscription) {
	sub.Close()
	f.metrics.subscribers.WithLabelValues(resourceID).Dec()
}

// Reap drops every resource channel with zero subscribers, so the next
// Subscribe or Publish against that resource id recreates it with an
// empty buffer (spec.md §4.6 "Reaping").
func (f *Fabric) Reap() {
	f.mu.Lock()
	candidates := make(map[string]*resourceChannel, len(f.resources))
	for id, rc := range f.resources {
		candidates[id] = rc
	}
	f.mu.Unlock()

	for id, rc := range candidates {
		if rc.subscriberCount() == 0 {
			f.mu.Lock()
			if f.resources[id] == rc && rc.subscriberCount() == 0 {
				delete(f.resources, id)
			}
			f.mu.Unlock()
		}
	}
}

// RunReaper blocks, calling Reap every idle interval, until done is
// closed. Intended to run as a single background goroutine for the
// lifetime of the process.
func (f *Fabric) RunReaper(done <-chan struct{}) {
	ticker := time.NewTicker(f.idleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			f.Reap()
		case <-done:
			return
		}
	}
}
