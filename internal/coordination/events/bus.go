package events

import (
	"strings"
	"sync"
	"time"

	id "routa/internal/shared/utils/id"
)

const defaultBuffer = 64

// Event is an ephemeral notification delivered to matching live subscribers.
// Events are never persisted or replayed.
type Event struct {
	Type          string            `json:"type"`
	Payload       map[string]string `json:"payload,omitempty"`
	SourceAgentID string            `json:"source_agent_id,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}

// Subscription is a registered interest in event types.
type Subscription struct {
	ID                string   `json:"id"`
	SubscriberAgentID string   `json:"subscriber_agent_id"`
	SubscriberName    string   `json:"subscriber_name"`
	EventTypeGlobs    []string `json:"event_type_globs"`
	ExcludeSelf       bool     `json:"exclude_self"`
}

type registration struct {
	sub      Subscription
	ch       chan Event
	overflow uint64
	mu       sync.Mutex // guards ch drain-and-retry plus the overflow counter
	handler  func(Event)
	done     chan struct{}
}

// Bus is a filtered broadcast: each published event is matched against every
// live subscription's glob list and delivered through a per-subscription
// bounded buffer. On overflow the oldest undelivered event is dropped and the
// subscription's overflow counter is incremented once.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string]*registration
	bufSize int
}

// NewBus constructs a bus with the default per-subscription buffer size.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]*registration), bufSize: defaultBuffer}
}

// NewBusWithBuffer constructs a bus with a custom per-subscription buffer size.
func NewBusWithBuffer(size int) *Bus {
	if size <= 0 {
		size = defaultBuffer
	}
	return &Bus{subs: make(map[string]*registration), bufSize: size}
}

// Subscribe registers interest and starts a dedicated delivery worker that
// invokes handler for each matching event in publish order.
func (b *Bus) Subscribe(subscriberAgentID, name string, globs []string, excludeSelf bool, handler func(Event)) string {
	sub := Subscription{
		ID:                id.NewSubscriptionID(),
		SubscriberAgentID: subscriberAgentID,
		SubscriberName:    name,
		EventTypeGlobs:    append([]string(nil), globs...),
		ExcludeSelf:       excludeSelf,
	}
	reg := &registration{
		sub:     sub,
		ch:      make(chan Event, b.bufSize),
		handler: handler,
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[sub.ID] = reg
	b.mu.Unlock()

	go reg.deliverLoop()

	return sub.ID
}

// Unsubscribe releases the subscription. Idempotent.
func (b *Bus) Unsubscribe(subscriptionID string) {
	b.mu.Lock()
	reg, ok := b.subs[subscriptionID]
	if ok {
		delete(b.subs, subscriptionID)
	}
	b.mu.Unlock()

	if ok {
		close(reg.done)
	}
}

// Publish delivers event to every matching subscription without blocking the
// caller. Per-subscription delivery order equals the publish order;
// cross-subscriber ordering is unspecified.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	regs := make([]*registration, 0, len(b.subs))
	for _, reg := range b.subs {
		regs = append(regs, reg)
	}
	b.mu.RUnlock()

	for _, reg := range regs {
		if !reg.matches(event) {
			continue
		}
		reg.enqueue(event)
	}
}

// Subscription returns a snapshot of the registered subscription, if present.
func (b *Bus) Subscription(subscriptionID string) (Subscription, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	reg, ok := b.subs[subscriptionID]
	if !ok {
		return Subscription{}, false
	}
	return reg.sub, true
}

// OverflowCount reports how many events a subscription dropped so far.
func (b *Bus) OverflowCount(subscriptionID string) uint64 {
	b.mu.RLock()
	reg, ok := b.subs[subscriptionID]
	b.mu.RUnlock()
	if !ok {
		return 0
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.overflow
}

// Close releases every subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	regs := b.subs
	b.subs = make(map[string]*registration)
	b.mu.Unlock()

	for _, reg := range regs {
		close(reg.done)
	}
}

func (r *registration) matches(event Event) bool {
	if r.sub.ExcludeSelf && event.SourceAgentID != "" && event.SourceAgentID == r.sub.SubscriberAgentID {
		return false
	}
	for _, glob := range r.sub.EventTypeGlobs {
		if MatchEventType(glob, event.Type) {
			return true
		}
	}
	return false
}

// enqueue performs the non-blocking bounded-buffer send. When the buffer is
// full the oldest undelivered event is dropped and the overflow counter is
// incremented exactly once for this event.
func (r *registration) enqueue(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	select {
	case r.ch <- event:
		return
	default:
	}

	// Buffer full: drop the oldest, count the overflow, retry once. The
	// second send always finds room: r.mu keeps other producers out and the
	// delivery worker only removes events. If the worker emptied the buffer
	// in between, nothing is dropped and no overflow is counted.
	select {
	case <-r.ch:
		r.overflow++
	default:
	}
	select {
	case r.ch <- event:
	default:
	}
}

func (r *registration) deliverLoop() {
	for {
		select {
		case <-r.done:
			return
		case event := <-r.ch:
			if r.handler != nil {
				r.handler(event)
			}
		}
	}
}

// MatchEventType implements shell-style matching of a dotted event type
// against a glob: `*` matches exactly one dot-separated segment sequence of
// length one, so `agent.*` matches `agent.created` but not `agent`, and the
// bare `*` matches everything.
func MatchEventType(glob, eventType string) bool {
	if glob == "*" {
		return true
	}
	globParts := strings.Split(glob, ".")
	typeParts := strings.Split(eventType, ".")
	if len(globParts) != len(typeParts) {
		return false
	}
	for i, gp := range globParts {
		if gp == "*" {
			continue
		}
		if gp != typeParts[i] {
			return false
		}
	}
	return true
}
