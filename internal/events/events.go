package events

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	TypeInit    = "init"
	TypeCommit  = "commit"
	TypeFire    = "fire"
	TypeRespond = "respond"
	TypeWinner  = "winner"
	TypeExtend  = "extend"
)

// Event is the notification emitted for every successful state change.
// Each event has a type and a set of key/value attributes.
type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Session    uint32            `json:"session"`
	At         time.Time         `json:"at"`
	Attributes map[string]string `json:"attributes"`
}

// New stamps an event with a fresh id and the current time.
func New(eventType string, session uint32, attributes map[string]string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Session:    session,
		At:         time.Now().UTC(),
		Attributes: attributes,
	}
}

// Bool and Int format attribute values consistently.
func Bool(b bool) string { return strconv.FormatBool(b) }
func Int(n int) string   { return strconv.Itoa(n) }

// Bus fans events out to subscribers. Publishing never blocks: a subscriber
// whose buffer is full misses the event and its drop counter goes up.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

type Subscription struct {
	C       <-chan Event
	ch      chan Event
	session uint32
	dropped atomic.Uint64
}

// Dropped reports how many events this subscriber missed.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a subscriber. A zero session receives every event.
func (b *Bus) Subscribe(session uint32, buffer int) *Subscription {
	ch := make(chan Event, buffer)
	s := &Subscription{C: ch, ch: ch, session: session}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

func (b *Bus) Unsubscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
	}
}

func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		if s.session != 0 && s.session != e.Session {
			continue
		}
		select {
		case s.ch <- e:
		default:
			s.dropped.Add(1)
		}
	}
}

// Close ends every subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		close(s.ch)
		delete(b.subs, s)
	}
}
