package services

import (
	"sync"

	"github.com/dmitrijs2005/artforge/internal/client/models"
)

type EventType int

const (
	// EventStateChanged is published after every change of the generation model.
	EventStateChanged EventType = iota
	// EventPaywallRequired asks the UI to present the paywall.
	EventPaywallRequired
	// EventHistoryChanged is published after the in-memory history list was refreshed.
	EventHistoryChanged
)

func (t EventType) String() string {
	switch t {
	case EventStateChanged:
		return "state_changed"
	case EventPaywallRequired:
		return "paywall_required"
	case EventHistoryChanged:
		return "history_changed"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers. Status is the model status at the time
// the event was published; use Snapshot for the full state.
type Event struct {
	Type   EventType
	Status models.Status
}

const subscriberBuffer = 32

type broker struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Event
}

func newBroker() *broker {
	return &broker{subs: make(map[int]chan Event)}
}

func (b *broker) subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

// publish never blocks; a subscriber with a full buffer misses the event.
func (b *broker) publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
