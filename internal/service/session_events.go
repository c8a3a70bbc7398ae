package service

import (
	"sync"

	"github.com/google/uuid"
	"github.com/itilprep/itil-exam-backend/internal/exam"
	"github.com/itilprep/itil-exam-backend/internal/model"
)

// SessionEventType names a change pushed to live subscribers of a session.
type SessionEventType string

const (
	EventStarted   SessionEventType = "started"
	EventUpdated   SessionEventType = "updated"
	EventTick      SessionEventType = "tick"
	EventSubmitted SessionEventType = "submitted"
	EventPersisted SessionEventType = "persisted"
	EventAbandoned SessionEventType = "abandoned"
)

// SessionEvent is one message on a session's event stream.
type SessionEvent struct {
	Type        SessionEventType  `json:"event"`
	SessionID   string            `json:"session_id"`
	Remaining   *int              `json:"remaining_seconds,omitempty"`
	State       *exam.State       `json:"state,omitempty"`
	Result      *model.ExamResult `json:"result,omitempty"`
	Persistence *PersistOutcome   `json:"persistence,omitempty"`
}

const subscriberBuffer = 32

// eventBus fans session events out to subscribers. Slow subscribers lose
// events rather than blocking the countdown.
type eventBus struct {
	mu   sync.Mutex
	next int
	subs map[uuid.UUID]map[int]chan SessionEvent
}

func newEventBus() *eventBus {
	return &eventBus{subs: make(map[uuid.UUID]map[int]chan SessionEvent)}
}

func (b *eventBus) subscribe(id uuid.UUID) (<-chan SessionEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan SessionEvent, subscriberBuffer)
	key := b.next
	b.next++
	if b.subs[id] == nil {
		b.subs[id] = make(map[int]chan SessionEvent)
	}
	b.subs[id][key] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if set, ok := b.subs[id]; ok {
				if c, ok := set[key]; ok {
					delete(set, key)
					close(c)
				}
				if len(set) == 0 {
					delete(b.subs, id)
				}
			}
		})
	}
}

func (b *eventBus) publish(id uuid.UUID, ev SessionEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[id] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// closeSession ends every stream of id.
func (b *eventBus) closeSession(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[id] {
		close(ch)
	}
	delete(b.subs, id)
}
