package audit

import (
	"context"
	"log/slog"
	"sync"
)

// Store persists or forwards audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// InMemoryStore keeps events in process. Used by tests and local runs.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// ListByDID returns the events recorded for did, oldest first.
func (s *InMemoryStore) ListByDID(_ context.Context, did string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.DID == did {
			out = append(out, e)
		}
	}
	return out, nil
}

// All returns a copy of every recorded event.
func (s *InMemoryStore) All() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// LogStore writes events to a structured logger. It is the sink when no
// broker is configured.
type LogStore struct {
	logger *slog.Logger
}

func NewLogStore(logger *slog.Logger) *LogStore {
	return &LogStore{logger: logger}
}

func (s *LogStore) Append(ctx context.Context, event Event) error {
	s.logger.InfoContext(ctx, "mapping changed",
		"event_id", event.ID.String(),
		"action", string(event.Action),
		"did", event.DID,
		"persona", event.Persona,
		"cnam", event.CNAM,
		"request_id", event.RequestID,
		"client_ip", event.ClientIP,
		"user_agent", event.UserAgent,
		slog.Group("client",
			"browser", event.Client.Browser,
			"os", event.Client.OS,
			"bot", event.Client.Bot,
		),
		"timestamp", event.Timestamp,
	)
	return nil
}
