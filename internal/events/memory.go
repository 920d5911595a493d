package events

import (
	"context"
	"encoding/json"
	"sync"
)

// Published is one event captured by MemoryPublisher.
type Published struct {
	Subject string
	Data    any
}

// MemoryPublisher records events in memory for tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Published

	// Err, when set, is returned from every Publish after recording.
	Err error
}

func (m *MemoryPublisher) Publish(_ context.Context, subject string, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, Published{Subject: subject, Data: data})
	return m.Err
}

func (m *MemoryPublisher) Close() error { return nil }

// Events returns a copy of everything published so far.
func (m *MemoryPublisher) Events() []Published {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Published, len(m.events))
	copy(out, m.events)
	return out
}

// Subjects returns the subjects published, in order.
func (m *MemoryPublisher) Subjects() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Subject)
	}
	return out
}

// Decode unmarshals the payload of the i-th event into v through JSON, the
// same way a subscriber would see it.
func (m *MemoryPublisher) Decode(i int, v any) error {
	m.mu.Lock()
	data := m.events[i].Data
	m.mu.Unlock()
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

var _ Publisher = (*MemoryPublisher)(nil)
