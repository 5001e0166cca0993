package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/Polqt/braidcore/internal/messagelog"
)

// Memory is the default Store used when DATABASE_URL is unset
// (spec.md §6.5): no durability, everything lives for the process
// lifetime. In-process participant membership defaults to false; use
// AddParticipant to seed it (there is no open-enrollment policy
// implied by "no database configured").
type Memory struct {
	mu           sync.Mutex
	messages     map[string][]messagelog.Message
	versionEdges map[string]map[string][]string
	participants map[string]map[uuid.UUID]bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		messages:     make(map[string][]messagelog.Message),
		versionEdges: make(map[string]map[string][]string),
		participants: make(map[string]map[uuid.UUID]bool),
	}
}

func (m *Memory) UpsertMessage(_ context.Context, conversation string, _ uuid.UUID, msg messagelog.Message, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.Version = &version
	m.messages[conversation] = append(m.messages[conversation], msg)
	return nil
}

func (m *Memory) UpsertVersionEdge(_ context.Context, conversation string, version string, parents []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.versionEdges[conversation] == nil {
		m.versionEdges[conversation] = make(map[string][]string)
	}
	m.versionEdges[conversation][version] = parents
	return nil
}

func (m *Memory) LoadMessages(_ context.Context, conversation string) ([]messagelog.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]messagelog.Message, len(m.messages[conversation]))
	copy(out, m.messages[conversation])
	return out, nil
}

func (m *Memory) LoadVersionEdges(_ context.Context, conversation string) (map[string][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]string, len(m.versionEdges[conversation]))
	for k, v := range m.versionEdges[conversation] {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) IsParticipant(_ context.Context, principal uuid.UUID, conversation string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.participants[conversation][principal], nil
}

// AddParticipant seeds conversation membership; used by dev/test
// setups in lieu of a real conversations/conversation_participants
// table.
func (m *Memory) AddParticipant(conversation string, principal uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.participants[conversation] == nil {
		m.participants[conversation] = make(map[uuid.UUID]bool)
	}
	m.participants[conversation][principal] = true
}
