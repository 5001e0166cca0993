package messagelog

import (
	"fmt"
	"sort"
	"sync"
)

// MessageType distinguishes the payload kinds carried by the messaging
// subsystem (original_source/src/backend/messaging/message_sync.rs),
// beyond the plain-text-only Message Log.
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system"
)

// ChatMessage is the richer per-conversation record used by the
// messaging subsystem: it carries both the Braid version (wire
// causality, spec.md §4.1's machinery) and a Lamport timestamp (display
// ordering, spec.md §4.3), which are independent and may disagree under
// concurrent writers.
type ChatMessage struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	SenderID       string      `json:"sender_id"`
	Text           string      `json:"text"`
	Type           MessageType `json:"type"`
	CRDTTimestamp  uint64      `json:"crdt_timestamp"`
	BraidVersion   string      `json:"braid_version"`
	BraidParents   []string    `json:"braid_parents,omitempty"`
	IsDelivered    bool        `json:"is_delivered"`
	IsRead         bool        `json:"is_read"`
}

// ConversationLog is a per-conversation ChatMessage log. It is ordered
// two ways: append/Braid-version order (authoritative for wire
// causality and SnapshotSince) and Lamport order (display ordering via
// OrderedByLamport), per spec.md §4.3's tie-break rule.
type ConversationLog struct {
	mu       sync.RWMutex
	messages []ChatMessage
	parents  map[string][]string
	seq      uint64
	lamport  uint64
}

// NewConversationLog returns an empty conversation log.
func NewConversationLog() *ConversationLog {
	return &ConversationLog{parents: make(map[string][]string)}
}

// Append assigns a fresh Lamport timestamp and Braid version to msg,
// appends it in Braid-version order, and records its claimed parents
// verbatim (same opaque-lineage policy as Log.Append).
func (c *ConversationLog) Append(msg ChatMessage, claimedParents []string) ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lamport++
	msg.CRDTTimestamp = c.lamport

	c.seq++
	msg.BraidVersion = fmt.Sprintf("v%d", c.seq)
	if claimedParents == nil {
		claimedParents = []string{}
	}
	msg.BraidParents = claimedParents

	c.messages = append(c.messages, msg)
	c.parents[msg.BraidVersion] = claimedParents
	return msg
}

// Observe advances the local Lamport clock past a timestamp seen from
// elsewhere, preserving the Lamport-clock invariant that every local
// tick exceeds every timestamp causally observed so far.
func (c *ConversationLog) Observe(remote uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if remote > c.lamport {
		c.lamport = remote
	}
}

// SnapshotSince returns the full message sequence in Braid-version
// (append) order, plus the current tip version — mirrors Log's
// always-full-snapshot policy.
func (c *ConversationLog) SnapshotSince(parent *string) ([]ChatMessage, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]ChatMessage, len(c.messages))
	copy(out, c.messages)

	tip := ""
	if c.seq > 0 {
		tip = fmt.Sprintf("v%d", c.seq)
	}
	return out, tip
}

// OrderedByLamport returns a copy of the log sorted by the display
// ordering rule in spec.md §4.3: crdt_timestamp ascending, ties broken
// by sender principal id.
func (c *ConversationLog) OrderedByLamport() []ChatMessage {
	c.mu.RLock()
	out := make([]ChatMessage, len(c.messages))
	copy(out, c.messages)
	c.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CRDTTimestamp != out[j].CRDTTimestamp {
			return out[i].CRDTTimestamp < out[j].CRDTTimestamp
		}
		return out[i].SenderID < out[j].SenderID
	})
	return out
}

// ParentsOf returns the claimed parents recorded for a Braid version.
func (c *ConversationLog) ParentsOf(version string) ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.parents[version]
	return p, ok
}

// ReconstructFromGeneric rebuilds a best-effort ChatMessage list from
// messages persisted through the generic Message projection (the
// Text/Author/Version shape persistConversationMessage writes), plus
// the recorded parent edges. ID and Type are not part of that
// projection and so cannot be recovered; CRDTTimestamp is recovered
// exactly, since this log's Lamport clock and Braid sequence only ever
// advance together in lockstep inside Append — a message's braid
// version number equals the crdt_timestamp it was assigned.
func ReconstructFromGeneric(conversation string, messages []Message, parentEdges map[string][]string) []ChatMessage {
	out := make([]ChatMessage, 0, len(messages))
	for _, m := range messages {
		if m.Version == nil {
			continue
		}
		n, _ := parseVersionSeq(*m.Version)
		out = append(out, ChatMessage{
			ConversationID: conversation,
			SenderID:       m.Author,
			Text:           m.Text,
			Type:           MessageTypeText,
			CRDTTimestamp:  n,
			BraidVersion:   *m.Version,
			BraidParents:   parentEdges[*m.Version],
			IsDelivered:    true,
		})
	}
	return out
}

// LoadSnapshot rehydrates the log from persisted state on process start
// (spec.md §4.8), same contract as Log.LoadSnapshot: append order
// preserved, versions restored verbatim, seq advanced past the highest
// restored version. The Lamport clock is advanced past the highest
// restored CRDTTimestamp so newly appended messages still sort after
// every rehydrated one.
func (c *ConversationLog) LoadSnapshot(messages []ChatMessage, parentEdges map[string][]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages = append([]ChatMessage(nil), messages...)
	c.parents = make(map[string][]string, len(parentEdges))
	for v, p := range parentEdges {
		c.parents[v] = append([]string(nil), p...)
	}
	for _, msg := range messages {
		if n, ok := parseVersionSeq(msg.BraidVersion); ok && n > c.seq {
			c.seq = n
		}
		if msg.CRDTTimestamp > c.lamport {
			c.lamport = msg.CRDTTimestamp
		}
	}
}
