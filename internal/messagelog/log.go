// Package messagelog implements the Message Log (C3) and its
// messaging-subsystem companion, ConversationLog. Both are
// per-resource, append-only logs with monotonic "v{n}" version
// identifiers and an opaque parent-edge map, grounded on
// original_source/src/backend/chat/state.rs's ChatState
// (version_history: HashMap<String, Vec<String>>) and the teacher's
// session.Document pattern of guarding state behind a single
// sync.RWMutex and exposing read-only snapshot accessors.
package messagelog

import (
	"fmt"
	"sync"
)

// Message is one chat message as stored in the Message Log. Version is
// nil until the log assigns it on append — the wire-level "None until
// it leaves the server" invariant (spec.md §3).
type Message struct {
	Text      string  `json:"text"`
	Author    string  `json:"author"`
	Timestamp string  `json:"timestamp"`
	Version   *string `json:"version,omitempty"`
}

// Log is a per-conversation ordered message list plus a version ->
// claimed-parents map. The zero value is not usable; use NewLog.
type Log struct {
	mu       sync.RWMutex
	messages []Message
	parents  map[string][]string
	seq      uint64
}

// NewLog returns an empty message log.
func NewLog() *Log {
	return &Log{parents: make(map[string][]string)}
}

// Append mints a new monotonic version, appends msg to the log, and
// records assignedVersion -> claimedParents verbatim. Unknown claimed
// parents are recorded as-is: the log never validates or garbage
// collects lineage (spec.md §4.1) — that is the caller's concern, not
// this component's.
func (l *Log) Append(msg Message, claimedParents []string) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	version := fmt.Sprintf("v%d", l.seq)
	msg.Version = &version

	l.messages = append(l.messages, msg)
	if claimedParents == nil {
		claimedParents = []string{}
	}
	l.parents[version] = claimedParents
	return version
}

// SnapshotSince returns the full ordered message sequence and the
// current tip version. The parent argument is accepted for API
// symmetry with the Braid reconnect flow but is not used to prune
// history: spec.md §4.1 calls this "a deliberate simplicity choice,"
// and §9 resolves the open question explicitly in favor of always
// returning the complete log rather than a partial diff.
func (l *Log) SnapshotSince(parent *string) ([]Message, string) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Message, len(l.messages))
	copy(out, l.messages)

	tip := ""
	if l.seq > 0 {
		tip = fmt.Sprintf("v%d", l.seq)
	}
	return out, tip
}

// ParentsOf returns the claimed parents recorded for a version, and
// whether that version is known to this log.
func (l *Log) ParentsOf(version string) ([]string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.parents[version]
	return p, ok
}

// LoadSnapshot rehydrates the log from persisted state on process start
// (spec.md §4.8): messages must already be in append order (the
// Persistence Layer's load_messages contract), and version edges are
// applied alongside them so the parent DAG is reconstructed exactly as
// it was before the restart. Versions are restored verbatim rather than
// re-minted, so previously-issued ids stay valid; seq is advanced past
// the highest restored version so new appends continue the same
// monotonic sequence instead of colliding with history.
func (l *Log) LoadSnapshot(messages []Message, parentEdges map[string][]string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.messages = append([]Message(nil), messages...)
	l.parents = make(map[string][]string, len(parentEdges))
	for v, p := range parentEdges {
		l.parents[v] = append([]string(nil), p...)
	}
	for _, msg := range messages {
		if msg.Version == nil {
			continue
		}
		if n, ok := parseVersionSeq(*msg.Version); ok && n > l.seq {
			l.seq = n
		}
	}
}

// parseVersionSeq extracts n from a "v{n}" version string.
func parseVersionSeq(version string) (uint64, bool) {
	var n uint64
	if _, err := fmt.Sscanf(version, "v%d", &n); err != nil {
		return 0, false
	}
	return n, true
}
