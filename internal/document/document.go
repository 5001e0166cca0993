// Package document implements the Document Engine (C2): an RGA-style
// text CRDT whose causal history is addressed through the Version
// Bridge (C1). It is grounded on the RGA sketch in
// Polqt-golang-journey's crdt/crdt.go (RGANodeID{Seq, NodeID},
// RGANode{ID, InsertAfter, Char, Deleted}), generalized from that
// sketch's stub methods into a working, lock-protected engine.
package document

import (
	"errors"
	"strings"
	"sync"

	"github.com/Polqt/braidcore/internal/bridge"
)

// ErrUnknownParent is returned when apply_local is given a parent
// version id the Version Bridge never issued (spec.md §5, §8 scenario
// S5).
var ErrUnknownParent = errors.New("document: unknown parent version")

// charNode is one inserted character, tombstoned in place on delete.
type charNode struct {
	id    OpID
	after OpID
	ch    rune
}

// deleteRecord is a logged delete: the set of concrete node ids it
// tombstoned, resolved against the live view at application time.
type deleteRecord struct {
	id      OpID
	targets []OpID
}

// Document is a single collaboratively-edited text CRDT. All exported
// methods are safe for concurrent use.
type Document struct {
	mu sync.RWMutex

	bridge *bridge.Bridge

	nodes      []charNode      // canonical RGA order, append-only
	index      map[OpID]int    // id -> index into nodes
	tipDeleted map[OpID]bool   // id -> tombstoned as of tip
	deletes    []deleteRecord  // full delete log, for historical replay
	agentSeq   map[string]uint64

	tip bridge.Frontier // all op ids (char inserts + delete records) applied so far
}

// New returns an empty document.
func New() *Document {
	return &Document{
		bridge:     bridge.New(),
		index:      make(map[OpID]int),
		tipDeleted: make(map[OpID]bool),
		agentSeq:   make(map[string]uint64),
	}
}

// nextSeq mints the next per-agent sequence number. The server, not the
// client, assigns sequence numbers: agents are trusted only to supply a
// stable identifier (spec.md §3 "Agent identifier"), not to self-order.
func (d *Document) nextSeq(agent string) uint64 {
	n := d.agentSeq[agent] + 1
	d.agentSeq[agent] = n
	return n
}

// liveSeq returns, in document order, the ids of all currently-visible
// (non-tombstoned) characters as of the tip.
func (d *Document) liveSeq() []OpID {
	live := make([]OpID, 0, len(d.nodes))
	for _, n := range d.nodes {
		if !d.tipDeleted[n.id] {
			live = append(live, n.id)
		}
	}
	return live
}

// insertAfter splices a new node into the canonical order immediately
// after `after`, skipping any existing siblings anchored at the same
// predecessor whose agent id sorts before the new node's — the RGA
// sibling tie-break from spec.md §4.2.
func (d *Document) insertAfter(after OpID, id OpID, ch rune) {
	pos := 0
	if !after.isZero() {
		idx, ok := d.index[after]
		if !ok {
			// Anchor vanished from the log; should not happen given
			// server-side position resolution, but fail safe by
			// inserting at the start rather than panicking.
			idx = -1
		}
		pos = idx + 1
	}
	for pos < len(d.nodes) && d.nodes[pos].after == after && d.nodes[pos].id.less(id) {
		pos++
	}
	node := charNode{id: id, after: after, ch: ch}
	d.nodes = append(d.nodes, charNode{})
	copy(d.nodes[pos+1:], d.nodes[pos:])
	d.nodes[pos] = node
	for i := pos; i < len(d.nodes); i++ {
		d.index[d.nodes[i].id] = i
	}
}

// applyInsert resolves an external position against the current live
// view and mints one node per rune of text.
func (d *Document) applyInsert(agent string, op Op) []OpID {
	live := d.liveSeq()
	anchor := zeroID
	if op.Position > 0 {
		if op.Position-1 < len(live) {
			anchor = live[op.Position-1]
		} else if len(live) > 0 {
			anchor = live[len(live)-1]
		}
	}
	minted := make([]OpID, 0, len(op.Text))
	for _, r := range op.Text {
		id := OpID{Agent: agent, Seq: d.nextSeq(agent)}
		d.insertAfter(anchor, id, r)
		anchor = id
		minted = append(minted, id)
	}
	return minted
}

// visibleAsOf returns, in canonical node order, the ids of characters
// visible as of frontier: nodes reachable from it and not tombstoned
// by a delete record also reachable from it. The root (empty) frontier
// yields no visible ids (the empty document).
func (d *Document) visibleAsOf(frontier bridge.Frontier) []OpID {
	if frontier.IsRoot() {
		return nil
	}
	included := make(map[string]bool, len(frontier))
	for _, id := range frontier {
		included[id] = true
	}
	deleted := make(map[OpID]bool)
	for _, rec := range d.deletes {
		if !included[rec.id.String()] {
			continue
		}
		for _, t := range rec.targets {
			deleted[t] = true
		}
	}
	ids := make([]OpID, 0, len(d.nodes))
	for _, n := range d.nodes {
		if !included[n.id.String()] {
			continue
		}
		if deleted[n.id] {
			continue
		}
		ids = append(ids, n.id)
	}
	return ids
}

// applyDelete resolves [start, end) against a stable reference view and
// tombstones the targeted nodes, recording a delete record so later
// historical replay can reproduce the tombstone state.
//
// When the caller declared a parent version, start/end are resolved
// against the visible characters *as of that parent* rather than the
// current, possibly already-mutated live view. That reference never
// changes across a retry of the same PUT (same body, same declared
// parent), so the retry resolves to the same target node ids and
// tombstoning them again is a no-op — the idempotence-on-the-overlap
// requirement of spec.md §4.2 and §8. With no declared parent, start/end
// resolve against the current live view, matching concurrent inserts'
// resolve-at-integration-time behavior.
func (d *Document) applyDelete(agent string, op Op, parent bridge.Frontier) OpID {
	live := d.liveSeq()
	if !parent.IsRoot() {
		live = d.visibleAsOf(parent)
	}
	start, end := op.Start, op.End
	if start < 0 {
		start = 0
	}
	if end > len(live) {
		end = len(live)
	}
	var targets []OpID
	if start < end {
		targets = append(targets, live[start:end]...)
	}
	for _, t := range targets {
		d.tipDeleted[t] = true
	}
	id := OpID{Agent: agent, Seq: d.nextSeq(agent)}
	d.deletes = append(d.deletes, deleteRecord{id: id, targets: targets})
	return id
}

// ApplyLocal applies ops authored by agent, declared to build on
// parentExternal (possibly empty, meaning the current tip). It mints and
// returns the resulting version id.
//
// Concurrent inserts always integrate against the single shared causal
// tree rather than a branch per declared parent: like other RGA-family
// CRDTs, position is resolved against live state at integration time
// and the agent-id tie-break guarantees convergence regardless of
// interleaving (spec.md §8 invariant 3, scenario S4). Declared parents
// are validated — an id the bridge never issued is rejected — but are
// not themselves used to pick an anchor point.
func (d *Document) ApplyLocal(ops []Op, agent string, parentExternal []string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var parent bridge.Frontier
	for _, p := range parentExternal {
		if p == "" {
			continue
		}
		f, ok := d.bridge.ExternalToFrontier(p)
		if !ok {
			return "", ErrUnknownParent
		}
		parent = parent.Union(f)
	}

	var minted bridge.Frontier
	for _, op := range ops {
		switch op.Kind {
		case KindInsert:
			for _, id := range d.applyInsert(agent, op) {
				minted = append(minted, id.String())
			}
		case KindDelete:
			id := d.applyDelete(agent, op, parent)
			minted = append(minted, id.String())
		}
	}

	d.tip = d.tip.Union(minted)
	version, _ := d.bridge.FrontierToExternal(d.tip)
	return version, nil
}

// Materialize renders the document text. A nil external id renders the
// tip; a non-nil id renders the state as of that previously-issued
// version, replaying the op log filtered to ids reachable from it.
func (d *Document) Materialize(external *string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if external == nil || *external == "" {
		var b strings.Builder
		for _, n := range d.nodes {
			if !d.tipDeleted[n.id] {
				b.WriteRune(n.ch)
			}
		}
		return b.String(), nil
	}

	frontier, ok := d.bridge.ExternalToFrontier(*external)
	if !ok {
		return "", ErrUnknownParent
	}

	byID := make(map[OpID]rune, len(d.nodes))
	for _, n := range d.nodes {
		byID[n.id] = n.ch
	}
	var b strings.Builder
	for _, id := range d.visibleAsOf(frontier) {
		b.WriteRune(byID[id])
	}
	return b.String(), nil
}

// VersionOf returns the external id of the document's current tip,
// and whether that tip is the root (empty document, never edited).
func (d *Document) VersionOf() (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.bridge.FrontierToExternal(d.tip)
}
