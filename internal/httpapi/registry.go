// Package httpapi wires the core components (Document Engine, Message
// Log, Broadcast Fabric, Subscription Engine, Update Ingress, Auth
// Gate) onto the HTTP surface from spec.md §6.1, via
// github.com/go-chi/chi/v5. Grounded on
// original_source/src/backend/routes/router.rs for the route table
// shape (chat routes, then collab routes) and
// original_source/src/backend/error/types.rs's BackendError for the
// status-code boundary, collapsed here to apperr.Kind plus a single
// responder.
package httpapi

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Polqt/braidcore/internal/document"
	"github.com/Polqt/braidcore/internal/messagelog"
	"github.com/Polqt/braidcore/internal/store"
)

// documentRegistry lazily creates and holds one *document.Document per
// doc_id, mirroring broadcast.Fabric's lazy per-resource creation
// (spec.md §4.2 "a document is created on first reference").
type documentRegistry struct {
	mu   sync.Mutex
	docs map[string]*document.Document
}

func newDocumentRegistry() *documentRegistry {
	return &documentRegistry{docs: make(map[string]*document.Document)}
}

func (r *documentRegistry) get(docID string) *document.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[docID]
	if !ok {
		d = document.New()
		r.docs[docID] = d
	}
	return d
}

// conversationRegistry lazily creates and holds one
// *messagelog.ConversationLog per conversation_id. Unlike the legacy
// chat log, a conversation has no id to rehydrate by until a request
// names one (spec.md §4.8's "on process start" rehydration has nothing
// to enumerate from), so each log rehydrates from the Persistence Layer
// the first time its conversation_id is referenced instead.
type conversationRegistry struct {
	mu     sync.Mutex
	logs   map[string]*messagelog.ConversationLog
	store  store.Store
	logger *slog.Logger
}

func newConversationRegistry(st store.Store, logger *slog.Logger) *conversationRegistry {
	return &conversationRegistry{logs: make(map[string]*messagelog.ConversationLog), store: st, logger: logger}
}

func (r *conversationRegistry) get(conversationID string) *messagelog.ConversationLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.logs[conversationID]
	if !ok {
		l = messagelog.NewConversationLog()
		if r.store != nil {
			rehydrateConversation(l, r.store, conversationID, r.logger)
		}
		r.logs[conversationID] = l
	}
	return l
}

// rehydrateConversation loads conversation's persisted messages and
// version edges and replays them into log. A load failure is logged and
// swallowed, matching the Persistence Layer's "every call may fail,
// core logs and continues" contract.
func rehydrateConversation(log *messagelog.ConversationLog, st store.Store, conversation string, logger *slog.Logger) {
	ctx := context.Background()
	messages, err := st.LoadMessages(ctx, conversation)
	if err != nil {
		logger.Warn("rehydrate: load messages failed", "conversation", conversation, "error", err)
		return
	}
	edges, err := st.LoadVersionEdges(ctx, conversation)
	if err != nil {
		logger.Warn("rehydrate: load version edges failed", "conversation", conversation, "error", err)
		return
	}
	log.LoadSnapshot(messagelog.ReconstructFromGeneric(conversation, messages, edges), edges)
}
