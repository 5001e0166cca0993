package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Polqt/braidcore/internal/auth"
	"github.com/Polqt/braidcore/internal/broadcast"
	"github.com/Polqt/braidcore/internal/messagelog"
	"github.com/Polqt/braidcore/internal/store"
)

// legacyChatConversation is the Persistence Layer key the legacy global
// /chat log persists and rehydrates under — the one resource that
// exists eagerly rather than being keyed by a URL path parameter.
const legacyChatConversation = ""

// Deps are the process-wide, long-lived collaborators every handler in
// this package draws on. A single Deps is shared across every request;
// per-resource state lives in the lazily-created registries held
// alongside it.
type Deps struct {
	Fabric   *broadcast.Fabric
	Verifier *auth.Verifier
	ChatLog  *messagelog.Log // the legacy global /chat resource
	Store    store.Store     // nil selects the no-durability configuration (spec.md §6.5)
	Logger   *slog.Logger

	documents     *documentRegistry
	conversations *conversationRegistry
}

// NewDeps wires a Deps from its required collaborators. Store may be
// nil (spec.md §6.5 "if absent the core runs ... with no durability").
// If a Store is configured, the legacy chat log is rehydrated from it
// immediately (spec.md §4.8 "on process start, the core calls load_* to
// rehydrate the in-memory message log"); per-conversation logs have no
// id to rehydrate by until a request names one, so conversations rehydrate
// lazily on first reference instead (see conversationRegistry.get).
func NewDeps(fabric *broadcast.Fabric, verifier *auth.Verifier, st store.Store, logger *slog.Logger) *Deps {
	if logger == nil {
		logger = slog.Default()
	}
	chatLog := messagelog.NewLog()
	if st != nil {
		rehydrateLog(chatLog, st, legacyChatConversation, logger)
	}
	return &Deps{
		Fabric:        fabric,
		Verifier:      verifier,
		ChatLog:       chatLog,
		Store:         st,
		Logger:        logger,
		documents:     newDocumentRegistry(),
		conversations: newConversationRegistry(st, logger),
	}
}

// rehydrateLog loads conversation's persisted messages and version
// edges and replays them into log, preserving append order per spec.md
// §4.8. A load failure is logged and swallowed, matching the
// Persistence Layer's "every call may fail, core logs and continues"
// contract — the process still starts, just without prior history.
func rehydrateLog(log *messagelog.Log, st store.Store, conversation string, logger *slog.Logger) {
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
	log.LoadSnapshot(messages, edges)
}

// NewRouter builds the full HTTP surface from spec.md §6.1: the chat
// routes first, then the messaging and document routes, then the
// ambient /healthz and /metrics endpoints — mirroring the route order
// documented in original_source/src/backend/routes/router.rs.
func NewRouter(d *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/chat", d.handleChatSubscribe)
	r.Put("/chat", d.handleChatPut)

	r.Get("/sync/conversations/{conversation_id}/messages", d.handleConversationSubscribe)
	r.Put("/sync/conversations/{conversation_id}/messages", d.handleConversationPut)
	r.Put("/sync/conversations/{conversation_id}/messages/{message_id}", d.handleConversationMessagePut)

	r.Get("/collab/{doc_id}", d.handleDocumentSubscribe)
	r.Put("/collab/{doc_id}", d.handleDocumentPut)

	r.Get("/healthz", handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
