package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Polqt/braidcore/internal/braidhttp"
	"github.com/Polqt/braidcore/internal/ingress"
	"github.com/Polqt/braidcore/internal/subscribe"
)

func conversationResourceID(conversationID string) string {
	return "conversation:" + conversationID
}

// handleConversationSubscribe serves the messaging subsystem's
// per-conversation subscription stream (spec.md §6.1 "Messaging
// conversation stream"). Display order (spec.md §4.3) is left to the
// client; the wire order here is append/Braid-version order, matching
// every other resource's snapshot contract.
func (d *Deps) handleConversationSubscribe(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversation_id")
	log := d.conversations.get(conversationID)

	snapshot := func() (string, []byte, error) {
		messages, tip := log.SnapshotSince(nil)
		body, err := json.Marshal(messages)
		if err != nil {
			return "", nil, err
		}
		return tip, body, nil
	}
	if err := subscribe.Serve(w, r, d.Fabric, conversationResourceID(conversationID), snapshot); err != nil {
		writeError(w, d.Logger, err)
	}
}

// handleConversationPut serves a PUT that lets the server assign the
// message identifier (no message_id in the path).
func (d *Deps) handleConversationPut(w http.ResponseWriter, r *http.Request) {
	d.putConversationMessage(w, r, uuid.NewString())
}

// handleConversationMessagePut serves a PUT against a client-chosen
// message_id (spec.md §6.1's idempotence-at-the-message-level path).
func (d *Deps) handleConversationMessagePut(w http.ResponseWriter, r *http.Request) {
	d.putConversationMessage(w, r, chi.URLParam(r, "message_id"))
}

func (d *Deps) putConversationMessage(w http.ResponseWriter, r *http.Request, messageID string) {
	conversationID := chi.URLParam(r, "conversation_id")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, d.Logger, err)
		return
	}

	target := ingress.ConversationTarget{
		Log:                d.conversations.get(conversationID),
		Fabric:             d.Fabric,
		ResourceID:         conversationResourceID(conversationID),
		Store:              d.Store,
		Conversation:       conversationID,
		RequireParticipant: d.Store != nil,
		Logger:             d.Logger,
	}
	version, err := ingress.PutConversationMessage(r.Context(), d.Verifier, target,
		r.Header.Get("Authorization"), r.Header.Get(braidhttp.HeaderParents), messageID, body)
	if err != nil {
		writeError(w, d.Logger, err)
		return
	}

	w.Header().Set(braidhttp.HeaderVersion, braidhttp.EncodeQuotedList([]string{version}))
	w.WriteHeader(http.StatusOK)
}
