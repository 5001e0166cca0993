// Package ingress implements Update Ingress (C8): the PUT-side
// procedure common to both the Message Log and the Document Engine —
// authenticate, validate, authorize, parse parents, apply, best-effort
// persist, broadcast, respond (spec.md §4.5). Document PUTs skip the
// persist step: the Document Engine has no durable storage. Grounded on
// original_source/src/backend/chat/handlers/put.rs (validation
// constants, header parsing order, "don't fail the request on
// persistence failure") and .../messaging/message_sync.rs
// (per-conversation participant check, per-message PUT path shape).
package ingress

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Polqt/braidcore/internal/apperr"
	"github.com/Polqt/braidcore/internal/auth"
	"github.com/Polqt/braidcore/internal/braidhttp"
	"github.com/Polqt/braidcore/internal/broadcast"
	"github.com/Polqt/braidcore/internal/document"
	"github.com/Polqt/braidcore/internal/messagelog"
	"github.com/Polqt/braidcore/internal/store"
)

var validate = validator.New()

// ParseParents parses the Parents header per spec.md §6.2/§4.5 step 4.
// It never falls through to a JSON-body "parents" field silently — a
// caller that also accepts a body field (document PUT, spec.md §6.4)
// does so explicitly by preferring a non-empty header result and
// falling back to the body value only when the header was absent.
func ParseParents(header string) ([]string, error) {
	ids, err := braidhttp.ParseQuotedList(header)
	if err != nil {
		return nil, apperr.New(apperr.KindClientMalformed, "invalid Parents header: %v", err)
	}
	return ids, nil
}

// messageRequest is the wire shape of spec.md §6.3.
type messageRequest struct {
	Text      string  `json:"text" validate:"required,max=10000"`
	Author    string  `json:"author" validate:"required,max=100"`
	Timestamp string  `json:"timestamp" validate:"required"`
	Version   *string `json:"version,omitempty"`
}

// MessageLogTarget bundles the per-resource dependencies a message-log
// PUT needs: the authoritative log, its broadcast channel, and
// (optionally) durable storage and conversation-participant
// authorization.
type MessageLogTarget struct {
	Log                *messagelog.Log
	Fabric             *broadcast.Fabric
	ResourceID         string
	Store              store.Store
	Conversation       string // persistence and participant key; "" for the legacy global log
	RequireParticipant bool   // false skips the participant check
	Logger             *slog.Logger
}

// PutMessage runs the full C8 procedure for the Message Log: the
// caller has already read the request body and header values.
func PutMessage(ctx context.Context, verifier *auth.Verifier, t MessageLogTarget, authorizationHeader, parentsHeader string, body []byte) (version string, err error) {
	principal, err := verifier.Authenticate(ctx, authorizationHeader)
	if err != nil {
		return "", err
	}

	var req messageRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return "", apperr.New(apperr.KindClientMalformed, "invalid JSON body: %v", err)
	}
	req.Text = strings.TrimSpace(req.Text)
	req.Author = strings.TrimSpace(req.Author)
	if req.Text == "" {
		return "", apperr.New(apperr.KindClientMalformed, "text must not be empty")
	}
	if req.Author == "" {
		return "", apperr.New(apperr.KindClientMalformed, "author must not be empty")
	}
	if err := validate.Struct(req); err != nil {
		return "", apperr.New(apperr.KindClientMalformed, "validation failed: %v", err)
	}

	if t.RequireParticipant {
		if t.Store == nil {
			return "", apperr.New(apperr.KindForbidden, "no participant registry configured")
		}
		ok, storeErr := t.Store.IsParticipant(ctx, principal.ID, t.Conversation)
		if storeErr != nil || !ok {
			return "", apperr.New(apperr.KindForbidden, "not a participant in this conversation")
		}
	}

	parents, err := ParseParents(parentsHeader)
	if err != nil {
		return "", err
	}

	version = t.Log.Append(messagelog.Message{
		Text:      req.Text,
		Author:    req.Author,
		Timestamp: req.Timestamp,
	}, parents)

	persistBestEffort(ctx, t.Store, t.Conversation, principal.ID, messagelog.Message{
		Text: req.Text, Author: req.Author, Timestamp: req.Timestamp, Version: &version,
	}, version, parents, t.Logger)

	messages, tip := t.Log.SnapshotSince(nil)
	body, marshalErr := json.Marshal(messages)
	if marshalErr != nil {
		return "", apperr.New(apperr.KindInternal, "marshal snapshot: %v", marshalErr)
	}
	t.Fabric.Publish(t.ResourceID, broadcast.Update{Version: tip, State: body})

	return version, nil
}

// documentRequest is the wire shape of spec.md §6.4.
type documentRequest struct {
	Operations []document.Op `json:"operations" validate:"required,min=1,dive"`
	Parents    []string      `json:"parents,omitempty"`
	Version    *string       `json:"version,omitempty"`
}

// DocumentTarget bundles the per-resource dependencies a document PUT
// needs. Document writes require only authentication in this version
// (spec.md §4.5 step 3 — stricter policies are an open question).
type DocumentTarget struct {
	Document   *document.Document
	Fabric     *broadcast.Fabric
	ResourceID string
	Logger     *slog.Logger
}

// PutDocument runs the full C8 procedure for the Document Engine.
func PutDocument(ctx context.Context, verifier *auth.Verifier, t DocumentTarget, authorizationHeader, parentsHeader string, body []byte) (version string, err error) {
	_, err = verifier.Authenticate(ctx, authorizationHeader)
	if err != nil {
		return "", err
	}

	var req documentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return "", apperr.New(apperr.KindClientMalformed, "invalid JSON body: %v", err)
	}
	if err := validate.Struct(req); err != nil {
		return "", apperr.New(apperr.KindClientMalformed, "validation failed: %v", err)
	}

	parents, err := ParseParents(parentsHeader)
	if err != nil {
		return "", err
	}
	if len(parents) == 0 {
		parents = req.Parents
	}

	version, err = t.Document.ApplyLocal(req.Operations, newAgentID(), parents)
	if err != nil {
		if err == document.ErrUnknownParent {
			return "", apperr.New(apperr.KindUnknownParent, "referenced parent version is unknown to this server")
		}
		return "", apperr.New(apperr.KindInternal, "apply_local: %v", err)
	}

	text, err := t.Document.Materialize(&version)
	if err != nil {
		return "", apperr.New(apperr.KindInternal, "materialize: %v", err)
	}
	body, marshalErr := json.Marshal(struct {
		Text    string `json:"text"`
		Version string `json:"version"`
	}{Text: text, Version: version})
	if marshalErr != nil {
		return "", apperr.New(apperr.KindInternal, "marshal snapshot: %v", marshalErr)
	}
	t.Fabric.Publish(t.ResourceID, broadcast.Update{Version: version, State: body})

	return version, nil
}

// newAgentID mints a fresh per-request agent identifier, grounded on
// original_source/src/backend/collab/handlers.rs's handle_collab_put,
// which calls generate_agent_id() fresh on every PUT rather than
// threading a client-supplied session id through the request.
func newAgentID() string {
	return "agent-" + uuid.NewString()
}

// conversationMessageRequest is the wire shape accepted on
// /sync/conversations/{conversation_id}/messages (spec.md §6.1), a
// richer sibling of messageRequest that also carries a message type
// (original_source/src/backend/messaging/message_sync.rs's
// MessageType). sender_id is never taken from the body — it is always
// the authenticated principal.
type conversationMessageRequest struct {
	Text    string  `json:"text" validate:"required,max=10000"`
	Type    string  `json:"type,omitempty" validate:"omitempty,oneof=text image file system"`
	Version *string `json:"version,omitempty"`
}

// ConversationTarget bundles the per-resource dependencies a
// conversation-message PUT needs.
type ConversationTarget struct {
	Log                *messagelog.ConversationLog
	Fabric             *broadcast.Fabric
	ResourceID         string
	Store              store.Store
	Conversation       string
	RequireParticipant bool
	Logger             *slog.Logger
}

// PutConversationMessage runs the C8 procedure for the messaging
// subsystem's per-conversation log. messageID is the client-chosen
// identifier from the URL path (spec.md §6.1: "message_id is chosen by
// the client for idempotence at the message level"); it becomes the
// ChatMessage's ID verbatim, so a client retrying the same PUT after a
// dropped response produces a duplicate log entry rather than silently
// deduplicating — the log itself does not enforce idempotence, matching
// the Message Log's "no validation or garbage collection of lineage"
// policy (spec.md §4.1).
func PutConversationMessage(ctx context.Context, verifier *auth.Verifier, t ConversationTarget, authorizationHeader, parentsHeader, messageID string, body []byte) (version string, err error) {
	principal, err := verifier.Authenticate(ctx, authorizationHeader)
	if err != nil {
		return "", err
	}

	var req conversationMessageRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return "", apperr.New(apperr.KindClientMalformed, "invalid JSON body: %v", err)
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return "", apperr.New(apperr.KindClientMalformed, "text must not be empty")
	}
	if req.Type == "" {
		req.Type = string(messagelog.MessageTypeText)
	}
	if err := validate.Struct(req); err != nil {
		return "", apperr.New(apperr.KindClientMalformed, "validation failed: %v", err)
	}

	if t.RequireParticipant {
		if t.Store == nil {
			return "", apperr.New(apperr.KindForbidden, "no participant registry configured")
		}
		ok, storeErr := t.Store.IsParticipant(ctx, principal.ID, t.Conversation)
		if storeErr != nil || !ok {
			return "", apperr.New(apperr.KindForbidden, "not a participant in this conversation")
		}
	}

	parents, err := ParseParents(parentsHeader)
	if err != nil {
		return "", err
	}

	msg := t.Log.Append(messagelog.ChatMessage{
		ID:             messageID,
		ConversationID: t.Conversation,
		SenderID:       principal.ID.String(),
		Text:           req.Text,
		Type:           messagelog.MessageType(req.Type),
		IsDelivered:    true,
	}, parents)
	version = msg.BraidVersion

	persistConversationMessage(ctx, t.Store, t.Conversation, principal.ID, msg, parents, t.Logger)

	messages, tip := t.Log.SnapshotSince(nil)
	snapshotBody, marshalErr := json.Marshal(messages)
	if marshalErr != nil {
		return "", apperr.New(apperr.KindInternal, "marshal snapshot: %v", marshalErr)
	}
	t.Fabric.Publish(t.ResourceID, broadcast.Update{Version: tip, State: snapshotBody})

	return version, nil
}

// persistConversationMessage maps a ChatMessage onto the generic
// Message shape the Persistence Layer accepts. CRDTTimestamp and Type
// are not yet part of that shape; see DESIGN.md for the open question
// this leaves about widening the Store contract.
func persistConversationMessage(ctx context.Context, s store.Store, conversation string, principal uuid.UUID, msg messagelog.ChatMessage, parents []string, logger *slog.Logger) {
	if s == nil {
		return
	}
	version := msg.BraidVersion
	genericMsg := messagelog.Message{Text: msg.Text, Author: msg.SenderID, Version: &version}
	if err := s.UpsertMessage(ctx, conversation, principal, genericMsg, version); err != nil {
		logWarn(logger, "persist conversation message failed", err)
	}
	if err := s.UpsertVersionEdge(ctx, conversation, version, parents); err != nil {
		logWarn(logger, "persist version edge failed", err)
	}
}

func persistBestEffort(ctx context.Context, s store.Store, conversation string, principal uuid.UUID, msg messagelog.Message, version string, parents []string, logger *slog.Logger) {
	if s == nil {
		return
	}
	if err := s.UpsertMessage(ctx, conversation, principal, msg, version); err != nil {
		logWarn(logger, "persist message failed", err)
	}
	if err := s.UpsertVersionEdge(ctx, conversation, version, parents); err != nil {
		logWarn(logger, "persist version edge failed", err)
	}
}

func logWarn(logger *slog.Logger, msg string, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn(msg, "error", err)
}
