package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/Polqt/braidcore/internal/braidhttp"
	"github.com/Polqt/braidcore/internal/ingress"
	"github.com/Polqt/braidcore/internal/subscribe"
)

const chatResourceID = "chat"

// handleChatSubscribe serves the legacy global chat log's subscription
// stream (spec.md §6.1 "Global conversation log (legacy): /chat").
func (d *Deps) handleChatSubscribe(w http.ResponseWriter, r *http.Request) {
	snapshot := func() (string, []byte, error) {
		messages, tip := d.ChatLog.SnapshotSince(nil)
		body, err := json.Marshal(messages)
		if err != nil {
			return "", nil, err
		}
		return tip, body, nil
	}
	if err := subscribe.Serve(w, r, d.Fabric, chatResourceID, snapshot); err != nil {
		writeError(w, d.Logger, err)
	}
}

// handleChatPut serves PUTs against the legacy global chat log.
func (d *Deps) handleChatPut(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, d.Logger, err)
		return
	}

	target := ingress.MessageLogTarget{
		Log:        d.ChatLog,
		Fabric:     d.Fabric,
		ResourceID: chatResourceID,
		Store:      d.Store,
		Logger:     d.Logger,
	}
	version, err := ingress.PutMessage(r.Context(), d.Verifier, target,
		r.Header.Get("Authorization"), r.Header.Get(braidhttp.HeaderParents), body)
	if err != nil {
		writeError(w, d.Logger, err)
		return
	}

	w.Header().Set(braidhttp.HeaderVersion, braidhttp.EncodeQuotedList([]string{version}))
	w.WriteHeader(http.StatusOK)
}
