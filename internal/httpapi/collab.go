package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Polqt/braidcore/internal/braidhttp"
	"github.com/Polqt/braidcore/internal/ingress"
	"github.com/Polqt/braidcore/internal/subscribe"
)

func documentResourceID(docID string) string {
	return "collab:" + docID
}

// handleDocumentSubscribe serves a document's subscription stream
// (spec.md §6.1 "Document: /collab/{doc_id}"). The snapshot body is
// the materialized text plus its version, matching the shape
// ingress.PutDocument publishes on write so every frame on this stream
// has one consistent JSON shape.
func (d *Deps) handleDocumentSubscribe(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "doc_id")
	doc := d.documents.get(docID)

	snapshot := func() (string, []byte, error) {
		// Render the text as of the version just read, not the tip, so a
		// write landing between the two calls cannot split the pair.
		version, isRoot := doc.VersionOf()
		text := ""
		if !isRoot {
			var err error
			if text, err = doc.Materialize(&version); err != nil {
				return "", nil, err
			}
		}
		body, err := json.Marshal(struct {
			Text    string `json:"text"`
			Version string `json:"version"`
		}{Text: text, Version: version})
		if err != nil {
			return "", nil, err
		}
		return version, body, nil
	}
	if err := subscribe.Serve(w, r, d.Fabric, documentResourceID(docID), snapshot); err != nil {
		writeError(w, d.Logger, err)
	}
}

// handleDocumentPut serves a document PUT (spec.md §4.5, §6.4).
func (d *Deps) handleDocumentPut(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "doc_id")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, d.Logger, err)
		return
	}

	target := ingress.DocumentTarget{
		Document:   d.documents.get(docID),
		Fabric:     d.Fabric,
		ResourceID: documentResourceID(docID),
		Logger:     d.Logger,
	}
	version, err := ingress.PutDocument(r.Context(), d.Verifier, target,
		r.Header.Get("Authorization"), r.Header.Get(braidhttp.HeaderParents), body)
	if err != nil {
		writeError(w, d.Logger, err)
		return
	}

	w.Header().Set(braidhttp.HeaderVersion, braidhttp.EncodeQuotedList([]string{version}))
	w.WriteHeader(http.StatusOK)
}
