package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Polqt/braidcore/internal/apperr"
)

// errorBody is the JSON shape written for every non-2xx response. Kind
// is the taxonomy label from spec.md §7, included so a client can
// branch on it without parsing the message string.
type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// statusFor maps an apperr.Kind to the HTTP status spec.md §7 assigns
// it. PersistenceFailed, BroadcastNoSubscribers, and BroadcastLagged
// have no entry here because they never reach this boundary — they
// are recovered locally, per the propagation policy, before an error
// value could be constructed from them.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindClientMalformed:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindUnknownParent:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError is the single point where an error crosses into an HTTP
// response. Internal-kind errors are logged with full detail server
// side; the client only ever sees the taxonomy label and message.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)

	if kind == apperr.KindInternal {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("internal error", "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Kind: kind.String(), Message: err.Error()})
}
