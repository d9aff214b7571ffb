// Package httputil renders responses and translates domain errors into the
// wire taxonomy exposed to clients.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "tollgate/pkg/domain-errors"
)

// Wire codes understood by client SDKs.
const (
	WireInternalServerError = 1
	WireConnectionFailed    = 100
	WireObjectNotFound      = 101
	WireInvalidQuery        = 102
	WireInvalidJSON         = 107
	WireDuplicateRequest    = 159
	WireInvalidSessionToken = 209
)

// Translation is the (code, status, message) triple rendered for an error.
// Code is zero for kinds that render an opaque body without a wire code.
type Translation struct {
	Code    int
	Status  int
	Message string
}

const (
	msgUnauthorized      = "unauthorized"
	msgMasterKeyRequired = "unauthorized: master key is required"
	msgInternal          = "Internal server error."
)

// Translate maps err onto the wire taxonomy. Details of internal and
// credential failures never reach the caller.
func Translate(err error) Translation {
	de, ok := dErrors.As(err)
	if !ok {
		return Translation{Code: WireInternalServerError, Status: http.StatusInternalServerError, Message: msgInternal}
	}

	switch de.Code {
	case dErrors.CodeMalformedContext:
		return Translation{Code: WireInvalidJSON, Status: http.StatusBadRequest, Message: "Invalid object for context."}
	case dErrors.CodeInvalidRequest, dErrors.CodeUnauthorized:
		return Translation{Status: http.StatusForbidden, Message: msgUnauthorized}
	case dErrors.CodeForbidden:
		return Translation{Status: http.StatusForbidden, Message: msgMasterKeyRequired}
	case dErrors.CodeRateLimited:
		return Translation{Code: WireConnectionFailed, Status: http.StatusTooManyRequests, Message: de.Message}
	case dErrors.CodeDuplicateRequest:
		return Translation{Code: WireDuplicateRequest, Status: http.StatusBadRequest, Message: "Duplicate request"}
	case dErrors.CodeInvalidSessionToken:
		return Translation{Code: WireInvalidSessionToken, Status: http.StatusBadRequest, Message: "Invalid session token"}
	case dErrors.CodeNotFound:
		return Translation{Code: WireObjectNotFound, Status: http.StatusNotFound, Message: de.Message}
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvalidInput, dErrors.CodeConflict:
		return Translation{Code: WireInvalidQuery, Status: http.StatusBadRequest, Message: de.Message}
	case dErrors.CodeInternal:
		// Internal errors created deliberately with a caller-facing message
		// (server state) keep it; wrapped infrastructure failures do not.
		if de.Err == nil && de.Message != "" {
			return Translation{Code: WireInternalServerError, Status: http.StatusInternalServerError, Message: de.Message}
		}
	}
	return Translation{Code: WireInternalServerError, Status: http.StatusInternalServerError, Message: msgInternal}
}

type errorResponse struct {
	Code  int    `json:"code,omitempty"`
	Error string `json:"error"`
}

// WriteError translates err and writes it as a JSON body.
func WriteError(w http.ResponseWriter, err error) {
	t := Translate(err)
	WriteJSON(w, t.Status, errorResponse{Code: t.Code, Error: t.Message})
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// IsClientError reports whether err translates to a 4xx response.
func IsClientError(err error) bool {
	if err == nil {
		return false
	}
	var de *dErrors.Error
	if !errors.As(err, &de) {
		return false
	}
	s := Translate(err).Status
	return s >= 400 && s < 500
}
