package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"studyvault/internal/core"
)

type errorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Detail  map[string]string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// writeError maps a pipeline/service error onto an HTTP status and a
// structured JSON body. Uncoded errors stay opaque 500s.
func writeError(w http.ResponseWriter, err error) {
	var ce *core.CodedError
	if !errors.As(err, &ce) {
		log.Printf("handler: internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Code:    string(core.CodeInvalidState),
			Message: "internal error",
		})
		return
	}
	writeJSON(w, httpStatusForCode(ce.Code), errorResponse{
		Code:    string(ce.Code),
		Message: ce.Message,
		Detail:  ce.Detail,
	})
}

func httpStatusForCode(code core.Code) int {
	switch code {
	case core.CodeNotFound:
		return http.StatusNotFound
	case core.CodeAlreadyCompleted, core.CodeMaterialDuplicate:
		return http.StatusConflict
	case core.CodeExpired:
		return http.StatusGone
	case core.CodeObjectNotFound, core.CodeSizeMismatch, core.CodeContentTypeMismatch,
		core.CodeETagMismatch, core.CodeUnsupportedType:
		return http.StatusBadRequest
	case core.CodeParseFailed, core.CodeChunkFailed:
		return http.StatusUnprocessableEntity
	case core.CodeQueueUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
