// Package httpx holds the small HTTP helpers shared by every handler:
// JSON and structured-error writers, request ids, request logging and an
// in-process response recorder used for internal re-dispatch.
package httpx

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"certified/internal/model"
)

const (
	ContentTypeJSON        = "application/json"
	ContentTypeOctetStream = "application/octet-stream"
)

func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

// WriteRawJSON writes body unchanged. Used for canonical artifact bodies
// whose bytes are the input of the ETag digest.
func WriteRawJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// WriteCode writes {"error":{"code":code}} with an optional message.
func WriteCode(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, model.ErrorBody{Error: model.ErrorDetail{Code: code, Message: message}})
}

// WriteError writes a structured error for err. 5xx details are logged and
// replaced by a generic message.
func WriteError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, status int, code string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if status >= http.StatusInternalServerError {
		RequestLogger(logger, r).Error("internal_server_error",
			zap.Error(err),
			zap.Int("status", status),
		)
		msg = "internal server error"
	}
	WriteCode(w, status, code, msg)
}

func MethodNotAllowed(w http.ResponseWriter) {
	WriteCode(w, http.StatusMethodNotAllowed, model.CodeMethodNotAllowed, "method not allowed")
}

// ErrorCode extracts error.code from a JSON body, or "" when the body is not
// a structured error.
func ErrorCode(body []byte) string {
	var eb struct {
		Error *struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &eb); err != nil || eb.Error == nil {
		return ""
	}
	return eb.Error.Code
}

// MaxBodyBytes bounds every JSON request body.
const MaxBodyBytes = 1 << 20
