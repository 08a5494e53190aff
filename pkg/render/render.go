// Package render writes API responses in the {"data", "metadata"} envelope,
// as JSON or, when the client asks for it, MessagePack.
package render

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// MsgpackContentType is the media type selecting MessagePack output
const MsgpackContentType = "application/msgpack"

// Envelope wraps data with response metadata
type Envelope struct {
	Data     interface{} `json:"data" msgpack:"data"`
	Metadata Metadata    `json:"metadata" msgpack:"metadata"`
}

// Metadata accompanies every response
type Metadata struct {
	Timestamp string `json:"timestamp" msgpack:"timestamp"`
	RequestID string `json:"request_id,omitempty" msgpack:"request_id,omitempty"`
}

// Wrap builds an envelope stamped with the current time
func Wrap(data interface{}, requestID string) Envelope {
	return Envelope{
		Data: data,
		Metadata: Metadata{
			Timestamp: time.Now().Format(time.RFC3339),
			RequestID: requestID,
		},
	}
}

// WantsMsgpack reports whether the request prefers MessagePack
func WantsMsgpack(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), MsgpackContentType)
}

// Respond encodes body using the format negotiated from r
func Respond(w http.ResponseWriter, r *http.Request, status int, body interface{}, log zerolog.Logger) {
	if WantsMsgpack(r) {
		payload, err := msgpack.Marshal(body)
		if err != nil {
			log.Error().Err(err).Msg("Failed to encode MessagePack response")
			http.Error(w, "Failed to encode response", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", MsgpackContentType)
		w.WriteHeader(status)
		if _, err := w.Write(payload); err != nil {
			log.Error().Err(err).Msg("Failed to write MessagePack response")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// ErrorEnvelope carries a failure and, when one exists, the partial result
type ErrorEnvelope struct {
	Data     interface{} `json:"data,omitempty" msgpack:"data,omitempty"`
	Error    string      `json:"error" msgpack:"error"`
	Metadata Metadata    `json:"metadata" msgpack:"metadata"`
}

// Fail writes an error envelope with the given status
func Fail(w http.ResponseWriter, r *http.Request, status int, err error, partial interface{}, log zerolog.Logger) {
	Respond(w, r, status, ErrorEnvelope{
		Data:  partial,
		Error: err.Error(),
		Metadata: Metadata{
			Timestamp: time.Now().Format(time.RFC3339),
		},
	}, log)
}

// Decode reads a request body as MessagePack when the client sent
// Content-Type: application/msgpack, and as JSON otherwise
func Decode(r *http.Request, v interface{}) error {
	if strings.HasPrefix(r.Header.Get("Content-Type"), MsgpackContentType) {
		return msgpack.NewDecoder(r.Body).Decode(v)
	}
	return json.NewDecoder(r.Body).Decode(v)
}
