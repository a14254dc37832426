// Package httpjson implements the JSON-over-HTTP handler plumbing shared by
// the service's endpoints.
package httpjson

import (
	"encoding/json"
	"net/http"
)

type Response struct {
	Status int
	Body   any
}

// M is shorthand for an ad-hoc JSON object.
type M map[string]any

// Handler is an http.Handler that returns its response instead of writing
// it, so status and body stay in one place. A nil return means the handler
// already wrote the response itself.
type Handler func(w http.ResponseWriter, r *http.Request) *Response

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := h(w, r)
	if resp == nil {
		return
	}
	Write(w, resp.Status, resp.Body)
}

func Write(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}
