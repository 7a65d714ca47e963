// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package problem writes RFC 7807 problem documents.
package problem

import (
	"encoding/json"
	"net/http"

	"github.com/ManuGH/xdesign/internal/log"
)

const (
	HeaderRequestID  = "X-Request-ID"
	JSONKeyRequestID = "requestId"
	ContentType      = "application/problem+json"
)

// Details is the decoded form of a problem document.
type Details struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Code      string `json:"code"`
	Detail    string `json:"detail,omitempty"`
	Instance  string `json:"instance,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// Write writes a problem response. problemType is a machine identifier such
// as "project/not_found"; code is its stable short form.
func Write(w http.ResponseWriter, r *http.Request, status int, problemType, title, code, detail string) {
	d := Details{
		Type:   problemType,
		Title:  title,
		Status: status,
		Code:   code,
		Detail: detail,
	}
	if r != nil {
		d.Instance = r.URL.EscapedPath()
		d.RequestID = log.RequestIDFromContext(r.Context())
	}
	if d.RequestID == "" {
		d.RequestID = w.Header().Get(HeaderRequestID)
	}
	if d.RequestID != "" {
		w.Header().Set(HeaderRequestID, d.RequestID)
	}

	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(d); err != nil {
		logger := log.WithComponent("http")
		logger.Error().Err(err).Str("type", problemType).Int("status", status).Msg("failed to encode problem response")
	}
}
