// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ManuGH/xdesign/internal/api/problem"
	"github.com/ManuGH/xdesign/internal/log"
)

var errEmptyBody = errors.New("request body is empty")

func writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Warn().Err(err).Msg("failed to encode response")
	}
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, problemType, title, code, detail string) {
	problem.Write(w, r, status, problemType, title, code, detail)
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, detail string) {
	writeProblem(w, r, http.StatusBadRequest, "request/invalid", "Bad Request", "INVALID_INPUT", detail)
}

func writeNotFound(w http.ResponseWriter, r *http.Request, problemType, detail string) {
	writeProblem(w, r, http.StatusNotFound, problemType, "Not Found", "NOT_FOUND", detail)
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request) {
	writeProblem(w, r, http.StatusUnauthorized, "auth/unauthenticated", "Unauthorized", "UNAUTHORIZED", "Caller identity is missing")
}

func writeUnavailable(w http.ResponseWriter, r *http.Request, detail string) {
	writeProblem(w, r, http.StatusServiceUnavailable, "system/unavailable", "Service Unavailable", "UNAVAILABLE", detail)
}

// writeInternal logs err and answers with a detail-free 500.
func writeInternal(w http.ResponseWriter, r *http.Request, msg string, err error) {
	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Error().Err(err).Str("path", r.URL.Path).Msg(msg)
	writeProblem(w, r, http.StatusInternalServerError, "system/internal", "Internal Server Error", "INTERNAL", "")
}

// decodeBody reads a bounded JSON body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
