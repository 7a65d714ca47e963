// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"

	"github.com/ManuGH/xdesign/internal/api/problem"
	"github.com/ManuGH/xdesign/internal/log"
	"github.com/google/uuid"
)

// RequestID propagates the caller's X-Request-ID or assigns a fresh one, and
// attaches a request-scoped logger to the context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(problem.HeaderRequestID)
		if reqID == "" || len(reqID) > 128 {
			reqID = uuid.NewString()
		}
		w.Header().Set(problem.HeaderRequestID, reqID)
		ctx := log.ContextWithRequestID(r.Context(), reqID)
		logger := log.WithContext(ctx, log.Base())
		next.ServeHTTP(w, r.WithContext(logger.WithContext(ctx)))
	})
}
