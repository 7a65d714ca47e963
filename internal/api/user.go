// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/ManuGH/xdesign/internal/log"
)

type userKey struct{}

// requireUser resolves the caller from the trusted identity header.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(s.cfg.UserHeader))
		if id == "" {
			writeUnauthorized(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), userKey{}, id)
		logger := log.FromContext(ctx).With().Str(log.FieldUserID, id).Logger()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(ctx)))
	})
}

func userFrom(ctx context.Context) string {
	id, _ := ctx.Value(userKey{}).(string)
	return id
}
