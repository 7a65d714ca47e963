// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"
	"time"

	"github.com/ManuGH/xdesign/internal/api/sse"
	"github.com/ManuGH/xdesign/internal/log"
	"github.com/ManuGH/xdesign/internal/metrics"
	"github.com/ManuGH/xdesign/internal/model"
)

// GET /api/realtime streams the caller's own event channel. There is no
// replay; clients resync through GET /api/projects/{id}.
func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userFrom(ctx)
	channel := model.UserChannel(userID)
	logger := log.FromContext(ctx).With().Str(log.FieldChannel, channel).Logger()

	sub, err := s.deps.Events.Subscribe(ctx, channel)
	if err != nil {
		logger.Error().Err(err).Msg("realtime subscribe failed")
		writeUnavailable(w, r, "Event channel is unavailable")
		return
	}
	defer func() { _ = sub.Close() }()
	defer metrics.TrackRealtimeStream()()

	rc := http.NewResponseController(w)
	h := w.Header()
	h.Set("Content-Type", sse.ContentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := sse.WriteComment(w, "connected"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		logger.Warn().Err(err).Msg("response does not support streaming")
		return
	}
	logger.Debug().Msg("realtime stream opened")

	heartbeat := time.NewTicker(s.cfg.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("realtime stream closed by client")
			return
		case <-heartbeat.C:
			if err := sse.WriteComment(w, "ping"); err != nil {
				return
			}
		case msg, ok := <-sub.C():
			if !ok {
				logger.Debug().Msg("realtime subscription ended")
				return
			}
			if err := sse.WriteMessage(w, msg); err != nil {
				logger.Warn().Err(err).Str(log.FieldTopic, msg.Topic).Msg("dropping unencodable event")
				continue
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
