// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package events

import (
	"testing"

	"github.com/ManuGH/xdesign/internal/bus"
	"github.com/ManuGH/xdesign/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeAnalysisComplete(t *testing.T) {
	msg, err := Encode(TopicAnalysisComplete, AnalysisCompletePayload{
		Status:       StatusGenerating,
		Theme:        "ocean-breeze",
		TotalScreens: 2,
		Screens:      []model.ScreenSpec{{ID: "home"}, {ID: "stats"}},
		ProjectID:    "p1",
	})
	require.NoError(t, err)
	require.Contains(t, string(msg.Data), `"totalScreens":2`)

	ev, err := Decode(msg)
	require.NoError(t, err)
	assert.Equal(t, TopicAnalysisComplete, ev.Topic)
	assert.Equal(t, "p1", ev.ProjectID)
	require.NotNil(t, ev.AnalysisComplete)
	assert.Len(t, ev.AnalysisComplete.Screens, 2)
	assert.Nil(t, ev.Status)
}

func TestDecodeFrameCreatedUsesWireFieldNames(t *testing.T) {
	msg := bus.Message{
		Topic: "frame.created",
		Data:  []byte(`{"frame":{"id":"f1","title":"Home","htmlContent":"<div></div>"},"screenId":"home","projectId":"p1"}`),
	}
	ev, err := Decode(msg)
	require.NoError(t, err)
	require.NotNil(t, ev.FrameCreated)
	assert.Equal(t, "f1", ev.FrameCreated.Frame.ID)
	assert.Equal(t, "<div></div>", ev.FrameCreated.Frame.HTML)
	assert.Equal(t, "home", ev.FrameCreated.ScreenID)
}

func TestDecodeStatusTopics(t *testing.T) {
	for _, topic := range []Topic{TopicGenerationStart, TopicAnalysisStart, TopicGenerationComplete, TopicRegenerationStart, TopicRegenerationComplete} {
		msg, err := Encode(topic, StatusPayload{Status: "x", ProjectID: "p"})
		require.NoError(t, err)
		ev, err := Decode(msg)
		require.NoError(t, err, topic)
		require.NotNil(t, ev.Status, topic)
		assert.Equal(t, "p", ev.ProjectID)
	}
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode(bus.Message{Topic: "bogus", Data: []byte(`{}`)})
	require.Error(t, err)

	_, err = Decode(bus.Message{Topic: string(TopicGenerationError), Data: []byte(`{not json`)})
	require.Error(t, err)

	ev, err := Decode(bus.Message{Topic: string(TopicRegenerationError), Data: []byte(`{"status":"error","error":"Frame not found","projectId":"p","frameId":"f"}`)})
	require.NoError(t, err)
	assert.Equal(t, "Frame not found", ev.Error.Error)
	assert.Equal(t, "f", ev.Error.FrameID)
}
