// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package llm

import (
	"context"
	"encoding/json"

	"github.com/ManuGH/xdesign/internal/imagesearch"
	"github.com/ManuGH/xdesign/internal/log"
	"github.com/ManuGH/xdesign/internal/model"
)

// MaxToolRounds bounds model calls per render, tool rounds included.
const MaxToolRounds = 5

const searchToolName = "searchUnsplash"

var searchToolSpec = toolSpec{
	Type: "function",
	Function: toolFunction{
		Name:        searchToolName,
		Description: "Search for high-quality images from Unsplash. Use this when you need to add an <img> tag.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "Image search query (e.g. 'modern loft', 'finance graph')"},
				"orientation": {"type": "string", "enum": ["landscape", "portrait", "squarish"], "default": "landscape"}
			},
			"required": ["query"]
		}`),
	},
}

// OriginalFrame carries the frame being regenerated.
type OriginalFrame struct {
	Title  string
	HTML   string
	Prompt string
}

// RenderRequest is the input of one render. Original is set for regeneration.
type RenderRequest struct {
	Spec          model.ScreenSpec
	Index         int
	Total         int
	ContextMarkup string
	ThemeStyle    string
	Original      *OriginalFrame
}

// Renderer produces raw markup for one screen, calling the image tool when the
// model asks for it.
type Renderer struct {
	client *Client
	images imagesearch.Searcher
}

// NewRenderer builds a renderer. A nil searcher hides the image tool.
func NewRenderer(c *Client, images imagesearch.Searcher) *Renderer {
	return &Renderer{client: c, images: images}
}

type searchArgs struct {
	Query       string `json:"query"`
	Orientation string `json:"orientation"`
}

// Render returns the model's raw text. Post-processing is up to the caller.
func (r *Renderer) Render(ctx context.Context, req RenderRequest) (string, error) {
	messages := []chatMessage{
		{Role: "system", Content: renderSystemPrompt()},
		{Role: "user", Content: renderUserPrompt(req)},
	}

	var last chatMessage
	for round := 1; round <= MaxToolRounds; round++ {
		creq := chatRequest{Messages: messages}
		// The final round offers no tools so the model has to answer with markup.
		if r.images != nil && round < MaxToolRounds {
			creq.Tools = []toolSpec{searchToolSpec}
		}
		msg, err := r.client.complete(ctx, "render", creq)
		if err != nil {
			return "", err
		}
		last = msg
		if len(msg.ToolCalls) == 0 {
			return msg.Content, nil
		}

		messages = append(messages, chatMessage{Role: "assistant", Content: msg.Content, ToolCalls: msg.ToolCalls})
		for _, call := range msg.ToolCalls {
			messages = append(messages, chatMessage{
				Role:       "tool",
				ToolCallID: call.ID,
				Content:    r.runTool(ctx, call),
			})
		}
	}
	return last.Content, nil
}

func (r *Renderer) runTool(ctx context.Context, call toolCall) string {
	if call.Function.Name != searchToolName || r.images == nil {
		return ""
	}
	var args searchArgs
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		log.FromContext(ctx).Debug().Err(err).Msg("invalid image tool arguments")
		return ""
	}
	return r.images.Search(ctx, args.Query, args.Orientation)
}
