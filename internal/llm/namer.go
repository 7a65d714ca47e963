// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package llm

import (
	"context"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// UntitledProject is the name used when no name can be derived.
const UntitledProject = "Untitled Project"

const maxNameWords = 5

// Namer derives a short project name from the creating prompt.
type Namer struct {
	client *Client
}

func NewNamer(c *Client) *Namer {
	return &Namer{client: c}
}

// Name never fails: provider errors collapse to UntitledProject.
func (n *Namer) Name(ctx context.Context, prompt string) string {
	msg, err := n.client.complete(ctx, "name", chatRequest{
		Messages: []chatMessage{
			{Role: "system", Content: "You generate short and catchy project names from user prompts. Keep it under 5 words. Capitalize each word. Avoid special characters. Reply with the name only."},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return UntitledProject
	}
	return CleanName(msg.Content)
}

// CleanName keeps letters, digits and spaces, title-cases each word and caps
// the result at five words.
func CleanName(raw string) string {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, raw)
	words := strings.Fields(clean)
	if len(words) == 0 {
		return UntitledProject
	}
	if len(words) > maxNameWords {
		words = words[:maxNameWords]
	}
	// NoLower keeps acronyms such as "AI" intact.
	return cases.Title(language.Und, cases.NoLower).String(strings.Join(words, " "))
}
