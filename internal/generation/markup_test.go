// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package generation

import (
	"testing"

	"github.com/ManuGH/xdesign/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestExtractMarkup(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", "<div>a</div>", "<div>a</div>"},
		{"fenced", "```html\n<div>a</div>\n```", "<div>a</div>"},
		{"surrounding prose", "Here you go:\n<div class=\"x\"><div>b</div></div>\nEnjoy", "<div class=\"x\"><div>b</div></div>"},
		{"greedy across siblings", "<div>1</div> text <div>2</div>", "<div>1</div> text <div>2</div>"},
		{"no div keeps raw text", "```<section>x</section>```", "<section>x</section>"},
		{"multiline", "<div>\n  <p>x</p>\n</div>", "<div>\n  <p>x</p>\n</div>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractMarkup(tt.raw))
		})
	}
}

func TestBuildContext(t *testing.T) {
	assert.Empty(t, BuildContext(nil))
	got := BuildContext([]model.Frame{
		{Title: "Home", HTML: "<div>h</div>"},
		{Title: "Stats", HTML: "<div>s</div>"},
	})
	assert.Equal(t, "<!-- Home -->\n<div>h</div>\n\n<!-- Stats -->\n<div>s</div>", got)
}
