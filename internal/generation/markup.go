// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package generation

import (
	"regexp"
	"strings"

	"github.com/ManuGH/xdesign/internal/metrics"
	"github.com/ManuGH/xdesign/internal/model"
)

// rootDiv spans from the first "<div" to the last "</div>".
var rootDiv = regexp.MustCompile(`<div[\s\S]*</div>`)

// ExtractMarkup keeps the outermost <div>…</div> span of renderer output, or
// the raw text when there is none, and strips code-fence markers.
func ExtractMarkup(raw string) string {
	out := rootDiv.FindString(raw)
	if out == "" {
		metrics.IncMarkupFallback()
		out = raw
	}
	return strings.ReplaceAll(out, "```", "")
}

// BuildContext serializes frames as "<!-- title -->\nmarkup" blocks separated
// by a blank line, in the given order.
func BuildContext(frames []model.Frame) string {
	var b strings.Builder
	for i, f := range frames {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("<!-- ")
		b.WriteString(f.Title)
		b.WriteString(" -->\n")
		b.WriteString(f.HTML)
	}
	return b.String()
}
