// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package theme is the built-in catalog of visual themes. Each theme is a
// block of CSS custom properties layered over BaseVariables.
package theme

import (
	"strings"
)

// DefaultID is used when a theme id is empty or unknown.
const DefaultID = "ocean-breeze"

// BaseVariables are the font and radius variables shared by every theme.
const BaseVariables = `
  --font-sans: "Plus Jakarta Sans", sans-serif;
  --font-heading: "Space Grotesk", sans-serif;
  --font-serif: "Playfair Display", serif;
  --font-mono: "JetBrains Mono", monospace;
  --radius: 1rem;
`

// Theme is one catalog entry.
type Theme struct {
	ID    string
	Name  string
	Style string
}

var catalog = []Theme{
	{
		ID:   "ocean-breeze",
		Name: "Ocean Breeze",
		Style: `
  --background: #f0f9ff; --foreground: #0c4a6e;
  --card: #ffffff; --card-foreground: #0c4a6e;
  --primary: #0284c7; --primary-foreground: #f0f9ff;
  --accent: #06b6d4; --muted-foreground: #64748b;
  --border: #bae6fd; --ring: #0ea5e9;
  --chart-1: #0284c7; --chart-2: #06b6d4; --chart-3: #22d3ee; --chart-4: #7dd3fc;
`,
	},
	{
		ID:   "midnight",
		Name: "Midnight",
		Style: `
  --background: #0b1020; --foreground: #e2e8f0;
  --card: #131a2e; --card-foreground: #e2e8f0;
  --primary: #8b5cf6; --primary-foreground: #f5f3ff;
  --accent: #22d3ee; --muted-foreground: #94a3b8;
  --border: #1e293b; --ring: #a78bfa;
  --chart-1: #8b5cf6; --chart-2: #22d3ee; --chart-3: #f472b6; --chart-4: #facc15;
`,
	},
	{
		ID:   "neo-brutalism",
		Name: "Neo Brutalism",
		Style: `
  --background: #fffbeb; --foreground: #111111;
  --card: #ffffff; --card-foreground: #111111;
  --primary: #ff5c00; --primary-foreground: #111111;
  --accent: #2563eb; --muted-foreground: #404040;
  --border: #111111; --ring: #111111;
  --chart-1: #ff5c00; --chart-2: #2563eb; --chart-3: #16a34a; --chart-4: #facc15;
`,
	},
	{
		ID:   "forest-calm",
		Name: "Forest Calm",
		Style: `
  --background: #f3f7f2; --foreground: #1c2b1e;
  --card: #ffffff; --card-foreground: #1c2b1e;
  --primary: #2f7d4b; --primary-foreground: #f3f7f2;
  --accent: #c28b3c; --muted-foreground: #5b6b5e;
  --border: #d5e3d6; --ring: #2f7d4b;
  --chart-1: #2f7d4b; --chart-2: #c28b3c; --chart-3: #7fb77e; --chart-4: #e2c290;
`,
	},
	{
		ID:   "sunset-glow",
		Name: "Sunset Glow",
		Style: `
  --background: #1a0f14; --foreground: #fde8e1;
  --card: #26161d; --card-foreground: #fde8e1;
  --primary: #f97316; --primary-foreground: #1a0f14;
  --accent: #ec4899; --muted-foreground: #c4a4a0;
  --border: #3b2129; --ring: #fb923c;
  --chart-1: #f97316; --chart-2: #ec4899; --chart-3: #facc15; --chart-4: #a855f7;
`,
	},
}

var byID = func() map[string]Theme {
	m := make(map[string]Theme, len(catalog))
	for _, t := range catalog {
		m[t.ID] = t
	}
	return m
}()

// Lookup returns the theme with id.
func Lookup(id string) (Theme, bool) {
	t, ok := byID[id]
	return t, ok
}

// Resolve returns the theme with id, or the default theme.
func Resolve(id string) Theme {
	if t, ok := byID[id]; ok {
		return t
	}
	return byID[DefaultID]
}

// All returns the catalog in display order.
func All() []Theme {
	return append([]Theme(nil), catalog...)
}

// StyleText is the full variable block handed to the renderer for theme id.
// Unknown ids contribute only the base variables.
func StyleText(id string) string {
	t, ok := byID[id]
	if !ok {
		return BaseVariables
	}
	return BaseVariables + t.Style
}

// Options lists "- id (Name)" lines for the planner prompt.
func Options() string {
	var b strings.Builder
	for i, t := range catalog {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- " + t.ID + " (" + t.Name + ")")
	}
	return b.String()
}
