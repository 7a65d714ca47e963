// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package llm

import (
	"fmt"
	"strings"

	"github.com/ManuGH/xdesign/internal/theme"
)

func planningSystemPrompt() string {
	return `You are a lead mobile UI/UX designer.
Plan the screens for the user's request and answer with a single JSON object:
{"theme": "<theme id>", "screens": [{"id": "kebab-case-id", "name": "Display Name", "purpose": "one sentence", "visualDescription": "dense visual directive"}]}
Return between 1 and 4 screens. If the user asks for one screen, return exactly one.
Each visualDescription names the layout sections, realistic sample data, chart types,
icon names and, where needed, the bottom navigation with its active item.
Splash, onboarding and auth screens have no bottom navigation.

Available themes:
` + theme.Options() + `

Shared variables:
` + theme.BaseVariables
}

func planningUserPrompt(req PlanRequest) string {
	if req.ContextMarkup == "" {
		return "USER REQUEST: " + req.Prompt
	}
	return fmt.Sprintf(`USER REQUEST: %s
SELECTED THEME: %s

EXISTING SCREENS:
%s

Requirements:
- Use exactly the theme %s.
- Reuse the existing navigation, layout and design system.
- New screens must be indistinguishable in style from the existing ones.`,
		req.Prompt, req.ExistingTheme, req.ContextMarkup, req.ExistingTheme)
}

func renderSystemPrompt() string {
	return `You are an elite mobile UI designer producing HTML screens with Tailwind CSS and CSS variables.
Output raw HTML only, starting with <div. No markdown, scripts, comments, <html>, <head> or <body>.
All content lives in one root <div> without overflow classes; scrollable inner containers hide scrollbars.
Use theme variables for every color, e.g. bg-[var(--background)] text-[var(--foreground)].
Charts are SVG only. Avatars use https://i.pravatar.cc/150?u=NAME; other images come from the searchUnsplash tool.`
}

func consistencyRules(hasContext bool, fallback string) string {
	if !hasContext {
		return fallback
	}
	return `- Match the existing screens exactly: fonts, sizes, weights, palette, spacing, radius and shadows.
- Copy the bottom navigation and header structure verbatim when they exist.
- Reuse existing components instead of introducing new patterns.`
}

func renderUserPrompt(req RenderRequest) string {
	var b strings.Builder
	if req.Original != nil {
		fmt.Fprintf(&b, "REGENERATE THIS SCREEN:\n- Screen Name: %s\n- User Request: %s\n- Original HTML for reference: %s\n\n",
			req.Original.Title, req.Original.Prompt, req.Original.HTML)
	} else {
		fmt.Fprintf(&b, "- Screen %d/%d\n- Screen ID: %s\n- Screen Name: %s\n- Screen Purpose: %s\n\nVISUAL DESCRIPTION: %s\n\n",
			req.Index+1, req.Total, req.Spec.ID, req.Spec.Name, req.Spec.Purpose, req.Spec.VisualDescription)
	}

	contextMarkup := req.ContextMarkup
	if contextMarkup == "" {
		contextMarkup = "No previous screens"
	}
	fmt.Fprintf(&b, "EXISTING SCREENS REFERENCE:\n%s\n\n", contextMarkup)
	fmt.Fprintf(&b, "THEME VARIABLES (already defined by the parent, do not redeclare):\n%s\n\n", req.ThemeStyle)

	fallback := "- This is the first screen: establish a consistent design system."
	if req.Original != nil {
		fallback = "- Keep the design system of the original screen."
	}
	b.WriteString("REQUIREMENTS:\n")
	b.WriteString(consistencyRules(req.ContextMarkup != "", fallback))
	b.WriteString("\nGenerate the complete HTML for this screen now.")
	return b.String()
}
