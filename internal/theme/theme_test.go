// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package theme

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveFallsBackToDefault(t *testing.T) {
	assert.Equal(t, "midnight", Resolve("midnight").ID)
	assert.Equal(t, DefaultID, Resolve("does-not-exist").ID)
	assert.Equal(t, DefaultID, Resolve("").ID)
}

func TestStyleText(t *testing.T) {
	style := StyleText("neo-brutalism")
	assert.True(t, strings.HasPrefix(style, BaseVariables))
	assert.Contains(t, style, "--primary: #ff5c00")

	assert.Equal(t, BaseVariables, StyleText("unknown"))
}

func TestOptionsListsEveryTheme(t *testing.T) {
	opts := Options()
	for _, th := range All() {
		assert.Contains(t, opts, "- "+th.ID+" ("+th.Name+")")
	}
	_, ok := Lookup(DefaultID)
	assert.True(t, ok)
}
