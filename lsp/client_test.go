package lsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeCapsReadsDeclaredProviders(t *testing.T) {
	caps := decodeCaps(map[string]any{
		"definitionProvider":     true,
		"referencesProvider":     false,
		"hoverProvider":          map[string]any{},
		"documentSymbolProvider": nil,
	})

	assert.True(t, caps.Definition)
	assert.False(t, caps.References)
	assert.True(t, caps.Hover)
	assert.False(t, caps.DocumentSymbol)
	assert.False(t, caps.Completion)
}

func TestDecodeCapsEmptyMapYieldsNoCapabilities(t *testing.T) {
	caps := decodeCaps(map[string]any{})
	assert.Equal(t, serverCaps{}, caps)
}

func TestPathToURI(t *testing.T) {
	assert.Equal(t, "", pathToURI(""))
	assert.Equal(t, "file:///home/user/main.go", pathToURI("/home/user/main.go"))
}

func TestDocPositionParams(t *testing.T) {
	params := docPositionParams("file:///a.go", Position{Line: 3, Character: 5})
	td, ok := params["textDocument"].(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, "file:///a.go", td["uri"])
	pos, ok := params["position"].(Position)
	assert.True(t, ok)
	assert.Equal(t, 3, pos.Line)
	assert.Equal(t, 5, pos.Character)
}

func TestClientGotoDefinitionSkipsRequestWhenUnsupported(t *testing.T) {
	c := &Client{}
	locs, err := c.GotoDefinition(nil, "file:///a.go", Position{})
	assert.NoError(t, err)
	assert.Nil(t, locs)
}
