package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/game"
)

const sample = `
game:
  functions:
    gml_Script_greet: greet
  assets:
    object: [obj_player]
entries:
  - name: gml_Object_obj_test_Create_0
    code: |
      push.v self.hp
      pushi.e 0
      cmp.i.v LTE
      bf alive
      push.v self.id
      call.i instance_destroy 1
      popz.v
      alive:
  - name: gml_Script_broken
    code: |
      pushi.e 1
`

func TestParseInput(t *testing.T) {
	in, err := ParseInput([]byte(sample))
	require.NoError(t, err)

	require.Len(t, in.Entries, 2)

	g := in.Game.Context()
	name, ok := g.GlobalFunctions.FunctionName("gml_Script_greet")
	assert.True(t, ok)
	assert.Equal(t, "greet", name)

	asset, ok := g.Assets.AssetName("object", 0)
	assert.True(t, ok)
	assert.Equal(t, "obj_player", asset)

	entries, err := in.CodeEntries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Len(t, entries[0].Instructions, 7)
}

func TestInputDecompile(t *testing.T) {
	in, err := ParseInput([]byte(sample))
	require.NoError(t, err)

	entries, err := in.CodeEntries()
	require.NoError(t, err)

	res, err := game.Decompile(context.Background(), entries, in.Game.Context(), nil)
	require.NoError(t, err)

	assert.Equal(t, "if (hp <= 0)\n{\n    instance_destroy(id);\n}\n", string(res.Entries[0].Text))

	// leftover stack value is fatal by default
	assert.Error(t, res.Entries[1].Err)
	assert.Equal(t, 1, res.Failed)
}

func TestInputChildLabel(t *testing.T) {
	in, err := ParseInput([]byte(`
entries:
  - name: gml_Script_f
    children:
      - name: gml_Script_f
        function: f
        at: body
    code: |
      b end
      body:
      exit.i
      end:
`))
	require.NoError(t, err)

	entries, err := in.CodeEntries()
	require.NoError(t, err)

	require.Len(t, entries[0].Children, 1)
	assert.Equal(t, 4, entries[0].Children[0].Start)
	assert.Equal(t, "f", entries[0].Children[0].FunctionName)

	in.Entries[0].Children[0].At = "missing"

	_, err = in.CodeEntries()
	assert.Error(t, err)
}
