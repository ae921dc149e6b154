package game

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp"
	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/cfg"
	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/config"
	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/vm"
)

func assign(name, v string, x int16) *vm.CodeEntry {
	a := vm.NewAsm().PushI(x).PopVar(vm.Self, v, vm.Int16)

	return &vm.CodeEntry{Name: name, Instructions: a.MustAssemble()}
}

func broken(name string) *vm.CodeEntry {
	a := vm.NewAsm().Instr(&vm.Instruction{Op: vm.B, BranchOffset: 1000})

	return &vm.CodeEntry{Name: name, Instructions: a.MustAssemble()}
}

func TestDecompileIsolatesFailures(t *testing.T) {
	s := config.Default()
	s.Workers = 2

	entries := []*vm.CodeEntry{
		assign("gml_Script_a", "a", 1),
		broken("gml_Script_bad"),
		assign("gml_Script_b", "b", 2),
		assign("gml_Script_c", "c", 3),
	}

	res, err := Decompile(context.Background(), entries, nil, s)
	require.NoError(t, err)
	require.Len(t, res.Entries, 4)

	assert.Equal(t, 1, res.Failed)

	assert.Equal(t, "a = 1;\n", string(res.Entries[0].Text))
	assert.Equal(t, "b = 2;\n", string(res.Entries[2].Text))
	assert.Equal(t, "c = 3;\n", string(res.Entries[3].Text))

	bad := res.Entries[1]
	assert.Equal(t, "gml_Script_bad", bad.Name)
	assert.Nil(t, bad.Text)

	var de *decomp.Error
	require.True(t, errors.As(bad.Err, &de), "%v", bad.Err)
	assert.Equal(t, decomp.StageCFG, de.Stage)
	assert.True(t, errors.Is(bad.Err, cfg.ErrMalformed))
}

func TestDecompileMergesEnums(t *testing.T) {
	mk := func(name string, v int64) *vm.CodeEntry {
		a := vm.NewAsm().PushInt64(v).PopVar(vm.Self, "state", vm.Int64)
		return &vm.CodeEntry{Name: name, Instructions: a.MustAssemble()}
	}

	res, err := Decompile(context.Background(), []*vm.CodeEntry{mk("gml_Script_a", 1), mk("gml_Script_b", 5)}, nil, nil)
	require.NoError(t, err)
	require.Zero(t, res.Failed)

	decls := res.Enums.Decls()
	require.Len(t, decls, 1)
	assert.Equal(t, "UnknownEnum", decls[0].Name)
	assert.Len(t, decls[0].Values, 2)
}

func TestDecompileCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Decompile(ctx, []*vm.CodeEntry{assign("gml_Script_a", "a", 1)}, nil, nil)
	assert.True(t, errors.Is(err, context.Canceled), "%v", err)

	require.Len(t, res.Entries, 1)
	assert.Equal(t, "gml_Script_a", res.Entries[0].Name)
	assert.Error(t, res.Entries[0].Err)
	assert.Equal(t, 1, res.Failed)
}

func TestRunRecovers(t *testing.T) {
	var text []byte
	var err error

	require.NotPanics(t, func() {
		text, err = run(context.Background(), decomp.New(nil, nil, nil))
	})

	assert.Nil(t, text)
	assert.ErrorContains(t, err, "panic")
}
