package decomp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/ast"
	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/cfg"
	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/config"
	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/vm"
)

func entry(name string, a *vm.Asm) *vm.CodeEntry {
	return &vm.CodeEntry{Name: name, Instructions: a.MustAssemble()}
}

func TestDecompilePrint(t *testing.T) {
	a := vm.NewAsm()
	a.PushVar(vm.Self, "c").Conv(vm.Variable, vm.Bool).Bf("else")
	a.PushI(1).PopVar(vm.Self, "x", vm.Int16).B("end")
	a.Label("else")
	a.PushI(2).PopVar(vm.Self, "x", vm.Int16)
	a.Label("end")

	ctx := context.Background()

	d := New(entry("gml_Object_obj_test_Step_0", a), nil, nil)
	require.NoError(t, d.Decompile(ctx))

	text, err := d.Print(ctx, nil)
	require.NoError(t, err)

	assert.Equal(t, `if (c)
{
    x = 1;
}
else
{
    x = 2;
}
`, string(text))
	assert.Empty(t, d.Warnings)
}

func TestDecompileMalformed(t *testing.T) {
	a := vm.NewAsm()
	a.Instr(&vm.Instruction{Op: vm.B, BranchOffset: 1000})

	_, err := Decompile(context.Background(), entry("gml_Script_bad", a), nil, nil)
	require.Error(t, err)

	var de *Error
	require.True(t, errors.As(err, &de), "%v", err)

	assert.Equal(t, StageCFG, de.Stage)
	assert.Equal(t, "gml_Script_bad", de.Entry)
	assert.True(t, errors.Is(err, cfg.ErrMalformed), "%v", err)
}

func TestDecompileLeftoverStack(t *testing.T) {
	e := entry("gml_Script_leftover", vm.NewAsm().PushI(1))

	_, err := Decompile(context.Background(), e, nil, nil)

	var de *Error
	require.True(t, errors.As(err, &de), "%v", err)
	assert.Equal(t, StageBuild, de.Stage)
	assert.True(t, errors.Is(err, ast.ErrLeftoverStack), "%v", err)
}

func TestWarningsIdempotent(t *testing.T) {
	s := config.Default()
	s.AllowLeftoverDataOnStack = true

	e := entry("gml_Script_leftover", vm.NewAsm().PushI(1).PushI(2))

	r1, err := Decompile(context.Background(), e, nil, s)
	require.NoError(t, err)

	r2, err := Decompile(context.Background(), e, nil, s)
	require.NoError(t, err)

	require.NotEmpty(t, r1.Warnings)
	assert.Equal(t, r1.Warnings, r2.Warnings)

	for _, w := range r1.Warnings {
		assert.Equal(t, "gml_Script_leftover", w.CodeEntry)
	}
}

func TestPrintBeforeDecompile(t *testing.T) {
	d := New(entry("gml_Script_empty", vm.NewAsm()), nil, nil)

	_, err := d.Print(context.Background(), nil)

	var de *Error
	require.True(t, errors.As(err, &de), "%v", err)
	assert.Equal(t, StagePrint, de.Stage)
}
