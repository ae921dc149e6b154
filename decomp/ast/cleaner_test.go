package ast

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/vm"
)

func clean(t *testing.T, root *Block, game *GameContext, opts Options) *EnumSet {
	t.Helper()

	enums, err := Clean(context.Background(), root, game, opts)
	require.NoError(t, err)

	return enums
}

func arg(name string) *Variable { return &Variable{Name: name, Kind: vm.Argument} }

func local(name string) *Variable { return &Variable{Name: name, Kind: vm.Local} }

func TestCleanDefaultArguments(t *testing.T) {
	d := &FunctionDecl{
		Name: "f",
		Args: []string{"argument0", "argument1"},
		Body: block(
			&If{
				Cond: &Binary{Op: "==", Left: arg("argument1"), Right: &Literal{}},
				Then: block(&Assign{Target: arg("argument1"), Value: lit(5)}),
			},
			&Return{Value: &Binary{Op: "+", Left: arg("argument0"), Right: arg("argument1")}},
		),
	}

	root := block(&FuncDeclStmt{Decl: d})

	clean(t, root, nil, Options{
		CleanupDefaultArgumentValues: true,
		UnknownArgumentNamePattern:   "arg{0}",
	})

	assert.Equal(t, []string{"arg0", "arg1"}, d.Args)
	assert.Equal(t, []Expr{nil, lit(5)}, d.Defaults)
	assert.Equal(t, block(&Return{Value: &Binary{Op: "+", Left: arg("arg0"), Right: arg("arg1")}}), d.Body)
}

func TestCleanDefaultArgumentsDisabled(t *testing.T) {
	d := &FunctionDecl{
		Args: []string{"a"},
		Body: block(&If{
			Cond: &Binary{Op: "==", Left: arg("a"), Right: &Literal{}},
			Then: block(&Assign{Target: arg("a"), Value: lit(5)}),
		}),
	}

	clean(t, block(&FuncDeclStmt{Decl: d}), nil, Options{})

	assert.Nil(t, d.Defaults)
	assert.Len(t, d.Body.Stmts, 1)
}

func TestCleanRegistryConstants(t *testing.T) {
	game := &GameContext{
		Assets: AssetMap{"object": {"obj_wall", "obj_player"}},
		Registry: &Registry{
			FunctionArgs: map[string][]string{
				"draw_set_halign": {"halign"},
				"instance_exists": {"asset:object"},
			},
			Variables: map[string]string{
				"image_blend": "color",
			},
			Groups: map[string]map[int64]string{
				"halign": {1: "fa_center"},
				"color":  {255: "c_red"},
			},
		},
		PredefinedDoubles: map[float64]string{math.Pi: "pi"},
	}

	blend := &Variable{Name: "image_blend", Kind: vm.Self, Builtin: true}

	root := block(
		&ExprStmt{X: &Call{Func: "draw_set_halign", Args: []Expr{lit(1)}}},
		&ExprStmt{X: &Call{Func: "instance_exists", Args: []Expr{lit(1)}}},
		&Assign{Target: blend, Value: &Literal{Value: int32(255)}},
		&If{Cond: &Binary{Op: "==", Left: blend, Right: &Literal{Value: int32(255)}}, Then: block()},
		&Assign{Target: self("r"), Value: &Literal{Value: math.Pi}},
	)

	clean(t, root, game, Options{})

	assert.Equal(t, &NamedConstant{Name: "fa_center"}, root.Stmts[0].(*ExprStmt).X.(*Call).Args[0])
	assert.Equal(t, &AssetRef{Type: "object", Index: 1, Name: "obj_player"}, root.Stmts[1].(*ExprStmt).X.(*Call).Args[0])
	assert.Equal(t, &NamedConstant{Name: "c_red"}, root.Stmts[2].(*Assign).Value)
	assert.Equal(t, &NamedConstant{Name: "c_red"}, root.Stmts[3].(*If).Cond.(*Binary).Right)
	assert.Equal(t, &NamedConstant{Name: "pi"}, root.Stmts[4].(*Assign).Value)
}

func TestCleanEnums(t *testing.T) {
	root := block(
		&Assign{Target: self("state"), Value: &Literal{Value: int64(2)}},
		&Assign{Target: self("next"), Value: &Literal{Value: int64(-1)}},
	)

	enums := clean(t, root, nil, Options{
		CreateEnumDeclarations:  true,
		UnknownEnumName:         "UnknownEnum",
		UnknownEnumValuePattern: "Value_{0}",
	})

	require.Len(t, root.Stmts, 3)
	assert.Equal(t, &EnumValue{Enum: "UnknownEnum", Name: "Value_2", Value: 2}, root.Stmts[0].(*Assign).Value)
	assert.Equal(t, &EnumValue{Enum: "UnknownEnum", Name: "Value_m1", Value: -1}, root.Stmts[1].(*Assign).Value)

	want := &EnumDecl{
		Name: "UnknownEnum",
		Values: []EnumMember{
			{Name: "Value_m1", Value: -1},
			{Name: "Value_2", Value: 2},
		},
	}

	assert.Equal(t, want, root.Stmts[2])
	assert.Equal(t, []*EnumDecl{want}, enums.Decls())

	other := NewEnumSet()
	other.Add("UnknownEnum", "Value_7", 7)
	other.Merge(enums)

	require.Len(t, other.Decls(), 1)
	assert.Len(t, other.Decls()[0].Values, 3)
}

func TestCleanEnumsDisabled(t *testing.T) {
	root := block(&Assign{Target: self("state"), Value: &Literal{Value: int64(5)}})

	enums := clean(t, root, nil, Options{
		UnknownEnumName:         "UnknownEnum",
		UnknownEnumValuePattern: "Value_{0}",
	})

	require.Len(t, root.Stmts, 1)
	assert.Equal(t, &Literal{Value: int64(5)}, root.Stmts[0].(*Assign).Value)
	assert.Zero(t, enums.Len())
}

func TestCleanLocals(t *testing.T) {
	root := block(
		&If{
			Cond: self("c"),
			Then: block(&Assign{Target: local("a"), Value: lit(1)}),
		},
		&Assign{Target: local("a"), Value: lit(2)},
		&ExprStmt{X: &Call{Func: "show", Args: []Expr{local("b")}}},
		&Exit{},
	)

	clean(t, root, nil, Options{})

	assert.Equal(t, block(
		&VarDecl{Vars: []VarSpec{{Name: "b"}}},
		&If{
			Cond: self("c"),
			Then: block(&VarDecl{Vars: []VarSpec{{Name: "a", Value: lit(1)}}}),
		},
		&Assign{Target: local("a"), Value: lit(2)},
		&ExprStmt{X: &Call{Func: "show", Args: []Expr{local("b")}}},
	), root)
}

func TestCleanBuiltinArray(t *testing.T) {
	game := &GameContext{Builtins: BuiltinMap{
		"x":     {},
		"alarm": {Array: true},
	}}

	x := &Variable{Name: "x", Kind: vm.Self, Builtin: true}
	alarm := &Variable{Name: "alarm", Kind: vm.Self, Builtin: true}

	root := block(
		&Assign{Target: &ArrayAccess{Array: x, Index: lit(0)}, Value: lit(1)},
		&Assign{Target: &ArrayAccess{Array: alarm, Index: lit(0)}, Value: lit(1)},
	)

	clean(t, root, game, Options{CleanupBuiltinArrayVariables: true})

	assert.Equal(t, x, root.Stmts[0].(*Assign).Target)
	assert.Equal(t, &ArrayAccess{Array: alarm, Index: lit(0)}, root.Stmts[1].(*Assign).Target)
}

func TestCleanStructLiteral(t *testing.T) {
	d := &FunctionDecl{
		Struct: true,
		Body: block(
			&Assign{Target: self("a"), Value: arg("argument0")},
			&Assign{Target: self("b"), Value: lit(2)},
		),
	}

	b := NewBuilder(nil, nil, Options{}, nil)

	x := b.newObject(d, []Expr{self("v")})

	assert.Equal(t, &StructLit{Fields: []Field{
		{Name: "a", Value: self("v")},
		{Name: "b", Value: lit(2)},
	}}, x)

	d.Struct = false

	assert.IsType(t, &New{}, b.newObject(d, nil))
}
