package ast

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/cfg"
	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/vm"
)

func graph(t *testing.T, e *vm.CodeEntry) *cfg.Graph {
	t.Helper()

	g, err := cfg.Analyze(context.Background(), e, cfg.Options{CleanupTry: true}, nil)
	require.NoError(t, err)

	return g
}

func build(t *testing.T, a *vm.Asm, opts Options) *Block {
	t.Helper()

	e := &vm.CodeEntry{Name: "gml_Script_test", Instructions: a.MustAssemble()}

	root, err := Build(context.Background(), graph(t, e), nil, opts, func(msg string) { t.Logf("warning: %v", msg) })
	require.NoError(t, err)

	return root
}

func self(name string) *Variable { return &Variable{Name: name, Kind: vm.Self} }

func lit(v int16) *Literal { return &Literal{Value: v} }

func set(name string, v int16) *Assign { return &Assign{Target: self(name), Value: lit(v)} }

func block(s ...Stmt) *Block { return &Block{Stmts: s} }

func cond(a *vm.Asm, name string) *vm.Asm {
	return a.PushVar(vm.Self, name).Conv(vm.Variable, vm.Bool)
}

func assign(a *vm.Asm, name string, v int16) *vm.Asm {
	return a.PushI(v).PopVar(vm.Self, name, vm.Int16)
}

func TestBuildIfElse(t *testing.T) {
	a := vm.NewAsm()
	cond(a, "c").Bf("else")
	assign(a, "x", 1).B("end")
	a.Label("else")
	assign(a, "x", 2)
	a.Label("end")

	root := build(t, a, Options{})

	assert.Equal(t, block(&If{
		Cond: self("c"),
		Then: block(set("x", 1)),
		Else: block(set("x", 2)),
	}), root)
}

func TestBuildTernary(t *testing.T) {
	a := vm.NewAsm()
	cond(a, "c").Bf("else").PushI(1).B("end")
	a.Label("else").PushI(2)
	a.Label("end").PopVar(vm.Self, "x", vm.Int16)

	root := build(t, a, Options{})

	assert.Equal(t, block(&Assign{
		Target: self("x"),
		Value:  &Conditional{Cond: self("c"), Then: lit(1), Else: lit(2)},
	}), root)
}

func TestBuildShortCircuit(t *testing.T) {
	for _, tc := range []struct {
		name string
		or   bool
	}{
		{"and", false},
		{"or", true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := vm.NewAsm()
			cond(a, "a")

			if tc.or {
				a.Bt("f")
			} else {
				a.Bf("f")
			}

			cond(a, "b").B("e")

			if tc.or {
				a.Label("f").PushE(1)
			} else {
				a.Label("f").PushE(0)
			}

			a.Label("e").PopVar(vm.Self, "x", vm.Bool)

			root := build(t, a, Options{})

			assert.Equal(t, block(&Assign{
				Target: self("x"),
				Value:  &ShortCircuit{Or: tc.or, Conds: []Expr{self("a"), self("b")}},
			}), root)
		})
	}
}

func TestBuildWhileToFor(t *testing.T) {
	a := vm.NewAsm()
	assign(a, "i", 0)
	a.Label("head").
		PushVar(vm.Self, "i").PushI(10).Cmp(vm.CmpLT, vm.Int16, vm.Variable).Bf("end").
		PushVar(vm.Self, "i").PopVar(vm.Self, "y", vm.Variable).
		PushVar(vm.Self, "i").PushI(1).Op(vm.Add, vm.Int16, vm.Variable).PopVar(vm.Self, "i", vm.Variable).
		B("head").
		Label("end")

	root := build(t, a, Options{})

	less := &Binary{Op: "<", Left: self("i"), Right: lit(10)}

	require.Equal(t, block(
		set("i", 0),
		&While{
			Cond: less,
			Body: block(
				&Assign{Target: self("y"), Value: self("i")},
				&IncDec{Target: self("i")},
			),
		},
	), root)

	_, err := Clean(context.Background(), root, nil, Options{})
	require.NoError(t, err)

	assert.Equal(t, block(&For{
		Init: set("i", 0),
		Cond: less,
		Step: &IncDec{Target: self("i")},
		Body: block(&Assign{Target: self("y"), Value: self("i")}),
	}), root)
}

func TestBuildForContinue(t *testing.T) {
	a := vm.NewAsm()
	a.Label("head").
		PushVar(vm.Self, "i").PushI(10).Cmp(vm.CmpLT, vm.Int16, vm.Variable).Bf("end")
	cond(a, "c").Bf("body").B("step")
	a.Label("body")
	assign(a, "y", 1)
	a.Label("step").
		PushVar(vm.Self, "i").PushI(1).Op(vm.Add, vm.Int16, vm.Variable).PopVar(vm.Self, "i", vm.Variable).
		B("head").
		Label("end")

	root := build(t, a, Options{})

	loop, ok := root.Last().(*For)
	require.True(t, ok, "%#v", root.Last())
	assert.Equal(t, &IncDec{Target: self("i")}, loop.Step)

	_, err := Clean(context.Background(), root, nil, Options{CleanupElseToContinue: true})
	require.NoError(t, err)

	assert.Equal(t, block(
		&If{Cond: self("c"), Then: block(&Continue{})},
		set("y", 1),
	), loop.Body)
}

func TestBuildRepeat(t *testing.T) {
	a := vm.NewAsm().
		PushVar(vm.Self, "n").
		Conv(vm.Variable, vm.Int32).
		Dup(vm.Int32, 0).
		PushI(0).
		Cmp(vm.CmpLTE, vm.Int32, vm.Int16).
		Bt("endpop").
		Label("head")
	assign(a, "x", 1)
	a.PushI(1).
		Op(vm.Sub, vm.Int32, vm.Int16).
		Dup(vm.Int32, 0).
		Conv(vm.Int32, vm.Bool).
		Bt("head").
		Label("endpop").
		Popz(vm.Int32)

	root := build(t, a, Options{})

	assert.Equal(t, block(&Repeat{Count: self("n"), Body: block(set("x", 1))}), root)
}

func TestBuildWith(t *testing.T) {
	a := vm.NewAsm().
		PushVar(vm.Self, "obj").
		Conv(vm.Variable, vm.Int32).
		PushEnv("pop").
		Label("head")
	cond(a, "c").Bf("body").B("brk")
	a.Label("body")
	assign(a, "x", 1)
	a.Label("pop").
		PopEnv("head").
		B("end").
		Label("brk").
		PopEnvExit().
		Label("end")

	root := build(t, a, Options{})

	assert.Equal(t, block(&With{
		Target: self("obj"),
		Body: block(
			&If{Cond: self("c"), Then: block(&Break{})},
			set("x", 1),
		),
	}), root)
}

func TestBuildSwitchFallthrough(t *testing.T) {
	a := vm.NewAsm().
		PushVar(vm.Self, "v").
		Dup(vm.Variable, 0).PushI(1).Cmp(vm.CmpEQ, vm.Int16, vm.Variable).Bt("c1").
		Dup(vm.Variable, 0).PushI(2).Cmp(vm.CmpEQ, vm.Int16, vm.Variable).Bt("c2").
		B("def").
		Label("c1")
	assign(a, "y", 1)
	a.Label("c2")
	assign(a, "y", 2).B("end")
	a.Label("def")
	assign(a, "y", 3)
	a.Label("end").Popz(vm.Variable)

	root := build(t, a, Options{})

	assert.Equal(t, block(&Switch{
		Value: self("v"),
		Cases: []*Case{
			{Values: []Expr{lit(1)}, Body: block(set("y", 1)), Fallthrough: true},
			{Values: []Expr{lit(2)}, Body: block(set("y", 2), &Break{})},
			{Default: true, Body: block(set("y", 3))},
		},
	}), root)
}

func TestBuildTryCatch(t *testing.T) {
	a := vm.NewAsm().
		PushAddr("fin").Conv(vm.Int32, vm.Variable).
		PushAddr("catch").Conv(vm.Int32, vm.Variable).
		Call(cfg.TryHook, 2).Popz(vm.Variable)
	assign(a, "x", 1).
		Call(cfg.TryUnhook, 0).Popz(vm.Variable).B("fin").
		Label("catch").
		Pop(&vm.VarRef{Name: "e", Instance: vm.Local}, vm.Variable, vm.Variable).
		Call(cfg.TryUnhook, 0).Popz(vm.Variable)
	assign(a, "x", 2).
		Call(cfg.FinishCatch, 0).Popz(vm.Variable).B("fin").
		Label("fin")
	assign(a, "x", 3).
		Call(cfg.FinishFinally, 0).Popz(vm.Variable)

	root := build(t, a, Options{})

	assert.Equal(t, block(&Try{
		Body:     block(set("x", 1)),
		CatchVar: "e",
		Catch:    block(set("x", 2)),
		Finally:  block(set("x", 3)),
	}), root)
}

func TestBuildNamedFunction(t *testing.T) {
	a := vm.NewAsm().
		B("after").
		Label("f").
		PushI(1).
		Ret().
		Label("after").
		PushFunc("gml_Script_f").Conv(vm.Int32, vm.Variable).
		PushI(-1).Conv(vm.Int32, vm.Variable).
		Call(FuncMethod, 2).
		Dup(vm.Variable, 0).
		PushI(-1).
		Pop(&vm.VarRef{Name: "f", Instance: vm.Self, Ref: vm.RefStackTop}, vm.Variable, vm.Variable).
		Popz(vm.Variable)

	code := a.MustAssemble()

	f, ok := a.LabelAddr("f")
	require.True(t, ok)

	e := &vm.CodeEntry{
		Name:         "gml_Object_o_Create_0",
		Instructions: code,
		Children: []vm.ChildEntry{
			{Name: "gml_Script_f", FunctionName: "f", Start: f},
		},
	}

	root, err := Build(context.Background(), graph(t, e), nil, Options{}, nil)
	require.NoError(t, err)

	require.Len(t, root.Stmts, 1)

	fd, ok := root.Stmts[0].(*FuncDeclStmt)
	require.True(t, ok, "%#v", root.Stmts[0])

	assert.Equal(t, "f", fd.Decl.Name)
	assert.Equal(t, "gml_Script_f", fd.Decl.Entry)
	assert.Equal(t, block(&Return{Value: lit(1)}), fd.Decl.Body)
}

func TestBuildCompound(t *testing.T) {
	a := vm.NewAsm().
		PushVar(vm.Self, "x").PushI(3).Op(vm.Mul, vm.Int16, vm.Variable).PopVar(vm.Self, "x", vm.Variable).
		PushVar(vm.Self, "x").PushI(1).Op(vm.Sub, vm.Int16, vm.Variable).PopVar(vm.Self, "x", vm.Variable)

	root := build(t, a, Options{})

	assert.Equal(t, block(
		&Assign{Target: self("x"), Op: "*", Value: lit(3)},
		&IncDec{Target: self("x"), Dec: true},
	), root)
}

func TestBuildLeftoverStack(t *testing.T) {
	e := &vm.CodeEntry{Name: "gml_Script_test", Instructions: vm.NewAsm().PushI(1).MustAssemble()}
	g := graph(t, e)

	_, err := Build(context.Background(), g, nil, Options{}, nil)
	assert.True(t, errors.Is(err, ErrLeftoverStack), "%v", err)

	var warnings []string

	root, err := Build(context.Background(), g, nil, Options{AllowLeftoverDataOnStack: true}, func(msg string) {
		warnings = append(warnings, msg)
	})
	require.NoError(t, err)

	assert.Equal(t, block(&ExprStmt{X: lit(1)}), root)
	assert.Len(t, warnings, 1)
}

func TestBuildUnderflow(t *testing.T) {
	e := &vm.CodeEntry{Name: "gml_Script_test", Instructions: vm.NewAsm().PopVar(vm.Self, "x", vm.Int16).MustAssemble()}

	_, err := Build(context.Background(), graph(t, e), nil, Options{}, nil)
	assert.True(t, errors.Is(err, cfg.ErrMalformed), "%v", err)
}

func TestBuildNullish(t *testing.T) {
	nullish := func(a *vm.Asm) *Block {
		e := &vm.CodeEntry{Name: "gml_Script_test", Instructions: a.MustAssemble()}

		g, err := cfg.Analyze(context.Background(), e, cfg.Options{UsingNullish: true}, nil)
		require.NoError(t, err)

		root, err := Build(context.Background(), g, nil, Options{}, nil)
		require.NoError(t, err)

		return root
	}

	a := vm.NewAsm()
	a.PushVar(vm.Self, "a").Ext(vm.IsNullishValue).Bf("l")
	a.Popz(vm.Variable).PushString("d")
	a.Label("l").PopVar(vm.Self, "x", vm.String)

	assert.Equal(t, block(&Assign{
		Target: self("x"),
		Value:  &Nullish{Left: self("a"), Right: &Literal{Value: "d"}},
	}), nullish(a))

	a = vm.NewAsm()
	a.PushVar(vm.Self, "x").Ext(vm.IsNullishValue).Bf("l")
	a.Popz(vm.Variable).PushI(5).PopVar(vm.Self, "x", vm.Int16).B("e")
	a.Label("l").Popz(vm.Variable)
	a.Label("e")

	assert.Equal(t, block(&Assign{Target: self("x"), Op: "??", Value: lit(5)}), nullish(a))
}

func TestBuildStaticInit(t *testing.T) {
	a := vm.NewAsm()
	a.Ext(vm.HasStaticInitialized).Bt("end")
	a.PushI(0).PopVar(vm.Static, "n", vm.Int16)
	a.Ext(vm.SetStaticInitialized)
	a.Label("end")
	assign(a, "x", 1)

	root := build(t, a, Options{})

	assert.Equal(t, block(
		&StaticInit{Body: block(&Assign{Target: &Variable{Name: "n", Kind: vm.Static}, Value: lit(0)})},
		set("x", 1),
	), root)
}

func TestBuildShortCircuitCondition(t *testing.T) {
	a := vm.NewAsm()
	cond(a, "a").Bf("f")
	cond(a, "b").B("e")
	a.Label("f").PushE(0)
	a.Label("e").Bf("end")
	assign(a, "x", 1)
	a.Label("end")

	root := build(t, a, Options{})

	assert.Equal(t, block(&If{
		Cond: &ShortCircuit{Conds: []Expr{self("a"), self("b")}},
		Then: block(set("x", 1)),
	}), root)
}

func TestBuildNestedShortCircuit(t *testing.T) {
	// x = (a || b) && c
	a := vm.NewAsm()
	cond(a, "a").Bt("t1")
	cond(a, "b").B("e1")
	a.Label("t1").PushE(1)
	a.Label("e1").Bf("f")
	cond(a, "c").B("e2")
	a.Label("f").PushE(0)
	a.Label("e2").PopVar(vm.Self, "x", vm.Bool)

	root := build(t, a, Options{})

	assert.Equal(t, block(&Assign{
		Target: self("x"),
		Value: &ShortCircuit{Conds: []Expr{
			&ShortCircuit{Or: true, Conds: []Expr{self("a"), self("b")}},
			self("c"),
		}},
	}), root)

	// x = (c ? p : q) && d
	a = vm.NewAsm()
	cond(a, "c").Bf("else").PushVar(vm.Self, "p").B("e")
	a.Label("else").PushVar(vm.Self, "q")
	a.Label("e").Conv(vm.Variable, vm.Bool).Bf("f")
	cond(a, "d").B("e2")
	a.Label("f").PushE(0)
	a.Label("e2").PopVar(vm.Self, "x", vm.Bool)

	root = build(t, a, Options{})

	assert.Equal(t, block(&Assign{
		Target: self("x"),
		Value: &ShortCircuit{Conds: []Expr{
			&Conditional{Cond: self("c"), Then: self("p"), Else: self("q")},
			self("d"),
		}},
	}), root)
}

func TestBuildWhileIfElse(t *testing.T) {
	a := vm.NewAsm()
	a.Label("head")
	cond(a, "c").Bf("end")
	cond(a, "a").Bf("else")
	assign(a, "x", 1).B("join")
	a.Label("else")
	assign(a, "y", 1)
	a.Label("join")
	assign(a, "z", 1).B("head")
	a.Label("end")

	root := build(t, a, Options{})

	assert.Equal(t, block(&While{
		Cond: self("c"),
		Body: block(
			&If{Cond: self("a"), Then: block(set("x", 1)), Else: block(set("y", 1))},
			set("z", 1),
		),
	}), root)
}

func TestBuildSwitchInWhile(t *testing.T) {
	a := vm.NewAsm()
	a.Label("head")
	cond(a, "c").Bf("end")
	a.PushVar(vm.Self, "v").
		Dup(vm.Variable, 0).PushI(1).Cmp(vm.CmpEQ, vm.Int16, vm.Variable).Bt("c1").
		B("swend").
		Label("c1")
	assign(a, "y", 1).B("swend")
	a.Label("swend").Popz(vm.Variable).
		B("head").
		Label("end")

	root := build(t, a, Options{})

	assert.Equal(t, block(&While{
		Cond: self("c"),
		Body: block(&Switch{
			Value: self("v"),
			Cases: []*Case{
				{Values: []Expr{lit(1)}, Body: block(set("y", 1), &Break{})},
			},
		}),
	}), root)
}

func TestBuildSwitchContinueInWhile(t *testing.T) {
	a := vm.NewAsm()
	a.Label("head")
	cond(a, "c").Bf("end")
	a.PushVar(vm.Self, "v").
		Dup(vm.Variable, 0).PushI(1).Cmp(vm.CmpEQ, vm.Int16, vm.Variable).Bt("c1").
		B("swend").
		Label("c1")
	cond(a, "d").Bf("next").B("cont")
	a.Label("next")
	assign(a, "y", 1).B("swend")
	a.Label("cont").Popz(vm.Variable).B("head")
	a.Label("swend").Popz(vm.Variable).
		B("head").
		Label("end")

	root := build(t, a, Options{})

	assert.Equal(t, block(&While{
		Cond: self("c"),
		Body: block(&Switch{
			Value: self("v"),
			Cases: []*Case{
				{Values: []Expr{lit(1)}, Body: block(
					&If{Cond: self("d"), Then: block(&Continue{})},
					set("y", 1),
				)},
			},
		}),
	}), root)
}

// tryFlags assembles
//
//	while (c) { try { if (d) break; if (e) continue; x = 1; } finally { y = 1; } z = 1; }
//
// the way the compiler lowers break and continue inside try.
func tryFlags() *vm.Asm {
	brk := func(a *vm.Asm, v int16) *vm.Asm { return a.PushI(v).PopVar(vm.Local, "brk", vm.Int16) }
	cont := func(a *vm.Asm, v int16) *vm.Asm { return a.PushI(v).PopVar(vm.Local, "cont", vm.Int16) }

	a := vm.NewAsm()
	a.Label("head")
	cond(a, "c").Bf("end")
	brk(a, 0)
	cont(a, 0)
	a.PushAddr("fin").Conv(vm.Int32, vm.Variable).
		PushI(-1).Conv(vm.Int32, vm.Variable).
		Call(cfg.TryHook, 2).Popz(vm.Variable)
	cond(a, "d").Bf("l1")
	brk(a, 1).B("tryend")
	a.Label("l1")
	cond(a, "e").Bf("l2")
	cont(a, 1).B("tryend")
	a.Label("l2")
	assign(a, "x", 1)
	a.Label("tryend").
		Call(cfg.TryUnhook, 0).Popz(vm.Variable).B("fin").
		Label("fin")
	assign(a, "y", 1).
		Call(cfg.FinishFinally, 0).Popz(vm.Variable).
		PushVar(vm.Local, "brk").Conv(vm.Variable, vm.Bool).Bf("l3").B("end").
		Label("l3").
		PushVar(vm.Local, "cont").Conv(vm.Variable, vm.Bool).Bf("l4").B("head").
		Label("l4")
	assign(a, "z", 1).B("head")
	a.Label("end")

	return a
}

func TestBuildTryFlags(t *testing.T) {
	local := func(name string) *Variable { return &Variable{Name: name, Kind: vm.Local} }
	flag := func(name string, v int16) *Assign { return &Assign{Target: local(name), Value: lit(v)} }

	finally := block(set("y", 1))

	for _, tc := range []struct {
		name    string
		cleanup bool
		body    *Block
	}{
		{"cleanup", true, block(
			&Try{
				Body: block(
					&If{Cond: self("d"), Then: block(&Break{})},
					&If{Cond: self("e"), Then: block(&Continue{})},
					set("x", 1),
				),
				Finally: finally,
			},
			set("z", 1),
		)},
		{"raw", false, block(
			flag("brk", 0),
			flag("cont", 0),
			&Try{
				Body: block(
					&If{Cond: self("d"), Then: block(flag("brk", 1), &Break{})},
					&If{Cond: self("e"), Then: block(flag("cont", 1), &Break{})},
					set("x", 1),
				),
				Finally: finally,
			},
			&If{Cond: local("brk"), Then: block(&Break{})},
			&If{Cond: local("cont"), Then: block(&Continue{})},
			set("z", 1),
		)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			e := &vm.CodeEntry{Name: "gml_Script_test", Instructions: tryFlags().MustAssemble()}

			g, err := cfg.Analyze(context.Background(), e, cfg.Options{CleanupTry: tc.cleanup}, nil)
			require.NoError(t, err)

			root, err := Build(context.Background(), g, nil, Options{}, nil)
			require.NoError(t, err)

			require.Len(t, root.Stmts, 1)

			loop, ok := root.Stmts[0].(*While)
			require.True(t, ok, "%#v", root.Stmts[0])

			assert.Equal(t, self("c"), loop.Cond)
			assert.Equal(t, tc.body, loop.Body)

			// user statements are the same either way
			var try *Try
			for _, s := range loop.Body.Stmts {
				if x, ok := s.(*Try); ok {
					try = x
				}
			}

			require.NotNil(t, try)
			assert.Equal(t, finally, try.Finally)
			assert.Equal(t, set("x", 1), try.Body.Last())
			assert.Equal(t, set("z", 1), loop.Body.Last())
		})
	}
}
