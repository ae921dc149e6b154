package format

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/ast"
	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/config"
	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/vm"
)

func text(t *testing.T, x any, s *config.Settings) string {
	t.Helper()

	b, err := Format(context.Background(), nil, x, s)
	require.NoError(t, err)

	return string(b)
}

func v(name string) *ast.Variable { return &ast.Variable{Name: name, Kind: vm.Self} }

func lit(x any) *ast.Literal { return &ast.Literal{Value: x} }

func block(s ...ast.Stmt) *ast.Block { return &ast.Block{Stmts: s} }

func set(name string, x any) *ast.Assign { return &ast.Assign{Target: v(name), Value: lit(x)} }

func TestFormatElseIf(t *testing.T) {
	root := block(&ast.If{
		Cond: &ast.Binary{Op: "==", Left: v("x"), Right: lit(int16(1))},
		Then: block(set("y", "a")),
		Else: block(&ast.If{
			Cond: &ast.Binary{Op: "==", Left: v("x"), Right: lit(int16(2))},
			Then: block(set("y", "b")),
		}),
	})

	assert.Equal(t, `if (x == 1)
{
    y = "a";
}
else if (x == 2)
{
    y = "b";
}
`, text(t, root, nil))
}

func TestFormatBraceStyle(t *testing.T) {
	s := config.Default()
	s.OpenBlockBraceOnSameLine = true
	s.UseSemicolon = false
	s.IndentString = "\t"

	root := block(
		&ast.While{Cond: v("c"), Body: block(&ast.IncDec{Target: v("i")})},
		&ast.DoUntil{Body: block(&ast.IncDec{Target: v("i"), Dec: true}), Cond: v("d")},
	)

	assert.Equal(t, "while (c) {\n\ti++\n}\ndo {\n\ti--\n} until (d)\n", text(t, root, s))
}

func TestFormatEmptyLines(t *testing.T) {
	s := config.Default()
	s.EmptyLineAroundBranchStatements = true

	root := block(
		set("a", int16(1)),
		&ast.If{Cond: v("c"), Then: block(set("b", int16(2)))},
		set("c", int16(3)),
	)

	assert.Equal(t, "a = 1;\n\nif (c)\n{\n    b = 2;\n}\n\nc = 3;\n", text(t, root, s))

	s.EmptyLineAroundBranchStatements = false
	s.RemoveSingleLineBlockBraces = true

	assert.Equal(t, "a = 1;\nif (c)\n    b = 2;\nc = 3;\n", text(t, root, s))
}

func TestFormatSwitch(t *testing.T) {
	root := block(&ast.Switch{
		Value: v("v"),
		Cases: []*ast.Case{
			{Values: []ast.Expr{lit(int16(1)), lit(int16(2))}, Body: block(set("y", int16(1)))},
			{Default: true, Body: block(&ast.Break{})},
		},
	})

	assert.Equal(t, `switch (v)
{
    case 1:
    case 2:
        y = 1;
    default:
        break;
}
`, text(t, root, nil))
}

func TestFormatTry(t *testing.T) {
	root := block(&ast.Try{
		Body:     block(set("x", int16(1))),
		CatchVar: "e",
		Catch:    block(set("x", int16(2))),
		Finally:  block(set("x", int16(3))),
	})

	assert.Equal(t, `try
{
    x = 1;
}
catch (e)
{
    x = 2;
}
finally
{
    x = 3;
}
`, text(t, root, nil))
}

func TestFormatFunction(t *testing.T) {
	root := block(
		&ast.FuncDeclStmt{Decl: &ast.FunctionDecl{
			Name:        "Foo",
			Args:        []string{"a", "b"},
			Defaults:    []ast.Expr{nil, lit(int16(5))},
			Constructor: true,
			Body: block(&ast.Assign{
				Target: v("x"),
				Value:  &ast.Variable{Name: "a", Kind: vm.Argument},
			}),
		}},
		&ast.StaticInit{Body: block(set("n", int16(0)))},
		&ast.EnumDecl{Name: "E", Values: []ast.EnumMember{{Name: "A", Value: 0}, {Name: "B", Value: 1}}},
	)

	assert.Equal(t, `function Foo(a, b = 5) constructor
{
    x = a;
}

static n = 0;

enum E
{
    A = 0,
    B = 1
}
`, text(t, root, nil))
}

func TestFormatExpressions(t *testing.T) {
	for _, tc := range []struct {
		x    ast.Expr
		want string
	}{
		{&ast.Binary{Op: "*", Left: &ast.Binary{Op: "+", Left: v("a"), Right: v("b")}, Right: &ast.Unary{Op: "-", X: v("c")}}, "(a + b) * -c"},
		{&ast.Binary{Op: "-", Left: v("a"), Right: &ast.Binary{Op: "-", Left: v("b"), Right: v("c")}}, "a - (b - c)"},
		{&ast.ShortCircuit{Or: true, Conds: []ast.Expr{v("a"), &ast.ShortCircuit{Conds: []ast.Expr{v("b"), v("c")}}}}, "a || b && c"},
		{&ast.ShortCircuit{Conds: []ast.Expr{v("a"), &ast.ShortCircuit{Or: true, Conds: []ast.Expr{v("b"), v("c")}}}}, "a && (b || c)"},
		{&ast.Conditional{Cond: v("c"), Then: lit(int16(1)), Else: lit(nil)}, "c ? 1 : undefined"},
		{&ast.Nullish{Left: v("a"), Right: lit("x")}, `a ?? "x"`},
		{&ast.Variable{Name: "score", Kind: vm.Global}, "global.score"},
		{&ast.Variable{Name: "hp", Instance: &ast.AssetRef{Type: "object", Index: 3, Name: "obj_player"}}, "obj_player.hp"},
		{&ast.Variable{Name: "hp", Instance: &ast.AssetRef{Type: "object", Index: 3}}, "(3).hp"},
		{&ast.ArrayAccess{Array: &ast.ArrayAccess{Array: v("m"), Index: v("i")}, Index: v("j")}, "m[i][j]"},
		{&ast.StructLit{Fields: []ast.Field{{Name: "a", Value: lit(int16(1))}}}, "{ a: 1 }"},
		{&ast.ArrayLit{Elems: []ast.Expr{lit(int16(1)), lit(2.5)}}, "[1, 2.5]"},
		{&ast.New{Func: &ast.FunctionRef{Name: "Vec"}, Args: []ast.Expr{lit(true)}}, "new Vec(true)"},
		{&ast.MethodCall{Func: v("f"), Instance: &ast.InstanceType{Type: vm.Other}, Args: nil}, "other.f()"},
		{&ast.EnumValue{Enum: "E", Name: "A"}, "E.A"},
		{&ast.Unary{Op: "-", X: lit(int16(-1))}, "-(-1)"},
		{&ast.FunctionDecl{Args: []string{"x"}, Body: block(&ast.Return{Value: &ast.Variable{Name: "x", Kind: vm.Argument}})}, "function(x)\n{\n    return x;\n}"},
	} {
		assert.Equal(t, tc.want, text(t, tc.x, nil))
	}
}

func TestFormatUnsupported(t *testing.T) {
	_, err := Format(context.Background(), nil, 5, nil)
	assert.Error(t, err)
}
