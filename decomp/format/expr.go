package format

import (
	"context"
	"math"
	"strconv"

	"tlog.app/go/errors"

	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/ast"
	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/vm"
)

// Operator precedence, loosest first.
const (
	precLowest = iota
	precTernary
	precNullish
	precOr
	precXor
	precAnd
	precCmp
	precBitOr
	precBitXor
	precBitAnd
	precShift
	precAdd
	precMul
	precUnary
	precPrimary
)

func binaryPrec(op string) int {
	switch op {
	case "??":
		return precNullish
	case "||":
		return precOr
	case "^^":
		return precXor
	case "&&":
		return precAnd
	case "==", "!=", "<", "<=", ">", ">=":
		return precCmp
	case "|":
		return precBitOr
	case "^":
		return precBitXor
	case "&":
		return precBitAnd
	case "<<", ">>":
		return precShift
	case "+", "-":
		return precAdd
	}

	return precMul
}

var instanceNames = map[vm.InstanceType]string{
	vm.Self:   "self",
	vm.Other:  "other",
	vm.All:    "all",
	vm.Noone:  "noone",
	vm.Global: "global",
}

func prec(x ast.Expr) int {
	switch x := x.(type) {
	case *ast.Binary:
		return binaryPrec(x.Op)
	case *ast.ShortCircuit:
		if x.Or {
			return precOr
		}

		return precAnd
	case *ast.Conditional:
		return precTernary
	case *ast.Nullish:
		return precNullish
	case *ast.Unary:
		return precUnary
	case *ast.Literal:
		// a negative literal is a negation
		if v, ok := ast.IntValue(x); ok && v < 0 {
			return precMul
		}

		if v, ok := x.Value.(float64); ok && v < 0 {
			return precMul
		}
	case *ast.FunctionDecl:
		return precLowest
	}

	return precPrimary
}

// expr formats x, wrapping it in parentheses if it binds looser than p.
func (p *Printer) expr(ctx context.Context, b []byte, x ast.Expr, p0 int, d int) (_ []byte, err error) {
	paren := prec(x) < p0
	if paren {
		b = append(b, '(')
	}

	switch x := x.(type) {
	case *ast.Literal:
		b = literal(b, x.Value)
	case *ast.Variable:
		b, err = p.variable(ctx, b, x, d)
	case *ast.ArrayAccess:
		b, err = p.expr(ctx, b, x.Array, precPrimary, d)
		if err != nil {
			return nil, errors.Wrap(err, "array")
		}

		b = append(b, '[')

		b, err = p.expr(ctx, b, x.Index, precLowest, d)
		if err != nil {
			return nil, errors.Wrap(err, "index")
		}

		b = append(b, ']')
	case *ast.Binary:
		bp := binaryPrec(x.Op)

		b, err = p.expr(ctx, b, x.Left, bp, d)
		if err != nil {
			return nil, errors.Wrap(err, "left")
		}

		b = app(b, "", 0, " %s ", x.Op)

		b, err = p.expr(ctx, b, x.Right, bp+1, d)
		if err != nil {
			return nil, errors.Wrap(err, "right")
		}
	case *ast.Unary:
		b = append(b, x.Op...)

		b, err = p.expr(ctx, b, x.X, precUnary, d)
	case *ast.Call:
		b = append(b, x.Func...)
		b, err = p.args(ctx, b, x.Args, d)
	case *ast.MethodCall:
		if x.Instance != nil {
			b, err = p.expr(ctx, b, x.Instance, precPrimary, d)
			if err != nil {
				return nil, errors.Wrap(err, "instance")
			}

			b = append(b, '.')
		}

		b, err = p.expr(ctx, b, x.Func, precPrimary, d)
		if err != nil {
			return nil, errors.Wrap(err, "func")
		}

		b, err = p.args(ctx, b, x.Args, d)
	case *ast.ShortCircuit:
		op, sp := " && ", precAnd
		if x.Or {
			op, sp = " || ", precOr
		}

		for i, c := range x.Conds {
			if i != 0 {
				b = append(b, op...)
			}

			b, err = p.expr(ctx, b, c, sp+1, d)
			if err != nil {
				return nil, errors.Wrap(err, "cond %d", i)
			}
		}
	case *ast.Conditional:
		b, err = p.expr(ctx, b, x.Cond, precTernary+1, d)
		if err != nil {
			return nil, errors.Wrap(err, "cond")
		}

		b = append(b, " ? "...)

		b, err = p.expr(ctx, b, x.Then, precTernary+1, d)
		if err != nil {
			return nil, errors.Wrap(err, "then")
		}

		b = append(b, " : "...)

		b, err = p.expr(ctx, b, x.Else, precTernary, d)
	case *ast.Nullish:
		b, err = p.expr(ctx, b, x.Left, precNullish+1, d)
		if err != nil {
			return nil, errors.Wrap(err, "left")
		}

		b = append(b, " ?? "...)

		b, err = p.expr(ctx, b, x.Right, precNullish, d)
	case *ast.FunctionDecl:
		b, err = p.function(ctx, b, x, d)
	case *ast.StructLit:
		if len(x.Fields) == 0 {
			b = append(b, "{}"...)
			break
		}

		b = append(b, "{ "...)

		for i, f := range x.Fields {
			if i != 0 {
				b = append(b, ", "...)
			}

			b = app(b, "", 0, "%s: ", f.Name)

			b, err = p.expr(ctx, b, f.Value, precLowest, d)
			if err != nil {
				return nil, errors.Wrap(err, "field %v", f.Name)
			}
		}

		b = append(b, " }"...)
	case *ast.ArrayLit:
		b = append(b, '[')
		b, err = p.list(ctx, b, x.Elems, d)
		b = append(b, ']')
	case *ast.New:
		b = append(b, "new "...)

		b, err = p.expr(ctx, b, x.Func, precPrimary, d)
		if err != nil {
			return nil, errors.Wrap(err, "func")
		}

		b, err = p.args(ctx, b, x.Args, d)
	case *ast.FunctionRef:
		b = append(b, x.Name...)
	case *ast.AssetRef:
		if x.Name != "" {
			b = append(b, x.Name...)
		} else {
			b = strconv.AppendInt(b, int64(x.Index), 10)
		}
	case *ast.EnumValue:
		b = app(b, "", 0, "%s.%s", x.Enum, x.Name)
	case *ast.NamedConstant:
		b = append(b, x.Name...)
	case *ast.InstanceType:
		if n, ok := instanceNames[x.Type]; ok {
			b = append(b, n...)
		} else {
			b = strconv.AppendInt(b, int64(x.Type), 10)
		}
	default:
		return nil, errors.New("unsupported expr: %T", x)
	}

	if err != nil {
		return nil, err
	}

	if paren {
		b = append(b, ')')
	}

	return b, nil
}

func (p *Printer) variable(ctx context.Context, b []byte, x *ast.Variable, d int) (_ []byte, err error) {
	switch {
	case x.Instance != nil:
		_, num := x.Instance.(*ast.AssetRef)
		if a, ok := x.Instance.(*ast.AssetRef); ok && a.Name != "" {
			num = false
		}

		if num {
			b = append(b, '(')
		}

		b, err = p.expr(ctx, b, x.Instance, precPrimary, d)
		if err != nil {
			return nil, errors.Wrap(err, "instance")
		}

		if num {
			b = append(b, ')')
		}

		b = append(b, '.')
	case x.Kind == vm.Global || x.Kind == vm.Other || x.Kind == vm.All || x.Kind == vm.Noone:
		b = append(b, instanceNames[x.Kind]...)
		b = append(b, '.')
	}

	return append(b, x.Name...), nil
}

func (p *Printer) args(ctx context.Context, b []byte, l []ast.Expr, d int) (_ []byte, err error) {
	b = append(b, '(')

	b, err = p.list(ctx, b, l, d)
	if err != nil {
		return nil, err
	}

	return append(b, ')'), nil
}

func (p *Printer) list(ctx context.Context, b []byte, l []ast.Expr, d int) (_ []byte, err error) {
	for i, x := range l {
		if i != 0 {
			b = append(b, ", "...)
		}

		b, err = p.expr(ctx, b, x, precLowest, d)
		if err != nil {
			return nil, errors.Wrap(err, "arg %d", i)
		}
	}

	return b, nil
}

func literal(b []byte, v any) []byte {
	switch v := v.(type) {
	case nil:
		return append(b, "undefined"...)
	case bool:
		return strconv.AppendBool(b, v)
	case string:
		return strconv.AppendQuote(b, v)
	case int16:
		return strconv.AppendInt(b, int64(v), 10)
	case int32:
		return strconv.AppendInt(b, int64(v), 10)
	case int64:
		return strconv.AppendInt(b, v, 10)
	case float64:
		return double(b, v)
	}

	return app(b, "", 0, "%v", v)
}

func double(b []byte, v float64) []byte {
	switch {
	case math.IsInf(v, 1):
		return append(b, "infinity"...)
	case math.IsInf(v, -1):
		return append(b, "-infinity"...)
	case math.IsNaN(v):
		return append(b, "NaN"...)
	}

	return strconv.AppendFloat(b, v, 'g', -1, 64)
}
