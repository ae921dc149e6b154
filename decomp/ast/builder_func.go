package ast

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/cfg"
	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/vm"
)

// Compiler helper functions.
const (
	FuncMethod     = "method"
	FuncNewObject  = "@@NewGMLObject@@"
	FuncNewArray   = "@@NewGMLArray@@"
	FuncThrow      = "@@throw@@"
	FuncThis       = "@@This@@"
	FuncOther      = "@@Other@@"
	FuncGlobal     = "@@Global@@"
	FuncSetStatic  = "@@SetStatic@@"
	FuncCopyStatic = "@@CopyStatic@@"
)

// function builds a nested fragment. The declaration is pushed later by
// the instructions referencing its entry.
func (b *Builder) function(ctx context.Context, f *cfg.Fragment) (err error) {
	tr := tlog.SpanFromContext(ctx)

	body, err := b.body(ctx, f)
	if err != nil {
		return errors.Wrap(err, "function %v", f.Entry.Name)
	}

	d := &FunctionDecl{
		Name:   f.Entry.FunctionName,
		Entry:  f.Entry.Name,
		Struct: f.Entry.Struct,
		Body:   body,
	}

	for i := 0; i < f.Entry.ArgCount; i++ {
		name := fmt.Sprintf("argument%d", i)
		if i < len(f.Entry.ArgNames) && f.Entry.ArgNames[i] != "" {
			name = f.Entry.ArgNames[i]
		}

		d.Args = append(d.Args, name)
	}

	b.constructor(d)

	if tr.If("dump_func") {
		tr.Printw("function", "entry", d.Entry, "name", d.Name, "args", len(d.Args), "stmts", len(body.Stmts))
	}

	b.decls[f.Entry.Name] = d

	return nil
}

// constructor strips static setup calls opening a constructor body.
func (b *Builder) constructor(d *FunctionDecl) {
	for len(d.Body.Stmts) != 0 {
		s, ok := d.Body.Stmts[0].(*ExprStmt)
		if !ok {
			return
		}

		c, ok := s.X.(*Call)
		if !ok || c.Func != FuncSetStatic && c.Func != FuncCopyStatic {
			return
		}

		d.Constructor = true

		if c.Func == FuncCopyStatic && len(c.Args) == 1 {
			d.Inherits = c.Args[0]
		}

		d.Body.Stmts = d.Body.Stmts[1:]
	}
}

func (b *Builder) funcRef(name string) Expr {
	if d, ok := b.decls[name]; ok {
		return d
	}

	return &FunctionRef{Name: b.game.functionName(name)}
}

func (b *Builder) args(n int) ([]Expr, error) {
	args := make([]Expr, n)

	for i := range args {
		x, err := b.pop()
		if err != nil {
			return nil, errors.Wrap(err, "argument %d", i)
		}

		args[i] = x
	}

	return args, nil
}

func (b *Builder) call(in *vm.Instruction) error {
	args, err := b.args(in.ArgCount)
	if err != nil {
		return err
	}

	switch in.Func {
	case FuncMethod:
		if len(args) == 2 {
			if d, ok := args[1].(*FunctionDecl); ok {
				b.push(d, vm.Variable)
				return nil
			}
		}
	case FuncNewArray:
		b.push(&ArrayLit{Elems: args}, vm.Variable)
		return nil
	case FuncNewObject:
		if len(args) != 0 {
			b.push(b.newObject(args[0], args[1:]), vm.Variable)
			return nil
		}
	case FuncThis:
		b.push(&InstanceType{Type: vm.Self}, vm.Variable)
		return nil
	case FuncOther:
		b.push(&InstanceType{Type: vm.Other}, vm.Variable)
		return nil
	case FuncGlobal:
		b.push(&InstanceType{Type: vm.Global}, vm.Variable)
		return nil
	}

	b.push(&Call{Func: b.game.functionName(in.Func), Args: args}, vm.Variable)

	return nil
}

// callv calls a function value: fn and instance are above the arguments.
func (b *Builder) callv(in *vm.Instruction) error {
	fn, err := b.pop()
	if err != nil {
		return err
	}

	inst, err := b.pop()
	if err != nil {
		return err
	}

	args, err := b.args(in.ArgCount)
	if err != nil {
		return err
	}

	mc := &MethodCall{Func: fn, Args: args}

	if x := b.instanceExpr(inst); !isSelf(x) {
		mc.Instance = x
	}

	b.push(mc, vm.Variable)

	return nil
}

func isSelf(x Expr) bool {
	it, ok := x.(*InstanceType)
	return ok && it.Type == vm.Self
}

// newObject is a struct literal when fn is an inline struct body made of
// plain field assignments, a constructor call otherwise.
func (b *Builder) newObject(fn Expr, args []Expr) Expr {
	d, ok := fn.(*FunctionDecl)
	if !ok || !d.Struct {
		return &New{Func: fn, Args: args}
	}

	lit := &StructLit{}

	for _, s := range d.Body.Stmts {
		a, ok := s.(*Assign)
		if !ok || a.Op != "" {
			return &New{Func: fn, Args: args}
		}

		v, ok := a.Target.(*Variable)
		if !ok || v.Instance != nil {
			return &New{Func: fn, Args: args}
		}

		lit.Fields = append(lit.Fields, Field{
			Name:  v.Name,
			Value: substituteArgs(a.Value, args),
		})
	}

	return lit
}

// substituteArgs replaces argumentN references with the passed values.
func substituteArgs(x Expr, args []Expr) Expr {
	return RewriteExpr(x, func(x Expr) Expr {
		v, ok := x.(*Variable)
		if !ok || v.Instance != nil || v.Kind != vm.Argument && v.Kind != vm.Self {
			return x
		}

		n, ok := argumentIndex(v.Name)
		if !ok || n >= len(args) {
			return x
		}

		return args[n]
	})
}

func argumentIndex(name string) (int, bool) {
	s, ok := strings.CutPrefix(name, "argument")
	if !ok || s == "" {
		return 0, false
	}

	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}

	return n, true
}
