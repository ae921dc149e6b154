package ast

import (
	"context"
	"fmt"
	"reflect"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/cfg"
	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/vm"
)

type (
	Options struct {
		// AllowLeftoverDataOnStack turns leftover stack values at the end
		// of a function into a warning and expression statements.
		AllowLeftoverDataOnStack bool

		CleanupElseToContinue        bool
		CleanupDefaultArgumentValues bool
		CleanupBuiltinArrayVariables bool

		// UnknownArgumentNamePattern names unnamed function arguments,
		// {0} is the argument index. Empty keeps argumentN.
		UnknownArgumentNamePattern string

		CreateEnumDeclarations  bool
		UnknownEnumName         string
		UnknownEnumValuePattern string
	}

	// Builder turns a structured graph into statements by simulating the
	// VM stack with expressions.
	Builder struct {
		g    *cfg.Graph
		game *GameContext
		opts Options
		warn func(string)

		decls map[string]*FunctionDecl

		stack []Expr
		types []vm.DataType

		// floors are stack depths of enclosing repeat and switch bodies.
		// A popz at a floor discards the hidden loop counter or switch value.
		floors []int

		temp Expr
	}
)

// TempVar holds return values while a switch value is popped.
const TempVar = "$$$$temp$$$$"

var ErrLeftoverStack = errors.New("data left over on stack")

var binaryOps = map[vm.Opcode]string{
	vm.Mul: "*",
	vm.Div: "/",
	vm.Rem: "div",
	vm.Mod: "%",
	vm.Add: "+",
	vm.Sub: "-",
	vm.And: "&",
	vm.Or:  "|",
	vm.Xor: "^",
	vm.Shl: "<<",
	vm.Shr: ">>",
}

var boolOps = map[vm.Opcode]string{
	vm.And: "&&",
	vm.Or:  "||",
	vm.Xor: "^^",
}

var cmpOps = [...]string{
	vm.CmpLT:  "<",
	vm.CmpLTE: "<=",
	vm.CmpEQ:  "==",
	vm.CmpNEQ: "!=",
	vm.CmpGTE: ">=",
	vm.CmpGT:  ">",
}

func NewBuilder(g *cfg.Graph, game *GameContext, opts Options, warn func(string)) *Builder {
	if game == nil {
		game = &GameContext{}
	}

	if warn == nil {
		warn = func(string) {}
	}

	return &Builder{
		g:     g,
		game:  game,
		opts:  opts,
		warn:  warn,
		decls: map[string]*FunctionDecl{},
	}
}

// Build simulates the root fragment and every function inside it.
func Build(ctx context.Context, g *cfg.Graph, game *GameContext, opts Options, warn func(string)) (root *Block, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "ast: build", "entry", g.Entry.Name)
	defer tr.Finish("err", &err)

	b := NewBuilder(g, game, opts, warn)

	root, err = b.body(ctx, g.Nodes[g.Root].(*cfg.Fragment))
	if err != nil {
		return nil, err
	}

	return root, nil
}

// body simulates one fragment on a fresh stack.
func (b *Builder) body(ctx context.Context, f *cfg.Fragment) (out *Block, err error) {
	stack, types, floors, temp := b.stack, b.types, b.floors, b.temp
	b.stack, b.types, b.floors, b.temp = nil, nil, nil, nil

	defer func() {
		b.stack, b.types, b.floors, b.temp = stack, types, floors, temp
	}()

	out = &Block{}

	err = b.region(ctx, f.ID, f.Start, f.End, out)
	if err != nil {
		return nil, err
	}

	if len(b.stack) == 0 {
		return out, nil
	}

	if !b.opts.AllowLeftoverDataOnStack {
		return nil, errors.Wrap(ErrLeftoverStack, "%v: %d values", f.Entry.Name, len(b.stack))
	}

	b.warn(fmt.Sprintf("%d values left over on stack in %v", len(b.stack), f.Entry.Name))

	for _, x := range b.stack {
		out.Add(&ExprStmt{X: x})
	}

	return out, nil
}

// region builds the children of parent lying in [from, to).
func (b *Builder) region(ctx context.Context, parent cfg.NodeID, from, to int, out *Block) error {
	for _, id := range b.g.Base(parent).Children {
		nb := b.g.Base(id)

		if nb.End <= from && nb.Start < from || nb.Start >= to {
			continue
		}

		if nb.Start < from || nb.End > to {
			return errors.Wrap(cfg.ErrMalformed, "%v %v crosses region [%d:%d]", b.g.Node(id).Kind(), nb, from, to)
		}

		err := b.node(ctx, id, out)
		if err != nil {
			return err
		}
	}

	return nil
}

// sub builds [from, to) into a new block that must leave the stack as it was.
func (b *Builder) sub(ctx context.Context, parent cfg.NodeID, from, to int) (*Block, error) {
	out := &Block{}
	depth := len(b.stack)

	err := b.region(ctx, parent, from, to, out)
	if err != nil {
		return nil, err
	}

	if len(b.stack) != depth {
		return nil, errors.Wrap(cfg.ErrMalformed, "unbalanced stack in [%d:%d]: %d -> %d", from, to, depth, len(b.stack))
	}

	return out, nil
}

// floorSub is sub for bodies holding a hidden value below them.
func (b *Builder) floorSub(ctx context.Context, parent cfg.NodeID, from, to int) (*Block, error) {
	b.floors = append(b.floors, len(b.stack))
	defer func() { b.floors = b.floors[:len(b.floors)-1] }()

	return b.sub(ctx, parent, from, to)
}

func (b *Builder) node(ctx context.Context, id cfg.NodeID, out *Block) error {
	switch n := b.g.Node(id).(type) {
	case *cfg.Block:
		return b.block(ctx, n, out)
	case *cfg.Fragment:
		return b.function(ctx, n)
	case *cfg.WhileLoop:
		return b.while(ctx, n, out)
	case *cfg.DoUntilLoop:
		return b.doUntil(ctx, n, out)
	case *cfg.RepeatLoop:
		return b.repeat(ctx, n, out)
	case *cfg.WithLoop:
		return b.with(ctx, n, out)
	case *cfg.Switch:
		return b.switchStmt(ctx, n, out)
	case *cfg.TryCatch:
		return b.try(ctx, n, out)
	case *cfg.ShortCircuit:
		return b.shortCircuit(ctx, n, out)
	case *cfg.BinaryBranch:
		return b.branch(ctx, n, out)
	case *cfg.Nullish:
		return b.nullish(ctx, n, out)
	case *cfg.StaticInit:
		return b.staticInit(ctx, n, out)
	default:
		return errors.New("unsupported node: %T", n)
	}
}

func (b *Builder) block(ctx context.Context, n *cfg.Block, out *Block) error {
	for _, in := range n.Code {
		if b.g.Handled[in.Address] != cfg.RoleNone {
			continue
		}

		err := b.instr(ctx, n, in, out)
		if err != nil {
			return errors.Wrap(err, "%v", in)
		}
	}

	return nil
}

func (b *Builder) instr(ctx context.Context, blk *cfg.Block, in *vm.Instruction, out *Block) (err error) {
	switch in.Op {
	case vm.Conv:
		return b.conv(in)
	case vm.Mul, vm.Div, vm.Rem, vm.Mod, vm.Add, vm.Sub, vm.And, vm.Or, vm.Xor, vm.Shl, vm.Shr:
		return b.binary(in)
	case vm.Cmp:
		r, err := b.pop()
		if err != nil {
			return err
		}

		l, err := b.pop()
		if err != nil {
			return err
		}

		b.push(&Binary{Op: cmpOps[in.Cmp], Left: l, Right: r}, vm.Bool)
	case vm.Neg, vm.Not:
		x, t, err := b.popType()
		if err != nil {
			return err
		}

		op := "-"
		switch {
		case in.Op == vm.Not && (t == vm.Bool || in.Type1 == vm.Bool):
			op = "!"
		case in.Op == vm.Not:
			op = "~"
		}

		b.push(&Unary{Op: op, X: x}, t)
	case vm.Dup:
		return b.dup(in)
	case vm.Push, vm.PushLoc, vm.PushGlb, vm.PushBltn, vm.PushI:
		return b.pushInstr(in)
	case vm.Pop:
		return b.popInstr(in, out)
	case vm.Popz:
		return b.popz(out)
	case vm.Ret:
		x, err := b.pop()
		if err != nil {
			return err
		}

		out.Add(&Return{Value: x})
	case vm.Exit:
		out.Add(&Exit{})
	case vm.Call:
		return b.call(in)
	case vm.CallV:
		return b.callv(in)
	case vm.B:
		return b.jump(blk, in, out)
	case vm.PopEnv:
		if !in.PopEnvExit {
			return errors.Wrap(cfg.ErrUnsupported, "unstructured popenv")
		}

		// leaving a with statement early
	case vm.Extended:
		return b.ext(in, out)
	default:
		return errors.Wrap(cfg.ErrUnsupported, "unstructured %v", in.Op)
	}

	return nil
}

func (b *Builder) push(x Expr, t vm.DataType) {
	b.stack = append(b.stack, x)
	b.types = append(b.types, t)
}

func (b *Builder) pop() (Expr, error) {
	x, _, err := b.popType()
	return x, err
}

func (b *Builder) popType() (Expr, vm.DataType, error) {
	l := len(b.stack)
	if l == 0 {
		return nil, 0, errors.Wrap(cfg.ErrMalformed, "stack underflow")
	}

	x, t := b.stack[l-1], b.types[l-1]
	b.stack, b.types = b.stack[:l-1], b.types[:l-1]

	return x, t, nil
}

func (b *Builder) conv(in *vm.Instruction) error {
	l := len(b.stack)
	if l == 0 {
		return errors.Wrap(cfg.ErrMalformed, "stack underflow")
	}

	b.types[l-1] = in.Type2

	if in.Type2 != vm.Bool || b.game != nil && b.game.TypedBooleans {
		return nil
	}

	if v, ok := IntValue(b.stack[l-1]); ok && (v == 0 || v == 1) {
		b.stack[l-1] = &Literal{Value: v == 1}
	}

	return nil
}

func (b *Builder) binary(in *vm.Instruction) error {
	r, rt, err := b.popType()
	if err != nil {
		return err
	}

	l, lt, err := b.popType()
	if err != nil {
		return err
	}

	op := binaryOps[in.Op]
	if bop, ok := boolOps[in.Op]; ok && in.Type1 == vm.Bool && in.Type2 == vm.Bool {
		op = bop
	}

	b.push(&Binary{Op: op, Left: l, Right: r}, vm.BinaryResult(in.Op, lt, rt))

	return nil
}

// dup copies the top values covering (DupSize+1) slots of Type1.
func (b *Builder) dup(in *vm.Instruction) error {
	need := (in.DupSize + 1) * in.Type1.Size()
	l := len(b.stack)

	n, size := 0, 0
	for size < need {
		if n == l {
			return errors.Wrap(cfg.ErrMalformed, "dup of %d slots: stack underflow", need)
		}

		size += b.types[l-1-n].Size()
		n++
	}

	for i := l - n; i < l; i++ {
		b.push(b.stack[i], b.types[i])
	}

	return nil
}

func (b *Builder) pushInstr(in *vm.Instruction) error {
	switch {
	case in.Var != nil:
		return b.pushVar(in.Var)
	case in.Func != "":
		b.push(b.funcRef(in.Func), vm.Int32)
	default:
		b.push(&Literal{Value: in.Value}, in.Type1)
	}

	return nil
}

func (b *Builder) pushVar(v *vm.VarRef) error {
	if v.Instance == vm.Local && v.Name == TempVar && b.temp != nil {
		b.push(b.temp, vm.Variable)
		b.temp = nil

		return nil
	}

	switch v.Ref {
	case vm.RefArray, vm.RefMultiPush, vm.RefMultiPushPop:
		idx, err := b.pop()
		if err != nil {
			return err
		}

		inst, err := b.pop()
		if err != nil {
			return err
		}

		b.push(&ArrayAccess{Array: b.variable(v, inst), Index: idx}, vm.Variable)
	case vm.RefStackTop:
		inst, err := b.pop()
		if err != nil {
			return err
		}

		b.push(b.variable(v, inst), vm.Variable)
	default:
		b.push(b.variable(v, nil), vm.Variable)
	}

	return nil
}

func (b *Builder) variable(v *vm.VarRef, inst Expr) *Variable {
	x := &Variable{
		Name: v.Name,
		Kind: v.Instance,
	}

	if inst != nil {
		x.Instance, x.Kind = instance(inst)
	}

	if x.Kind == vm.Builtin {
		x.Builtin = true
	} else if _, ok := b.game.builtin(v.Name); ok && (x.Kind == vm.Self || x.Kind == vm.Global) {
		x.Builtin = true
	}

	return x
}

// instance splits an instance operand into an expression and its kind.
// Named instance types have no expression.
func instance(x Expr) (Expr, vm.InstanceType) {
	if it, ok := x.(*InstanceType); ok {
		return nil, it.Type
	}

	v, ok := IntValue(x)
	if !ok {
		return x, vm.StackTop
	}

	if v < 0 {
		return nil, vm.InstanceType(v)
	}

	return &AssetRef{Type: "object", Index: int(v)}, vm.InstanceType(v)
}

// instanceExpr is an instance operand as a standalone expression.
func (b *Builder) instanceExpr(x Expr) Expr {
	e, k := instance(x)

	switch e := e.(type) {
	case nil:
		return &InstanceType{Type: k}
	case *AssetRef:
		e.Name = b.game.assetName(e.Type, e.Index)
	}

	return e
}

func (b *Builder) popInstr(in *vm.Instruction, out *Block) (err error) {
	v := in.Var
	if v == nil {
		return errors.Wrap(cfg.ErrMalformed, "pop without variable")
	}

	var target, value Expr

	// pop.i.v keeps the value above the reference
	swap := in.Type1 == vm.Int32

	if swap {
		if value, err = b.pop(); err != nil {
			return err
		}
	}

	switch v.Ref {
	case vm.RefArray, vm.RefMultiPush, vm.RefMultiPushPop:
		idx, err := b.pop()
		if err != nil {
			return err
		}

		inst, err := b.pop()
		if err != nil {
			return err
		}

		target = &ArrayAccess{Array: b.variable(v, inst), Index: idx}
	case vm.RefStackTop:
		inst, err := b.pop()
		if err != nil {
			return err
		}

		target = b.variable(v, inst)
	default:
		target = b.variable(v, nil)
	}

	if !swap {
		if value, err = b.pop(); err != nil {
			return err
		}
	}

	if v.Instance == vm.Local && v.Name == TempVar {
		b.temp = value
		return nil
	}

	b.assign(target, value, out)

	return nil
}

var compoundOps = map[string]bool{
	"+": true, "-": true, "*": true, "/": true, "%": true,
	"&": true, "|": true, "^": true,
}

func (b *Builder) assign(target, value Expr, out *Block) {
	if x, ok := value.(*Binary); ok && compoundOps[x.Op] && Equal(x.Left, target) {
		if v, ok := x.Right.(*Literal); ok && v.Value == int16(1) && (x.Op == "+" || x.Op == "-") {
			out.Add(&IncDec{Target: target, Dec: x.Op == "-"})
			return
		}

		out.Add(&Assign{Target: target, Op: x.Op, Value: x.Right})
		return
	}

	out.Add(&Assign{Target: target, Value: value})
}

func (b *Builder) popz(out *Block) error {
	if l := len(b.floors); l != 0 && len(b.stack) == b.floors[l-1] {
		// hidden counter or switch value dropped before an early exit
		return nil
	}

	x, err := b.pop()
	if err != nil {
		return err
	}

	switch x := x.(type) {
	case *FunctionDecl:
		if a, ok := out.Last().(*Assign); ok && a.Value == x {
			if v, ok := a.Target.(*Variable); ok {
				if x.Name == "" {
					x.Name = v.Name
				}

				out.Stmts[len(out.Stmts)-1] = &FuncDeclStmt{Decl: x}

				return nil
			}
		}

		out.Add(&FuncDeclStmt{Decl: x})

		return nil
	case *Call:
		if x.Func == FuncThrow && len(x.Args) == 1 {
			out.Add(&Throw{Value: x.Args[0]})
			return nil
		}
	}

	out.Add(&ExprStmt{X: x})

	return nil
}

// jump turns a leftover unconditional branch into break or continue.
func (b *Builder) jump(blk *cfg.Block, in *vm.Instruction, out *Block) error {
	t := in.BranchTarget()

	redirect, redirected := b.g.Redirect[in.Address]
	if redirected {
		t = redirect
	}

	for _, n := range b.g.Enclosing(blk.ID) {
		switch n := n.(type) {
		case *cfg.Fragment:
			return errors.Wrap(cfg.ErrUnsupported, "jump to %d", t)
		case *cfg.TryCatch:
			if redirected {
				continue
			}
		case *cfg.WhileLoop:
			if t == n.Start {
				out.Add(&Continue{})
				return nil
			}
		}

		switch t {
		case cfg.BreakTarget(n):
			out.Add(&Break{})
			return nil
		case cfg.ContinueTarget(n):
			out.Add(&Continue{})
			return nil
		}
	}

	return errors.Wrap(cfg.ErrUnsupported, "jump to %d", t)
}

func (b *Builder) ext(in *vm.Instruction, out *Block) error {
	switch in.Ext {
	case vm.CheckArrayIndex, vm.SaveArrayReference, vm.RestoreArrayReference:
	case vm.SetArrayOwner:
		_, err := b.pop()
		return err
	case vm.PushArrayFinal, vm.PushArrayContainer:
		idx, err := b.pop()
		if err != nil {
			return err
		}

		arr, err := b.pop()
		if err != nil {
			return err
		}

		b.push(&ArrayAccess{Array: arr, Index: idx}, vm.Variable)
	case vm.PopArrayFinal:
		idx, err := b.pop()
		if err != nil {
			return err
		}

		arr, err := b.pop()
		if err != nil {
			return err
		}

		value, err := b.pop()
		if err != nil {
			return err
		}

		b.assign(&ArrayAccess{Array: arr, Index: idx}, value, out)
	case vm.PushReference:
		switch {
		case in.Asset != nil:
			b.push(&AssetRef{
				Type:  in.Asset.Type,
				Index: in.Asset.Index,
				Name:  b.game.assetName(in.Asset.Type, in.Asset.Index),
			}, vm.Int32)
		case in.Func != "":
			b.push(b.funcRef(in.Func), vm.Int32)
		default:
			b.push(&Literal{Value: in.Value}, vm.Int32)
		}
	default:
		return errors.Wrap(cfg.ErrUnsupported, "unstructured %v", in.Ext)
	}

	return nil
}

// Equal reports whether two expressions are structurally identical.
func Equal(a, b Expr) bool {
	return reflect.DeepEqual(a, b)
}
