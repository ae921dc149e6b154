package ast

import (
	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/vm"
)

type (
	Expr interface {
		expr()
	}

	Stmt interface {
		stmt()
	}

	Block struct {
		Stmts []Stmt
	}

	// Literal is a constant. Nil Value is undefined.
	Literal struct {
		Value any // int16, int32, int64, float64, bool, string
	}

	Variable struct {
		Name     string
		Instance Expr // nil for the current instance
		Kind     vm.InstanceType
		Builtin  bool
	}

	ArrayAccess struct {
		Array Expr
		Index Expr
	}

	Binary struct {
		Op    string
		Left  Expr
		Right Expr
	}

	Unary struct {
		Op string
		X  Expr
	}

	Call struct {
		Func string
		Args []Expr
	}

	// MethodCall calls a function value, optionally bound to an instance.
	MethodCall struct {
		Func     Expr
		Instance Expr
		Args     []Expr
	}

	ShortCircuit struct {
		Or    bool
		Conds []Expr
	}

	Conditional struct {
		Cond Expr
		Then Expr
		Else Expr
	}

	Nullish struct {
		Left  Expr
		Right Expr
	}

	FunctionDecl struct {
		Name  string // empty for anonymous functions
		Entry string

		Args     []string
		Defaults []Expr // per argument, nil if none

		Constructor bool
		Inherits    Expr

		Struct bool

		Body *Block
	}

	StructLit struct {
		Fields []Field
	}

	Field struct {
		Name  string
		Value Expr
	}

	ArrayLit struct {
		Elems []Expr
	}

	New struct {
		Func Expr
		Args []Expr
	}

	FunctionRef struct {
		Name string
	}

	AssetRef struct {
		Type  string
		Index int
		Name  string // empty if unresolved
	}

	EnumValue struct {
		Enum  string
		Name  string
		Value int64
	}

	NamedConstant struct {
		Name string
	}

	InstanceType struct {
		Type vm.InstanceType
	}
)

type (
	// Assign is `target = value` or a compound form if Op is set.
	// Op "??" is the nullish assignment.
	Assign struct {
		Target Expr
		Op     string
		Value  Expr
	}

	IncDec struct {
		Target Expr
		Dec    bool
	}

	ExprStmt struct {
		X Expr
	}

	If struct {
		Cond Expr
		Then *Block
		Else *Block // nil without else
	}

	While struct {
		Cond Expr // nil for an infinite loop
		Body *Block
	}

	For struct {
		Init Stmt
		Cond Expr
		Step Stmt
		Body *Block
	}

	DoUntil struct {
		Body *Block
		Cond Expr
	}

	Repeat struct {
		Count Expr
		Body  *Block
	}

	With struct {
		Target Expr
		Body   *Block
	}

	Switch struct {
		Value Expr
		Cases []*Case
	}

	Case struct {
		Values  []Expr
		Default bool

		Body *Block

		// Fallthrough is set when the body runs into the next case.
		Fallthrough bool
	}

	Try struct {
		Body *Block

		CatchVar string
		Catch    *Block // nil without catch

		Finally *Block // nil without finally
	}

	Break    struct{}
	Continue struct{}
	Exit     struct{}

	Return struct {
		Value Expr
	}

	Throw struct {
		Value Expr
	}

	StaticInit struct {
		Body *Block
	}

	FuncDeclStmt struct {
		Decl *FunctionDecl
	}

	VarDecl struct {
		Vars []VarSpec
	}

	VarSpec struct {
		Name  string
		Value Expr // nil if declared only
	}

	EnumDecl struct {
		Name   string
		Values []EnumMember
	}

	EnumMember struct {
		Name  string
		Value int64
	}
)

func (*Literal) expr()       {}
func (*Variable) expr()      {}
func (*ArrayAccess) expr()   {}
func (*Binary) expr()        {}
func (*Unary) expr()         {}
func (*Call) expr()          {}
func (*MethodCall) expr()    {}
func (*ShortCircuit) expr()  {}
func (*Conditional) expr()   {}
func (*Nullish) expr()       {}
func (*FunctionDecl) expr()  {}
func (*StructLit) expr()     {}
func (*ArrayLit) expr()      {}
func (*New) expr()           {}
func (*FunctionRef) expr()   {}
func (*AssetRef) expr()      {}
func (*EnumValue) expr()     {}
func (*NamedConstant) expr() {}
func (*InstanceType) expr()  {}

func (*Block) stmt()        {}
func (*Assign) stmt()       {}
func (*IncDec) stmt()       {}
func (*ExprStmt) stmt()     {}
func (*If) stmt()           {}
func (*While) stmt()        {}
func (*For) stmt()          {}
func (*DoUntil) stmt()      {}
func (*Repeat) stmt()       {}
func (*With) stmt()         {}
func (*Switch) stmt()       {}
func (*Try) stmt()          {}
func (*Break) stmt()        {}
func (*Continue) stmt()     {}
func (*Exit) stmt()         {}
func (*Return) stmt()       {}
func (*Throw) stmt()        {}
func (*StaticInit) stmt()   {}
func (*FuncDeclStmt) stmt() {}
func (*VarDecl) stmt()      {}
func (*EnumDecl) stmt()     {}

func (b *Block) Add(s ...Stmt) {
	b.Stmts = append(b.Stmts, s...)
}

// Last returns the final statement, nil for an empty block.
func (b *Block) Last() Stmt {
	if b == nil || len(b.Stmts) == 0 {
		return nil
	}

	return b.Stmts[len(b.Stmts)-1]
}

func (b *Block) Empty() bool {
	return b == nil || len(b.Stmts) == 0
}

// IsUndefined reports whether x is the undefined value.
func IsUndefined(x Expr) bool {
	switch x := x.(type) {
	case *Literal:
		return x.Value == nil
	case *Variable:
		return x.Name == "undefined" && (x.Builtin || x.Kind == vm.Builtin)
	}

	return false
}

// IntValue returns the value of an integer literal.
func IntValue(x Expr) (int64, bool) {
	l, ok := x.(*Literal)
	if !ok {
		return 0, false
	}

	switch v := l.Value.(type) {
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	}

	return 0, false
}
