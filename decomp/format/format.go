package format

import (
	"context"

	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/errors"

	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/ast"
	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/config"
)

type (
	// Printer writes GML source.
	Printer struct {
		*config.Settings
	}
)

func Format(ctx context.Context, b []byte, x any, s *config.Settings) ([]byte, error) {
	if s == nil {
		s = config.Default()
	}

	p := &Printer{Settings: s}

	switch x := x.(type) {
	case *ast.Block:
		return p.block(ctx, b, x, 0)
	case ast.Stmt:
		return p.stmt(ctx, b, x, 0)
	case ast.Expr:
		return p.expr(ctx, b, x, precLowest, 0)
	default:
		return nil, errors.New("unsupported type: %T", x)
	}
}

func (p *Printer) block(ctx context.Context, b []byte, x *ast.Block, d int) (_ []byte, err error) {
	for i, s := range x.Stmts {
		if i != 0 && (p.spaced(s) || p.spaced(x.Stmts[i-1])) {
			b = append(b, '\n')
		}

		b, err = p.stmt(ctx, b, s, d)
		if err != nil {
			return nil, errors.Wrap(err, "stmt %d", i)
		}
	}

	return b, nil
}

// spaced reports whether s wants empty lines around it.
func (p *Printer) spaced(s ast.Stmt) bool {
	switch s.(type) {
	case *ast.If, *ast.While, *ast.For, *ast.DoUntil, *ast.Repeat, *ast.With, *ast.Switch, *ast.Try:
		return p.EmptyLineAroundBranchStatements
	case *ast.FuncDeclStmt, *ast.EnumDecl:
		return p.EmptyLineAroundFunctionDeclarations
	case *ast.StaticInit:
		return p.EmptyLineAroundStaticInitialization
	}

	return false
}

func (p *Printer) stmt(ctx context.Context, b []byte, s ast.Stmt, d int) (_ []byte, err error) {
	switch s := s.(type) {
	case *ast.Assign, *ast.IncDec, *ast.ExprStmt, *ast.VarDecl,
		*ast.Break, *ast.Continue, *ast.Exit, *ast.Return, *ast.Throw:
		b = app(b, p.IndentString, d, "")

		b, err = p.simple(ctx, b, s, d)
		if err != nil {
			return nil, err
		}

		return p.end(b), nil
	case *ast.Block:
		b = app(b, p.IndentString, d, "{\n")

		b, err = p.block(ctx, b, s, d+1)
		if err != nil {
			return nil, err
		}

		b = app(b, p.IndentString, d, "}")
	case *ast.If:
		b = app(b, p.IndentString, d, "")
		b, err = p.ifStmt(ctx, b, s, d)
	case *ast.While:
		b = app(b, p.IndentString, d, "while (")

		if s.Cond == nil {
			b = append(b, "true"...)
		} else if b, err = p.expr(ctx, b, s.Cond, precLowest, d); err != nil {
			return nil, errors.Wrap(err, "cond")
		}

		b = append(b, ')')
		b, _, err = p.body(ctx, b, s.Body, d)
	case *ast.For:
		b, err = p.forStmt(ctx, b, s, d)
	case *ast.DoUntil:
		b = app(b, p.IndentString, d, "do")

		b, err = p.tail(ctx, b, s.Body, d, "until (")
		if err != nil {
			return nil, err
		}

		b, err = p.expr(ctx, b, s.Cond, precLowest, d)
		if err != nil {
			return nil, errors.Wrap(err, "cond")
		}

		b = append(b, ')')

		return p.end(b), nil
	case *ast.Repeat:
		b = app(b, p.IndentString, d, "repeat (")

		b, err = p.expr(ctx, b, s.Count, precLowest, d)
		if err != nil {
			return nil, errors.Wrap(err, "count")
		}

		b = append(b, ')')
		b, _, err = p.body(ctx, b, s.Body, d)
	case *ast.With:
		b = app(b, p.IndentString, d, "with (")

		b, err = p.expr(ctx, b, s.Target, precLowest, d)
		if err != nil {
			return nil, errors.Wrap(err, "target")
		}

		b = append(b, ')')
		b, _, err = p.body(ctx, b, s.Body, d)
	case *ast.Switch:
		b, err = p.switchStmt(ctx, b, s, d)
	case *ast.Try:
		b, err = p.try(ctx, b, s, d)
	case *ast.StaticInit:
		for _, x := range s.Body.Stmts {
			b = app(b, p.IndentString, d, "static ")

			b, err = p.simple(ctx, b, x, d)
			if err != nil {
				return nil, errors.Wrap(err, "static")
			}

			b = p.end(b)
		}

		return b, nil
	case *ast.FuncDeclStmt:
		b = app(b, p.IndentString, d, "")
		b, err = p.function(ctx, b, s.Decl, d)
	case *ast.EnumDecl:
		b, err = p.enum(ctx, b, s, d)
	default:
		return nil, errors.New("unsupported stmt: %T", s)
	}

	if err != nil {
		return nil, err
	}

	return append(b, '\n'), nil
}

// simple formats a one-line statement without indent or terminator.
func (p *Printer) simple(ctx context.Context, b []byte, s ast.Stmt, d int) (_ []byte, err error) {
	switch s := s.(type) {
	case *ast.Assign:
		b, err = p.expr(ctx, b, s.Target, precLowest, d)
		if err != nil {
			return nil, errors.Wrap(err, "target")
		}

		b = hfmt.Appendf(b, " %s= ", s.Op)

		b, err = p.expr(ctx, b, s.Value, precLowest, d)
		if err != nil {
			return nil, errors.Wrap(err, "value")
		}
	case *ast.IncDec:
		b, err = p.expr(ctx, b, s.Target, precLowest, d)
		if err != nil {
			return nil, errors.Wrap(err, "target")
		}

		if s.Dec {
			b = append(b, "--"...)
		} else {
			b = append(b, "++"...)
		}
	case *ast.ExprStmt:
		b, err = p.expr(ctx, b, s.X, precLowest, d)
	case *ast.VarDecl:
		b = append(b, "var "...)

		for i, v := range s.Vars {
			if i != 0 {
				b = append(b, ", "...)
			}

			b = append(b, v.Name...)

			if v.Value == nil {
				continue
			}

			b = append(b, " = "...)

			b, err = p.expr(ctx, b, v.Value, precLowest, d)
			if err != nil {
				return nil, errors.Wrap(err, "var %v", v.Name)
			}
		}
	case *ast.Break:
		b = append(b, "break"...)
	case *ast.Continue:
		b = append(b, "continue"...)
	case *ast.Exit:
		b = append(b, "exit"...)
	case *ast.Return:
		b = append(b, "return"...)

		if s.Value != nil {
			b = append(b, ' ')
			b, err = p.expr(ctx, b, s.Value, precLowest, d)
		}
	case *ast.Throw:
		b = append(b, "throw "...)
		b, err = p.expr(ctx, b, s.Value, precLowest, d)
	default:
		return nil, errors.New("unsupported statement here: %T", s)
	}

	if err != nil {
		return nil, err
	}

	return b, nil
}

func (p *Printer) end(b []byte) []byte {
	if p.UseSemicolon {
		b = append(b, ';')
	}

	return append(b, '\n')
}

func isSimple(s ast.Stmt) bool {
	switch s.(type) {
	case *ast.Assign, *ast.IncDec, *ast.ExprStmt, *ast.VarDecl,
		*ast.Break, *ast.Continue, *ast.Exit, *ast.Return, *ast.Throw:
		return true
	}

	return false
}

// body formats a statement body after its header. It does not end the
// line and reports whether braces were written.
func (p *Printer) body(ctx context.Context, b []byte, x *ast.Block, d int) (_ []byte, braced bool, err error) {
	if p.RemoveSingleLineBlockBraces && x != nil && len(x.Stmts) == 1 && isSimple(x.Stmts[0]) {
		b = append(b, '\n')

		b, err = p.stmt(ctx, b, x.Stmts[0], d+1)
		if err != nil {
			return nil, false, err
		}

		return b[:len(b)-1], false, nil
	}

	if p.OpenBlockBraceOnSameLine {
		b = append(b, " {\n"...)
	} else {
		b = append(b, '\n')
		b = app(b, p.IndentString, d, "{\n")
	}

	if x != nil {
		b, err = p.block(ctx, b, x, d+1)
		if err != nil {
			return nil, false, err
		}
	}

	b = app(b, p.IndentString, d, "}")

	return b, true, nil
}

// tail writes a body followed by a keyword continuing the statement.
func (p *Printer) tail(ctx context.Context, b []byte, x *ast.Block, d int, word string) (_ []byte, err error) {
	b, braced, err := p.body(ctx, b, x, d)
	if err != nil {
		return nil, err
	}

	if braced && p.OpenBlockBraceOnSameLine {
		return append(append(b, ' '), word...), nil
	}

	b = append(b, '\n')

	return app(b, p.IndentString, d, "%s", word), nil
}

func (p *Printer) ifStmt(ctx context.Context, b []byte, s *ast.If, d int) (_ []byte, err error) {
	b = append(b, "if ("...)

	b, err = p.expr(ctx, b, s.Cond, precLowest, d)
	if err != nil {
		return nil, errors.Wrap(err, "cond")
	}

	b = append(b, ')')

	if s.Else == nil {
		b, _, err = p.body(ctx, b, s.Then, d)
		return b, err
	}

	b, err = p.tail(ctx, b, s.Then, d, "else")
	if err != nil {
		return nil, err
	}

	if len(s.Else.Stmts) == 1 {
		if elif, ok := s.Else.Stmts[0].(*ast.If); ok {
			b = append(b, ' ')
			return p.ifStmt(ctx, b, elif, d)
		}
	}

	b, _, err = p.body(ctx, b, s.Else, d)

	return b, err
}

func (p *Printer) forStmt(ctx context.Context, b []byte, s *ast.For, d int) (_ []byte, err error) {
	b = app(b, p.IndentString, d, "for (")

	if s.Init != nil {
		b, err = p.simple(ctx, b, s.Init, d)
		if err != nil {
			return nil, errors.Wrap(err, "init")
		}
	}

	b = append(b, ';')

	if s.Cond != nil {
		b = append(b, ' ')

		b, err = p.expr(ctx, b, s.Cond, precLowest, d)
		if err != nil {
			return nil, errors.Wrap(err, "cond")
		}
	}

	b = append(b, ';')

	if s.Step != nil {
		b = append(b, ' ')

		b, err = p.simple(ctx, b, s.Step, d)
		if err != nil {
			return nil, errors.Wrap(err, "step")
		}
	}

	b = append(b, ')')

	b, _, err = p.body(ctx, b, s.Body, d)

	return b, err
}

func (p *Printer) switchStmt(ctx context.Context, b []byte, s *ast.Switch, d int) (_ []byte, err error) {
	b = app(b, p.IndentString, d, "switch (")

	b, err = p.expr(ctx, b, s.Value, precLowest, d)
	if err != nil {
		return nil, errors.Wrap(err, "value")
	}

	b = append(b, ')')

	if p.OpenBlockBraceOnSameLine {
		b = append(b, " {\n"...)
	} else {
		b = append(b, '\n')
		b = app(b, p.IndentString, d, "{\n")
	}

	for i, c := range s.Cases {
		if i != 0 && p.EmptyLineBeforeSwitchCases {
			b = append(b, '\n')
		}

		for _, v := range c.Values {
			b = app(b, p.IndentString, d+1, "case ")

			b, err = p.expr(ctx, b, v, precLowest, d+1)
			if err != nil {
				return nil, errors.Wrap(err, "case %d", i)
			}

			b = append(b, ":\n"...)
		}

		if c.Default {
			b = app(b, p.IndentString, d+1, "default:\n")
		}

		b, err = p.block(ctx, b, c.Body, d+2)
		if err != nil {
			return nil, errors.Wrap(err, "case %d", i)
		}

		if i+1 < len(s.Cases) && p.EmptyLineAfterSwitchCases && !c.Body.Empty() {
			b = append(b, '\n')
		}
	}

	return app(b, p.IndentString, d, "}"), nil
}

func (p *Printer) try(ctx context.Context, b []byte, s *ast.Try, d int) (_ []byte, err error) {
	type part struct {
		word string
		body *ast.Block
	}

	var parts []part

	if s.Catch != nil {
		parts = append(parts, part{"catch (" + s.CatchVar + ")", s.Catch})
	}

	if s.Finally != nil {
		parts = append(parts, part{"finally", s.Finally})
	}

	b = app(b, p.IndentString, d, "try")
	cur := s.Body

	for _, pt := range parts {
		b, err = p.tail(ctx, b, cur, d, pt.word)
		if err != nil {
			return nil, errors.Wrap(err, "before %v", pt.word)
		}

		cur = pt.body
	}

	b, _, err = p.body(ctx, b, cur, d)

	return b, err
}

func (p *Printer) function(ctx context.Context, b []byte, x *ast.FunctionDecl, d int) (_ []byte, err error) {
	b = append(b, "function"...)

	if x.Name != "" {
		b = append(b, ' ')
		b = append(b, x.Name...)
	}

	b = append(b, '(')

	for i, a := range x.Args {
		if i != 0 {
			b = append(b, ", "...)
		}

		b = append(b, a...)

		if i < len(x.Defaults) && x.Defaults[i] != nil {
			b = append(b, " = "...)

			b, err = p.expr(ctx, b, x.Defaults[i], precLowest, d)
			if err != nil {
				return nil, errors.Wrap(err, "default %v", a)
			}
		}
	}

	b = append(b, ')')

	if x.Inherits != nil {
		b = append(b, " : "...)

		if fd, ok := x.Inherits.(*ast.FunctionDecl); ok && fd.Name != "" {
			b = append(b, fd.Name...)
		} else if b, err = p.expr(ctx, b, x.Inherits, precPrimary, d); err != nil {
			return nil, errors.Wrap(err, "inherits")
		}

		b = append(b, "()"...)
	}

	if x.Constructor {
		b = append(b, " constructor"...)
	}

	// function bodies always keep their braces
	if p.OpenBlockBraceOnSameLine {
		b = append(b, " {\n"...)
	} else {
		b = append(b, '\n')
		b = app(b, p.IndentString, d, "{\n")
	}

	b, err = p.block(ctx, b, x.Body, d+1)
	if err != nil {
		return nil, errors.Wrap(err, "function %v", x.Name)
	}

	return app(b, p.IndentString, d, "}"), nil
}

func (p *Printer) enum(ctx context.Context, b []byte, x *ast.EnumDecl, d int) ([]byte, error) {
	b = app(b, p.IndentString, d, "enum %s", x.Name)

	if p.OpenBlockBraceOnSameLine {
		b = append(b, " {\n"...)
	} else {
		b = append(b, '\n')
		b = app(b, p.IndentString, d, "{\n")
	}

	for i, v := range x.Values {
		b = app(b, p.IndentString, d+1, "%s = %d", v.Name, v.Value)

		if i+1 < len(x.Values) {
			b = append(b, ',')
		}

		b = append(b, '\n')
	}

	return app(b, p.IndentString, d, "}"), nil
}

func app(b []byte, indent string, d int, f string, args ...any) []byte {
	for i := 0; i < d; i++ {
		b = append(b, indent...)
	}

	return hfmt.Appendf(b, f, args...)
}
