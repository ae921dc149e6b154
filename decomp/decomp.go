package decomp

import (
	"context"

	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/errors"
	"tlog.app/go/loc"
	"tlog.app/go/tlog"

	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/ast"
	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/cfg"
	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/config"
	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/format"
	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/vm"
)

type (
	GameContext = ast.GameContext

	Warning struct {
		Message   string
		CodeEntry string
	}

	// Error is a failed stage of one code entry.
	Error struct {
		Stage string
		Entry string
		PC    loc.PC
		Err   error
	}

	Result struct {
		Root     *ast.Block
		Warnings []Warning
		Enums    *ast.EnumSet
	}

	// DecompileContext is the session of one code entry.
	// It is not safe for concurrent use, GameContext is shared read-only.
	DecompileContext struct {
		Game     *GameContext
		Settings *config.Settings

		Entry *vm.CodeEntry

		Graph    *cfg.Graph
		Root     *ast.Block
		Enums    *ast.EnumSet
		Warnings []Warning
	}
)

// Stages.
const (
	StageCFG   = "control flow analysis"
	StageBuild = "ast building"
	StageClean = "ast cleanup"
	StagePrint = "printing"
)

func New(e *vm.CodeEntry, game *GameContext, s *config.Settings) *DecompileContext {
	if s == nil {
		s = config.Default()
	}

	return &DecompileContext{
		Game:     game,
		Settings: s,
		Entry:    e,
	}
}

// Decompile runs the whole pipeline on e.
func Decompile(ctx context.Context, e *vm.CodeEntry, game *GameContext, s *config.Settings) (*Result, error) {
	d := New(e, game, s)

	err := d.Decompile(ctx)
	if err != nil {
		return nil, err
	}

	return d.Result(), nil
}

func (d *DecompileContext) Decompile(ctx context.Context) (err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "decompile", "entry", d.Entry.Name)
	defer tr.Finish("err", &err)

	err = d.Analyze(ctx)
	if err != nil {
		return err
	}

	d.Root, err = ast.Build(ctx, d.Graph, d.Game, d.astOptions(), d.Warn)
	if err != nil {
		return d.fail(StageBuild, err)
	}

	d.Enums, err = ast.Clean(ctx, d.Root, d.Game, d.astOptions())
	if err != nil {
		return d.fail(StageClean, err)
	}

	if tr.If("warnings") {
		tr.Printw("warnings", "entry", d.Entry.Name, "n", len(d.Warnings))
	}

	return nil
}

// Analyze runs the control-flow stages only.
func (d *DecompileContext) Analyze(ctx context.Context) (err error) {
	opts := cfg.Options{
		UsingNullish: d.Game != nil && d.Game.UsingNullish,
		CleanupTry:   d.Settings.CleanupTry,
	}

	d.Graph, err = cfg.Analyze(ctx, d.Entry, opts, d.Warn)
	if err != nil {
		return d.fail(StageCFG, err)
	}

	return nil
}

// Print formats the decompiled entry.
func (d *DecompileContext) Print(ctx context.Context, b []byte) (_ []byte, err error) {
	if d.Root == nil {
		return nil, d.fail(StagePrint, errors.New("not decompiled"))
	}

	b, err = format.Format(ctx, b, d.Root, d.Settings)
	if err != nil {
		return nil, d.fail(StagePrint, err)
	}

	return b, nil
}

func (d *DecompileContext) Result() *Result {
	return &Result{
		Root:     d.Root,
		Warnings: d.Warnings,
		Enums:    d.Enums,
	}
}

// Warn appends a warning of the current entry.
func (d *DecompileContext) Warn(msg string) {
	d.Warnings = append(d.Warnings, Warning{Message: msg, CodeEntry: d.Entry.Name})
}

func (d *DecompileContext) astOptions() ast.Options {
	s := d.Settings

	return ast.Options{
		AllowLeftoverDataOnStack:     s.AllowLeftoverDataOnStack,
		CleanupElseToContinue:        s.CleanupElseToContinue,
		CleanupDefaultArgumentValues: s.CleanupDefaultArgumentValues,
		CleanupBuiltinArrayVariables: s.CleanupBuiltinArrayVariables,
		UnknownArgumentNamePattern:   s.UnknownArgumentNamePattern,
		CreateEnumDeclarations:       s.CreateEnumDeclarations,
		UnknownEnumName:              s.UnknownEnumName,
		UnknownEnumValuePattern:      s.UnknownEnumValuePattern,
	}
}

func (d *DecompileContext) fail(stage string, err error) error {
	return &Error{
		Stage: stage,
		Entry: d.Entry.Name,
		PC:    loc.Caller(1),
		Err:   err,
	}
}

func (e *Error) Error() string {
	return string(hfmt.Appendf(nil, "%v: %v: %v", e.Entry, e.Stage, e.Err))
}

func (e *Error) Unwrap() error { return e.Err }

func (w Warning) String() string {
	return w.CodeEntry + ": " + w.Message
}
