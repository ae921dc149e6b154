package cfg

import (
	"context"
	"strings"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/vm"
)

type (
	Options struct {
		// UsingNullish enables ?? and ??= detection.
		UsingNullish bool

		// CleanupTry folds try statement flag variables back into
		// break and continue.
		CleanupTry bool
	}
)

// Analyze builds the structured control-flow graph of a code entry.
func Analyze(ctx context.Context, e *vm.CodeEntry, opts Options, warn func(string)) (g *Graph, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "cfg: analyze", "entry", e.Name, "instrs", len(e.Instructions))
	defer tr.Finish("err", &err)

	g = New(e)
	g.OnWarning(warn)

	err = g.FindBlocks()
	if err != nil {
		return nil, errors.Wrap(err, "blocks")
	}

	if tr.If("dump_leaders") {
		tr.Printw("leaders", "entry", e.Name, "addrs", g.Leaders)
	}

	err = g.FindFragments()
	if err != nil {
		return nil, errors.Wrap(err, "fragments")
	}

	for _, f := range g.FragmentList() {
		err = g.analyzeFragment(ctx, f, opts)
		if err != nil {
			return nil, errors.Wrap(err, "fragment %v", f.Entry.Name)
		}
	}

	if tr.If("dump_cfg") {
		var b strings.Builder

		g.Dump(&b)

		tr.Printw("cfg", "entry", e.Name, "dump", b.String())
	}

	return g, nil
}

func (g *Graph) analyzeFragment(ctx context.Context, f *Fragment, opts Options) (err error) {
	tr := tlog.SpanFromContext(ctx)

	stage := func(name string, run func() error) {
		if err != nil {
			return
		}

		err = run()
		if err != nil {
			err = errors.Wrap(err, "%v", name)
			return
		}

		if tr.If("dump_stage") {
			tr.Printw("stage done", "fragment", f.Entry.Name, "stage", name, "nodes", len(g.Nodes))
		}
	}

	stage("static init", func() error { return g.FindStaticInits(f) })

	if opts.UsingNullish {
		stage("nullish", func() error { return g.FindNullish(f) })
	}

	var scs []ShortCircuitRecord

	stage("short circuit", func() (err error) {
		scs, err = g.FindShortCircuits(f)
		return err
	})

	stage("loops", func() error { return g.FindLoops(f) })
	stage("short circuit insert", func() error { return g.InsertShortCircuits(scs) })
	stage("try", func() error { return g.FindTryCatch(f) })

	var sws []SwitchRecord

	stage("switch", func() (err error) {
		sws, err = g.FindSwitches(f)
		return err
	})

	stage("switch insert", func() error { return g.InsertSwitches(sws) })

	if opts.CleanupTry {
		stage("try cleanup", func() error {
			g.CleanTryCatch(f)
			return nil
		})
	}

	stage("binary branch", func() error { return g.FindBinaryBranches(f) })

	return err
}
