package game

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp"
	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/ast"
	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/config"
	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/vm"
)

type (
	// Entry is the outcome of one code entry.
	// Err is set instead of Text if any stage failed.
	Entry struct {
		Name     string
		Text     []byte
		Warnings []decomp.Warning
		Err      error
	}

	Result struct {
		Entries []Entry
		Enums   *ast.EnumSet

		Failed int
	}
)

// Decompile decompiles and prints entries concurrently.
// Failed entries are recorded in the result and do not stop the others.
// The returned error is only set if ctx was canceled.
func Decompile(ctx context.Context, entries []*vm.CodeEntry, g *decomp.GameContext, s *config.Settings) (res *Result, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "game: decompile", "entries", len(entries))
	defer tr.Finish("err", &err)

	if s == nil {
		s = config.Default()
	}

	res = &Result{
		Entries: make([]Entry, len(entries)),
		Enums:   ast.NewEnumSet(),
	}

	var mu sync.Mutex

	var eg errgroup.Group
	if s.Workers > 0 {
		eg.SetLimit(s.Workers)
	}

	for i, e := range entries {
		i, e := i, e

		res.Entries[i].Name = e.Name

		if err = ctx.Err(); err != nil {
			res.Entries[i].Err = err
			continue
		}

		eg.Go(func() error {
			d := decomp.New(e, g, s)

			r := &res.Entries[i]
			r.Text, r.Err = run(ctx, d)
			r.Warnings = d.Warnings

			if r.Err != nil {
				tr.Printw("entry failed", "entry", e.Name, "err", r.Err)
				return nil
			}

			mu.Lock()
			res.Enums.Merge(d.Enums)
			mu.Unlock()

			return nil
		})
	}

	_ = eg.Wait()

	for _, e := range res.Entries {
		if e.Err != nil {
			res.Failed++
		}
	}

	tr.V("summary").Printw("done", "entries", len(entries), "failed", res.Failed, "enums", res.Enums.Len())

	return res, err
}

// run decompiles one entry. A panic on bad input fails only that entry.
func run(ctx context.Context, d *decomp.DecompileContext) (_ []byte, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.New("panic: %v", p)
		}
	}()

	err = d.Decompile(ctx)
	if err != nil {
		return nil, err
	}

	return d.Print(ctx, nil)
}
