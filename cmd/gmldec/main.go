package main

import (
	"context"
	"os"

	"github.com/nikandfor/hacked/hfmt"
	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp"
	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/config"
	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/game"
)

func main() {
	decompileCmd := &cli.Command{
		Name:        "decompile",
		Description: "decompile code entries and print gml",
		Action:      decompileAct,
		Args:        cli.Args{},
	}

	cfgCmd := &cli.Command{
		Name:        "cfg",
		Description: "dump structured control flow of code entries",
		Action:      cfgAct,
		Args:        cli.Args{},
	}

	disCmd := &cli.Command{
		Name:        "dis",
		Description: "print assembled instructions with addresses",
		Action:      disAct,
		Args:        cli.Args{},
	}

	app := &cli.Command{
		Name:        "gmldec",
		Description: "gmldec decompiles GameMaker VM bytecode",
		Before:      before,
		Flags: []*cli.Flag{
			cli.NewFlag("config", "", "settings yaml file"),
			cli.NewFlag("workers", 0, "concurrent entries, 0 keeps the settings value"),
			cli.NewFlag("v", "", "tlog verbosity topics"),
			cli.HelpFlag,
		},
		Commands: []*cli.Command{
			decompileCmd,
			cfgCmd,
			disCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func before(c *cli.Command) error {
	if v := c.String("v"); v != "" {
		tlog.SetVerbosity(v)
	}

	return nil
}

func settings(c *cli.Command) (s *config.Settings, err error) {
	s = config.Default()

	if name := c.String("config"); name != "" {
		s, err = config.Load(name)
		if err != nil {
			return nil, errors.Wrap(err, "load config")
		}
	}

	if n := c.Int("workers"); n > 0 {
		s.Workers = n
	}

	return s, nil
}

func decompileAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	s, err := settings(c)
	if err != nil {
		return err
	}

	failed := 0

	for _, a := range c.Args {
		in, err := LoadInput(a)
		if err != nil {
			return errors.Wrap(err, "load %v", a)
		}

		entries, err := in.CodeEntries()
		if err != nil {
			return errors.Wrap(err, "assemble %v", a)
		}

		res, err := game.Decompile(ctx, entries, in.Game.Context(), s)
		if err != nil {
			return errors.Wrap(err, "decompile %v", a)
		}

		var b []byte

		for _, e := range res.Entries {
			for _, w := range e.Warnings {
				tlog.Printw("warning", "entry", w.CodeEntry, "msg", w.Message)
			}

			if e.Err != nil {
				tlog.Printw("decompile failed", "entry", e.Name, "err", e.Err)
				continue
			}

			b = hfmt.Appendf(b, "// %s\n%s\n", e.Name, e.Text)
		}

		_, err = os.Stdout.Write(b)
		if err != nil {
			return errors.Wrap(err, "write")
		}

		failed += res.Failed
	}

	if failed != 0 {
		return errors.New("%d entries failed", failed)
	}

	return nil
}

func cfgAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	s, err := settings(c)
	if err != nil {
		return err
	}

	for _, a := range c.Args {
		in, err := LoadInput(a)
		if err != nil {
			return errors.Wrap(err, "load %v", a)
		}

		entries, err := in.CodeEntries()
		if err != nil {
			return errors.Wrap(err, "assemble %v", a)
		}

		for _, e := range entries {
			d := decomp.New(e, in.Game.Context(), s)

			err = d.Analyze(ctx)
			if err != nil {
				return err
			}

			_, err = os.Stdout.Write(hfmt.Appendf(nil, "// %s\n", e.Name))
			if err != nil {
				return errors.Wrap(err, "write")
			}

			d.Graph.Dump(os.Stdout)
		}
	}

	return nil
}

func disAct(c *cli.Command) (err error) {
	for _, a := range c.Args {
		in, err := LoadInput(a)
		if err != nil {
			return errors.Wrap(err, "load %v", a)
		}

		entries, err := in.CodeEntries()
		if err != nil {
			return errors.Wrap(err, "assemble %v", a)
		}

		var b []byte

		for _, e := range entries {
			b = hfmt.Appendf(b, "// %s\n", e.Name)

			for _, x := range e.Instructions {
				b = hfmt.Appendf(b, "%v\n", x)
			}
		}

		_, err = os.Stdout.Write(b)
		if err != nil {
			return errors.Wrap(err, "write")
		}
	}

	return nil
}
