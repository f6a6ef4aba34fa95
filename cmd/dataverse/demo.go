package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vango-dev/dataverse/pkg/dataverse"
)

func demoCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run a small reactive graph and print its notifications",
		Long: `Run a left fold over an element-wise mapped array and a pointer into a
dictionary, mutating the atoms between ticks and printing every value
delivered to the taps.

Examples:
  dataverse demo
  dataverse demo --log-level=debug`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.OutOrStdout(), g.logger)
		},
	}
}

func runDemo(w io.Writer, logger *slog.Logger) error {
	ctx := dataverse.NewContext(dataverse.WithLogger(logger), dataverse.WithName("demo"))

	items := dataverse.NewArray([]string{"0", "1"})
	wrapped := dataverse.MapArray(items.Derived(), func(x string) (string, error) {
		return "(" + x + ")", nil
	})
	prefix := dataverse.NewBox("(prefix)").Named("prefix")
	folded := dataverse.Reduce(wrapped, func(acc, cur string) (string, error) {
		return acc + cur, nil
	}, prefix).Named("folded")

	v, err := folded.Value()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "pull        %s\n", v)

	untapFold := folded.Changes(ctx).Tap(func(v string) {
		fmt.Fprintf(w, "tick %-6d %s\n", ctx.Seq(), v)
	})
	defer untapFold()

	users := dataverse.NewDict(map[string]string{"ada": "Lovelace"})
	grace := users.Prop("grace").Derivation().Named("users.grace")
	untapGrace := grace.Changes(ctx).Tap(func(v any) {
		fmt.Fprintf(w, "tick %-6d users.grace = %v\n", ctx.Seq(), v)
	})
	defer untapGrace()

	steps := []func() error{
		func() error { return items.SetIndex(0, "0-3") },
		func() error { items.Push("2"); return nil },
		func() error { prefix.Set("(prefix-2)"); return nil },
		func() error { users.SetProp("grace", "Hopper"); return nil },
		func() error { users.DeleteProp("grace"); return nil },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
		if err := ctx.Tick(); err != nil {
			return err
		}
	}

	success(w, "%d ticks, %d hot nodes", ctx.Seq(), ctx.HotCount())
	return nil
}
