package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"

	"github.com/jasongin/tracing"
	"github.com/jasongin/tracing/tracinghttp"
)

type categoriesConfig struct {
	*rootConfig

	set []string
}

func (cfg *categoriesConfig) register(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{
		LongName:    "set",
		Value:       ffval.NewUniqueList(&cfg.set),
		Usage:       "replace the enabled set with this category (repeatable); omit to just show",
		Placeholder: "NAME",
	})
}

func (cfg *categoriesConfig) Exec(ctx context.Context, args []string) error {
	client := tracinghttp.NewClient(cfg.uri)

	if len(cfg.set) > 0 {
		res, err := client.SetCategories(ctx, cfg.set)
		if err != nil {
			return err
		}
		cfg.info.Printf("changed: %v", res.Changed)
		cfg.printEnabledSet(res.Categories)
		return nil
	}

	set, err := client.Categories(ctx)
	if err != nil {
		return err
	}
	cfg.printEnabledSet(set)
	return nil
}

func (cfg *categoriesConfig) printEnabledSet(set tracing.EnabledSet) {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		state := "disabled"
		if set[name] {
			state = "enabled"
		}
		fmt.Fprintf(cfg.stdout, "%s\t%s\n", name, state)
	}
}
