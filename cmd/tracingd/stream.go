package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/oklog/run"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"

	"github.com/jasongin/tracing"
	"github.com/jasongin/tracing/tracinghttp"
)

type streamConfig struct {
	*rootConfig

	categories []string
	noColor    bool
}

func (cfg *streamConfig) register(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{
		LongName:    "category",
		Value:       ffval.NewUniqueList(&cfg.categories),
		Usage:       "only stream events tagged with this category (repeatable)",
		Placeholder: "NAME",
	})
	fs.AddFlag(ff.FlagConfig{
		LongName: "no-color",
		Value:    ffval.NewValue(&cfg.noColor),
		Usage:    "disable colored output",
	})
}

var (
	instantColor = color.New(color.FgGreen)
	spanColor    = color.New(color.FgBlue)
	counterColor = color.New(color.FgYellow)
)

func (cfg *streamConfig) Exec(ctx context.Context, args []string) error {
	if cfg.noColor {
		color.NoColor = true
	}

	client := tracinghttp.NewClient(cfg.uri)

	cfg.debug.Printf("streaming from %s", cfg.uri)

	var g run.Group

	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return client.Stream(ctx, cfg.categories, func(ev tracing.Event) error {
				cfg.print(ev)
				return nil
			})
		}, func(error) {
			cancel()
		})
	}

	{
		g.Add(run.SignalHandler(ctx, os.Interrupt))
	}

	return g.Run()
}

func (cfg *streamConfig) print(ev tracing.Event) {
	var c *color.Color
	switch ev.Phase {
	case tracing.PhaseInstant:
		c = instantColor
	case tracing.PhaseBegin, tracing.PhaseEnd:
		c = spanColor
	case tracing.PhaseCounter:
		c = counterColor
	default:
		c = color.New()
	}

	var cat string
	if ev.Group != nil {
		cat = ev.Group.Key()
	}

	ts := time.Unix(0, ev.Timestamp).Format("15:04:05.000000")

	line := fmt.Sprintf("%s %s %-24s [%s]", ts, ev.Phase, ev.Name, cat)
	for _, a := range ev.Args {
		line += fmt.Sprintf(" %s=%v", a.Name, a.Value)
	}

	c.Fprintln(cfg.stdout, line)
}
