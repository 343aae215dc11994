// tracingd is a small daemon and CLI around the tracing pipeline: it runs
// an agent flushing to a trace file and exposes the HTTP control surface,
// or acts as a client against a running instance.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/oklog/run"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/peterbourgon/ff/v4/ffval"
)

func main() {
	var (
		ctx    = context.Background()
		stdout = os.Stdout
		stderr = os.Stderr
		args   = os.Args[1:]
	)
	err := exec(ctx, stdout, stderr, args)
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.As(err, &(run.SignalError{})):
		os.Exit(0)
	default:
		fmt.Fprintf(stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func exec(ctx context.Context, stdout, stderr io.Writer, args []string) (err error) {
	rootConfig := &rootConfig{
		stdout: stdout,
		stderr: stderr,
	}

	rootFlags := ff.NewFlagSet("tracingd")
	rootConfig.register(rootFlags)

	rootCommand := &ff.Command{
		Name:      "tracingd",
		ShortHelp: "run or control a trace-event pipeline",
		Flags:     rootFlags,
	}

	serveConfig := &serveConfig{rootConfig: rootConfig}
	serveFlags := ff.NewFlagSet("serve").SetParent(rootFlags)
	serveConfig.register(serveFlags)
	rootCommand.Subcommands = append(rootCommand.Subcommands, &ff.Command{
		Name:      "serve",
		ShortHelp: "run an agent with an HTTP control surface",
		LongHelp:  "Start a tracing agent, flush events to a trace file, and serve the control API.",
		Flags:     serveFlags,
		Exec:      serveConfig.Exec,
	})

	streamConfig := &streamConfig{rootConfig: rootConfig}
	streamFlags := ff.NewFlagSet("stream").SetParent(rootFlags)
	streamConfig.register(streamFlags)
	rootCommand.Subcommands = append(rootCommand.Subcommands, &ff.Command{
		Name:      "stream",
		ShortHelp: "continuously stream trace events to the terminal",
		Flags:     streamFlags,
		Exec:      streamConfig.Exec,
	})

	categoriesConfig := &categoriesConfig{rootConfig: rootConfig}
	categoriesFlags := ff.NewFlagSet("categories").SetParent(rootFlags)
	categoriesConfig.register(categoriesFlags)
	rootCommand.Subcommands = append(rootCommand.Subcommands, &ff.Command{
		Name:      "categories",
		ShortHelp: "show or replace the enabled categories of a running instance",
		Flags:     categoriesFlags,
		Exec:      categoriesConfig.Exec,
	})

	defer func() {
		if errors.Is(err, ff.ErrHelp) || errors.Is(err, ff.ErrNoExec) {
			fmt.Fprintf(stderr, "\n%s\n", ffhelp.Command(rootCommand))
			err = nil
		}
	}()

	if err := rootCommand.Parse(args, ff.WithEnvVarPrefix("TRACINGD")); err != nil {
		return err
	}

	if err := rootConfig.setup(); err != nil {
		return err
	}

	return rootCommand.Run(ctx)
}

type rootConfig struct {
	stdout io.Writer
	stderr io.Writer

	uri      string
	logLevel string

	info, debug *log.Logger
}

func (cfg *rootConfig) register(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{
		ShortName:   'u',
		LongName:    "uri",
		Value:       ffval.NewValueDefault(&cfg.uri, "localhost:8372"),
		Usage:       "server instance URI, e.g. 'localhost:8372' or 'http+unix:///run/tracingd.sock:/'",
		Placeholder: "URI",
	})
	fs.AddFlag(ff.FlagConfig{
		ShortName:   'l',
		LongName:    "log",
		Value:       ffval.NewEnum(&cfg.logLevel, "info", "i", "debug", "d", "none", "n"),
		Usage:       "log level: i/info, d/debug, n/none",
		Placeholder: "LEVEL",
	})
}

func (cfg *rootConfig) setup() error {
	var infodst, debugdst io.Writer
	switch cfg.logLevel {
	case "n", "none":
		infodst, debugdst = io.Discard, io.Discard
	case "i", "info":
		infodst, debugdst = cfg.stderr, io.Discard
	case "d", "debug":
		infodst, debugdst = cfg.stderr, cfg.stderr
	default:
		return fmt.Errorf("invalid log level %q", cfg.logLevel)
	}
	cfg.info = log.New(infodst, "", 0)
	cfg.debug = log.New(debugdst, "[DEBUG] ", log.Lmsgprefix)
	return nil
}
