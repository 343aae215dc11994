package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"

	"github.com/jasongin/tracing"
	"github.com/jasongin/tracing/tracinghttp"
	"github.com/jasongin/tracing/tracingsink"
	"github.com/oklog/run"
)

type serveConfig struct {
	*rootConfig

	fs *ff.FlagSet

	listenAddr string
	configPath string
	tracePath  string
	encoding   string
	compress   bool
	chunkSize  int
	maxChunks  int
	categories []string
}

func (cfg *serveConfig) register(fs *ff.FlagSet) {
	cfg.fs = fs
	fs.AddFlag(ff.FlagConfig{
		LongName: "listen-addr",
		Value:    ffval.NewValueDefault(&cfg.listenAddr, "localhost:8372"),
		Usage:    "HTTP listen address",
	})
	fs.AddFlag(ff.FlagConfig{
		ShortName:   'c',
		LongName:    "config",
		Value:       ffval.NewValue(&cfg.configPath),
		Usage:       "config file (.toml, .yaml, .yml); flags win over file values",
		Placeholder: "PATH",
	})
	fs.AddFlag(ff.FlagConfig{
		ShortName:   'f',
		LongName:    "trace-file",
		Value:       ffval.NewValueDefault(&cfg.tracePath, "trace.json"),
		Usage:       "output trace file",
		Placeholder: "PATH",
	})
	fs.AddFlag(ff.FlagConfig{
		LongName: "encoding",
		Value:    ffval.NewEnum(&cfg.encoding, "json", "msgpack", "cbor"),
		Usage:    "trace file encoding: json, msgpack, cbor",
	})
	fs.AddFlag(ff.FlagConfig{
		LongName: "compress",
		Value:    ffval.NewValue(&cfg.compress),
		Usage:    "gzip-compress the trace file",
	})
	fs.AddFlag(ff.FlagConfig{
		LongName: "chunk-size",
		Value:    ffval.NewValueDefault(&cfg.chunkSize, tracing.DefaultChunkSize),
		Usage:    "events per chunk",
	})
	fs.AddFlag(ff.FlagConfig{
		LongName: "max-chunks",
		Value:    ffval.NewValueDefault(&cfg.maxChunks, tracing.DefaultMaxChunks),
		Usage:    "max sealed chunks queued for the writer",
	})
	fs.AddFlag(ff.FlagConfig{
		LongName:    "category",
		Value:       ffval.NewUniqueList(&cfg.categories),
		Usage:       "category to enable at startup (repeatable)",
		Placeholder: "NAME",
	})
}

func (cfg *serveConfig) Exec(ctx context.Context, args []string) error {
	if cfg.configPath != "" {
		fc, err := loadFileConfig(cfg.configPath)
		if err != nil {
			return err
		}
		cfg.applyFileConfig(fc)
	}

	enc, err := tracingsink.ParseEncoding(cfg.encoding)
	if err != nil {
		return err
	}

	sink, err := tracingsink.NewFileSink(cfg.tracePath, enc, cfg.compress)
	if err != nil {
		return fmt.Errorf("open trace file: %w", err)
	}

	agent := tracing.NewAgent(sink, tracing.Options{
		ChunkSize: cfg.chunkSize,
		MaxChunks: cfg.maxChunks,
		Observer: func(set tracing.EnabledSet) {
			cfg.info.Printf("categories changed: %v", set)
		},
	})

	if len(cfg.categories) > 0 {
		agent.SetCategories(cfg.categories...)
		cfg.info.Printf("tracing started, categories %v", cfg.categories)
	}

	ln, err := net.Listen("tcp", cfg.listenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	cfg.info.Printf("listening on %s, trace file %s (%s)", cfg.listenAddr, cfg.tracePath, enc)

	httpServer := &http.Server{
		Handler: tracinghttp.NewServer(agent),
	}

	var g run.Group

	{
		g.Add(func() error {
			return httpServer.Serve(ln)
		}, func(error) {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			httpServer.Shutdown(shutdownCtx)
		})
	}

	{
		g.Add(run.SignalHandler(ctx, os.Interrupt))
	}

	defer func() {
		agent.Stop()
		if err := sink.Close(); err != nil {
			cfg.info.Printf("close trace file: %v", err)
		}
		stats := agent.Stats()
		cfg.info.Printf("done: accepted %d, dropped %d, written %d chunks, %d sink errors",
			stats.Accepted, stats.Dropped, stats.Written, stats.SinkErrors)
	}()

	return g.Run()
}

// applyFileConfig merges file values under flag values: a file value
// applies only when its flag was not given on the command line or via the
// environment.
func (cfg *serveConfig) applyFileConfig(fc *fileConfig) {
	if !cfg.flagGiven("trace-file") && fc.TraceFile != "" {
		cfg.tracePath = fc.TraceFile
	}
	if !cfg.flagGiven("encoding") && fc.Encoding != "" {
		cfg.encoding = fc.Encoding
	}
	if !cfg.flagGiven("compress") && fc.Compress {
		cfg.compress = true
	}
	if !cfg.flagGiven("chunk-size") && fc.ChunkSize > 0 {
		cfg.chunkSize = fc.ChunkSize
	}
	if !cfg.flagGiven("max-chunks") && fc.MaxChunks > 0 {
		cfg.maxChunks = fc.MaxChunks
	}
	if !cfg.flagGiven("category") && len(fc.Categories) > 0 {
		cfg.categories = fc.Categories
	}
}

func (cfg *serveConfig) flagGiven(name string) bool {
	if cfg.fs == nil {
		return false
	}
	f, ok := cfg.fs.GetFlag(name)
	return ok && f.IsSet()
}
