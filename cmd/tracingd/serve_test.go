package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/peterbourgon/ff/v4"
)

func TestApplyFileConfigPrecedence(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tracingd.toml")
	content := `
trace_file = "from-file.json"
encoding = "msgpack"
compress = true
chunk_size = 32
categories = ["node", "fs"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &serveConfig{rootConfig: &rootConfig{}}
	fs := ff.NewFlagSet("serve")
	cfg.register(fs)

	// --encoding was given explicitly, so it must win over the file even
	// though it equals the flag default.
	if err := fs.Parse([]string{"--encoding", "json"}); err != nil {
		t.Fatal(err)
	}

	fc, err := loadFileConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg.applyFileConfig(fc)

	if want, have := "json", cfg.encoding; want != have {
		t.Errorf("encoding: want %q, have %q", want, have)
	}

	// Flags left at their defaults take the file values.
	if want, have := "from-file.json", cfg.tracePath; want != have {
		t.Errorf("trace file: want %q, have %q", want, have)
	}
	if !cfg.compress {
		t.Error("compress: want true from file")
	}
	if want, have := 32, cfg.chunkSize; want != have {
		t.Errorf("chunk size: want %d, have %d", want, have)
	}
	if want, have := 2, len(cfg.categories); want != have {
		t.Errorf("categories: want %d, have %d", want, have)
	}
}

func TestLoadFileConfigYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tracingd.yaml")
	content := `
trace_file: from-yaml.json
encoding: cbor
max_chunks: 16
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	fc, err := loadFileConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if want, have := "from-yaml.json", fc.TraceFile; want != have {
		t.Errorf("trace file: want %q, have %q", want, have)
	}
	if want, have := "cbor", fc.Encoding; want != have {
		t.Errorf("encoding: want %q, have %q", want, have)
	}
	if want, have := 16, fc.MaxChunks; want != have {
		t.Errorf("max chunks: want %d, have %d", want, have)
	}

	if _, err := loadFileConfig(filepath.Join(t.TempDir(), "tracingd.ini")); err == nil {
		t.Fatal("want error for unsupported extension")
	}
}
