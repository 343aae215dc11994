package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// fileConfig is the serve subcommand's optional config file. Flags given
// explicitly on the command line win over file values.
type fileConfig struct {
	TraceFile  string   `toml:"trace_file" yaml:"trace_file"`
	Encoding   string   `toml:"encoding" yaml:"encoding"`
	Compress   bool     `toml:"compress" yaml:"compress"`
	ChunkSize  int      `toml:"chunk_size" yaml:"chunk_size"`
	MaxChunks  int      `toml:"max_chunks" yaml:"max_chunks"`
	Categories []string `toml:"categories" yaml:"categories"`
}

func loadFileConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if err := toml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("config %s: unsupported extension %q", path, ext)
	}

	return &fc, nil
}
