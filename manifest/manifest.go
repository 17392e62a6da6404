// Package manifest handles owl.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the name of the manifest file.
const FileName = "owl.toml"

// DefaultCachePath is where the image cache lives, relative to the project.
const DefaultCachePath = ".owl/cache.db"

// Manifest represents an owl.toml project configuration.
type Manifest struct {
	Project Project     `toml:"project"`
	GC      GCConfig    `toml:"gc"`
	Eval    EvalConfig  `toml:"eval"`
	Log     LogConfig   `toml:"log"`
	Cache   CacheConfig `toml:"cache"`

	// Dir is the directory containing the owl.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name  string `toml:"name"`
	Entry string `toml:"entry"`
}

// GCConfig configures the collector.
type GCConfig struct {
	// HeapLimit caps the bytes the core may hold; 0 means unbounded.
	HeapLimit int `toml:"heap-limit"`
	// Collect runs a collection after each evaluation.
	Collect bool `toml:"collect"`
}

// EvalConfig configures the evaluator.
type EvalConfig struct {
	Trace        bool `toml:"trace"`
	DumpBytecode bool `toml:"dump-bytecode"`
}

// LogConfig configures logging.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// CacheConfig configures the compiled image cache.
type CacheConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Default returns the configuration used when no owl.toml is found.
func Default(dir string) *Manifest {
	m := &Manifest{Dir: dir}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Cache.Path == "" {
		m.Cache.Path = DefaultCachePath
	}
}

// Parse decodes manifest text. dir is recorded as the project directory.
func Parse(data []byte, dir string) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %s", undecoded[0])
	}
	if m.GC.HeapLimit < 0 {
		return nil, fmt.Errorf("gc.heap-limit must not be negative, got %d", m.GC.HeapLimit)
	}
	m.Dir = dir
	m.applyDefaults()
	return &m, nil
}

// Load parses an owl.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m, err := Parse(data, abs)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return m, nil
}

// FindAndLoad walks up from startDir to find an owl.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// EntryPath returns the absolute path of the entry script, or "" if none is
// configured.
func (m *Manifest) EntryPath() string {
	if m.Project.Entry == "" {
		return ""
	}
	return m.resolve(m.Project.Entry)
}

// CachePath returns the absolute path of the image cache database.
func (m *Manifest) CachePath() string {
	return m.resolve(m.Cache.Path)
}

// LogPath returns the log file path, or nil to log to stderr.
func (m *Manifest) LogPath() *string {
	if m.Log.File == "" {
		return nil
	}
	p := m.resolve(m.Log.File)
	return &p
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
