package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/alitavanaali/MusiComb/pkg/kv"
	"github.com/alitavanaali/MusiComb/pkg/storage"
)

// Storage backends.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// IndexMemory keeps the run index in memory for the life of the process.
const IndexMemory = "memory"

// Config is the musicomb configuration file.
type Config struct {
	// CurrentContext names the context used when none is given.
	CurrentContext string `yaml:"current_context,omitempty"`

	Contexts map[string]*Context `yaml:"contexts,omitempty"`

	path string
}

// Context is one named set of settings.
type Context struct {
	Name string `yaml:"name"`

	Storage StorageConfig `yaml:"storage"`

	// Index is the badger directory of the run index, or IndexMemory.
	// Empty means ~/.musicomb/index.
	Index string `yaml:"index,omitempty"`

	// SolverTimeout is the search budget in seconds. Zero uses the solver
	// default.
	SolverTimeout int `yaml:"solver_timeout,omitempty"`

	// PercussionBias overrides the probability of forcing a drum repeat.
	PercussionBias float64 `yaml:"percussion_bias,omitempty"`

	// Profile and Programs are optional YAML files replacing the built-in
	// section profile and instrument program map.
	Profile  string `yaml:"profile,omitempty"`
	Programs string `yaml:"programs,omitempty"`
}

// StorageConfig selects where arrangements are written.
type StorageConfig struct {
	// Backend is BackendLocal (default) or BackendS3.
	Backend string `yaml:"backend,omitempty"`

	// Dir is the local output directory. Empty means ~/.musicomb/output.
	Dir string `yaml:"dir,omitempty"`

	Bucket string `yaml:"bucket,omitempty"`
	Prefix string `yaml:"prefix,omitempty"`

	S3 storage.S3Config `yaml:"s3,omitempty"`
}

// LoadConfig reads the configuration at path, or ~/.musicomb/config.yaml
// when path is empty. A missing file gives an empty configuration that is
// created on the first Save.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		paths, err := NewPaths()
		if err != nil {
			return nil, fmt.Errorf("cli: home directory: %w", err)
		}
		path = paths.ConfigFile()
	}
	cfg := &Config{Contexts: make(map[string]*Context), path: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cli: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cli: parse config %s: %w", path, err)
	}
	if cfg.Contexts == nil {
		cfg.Contexts = make(map[string]*Context)
	}
	for name, ctx := range cfg.Contexts {
		if ctx == nil {
			return nil, fmt.Errorf("cli: context %q is empty", name)
		}
		ctx.Name = name
	}
	cfg.path = path
	return cfg, nil
}

// Save writes the configuration, creating its directory.
func (c *Config) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("cli: marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("cli: create config directory: %w", err)
	}
	// The file may hold S3 secrets.
	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return fmt.Errorf("cli: write config: %w", err)
	}
	return nil
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// AddContext adds or replaces a context and saves.
func (c *Config) AddContext(name string, ctx *Context) error {
	if err := ctx.Validate(); err != nil {
		return err
	}
	ctx.Name = name
	c.Contexts[name] = ctx
	return c.Save()
}

// DeleteContext removes a context and saves.
func (c *Config) DeleteContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("cli: context %q not found", name)
	}
	delete(c.Contexts, name)
	if c.CurrentContext == name {
		c.CurrentContext = ""
	}
	return c.Save()
}

// UseContext makes name the current context and saves.
func (c *Config) UseContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("cli: context %q not found", name)
	}
	c.CurrentContext = name
	return c.Save()
}

// GetContext returns the named context.
func (c *Config) GetContext(name string) (*Context, error) {
	ctx, ok := c.Contexts[name]
	if !ok {
		return nil, fmt.Errorf("cli: context %q not found", name)
	}
	return ctx, nil
}

// ResolveContext returns the named context, the current context when name
// is empty, or a default local context when no context is configured.
func (c *Config) ResolveContext(name string) (*Context, error) {
	if name != "" {
		return c.GetContext(name)
	}
	if c.CurrentContext != "" {
		return c.GetContext(c.CurrentContext)
	}
	return &Context{Name: "default"}, nil
}

// ListContexts returns the context names in order.
func (c *Config) ListContexts() []string {
	names := make([]string, 0, len(c.Contexts))
	for name := range c.Contexts {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Validate checks the storage settings.
func (ctx *Context) Validate() error {
	switch ctx.Storage.Backend {
	case "", BackendLocal:
	case BackendS3:
		if ctx.Storage.Bucket == "" {
			return fmt.Errorf("cli: s3 storage needs a bucket")
		}
	default:
		return fmt.Errorf("cli: unknown storage backend %q", ctx.Storage.Backend)
	}
	if ctx.SolverTimeout < 0 {
		return fmt.Errorf("cli: negative solver timeout %d", ctx.SolverTimeout)
	}
	if ctx.PercussionBias > 1 {
		return fmt.Errorf("cli: percussion bias %g above 1", ctx.PercussionBias)
	}
	return nil
}

// OpenStore returns the FileStore the context writes to.
func (ctx *Context) OpenStore() (storage.FileStore, error) {
	if err := ctx.Validate(); err != nil {
		return nil, err
	}
	if ctx.Storage.Backend == BackendS3 {
		client := storage.NewS3Client(ctx.Storage.S3)
		return storage.NewS3(client, ctx.Storage.Bucket, strings.Trim(ctx.Storage.Prefix, "/")), nil
	}
	dir := ctx.Storage.Dir
	if dir == "" {
		paths, err := NewPaths()
		if err != nil {
			return nil, err
		}
		dir = paths.OutputDir()
	}
	return storage.NewLocal(dir)
}

// OpenIndex opens the kv store of the run index. The caller closes it.
func (ctx *Context) OpenIndex(logger *slog.Logger) (kv.Store, error) {
	if ctx.Index == IndexMemory {
		return kv.NewMemory(), nil
	}
	dir := ctx.Index
	if dir == "" {
		paths, err := NewPaths()
		if err != nil {
			return nil, err
		}
		dir = paths.IndexDir()
	}
	return kv.OpenBadger(kv.BadgerOptions{Dir: dir, Logger: logger})
}

// Timeout returns the solver budget, zero for the solver default.
func (ctx *Context) Timeout() time.Duration {
	return time.Duration(ctx.SolverTimeout) * time.Second
}

// MaskSecret masks a credential for display.
func MaskSecret(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}
