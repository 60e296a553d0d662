package cli

import (
	"os"
	"path/filepath"
)

const (
	// DefaultBaseDir is the configuration directory under the home
	// directory.
	DefaultBaseDir = ".musicomb"

	// DefaultConfigFile is the configuration file name.
	DefaultConfigFile = "config.yaml"
)

// Paths locates the musicomb directories.
type Paths struct {
	HomeDir string
}

// NewPaths returns the paths of the current user.
func NewPaths() (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return &Paths{HomeDir: home}, nil
}

// BaseDir returns ~/.musicomb.
func (p *Paths) BaseDir() string {
	return filepath.Join(p.HomeDir, DefaultBaseDir)
}

// ConfigFile returns ~/.musicomb/config.yaml.
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.BaseDir(), DefaultConfigFile)
}

// OutputDir returns ~/.musicomb/output, the default local store.
func (p *Paths) OutputDir() string {
	return filepath.Join(p.BaseDir(), "output")
}

// IndexDir returns ~/.musicomb/index, the default run index.
func (p *Paths) IndexDir() string {
	return filepath.Join(p.BaseDir(), "index")
}

// EnsureBaseDir creates the base directory if needed.
func (p *Paths) EnsureBaseDir() error {
	return os.MkdirAll(p.BaseDir(), 0o755)
}
