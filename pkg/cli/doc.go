// Package cli holds the command-line plumbing of musicomb.
//
// This package includes:
//   - Configuration contexts (storage backend, run index, solver settings)
//   - Arrangement request files (YAML/JSON)
//   - Output formatting (YAML, JSON) and print helpers
//   - The arrangement report rendered with lipgloss
//
// Configuration is stored in ~/.musicomb/config.yaml and supports several
// contexts, similar to kubectl.
//
//	cfg, err := cli.LoadConfig("")
//	ctx, err := cfg.ResolveContext(name)
//	store, err := ctx.OpenStore()
package cli
