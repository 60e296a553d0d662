package timeline

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

//go:embed programs.yaml
var defaultProgramsYAML []byte

// ErrUnknownInstrument is returned when an instrument has no program entry.
var ErrUnknownInstrument = errors.New("timeline: unknown instrument")

// Programs maps dataset instrument names to General MIDI program numbers.
type Programs map[string]uint8

// DefaultPrograms returns the built-in instrument table.
func DefaultPrograms() Programs {
	p, err := ParsePrograms(defaultProgramsYAML)
	if err != nil {
		panic(fmt.Sprintf("timeline: embedded programs.yaml: %v", err))
	}
	return p
}

// LoadPrograms reads an instrument table from a YAML file.
func LoadPrograms(path string) (Programs, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("timeline: read programs: %w", err)
	}
	return ParsePrograms(data)
}

// ParsePrograms decodes a YAML mapping of instrument name to program number.
func ParsePrograms(data []byte) (Programs, error) {
	var raw map[string]int
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("timeline: parse programs: %w", err)
	}
	p := make(Programs, len(raw))
	for name, prog := range raw {
		if prog < 0 || prog > 127 {
			return nil, fmt.Errorf("timeline: program %d for %q out of range 0-127", prog, name)
		}
		p[normalizeInstrument(name)] = uint8(prog)
	}
	return p, nil
}

// Program returns the program for instrument. Sampled names carry variant
// suffixes after a dash ("string_ensemble-2"); only the base name is used.
func (p Programs) Program(instrument string) (uint8, error) {
	prog, ok := p[normalizeInstrument(instrument)]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownInstrument, instrument)
	}
	return prog, nil
}

func normalizeInstrument(name string) string {
	name, _, _ = strings.Cut(name, "-")
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.ReplaceAll(name, " ", "_")
}
