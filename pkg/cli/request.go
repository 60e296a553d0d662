package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/alitavanaali/MusiComb/pkg/arrange"
	"github.com/alitavanaali/MusiComb/pkg/placement"
	"github.com/alitavanaali/MusiComb/pkg/timeline"
)

// ErrInvalidRequest is returned for request files that cannot become an
// arrangement.
var ErrInvalidRequest = errors.New("cli: invalid request")

// LoadRequest reads a YAML or JSON file into v.
func LoadRequest(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cli: read request: %w", err)
	}
	return ParseRequest(data, path, v)
}

// ParseRequest decodes data by the extension of filename. Unknown
// extensions try YAML, then JSON.
func ParseRequest(data []byte, filename string, v any) error {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("cli: parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("cli: parse JSON: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, v); err != nil {
			if err2 := json.Unmarshal(data, v); err2 != nil {
				return fmt.Errorf("cli: parse request (tried YAML and JSON): %w", err)
			}
		}
	}
	return nil
}

// ArrangeRequest is the request file of "musicomb arrange".
type ArrangeRequest struct {
	RunID string `yaml:"run_id,omitempty" json:"run_id,omitempty" jsonschema:"output directory name; generated when empty"`

	BPM           int    `yaml:"bpm" json:"bpm" jsonschema:"song tempo in beats per minute"`
	TimeSignature string `yaml:"time_signature" json:"time_signature" jsonschema:"meter as N/M, only N affects timing"`
	Measures      int    `yaml:"num_measures" json:"num_measures" jsonschema:"measures per repeat region"`

	// LengthMinutes is used when LengthMs is zero.
	LengthMinutes float64 `yaml:"music_length_minutes,omitempty" json:"music_length_minutes,omitempty" jsonschema:"song length in minutes"`
	LengthMs      int64   `yaml:"length_ms,omitempty" json:"length_ms,omitempty" jsonschema:"song length in milliseconds, overrides music_length_minutes"`

	Genre string `yaml:"genre,omitempty" json:"genre,omitempty"`
	Seed  uint64 `yaml:"seed,omitempty" json:"seed,omitempty" jsonschema:"seed of the percussion bias; random when zero"`

	// Fragments maps each role to its fragment files.
	Fragments map[string][]FragmentSpec `yaml:"fragments" json:"fragments" jsonschema:"fragment files per role"`
}

// FragmentSpec names one fragment file.
type FragmentSpec struct {
	Path string `yaml:"path" json:"path" jsonschema:"MIDI file, relative to the request file"`

	// Name defaults to "<role>_<index>".
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	Instrument string `yaml:"instrument,omitempty" json:"instrument,omitempty" jsonschema:"General MIDI instrument name written to program changes"`
}

// Params returns the song parameters of r.
func (r *ArrangeRequest) Params() (placement.Params, error) {
	sig := placement.Time4_4
	if r.TimeSignature != "" {
		var err error
		if sig, err = placement.ParseTimeSignature(r.TimeSignature); err != nil {
			return placement.Params{}, err
		}
	}
	p := placement.Params{
		BPM:       r.BPM,
		Signature: sig,
		Measures:  r.Measures,
		LengthMs:  r.LengthMs,
	}
	if p.LengthMs == 0 {
		p.LengthMs = placement.LengthFromMinutes(r.LengthMinutes)
	}
	return p, p.Validate()
}

// Build loads the fragment files, resolving relative paths against
// baseDir, and returns the arrangement request. Fragments keep their file
// channels; the run assigns output channels when it materializes.
func (r *ArrangeRequest) Build(baseDir string, programs timeline.Programs) (arrange.Request, error) {
	params, err := r.Params()
	if err != nil {
		return arrange.Request{}, err
	}
	if len(r.Fragments) == 0 {
		return arrange.Request{}, fmt.Errorf("%w: no fragments", ErrInvalidRequest)
	}

	roles := make(map[string][]*timeline.Fragment, len(r.Fragments))
	for _, role := range slices.Sorted(maps.Keys(r.Fragments)) {
		for k, spec := range r.Fragments[role] {
			if spec.Path == "" {
				return arrange.Request{}, fmt.Errorf("%w: %s fragment %d has no path", ErrInvalidRequest, role, k)
			}
			path := spec.Path
			if !filepath.IsAbs(path) {
				path = filepath.Join(baseDir, path)
			}
			name := spec.Name
			if name == "" {
				name = fmt.Sprintf("%s_%d", role, k)
			}
			frag, err := timeline.Load(path, timeline.FragmentOptions{
				Name:       name,
				Role:       role,
				Instrument: spec.Instrument,
				Programs:   programs,
			})
			if err != nil {
				return arrange.Request{}, err
			}
			roles[role] = append(roles[role], frag)
		}
	}
	return arrange.Request{
		RunID:  r.RunID,
		Params: params,
		Genre:  r.Genre,
		Roles:  roles,
		Seed:   r.Seed,
	}, nil
}
