// Package sections holds the section profile of an arrangement: the song
// windows (intro, verse, chorus, ending) as fractions of the song length,
// the capacity range the scheduler may choose per window, and the demand each
// role places on a window while it sounds.
//
// Profiles are static configuration. [Default] returns the built-in tuning;
// [Load] and [Parse] read an override from YAML:
//
//	default_demand: 1
//	windows:
//	  - name: intro
//	    start: 0
//	    end: 0.1
//	    capacity: {min: 4, max: 5}
//	    demands: {main_melody: 3, bass: 1, drum: 1}
//	  ...
package sections

import (
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Window names in song order.
const (
	Intro  = "intro"
	Verse  = "verse"
	Chorus = "chorus"
	Ending = "ending"
)

// Names lists the windows every profile must declare, in order.
var Names = []string{Intro, Verse, Chorus, Ending}

// DefaultDemand is the demand of a role missing from a window's table.
const DefaultDemand = 1

// ErrInvalidProfile is returned by Validate and the loaders.
var ErrInvalidProfile = errors.New("sections: invalid profile")

// Capacity is an inclusive integer range.
type Capacity struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

// Window is one structural region of the song.
type Window struct {
	Name string `yaml:"name" json:"name"`

	// Start and End are fractions of the song length.
	Start float64 `yaml:"start" json:"start"`
	End   float64 `yaml:"end" json:"end"`

	Capacity Capacity `yaml:"capacity" json:"capacity"`

	// Demands maps role to the capacity one sounding repeat consumes.
	Demands map[string]int `yaml:"demands,omitempty" json:"demands,omitempty"`
}

// Profile is the ordered set of windows.
type Profile struct {
	// DefaultDemand applies to roles absent from a window's Demands. Zero
	// means DefaultDemand.
	DefaultDemand int `yaml:"default_demand,omitempty" json:"default_demand,omitempty"`

	Windows []Window `yaml:"windows" json:"windows"`
}

// Bound is a window resolved against a song length.
type Bound struct {
	Name  string `json:"name"`
	Start int64  `json:"start_ms"`
	End   int64  `json:"end_ms"`
}

// Default returns the built-in profile.
func Default() *Profile {
	lead := func(a, b, c, d int) map[string]int {
		return map[string]int{"main_melody": a, "riff": b, "accompaniment": c, "sub_melody": d, "pad": 2, "bass": 1, "drum": 1}
	}
	return &Profile{
		DefaultDemand: DefaultDemand,
		Windows: []Window{
			{Name: Intro, Start: 0, End: 0.1, Capacity: Capacity{4, 5}, Demands: lead(3, 3, 2, 2)},
			{Name: Verse, Start: 0.1, End: 0.4, Capacity: Capacity{5, 6}, Demands: lead(3, 3, 2, 2)},
			{Name: Chorus, Start: 0.4, End: 0.8, Capacity: Capacity{6, 8}, Demands: lead(2, 2, 2, 2)},
			{Name: Ending, Start: 0.8, End: 1, Capacity: Capacity{1, 3}, Demands: lead(2, 2, 2, 1)},
		},
	}
}

// Load reads and validates a profile from a YAML file.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sections: read profile: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML profile.
func Parse(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks that the profile declares exactly the four windows in
// order, with increasing boundaries inside [0, 1] and sane ranges.
func (p *Profile) Validate() error {
	if len(p.Windows) != len(Names) {
		return fmt.Errorf("%w: want %d windows, got %d", ErrInvalidProfile, len(Names), len(p.Windows))
	}
	if p.DefaultDemand < 0 {
		return fmt.Errorf("%w: negative default demand", ErrInvalidProfile)
	}
	prev := 0.0
	for i, w := range p.Windows {
		if w.Name != Names[i] {
			return fmt.Errorf("%w: window %d is %q, want %q", ErrInvalidProfile, i, w.Name, Names[i])
		}
		if w.Start < prev || w.End <= w.Start || w.End > 1 {
			return fmt.Errorf("%w: %s bounds [%g, %g] out of order", ErrInvalidProfile, w.Name, w.Start, w.End)
		}
		prev = w.End
		if w.Capacity.Min < 0 || w.Capacity.Min > w.Capacity.Max {
			return fmt.Errorf("%w: %s capacity [%d, %d]", ErrInvalidProfile, w.Name, w.Capacity.Min, w.Capacity.Max)
		}
		for role, d := range w.Demands {
			if d < 0 {
				return fmt.Errorf("%w: %s demand of %s is %d", ErrInvalidProfile, w.Name, role, d)
			}
		}
	}
	return nil
}

// Window returns the window called name.
func (p *Profile) Window(name string) (*Window, bool) {
	for i := range p.Windows {
		if p.Windows[i].Name == name {
			return &p.Windows[i], true
		}
	}
	return nil, false
}

// Demand returns the demand role places on window.
func (p *Profile) Demand(window, role string) int {
	if w, ok := p.Window(window); ok {
		if d, ok := w.Demands[role]; ok {
			return d
		}
	}
	if p.DefaultDemand > 0 {
		return p.DefaultDemand
	}
	return DefaultDemand
}

// Bounds resolves every window against a song of lengthMs milliseconds.
// Boundaries are truncated to whole milliseconds.
func (p *Profile) Bounds(lengthMs int64) []Bound {
	out := make([]Bound, len(p.Windows))
	for i, w := range p.Windows {
		out[i] = Bound{
			Name:  w.Name,
			Start: int64(float64(lengthMs) * w.Start),
			End:   int64(float64(lengthMs) * w.End),
		}
	}
	return out
}

// Membership returns the windows a repeat is billed against, given its
// theoretical position (fragment duration times repeat index).
//
// The first window takes positions before its end. Middle windows take
// positions strictly between their bounds, so a position landing exactly on
// a boundary skips both neighbours. The last window takes every position the
// window before it rejects, including those already billed to earlier
// windows.
func (p *Profile) Membership(position, lengthMs int64) []string {
	bounds := p.Bounds(lengthMs)
	n := len(bounds)
	if n == 0 {
		return nil
	}
	var out []string
	if position < bounds[0].End {
		out = append(out, bounds[0].Name)
	}
	penultimate := false
	for i := 1; i < n-1; i++ {
		in := bounds[i-1].End < position && position < bounds[i].End
		if in {
			out = append(out, bounds[i].Name)
		}
		penultimate = in
	}
	if n > 1 && !penultimate {
		out = append(out, bounds[n-1].Name)
	}
	return out
}
