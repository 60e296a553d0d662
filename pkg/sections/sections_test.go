package sections_test

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/alitavanaali/MusiComb/pkg/sections"
)

func TestDefault(t *testing.T) {
	p := sections.Default()
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	want := map[string]sections.Capacity{
		sections.Intro:  {Min: 4, Max: 5},
		sections.Verse:  {Min: 5, Max: 6},
		sections.Chorus: {Min: 6, Max: 8},
		sections.Ending: {Min: 1, Max: 3},
	}
	for name, c := range want {
		w, ok := p.Window(name)
		if !ok {
			t.Fatalf("window %s missing", name)
		}
		if w.Capacity != c {
			t.Errorf("%s capacity = %+v, want %+v", name, w.Capacity, c)
		}
	}
}

func TestDemand(t *testing.T) {
	p := sections.Default()
	tests := []struct {
		window, role string
		want         int
	}{
		{sections.Intro, "main_melody", 3},
		{sections.Chorus, "main_melody", 2},
		{sections.Ending, "sub_melody", 1},
		{sections.Verse, "sub_melody", 2},
		{sections.Verse, "bass", 1},
		{sections.Chorus, "drum", 1},
		{sections.Chorus, "theremin", sections.DefaultDemand},
		{"bridge", "pad", sections.DefaultDemand},
	}
	for _, tt := range tests {
		if got := p.Demand(tt.window, tt.role); got != tt.want {
			t.Errorf("Demand(%s, %s) = %d, want %d", tt.window, tt.role, got, tt.want)
		}
	}
}

func TestBounds(t *testing.T) {
	got := sections.Default().Bounds(100000)
	want := []sections.Bound{
		{Name: sections.Intro, Start: 0, End: 10000},
		{Name: sections.Verse, Start: 10000, End: 40000},
		{Name: sections.Chorus, Start: 40000, End: 80000},
		{Name: sections.Ending, Start: 80000, End: 100000},
	}
	if !slices.Equal(got, want) {
		t.Fatalf("Bounds = %v, want %v", got, want)
	}
}

func TestMembership(t *testing.T) {
	p := sections.Default()
	tests := []struct {
		position int64
		want     []string
	}{
		{0, []string{sections.Intro, sections.Ending}},
		{5000, []string{sections.Intro, sections.Ending}},
		{10000, []string{sections.Ending}},
		{20000, []string{sections.Verse, sections.Ending}},
		{40000, []string{sections.Ending}},
		{50000, []string{sections.Chorus}},
		{80000, []string{sections.Ending}},
		{95000, []string{sections.Ending}},
		{150000, []string{sections.Ending}},
	}
	for _, tt := range tests {
		if got := p.Membership(tt.position, 100000); !slices.Equal(got, tt.want) {
			t.Errorf("Membership(%d) = %v, want %v", tt.position, got, tt.want)
		}
	}
}

func TestParse(t *testing.T) {
	data := []byte(`
default_demand: 2
windows:
  - name: intro
    start: 0
    end: 0.25
    capacity: {min: 1, max: 2}
    demands: {pad: 1}
  - name: verse
    start: 0.25
    end: 0.5
    capacity: {min: 2, max: 4}
  - name: chorus
    start: 0.5
    end: 0.75
    capacity: {min: 3, max: 6}
  - name: ending
    start: 0.75
    end: 1
    capacity: {min: 0, max: 1}
`)
	p, err := sections.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := p.Demand(sections.Intro, "pad"); got != 1 {
		t.Fatalf("Demand(intro, pad) = %d, want 1", got)
	}
	if got := p.Demand(sections.Verse, "pad"); got != 2 {
		t.Fatalf("Demand(verse, pad) = %d, want 2", got)
	}
	w, _ := p.Window(sections.Chorus)
	if w.Capacity.Max != 6 {
		t.Fatalf("chorus max = %d, want 6", w.Capacity.Max)
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"syntax", "windows: [\n"},
		{"too few", "windows:\n  - {name: intro, start: 0, end: 1, capacity: {min: 1, max: 1}}\n"},
		{"wrong order", `windows:
  - {name: verse, start: 0, end: 0.1, capacity: {min: 1, max: 1}}
  - {name: intro, start: 0.1, end: 0.4, capacity: {min: 1, max: 1}}
  - {name: chorus, start: 0.4, end: 0.8, capacity: {min: 1, max: 1}}
  - {name: ending, start: 0.8, end: 1, capacity: {min: 1, max: 1}}
`},
		{"min above max", `windows:
  - {name: intro, start: 0, end: 0.1, capacity: {min: 3, max: 1}}
  - {name: verse, start: 0.1, end: 0.4, capacity: {min: 1, max: 1}}
  - {name: chorus, start: 0.4, end: 0.8, capacity: {min: 1, max: 1}}
  - {name: ending, start: 0.8, end: 1, capacity: {min: 1, max: 1}}
`},
		{"overlapping bounds", `windows:
  - {name: intro, start: 0, end: 0.5, capacity: {min: 1, max: 1}}
  - {name: verse, start: 0.1, end: 0.4, capacity: {min: 1, max: 1}}
  - {name: chorus, start: 0.4, end: 0.8, capacity: {min: 1, max: 1}}
  - {name: ending, start: 0.8, end: 1, capacity: {min: 1, max: 1}}
`},
		{"negative demand", `windows:
  - {name: intro, start: 0, end: 0.1, capacity: {min: 1, max: 1}, demands: {pad: -1}}
  - {name: verse, start: 0.1, end: 0.4, capacity: {min: 1, max: 1}}
  - {name: chorus, start: 0.4, end: 0.8, capacity: {min: 1, max: 1}}
  - {name: ending, start: 0.8, end: 1, capacity: {min: 1, max: 1}}
`},
		{"past the end", `windows:
  - {name: intro, start: 0, end: 0.1, capacity: {min: 1, max: 1}}
  - {name: verse, start: 0.1, end: 0.4, capacity: {min: 1, max: 1}}
  - {name: chorus, start: 0.4, end: 0.8, capacity: {min: 1, max: 1}}
  - {name: ending, start: 0.8, end: 1.5, capacity: {min: 1, max: 1}}
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sections.Parse([]byte(tt.data))
			if !errors.Is(err, sections.ErrInvalidProfile) {
				t.Fatalf("expected ErrInvalidProfile, got %v", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	if _, err := sections.Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}

	path := filepath.Join(dir, "profile.yaml")
	data := `windows:
  - {name: intro, start: 0, end: 0.1, capacity: {min: 4, max: 5}}
  - {name: verse, start: 0.1, end: 0.4, capacity: {min: 5, max: 6}}
  - {name: chorus, start: 0.4, end: 0.8, capacity: {min: 6, max: 8}}
  - {name: ending, start: 0.8, end: 1, capacity: {min: 1, max: 3}}
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := sections.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := p.Demand(sections.Intro, "riff"); got != sections.DefaultDemand {
		t.Fatalf("Demand without table = %d, want %d", got, sections.DefaultDemand)
	}
}
