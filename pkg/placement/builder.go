package placement

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/alitavanaali/MusiComb/pkg/sched"
	"github.com/alitavanaali/MusiComb/pkg/sections"
	"github.com/alitavanaali/MusiComb/pkg/timeline"
)

// DefaultPercussionBias is the probability that a percussion repeat is
// forced present.
const DefaultPercussionBias = 0.8

// Builder builds scheduling models. A Builder is used for one build at a
// time.
type Builder struct {
	Params Params

	// Profile defaults to sections.Default().
	Profile *sections.Profile

	// Rand draws the percussion bias. If nil, a time-seeded source is used.
	Rand *rand.Rand

	// PercussionBias is the probability of forcing a percussion repeat
	// present. Zero means DefaultPercussionBias; negative disables forcing.
	PercussionBias float64

	// Logger is optional. If nil, uses slog.Default().
	Logger *slog.Logger
}

// Slot is one candidate repeat of one fragment.
type Slot struct {
	// ID is "<role>_<fragment>_<repeat>", e.g. "pad_0_3".
	ID string `json:"id"`

	// Family is "<role>_<fragment>"; slots of a family merge into one track.
	Family string `json:"family"`

	Role     string `json:"role"`
	Fragment int    `json:"fragment"`
	Repeat   int    `json:"repeat"`

	// Interval indexes Plan.Model.Intervals.
	Interval int `json:"interval"`

	// Start is the bar-aligned start, Duration the fragment length.
	Start    int64 `json:"start_ms"`
	Duration int64 `json:"duration_ms"`

	// Position is the theoretical position used for window billing.
	Position int64 `json:"position_ms"`

	Windows []string `json:"windows"`
	Forced  bool     `json:"forced"`
}

// Plan is a built model together with the slots it was built from.
type Plan struct {
	Model *sched.Model
	Slots []Slot

	// Families lists family names in build order.
	Families []string

	// Windows names each cumulative of Model in order.
	Windows []string

	Params  Params
	Profile *sections.Profile
	BarMs   int64
}

// Family returns the slots of family in repeat order.
func (p *Plan) Family(name string) []Slot {
	var out []Slot
	for _, s := range p.Slots {
		if s.Family == name {
			out = append(out, s)
		}
	}
	return out
}

// Build creates one slot per fragment repeat. Roles are visited in name
// order and fragments in list order, so a seeded Rand gives the same plan.
func (b *Builder) Build(roles map[string][]*timeline.Fragment) (*Plan, error) {
	if err := b.Params.Validate(); err != nil {
		return nil, err
	}
	profile := b.Profile
	if profile == nil {
		profile = sections.Default()
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rng := b.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	bias := b.PercussionBias
	if bias == 0 {
		bias = DefaultPercussionBias
	}

	plan := &Plan{
		Model:   sched.NewModel(),
		Params:  b.Params,
		Profile: profile,
		BarMs:   b.Params.BarDuration(),
	}
	length := b.Params.LengthMs
	type billing struct {
		intervals []int
		demands   []int64
	}
	bills := make(map[string]*billing, len(profile.Windows))
	for _, w := range profile.Windows {
		bills[w.Name] = &billing{}
	}

	names := make([]string, 0, len(roles))
	for role := range roles {
		names = append(names, role)
	}
	slices.Sort(names)

	for _, role := range names {
		percussion := role == timeline.RolePercussion
		for k, frag := range roles[role] {
			family := fmt.Sprintf("%s_%d", role, k)
			duration := frag.Duration()
			if duration <= 0 {
				logger.Warn("placement: skipping empty fragment", "family", family, "name", frag.Name)
				continue
			}
			plan.Families = append(plan.Families, family)

			repeats := max(1, length/duration)
			for i := range repeats {
				start := plan.BarMs * i
				id := fmt.Sprintf("%s_%d", family, i)
				iv := plan.Model.NewOptionalInterval(id, start, start+duration, duration, start, start+duration)
				slot := Slot{
					ID:       id,
					Family:   family,
					Role:     role,
					Fragment: k,
					Repeat:   int(i),
					Interval: iv,
					Start:    start,
					Duration: duration,
					Position: duration * i,
					Windows:  profile.Membership(duration*i, length),
				}
				for _, w := range slot.Windows {
					bills[w].intervals = append(bills[w].intervals, iv)
					bills[w].demands = append(bills[w].demands, int64(profile.Demand(w, role)))
				}
				if percussion && bias > 0 && rng.Float64() < bias {
					slot.Forced = true
					plan.Model.SetPresence(iv, sched.Forced)
				}
				plan.Slots = append(plan.Slots, slot)
			}
		}
	}

	for _, w := range profile.Windows {
		bill := bills[w.Name]
		plan.Model.AddCumulative(w.Name, bill.intervals, bill.demands, int64(w.Capacity.Min), int64(w.Capacity.Max))
		plan.Windows = append(plan.Windows, w.Name)
	}
	logger.Debug("placement: model built",
		"slots", len(plan.Slots),
		"families", len(plan.Families),
		"bar_ms", plan.BarMs,
		"length_ms", length)
	return plan, nil
}

// Pressure summarizes what one window is asked to hold.
type Pressure struct {
	Window      string `json:"window"`
	Slots       int    `json:"slots"`
	Forced      int    `json:"forced"`
	ForcedPeak  int64  `json:"forced_peak"`
	CapacityMin int64  `json:"capacity_min"`
	CapacityMax int64  `json:"capacity_max"`
}

// Pressure reports, per window, the slots billed to it and the highest
// demand the forced slots alone place on it at any instant.
func (p *Plan) Pressure() []Pressure {
	out := make([]Pressure, len(p.Model.Cumulatives))
	for c, cu := range p.Model.Cumulatives {
		pr := Pressure{
			Window:      cu.Name,
			Slots:       len(cu.Intervals),
			CapacityMin: cu.CapacityMin,
			CapacityMax: cu.CapacityMax,
		}
		type forcedSpan struct{ start, end, demand int64 }
		var spans []forcedSpan
		for k, i := range cu.Intervals {
			iv := p.Model.Intervals[i]
			if iv.Presence != sched.Forced {
				continue
			}
			pr.Forced++
			spans = append(spans, forcedSpan{iv.StartMin, iv.StartMin + iv.Duration, cu.Demands[k]})
		}
		for _, at := range spans {
			var sum int64
			for _, sp := range spans {
				if sp.start <= at.start && at.start < sp.end {
					sum += sp.demand
				}
			}
			pr.ForcedPeak = max(pr.ForcedPeak, sum)
		}
		out[c] = pr
	}
	return out
}
