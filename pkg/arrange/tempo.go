package arrange

import (
	"maps"
	"slices"

	"github.com/alitavanaali/MusiComb/pkg/timeline"
)

// NormalizeTempo picks the most common fragment tempo and stamps it on
// every percussion fragment, in place. Fragments are counted by role name
// and then list order; a tie goes to the tempo seen first. With no
// fragments the result is timeline.DefaultTempo.
//
// Melodic fragments keep their own tempo events.
func NormalizeTempo(roles map[string][]*timeline.Fragment) uint32 {
	counts := make(map[uint32]int)
	var seen []uint32
	for _, role := range slices.Sorted(maps.Keys(roles)) {
		for _, f := range roles[role] {
			t := f.Tempo()
			if counts[t] == 0 {
				seen = append(seen, t)
			}
			counts[t]++
		}
	}

	tempo, best := timeline.DefaultTempo, 0
	for _, t := range seen {
		if counts[t] > best {
			tempo, best = t, counts[t]
		}
	}

	for _, frags := range roles {
		for _, f := range frags {
			if f.IsPercussion() {
				f.SetTempo(tempo)
			}
		}
	}
	return tempo
}
