package arrange

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"

	"github.com/alitavanaali/MusiComb/pkg/placement"
	"github.com/alitavanaali/MusiComb/pkg/sched"
	"github.com/alitavanaali/MusiComb/pkg/storage"
	"github.com/alitavanaali/MusiComb/pkg/timeline"
)

// Output file names inside a run directory.
const (
	TuneFile     = "tune.mid"
	UnmergedFile = "tune_notmerged_sounds.mid"
)

// Materializer turns a schedule into the output files of a run. Each call
// assigns output channels afresh: melodic families with a present repeat
// take consecutive channels in plan order, skipping the percussion channel.
type Materializer struct {
	Store storage.FileStore

	// Logger is optional. If nil, uses slog.Default().
	Logger *slog.Logger
}

// Track describes one merged family track.
type Track struct {
	Family  string              `json:"family"`
	Role    string              `json:"role"`
	Channel uint8               `json:"channel"`
	Repeats int                 `json:"repeats"`
	Starts  []int64             `json:"starts_ms"`
	Stats   timeline.MergeStats `json:"stats"`
}

// Output lists what Materialize wrote.
type Output struct {
	// Tune and Unmerged are store paths; the URIs name them for humans.
	Tune        string  `json:"tune"`
	Unmerged    string  `json:"unmerged"`
	TuneURI     string  `json:"tune_uri"`
	UnmergedURI string  `json:"unmerged_uri"`
	Tracks      []Track `json:"tracks"`
}

// Materialize shifts every present slot to its solved start, merges the
// repeats of each family into one track and writes two files under runID:
// the family tracks side by side, and every shifted repeat side by side for
// comparison. Families without a present slot get no track.
func (m *Materializer) Materialize(ctx context.Context, runID string, plan *placement.Plan, sol *sched.Solution, roles map[string][]*timeline.Fragment) (*Output, error) {
	if !sol.Status.HasSchedule() {
		return nil, fmt.Errorf("arrange: materialize: solution is %s", sol.Status)
	}
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}

	out := &Output{
		Tune:     path.Join(runID, TuneFile),
		Unmerged: path.Join(runID, UnmergedFile),
	}
	channels := timeline.NewChannelAllocator()
	var merged, shifted []*timeline.Fragment
	for _, family := range plan.Families {
		var present []placement.Slot
		for _, slot := range plan.Family(family) {
			if sol.Present[slot.Interval] {
				present = append(present, slot)
			}
		}
		if len(present) == 0 {
			logger.Debug("arrange: family has no present repeat", "family", family)
			continue
		}
		src := roles[present[0].Role][present[0].Fragment]
		if !src.IsPercussion() {
			src = src.WithChannel(channels.Next())
		}

		track := Track{Family: family, Role: present[0].Role, Channel: src.Channel}
		var repeats []*timeline.Fragment
		for _, slot := range present {
			start := sol.Start[slot.Interval]
			repeats = append(repeats, src.Shift(start))
			track.Starts = append(track.Starts, start)
		}

		frag, stats, err := timeline.InnerMerge(repeats, plan.Params.LengthMs)
		if err != nil {
			return nil, fmt.Errorf("arrange: merge %s: %w", family, err)
		}
		if stats.Clamped > 0 {
			logger.Warn("arrange: percussion repeat overran its bar, clamped to zero",
				"family", family, "clamped", stats.Clamped, "popped", stats.Popped)
		}
		if stats.Dropped > 0 {
			logger.Debug("arrange: events dropped at song end", "family", family, "dropped", stats.Dropped)
		}
		track.Repeats = len(repeats)
		track.Stats = stats
		out.Tracks = append(out.Tracks, track)
		merged = append(merged, frag)
		shifted = append(shifted, repeats...)
	}
	if len(merged) == 0 {
		return nil, fmt.Errorf("arrange: materialize: %w", timeline.ErrEmptyMerge)
	}

	write := func(frags []*timeline.Fragment) func(io.Writer) error {
		return func(w io.Writer) error { return timeline.Write(w, frags) }
	}
	if err := storage.Save(ctx, m.Store, out.Tune, write(merged)); err != nil {
		return nil, fmt.Errorf("arrange: %w", err)
	}
	if err := storage.Save(ctx, m.Store, out.Unmerged, write(shifted)); err != nil {
		if derr := m.Store.Delete(ctx, out.Tune); derr != nil {
			logger.Warn("arrange: remove partial run", "path", out.Tune, "err", derr)
		}
		return nil, fmt.Errorf("arrange: %w", err)
	}
	out.TuneURI = storage.URI(m.Store, out.Tune)
	out.UnmergedURI = storage.URI(m.Store, out.Unmerged)
	logger.Info("arrange: wrote arrangement",
		"run", runID,
		"tracks", len(out.Tracks),
		"repeats", len(shifted),
		"tune", out.TuneURI)
	return out, nil
}
