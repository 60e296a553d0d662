package arrange_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"testing"
	"time"

	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/alitavanaali/MusiComb/pkg/arrange"
	"github.com/alitavanaali/MusiComb/pkg/kv"
	"github.com/alitavanaali/MusiComb/pkg/placement"
	"github.com/alitavanaali/MusiComb/pkg/runs"
	"github.com/alitavanaali/MusiComb/pkg/sched"
	"github.com/alitavanaali/MusiComb/pkg/sections"
	"github.com/alitavanaali/MusiComb/pkg/storage"
	"github.com/alitavanaali/MusiComb/pkg/timeline"
)

func tempoEvent(us uint32) smf.Event {
	return smf.Event{Message: smf.Message{0xFF, 0x51, 0x03, byte(us >> 16), byte(us >> 8), byte(us)}}
}

// melodic returns a fragment holding one note of the given beats.
func melodic(name string, tempo uint32, beats uint32) *timeline.Fragment {
	track := smf.Track{
		tempoEvent(tempo),
		{Message: smf.Message{0xC0, 88}},
		{Message: smf.Message{0x90, 60, 100}},
		{Delta: 480 * beats, Message: smf.Message{0x80, 60, 0}},
		{Message: smf.Message{0xFF, 0x2F, 0x00}},
	}
	return timeline.New(name, 480, track)
}

// drums returns a percussion fragment of two beats with a hit on each.
func drums(name string, tempo uint32) *timeline.Fragment {
	track := smf.Track{
		tempoEvent(tempo),
		{Message: smf.Message{0x99, 36, 100}},
		{Delta: 240, Message: smf.Message{0x89, 36, 0}},
		{Delta: 240, Message: smf.Message{0x99, 38, 100}},
		{Delta: 240, Message: smf.Message{0x89, 38, 0}},
		{Delta: 240, Message: smf.Message{0xFF, 0x2F, 0x00}},
	}
	return timeline.New(name, 480, track)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type env struct {
	store *storage.Local
	index *runs.Index
	arr   *arrange.Arranger
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	mem := kv.NewMemory()
	t.Cleanup(func() { mem.Close() })
	e := &env{store: store, index: runs.NewIndex(mem)}
	e.arr = &arrange.Arranger{
		Solver:       &sched.Auto{TimeLimit: 10 * time.Second, Logger: quietLogger()},
		Materializer: &arrange.Materializer{Store: store, Logger: quietLogger()},
		Runs:         e.index,
		Logger:       quietLogger(),
	}
	return e
}

func songParams() placement.Params {
	return placement.Params{BPM: 120, Signature: placement.Time4_4, Measures: 1, LengthMs: 8000}
}

func readSMF(t *testing.T, fs storage.FileStore, p string) *smf.SMF {
	t.Helper()
	rc, err := fs.Read(context.Background(), p)
	if err != nil {
		t.Fatalf("Read %s: %v", p, err)
	}
	defer rc.Close()
	s, err := smf.ReadFrom(rc)
	if err != nil {
		t.Fatalf("decode %s: %v", p, err)
	}
	return s
}

func noteOns(track smf.Track) int {
	n := 0
	for _, ev := range track {
		var ch, key, vel uint8
		if ev.Message.GetNoteStart(&ch, &key, &vel) {
			n++
		}
	}
	return n
}

func TestNormalizeTempo(t *testing.T) {
	tests := []struct {
		name      string
		roles     map[string][]*timeline.Fragment
		want      uint32
		wantOther uint32
	}{
		{
			name: "majority",
			roles: map[string][]*timeline.Fragment{
				"bass": {melodic("bass_0", 500000, 4), melodic("bass_1", 500000, 4), melodic("bass_2", 500000, 4)},
				"pad":  {melodic("pad_0", 600000, 4)},
				"drum": {drums("drum_0", 600000)},
			},
			want:      500000,
			wantOther: 600000,
		},
		{
			name: "tie goes to first role in name order",
			roles: map[string][]*timeline.Fragment{
				"pad":  {melodic("pad_0", 500000, 4)},
				"bass": {melodic("bass_0", 600000, 4), melodic("bass_1", 600000, 4)},
				"drum": {drums("drum_0", 500000)},
			},
			want:      600000,
			wantOther: 500000,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := arrange.NormalizeTempo(tt.roles); got != tt.want {
				t.Fatalf("NormalizeTempo = %d, want %d", got, tt.want)
			}
			if got := tt.roles["drum"][0].Tempo(); got != tt.want {
				t.Fatalf("drum tempo = %d, want %d", got, tt.want)
			}
			if got := tt.roles["pad"][0].Tempo(); got != tt.wantOther {
				t.Fatalf("pad tempo changed to %d", got)
			}
		})
	}

	if got := arrange.NormalizeTempo(nil); got != timeline.DefaultTempo {
		t.Fatalf("NormalizeTempo(nil) = %d, want default", got)
	}
}

func TestNormalizeTempoPercussionRestamp(t *testing.T) {
	drum := drums("drum_0", 600000)
	roles := map[string][]*timeline.Fragment{
		"pad":  {melodic("pad_0", 500000, 4), melodic("pad_1", 500000, 4)},
		"drum": {drum},
	}
	before := len(drum.Track)
	arrange.NormalizeTempo(roles)
	if drum.Tempo() != 500000 {
		t.Fatalf("drum tempo = %d, want 500000", drum.Tempo())
	}
	if len(drum.Track) != before {
		t.Fatalf("SetTempo changed the event count")
	}
}

func TestRun(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res, err := e.arr.Run(ctx, arrange.Request{
		RunID:  "run-1",
		Params: songParams(),
		Genre:  "ambient",
		Seed:   42,
		Roles: map[string][]*timeline.Fragment{
			"pad":  {melodic("pad_0", 500000, 4)},
			"drum": {drums("drum_0", 500000)},
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Solution.Status != sched.Optimal {
		t.Fatalf("Status = %v, want optimal", res.Solution.Status)
	}
	// 4 pad repeats of 2000ms and 8 drum repeats of 1000ms all fit.
	if res.Solution.Objective != 12 {
		t.Fatalf("Objective = %d, want 12", res.Solution.Objective)
	}
	if res.Tempo != 500000 || res.Seed != 42 {
		t.Fatalf("Tempo = %d Seed = %d", res.Tempo, res.Seed)
	}
	for _, slot := range res.Plan.Slots {
		if st := res.Solution.Start[slot.Interval]; st%res.Plan.BarMs != 0 {
			t.Fatalf("slot %s starts at %d, not bar aligned", slot.ID, st)
		}
	}

	tune := readSMF(t, e.store, "run-1/"+arrange.TuneFile)
	if len(tune.Tracks) != 2 {
		t.Fatalf("tune tracks = %d, want 2", len(tune.Tracks))
	}
	// Families are in role order: drum_0 then pad_0. The last pad repeat
	// would sound until the song end and is dropped whole.
	if got := noteOns(tune.Tracks[1]); got != 3 {
		t.Fatalf("pad note ons = %d, want 3", got)
	}
	unmerged := readSMF(t, e.store, "run-1/"+arrange.UnmergedFile)
	if len(unmerged.Tracks) != 12 {
		t.Fatalf("unmerged tracks = %d, want 12", len(unmerged.Tracks))
	}

	rec, err := e.index.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("Get record: %v", err)
	}
	if rec.Outcome != "optimal" || rec.Present != 12 || rec.Genre != "ambient" || len(rec.Outputs) != 2 {
		t.Fatalf("record = %+v", rec)
	}
	if len(rec.Windows) != 4 || rec.Windows[0].Name != sections.Intro {
		t.Fatalf("record windows = %+v", rec.Windows)
	}
}

// longDrums returns a percussion fragment of one hit held for the given beats.
func longDrums(name string, tempo uint32, beats uint32) *timeline.Fragment {
	track := smf.Track{
		tempoEvent(tempo),
		{Message: smf.Message{0x99, 36, 100}},
		{Delta: 480 * beats, Message: smf.Message{0x89, 36, 0}},
		{Message: smf.Message{0xFF, 0x2F, 0x00}},
	}
	return timeline.New(name, 480, track)
}

func TestRunFullSong(t *testing.T) {
	// Every fragment spans the 8 bars of a 4/4 song at 100 BPM, 19200ms, so a
	// four minute song holds 12 bar-aligned repeats of each.
	tests := []struct {
		name      string
		fragments int
		want      int
	}{
		{"one fragment per role", 1, 44},
		{"two fragments per role", 2, 48},
	}
	melodicRoles := []string{"main_melody", "sub_melody", "riff", "accompaniment", "pad", "bass"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roles := make(map[string][]*timeline.Fragment)
			for k := range tt.fragments {
				for _, role := range melodicRoles {
					roles[role] = append(roles[role], melodic(fmt.Sprintf("%s_%d", role, k), 600000, 32))
				}
				roles["drum"] = append(roles["drum"], longDrums(fmt.Sprintf("drum_%d", k), 600000, 32))
			}

			e := newEnv(t)
			res, err := e.arr.Run(context.Background(), arrange.Request{
				RunID:  "full-song",
				Params: placement.Params{BPM: 100, Signature: placement.Time4_4, Measures: 8, LengthMs: 240000},
				Roles:  roles,
				Seed:   42,
			})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if got := len(res.Plan.Slots); got != 7*12*tt.fragments {
				t.Fatalf("slots = %d, want %d", got, 7*12*tt.fragments)
			}
			if res.Solution.Status != sched.Optimal {
				t.Fatalf("Status = %v, want optimal", res.Solution.Status)
			}
			if res.Solution.Objective != tt.want || res.Solution.Bound != tt.want {
				t.Fatalf("Objective = %d Bound = %d, want %d", res.Solution.Objective, res.Solution.Bound, tt.want)
			}
		})
	}
}

func TestRunGeneratesID(t *testing.T) {
	e := newEnv(t)
	res, err := e.arr.Run(context.Background(), arrange.Request{
		Params: songParams(),
		Roles:  map[string][]*timeline.Fragment{"bass": {melodic("bass_0", 500000, 4)}},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.RunID == "" || res.Seed == 0 {
		t.Fatalf("RunID = %q Seed = %d", res.RunID, res.Seed)
	}
	ok, err := e.store.Exists(context.Background(), res.RunID+"/"+arrange.TuneFile)
	if err != nil || !ok {
		t.Fatalf("tune not written: %v %v", ok, err)
	}
}

func zeroCapacity() *sections.Profile {
	p := sections.Default()
	for i := range p.Windows {
		p.Windows[i].Capacity = sections.Capacity{}
	}
	return p
}

func TestRunInfeasible(t *testing.T) {
	tests := []struct {
		name  string
		roles map[string][]*timeline.Fragment
	}{
		{"forced drums", map[string][]*timeline.Fragment{
			"drum": {drums("drum_0", 500000)},
			"pad":  {melodic("pad_0", 500000, 4)},
		}},
		{"nothing fits", map[string][]*timeline.Fragment{
			"pad": {melodic("pad_0", 500000, 4)},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.arr.Profile = zeroCapacity()
			e.arr.PercussionBias = 1
			ctx := context.Background()

			_, err := e.arr.Run(ctx, arrange.Request{RunID: "r", Params: songParams(), Seed: 1, Roles: tt.roles})
			if !errors.Is(err, arrange.ErrInfeasible) {
				t.Fatalf("expected ErrInfeasible, got %v", err)
			}
			var ierr *arrange.InfeasibleError
			if !errors.As(err, &ierr) || len(ierr.Pressure) != 4 {
				t.Fatalf("expected InfeasibleError with 4 windows, got %v", err)
			}
			if ok, _ := e.store.Exists(ctx, "r/"+arrange.TuneFile); ok {
				t.Fatal("tune written for an infeasible run")
			}
			rec, err := e.index.Get(ctx, "r")
			if err != nil {
				t.Fatalf("Get record: %v", err)
			}
			if rec.Outcome != "infeasible" || rec.Error == "" {
				t.Fatalf("record = %+v", rec)
			}
		})
	}
}

type stubSolver struct {
	sol *sched.Solution
	err error
}

func (s stubSolver) Solve(context.Context, *sched.Model) (*sched.Solution, error) {
	return s.sol, s.err
}

func TestRunSolverOutcomes(t *testing.T) {
	roles := func() map[string][]*timeline.Fragment {
		return map[string][]*timeline.Fragment{"bass": {melodic("bass_0", 500000, 4)}}
	}

	t.Run("timeout", func(t *testing.T) {
		e := newEnv(t)
		e.arr.Solver = stubSolver{sol: &sched.Solution{Status: sched.Unknown}}
		_, err := e.arr.Run(context.Background(), arrange.Request{RunID: "t", Params: songParams(), Roles: roles()})
		if !errors.Is(err, arrange.ErrTimeout) {
			t.Fatalf("expected ErrTimeout, got %v", err)
		}
		rec, err := e.index.Get(context.Background(), "t")
		if err != nil || rec.Outcome != runs.OutcomeTimeout {
			t.Fatalf("record = %+v, %v", rec, err)
		}
	})

	t.Run("invalid model", func(t *testing.T) {
		e := newEnv(t)
		e.arr.Solver = stubSolver{
			sol: &sched.Solution{Status: sched.ModelInvalid},
			err: fmt.Errorf("%w: broken", sched.ErrInvalidModel),
		}
		_, err := e.arr.Run(context.Background(), arrange.Request{RunID: "m", Params: songParams(), Roles: roles()})
		if !errors.Is(err, sched.ErrInvalidModel) {
			t.Fatalf("expected ErrInvalidModel, got %v", err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		e := newEnv(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := e.arr.Run(ctx, arrange.Request{RunID: "c", Params: songParams(), Roles: roles()})
		if !errors.Is(err, arrange.ErrTimeout) || !errors.Is(err, context.Canceled) {
			t.Fatalf("expected ErrTimeout and Canceled, got %v", err)
		}
		if rec, err := e.index.Get(context.Background(), "c"); err != nil || rec.Outcome != runs.OutcomeTimeout {
			t.Fatalf("record = %+v, %v", rec, err)
		}
	})
}

func TestRunConfigErrors(t *testing.T) {
	roles := map[string][]*timeline.Fragment{"bass": {melodic("bass_0", 500000, 4)}}
	badParams := songParams()
	badParams.Measures = 0
	badProfile := sections.Default()
	badProfile.Windows = badProfile.Windows[1:]

	tests := []struct {
		name    string
		req     arrange.Request
		profile *sections.Profile
		also    error
	}{
		{"params", arrange.Request{Params: badParams, Roles: roles}, nil, placement.ErrInvalidParams},
		{"profile", arrange.Request{Params: songParams(), Roles: roles}, badProfile, sections.ErrInvalidProfile},
		{"run id", arrange.Request{RunID: "../x", Params: songParams(), Roles: roles}, nil, nil},
		{"no fragments", arrange.Request{Params: songParams()}, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.arr.Profile = tt.profile
			_, err := e.arr.Run(context.Background(), tt.req)
			if !errors.Is(err, arrange.ErrConfig) {
				t.Fatalf("expected ErrConfig, got %v", err)
			}
			if tt.also != nil && !errors.Is(err, tt.also) {
				t.Fatalf("expected %v, got %v", tt.also, err)
			}
		})
	}
}

func TestMaterializeSkipsAbsentFamilies(t *testing.T) {
	store, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	roles := map[string][]*timeline.Fragment{
		"bass": {melodic("bass_0", 500000, 4)},
		"pad":  {melodic("pad_0", 500000, 4)},
	}
	plan, err := (&placement.Builder{Params: songParams(), Logger: quietLogger()}).Build(roles)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	sol := &sched.Solution{
		Status:  sched.Feasible,
		Present: make([]bool, len(plan.Model.Intervals)),
		Start:   make([]int64, len(plan.Model.Intervals)),
	}
	for _, s := range plan.Family("pad_0")[:2] {
		sol.Present[s.Interval] = true
		sol.Start[s.Interval] = s.Start
	}

	m := &arrange.Materializer{Store: store, Logger: quietLogger()}
	out, err := m.Materialize(context.Background(), "m", plan, sol, roles)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if len(out.Tracks) != 1 || out.Tracks[0].Family != "pad_0" || out.Tracks[0].Repeats != 2 {
		t.Fatalf("Tracks = %+v", out.Tracks)
	}
	if starts := out.Tracks[0].Starts; starts[0] != 0 || starts[1] != 2000 {
		t.Fatalf("Starts = %v", starts)
	}
	tune := readSMF(t, store, out.Tune)
	if len(tune.Tracks) != 1 || noteOns(tune.Tracks[0]) != 2 {
		t.Fatalf("tune tracks = %d", len(tune.Tracks))
	}

	for i := range sol.Present {
		sol.Present[i] = false
	}
	if _, err := m.Materialize(context.Background(), "empty", plan, sol, roles); !errors.Is(err, timeline.ErrEmptyMerge) {
		t.Fatalf("expected ErrEmptyMerge, got %v", err)
	}
	if ok, _ := store.Exists(context.Background(), "empty/"+arrange.TuneFile); ok {
		t.Fatal("file written without present slots")
	}

	sol.Status = sched.Infeasible
	if _, err := m.Materialize(context.Background(), "x", plan, sol, roles); err == nil {
		t.Fatal("expected error for a solution without schedule")
	}
}

// allPresent returns a schedule keeping every slot at its bar start.
func allPresent(plan *placement.Plan) *sched.Solution {
	sol := &sched.Solution{
		Status:  sched.Feasible,
		Present: make([]bool, len(plan.Model.Intervals)),
		Start:   make([]int64, len(plan.Model.Intervals)),
	}
	for _, s := range plan.Slots {
		sol.Present[s.Interval] = true
		sol.Start[s.Interval] = s.Start
	}
	return sol
}

func TestMaterializeAssignsChannels(t *testing.T) {
	store, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	roles := map[string][]*timeline.Fragment{
		"bass": {melodic("bass_0", 500000, 4)},
		"drum": {drums("drum_0", 500000)},
		"pad":  {melodic("pad_0", 500000, 4), melodic("pad_1", 500000, 4)},
	}
	plan, err := (&placement.Builder{Params: songParams(), Logger: quietLogger()}).Build(roles)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	sol := allPresent(plan)

	m := &arrange.Materializer{Store: store, Logger: quietLogger()}
	want := map[string]uint8{"bass_0": 0, "drum_0": timeline.PercussionChannel, "pad_0": 1, "pad_1": 2}
	for _, run := range []string{"first", "second"} {
		out, err := m.Materialize(context.Background(), run, plan, sol, roles)
		if err != nil {
			t.Fatalf("%s: Materialize: %v", run, err)
		}
		if len(out.Tracks) != len(want) {
			t.Fatalf("%s: Tracks = %+v", run, out.Tracks)
		}
		tune := readSMF(t, store, out.Tune)
		for i, tr := range out.Tracks {
			if tr.Channel != want[tr.Family] {
				t.Errorf("%s: %s channel = %d, want %d", run, tr.Family, tr.Channel, want[tr.Family])
			}
			for _, ev := range tune.Tracks[i] {
				var ch, key, vel uint8
				if ev.Message.GetNoteStart(&ch, &key, &vel) && ch != tr.Channel {
					t.Fatalf("%s: %s note on channel %d, want %d", run, tr.Family, ch, tr.Channel)
				}
			}
		}
	}
	if ch := roles["pad"][1].Track[1].Message[0] & 0x0F; ch != 0 {
		t.Fatalf("source fragment rewritten to channel %d", ch)
	}
}

// brokenStore fails to write the unmerged file and to delete anything.
type brokenStore struct {
	*storage.Local
}

func (s brokenStore) Write(ctx context.Context, p string) (io.WriteCloser, error) {
	if path.Base(p) == arrange.UnmergedFile {
		return nil, errors.New("disk full")
	}
	return s.Local.Write(ctx, p)
}

func (s brokenStore) Delete(context.Context, string) error {
	return errors.New("permission denied")
}

func TestMaterializeReportsLeftoverTune(t *testing.T) {
	local, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	roles := map[string][]*timeline.Fragment{"pad": {melodic("pad_0", 500000, 4)}}
	plan, err := (&placement.Builder{Params: songParams(), Logger: quietLogger()}).Build(roles)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var logs bytes.Buffer
	m := &arrange.Materializer{
		Store:  brokenStore{local},
		Logger: slog.New(slog.NewTextHandler(&logs, nil)),
	}
	if _, err := m.Materialize(context.Background(), "broken", plan, allPresent(plan), roles); err == nil {
		t.Fatal("expected write error")
	}
	if !strings.Contains(logs.String(), "remove partial run") || !strings.Contains(logs.String(), "permission denied") {
		t.Fatalf("logs = %q, want the failed removal", logs.String())
	}
	if ok, _ := local.Exists(context.Background(), "broken/"+arrange.TuneFile); !ok {
		t.Fatal("tune file should remain when removal fails")
	}
}
