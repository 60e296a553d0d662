package arrange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/alitavanaali/MusiComb/pkg/placement"
	"github.com/alitavanaali/MusiComb/pkg/runs"
	"github.com/alitavanaali/MusiComb/pkg/sched"
	"github.com/alitavanaali/MusiComb/pkg/sections"
	"github.com/alitavanaali/MusiComb/pkg/timeline"
)

// Request is one arrangement job.
type Request struct {
	// RunID names the output directory and the run record. Generated when
	// empty.
	RunID string

	Params placement.Params

	// Genre is recorded with the run.
	Genre string

	// Roles maps each role to its fragments. Percussion fragments are
	// re-stamped in place with the chosen tempo.
	Roles map[string][]*timeline.Fragment

	// Seed seeds the percussion bias. Zero draws a random seed, which is
	// reported in the result.
	Seed uint64
}

// Result is a successful arrangement.
type Result struct {
	RunID    string
	Seed     uint64
	Tempo    uint32
	Plan     *placement.Plan
	Solution *sched.Solution
	Output   *Output
	Record   *runs.Record
}

// Arranger runs requests end to end. It holds no per-run state.
type Arranger struct {
	// Profile defaults to sections.Default().
	Profile *sections.Profile

	// PercussionBias is passed to placement.Builder.
	PercussionBias float64

	// Solver defaults to an Auto with its default time limit.
	Solver sched.Solver

	Materializer *Materializer

	// Runs records every run when set.
	Runs *runs.Index

	// Logger is optional. If nil, uses slog.Default().
	Logger *slog.Logger
}

func (a *Arranger) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// Run arranges req. Files are written only when the solver returns a
// schedule that places at least one repeat. Infeasible and timed out runs
// return an error matching ErrInfeasible or ErrTimeout and are still
// recorded.
func (a *Arranger) Run(ctx context.Context, req Request) (*Result, error) {
	began := time.Now()
	logger := a.logger()

	if req.RunID == "" {
		req.RunID = runs.NewID()
	}
	if err := validate(req); err != nil {
		return nil, err
	}
	if req.Seed == 0 {
		req.Seed = rand.Uint64() | 1
	}
	res := &Result{RunID: req.RunID, Seed: req.Seed}
	rec := &runs.Record{
		ID:            req.RunID,
		CreatedAt:     began,
		Genre:         req.Genre,
		BPM:           req.Params.BPM,
		TimeSignature: req.Params.Signature.String(),
		Measures:      req.Params.Measures,
		LengthMs:      req.Params.LengthMs,
		Seed:          req.Seed,
		Roles:         roleNames(req.Roles),
	}
	res.Record = rec

	res.Tempo = NormalizeTempo(req.Roles)
	rec.Tempo = res.Tempo
	logger.Debug("arrange: tempo normalized", "run", req.RunID, "tempo", res.Tempo)

	b := &placement.Builder{
		Params:         req.Params,
		Profile:        a.Profile,
		Rand:           rand.New(rand.NewPCG(req.Seed, req.Seed>>1)),
		PercussionBias: a.PercussionBias,
		Logger:         logger,
	}
	plan, err := b.Build(req.Roles)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	res.Plan = plan
	rec.Slots = len(plan.Slots)

	solver := a.Solver
	if solver == nil {
		solver = &sched.Auto{Logger: logger}
	}
	sol, err := solver.Solve(ctx, plan.Model)
	if err != nil {
		err = fmt.Errorf("arrange: solve: %w", err)
		a.finish(ctx, rec, began, runs.OutcomeError, err)
		return nil, err
	}
	res.Solution = sol
	rec.Objective = int64(sol.Objective)
	rec.Bound = int64(sol.Bound)

	switch {
	case sol.Status == sched.Infeasible:
		err := &InfeasibleError{Pressure: plan.Pressure()}
		a.finish(ctx, rec, began, sol.Status.String(), err)
		return nil, err
	case !sol.Status.HasSchedule():
		err := ErrTimeout
		if cerr := ctx.Err(); cerr != nil {
			err = fmt.Errorf("%w: %w", ErrTimeout, cerr)
		}
		a.finish(ctx, rec, began, runs.OutcomeTimeout, err)
		return nil, err
	case sol.Objective == 0:
		err := &InfeasibleError{Pressure: plan.Pressure()}
		a.finish(ctx, rec, began, sched.Infeasible.String(), err)
		return nil, err
	}

	rec.Present = sol.Objective
	for c, name := range plan.Windows {
		cu := plan.Model.Cumulatives[c]
		rec.Windows = append(rec.Windows, runs.Window{
			Name:     name,
			Capacity: sol.Capacity[c],
			Min:      cu.CapacityMin,
			Max:      cu.CapacityMax,
		})
	}

	if a.Materializer == nil {
		err := errors.New("arrange: no materializer")
		a.finish(ctx, rec, began, runs.OutcomeError, err)
		return nil, err
	}
	out, err := a.Materializer.Materialize(ctx, req.RunID, plan, sol, req.Roles)
	if err != nil {
		a.finish(ctx, rec, began, runs.OutcomeError, err)
		return nil, err
	}
	res.Output = out
	rec.Outputs = []string{out.TuneURI, out.UnmergedURI}
	a.finish(ctx, rec, began, sol.Status.String(), nil)

	logger.Info("arrange: run finished",
		"run", req.RunID,
		"status", sol.Status.String(),
		"present", sol.Objective,
		"slots", len(plan.Slots),
		"elapsed", time.Since(began))
	return res, nil
}

// finish completes rec and stores it. A failing index only logs, the
// arrangement itself is not undone.
func (a *Arranger) finish(ctx context.Context, rec *runs.Record, began time.Time, outcome string, err error) {
	rec.Outcome = outcome
	if err != nil {
		rec.Error = err.Error()
	}
	rec.ElapsedMs = time.Since(began).Milliseconds()
	if a.Runs == nil {
		return
	}
	if perr := a.Runs.Put(context.WithoutCancel(ctx), rec); perr != nil {
		a.logger().Warn("arrange: record run", "run", rec.ID, "error", perr)
	}
}

func validate(req Request) error {
	if strings.ContainsAny(req.RunID, "/\\:") || strings.TrimSpace(req.RunID) != req.RunID || req.RunID == "." || req.RunID == ".." {
		return fmt.Errorf("%w: run id %q", ErrConfig, req.RunID)
	}
	if err := req.Params.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	n := 0
	for role, frags := range req.Roles {
		for k, f := range frags {
			if f == nil {
				return fmt.Errorf("%w: %s fragment %d is nil", ErrConfig, role, k)
			}
		}
		n += len(frags)
	}
	if n == 0 {
		return fmt.Errorf("%w: no fragments", ErrConfig)
	}
	return nil
}

func roleNames(roles map[string][]*timeline.Fragment) map[string][]string {
	out := make(map[string][]string, len(roles))
	for _, role := range slices.Sorted(maps.Keys(roles)) {
		for _, f := range roles[role] {
			out[role] = append(out[role], f.Name)
		}
	}
	return out
}
