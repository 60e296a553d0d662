package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/alitavanaali/MusiComb/pkg/arrange"
	"github.com/alitavanaali/MusiComb/pkg/cli"
	"github.com/alitavanaali/MusiComb/pkg/placement"
	"github.com/alitavanaali/MusiComb/pkg/runs"
	"github.com/alitavanaali/MusiComb/pkg/sched"
	"github.com/alitavanaali/MusiComb/pkg/sections"
	"github.com/alitavanaali/MusiComb/pkg/timeline"
)

var (
	arrangeFile     string
	arrangeRunID    string
	arrangeSeed     uint64
	arrangeTimeout  int
	arrangeProfile  string
	arrangePrograms string
)

var arrangeCmd = &cobra.Command{
	Use:   "arrange",
	Short: "Arrange fragments into a song",
	Long: `Arrange the fragments named by a request file into a song.

The request file is YAML or JSON (see 'musicomb schema'). Fragment paths
are relative to the request file.

Examples:
  musicomb arrange -f song.yaml
  musicomb arrange -f song.yaml --seed 42 --timeout 60
  musicomb arrange -f song.json --run-id demo --json`,
	RunE: runArrange,
}

func init() {
	arrangeCmd.Flags().StringVarP(&arrangeFile, "file", "f", "", "request file (required)")
	arrangeCmd.Flags().StringVar(&arrangeRunID, "run-id", "", "run id, overrides the request")
	arrangeCmd.Flags().Uint64Var(&arrangeSeed, "seed", 0, "percussion bias seed, overrides the request")
	arrangeCmd.Flags().IntVar(&arrangeTimeout, "timeout", 0, "solver time limit in seconds, overrides the context")
	arrangeCmd.Flags().StringVar(&arrangeProfile, "profile", "", "section profile YAML, overrides the context")
	arrangeCmd.Flags().StringVar(&arrangePrograms, "programs", "", "instrument program map YAML, overrides the context")
}

// arrangeResult is the machine-readable result of one run.
type arrangeResult struct {
	Record   *runs.Record         `json:"record" yaml:"record"`
	Tune     string               `json:"tune,omitempty" yaml:"tune,omitempty"`
	Unmerged string               `json:"unmerged,omitempty" yaml:"unmerged,omitempty"`
	Tracks   []arrange.Track      `json:"tracks,omitempty" yaml:"tracks,omitempty"`
	Pressure []placement.Pressure `json:"pressure,omitempty" yaml:"pressure,omitempty"`
}

func runArrange(cmd *cobra.Command, args []string) error {
	if arrangeFile == "" {
		return fmt.Errorf("--file is required")
	}
	c, err := getContext()
	if err != nil {
		return err
	}
	logger := slog.Default()

	var req cli.ArrangeRequest
	if err := cli.LoadRequest(arrangeFile, &req); err != nil {
		return err
	}
	if arrangeRunID != "" {
		req.RunID = arrangeRunID
	}
	if arrangeSeed != 0 {
		req.Seed = arrangeSeed
	}

	programs := timeline.DefaultPrograms()
	if path := firstNonEmpty(arrangePrograms, c.Programs); path != "" {
		if programs, err = timeline.LoadPrograms(path); err != nil {
			return err
		}
	}
	var profile *sections.Profile
	if path := firstNonEmpty(arrangeProfile, c.Profile); path != "" {
		if profile, err = sections.Load(path); err != nil {
			return err
		}
	}

	job, err := req.Build(filepath.Dir(arrangeFile), programs)
	if err != nil {
		return err
	}

	store, err := c.OpenStore()
	if err != nil {
		return err
	}
	index, err := c.OpenIndex(logger)
	if err != nil {
		return err
	}
	defer index.Close()

	timeout := c.Timeout()
	if arrangeTimeout > 0 {
		timeout = time.Duration(arrangeTimeout) * time.Second
	}
	arranger := &arrange.Arranger{
		Profile:        profile,
		PercussionBias: c.PercussionBias,
		Solver:         &sched.Auto{TimeLimit: timeout, Logger: logger},
		Materializer:   &arrange.Materializer{Store: store, Logger: logger},
		Runs:           runs.NewIndex(index),
		Logger:         logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := arranger.Run(ctx, job)
	if err != nil {
		var inf *arrange.InfeasibleError
		if errors.As(err, &inf) {
			for _, p := range inf.Pressure {
				cli.PrintWarning("%-8s %d repeats, %d forced, forced peak %d, capacity [%d, %d]",
					p.Window, p.Slots, p.Forced, p.ForcedPeak, p.CapacityMin, p.CapacityMax)
			}
		}
		return err
	}

	out := arrangeResult{Record: res.Record}
	if res.Output != nil {
		out.Tune = res.Output.TuneURI
		out.Unmerged = res.Output.UnmergedURI
		out.Tracks = res.Output.Tracks
	}
	out.Pressure = res.Plan.Pressure()
	return printReport(cli.ArrangeReport(cli.NewStyles(cli.DefaultTheme), res), out)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
