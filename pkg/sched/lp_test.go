package sched

import (
	"context"
	"testing"
	"time"
)

func TestLPBound(t *testing.T) {
	m := NewModel()
	var ivs []int
	var demands []int64
	for range 10 {
		ivs = append(ivs, m.NewOptionalInterval("iv", 0, 100, 100, 0, 100))
		demands = append(demands, 1)
	}
	m.AddCumulative("w", ivs, demands, 0, 3)

	s := newSearch(context.Background(), m, time.Now().Add(time.Minute))
	got, ok := s.lpBound(DefaultLPMaxCells)
	if !ok {
		t.Fatal("lpBound failed")
	}
	if got != 3 {
		t.Fatalf("lpBound = %d, want 3", got)
	}

	if _, ok := s.lpBound(10); ok {
		t.Fatal("lpBound ignored the cell limit")
	}
}

func TestLPBoundForcedUsage(t *testing.T) {
	m := NewModel()
	f := m.NewOptionalInterval("forced", 0, 0, 100, 100, 100)
	m.SetPresence(f, Forced)
	var ivs = []int{f}
	var demands = []int64{2}
	for range 4 {
		ivs = append(ivs, m.NewOptionalInterval("iv", 0, 0, 100, 100, 100))
		demands = append(demands, 1)
	}
	m.AddCumulative("w", ivs, demands, 0, 4)

	s := newSearch(context.Background(), m, time.Now().Add(time.Minute))
	got, ok := s.lpBound(DefaultLPMaxCells)
	if !ok {
		t.Fatal("lpBound failed")
	}
	// The forced interval leaves room for two of the four.
	if got != 3 {
		t.Fatalf("lpBound = %d, want 3", got)
	}
}

func TestRootBoundStopsSearchEarly(t *testing.T) {
	m := NewModel()
	var ivs []int
	var demands []int64
	for range 40 {
		ivs = append(ivs, m.NewOptionalInterval("iv", 0, 100, 100, 0, 100))
		demands = append(demands, 1)
	}
	m.AddCumulative("w", ivs, demands, 0, 3)

	sol, err := (&BranchAndBound{TimeLimit: 10 * time.Second}).Solve(context.Background(), m)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if sol.Status != Optimal || sol.Objective != 3 {
		t.Fatalf("Status = %v Objective = %d, want optimal 3", sol.Status, sol.Objective)
	}
	if sol.Nodes > int64(len(ivs)+1) {
		t.Fatalf("Nodes = %d, want the first dive to be proven optimal", sol.Nodes)
	}
}
