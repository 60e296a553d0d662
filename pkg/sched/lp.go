package sched

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// lpBound bounds the objective with the LP relaxation of the fixed-start
// intervals: maximize the sum of x over free intervals with x in [0, 1],
// such that at the start of every free interval the demand of the covering
// intervals stays within capacity less the forced usage there. Free
// intervals with a movable start count as 1; forced intervals count as 1.
//
// ok is false when the relaxation is too large or could not be solved.
func (s *search) lpBound(maxCells int) (bound int, ok bool) {
	var (
		vars    []int       // free fixed-start intervals in the LP
		col     = map[int]int{}
		movable int
		forced  int
	)
	for i := range s.m.Intervals {
		switch {
		case !s.alive[i]:
		case s.forced(i):
			forced++
		case s.lo[i] < s.hi[i]:
			movable++
		default:
			col[i] = len(vars)
			vars = append(vars, i)
		}
	}
	if len(vars) == 0 {
		return forced + movable, true
	}

	type row struct {
		cols    []int
		demands []float64
		rhs     float64
	}
	var rows []row
	seen := map[string]bool{}
	for c, cu := range s.m.Cumulatives {
		for k, i := range cu.Intervals {
			if _, in := col[i]; !in || !s.consumes(i, member{c, cu.Demands[k]}) {
				continue
			}
			t := s.lo[i]
			var r row
			var total, used int64
			for kk, j := range cu.Intervals {
				d := cu.Demands[kk]
				if d == 0 || !s.alive[j] || s.lo[j] != s.hi[j] {
					continue
				}
				if s.lo[j] > t || t >= s.lo[j]+s.m.Intervals[j].Duration {
					continue
				}
				if s.forced(j) {
					used += d
					continue
				}
				r.cols = append(r.cols, col[j])
				r.demands = append(r.demands, float64(d))
				total += d
			}
			rhs := cu.CapacityMax - used
			if rhs < 0 {
				return 0, false
			}
			if total <= rhs {
				continue
			}
			r.rhs = float64(rhs)
			key := rowKey(r.cols, r.demands, rhs)
			if seen[key] {
				continue
			}
			seen[key] = true
			rows = append(rows, r)
		}
	}

	// Standard form: x, then one slack per upper bound, then one slack per
	// coverage row.
	n := len(vars)
	nrows := n + len(rows)
	ncols := n + nrows
	if nrows*ncols > maxCells {
		return 0, false
	}
	A := mat.NewDense(nrows, ncols, nil)
	b := make([]float64, nrows)
	c := make([]float64, ncols)
	basic := make([]int, nrows)
	for v := 0; v < n; v++ {
		A.Set(v, v, 1)
		A.Set(v, n+v, 1)
		b[v] = 1
		c[v] = -1
		basic[v] = n + v
	}
	for k, r := range rows {
		ri := n + k
		for x, cc := range r.cols {
			A.Set(ri, cc, r.demands[x])
		}
		A.Set(ri, n+ri, 1)
		b[ri] = r.rhs
		basic[ri] = n + ri
	}

	opt, err := solveLP(c, A, b, basic)
	if err != nil {
		return 0, false
	}
	return forced + movable + int(math.Floor(-opt+1e-6)), true
}

// solveLP runs the simplex and converts its panics on degenerate input into
// errors.
func solveLP(c []float64, A *mat.Dense, b []float64, basic []int) (opt float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = lp.ErrSingular
		}
	}()
	opt, _, err = lp.Simplex(c, A, b, 1e-10, basic)
	return opt, err
}

func rowKey(cols []int, demands []float64, rhs int64) string {
	idx := make([]int, len(cols))
	for i := range idx {
		idx[i] = i
	}
	slices.SortFunc(idx, func(a, b int) int { return cols[a] - cols[b] })
	var sb strings.Builder
	sb.WriteString(strconv.FormatInt(rhs, 10))
	for _, i := range idx {
		sb.WriteByte('|')
		sb.WriteString(strconv.Itoa(cols[i]))
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatFloat(demands[i], 'g', -1, 64))
	}
	return sb.String()
}
