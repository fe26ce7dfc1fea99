package hawkes

import (
	"fmt"
	"math"

	"go.uber.org/multierr"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// realization is a validated copy of one observed sample of the process,
// together with the decayed excitation buffers computed by sweep.
type realization struct {
	index      int
	timestamps [][]float64
	endTime    float64
	numJumps   int

	// excitations[j] has one row per event of node j and one column per
	// source node i, holding G_i(t^-) at that event. nil for nodes without events.
	excitations []*mat.Dense

	// integrals[i] is sum_k (1 - exp(-decay * (endTime - t_k))) over the events of node i.
	integrals []float64
}

// validateEvents checks the shape of the given realizations and end times and
// returns the number of nodes. Every violation found is reported.
func validateEvents(events [][][]float64, endTimes []float64) (int, error) {
	if len(events) == 0 {
		return 0, &DataShapeError{Realization: -1, Node: -1, Reason: "no realization given"}
	}

	switch len(endTimes) {
	case 0, len(events):
	case 1:
		return 0, &DataShapeError{Realization: -1, Node: -1,
			Reason: fmt.Sprintf("a single end time can only be given for one realization, got %d realizations", len(events))}
	default:
		return 0, &DataShapeError{Realization: -1, Node: -1,
			Reason: fmt.Sprintf("got %d end times for %d realizations", len(endTimes), len(events))}
	}

	numNodes := len(events[0])
	if numNodes == 0 {
		return 0, &DataShapeError{Realization: 0, Node: -1, Reason: "realization has no node"}
	}

	var errs error
	for r, nodes := range events {
		if len(nodes) != numNodes {
			errs = multierr.Append(errs, &DataShapeError{Realization: r, Node: -1,
				Reason: fmt.Sprintf("has %d nodes, expected %d", len(nodes), numNodes)})
			continue
		}

		hasEndTime := len(endTimes) > 0
		var endTime float64
		if hasEndTime {
			endTime = endTimes[r]
			if math.IsNaN(endTime) || math.IsInf(endTime, 0) || endTime < 0 {
				errs = multierr.Append(errs, &DataShapeError{Realization: r, Node: -1,
					Reason: fmt.Sprintf("end time %g must be finite and non-negative", endTime)})
				continue
			}
		}

		numJumps := 0
		for j, ts := range nodes {
			numJumps += len(ts)
			if reason := validateTimestamps(ts); reason != "" {
				errs = multierr.Append(errs, &DataShapeError{Realization: r, Node: j, Reason: reason})
				continue
			}

			if hasEndTime && len(ts) > 0 && ts[len(ts)-1] > endTime {
				errs = multierr.Append(errs, &DataShapeError{Realization: r, Node: j,
					Reason: fmt.Sprintf("timestamp %g is after the end time %g", ts[len(ts)-1], endTime)})
			}
		}

		if !hasEndTime && numJumps == 0 {
			errs = multierr.Append(errs, &DataShapeError{Realization: r, Node: -1,
				Reason: "no event and no end time given, the observation horizon is unknown"})
		}
	}

	return numNodes, errs
}

func validateTimestamps(ts []float64) string {
	for k, t := range ts {
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return fmt.Sprintf("timestamp #%d is not finite", k)
		}

		if t < 0 {
			return fmt.Sprintf("timestamp #%d is negative (%g)", k, t)
		}

		if k > 0 && t <= ts[k-1] {
			return fmt.Sprintf("timestamps are not strictly ascending at #%d (%g after %g)", k, t, ts[k-1])
		}
	}

	return ""
}

// newRealization copies already validated timestamps. endTime < 0 means
// the horizon is derived from the last event.
func newRealization(index int, nodes [][]float64, endTime float64) *realization {
	r := &realization{
		index:      index,
		timestamps: make([][]float64, len(nodes)),
		endTime:    endTime,
	}

	derived := 0.0
	for j, ts := range nodes {
		r.timestamps[j] = append([]float64(nil), ts...)
		r.numJumps += len(ts)
		if len(ts) > 0 && ts[len(ts)-1] > derived {
			derived = ts[len(ts)-1]
		}
	}

	if endTime < 0 {
		r.endTime = derived
	}

	return r
}

func (r *realization) numNodes() int {
	return len(r.timestamps)
}

// nextTime returns the earliest pending timestamp across all nodes.
func (r *realization) nextTime(cursor []int) (float64, bool) {
	next, ok := math.Inf(1), false
	for j, ts := range r.timestamps {
		if cursor[j] < len(ts) && ts[cursor[j]] < next {
			next, ok = ts[cursor[j]], true
		}
	}

	return next, ok
}

// sweep walks the time-merged event stream once and fills the excitation
// buffers and kernel integrals for the given decay. Events sharing the same
// timestamp on different nodes do not excite each other.
func (r *realization) sweep(decay float64) {
	n := r.numNodes()

	r.excitations = make([]*mat.Dense, n)
	for j, ts := range r.timestamps {
		if len(ts) > 0 {
			r.excitations[j] = mat.NewDense(len(ts), n, nil)
		}
	}

	state := make([]float64, n)
	cursor := make([]int, n)
	last := 0.0
	for {
		t, ok := r.nextTime(cursor)
		if !ok {
			break
		}

		if t > last {
			floats.Scale(math.Exp(-decay*(t-last)), state)
			last = t
		}

		for j, ts := range r.timestamps {
			if cursor[j] < len(ts) && ts[cursor[j]] == t {
				copy(r.excitations[j].RawRowView(cursor[j]), state)
			}
		}

		for j, ts := range r.timestamps {
			if cursor[j] < len(ts) && ts[cursor[j]] == t {
				state[j] += decay
				cursor[j]++
			}
		}
	}

	r.integrals = make([]float64, n)
	for i, ts := range r.timestamps {
		sum := 0.0
		for _, t := range ts {
			sum -= math.Expm1(-decay * (r.endTime - t))
		}
		r.integrals[i] = sum
	}
}

// evaluate returns the negative log-likelihood of the realization for the
// given coefficients. When grad is not nil it is overwritten with the
// gradient. The coefficients are only read.
func (r *realization) evaluate(coeffs, grad []float64) (float64, error) {
	n := r.numNodes()
	baselines := coeffs[:n]
	weights := mat.NewDense(n, n, coeffs[n:])

	loss := floats.Sum(baselines) * r.endTime
	for i := 0; i < n; i++ {
		loss += r.integrals[i] * floats.Sum(weights.RawRowView(i))
	}

	if grad != nil {
		for j := 0; j < n; j++ {
			grad[j] = r.endTime
		}

		for i := 0; i < n; i++ {
			row := grad[n+i*n : n+(i+1)*n]
			for j := range row {
				row[j] = r.integrals[i]
			}
		}
	}

	column := mat.NewVecDense(n, nil)
	for j, excitation := range r.excitations {
		if excitation == nil {
			continue
		}

		mat.Col(column.RawVector().Data, j, weights)

		var intensities mat.VecDense
		intensities.MulVec(excitation, column)

		inverse := intensities.RawVector().Data
		for e, excited := range inverse {
			intensity := baselines[j] + excited
			if !(intensity > 0) {
				return 0, &NonPositiveIntensityError{
					Realization: r.index,
					Node:        j,
					Time:        r.timestamps[j][e],
					Intensity:   intensity,
				}
			}

			loss -= math.Log(intensity)
			inverse[e] = 1 / intensity
		}

		if grad == nil {
			continue
		}

		grad[j] -= floats.Sum(inverse)

		var sensitivity mat.VecDense
		sensitivity.MulVec(excitation.T(), &intensities)
		for i := 0; i < n; i++ {
			grad[n+i*n+j] -= sensitivity.AtVec(i)
		}
	}

	return loss, nil
}
