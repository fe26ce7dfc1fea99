// Package hawkes evaluates the negative log-likelihood of a multivariate
// Hawkes process with exponential kernels sharing a single decay, and its
// gradient with respect to the baselines and the kernel weights.
//
// A Model is built once with its decay, receives the observed realizations
// with SetData, and is then evaluated many times by an optimizer through
// Loss, Grad or LossAndGrad. Realizations are evaluated in parallel on a
// bounded pool of goroutines.
//
// SetData must not be called while an evaluation is in flight: callers
// serialize attaching data against evaluations. Concurrent evaluations on
// the same attached data are fine.
package hawkes

import (
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

var log = logrus.WithField("component", "hawkes")

const (
	methodLoss        = "loss"
	methodGrad        = "grad"
	methodLossAndGrad = "loss_and_grad"
)

type ModelConfig struct {
	Decay float64 `json:"decay" yaml:"decay"`

	// NumThreads is the size of the evaluation pool, defaults to 1
	NumThreads int `json:"numThreads,omitempty" yaml:"numThreads,omitempty"`
}

// Model is the log-likelihood of a Hawkes process with exponential kernels
// phi_ij(t) = w_ij * decay * exp(-decay * t).
type Model struct {
	decay      float64
	numThreads int

	numNodes     int
	numJumps     int
	realizations []*realization
}

// NewModel creates a model for the given decay, evaluated with numThreads goroutines.
func NewModel(decay float64, numThreads int) (*Model, error) {
	if math.IsNaN(decay) || math.IsInf(decay, 0) || decay <= 0 {
		return nil, &ConfigurationError{Field: "decay", Value: decay, Reason: "must be a positive finite number"}
	}

	if numThreads < 1 {
		return nil, &ConfigurationError{Field: "numThreads", Value: numThreads, Reason: "must be at least 1"}
	}

	return &Model{
		decay:      decay,
		numThreads: numThreads,
	}, nil
}

func NewModelFromConfig(config ModelConfig) (*Model, error) {
	numThreads := config.NumThreads
	if numThreads == 0 {
		numThreads = 1
	}

	return NewModel(config.Decay, numThreads)
}

// SetData attaches the realizations to fit. events[r][j] holds the ascending
// timestamps of node j in realization r. endTimes is either empty, in which
// case every realization ends at its last event, or holds one end time per
// realization.
//
// On error the previously attached data is kept. On success it is replaced
// along with its excitation buffers.
func (m *Model) SetData(events [][][]float64, endTimes []float64) error {
	startTime := time.Now()

	numNodes, err := validateEvents(events, endTimes)
	if err != nil {
		return err
	}

	realizations := make([]*realization, len(events))
	numJumps := 0
	for r, nodes := range events {
		endTime := -1.0
		if len(endTimes) > 0 {
			endTime = endTimes[r]
		}

		realizations[r] = newRealization(r, nodes, endTime)
		numJumps += realizations[r].numJumps
	}

	var eg errgroup.Group
	eg.SetLimit(m.numThreads)
	for _, r := range realizations {
		r := r
		eg.Go(func() error {
			r.sweep(m.decay)
			return nil
		})
	}
	_ = eg.Wait()

	m.numNodes = numNodes
	m.numJumps = numJumps
	m.realizations = realizations
	attachedJumps.Set(float64(numJumps))

	log.Debugf("attached %d realizations of %d nodes, %d jumps in total, took %s",
		len(realizations), numNodes, numJumps, time.Since(startTime))
	return nil
}

// Loss returns the negative log-likelihood summed over all realizations.
func (m *Model) Loss(coeffs []float64) (loss float64, err error) {
	defer func(startTime time.Time) { observeEvaluation(methodLoss, startTime, err) }(time.Now())

	return m.evaluate(coeffs, nil)
}

// Grad writes the gradient of the negative log-likelihood into out and returns it.
// out is overwritten, and left untouched on error.
func (m *Model) Grad(coeffs, out []float64) (_ []float64, err error) {
	defer func(startTime time.Time) { observeEvaluation(methodGrad, startTime, err) }(time.Now())

	if out == nil {
		return nil, &ParameterLengthError{Name: "gradient buffer", Got: 0, Want: NumCoeffsFor(m.numNodes)}
	}

	if _, err := m.evaluate(coeffs, out); err != nil {
		return nil, err
	}

	return out, nil
}

// LossAndGrad computes the loss and the gradient in the same pass.
func (m *Model) LossAndGrad(coeffs, out []float64) (loss float64, err error) {
	defer func(startTime time.Time) { observeEvaluation(methodLossAndGrad, startTime, err) }(time.Now())

	if out == nil {
		return 0, &ParameterLengthError{Name: "gradient buffer", Got: 0, Want: NumCoeffsFor(m.numNodes)}
	}

	return m.evaluate(coeffs, out)
}

// evaluate dispatches one unit of work per realization. Every unit writes
// into its own slot, the slots are reduced in realization order so the
// result does not depend on the number of threads.
func (m *Model) evaluate(coeffs, out []float64) (float64, error) {
	if len(m.realizations) == 0 {
		return 0, ErrNoData
	}

	numCoeffs := NumCoeffsFor(m.numNodes)
	if len(coeffs) != numCoeffs {
		return 0, &ParameterLengthError{Name: "coeffs", Got: len(coeffs), Want: numCoeffs}
	}

	if out != nil && len(out) != numCoeffs {
		return 0, &ParameterLengthError{Name: "gradient buffer", Got: len(out), Want: numCoeffs}
	}

	losses := make([]float64, len(m.realizations))
	errs := make([]error, len(m.realizations))

	var grads []float64
	if out != nil {
		grads = make([]float64, len(m.realizations)*numCoeffs)
	}

	var eg errgroup.Group
	eg.SetLimit(m.numThreads)
	for idx, r := range m.realizations {
		idx, r := idx, r
		eg.Go(func() error {
			var grad []float64
			if grads != nil {
				grad = grads[idx*numCoeffs : (idx+1)*numCoeffs]
			}

			losses[idx], errs[idx] = r.evaluate(coeffs, grad)
			return nil
		})
	}
	_ = eg.Wait()

	for _, err := range errs {
		if err != nil {
			return 0, err
		}
	}

	loss := 0.0
	for _, l := range losses {
		loss += l
	}

	if out != nil {
		for i := range out {
			out[i] = 0
		}

		for idx := range m.realizations {
			floats.Add(out, grads[idx*numCoeffs:(idx+1)*numCoeffs])
		}
	}

	return loss, nil
}

// NumCoeffs returns the length of the coefficient vector, available once data is attached.
func (m *Model) NumCoeffs() (int, error) {
	if len(m.realizations) == 0 {
		return 0, ErrNoData
	}

	return NumCoeffsFor(m.numNodes), nil
}

func (m *Model) NumNodes() int {
	return m.numNodes
}

func (m *Model) NumRealizations() int {
	return len(m.realizations)
}

// NumJumps returns the number of events across all nodes and realizations.
func (m *Model) NumJumps() int {
	return m.numJumps
}

// Decays returns the decay shared by all kernels.
func (m *Model) Decays() float64 {
	return m.decay
}

func (m *Model) NumThreads() int {
	return m.numThreads
}

// EndTimes returns the observation horizon of every attached realization.
func (m *Model) EndTimes() []float64 {
	endTimes := make([]float64, len(m.realizations))
	for i, r := range m.realizations {
		endTimes[i] = r.endTime
	}

	return endTimes
}

// NodeJumps returns the number of events per node across all realizations.
func (m *Model) NodeJumps() []int {
	counts := make([]int, m.numNodes)
	for _, r := range m.realizations {
		for j, ts := range r.timestamps {
			counts[j] += len(ts)
		}
	}

	return counts
}
