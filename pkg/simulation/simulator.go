// Package simulation draws realizations of a multivariate Hawkes process
// with exponential kernels by Ogata's thinning.
package simulation

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/c9s/hawkes/pkg/hawkes"
)

var log = logrus.WithField("component", "simulation")

type Simulator struct {
	decay     float64
	baselines []float64

	// adjacency.At(i, j) is the influence of node i on node j
	adjacency *mat.Dense

	src rand.Source
}

// NewSimulator validates the process parameters. Baselines and weights must
// be non-negative so that the intensity only decreases between events.
func NewSimulator(decay float64, baselines []float64, adjacency [][]float64, seed uint64) (*Simulator, error) {
	if math.IsNaN(decay) || math.IsInf(decay, 0) || decay <= 0 {
		return nil, &hawkes.ConfigurationError{Field: "decay", Value: decay, Reason: "must be a positive finite number"}
	}

	if len(baselines) == 0 {
		return nil, &hawkes.ConfigurationError{Field: "baselines", Reason: "at least one node is required"}
	}

	coeffs, err := hawkes.PackCoeffs(baselines, adjacency)
	if err != nil {
		return nil, err
	}

	for k, c := range coeffs {
		if math.IsNaN(c) || math.IsInf(c, 0) || c < 0 {
			return nil, &hawkes.ConfigurationError{Field: fmt.Sprintf("coefficient #%d", k), Value: c,
				Reason: "baselines and weights must be finite and non-negative"}
		}
	}

	n := len(baselines)
	return &Simulator{
		decay:     decay,
		baselines: hawkes.Baselines(coeffs, n),
		adjacency: hawkes.Adjacency(coeffs, n),
		src:       rand.NewSource(seed),
	}, nil
}

func (s *Simulator) NumNodes() int {
	return len(s.baselines)
}

// Coeffs returns the parameters in the coefficient layout of hawkes.Model.
func (s *Simulator) Coeffs() []float64 {
	n := s.NumNodes()
	coeffs := make([]float64, 0, hawkes.NumCoeffsFor(n))
	coeffs = append(coeffs, s.baselines...)
	for i := 0; i < n; i++ {
		coeffs = append(coeffs, s.adjacency.RawRowView(i)...)
	}
	return coeffs
}

// SpectralRadius returns the largest eigenvalue modulus of the weight
// matrix. The process is stationary when it is below 1.
func (s *Simulator) SpectralRadius() (float64, error) {
	var eig mat.Eigen
	if ok := eig.Factorize(s.adjacency, mat.EigenNone); !ok {
		return math.NaN(), errors.New("unable to compute the eigenvalues of the adjacency matrix")
	}

	radius := 0.0
	for _, v := range eig.Values(nil) {
		radius = math.Max(radius, cmplx.Abs(v))
	}
	return radius, nil
}

// Simulate draws one realization over [0, endTime].
func (s *Simulator) Simulate(endTime float64) ([][]float64, error) {
	if math.IsNaN(endTime) || math.IsInf(endTime, 0) || endTime <= 0 {
		return nil, &hawkes.ConfigurationError{Field: "endTime", Value: endTime, Reason: "must be a positive finite number"}
	}

	n := s.NumNodes()
	events := make([][]float64, n)
	for j := range events {
		events[j] = []float64{}
	}

	excitation := mat.NewVecDense(n, nil)
	var intensities mat.VecDense

	intensity := func() []float64 {
		intensities.MulVec(s.adjacency.T(), excitation)
		data := intensities.RawVector().Data
		floats.Add(data, s.baselines)
		return data
	}

	t := 0.0
	bound := floats.Sum(intensity())
	for bound > 0 {
		dt := distuv.Exponential{Rate: bound, Src: s.src}.Rand()
		if t+dt > endTime {
			break
		}

		t += dt
		excitation.ScaleVec(math.Exp(-s.decay*dt), excitation)

		current := intensity()
		total := floats.Sum(current)

		u := distuv.Uniform{Min: 0, Max: bound, Src: s.src}.Rand()
		if u < total {
			node := pick(current, u)
			events[node] = append(events[node], t)
			excitation.SetVec(node, excitation.AtVec(node)+s.decay)
			total = floats.Sum(intensity())
		}

		bound = total
	}

	return events, nil
}

// pick returns the node whose cumulative intensity first exceeds u.
func pick(intensities []float64, u float64) int {
	acc := 0.0
	for j, v := range intensities {
		acc += v
		if u < acc {
			return j
		}
	}
	return len(intensities) - 1
}

// SimulateMany draws numRealizations independent realizations.
func (s *Simulator) SimulateMany(numRealizations int, endTime float64) ([][][]float64, error) {
	if numRealizations < 1 {
		return nil, &hawkes.ConfigurationError{Field: "realizations", Value: numRealizations, Reason: "must be at least 1"}
	}

	if radius, err := s.SpectralRadius(); err == nil && radius >= 1 {
		log.Warnf("the spectral radius of the adjacency matrix is %f, the process is not stationary", radius)
	}

	realizations := make([][][]float64, numRealizations)
	for r := range realizations {
		events, err := s.Simulate(endTime)
		if err != nil {
			return nil, err
		}
		realizations[r] = events
	}

	return realizations, nil
}
