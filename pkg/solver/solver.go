// Package solver fits the coefficients of a Hawkes log-likelihood by
// minimizing it with L-BFGS.
package solver

import (
	"fmt"
	"math"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"gonum.org/v1/gonum/optimize"

	"github.com/c9s/hawkes/pkg/hawkes"
)

var log = logrus.WithField("component", "solver")

// Objective is what the solver minimizes, *hawkes.Model implements it.
type Objective interface {
	Loss(coeffs []float64) (float64, error)
	LossAndGrad(coeffs, out []float64) (float64, error)
	NumCoeffs() (int, error)
}

type Options struct {
	// MaxIterations is the number of L-BFGS iterations, 0 means no limit
	MaxIterations int `json:"maxIterations" yaml:"maxIterations"`

	// GradientThreshold stops the fit when the infinity norm of the gradient is below it
	GradientThreshold float64 `json:"gradientThreshold" yaml:"gradientThreshold"`

	// Tolerance is the relative loss improvement under which the fit is considered converged
	Tolerance float64 `json:"tolerance" yaml:"tolerance"`

	// Store is the L-BFGS history size
	Store int `json:"store" yaml:"store"`

	ShowProgress bool `json:"-" yaml:"-"`
}

var DefaultOptions = Options{
	MaxIterations:     500,
	GradientThreshold: 1e-6,
	Tolerance:         1e-10,
	Store:             10,
}

type Result struct {
	Coeffs          []float64
	Loss            float64
	Status          string
	Iterations      int
	FuncEvaluations int
	GradEvaluations int
	RejectedSteps   int
	Duration        time.Duration
}

// problem adapts an Objective to gonum's optimize.Problem. Coefficients
// driving an intensity non-positive evaluate to +Inf, which makes the line
// search shrink its step.
type problem struct {
	objective Objective
	scratch   []float64

	rejected    int
	warnLimiter *rate.Limiter

	err error
}

func (p *problem) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

func (p *problem) reject(err error) {
	p.rejected++

	logger := log.WithError(err)
	if p.warnLimiter.Allow() {
		logger.Warn("rejected step")
	} else {
		logger.Debug("rejected step")
	}
}

func (p *problem) loss(x []float64) float64 {
	loss, err := p.objective.Loss(x)
	if err != nil {
		if hawkes.IsNonPositiveIntensity(err) {
			p.reject(err)
			return math.Inf(1)
		}

		p.fail(err)
		return math.NaN()
	}

	return loss
}

func (p *problem) grad(grad, x []float64) {
	if _, err := p.objective.LossAndGrad(x, p.scratch); err != nil {
		p.fail(errors.Wrap(err, "gradient evaluation failed"))
		for i := range grad {
			grad[i] = math.NaN()
		}
		return
	}

	copy(grad, p.scratch)
}

type progressRecorder struct {
	bar *pb.ProgressBar
}

func (r *progressRecorder) Init() error {
	return nil
}

func (r *progressRecorder) Record(loc *optimize.Location, op optimize.Operation, stats *optimize.Stats) error {
	if op != optimize.MajorIteration {
		return nil
	}

	log.WithFields(logrus.Fields{
		"iteration":   stats.MajorIterations,
		"loss":        loc.F,
		"evaluations": stats.FuncEvaluations,
	}).Debug("iteration finished")

	if r.bar != nil {
		r.bar.Set("log", fmt.Sprintf("loss: %.6f", loc.F))
		r.bar.Increment()
	}
	return nil
}

// Fit minimizes the objective starting from initial, which must give a finite loss.
func Fit(objective Objective, initial []float64, options Options) (*Result, error) {
	numCoeffs, err := objective.NumCoeffs()
	if err != nil {
		return nil, err
	}

	if len(initial) != numCoeffs {
		return nil, &hawkes.ParameterLengthError{Name: "initial coeffs", Got: len(initial), Want: numCoeffs}
	}

	if _, err := objective.Loss(initial); err != nil {
		return nil, errors.Wrap(err, "the initial coefficients can not be evaluated")
	}

	if options.Store <= 0 {
		options.Store = DefaultOptions.Store
	}

	p := &problem{
		objective:   objective,
		scratch:     make([]float64, numCoeffs),
		warnLimiter: rate.NewLimiter(rate.Every(time.Minute), 5),
	}

	recorder := &progressRecorder{}
	if options.ShowProgress && options.MaxIterations > 0 {
		recorder.bar = pb.Full.Start(options.MaxIterations)
		recorder.bar.SetTemplateString(`{{ string . "log" | green}} | {{counters . }} {{bar . }} {{percent . }} {{etime . }}`)
		defer recorder.bar.Finish()
	}

	settings := &optimize.Settings{
		MajorIterations:   options.MaxIterations,
		GradientThreshold: options.GradientThreshold,
		Converger: &optimize.FunctionConverge{
			Relative:   options.Tolerance,
			Iterations: 20,
		},
		Recorder: recorder,
	}

	method := &optimize.LBFGS{
		Store:        options.Store,
		Linesearcher: &optimize.Backtracking{},
	}

	startTime := time.Now()
	result, err := optimize.Minimize(optimize.Problem{Func: p.loss, Grad: p.grad}, initial, settings, method)
	if p.err != nil {
		return nil, p.err
	}

	if result == nil {
		return nil, errors.Wrap(err, "optimization failed")
	}

	status := result.Status.String()
	if err != nil {
		// the line search can not progress any further, keep the best location found
		log.WithError(err).Warnf("optimization stopped after %d iterations", result.MajorIterations)
		status = err.Error()
	}

	log.Infof("fit finished with status %s: loss=%f iterations=%d rejected steps=%d",
		status, result.F, result.MajorIterations, p.rejected)

	return &Result{
		Coeffs:          append([]float64(nil), result.X...),
		Loss:            result.F,
		Status:          status,
		Iterations:      result.MajorIterations,
		FuncEvaluations: result.FuncEvaluations,
		GradEvaluations: result.GradEvaluations,
		RejectedSteps:   p.rejected,
		Duration:        time.Since(startTime),
	}, nil
}

// InitialCoeffs returns a feasible starting point: each baseline is the
// average event rate of its node, each weight is the given constant.
func InitialCoeffs(numNodes int, nodeJumps []int, totalTime, weight float64) []float64 {
	coeffs := make([]float64, hawkes.NumCoeffsFor(numNodes))
	for j := 0; j < numNodes; j++ {
		baseline := 1.0
		if totalTime > 0 && j < len(nodeJumps) && nodeJumps[j] > 0 {
			baseline = float64(nodeJumps[j]) / totalTime
		}
		coeffs[j] = baseline
	}

	for k := numNodes; k < len(coeffs); k++ {
		coeffs[k] = weight
	}

	return coeffs
}
