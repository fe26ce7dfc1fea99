package hawkes

import (
	"math"
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/multierr"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func randomRealization(rng *rand.Rand, numNodes, maxJumps int, endTime float64) [][]float64 {
	nodes := make([][]float64, numNodes)
	for j := range nodes {
		ts := make([]float64, 1+rng.Intn(maxJumps))
		for e := range ts {
			ts[e] = rng.Float64() * endTime
		}
		sort.Float64s(ts)
		nodes[j] = ts
	}
	return nodes
}

func randomCoeffs(rng *rand.Rand, numNodes int) []float64 {
	coeffs := make([]float64, NumCoeffsFor(numNodes))
	for j := 0; j < numNodes; j++ {
		coeffs[j] = 0.2 + rng.Float64()
	}
	for k := numNodes; k < len(coeffs); k++ {
		coeffs[k] = 0.05 + 0.3*rng.Float64()
	}
	return coeffs
}

// referenceLoss evaluates the negative log-likelihood of one realization
// directly from its definition, in O(E^2).
func referenceLoss(events [][]float64, endTime, decay float64, coeffs []float64) float64 {
	n := len(events)
	logLik := 0.0
	for j := 0; j < n; j++ {
		for _, t := range events[j] {
			intensity := coeffs[j]
			for i := 0; i < n; i++ {
				for _, s := range events[i] {
					if s < t {
						intensity += coeffs[n+i*n+j] * decay * math.Exp(-decay*(t-s))
					}
				}
			}
			logLik += math.Log(intensity)
		}

		logLik -= coeffs[j] * endTime
		for i := 0; i < n; i++ {
			for _, s := range events[i] {
				logLik -= coeffs[n+i*n+j] * (1 - math.Exp(-decay*(endTime-s)))
			}
		}
	}
	return -logLik
}

func mustModel(t *testing.T, decay float64, numThreads int, events [][][]float64, endTimes []float64) *Model {
	model, err := NewModel(decay, numThreads)
	require.NoError(t, err)
	require.NoError(t, model.SetData(events, endTimes))
	return model
}

func TestNewModel(t *testing.T) {
	testCases := []struct {
		name       string
		decay      float64
		numThreads int
	}{
		{"zero decay", 0, 1},
		{"negative decay", -1.5, 1},
		{"nan decay", math.NaN(), 1},
		{"infinite decay", math.Inf(1), 1},
		{"zero threads", 1.0, 0},
		{"negative threads", 1.0, -2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			model, err := NewModel(tc.decay, tc.numThreads)
			assert.Nil(t, model)
			assert.True(t, IsConfiguration(err), "unexpected error: %v", err)
		})
	}

	t.Run("default threads from config", func(t *testing.T) {
		model, err := NewModelFromConfig(ModelConfig{Decay: 3})
		require.NoError(t, err)
		assert.Equal(t, 1, model.NumThreads())
		assert.Equal(t, 3.0, model.Decays())
	})
}

func TestModel_NoData(t *testing.T) {
	model, err := NewModel(1, 1)
	require.NoError(t, err)

	_, err = model.Loss([]float64{1, 1})
	assert.ErrorIs(t, err, ErrNoData)

	_, err = model.Grad([]float64{1, 1}, make([]float64, 2))
	assert.ErrorIs(t, err, ErrNoData)

	_, err = model.NumCoeffs()
	assert.True(t, IsConfiguration(err))
}

func TestModel_EmptyRealization(t *testing.T) {
	model := mustModel(t, 2.0, 1, [][][]float64{{{}, {}}}, []float64{5})

	for _, weight := range []float64{0, 0.5, 10} {
		coeffs := []float64{0.3, 0.7, weight, weight, weight, weight}
		loss, err := model.Loss(coeffs)
		require.NoError(t, err)
		assert.InDelta(t, (0.3+0.7)*5, loss, 1e-12)
	}

	assert.Equal(t, 0, model.NumJumps())
}

func TestModel_SingleEvent(t *testing.T) {
	const decay, t0, endTime = 2.0, 1.0, 3.0
	const baseline, weight = 0.5, 0.7

	model := mustModel(t, decay, 1, [][][]float64{{{t0}}}, []float64{endTime})

	numCoeffs, err := model.NumCoeffs()
	require.NoError(t, err)
	assert.Equal(t, 2, numCoeffs)

	integral := 1 - math.Exp(-decay*(endTime-t0))
	expected := -(math.Log(baseline) - baseline*endTime - weight*integral)

	coeffs := []float64{baseline, weight}
	grad := make([]float64, 2)
	loss, err := model.LossAndGrad(coeffs, grad)
	require.NoError(t, err)
	assert.InDelta(t, expected, loss, 1e-12)

	// d/dmu of the log-likelihood is 1/mu - T, the loss is its negative
	assert.InDelta(t, -(1/baseline - endTime), grad[0], 1e-12)
	assert.InDelta(t, integral, grad[1], 1e-12)
}

func TestModel_DerivedEndTime(t *testing.T) {
	model := mustModel(t, 1.0, 1, [][][]float64{
		{{0.5, 2.5}, {1.0}},
		{{}, {4.0}},
	}, nil)

	assert.Equal(t, []float64{2.5, 4.0}, model.EndTimes())
	assert.Equal(t, 4, model.NumJumps())
	assert.Equal(t, []int{2, 2}, model.NodeJumps())
	assert.Equal(t, 2, model.NumRealizations())
}

func TestModel_MatchesReference(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const decay = 1.3

	for numNodes := 1; numNodes <= 4; numNodes++ {
		events := randomRealization(rng, numNodes, 12, 10)
		coeffs := randomCoeffs(rng, numNodes)

		model := mustModel(t, decay, 1, [][][]float64{events}, []float64{10})
		loss, err := model.Loss(coeffs)
		require.NoError(t, err)
		assert.InEpsilon(t, referenceLoss(events, 10, decay, coeffs), loss, 1e-10, "nodes: %d", numNodes)
	}
}

func TestModel_EventAtEndTime(t *testing.T) {
	events := [][]float64{{0.5, 1.7, 3.0}, {1.1, 3.0}}
	coeffs := []float64{0.4, 0.6, 0.2, 0.1, 0.3, 0.25}

	// the derived end time equals the last timestamp
	model := mustModel(t, 0.8, 1, [][][]float64{events}, nil)
	assert.Equal(t, []float64{3.0}, model.EndTimes())

	loss, err := model.Loss(coeffs)
	require.NoError(t, err)
	assert.InEpsilon(t, referenceLoss(events, 3.0, 0.8, coeffs), loss, 1e-10)

	explicit := mustModel(t, 0.8, 1, [][][]float64{events}, []float64{3.0})
	explicitLoss, err := explicit.Loss(coeffs)
	require.NoError(t, err)
	assert.Equal(t, loss, explicitLoss)
}

func TestModel_SimultaneousEvents(t *testing.T) {
	events := [][]float64{{1.0, 2.0}, {1.0, 2.5}}
	coeffs := []float64{0.3, 0.2, 0.5, 0.4, 0.6, 0.1}

	model := mustModel(t, 1.5, 1, [][][]float64{events}, []float64{4})
	loss, err := model.Loss(coeffs)
	require.NoError(t, err)
	assert.InEpsilon(t, referenceLoss(events, 4, 1.5, coeffs), loss, 1e-10)
}

func TestModel_ThreadCountIndependence(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	var events [][][]float64
	for r := 0; r < 9; r++ {
		events = append(events, randomRealization(rng, 3, 30, 20))
	}
	coeffs := randomCoeffs(rng, 3)

	single := mustModel(t, 0.9, 1, events, nil)
	parallel := mustModel(t, 0.9, 4, events, nil)

	lossSingle, err := single.Loss(coeffs)
	require.NoError(t, err)
	lossParallel, err := parallel.Loss(coeffs)
	require.NoError(t, err)
	assert.InEpsilon(t, lossSingle, lossParallel, 1e-9)

	gradSingle, err := single.Grad(coeffs, make([]float64, len(coeffs)))
	require.NoError(t, err)
	gradParallel, err := parallel.Grad(coeffs, make([]float64, len(coeffs)))
	require.NoError(t, err)
	assert.InDeltaSlice(t, gradSingle, gradParallel, 1e-9)
}

func TestModel_Additivity(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	a := randomRealization(rng, 2, 15, 8)
	b := randomRealization(rng, 2, 15, 12)
	coeffs := randomCoeffs(rng, 2)

	both := mustModel(t, 1.1, 2, [][][]float64{a, b}, []float64{8, 12})
	onlyA := mustModel(t, 1.1, 1, [][][]float64{a}, []float64{8})
	onlyB := mustModel(t, 1.1, 1, [][][]float64{b}, []float64{12})

	lossBoth, err := both.Loss(coeffs)
	require.NoError(t, err)
	lossA, err := onlyA.Loss(coeffs)
	require.NoError(t, err)
	lossB, err := onlyB.Loss(coeffs)
	require.NoError(t, err)

	assert.InEpsilon(t, lossA+lossB, lossBoth, 1e-12)
}

func TestModel_GradientFiniteDifference(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	var events [][][]float64
	for r := 0; r < 3; r++ {
		events = append(events, randomRealization(rng, 3, 10, 6))
	}
	coeffs := randomCoeffs(rng, 3)
	model := mustModel(t, 1.7, 2, events, []float64{6, 6, 6})

	grad := make([]float64, len(coeffs))
	_, err := model.Grad(coeffs, grad)
	require.NoError(t, err)

	const h = 1e-6
	shifted := make([]float64, len(coeffs))
	for k := range coeffs {
		copy(shifted, coeffs)
		shifted[k] = coeffs[k] + h
		up, err := model.Loss(shifted)
		require.NoError(t, err)

		shifted[k] = coeffs[k] - h
		down, err := model.Loss(shifted)
		require.NoError(t, err)

		numerical := (up - down) / (2 * h)
		assert.InDelta(t, numerical, grad[k], 1e-4*math.Max(1, math.Abs(numerical)), "coordinate %d", k)
	}
}

func TestModel_WeightDirection(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	events := randomRealization(rng, 2, 20, 10)
	coeffs := randomCoeffs(rng, 2)
	model := mustModel(t, 2.0, 1, [][][]float64{events}, []float64{10})

	grad := make([]float64, len(coeffs))
	base, err := model.LossAndGrad(coeffs, grad)
	require.NoError(t, err)

	for k := 2; k < len(coeffs); k++ {
		bumped := append([]float64(nil), coeffs...)
		bumped[k] += 1e-4
		loss, err := model.Loss(bumped)
		require.NoError(t, err)

		if math.Abs(grad[k]) > 1e-2 {
			assert.Equal(t, math.Signbit(grad[k]), math.Signbit(loss-base), "coordinate %d", k)
		}
	}
}

func TestModel_NonPositiveIntensity(t *testing.T) {
	model := mustModel(t, 1.0, 1, [][][]float64{{{1.0, 2.0}}}, []float64{3})

	before := testutil.ToFloat64(rejectedEvaluationsTotal.WithLabelValues(methodGrad))

	out := []float64{42, 42}
	_, err := model.Grad([]float64{-0.5, 0.1}, out)
	require.Error(t, err)
	assert.True(t, IsNonPositiveIntensity(err))
	assert.Equal(t, []float64{42, 42}, out, "the output buffer must not be touched on error")

	var intensityErr *NonPositiveIntensityError
	require.ErrorAs(t, err, &intensityErr)
	assert.Equal(t, 0, intensityErr.Node)
	assert.Equal(t, 1.0, intensityErr.Time)
	assert.Equal(t, -0.5, intensityErr.Intensity)

	assert.Equal(t, before+1, testutil.ToFloat64(rejectedEvaluationsTotal.WithLabelValues(methodGrad)))

	// a negative weight can also cancel the baseline at a later event
	_, err = model.Loss([]float64{0.5, -2.0})
	assert.True(t, IsNonPositiveIntensity(err))
}

func TestModel_ParameterLength(t *testing.T) {
	model := mustModel(t, 1.0, 1, [][][]float64{{{1.0}, {2.0}}}, nil)

	_, err := model.Loss([]float64{1, 2, 3})
	var lengthErr *ParameterLengthError
	require.ErrorAs(t, err, &lengthErr)
	assert.Equal(t, 6, lengthErr.Want)
	assert.Equal(t, 3, lengthErr.Got)

	_, err = model.Grad(make([]float64, 6), make([]float64, 5))
	assert.ErrorAs(t, err, &lengthErr)

	_, err = model.LossAndGrad(make([]float64, 6), nil)
	assert.ErrorAs(t, err, &lengthErr)
}

func TestModel_SetDataErrors(t *testing.T) {
	testCases := []struct {
		name     string
		events   [][][]float64
		endTimes []float64
	}{
		{"no realization", nil, nil},
		{"no node", [][][]float64{{}}, nil},
		{"node count mismatch", [][][]float64{{{1}, {2}}, {{1}}}, nil},
		{"unsorted", [][][]float64{{{1, 3, 2}}}, nil},
		{"duplicated timestamp", [][][]float64{{{1, 2, 2}}}, nil},
		{"negative timestamp", [][][]float64{{{-1, 2}}}, nil},
		{"nan timestamp", [][][]float64{{{math.NaN()}}}, nil},
		{"after end time", [][][]float64{{{1, 5}}}, []float64{4}},
		{"negative end time", [][][]float64{{{}}}, []float64{-1}},
		{"single end time for many realizations", [][][]float64{{{1}}, {{2}}}, []float64{3}},
		{"end time count mismatch", [][][]float64{{{1}}, {{2}}}, []float64{3, 4, 5}},
		{"unknown horizon", [][][]float64{{{}, {}}}, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			model, err := NewModel(1, 1)
			require.NoError(t, err)

			err = model.SetData(tc.events, tc.endTimes)
			require.Error(t, err)
			assert.True(t, IsDataShape(err), "unexpected error: %v", err)
		})
	}

	t.Run("all violations are reported", func(t *testing.T) {
		model, err := NewModel(1, 1)
		require.NoError(t, err)

		err = model.SetData([][][]float64{{{2, 1}, {1}}, {{1}, {-3}}, {{1}}}, nil)
		require.Error(t, err)
		assert.Len(t, multierr.Errors(err), 3)
	})
}

func TestModel_InvalidDataKeepsAttached(t *testing.T) {
	model := mustModel(t, 1.0, 2, [][][]float64{{{0.5, 1.5}, {1.0}}}, []float64{2})
	coeffs := []float64{0.5, 0.5, 0.1, 0.2, 0.3, 0.4}

	before, err := model.Loss(coeffs)
	require.NoError(t, err)

	err = model.SetData([][][]float64{{{3, 1}, {1}}, {{1}, {2}}}, nil)
	assert.True(t, IsDataShape(err))

	after, err := model.Loss(coeffs)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 3, model.NumJumps())
	assert.Equal(t, []float64{2}, model.EndTimes())
}

func TestModel_SetDataReplaces(t *testing.T) {
	model := mustModel(t, 1.0, 1, [][][]float64{{{0.5}}}, []float64{1})
	require.NoError(t, model.SetData([][][]float64{{{0.5}, {0.7}}, {{0.1}, {}}}, []float64{1, 2}))

	numCoeffs, err := model.NumCoeffs()
	require.NoError(t, err)
	assert.Equal(t, 6, numCoeffs)
	assert.Equal(t, 3, model.NumJumps())

	_, err = model.Loss([]float64{1, 1})
	assert.Error(t, err)
}

func TestModel_InputIsCopied(t *testing.T) {
	events := [][][]float64{{{0.5, 1.0}}}
	model := mustModel(t, 1.0, 1, events, []float64{2})
	coeffs := []float64{0.4, 0.3}

	before, err := model.Loss(coeffs)
	require.NoError(t, err)

	events[0][0][1] = 1.9
	after, err := model.Loss(coeffs)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestModel_ConcurrentEvaluations(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	var events [][][]float64
	for r := 0; r < 4; r++ {
		events = append(events, randomRealization(rng, 2, 10, 5))
	}
	coeffs := randomCoeffs(rng, 2)
	model := mustModel(t, 1.0, 3, events, nil)

	expected, err := model.Loss(coeffs)
	require.NoError(t, err)

	var wg sync.WaitGroup
	losses := make([]float64, 8)
	for i := range losses {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			losses[i], _ = model.Loss(coeffs)
		}(i)
	}
	wg.Wait()

	for _, loss := range losses {
		assert.Equal(t, expected, loss)
	}
}

func TestModel_Metrics(t *testing.T) {
	model := mustModel(t, 1.0, 1, [][][]float64{{{0.5}}}, []float64{1})
	before := testutil.ToFloat64(evaluationsTotal.WithLabelValues(methodLossAndGrad))

	_, err := model.LossAndGrad([]float64{1, 0.5}, make([]float64, 2))
	require.NoError(t, err)

	assert.Equal(t, before+1, testutil.ToFloat64(evaluationsTotal.WithLabelValues(methodLossAndGrad)))
	assert.Equal(t, 1.0, testutil.ToFloat64(attachedJumps))
}
