package hawkes

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// NumCoeffsFor returns the length of the coefficient vector of a model with numNodes nodes:
// one baseline per node followed by the numNodes x numNodes weight matrix.
func NumCoeffsFor(numNodes int) int {
	return numNodes + numNodes*numNodes
}

// Baselines returns the baseline part of coeffs. The returned slice shares coeffs' storage.
func Baselines(coeffs []float64, numNodes int) []float64 {
	return coeffs[:numNodes]
}

// Adjacency returns a view of the weight matrix stored in coeffs.
// At(i, j) is the influence of node i's events on node j's intensity.
func Adjacency(coeffs []float64, numNodes int) *mat.Dense {
	return mat.NewDense(numNodes, numNodes, coeffs[numNodes:NumCoeffsFor(numNodes)])
}

// PackCoeffs builds a coefficient vector from baselines and a square weight matrix.
func PackCoeffs(baselines []float64, adjacency [][]float64) ([]float64, error) {
	n := len(baselines)
	if len(adjacency) != n {
		return nil, &ConfigurationError{Field: "adjacency", Value: len(adjacency),
			Reason: fmt.Sprintf("expected %d rows", n)}
	}

	coeffs := make([]float64, 0, NumCoeffsFor(n))
	coeffs = append(coeffs, baselines...)
	for i, row := range adjacency {
		if len(row) != n {
			return nil, &ConfigurationError{Field: fmt.Sprintf("adjacency row %d", i), Value: len(row),
				Reason: fmt.Sprintf("expected %d columns", n)}
		}
		coeffs = append(coeffs, row...)
	}

	return coeffs, nil
}
