package hawkes

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNoData is returned by the evaluation methods when SetData has not been called yet.
var ErrNoData = &ConfigurationError{Field: "data", Reason: "no realization is attached, call SetData first"}

// DataShapeError reports a malformed or inconsistent realization.
// Realization and Node are -1 when the error is not bound to a specific one.
type DataShapeError struct {
	Realization int
	Node        int
	Reason      string
}

func (e *DataShapeError) Error() string {
	switch {
	case e.Realization < 0:
		return fmt.Sprintf("hawkes: invalid data: %s", e.Reason)
	case e.Node < 0:
		return fmt.Sprintf("hawkes: invalid realization #%d: %s", e.Realization, e.Reason)
	default:
		return fmt.Sprintf("hawkes: invalid realization #%d node %d: %s", e.Realization, e.Node, e.Reason)
	}
}

// ParameterLengthError is returned when a coefficient or gradient buffer
// does not match the number of coefficients of the model.
type ParameterLengthError struct {
	Name string
	Got  int
	Want int
}

func (e *ParameterLengthError) Error() string {
	return fmt.Sprintf("hawkes: %s has %d coefficients, expected %d", e.Name, e.Got, e.Want)
}

// NonPositiveIntensityError means the coefficients drive the intensity of a
// node to zero or below at one of its events. The log-likelihood is undefined
// there, optimizers should treat it as a rejected step.
type NonPositiveIntensityError struct {
	Realization int
	Node        int
	Time        float64
	Intensity   float64
}

func (e *NonPositiveIntensityError) Error() string {
	return fmt.Sprintf("hawkes: non-positive intensity %g on node %d at t=%g (realization #%d)",
		e.Intensity, e.Node, e.Time, e.Realization)
}

type ConfigurationError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("hawkes: invalid %s: %s", e.Field, e.Reason)
	}

	return fmt.Sprintf("hawkes: invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// IsNonPositiveIntensity reports whether err (or anything it wraps) is a NonPositiveIntensityError.
func IsNonPositiveIntensity(err error) bool {
	var target *NonPositiveIntensityError
	return errors.As(err, &target)
}

// IsDataShape reports whether err (or anything it wraps) is a DataShapeError.
func IsDataShape(err error) bool {
	var target *DataShapeError
	return errors.As(err, &target)
}

// IsConfiguration reports whether err (or anything it wraps) is a ConfigurationError.
func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}
