package poseukf

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies the filter's expected-flow rejections, matching the
// error handling design: no panics for predictable conditions. A mismatched
// covariance dimension at construction is reported as
// UnsupportedConfiguration rather than a panic.
type ErrorKind uint8

const (
	// InvalidMeasurement: mean or covariance has non-finite entries, or the
	// covariance is not symmetric PSD. The measurement is dropped.
	InvalidMeasurement ErrorKind = iota + 1
	// GateRejection: the innovation failed its Mahalanobis gate. The
	// measurement is dropped.
	GateRejection
	// NumericalFailure: a Cholesky factorization or matrix inverse failed.
	// Fatal during predict; the update is simply dropped otherwise.
	NumericalFailure
	// UnsupportedConfiguration: surfaced at construction only.
	UnsupportedConfiguration
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidMeasurement:
		return "InvalidMeasurement"
	case GateRejection:
		return "GateRejection"
	case NumericalFailure:
		return "NumericalFailure"
	case UnsupportedConfiguration:
		return "UnsupportedConfiguration"
	default:
		return "UnknownError"
	}
}

// FilterError is returned by every fallible operation on PoseFilter. Callers
// that need the originating cause (e.g. the *mat.Dense inversion error
// wrapped by a NumericalFailure) should use the standard library's
// errors.Unwrap or errors.As. FilterError has no Cause method, so
// github.com/pkg/errors.Cause stops at the FilterError itself.
type FilterError struct {
	Kind ErrorKind
	msg  string
	Err  error
}

func (e *FilterError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("poseukf: %s: %s: %s", e.Kind, e.msg, e.Err)
	}
	return fmt.Sprintf("poseukf: %s: %s", e.Kind, e.msg)
}

// Unwrap allows errors.Is/errors.As to reach the underlying cause.
func (e *FilterError) Unwrap() error { return e.Err }

func newFilterError(kind ErrorKind, msg string, cause error) *FilterError {
	return &FilterError{Kind: kind, msg: msg, Err: cause}
}

func invalidMeasurementf(format string, args ...interface{}) *FilterError {
	return newFilterError(InvalidMeasurement, fmt.Sprintf(format, args...), nil)
}

func gateRejectionf(format string, args ...interface{}) *FilterError {
	return newFilterError(GateRejection, fmt.Sprintf(format, args...), nil)
}

func numericalFailuref(cause error, format string, args ...interface{}) *FilterError {
	return newFilterError(NumericalFailure, fmt.Sprintf(format, args...), errors.WithStack(cause))
}

func unsupportedConfigurationf(format string, args ...interface{}) *FilterError {
	return newFilterError(UnsupportedConfiguration, fmt.Sprintf(format, args...), nil)
}

// DimensionAgreement defines how two matrices' dimensions should agree,
// checked only at construction time where a mismatch is a programmer error.
type DimensionAgreement uint8

const (
	dimErrMsg                    = "dimensions must agree: "
	rows2cols DimensionAgreement = iota + 1
	cols2rows
	rowsAndcols
)

func checkDims(r1, c1, r2, c2 int, name1, name2 string, method DimensionAgreement) error {
	switch method {
	case rows2cols:
		if r1 != c2 {
			return fmt.Errorf("%s%s(%dx...) %s(...x%d)", dimErrMsg, name1, r1, name2, c2)
		}
	case cols2rows:
		if c1 != r2 {
			return fmt.Errorf("%s%s(...x%d) %s(%dx...)", dimErrMsg, name1, c1, name2, r2)
		}
	case rowsAndcols:
		if c1 != c2 || r1 != r2 {
			return fmt.Errorf("%s%s(%dx%d) %s(%dx%d)", dimErrMsg, name1, r1, c1, name2, r2, c2)
		}
	}
	return nil
}
