package poseukf

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// NormalizedEstimationError computes the normalized estimation error
// squared (NEES), (x̂−x)ᵀP⁻¹(x̂−x), the standard consistency statistic for
// checking that a filter's reported covariance matches its actual error
// against a known ground truth. It is simulation/test tooling: production
// callers never have a ground-truth State to compare against.
func NormalizedEstimationError(estimate, truth State, cov *mat.SymDense) (float64, error) {
	d := estimate.boxminus(truth)
	inv, err := invertSym(cov)
	if err != nil {
		return 0, err
	}
	v := mat.NewVecDense(len(d), d)
	var tmp mat.VecDense
	tmp.MulVec(inv, v)
	return mat.Dot(v, &tmp), nil
}

// ConsistencyRun repeatedly drives a caller-supplied step function (one
// Predict plus its Integrate calls against synthetic, known-truth
// measurements) and records the NEES at every step, the way a Monte Carlo
// consistency study does.
type ConsistencyRun struct {
	NEES []float64
}

// RunConsistencyTrial executes steps invocations of step, which must return
// the filter's current estimate and the corresponding ground truth, and
// collects the NEES sequence.
func RunConsistencyTrial(steps int, step func(k int) (estimate, truth State, cov *mat.SymDense, err error)) (ConsistencyRun, error) {
	run := ConsistencyRun{NEES: make([]float64, steps)}
	for k := 0; k < steps; k++ {
		estimate, truth, cov, err := step(k)
		if err != nil {
			return run, err
		}
		nees, err := NormalizedEstimationError(estimate, truth, cov)
		if err != nil {
			return run, err
		}
		run.NEES[k] = nees
	}
	return run, nil
}

// MeanNEES returns the sample mean of the run's NEES sequence; under a
// consistent N-dimensional filter this should sit near N.
func (r ConsistencyRun) MeanNEES() float64 {
	return stat.Mean(r.NEES, nil)
}

// StdDevNEES returns the sample standard deviation of the run's NEES
// sequence.
func (r ConsistencyRun) StdDevNEES() float64 {
	return stat.StdDev(r.NEES, nil)
}
