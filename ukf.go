package poseukf

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// UnscentedParameters are the UKF's scaling knobs. The zero value is not
// usable; DefaultUnscentedParameters returns the conventional defaults the
// original source hard-codes.
type UnscentedParameters struct {
	Alpha, Beta, Kappa float64
}

// DefaultUnscentedParameters returns the conventional α=1e-3, β=2, κ=0.
func DefaultUnscentedParameters() UnscentedParameters {
	return UnscentedParameters{Alpha: 1e-3, Beta: 2, Kappa: 0}
}

// weights holds the sigma-point weights for a tangent dimension n, derived
// from the scaling parameter λ = α²(n+κ) − n.
type weights struct {
	lambda  float64
	wMean0  float64
	wCov0   float64
	wi      float64
	n       int
}

func newWeights(n int, p UnscentedParameters) weights {
	lambda := p.Alpha*p.Alpha*(float64(n)+p.Kappa) - float64(n)
	return weights{
		lambda: lambda,
		wMean0: lambda / (float64(n) + lambda),
		wCov0:  lambda/(float64(n)+lambda) + (1 - p.Alpha*p.Alpha + p.Beta),
		wi:     1 / (2 * (float64(n) + lambda)),
		n:      n,
	}
}

func (w weights) scale() float64 { return math.Sqrt(float64(w.n) + w.lambda) }

// sigmaPoints generates the 2n+1 sigma points of mean (a Manifold point) and
// covariance cov via BoxPlus along the scaled Cholesky factor's columns.
func sigmaPoints(mean Manifold, cov *mat.SymDense, w weights) ([]Manifold, error) {
	l, err := choleskyLower(cov)
	if err != nil {
		return nil, err
	}
	n := w.n
	points := make([]Manifold, 2*n+1)
	points[0] = mean
	scale := w.scale()
	for i := 0; i < n; i++ {
		col := mat.Col(nil, i, l)
		delta := make([]float64, n)
		for k, v := range col {
			delta[k] = v * scale
		}
		points[1+i] = mean.BoxPlus(delta)
		neg := make([]float64, n)
		for k, v := range delta {
			neg[k] = -v
		}
		points[1+n+i] = mean.BoxPlus(neg)
	}
	return points, nil
}

// manifoldMean recombines the sigma points' images under a (possibly
// nonlinear) transform into a single manifold point via the iterative
// retraction-based mean used for curved spaces: starting from an initial
// guess, repeatedly average the BoxMinus displacements back to the guess and
// retract by the weighted average until it converges.
func manifoldMean(points []Manifold, w weights, guess Manifold) Manifold {
	mean := guess
	n := points[0].Dim()
	for iter := 0; iter < 10; iter++ {
		acc := make([]float64, n)
		weightOf := func(i int) float64 {
			if i == 0 {
				return w.wMean0
			}
			return w.wi
		}
		for i, p := range points {
			d := p.BoxMinus(mean)
			wt := weightOf(i)
			for k := range acc {
				acc[k] += wt * d[k]
			}
		}
		norm := 0.0
		for _, v := range acc {
			norm += v * v
		}
		mean = mean.BoxPlus(acc)
		if norm < 1e-20 {
			break
		}
	}
	return mean
}

// manifoldCovariance recombines the sigma points' displacements from mean
// into the weighted outer-product covariance, per Σ' = Σwᵢ(Xᵢ⊖μ')(Xᵢ⊖μ')ᵀ.
func manifoldCovariance(points []Manifold, mean Manifold, w weights) *mat.SymDense {
	n := mean.Dim()
	cov := mat.NewSymDense(n, nil)
	weightOf := func(i int) float64 {
		if i == 0 {
			return w.wCov0
		}
		return w.wi
	}
	for i, p := range points {
		d := p.BoxMinus(mean)
		wt := weightOf(i)
		for a := 0; a < n; a++ {
			for b := a; b < n; b++ {
				cov.SetSym(a, b, cov.At(a, b)+wt*d[a]*d[b])
			}
		}
	}
	return cov
}

// crossCovariance computes Σwᵢ(Xᵢ⊖stateMean)(Zᵢ⊖obsMean)ᵀ, the state/
// observation cross-covariance the Kalman gain is built from.
func crossCovariance(statePoints []Manifold, stateMean Manifold, obsPoints []Manifold, obsMean Manifold, w weights) *mat.Dense {
	n := stateMean.Dim()
	m := obsMean.Dim()
	cross := mat.NewDense(n, m, nil)
	weightOf := func(i int) float64 {
		if i == 0 {
			return w.wCov0
		}
		return w.wi
	}
	for i := range statePoints {
		dx := statePoints[i].BoxMinus(stateMean)
		dz := obsPoints[i].BoxMinus(obsMean)
		wt := weightOf(i)
		for a := 0; a < n; a++ {
			for b := 0; b < m; b++ {
				cross.Set(a, b, cross.At(a, b)+wt*dx[a]*dz[b])
			}
		}
	}
	return cross
}

// ukfPredict runs one unscented-transform predict step: generate sigma
// points from (mean, cov), push each through transform, and recombine into
// the predicted mean/covariance with processNoise added.
func ukfPredict(mean Manifold, cov *mat.SymDense, processNoise *mat.SymDense, w weights, transform func(Manifold) (Manifold, error)) (Manifold, *mat.SymDense, error) {
	points, err := sigmaPoints(mean, cov, w)
	if err != nil {
		return nil, nil, err
	}
	predicted := make([]Manifold, len(points))
	for i, p := range points {
		out, err := transform(p)
		if err != nil {
			return nil, nil, err
		}
		predicted[i] = out
	}
	newMean := manifoldMean(predicted, w, predicted[0])
	newCov := manifoldCovariance(predicted, newMean, w)
	n, _ := newCov.Dims()
	sum := mat.NewSymDense(n, nil)
	sum.AddSym(newCov, processNoise)
	clamped, err := clampPSD(sum)
	if err != nil {
		return nil, nil, err
	}
	return newMean, clamped, nil
}

// UpdateResult carries the diagnostics an Integrate<Kind> call on PoseFilter
// needs to decide what happened to a measurement: whether it was applied,
// and its Mahalanobis distance² against the innovation covariance.
type UpdateResult struct {
	Accepted           bool
	MahalanobisSquared float64
	Gate               float64
}

// ukfUpdate runs one unscented-transform update step: regenerate sigma
// points from the predicted (mean, cov), push each through observe to get
// the predicted observation sigma points, recombine their mean/covariance,
// add measurementNoise, gate the innovation against threshold, and if it
// passes apply the Kalman correction.
func ukfUpdate(mean Manifold, cov *mat.SymDense, measurementNoise *mat.SymDense, actual Manifold, w weights, threshold float64, observe func(Manifold) (Manifold, error)) (Manifold, *mat.SymDense, UpdateResult, error) {
	return ukfUpdateMasked(mean, cov, measurementNoise, actual, w, threshold, nil, observe)
}

// ukfUpdateMasked is ukfUpdate with an optional state-block restriction: when
// mask is non-nil, the Kalman gain's rows outside the indices named by mask
// are zeroed before the correction is applied, so only those state
// components are moved by this update (e.g. the velocity-only body-effort
// mode, which corrects surge/sway/heave but leaves every other block --
// orientation, biases, online parameters -- untouched by a measurement whose
// torque/heave rows are known to be unreliable). A nil mask updates every
// state component, identical to plain ukfUpdate.
func ukfUpdateMasked(mean Manifold, cov *mat.SymDense, measurementNoise *mat.SymDense, actual Manifold, w weights, threshold float64, mask []bool, observe func(Manifold) (Manifold, error)) (Manifold, *mat.SymDense, UpdateResult, error) {
	points, err := sigmaPoints(mean, cov, w)
	if err != nil {
		return nil, nil, UpdateResult{}, err
	}
	obsPoints := make([]Manifold, len(points))
	for i, p := range points {
		out, err := observe(p)
		if err != nil {
			return nil, nil, UpdateResult{}, err
		}
		obsPoints[i] = out
	}
	obsMean := manifoldMean(obsPoints, w, obsPoints[0])
	obsCov := manifoldCovariance(obsPoints, obsMean, w)
	m, _ := obsCov.Dims()
	innovCov := mat.NewSymDense(m, nil)
	innovCov.AddSym(obsCov, measurementNoise)

	innovation := actual.BoxMinus(obsMean)
	innovCovInv, err := invertSym(innovCov)
	if err != nil {
		return nil, nil, UpdateResult{}, err
	}
	iv := mat.NewVecDense(m, innovation)
	var tmp mat.VecDense
	tmp.MulVec(innovCovInv, iv)
	d2 := mat.Dot(iv, &tmp)

	result := UpdateResult{MahalanobisSquared: d2, Gate: threshold}
	if threshold >= 0 && d2 > threshold {
		result.Accepted = false
		return mean, cov, result, nil
	}
	result.Accepted = true

	cross := crossCovariance(points, mean, obsPoints, obsMean, w)
	var gain mat.Dense
	gain.Mul(cross, innovCovInv)

	n := mean.Dim()
	if mask != nil {
		for i := 0; i < n; i++ {
			if !mask[i] {
				for j := 0; j < m; j++ {
					gain.Set(i, j, 0)
				}
			}
		}
	}

	var correction mat.VecDense
	correction.MulVec(&gain, iv)
	delta := make([]float64, n)
	for i := 0; i < n; i++ {
		delta[i] = correction.AtVec(i)
	}
	newMean := mean.BoxPlus(delta)

	var gainCrossT mat.Dense
	gainCrossT.Mul(&gain, cross.T())
	newCovDense := mat.NewDense(n, n, nil)
	newCovDense.Sub(denseFromSym(cov), &gainCrossT)
	newCov, err := clampPSD(newCovDense)
	if err != nil {
		return nil, nil, UpdateResult{}, err
	}
	return newMean, newCov, result, nil
}

func denseFromSym(s *mat.SymDense) *mat.Dense {
	n, _ := s.Dims()
	d := mat.NewDense(n, n, nil)
	d.Copy(s)
	return d
}
