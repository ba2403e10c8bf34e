package poseukf

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func diagCov(n int, v float64) *mat.SymDense {
	m := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		m.SetSym(i, i, v)
	}
	return m
}

func TestSigmaPointsCountIs2NPlus1(t *testing.T) {
	mean := VectorManifold{1, 2, 3}
	cov := diagCov(3, 0.01)
	w := newWeights(3, DefaultUnscentedParameters())
	points, err := sigmaPoints(mean, cov, w)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(points) != 7 {
		t.Fatalf("len(points) = %d, want 7 for n=3", len(points))
	}
	if !vecManifoldEqual(points[0], mean) {
		t.Fatalf("first sigma point should be the mean itself")
	}
}

func vecManifoldEqual(a, b Manifold) bool {
	av, aok := a.(VectorManifold)
	bv, bok := b.(VectorManifold)
	if !aok || !bok || len(av) != len(bv) {
		return false
	}
	for i := range av {
		if av[i] != bv[i] {
			return false
		}
	}
	return true
}

func TestManifoldMeanOfSymmetricSigmaPointsRecoversMean(t *testing.T) {
	mean := VectorManifold{1, -2, 0.5}
	cov := diagCov(3, 0.04)
	w := newWeights(3, DefaultUnscentedParameters())
	points, err := sigmaPoints(mean, cov, w)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	recombined := manifoldMean(points, w, points[0])
	rv := recombined.(VectorManifold)
	for i := range rv {
		if math.Abs(rv[i]-float64(mean[i])) > 1e-9 {
			t.Fatalf("recombined mean[%d] = %v, want %v", i, rv[i], mean[i])
		}
	}
}

func TestManifoldCovarianceRecoversInputCovariance(t *testing.T) {
	mean := VectorManifold{0, 0, 0}
	cov := diagCov(3, 0.09)
	w := newWeights(3, DefaultUnscentedParameters())
	points, err := sigmaPoints(mean, cov, w)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := manifoldCovariance(points, mean, w)
	for i := 0; i < 3; i++ {
		if math.Abs(got.At(i, i)-0.09) > 1e-9 {
			t.Fatalf("recombined covariance[%d][%d] = %v, want 0.09", i, i, got.At(i, i))
		}
	}
}

func TestUKFUpdateRejectsBeyondGate(t *testing.T) {
	mean := VectorManifold{0, 0}
	cov := diagCov(2, 1.0)
	w := newWeights(2, DefaultUnscentedParameters())
	noise := diagCov(2, 0.01)
	actual := VectorManifold{10, 10}
	observe := func(m Manifold) (Manifold, error) { return m, nil }

	_, _, result, err := ukfUpdate(mean, cov, noise, actual, w, 5.991, observe)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Accepted {
		t.Fatalf("a far-off measurement should be gate-rejected, got accepted with d2=%v", result.MahalanobisSquared)
	}
}

func TestUKFUpdateAcceptsZeroInnovation(t *testing.T) {
	mean := VectorManifold{1, 2}
	cov := diagCov(2, 1.0)
	w := newWeights(2, DefaultUnscentedParameters())
	noise := diagCov(2, 1.0)
	actual := VectorManifold{1, 2}
	observe := func(m Manifold) (Manifold, error) { return m, nil }

	newMean, newCov, result, err := ukfUpdate(mean, cov, noise, actual, w, 5.991, observe)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Accepted {
		t.Fatalf("zero innovation should always be accepted")
	}
	if math.Abs(result.MahalanobisSquared) > 1e-9 {
		t.Fatalf("zero innovation should give d2≈0, got %v", result.MahalanobisSquared)
	}
	nm := newMean.(VectorManifold)
	for i := range nm {
		if math.Abs(nm[i]-float64(mean[i])) > 1e-9 {
			t.Fatalf("mean should stay put at zero innovation, got %v want %v", nm[i], mean[i])
		}
	}
	// measurement noise == prior covariance and zero innovation: the Kalman
	// gain is 1/2 I, halving the posterior covariance versus the prior.
	if math.Abs(newCov.At(0, 0)-0.5) > 1e-6 {
		t.Fatalf("posterior variance = %v, want 0.5 (prior Σ halved)", newCov.At(0, 0))
	}
}
