package poseukf

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestNewAugmentedCovarianceIsBlockDiagonal(t *testing.T) {
	primaryCov := diagCov(StateDim, 2.0)
	markerCov := diagCov(6, 3.0)
	out := newAugmentedCovariance(primaryCov, markerCov)

	if math.Abs(out.At(0, 0)-2.0) > 1e-12 {
		t.Fatalf("primary block not copied: got %v", out.At(0, 0))
	}
	if math.Abs(out.At(StateDim, StateDim)-3.0) > 1e-12 {
		t.Fatalf("marker block not copied: got %v", out.At(StateDim, StateDim))
	}
	if math.Abs(out.At(0, StateDim)) > 1e-12 {
		t.Fatalf("cross-covariance block should be zero, got %v", out.At(0, StateDim))
	}
}

func TestExtractPrimaryDropsMarkerBlock(t *testing.T) {
	primary := sampleState()
	full := mat.NewSymDense(augmentedStateDim, nil)
	for i := 0; i < augmentedStateDim; i++ {
		full.SetSym(i, i, float64(i)+1)
	}
	a := augmentedState{primary: primary, markerPosition: vec3{1, 2, 3}, markerOrientation: identityQuat()}
	state, cov := extractPrimary(Manifold(a), full)

	d := state.boxminus(primary)
	for i, v := range d {
		if math.Abs(v) > 1e-12 {
			t.Fatalf("extracted primary state should equal input, diff at %d: %v", i, v)
		}
	}
	n, m := cov.Dims()
	if n != StateDim || m != StateDim {
		t.Fatalf("extracted covariance dims = %dx%d, want %dx%d", n, m, StateDim, StateDim)
	}
	if math.Abs(cov.At(0, 0)-1) > 1e-12 {
		t.Fatalf("extracted covariance[0][0] = %v, want 1", cov.At(0, 0))
	}
}

func TestCameraIntrinsicsProjectPixelPrincipalPointIsForwardBearing(t *testing.T) {
	k := CameraIntrinsics{Fx: 500, Fy: 500, Cx: 320, Cy: 240}
	pixelCov := diagCov(2, 4.0)
	bearing, noise := k.ProjectPixel(320, 240, pixelCov)
	if math.Abs(bearing.v[0]) > 1e-12 || math.Abs(bearing.v[1]) > 1e-12 {
		t.Fatalf("bearing at principal point should point straight ahead, got %v", bearing.v)
	}
	if math.Abs(bearing.v[2]-1) > 1e-12 {
		t.Fatalf("bearing z-component should be 1 before normalization cancels out, got %v", bearing.v[2])
	}
	want := 4.0 / (500 * 500)
	if math.Abs(noise.At(0, 0)-want) > 1e-15 {
		t.Fatalf("noise[0][0] = %v, want %v", noise.At(0, 0), want)
	}
}

func TestIntegrateVisualLandmarkBatchAcceptsConsistentObservation(t *testing.T) {
	primary := sampleState()
	primary.Orientation = identityQuat()
	primaryCov := diagCov(StateDim, 0.01)
	markerPosition := addVec3(primary.Position, vec3{5, 0, 0})
	markerOrientation := identityQuat()
	markerCov := diagCov(6, 0.01)

	featureInMarker := vec3{0, 0, 0}
	cameraInBody := vec3{0, 0, 0}
	bearing := hVisualLandmarkBearing(primary, markerPosition, markerOrientation, featureInMarker, cameraInBody)

	points := []ImagePoint{{Bearing: bearing, FeatureInMarker: featureInMarker, CameraInBody: cameraInBody}}
	bearingNoise := diagCov(2, 1e-4)
	w := newWeights(augmentedStateDim, DefaultUnscentedParameters())

	_, _, results, err := integrateVisualLandmarkBatch(primary, primaryCov, markerPosition, markerOrientation, markerCov, points, bearingNoise, w, acceptAllGate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || !results[0].Accepted {
		t.Fatalf("exact-match bearing observation should be accepted, got %+v", results)
	}
}
