package poseukf

import "gonum.org/v1/gonum/mat"

// augmentedStateDim is the tangent dimension of the primary state plus one
// transient marker pose block (3 position + 3 orientation).
const augmentedStateDim = StateDim + 6

const (
	offMarkerPosition = StateDim
	offMarkerOrient   = offMarkerPosition + 3
)

// augmentedState is the transient manifold a visual-landmark batch update
// runs the UKF against: the primary state with one marker's nav-frame pose
// appended. It only ever exists for the duration of one batch; the result is
// written back into the primary state/covariance by extractPrimary.
type augmentedState struct {
	primary         State
	markerPosition  vec3
	markerOrientation quat
}

func (augmentedState) Dim() int { return augmentedStateDim }

func (a augmentedState) BoxPlus(delta []float64) Manifold {
	out := a
	out.primary = a.primary.boxplus(delta[:StateDim])
	out.markerPosition = addVec3(a.markerPosition, vec3{delta[offMarkerPosition], delta[offMarkerPosition+1], delta[offMarkerPosition+2]})
	out.markerOrientation = boxplusSO3(a.markerOrientation, vec3{delta[offMarkerOrient], delta[offMarkerOrient+1], delta[offMarkerOrient+2]})
	return out
}

func (a augmentedState) BoxMinus(other Manifold) []float64 {
	o := other.(augmentedState)
	d := make([]float64, augmentedStateDim)
	copy(d[:StateDim], a.primary.boxminus(o.primary))
	mp := subVec3(a.markerPosition, o.markerPosition)
	d[offMarkerPosition], d[offMarkerPosition+1], d[offMarkerPosition+2] = mp[0], mp[1], mp[2]
	mo := boxminusSO3(a.markerOrientation, o.markerOrientation)
	d[offMarkerOrient], d[offMarkerOrient+1], d[offMarkerOrient+2] = mo[0], mo[1], mo[2]
	return d
}

// newAugmentedCovariance embeds the primary covariance in the top-left
// block of an (N+6)×(N+6) matrix and the marker-pose prior in the
// bottom-right block, with zero cross-covariance: the marker's pose is, at
// the start of a batch, assumed independent of the vehicle's navigation
// state.
func newAugmentedCovariance(primaryCov *mat.SymDense, markerCov *mat.SymDense) *mat.SymDense {
	out := mat.NewSymDense(augmentedStateDim, nil)
	for i := 0; i < StateDim; i++ {
		for j := i; j < StateDim; j++ {
			out.SetSym(i, j, primaryCov.At(i, j))
		}
	}
	for i := 0; i < 6; i++ {
		for j := i; j < 6; j++ {
			out.SetSym(StateDim+i, StateDim+j, markerCov.At(i, j))
		}
	}
	return out
}

// extractPrimary pulls the primary state/covariance block back out of an
// augmented (mean, cov) pair after a visual-landmark batch completes,
// discarding the marker-pose block and the cross-covariance accumulated
// against it during the batch, per the augmentation protocol's "extract,
// don't carry forward" contract.
func extractPrimary(mean Manifold, cov *mat.SymDense) (State, *mat.SymDense) {
	a := mean.(augmentedState)
	out := mat.NewSymDense(StateDim, nil)
	for i := 0; i < StateDim; i++ {
		for j := i; j < StateDim; j++ {
			out.SetSym(i, j, cov.At(i, j))
		}
	}
	return a.primary, out
}

// CameraIntrinsics are the pinhole parameters used to lift a pixel
// observation onto the S² bearing space before it reaches the UKF.
type CameraIntrinsics struct {
	Fx, Fy, Cx, Cy float64
}

// ProjectPixel converts a pixel coordinate (u, v) and its 2×2 covariance
// into an S² bearing observation and the bearing-tangent-space noise
// diag(1/fx², 1/fy²)·Σ_px the update step should use as measurement noise.
func (k CameraIntrinsics) ProjectPixel(u, v float64, pixelCov *mat.SymDense) (S2Point, *mat.SymDense) {
	bearing := NewS2Point(vec3{(u - k.Cx) / k.Fx, (v - k.Cy) / k.Fy, 1})
	noise := mat.NewSymDense(2, nil)
	noise.SetSym(0, 0, pixelCov.At(0, 0)/(k.Fx*k.Fx))
	noise.SetSym(1, 1, pixelCov.At(1, 1)/(k.Fy*k.Fy))
	noise.SetSym(0, 1, pixelCov.At(0, 1)/(k.Fx*k.Fy))
	return bearing, noise
}

// ImagePoint is one visual-landmark bearing observation within a batch: the
// observed unit bearing (already projected from pixel coordinates through
// the camera intrinsics), the known 3D position of that feature in the
// marker's own frame, and the camera's fixed lever arm from the body
// origin.
type ImagePoint struct {
	Bearing         S2Point
	FeatureInMarker vec3
	CameraInBody    vec3
}

// integrateVisualLandmarkBatch runs the augmentation protocol: build the
// augmented manifold around the current primary state and a prior marker
// pose, run one sequential UKF update per image point against the shared
// augmented covariance, then extract the primary block back out.
func integrateVisualLandmarkBatch(primary State, primaryCov *mat.SymDense, markerPositionPrior vec3, markerOrientationPrior quat, markerCovPrior *mat.SymDense, points []ImagePoint, bearingNoise *mat.SymDense, w weights, gate float64) (State, *mat.SymDense, []UpdateResult, error) {
	mean := Manifold(augmentedState{primary: primary, markerPosition: markerPositionPrior, markerOrientation: markerOrientationPrior})
	cov := newAugmentedCovariance(primaryCov, markerCovPrior)

	results := make([]UpdateResult, 0, len(points))
	for _, pt := range points {
		observe := func(m Manifold) (Manifold, error) {
			a := m.(augmentedState)
			return hVisualLandmarkBearing(a.primary, a.markerPosition, a.markerOrientation, pt.FeatureInMarker, pt.CameraInBody), nil
		}
		newMean, newCov, result, err := ukfUpdate(mean, cov, bearingNoise, pt.Bearing, w, gate, observe)
		if err != nil {
			return State{}, nil, results, err
		}
		results = append(results, result)
		if result.Accepted {
			mean, cov = newMean, newCov
		}
	}

	primaryOut, covOut := extractPrimary(mean, cov)
	return primaryOut, covOut, results, nil
}
