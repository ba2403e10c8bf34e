package poseukf

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func newTestFilter(t *testing.T) *PoseFilter {
	t.Helper()
	initial := State{Gravity: 9.81, WaterDensity: 1025, Orientation: identityQuat()}
	cov := diagCov(StateDim, 0.01)
	location := LocationConfig{ReferenceLatitude: 0.5, ReferenceLongitude: 0.2}
	var noise ProcessNoiseConfig
	noise.Position = vec3{1e-6, 1e-6, 1e-6}
	noise.Orientation = vec3{1e-6, 1e-6, 1e-6}
	noise.Velocity = vec3{1e-4, 1e-4, 1e-4}
	f, err := NewPoseFilter(initial, cov, location, RigidBodyParameters{}, FilterParameter{}, nil, noise)
	if err != nil {
		t.Fatalf("unexpected construction error: %v", err)
	}
	return f
}

func TestNewPoseFilterRejectsMismatchedCovarianceDims(t *testing.T) {
	bad := mat.NewSymDense(3, nil)
	_, err := NewPoseFilter(State{}, bad, LocationConfig{}, RigidBodyParameters{}, FilterParameter{}, nil, ProcessNoiseConfig{})
	if err == nil {
		t.Fatal("expected an error for mismatched covariance dimension")
	}
	fe, ok := err.(*FilterError)
	if !ok || fe.Kind != UnsupportedConfiguration {
		t.Fatalf("expected UnsupportedConfiguration, got %v", err)
	}
}

func TestNewPoseFilterRejectsNonFiniteCovariance(t *testing.T) {
	cov := mat.NewSymDense(StateDim, nil)
	cov.SetSym(0, 0, math.NaN())
	_, err := NewPoseFilter(State{}, cov, LocationConfig{}, RigidBodyParameters{}, FilterParameter{}, nil, ProcessNoiseConfig{})
	if err == nil {
		t.Fatal("expected an error for a non-finite initial covariance")
	}
}

func TestPredictStaticHoldKeepsPositionNearZero(t *testing.T) {
	f := newTestFilter(t)
	for i := 0; i < 10; i++ {
		if err := f.Predict(0.1); err != nil {
			t.Fatalf("unexpected predict error at step %d: %v", i, err)
		}
	}
	pos := f.State().Position
	if normVec3(pos) > 1e-6 {
		t.Fatalf("a vehicle at rest should not drift in position, got %v", pos)
	}
}

func TestPredictRejectsNonPositiveDt(t *testing.T) {
	f := newTestFilter(t)
	if err := f.Predict(0); err == nil {
		t.Fatal("expected an error for dt=0")
	}
	if f.poisoned {
		t.Fatal("an invalid-dt rejection at the process-model level should not poison the filter")
	}
}

func TestIntegrateXYPositionMovesTowardMeasurement(t *testing.T) {
	f := newTestFilter(t)
	noise := diagCov(2, 0.01)
	result, err := f.IntegrateXYPosition(0.1, 0.05, noise)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Accepted {
		t.Fatalf("a consistent XY fix should be accepted, got %+v", result)
	}
	pos := f.State().Position
	if pos[0] <= 0 || pos[1] <= 0 {
		t.Fatalf("position should move toward the fix, got %v", pos)
	}
}

func TestIntegrateXYPositionRejectsGrossOutlier(t *testing.T) {
	f := newTestFilter(t)
	tight := diagCov(2, 1e-8)
	result, err := f.IntegrateXYPosition(100000, 100000, tight)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Accepted {
		t.Fatalf("a gross outlier against a tight prior and tight noise should be gate-rejected")
	}
	pos := f.State().Position
	if normVec3(pos) > 1e-6 {
		t.Fatalf("a rejected measurement should not move the state, got %v", pos)
	}
}

func TestIntegratePressureFusesDepth(t *testing.T) {
	f := newTestFilter(t)
	noise := diagCov(1, 1.0)
	atmospheric := 101325.0
	f.ctx.params.AtmosphericPressure = atmospheric
	// 5m depth in seawater.
	p := atmospheric + 1025*9.80665*5
	result, err := f.IntegratePressure(p, noise)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Accepted {
		t.Fatalf("a consistent pressure reading should be accepted")
	}
	if f.State().Position[2] >= 0 {
		t.Fatalf("fusing a positive-depth pressure reading should push Z negative, got %v", f.State().Position[2])
	}
}

func TestIntegrateRotationRateCachesGyroAndHasNoInnovation(t *testing.T) {
	f := newTestFilter(t)
	before := f.Covariance()
	gyro := vec3{0.01, -0.02, 0.03}
	if err := f.IntegrateRotationRate(gyro); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.lastGyro != gyro {
		t.Fatalf("lastGyro = %v, want %v", f.lastGyro, gyro)
	}
	after := f.Covariance()
	n, _ := before.Dims()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if before.At(i, j) != after.At(i, j) {
				t.Fatalf("covariance should be untouched by a rotation-rate cache update")
			}
		}
	}
}

func TestIntegrateRotationRateRejectsNonFinite(t *testing.T) {
	f := newTestFilter(t)
	err := f.IntegrateRotationRate(vec3{math.NaN(), 0, 0})
	if err == nil {
		t.Fatal("expected an error for a non-finite gyro reading")
	}
}

func TestPoisonedFilterRejectsFurtherCalls(t *testing.T) {
	f := newTestFilter(t)
	f.poisoned = true
	if err := f.Predict(0.1); err == nil {
		t.Fatal("a poisoned filter should reject Predict")
	}
	if _, err := f.IntegrateXYPosition(0, 0, diagCov(2, 1)); err == nil {
		t.Fatal("a poisoned filter should reject Integrate calls")
	}
}

func TestIntegrateBodyEffortsVelocityOnlyLeavesOtherBlocksUntouched(t *testing.T) {
	var model RigidBodyParameters
	initial := State{Gravity: 9.81, WaterDensity: 1025, Orientation: identityQuat(), Velocity: vec3{0.2, -0.1, 0}}
	// LinDamping is packed surge/sway/yaw row-major; indices 0 and 4 are the
	// surge-surge and sway-sway diagonal entries withOnlineParameters
	// splices into the physics model's planar sub-block.
	initial.LinDamping[0] = 1
	initial.LinDamping[4] = 1
	cov := diagCov(StateDim, 0.01)
	location := LocationConfig{ReferenceLatitude: 0.5, ReferenceLongitude: 0.2}
	var noiseCfg ProcessNoiseConfig
	noiseCfg.Velocity = vec3{1e-4, 1e-4, 1e-4}
	f, err := NewPoseFilter(initial, cov, location, model, FilterParameter{}, nil, noiseCfg)
	if err != nil {
		t.Fatalf("unexpected construction error: %v", err)
	}

	before := f.State()
	var efforts [6]float64
	efforts[0], efforts[1] = 50, -50
	noise := diagCov(6, 1.0)

	result, err := f.IntegrateBodyEffortsVelocityOnly(efforts, noise)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Accepted {
		t.Fatalf("body-effort updates gate accept-all, expected Accepted=true, got %+v", result)
	}

	d := f.State().boxminus(before)
	velocityMoved := false
	for i, v := range d {
		if i >= offVelocity && i < offVelocity+3 {
			if math.Abs(v) > 1e-9 {
				velocityMoved = true
			}
			continue
		}
		if math.Abs(v) > 1e-9 {
			t.Fatalf("velocity-only update moved state component %d by %v, want 0", i, v)
		}
	}
	if !velocityMoved {
		t.Fatalf("expected the velocity block to move given a non-trivial effort measurement")
	}
}

func TestIntegrateUnrecognisedKindIsRejectedByIntegrate(t *testing.T) {
	f := newTestFilter(t)
	_, err := f.integrate(MeasurementKind(250), VectorManifold{0}, diagCov(1, 1), func(s State) (Manifold, error) {
		return VectorManifold{0}, nil
	})
	if err == nil {
		t.Fatal("expected an error for an unrecognised measurement kind")
	}
	fe, ok := err.(*FilterError)
	if !ok || fe.Kind != InvalidMeasurement {
		t.Fatalf("expected InvalidMeasurement, got %v", err)
	}
}
