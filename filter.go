package poseukf

import (
	"gonum.org/v1/gonum/mat"

	"github.com/sirupsen/logrus"
)

// LocationConfig anchors the filter's navigation frame and fixes the sensor
// lever arms that never drift.
type LocationConfig struct {
	ReferenceLatitude  float64
	ReferenceLongitude float64
	IMUInBody          vec3
	CameraInBody       vec3
}

// PoseFilter is the estimation core: a UKF running over the product
// manifold in State, with one Integrate<Kind> entry point per measurement
// kind and a Predict entry point advancing the process model.
type PoseFilter struct {
	ctx *filterContext

	state State
	cov   *mat.SymDense

	unscented UnscentedParameters

	lastGyro vec3

	// poisoned is set once a Predict call returns NumericalFailure; every
	// subsequent call fails fast rather than continuing to operate on a
	// covariance that's no longer trustworthy.
	poisoned bool

	log *logrus.Entry
}

// NewPoseFilter validates the supplied collaborators and returns a filter
// seeded at initialState/initialCov. It returns UnsupportedConfiguration if
// initialCov's dimension doesn't match State's or if initialCov has
// non-finite entries. predictor is not checked here: the type system already
// guarantees a non-nil predictor implements EffortPredictor.
func NewPoseFilter(initialState State, initialCov *mat.SymDense, location LocationConfig, model RigidBodyParameters, params FilterParameter, predictor EffortPredictor, noise ProcessNoiseConfig) (*PoseFilter, error) {
	n, m := initialCov.Dims()
	if err := checkDims(n, m, StateDim, StateDim, "initialCov", "State", rowsAndcols); err != nil {
		return nil, unsupportedConfigurationf("%s", err)
	}
	if !isFiniteSym(initialCov) {
		return nil, unsupportedConfigurationf("initial covariance contains non-finite entries")
	}
	params.IMUInBody = location.IMUInBody
	proj := NewGeographicProjection(location.ReferenceLatitude, location.ReferenceLongitude)
	ctx := newFilterContext(proj, model, predictor, params, noise)

	return &PoseFilter{
		ctx:       ctx,
		state:     initialState,
		cov:       initialCov,
		unscented: DefaultUnscentedParameters(),
		log:       logrus.WithField("component", "poseukf"),
	}, nil
}

// State returns the filter's current state estimate.
func (f *PoseFilter) State() State { return f.state }

// Covariance returns the filter's current state covariance.
func (f *PoseFilter) Covariance() *mat.SymDense { return f.cov }

// RotationRate returns the vehicle's last-computed angular rate in the body
// frame, cached from the most recent gyroscope reading rather than carried
// as part of the estimated state.
func (f *PoseFilter) RotationRate() vec3 {
	return f.ctx.rotationRate(f.state, f.lastGyro)
}

// Predict advances the filter by Δt seconds using the process model. A
// NumericalFailure here poisons the filter: all further calls return an
// error without attempting to use the covariance again.
func (f *PoseFilter) Predict(dt float64) error {
	if f.poisoned {
		return numericalFailuref(nil, "filter is poisoned by a prior predict failure")
	}
	// Only a NumericalFailure poisons the filter; any other rejection (e.g. a
	// non-positive dt) leaves it usable.
	fail := func(err error) error {
		if fe, ok := err.(*FilterError); ok && fe.Kind == NumericalFailure {
			f.poisoned = true
		}
		return err
	}
	w := newWeights(StateDim, f.unscented)
	gyro := f.lastGyro
	zeroNoise := mat.NewSymDense(StateDim, nil)
	newMean, newCov, err := ukfPredict(f.state, f.cov, zeroNoise, w, func(m Manifold) (Manifold, error) {
		s := m.(State)
		out, _, err := f.ctx.Predict(s, dt, gyro)
		return out, err
	})
	if err != nil {
		return fail(err)
	}
	_, q, err := f.ctx.Predict(f.state, dt, gyro)
	if err != nil {
		return fail(err)
	}
	n, _ := newCov.Dims()
	sum := mat.NewSymDense(n, nil)
	sum.AddSym(newCov, q)
	clamped, err := clampPSD(sum)
	if err != nil {
		return fail(err)
	}
	f.state, f.cov = newMean.(State), clamped
	return nil
}

func (f *PoseFilter) checkAlive() error {
	if f.poisoned {
		return numericalFailuref(nil, "filter is poisoned by a prior predict failure")
	}
	return nil
}

// integrate is the shared update entry point: it builds sigma points from
// the current (state, cov), applies observe/measurementNoise/gate, logs the
// outcome per the InvalidMeasurement/GateRejection diagnostic levels, and
// commits the result if accepted.
func (f *PoseFilter) integrate(kind MeasurementKind, actual Manifold, measurementNoise *mat.SymDense, observe func(State) (Manifold, error)) (UpdateResult, error) {
	return f.integrateMasked(kind, actual, measurementNoise, nil, observe)
}

// integrateMasked is integrate with an optional state-block restriction
// (see ukfUpdateMasked); mask == nil updates every state component.
func (f *PoseFilter) integrateMasked(kind MeasurementKind, actual Manifold, measurementNoise *mat.SymDense, mask []bool, observe func(State) (Manifold, error)) (UpdateResult, error) {
	if err := f.checkAlive(); err != nil {
		return UpdateResult{}, err
	}
	if !IsRecognisedKind(kind) {
		return UpdateResult{}, invalidMeasurementf("unrecognised measurement kind %s", kind)
	}
	if !isFiniteVecSlice(actual) {
		f.log.WithFields(logrus.Fields{"kind": kind.String(), "dim": actual.Dim()}).Warn("dropping non-finite measurement")
		return UpdateResult{}, invalidMeasurementf("%s measurement contains non-finite values", kind)
	}
	var eig mat.EigenSym
	validCov := isFiniteSym(measurementNoise) && eig.Factorize(measurementNoise, false)
	if validCov {
		for _, v := range eig.Values(nil) {
			if v < -1e-10 {
				validCov = false
			}
		}
	}
	if !validCov {
		f.log.WithFields(logrus.Fields{"kind": kind.String(), "dim": actual.Dim()}).Warn("dropping measurement with non-finite or indefinite covariance")
		return UpdateResult{}, invalidMeasurementf("%s measurement covariance is non-finite or not positive semi-definite", kind)
	}
	w := newWeights(StateDim, f.unscented)
	threshold := f.ctx.gates.threshold(kind)
	newMean, newCov, result, err := ukfUpdateMasked(f.state, f.cov, measurementNoise, actual, w, threshold, mask, func(m Manifold) (Manifold, error) {
		return observe(m.(State))
	})
	if err != nil {
		return UpdateResult{}, err
	}
	if !result.Accepted {
		f.log.WithFields(logrus.Fields{"kind": kind.String(), "d2": result.MahalanobisSquared, "gate": result.Gate}).Debug("rejected measurement by innovation gate")
		return result, nil
	}
	f.state, f.cov = newMean.(State), newCov
	return result, nil
}

// velocityOnlyMask restricts a Kalman correction to the state's velocity
// sub-block, leaving position, orientation, biases and every online
// parameter untouched.
func velocityOnlyMask() []bool {
	mask := make([]bool, StateDim)
	for i := 0; i < 3; i++ {
		mask[offVelocity+i] = true
	}
	return mask
}

func isFiniteVecSlice(m Manifold) bool {
	switch v := m.(type) {
	case VectorManifold:
		for _, x := range v {
			if !isFinite(x) {
				return false
			}
		}
	case S2Point:
		return isFinite(v.v[0]) && isFinite(v.v[1]) && isFinite(v.v[2])
	}
	return true
}

// IntegrateGeographicPosition fuses a geodetic lat/lon fix. Per the
// measurement-integration dispatcher, the fix is first projected into the
// nav frame and corrected for the GPS antenna's lever arm (gpsInBody,
// rotated by the current orientation estimate), then folded into the same
// predicted-observation space as IntegrateXYPosition.
func (f *PoseFilter) IntegrateGeographicPosition(lat, lon float64, gpsInBody vec3, noise *mat.SymDense) (UpdateResult, error) {
	x, y := f.ctx.projection.WorldToNav(lat, lon)
	leverArmNav := f.state.Orientation.rotate(gpsInBody)
	actual := VectorManifold{x - leverArmNav[0], y - leverArmNav[1]}
	return f.integrate(KindGeographicPosition, actual, noise, func(s State) (Manifold, error) {
		return hXYPosition(s), nil
	})
}

// IntegrateXYPosition fuses a nav-frame horizontal position fix.
func (f *PoseFilter) IntegrateXYPosition(x, y float64, noise *mat.SymDense) (UpdateResult, error) {
	return f.integrate(KindXYPosition, VectorManifold{x, y}, noise, func(s State) (Manifold, error) {
		return hXYPosition(s), nil
	})
}

// IntegrateZPosition fuses a nav-frame depth fix.
func (f *PoseFilter) IntegrateZPosition(z float64, noise *mat.SymDense) (UpdateResult, error) {
	return f.integrate(KindZPosition, VectorManifold{z}, noise, func(s State) (Manifold, error) {
		return hZPosition(s), nil
	})
}

// IntegratePressure fuses an absolute pressure reading.
func (f *PoseFilter) IntegratePressure(pressure float64, noise *mat.SymDense) (UpdateResult, error) {
	return f.integrate(KindPressure, VectorManifold{pressure}, noise, func(s State) (Manifold, error) {
		return hPressure(s, f.ctx.params.AtmosphericPressure), nil
	})
}

// IntegrateRotationRate caches a raw gyroscope reading for use by Predict
// and RotationRate. It has no innovation and never rejects.
func (f *PoseFilter) IntegrateRotationRate(gyro vec3) error {
	if err := f.checkAlive(); err != nil {
		return err
	}
	if !isFinite(gyro[0]) || !isFinite(gyro[1]) || !isFinite(gyro[2]) {
		return invalidMeasurementf("rotation rate measurement contains non-finite values")
	}
	f.lastGyro = gyro
	return nil
}

// IntegrateVelocity fuses a body-frame DVL velocity reading.
func (f *PoseFilter) IntegrateVelocity(vel vec3, noise *mat.SymDense) (UpdateResult, error) {
	return f.integrate(KindVelocity, VectorManifold{vel[0], vel[1], vel[2]}, noise, func(s State) (Manifold, error) {
		return hVelocity(s), nil
	})
}

// IntegrateAcceleration fuses a body-frame accelerometer reading.
func (f *PoseFilter) IntegrateAcceleration(acc vec3, noise *mat.SymDense) (UpdateResult, error) {
	return f.integrate(KindAcceleration, VectorManifold{acc[0], acc[1], acc[2]}, noise, func(s State) (Manifold, error) {
		return hAcceleration(s), nil
	})
}

// IntegrateBodyEfforts fuses a measured 6-DOF thruster/control effort
// vector against the hydrodynamic effort model.
func (f *PoseFilter) IntegrateBodyEfforts(efforts [6]float64, noise *mat.SymDense) (UpdateResult, error) {
	return f.integrate(KindBodyEfforts, VectorManifold(efforts[:]), noise, func(s State) (Manifold, error) {
		return hBodyEfforts(f.ctx, s)
	})
}

// IntegrateBodyEffortsVelocityOnly fuses a measured 6-DOF effort vector the
// same way IntegrateBodyEfforts does, but restricts the Kalman correction to
// the velocity sub-block: every other state component (position,
// orientation, biases, online parameters) is left untouched. Matches the
// original source's constrainVelocity/only_affect_velocity body-effort mode,
// used during phases (docking, thruster saturation) where the torque/heave
// rows of the effort model are known to be unreliable.
func (f *PoseFilter) IntegrateBodyEffortsVelocityOnly(efforts [6]float64, noise *mat.SymDense) (UpdateResult, error) {
	return f.integrateMasked(KindBodyEfforts, VectorManifold(efforts[:]), noise, velocityOnlyMask(), func(s State) (Manifold, error) {
		return hBodyEfforts(f.ctx, s)
	})
}

// IntegrateWaterVelocity fuses one ADCP cell's current reading, weighted
// between the above- and below-vehicle water-velocity states by
// cellWeighting.
func (f *PoseFilter) IntegrateWaterVelocity(current [2]float64, cellWeighting float64, noise *mat.SymDense) (UpdateResult, error) {
	return f.integrate(KindWaterVelocity, VectorManifold{current[0], current[1]}, noise, func(s State) (Manifold, error) {
		return hWaterVelocity(s, cellWeighting), nil
	})
}

// IntegrateVisualLandmarkBatch runs the augmentation protocol for a batch of
// bearing observations of one marker, committing the corrected primary
// state/covariance in place and returning one UpdateResult per image point.
func (f *PoseFilter) IntegrateVisualLandmarkBatch(markerPositionPrior vec3, markerOrientationPrior quat, markerCovPrior *mat.SymDense, points []ImagePoint, bearingNoise *mat.SymDense) ([]UpdateResult, error) {
	if err := f.checkAlive(); err != nil {
		return nil, err
	}
	w := newWeights(augmentedStateDim, f.unscented)
	gate := f.ctx.gates.threshold(KindVisualLandmark)
	newState, newCov, results, err := integrateVisualLandmarkBatch(f.state, f.cov, markerPositionPrior, markerOrientationPrior, markerCovPrior, points, bearingNoise, w, gate)
	if err != nil {
		return results, err
	}
	f.state, f.cov = newState, newCov
	return results, nil
}
