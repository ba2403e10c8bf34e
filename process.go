package poseukf

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// FilterParameter bundles every tunable that the construction-time
// filterContext needs but that isn't itself part of the estimated state: the
// IMU lever arm, the first-order Markov time constants and offsets for each
// online parameter, the water-current model's limits, and the optional gate
// overrides. Zero values are used as given, with these meanings: a time
// constant <= 0 holds its parameter constant, a WaterVelocityLimit <= 0
// disables clamping, and a nil GateOverrides keeps DefaultGateConfig.
type FilterParameter struct {
	IMUInBody vec3

	GyroBiasOffset, GyroBiasTau vec3
	AccBiasOffset, AccBiasTau   vec3

	InertiaTau    float64
	LinDampingTau float64
	QuadDampingTau float64

	WaterVelocityTau   float64
	WaterVelocityLimit float64
	WaterVelocityScale float64

	ADCPBiasTau float64

	AtmosphericPressure float64

	WaterDensityTau float64

	GateOverrides map[MeasurementKind]GateConfig
}

// filterContext bundles the immutable collaborators the process and
// measurement models close over: the geographic projection anchoring the
// nav frame, the static rigid-body parameters, the effort predictor (nil
// selects physics-only mode), the tunables, and the resolved gate table.
type filterContext struct {
	projection *GeographicProjection
	model      RigidBodyParameters
	predictor  EffortPredictor
	params     FilterParameter
	gates      GateTable
	q0         *mat.SymDense
}

// newFilterContext resolves the gate table (defaults overridden per-kind by
// params.GateOverrides) and builds the static base process noise, returning
// the immutable collaborator bundle the predict/update steps share.
func newFilterContext(projection *GeographicProjection, model RigidBodyParameters, predictor EffortPredictor, params FilterParameter, noise ProcessNoiseConfig) *filterContext {
	cfg := DefaultGateConfig()
	for kind, override := range params.GateOverrides {
		cfg[kind] = override
	}
	return &filterContext{
		projection: projection,
		model:      model,
		predictor:  predictor,
		params:     params,
		gates:      NewGateTable(cfg),
		q0:         buildQ0(noise),
	}
}

// nominalSeawaterDensity is the Markov drift's attractor for the
// water_density online parameter, in kg/m³.
const nominalSeawaterDensity = 1027.0

func driftDecay(tau float64, dt float64) float64 {
	if tau <= 0 {
		return 1
	}
	return math.Exp(-dt / tau)
}

// driftStep advances a scalar first-order Markov parameter x toward its
// offset s0 with time constant tau over dt: x' = s0 + (x - s0)·e^(-dt/tau).
// tau <= 0 means "not modeled as drifting" (held constant).
func driftStep(x, s0, tau, dt float64) float64 {
	decay := driftDecay(tau, dt)
	return s0 + (x-s0)*decay
}

func driftStepVec3(x, s0 vec3, tau vec3, dt float64) vec3 {
	var out vec3
	for i := 0; i < 3; i++ {
		out[i] = driftStep(x[i], s0[i], tau[i], dt)
	}
	return out
}

func driftStep9(x [9]float64, tau, dt float64) [9]float64 {
	decay := driftDecay(tau, dt)
	var out [9]float64
	for i := range x {
		out[i] = x[i] * decay
	}
	return out
}

func driftStep2(x [2]float64, tau, dt float64) [2]float64 {
	decay := driftDecay(tau, dt)
	return [2]float64{x[0] * decay, x[1] * decay}
}

func clamp(x, limit float64) float64 {
	if limit <= 0 {
		return x
	}
	if x > limit {
		return limit
	}
	if x < -limit {
		return -limit
	}
	return x
}

// predictEffort evaluates the hydrodynamic effort model: the configured
// EffortPredictor overrides the physics model's surge/sway/yaw rows when
// present, per the spec's unconditional-override decision. The state only
// carries linear velocity/acceleration (no separate angular-rate sub-state),
// so the angular-rate/angular-acceleration (roll, pitch, yaw) components of
// the 6-DOF input are left at zero; this is a documented simplification of
// the general 6-DOF model down to what the estimated state actually holds.
func (c *filterContext) predictEffort(s State) ([6]float64, error) {
	bodyVel := s.Orientation.rotateInverse(s.Velocity)
	bodyAcc := s.Orientation.rotateInverse(s.Acceleration)

	model := withOnlineParameters(c.model, s.Inertia, s.LinDamping, s.QuadDamping)
	physics := calcEfforts(model, [6]float64{bodyAcc[0], bodyAcc[1], bodyAcc[2], 0, 0, 0},
		[6]float64{bodyVel[0], bodyVel[1], bodyVel[2], 0, 0, 0}, s.Orientation)
	if c.predictor == nil {
		return physics, nil
	}
	x := [6]float64{bodyVel[0], bodyVel[1], 0, bodyAcc[0], bodyAcc[1], 0}
	learned, err := c.predictor.Predict(x)
	if err != nil {
		return [6]float64{}, err
	}
	out := physics
	out[0], out[1], out[5] = learned[0], learned[1], learned[2]
	return out, nil
}

// Predict implements the discretized process model: it integrates the
// kinematic core (position from velocity, orientation from the gyro-derived
// body rotation rate, velocity from acceleration), applies the first-order Markov drift to every online
// parameter block, and builds the Δt-scaled, orientation- and
// water-velocity-modulated process noise added during the UKF predict step.
// gyroMeasurement is the last cached raw gyroscope reading in the body
// frame; rotationRate below subtracts off the estimated bias and the
// Earth-rotation coupling to get the vehicle's true angular rate.
func (c *filterContext) Predict(s State, dt float64, gyroMeasurement vec3) (State, *mat.SymDense, error) {
	if dt <= 0 {
		return s, nil, invalidMeasurementf("predict step requires dt > 0, got %v", dt)
	}
	out := s
	out.Position = addVec3(s.Position, scaleVec3(s.Velocity, dt))
	omega := c.rotationRate(s, gyroMeasurement)
	out.Orientation = boxplusSO3(s.Orientation, scaleVec3(omega, dt))
	out.Velocity = addVec3(s.Velocity, scaleVec3(s.Acceleration, dt))

	out.BiasGyro = driftStepVec3(s.BiasGyro, c.params.GyroBiasOffset, c.params.GyroBiasTau, dt)
	out.BiasAcc = driftStepVec3(s.BiasAcc, c.params.AccBiasOffset, c.params.AccBiasTau, dt)
	out.Inertia = driftStep9(s.Inertia, c.params.InertiaTau, dt)
	out.LinDamping = driftStep9(s.LinDamping, c.params.LinDampingTau, dt)
	out.QuadDamping = driftStep9(s.QuadDamping, c.params.QuadDampingTau, dt)
	out.BiasADCP = driftStep2(s.BiasADCP, c.params.ADCPBiasTau, dt)
	out.WaterDensity = driftStep(s.WaterDensity, nominalSeawaterDensity, c.params.WaterDensityTau, dt)

	decay := driftDecay(c.params.WaterVelocityTau, dt)
	out.WaterVel = [2]float64{clamp(s.WaterVel[0]*decay, c.params.WaterVelocityLimit), clamp(s.WaterVel[1]*decay, c.params.WaterVelocityLimit)}
	out.WaterVelBelow = [2]float64{clamp(s.WaterVelBelow[0]*decay, c.params.WaterVelocityLimit), clamp(s.WaterVelBelow[1]*decay, c.params.WaterVelocityLimit)}

	if !isFinite(out.Orientation.w) {
		return State{}, nil, errNumericalFailure("predict produced a non-finite orientation")
	}

	q := c.modulatedQ(s, dt)
	return out, q, nil
}

// modulatedQ applies the two runtime modulations to the static base process
// noise and scales the result by Δt²: both water-velocity blocks get an added
// σ_wv²·‖v_scaled‖²·Δt (σ_wv = WaterVelocityScale, v_scaled = (vx, vy, 10·vz)),
// and the orientation block is rotated into the nav frame (so the filter's
// attitude uncertainty tracks the vehicle's own heading rather than a fixed
// nav-frame ellipse).
func (c *filterContext) modulatedQ(s State, dt float64) *mat.SymDense {
	n, _ := c.q0.Dims()
	q := mat.NewSymDense(n, nil)
	q.CopySym(c.q0)

	vScaled := vec3{s.Velocity[0], s.Velocity[1], 10 * s.Velocity[2]}
	waterVelNoise := c.params.WaterVelocityScale * c.params.WaterVelocityScale * dotVec3(vScaled, vScaled) * dt
	for _, i := range []int{offWaterVel, offWaterVel + 1, offWaterBel, offWaterBel + 1} {
		q.SetSym(i, i, q.At(i, i)+waterVelNoise)
	}

	dt2 := dt * dt
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			q.SetSym(i, j, q.At(i, j)*dt2)
		}
	}

	rot := s.Orientation.toMatrix()
	orientBlock := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			orientBlock.Set(i, j, q.At(offOrient+i, offOrient+j))
		}
	}
	rotM := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rotM.Set(i, j, rot[i][j])
		}
	}
	var tmp, rotated mat.Dense
	tmp.Mul(rotM, orientBlock)
	rotated.Mul(&tmp, rotM.T())
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			q.SetSym(offOrient+i, offOrient+j, rotated.At(i, j))
		}
	}

	return q
}

// rotationRate returns the vehicle's true angular rate in the body frame
// given a raw gyroscope reading: the reading less the estimated gyro bias
// and the Earth-rotation vector coupled into the body frame through the
// current orientation estimate. Latitude is taken from the state's current
// estimated position (via the projection), not the fixed reference latitude,
// so the Earth-rotation coupling tracks the vehicle rather than its launch
// point.
func (c *filterContext) rotationRate(s State, gyroMeasurement vec3) vec3 {
	latitude, _ := c.projection.NavToWorld(s.Position[0], s.Position[1])
	nav := EarthRotationNav(latitude)
	earthInBody := s.Orientation.rotateInverse(nav)
	return subVec3(subVec3(gyroMeasurement, s.BiasGyro), earthInBody)
}
