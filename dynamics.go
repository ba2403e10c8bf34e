package poseukf

import "math"

// RigidBodyParameters are the static 6-DOF (surge, sway, heave, roll, pitch,
// yaw) rigid-body parameters of the physics dynamic model, supplied at
// filter construction. The online inertia/lin_damping/quad_damping state
// blocks override the {surge,sway,yaw}×{surge,sway,yaw} sub-block of the
// inertia and damping matrices at every effort evaluation; everything else
// (heave/roll/pitch and their cross-terms) stays fixed at these values.
type RigidBodyParameters struct {
	Inertia     [6][6]float64
	LinDamping  [6][6]float64
	QuadDamping [6][6]float64
	// NetWeight is W - B, the vehicle's weight less its buoyancy, in
	// newtons; positive means the vehicle is negatively buoyant.
	NetWeight float64
	// BuoyancyLeverArm is the vector from the body origin to the center of
	// buoyancy, in the body frame, used to compute the restoring torque.
	BuoyancyLeverArm vec3
}

// planarIdx are the 6-DOF indices {surge, sway, yaw} that the online 3×3
// packed sub-states (inertia, lin_damping, quad_damping) override.
var planarIdx = [3]int{0, 1, 5}

func withOnlineParameters(base RigidBodyParameters, inertia, linDamping, quadDamping [9]float64) RigidBodyParameters {
	out := base
	for a := 0; a < 3; a++ {
		for b := 0; b < 3; b++ {
			out.Inertia[planarIdx[a]][planarIdx[b]] = inertia[a*3+b]
			out.LinDamping[planarIdx[a]][planarIdx[b]] = linDamping[a*3+b]
			out.QuadDamping[planarIdx[a]][planarIdx[b]] = quadDamping[a*3+b]
		}
	}
	return out
}

// restoringEffort returns g(orientation), the gravity/buoyancy restoring
// force and torque expressed in the body frame.
func (p RigidBodyParameters) restoringEffort(orientation quat) [6]float64 {
	forceNav := vec3{0, 0, -p.NetWeight}
	forceBody := orientation.rotateInverse(forceNav)
	torqueBody := crossVec3(p.BuoyancyLeverArm, forceBody)
	return [6]float64{forceBody[0], forceBody[1], forceBody[2], torqueBody[0], torqueBody[1], torqueBody[2]}
}

func mulMat6Vec6(m [6][6]float64, v [6]float64) [6]float64 {
	var out [6]float64
	for i := 0; i < 6; i++ {
		sum := 0.0
		for j := 0; j < 6; j++ {
			sum += m[i][j] * v[j]
		}
		out[i] = sum
	}
	return out
}

// calcEfforts implements the physics mode of the hydrodynamic effort
// predictor: M·a + (Dl + Dq·|v|)·v − g(orientation).
func calcEfforts(params RigidBodyParameters, accel, vel [6]float64, orientation quat) [6]float64 {
	ma := mulMat6Vec6(params.Inertia, accel)
	var quadDampedVel [6]float64
	for i := range vel {
		quadDampedVel[i] = vel[i] * math.Abs(vel[i])
	}
	dl := mulMat6Vec6(params.LinDamping, vel)
	dq := mulMat6Vec6(params.QuadDamping, quadDampedVel)
	restoring := params.restoringEffort(orientation)

	var out [6]float64
	for i := 0; i < 6; i++ {
		out[i] = ma[i] + dl[i] + dq[i] - restoring[i]
	}
	return out
}

// EffortPredictor is the narrow black-box interface the filter consumes the
// pre-trained support-vector effort model through. Training and
// serialization stay external collaborators; the filter only ever calls
// Predict.
type EffortPredictor interface {
	// Predict returns the surge, sway and yaw forces/torques given
	// x = [vx, vy, ωz, ax, ay, αz] in the body frame.
	Predict(x [6]float64) ([3]float64, error)
}

// FeatureScaler is the named "scaler" parameter block: per-input-dimension
// standardization applied before the SVR kernel evaluation.
type FeatureScaler struct {
	Mean [6]float64
	Std  [6]float64
}

func (s FeatureScaler) transform(x [6]float64) [6]float64 {
	var out [6]float64
	for i := range x {
		std := s.Std[i]
		if std == 0 {
			std = 1
		}
		out[i] = (x[i] - s.Mean[i]) / std
	}
	return out
}

// SVRAxisModel is one of the three named per-axis parameter blocks
// (params_x, params_y, params_yaw in the original source): an RBF-kernel
// support-vector regressor plus its output denormalisation (fitout_*, s_*).
type SVRAxisModel struct {
	SupportVectors [][6]float64
	DualCoef       []float64
	Intercept      float64
	Gamma          float64
	OutputScale    float64
	OutputOffset   float64
}

func (m SVRAxisModel) valid() bool {
	return len(m.SupportVectors) > 0 && len(m.SupportVectors) == len(m.DualCoef) && m.Gamma > 0
}

func (m SVRAxisModel) predict(x [6]float64) float64 {
	sum := m.Intercept
	for i, sv := range m.SupportVectors {
		d2 := 0.0
		for k := 0; k < 6; k++ {
			diff := sv[k] - x[k]
			d2 += diff * diff
		}
		sum += m.DualCoef[i] * math.Exp(-m.Gamma*d2)
	}
	return sum*m.OutputScale + m.OutputOffset
}

// SVRThreeDOFPredictor is the learned-mode effort predictor: it overrides
// the surge, sway and yaw components of the physics-mode output. The
// original source contains a defective loop that writes to a 10-element
// name array with colliding/missing indices; this implementation instead
// takes the three named axis blocks directly and validates them at
// construction.
type SVRThreeDOFPredictor struct {
	Scaler            FeatureScaler
	Surge, Sway, Yaw SVRAxisModel
}

// NewSVRThreeDOFPredictor validates that the three per-axis parameter blocks
// are present and returns UnsupportedConfiguration if not. The scaler block
// is not validated: a zero Std entry is treated as 1 by the scaler.
func NewSVRThreeDOFPredictor(scaler FeatureScaler, surge, sway, yaw SVRAxisModel) (*SVRThreeDOFPredictor, error) {
	missing := make([]string, 0, 3)
	if !surge.valid() {
		missing = append(missing, "params_x")
	}
	if !sway.valid() {
		missing = append(missing, "params_y")
	}
	if !yaw.valid() {
		missing = append(missing, "params_yaw")
	}
	if len(missing) > 0 {
		return nil, unsupportedConfigurationf("SVR effort predictor missing parameter block(s): %v", missing)
	}
	return &SVRThreeDOFPredictor{Scaler: scaler, Surge: surge, Sway: sway, Yaw: yaw}, nil
}

// Predict implements EffortPredictor.
func (m *SVRThreeDOFPredictor) Predict(x [6]float64) ([3]float64, error) {
	xs := m.Scaler.transform(x)
	return [3]float64{m.Surge.predict(xs), m.Sway.predict(xs), m.Yaw.predict(xs)}, nil
}
