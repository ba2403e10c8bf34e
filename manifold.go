package poseukf

import "math"

// Manifold is the capability every point the UKF engine operates on must
// provide: a tangent dimension and the retraction/lifting pair. State, the
// augmented state built for visual-landmark updates, and every measurement
// space (plain vectors as well as the S² bearing space) implement it. This
// replaces the macro-generated composite of the original source with an
// explicit, per-block dispatch.
type Manifold interface {
	Dim() int
	BoxPlus(delta []float64) Manifold
	BoxMinus(other Manifold) []float64
}

// Block dimensions and offsets of the primary filter state, in the order
// laid out in the data model. Only the orientation block is curved (SO(3));
// everything else -- including the nominally-positive gravity and
// water_density scalars -- retracts by plain addition, per the data model's
// choice to parameterise them as unconstrained scalars.
const (
	offPosition = 0
	offOrient   = offPosition + 3
	offVelocity = offOrient + 3
	offAccel    = offVelocity + 3
	offBiasGyro = offAccel + 3
	offBiasAcc  = offBiasGyro + 3
	offGravity  = offBiasAcc + 3
	offInertia  = offGravity + 1
	offLinDamp  = offInertia + 9
	offQuadDamp = offLinDamp + 9
	offWaterVel = offQuadDamp + 9
	offWaterBel = offWaterVel + 2
	offBiasADCP = offWaterBel + 2
	offWaterRho = offBiasADCP + 2

	// StateDim is the tangent dimension N of the primary filter state.
	StateDim = offWaterRho + 1
)

// State is the filter's product-manifold state: a point mixing vector
// sub-states, SO(3) (orientation) and nothing else at the primary level --
// the S² geometry only shows up in the measurement space of visual-landmark
// updates. The marker orientation carried by the augmented state in
// augment.go is SO(3), like the vehicle orientation.
type State struct {
	Position     vec3
	Orientation  quat
	Velocity     vec3
	Acceleration vec3
	BiasGyro     vec3
	BiasAcc      vec3
	Gravity      float64
	Inertia      [9]float64
	LinDamping   [9]float64
	QuadDamping  [9]float64
	WaterVel     [2]float64
	WaterVelBelow [2]float64
	BiasADCP     [2]float64
	WaterDensity float64
}

// Dim implements Manifold.
func (State) Dim() int { return StateDim }

// BoxPlus implements Manifold.
func (s State) BoxPlus(delta []float64) Manifold {
	return s.boxplus(delta)
}

// BoxMinus implements Manifold.
func (s State) BoxMinus(other Manifold) []float64 {
	return s.boxminus(other.(State))
}

func (s State) boxplus(d []float64) State {
	out := s
	out.Position = addVec3(s.Position, vec3{d[offPosition], d[offPosition+1], d[offPosition+2]})
	out.Orientation = boxplusSO3(s.Orientation, vec3{d[offOrient], d[offOrient+1], d[offOrient+2]})
	out.Velocity = addVec3(s.Velocity, vec3{d[offVelocity], d[offVelocity+1], d[offVelocity+2]})
	out.Acceleration = addVec3(s.Acceleration, vec3{d[offAccel], d[offAccel+1], d[offAccel+2]})
	out.BiasGyro = addVec3(s.BiasGyro, vec3{d[offBiasGyro], d[offBiasGyro+1], d[offBiasGyro+2]})
	out.BiasAcc = addVec3(s.BiasAcc, vec3{d[offBiasAcc], d[offBiasAcc+1], d[offBiasAcc+2]})
	out.Gravity = s.Gravity + d[offGravity]
	for i := 0; i < 9; i++ {
		out.Inertia[i] = s.Inertia[i] + d[offInertia+i]
		out.LinDamping[i] = s.LinDamping[i] + d[offLinDamp+i]
		out.QuadDamping[i] = s.QuadDamping[i] + d[offQuadDamp+i]
	}
	for i := 0; i < 2; i++ {
		out.WaterVel[i] = s.WaterVel[i] + d[offWaterVel+i]
		out.WaterVelBelow[i] = s.WaterVelBelow[i] + d[offWaterBel+i]
		out.BiasADCP[i] = s.BiasADCP[i] + d[offBiasADCP+i]
	}
	out.WaterDensity = s.WaterDensity + d[offWaterRho]
	return out
}

func (s State) boxminus(base State) []float64 {
	d := make([]float64, StateDim)
	p := subVec3(s.Position, base.Position)
	d[offPosition], d[offPosition+1], d[offPosition+2] = p[0], p[1], p[2]
	o := boxminusSO3(s.Orientation, base.Orientation)
	d[offOrient], d[offOrient+1], d[offOrient+2] = o[0], o[1], o[2]
	v := subVec3(s.Velocity, base.Velocity)
	d[offVelocity], d[offVelocity+1], d[offVelocity+2] = v[0], v[1], v[2]
	a := subVec3(s.Acceleration, base.Acceleration)
	d[offAccel], d[offAccel+1], d[offAccel+2] = a[0], a[1], a[2]
	bg := subVec3(s.BiasGyro, base.BiasGyro)
	d[offBiasGyro], d[offBiasGyro+1], d[offBiasGyro+2] = bg[0], bg[1], bg[2]
	ba := subVec3(s.BiasAcc, base.BiasAcc)
	d[offBiasAcc], d[offBiasAcc+1], d[offBiasAcc+2] = ba[0], ba[1], ba[2]
	d[offGravity] = s.Gravity - base.Gravity
	for i := 0; i < 9; i++ {
		d[offInertia+i] = s.Inertia[i] - base.Inertia[i]
		d[offLinDamp+i] = s.LinDamping[i] - base.LinDamping[i]
		d[offQuadDamp+i] = s.QuadDamping[i] - base.QuadDamping[i]
	}
	for i := 0; i < 2; i++ {
		d[offWaterVel+i] = s.WaterVel[i] - base.WaterVel[i]
		d[offWaterBel+i] = s.WaterVelBelow[i] - base.WaterVelBelow[i]
		d[offBiasADCP+i] = s.BiasADCP[i] - base.BiasADCP[i]
	}
	d[offWaterRho] = s.WaterDensity - base.WaterDensity
	return d
}

// VectorManifold is the Euclidean manifold used for every measurement space
// that is a plain vector (position, velocity, pressure, efforts, ...).
type VectorManifold []float64

// Dim implements Manifold.
func (v VectorManifold) Dim() int { return len(v) }

// BoxPlus implements Manifold.
func (v VectorManifold) BoxPlus(delta []float64) Manifold {
	out := make(VectorManifold, len(v))
	for i := range v {
		out[i] = v[i] + delta[i]
	}
	return out
}

// BoxMinus implements Manifold.
func (v VectorManifold) BoxMinus(other Manifold) []float64 {
	o := other.(VectorManifold)
	d := make([]float64, len(v))
	for i := range v {
		d[i] = v[i] - o[i]
	}
	return d
}

// S2Point is a unit vector in ℝ³ used as the geometry of bearing
// observations. Its tangent space has dimension 2: any vector orthogonal to
// the point itself.
type S2Point struct {
	v vec3
}

// NewS2Point normalizes v onto the unit sphere.
func NewS2Point(v vec3) S2Point {
	n := normVec3(v)
	if n < 1e-15 {
		return S2Point{vec3{0, 0, 1}}
	}
	return S2Point{scaleVec3(v, 1/n)}
}

// Dim implements Manifold.
func (S2Point) Dim() int { return 2 }

// tangentBasis returns two vectors orthogonal to p.v and to each other,
// spanning the tangent plane at p.
func (p S2Point) tangentBasis() (e1, e2 vec3) {
	ref := vec3{1, 0, 0}
	if math.Abs(p.v[0]) > 0.9 {
		ref = vec3{0, 1, 0}
	}
	e1n := crossVec3(p.v, ref)
	e1n = scaleVec3(e1n, 1/normVec3(e1n))
	e2n := crossVec3(p.v, e1n)
	return e1n, e2n
}

// BoxPlus moves along the great circle by ‖delta‖ in direction delta's
// projection onto the tangent plane (direction delta/‖delta‖ expressed in
// the e1,e2 basis), per the spherical retraction in the data model.
func (p S2Point) BoxPlus(delta []float64) Manifold {
	e1, e2 := p.tangentBasis()
	tangent := addVec3(scaleVec3(e1, delta[0]), scaleVec3(e2, delta[1]))
	angle := normVec3(tangent)
	if angle < 1e-12 {
		return p
	}
	dir := scaleVec3(tangent, 1/angle)
	rotated := addVec3(scaleVec3(p.v, math.Cos(angle)), scaleVec3(dir, math.Sin(angle)))
	return NewS2Point(rotated)
}

// BoxMinus is the sphere's logarithm: it returns the tangent vector (in the
// base point's e1,e2 basis) that BoxPlus would need to reach p from base.
func (p S2Point) BoxMinus(other Manifold) []float64 {
	base := other.(S2Point)
	e1, e2 := base.tangentBasis()
	cosAngle := dotVec3(base.v, p.v)
	if cosAngle > 1 {
		cosAngle = 1
	} else if cosAngle < -1 {
		cosAngle = -1
	}
	angle := math.Acos(cosAngle)
	// Component of p.v orthogonal to base.v, scaled back out to unit length.
	orth := subVec3(p.v, scaleVec3(base.v, cosAngle))
	orthNorm := normVec3(orth)
	if orthNorm < 1e-12 || angle < 1e-12 {
		return []float64{0, 0}
	}
	dir := scaleVec3(orth, angle/orthNorm)
	return []float64{dotVec3(dir, e1), dotVec3(dir, e2)}
}
