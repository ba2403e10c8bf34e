package poseukf

import "math"

// quat is a unit quaternion (w, x, y, z) representing the IMU-to-navigation
// rotation. Stored in its own type rather than pulled in from a third-party
// quaternion package because the exp/log maps below are tied directly to the
// boxplus/boxminus convention the rest of the state uses: q' = q ⊗ exp(δ),
// never exp(δ) ⊗ q.
type quat struct {
	w, x, y, z float64
}

func identityQuat() quat {
	return quat{w: 1}
}

func (q quat) normalized() quat {
	n := math.Sqrt(q.w*q.w + q.x*q.x + q.y*q.y + q.z*q.z)
	if n == 0 {
		return identityQuat()
	}
	return quat{q.w / n, q.x / n, q.y / n, q.z / n}
}

func (q quat) conj() quat {
	return quat{q.w, -q.x, -q.y, -q.z}
}

func (q quat) mul(r quat) quat {
	return quat{
		w: q.w*r.w - q.x*r.x - q.y*r.y - q.z*r.z,
		x: q.w*r.x + q.x*r.w + q.y*r.z - q.z*r.y,
		y: q.w*r.y - q.x*r.z + q.y*r.w + q.z*r.x,
		z: q.w*r.z + q.x*r.y - q.y*r.x + q.z*r.w,
	}
}

// rotate applies the rotation represented by q to v, i.e. returns R(q)·v.
func (q quat) rotate(v vec3) vec3 {
	p := quat{0, v[0], v[1], v[2]}
	r := q.mul(p).mul(q.conj())
	return vec3{r.x, r.y, r.z}
}

// rotateInverse returns R(q)⁻¹·v = R(q)ᵀ·v.
func (q quat) rotateInverse(v vec3) vec3 {
	return q.conj().rotate(v)
}

func (q quat) toMatrix() [3][3]float64 {
	w, x, y, z := q.w, q.x, q.y, q.z
	return [3][3]float64{
		{1 - 2*(y*y+z*z), 2 * (x*y - z*w), 2 * (x*z + y*w)},
		{2 * (x*y + z*w), 1 - 2*(x*x+z*z), 2 * (y*z - x*w)},
		{2 * (x*z - y*w), 2 * (y*z + x*w), 1 - 2*(x*x+y*y)},
	}
}

// expSO3 maps a rotation-vector tangent δ to its quaternion, the exponential
// map of SO(3) at the identity.
func expSO3(delta vec3) quat {
	angle := normVec3(delta)
	if angle < 1e-12 {
		// Second-order Taylor expansion keeps the result normalized without
		// the division-by-zero the closed form would hit at angle == 0.
		return quat{1 - angle*angle/8, delta[0] / 2, delta[1] / 2, delta[2] / 2}.normalized()
	}
	half := angle / 2
	s := math.Sin(half) / angle
	return quat{math.Cos(half), delta[0] * s, delta[1] * s, delta[2] * s}
}

// logSO3 is the inverse of expSO3: given a unit quaternion it returns the
// rotation vector δ such that expSO3(δ) == q (up to sign of the double
// cover).
func logSO3(q quat) vec3 {
	q = q.normalized()
	if q.w < 0 {
		// Take the representative with the shortest rotation vector.
		q = quat{-q.w, -q.x, -q.y, -q.z}
	}
	v := vec3{q.x, q.y, q.z}
	sinHalf := normVec3(v)
	if sinHalf < 1e-12 {
		return scaleVec3(v, 2)
	}
	halfAngle := math.Atan2(sinHalf, q.w)
	return scaleVec3(v, 2*halfAngle/sinHalf)
}

// boxplusSO3 implements the right-handed retraction q' = q ⊗ exp(δ).
func boxplusSO3(q quat, delta vec3) quat {
	return q.mul(expSO3(delta)).normalized()
}

// boxminusSO3 returns δ such that boxplusSO3(base, δ) == q.
func boxminusSO3(q, base quat) vec3 {
	rel := base.conj().mul(q)
	return logSO3(rel)
}
