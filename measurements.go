package poseukf

// Each predicted-observation function below implements h(X) for one
// measurement kind: the deterministic mapping from a state-manifold point to
// the space a real sensor reading is compared against. RotationRate has no
// corresponding h here because it is cached directly off the process model
// (see filterContext.rotationRate) rather than compared through an
// innovation.

// hXYPosition returns the nav-frame horizontal position, for local (e.g.
// USBL/DVL-dead-reckoned beacon) position fixes that are already expressed
// in the nav frame rather than geodetic coordinates.
func hXYPosition(s State) VectorManifold {
	return VectorManifold{s.Position[0], s.Position[1]}
}

// hZPosition returns the nav-frame depth axis.
func hZPosition(s State) VectorManifold {
	return VectorManifold{s.Position[2]}
}

// hPressure converts depth to an absolute pressure reading using the
// estimated water density and gravity and the configured atmospheric offset:
// p = p_atm + ρ·g·h, with h = −z the depth below the nav origin (z is up).
// The pressure sensor is taken to sit at the IMU origin; no sensor lever arm
// is applied.
func hPressure(s State, atmospheric float64) VectorManifold {
	depth := -s.Position[2]
	return VectorManifold{atmospheric + s.WaterDensity*s.Gravity*depth}
}

// hVelocity returns the vehicle's velocity in the body frame, as a DVL
// measures it.
func hVelocity(s State) VectorManifold {
	bodyVel := s.Orientation.rotateInverse(s.Velocity)
	return VectorManifold{bodyVel[0], bodyVel[1], bodyVel[2]}
}

// hAcceleration returns the specific force an IMU accelerometer would read:
// the body-frame kinematic acceleration plus the accelerometer bias, minus
// gravity expressed in the body frame (an accelerometer at rest reads +g
// upward, not zero).
func hAcceleration(s State) VectorManifold {
	gravityNav := vec3{0, 0, -s.Gravity}
	gravityBody := s.Orientation.rotateInverse(gravityNav)
	accBody := s.Orientation.rotateInverse(s.Acceleration)
	out := subVec3(addVec3(accBody, s.BiasAcc), gravityBody)
	return VectorManifold{out[0], out[1], out[2]}
}

// hBodyEfforts evaluates the hydrodynamic effort model (physics, optionally
// overridden on surge/sway/yaw by a learned predictor) against the current
// velocity/acceleration/orientation estimate.
func hBodyEfforts(c *filterContext, s State) (VectorManifold, error) {
	efforts, err := c.predictEffort(s)
	if err != nil {
		return nil, err
	}
	return VectorManifold(efforts[:]), nil
}

// hWaterVelocity returns the ADCP-frame relative velocity between the
// vehicle and the water current at one cell, blending the above- and
// below-vehicle current estimates by cellWeighting in [0,1] (0 = fully
// "above"/surface, 1 = fully "below") and adding the estimated ADCP transducer
// bias: c·u_below + (1−c)·u_surface + b_adcp, where each u is the vehicle's
// velocity relative to that cell's current, rotated into the body frame.
func hWaterVelocity(s State, cellWeighting float64) VectorManifold {
	relBelow := s.Orientation.rotateInverse(subVec3(s.Velocity, vec3{s.WaterVelBelow[0], s.WaterVelBelow[1], 0}))
	relSurface := s.Orientation.rotateInverse(subVec3(s.Velocity, vec3{s.WaterVel[0], s.WaterVel[1], 0}))
	vx := cellWeighting*relBelow[0] + (1-cellWeighting)*relSurface[0]
	vy := cellWeighting*relBelow[1] + (1-cellWeighting)*relSurface[1]
	return VectorManifold{vx + s.BiasADCP[0], vy + s.BiasADCP[1]}
}

// hVisualLandmarkBearing returns the predicted unit bearing, in the body
// (camera) frame, from the vehicle's estimated position/orientation to one
// landmark feature. featureInMarker is the feature's known 3D position in
// the marker's own frame; markerPosition/markerOrientation place the marker
// in the nav frame (both carried by the augmented state in augment.go).
func hVisualLandmarkBearing(s State, markerPosition vec3, markerOrientation quat, featureInMarker vec3, cameraInBody vec3) S2Point {
	featureNav := addVec3(markerPosition, markerOrientation.rotate(featureInMarker))
	toFeatureNav := subVec3(featureNav, addVec3(s.Position, s.Orientation.rotate(cameraInBody)))
	toFeatureBody := s.Orientation.rotateInverse(toFeatureNav)
	return NewS2Point(toFeatureBody)
}
