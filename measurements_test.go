package poseukf

import (
	"math"
	"testing"
)

func TestHWaterVelocityFullWeightMatchesBelowEstimate(t *testing.T) {
	s := sampleState()
	s.Orientation = identityQuat()
	s.Velocity = vec3{1, 0.5, 0}
	s.WaterVelBelow = [2]float64{0.1, -0.2}
	s.WaterVel = [2]float64{0.9, 0.8}
	s.BiasADCP = [2]float64{0, 0}

	got := hWaterVelocity(s, 1.0)
	wantX := s.Velocity[0] - s.WaterVelBelow[0]
	wantY := s.Velocity[1] - s.WaterVelBelow[1]
	if math.Abs(got[0]-wantX) > 1e-12 || math.Abs(got[1]-wantY) > 1e-12 {
		t.Fatalf("cellWeighting=1 should match the below-vehicle estimate exactly, got %v want (%v,%v)", got, wantX, wantY)
	}
}

func TestHWaterVelocityZeroWeightMatchesSurfaceEstimate(t *testing.T) {
	s := sampleState()
	s.Orientation = identityQuat()
	s.Velocity = vec3{1, 0.5, 0}
	s.WaterVelBelow = [2]float64{0.1, -0.2}
	s.WaterVel = [2]float64{0.9, 0.8}
	s.BiasADCP = [2]float64{0, 0}

	got := hWaterVelocity(s, 0.0)
	wantX := s.Velocity[0] - s.WaterVel[0]
	wantY := s.Velocity[1] - s.WaterVel[1]
	if math.Abs(got[0]-wantX) > 1e-12 || math.Abs(got[1]-wantY) > 1e-12 {
		t.Fatalf("cellWeighting=0 should match the surface estimate exactly, got %v want (%v,%v)", got, wantX, wantY)
	}
}
