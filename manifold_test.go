package poseukf

import (
	"math"
	"testing"
)

func sampleState() State {
	return State{
		Position:     vec3{1, 2, 3},
		Orientation:  boxplusSO3(identityQuat(), vec3{0.1, -0.2, 0.05}),
		Velocity:     vec3{0.5, -0.1, 0.02},
		Acceleration: vec3{0.01, 0.02, -9.8},
		BiasGyro:     vec3{0.001, 0.002, -0.001},
		BiasAcc:      vec3{0.01, -0.02, 0.03},
		Gravity:      9.81,
		WaterDensity: 1025,
	}
}

func TestBoxPlusZeroIsIdentity(t *testing.T) {
	s := sampleState()
	out := s.boxplus(make([]float64, StateDim))
	d := out.boxminus(s)
	for i, v := range d {
		if math.Abs(v) > 1e-12 {
			t.Fatalf("BoxPlus(X,0) != X at index %d: %v", i, v)
		}
	}
}

func TestBoxMinusInvertsBoxPlus(t *testing.T) {
	s := sampleState()
	delta := make([]float64, StateDim)
	for i := range delta {
		delta[i] = 0.001 * float64(i%7-3)
	}
	moved := s.boxplus(delta)
	recovered := moved.boxminus(s)
	for i := range delta {
		if math.Abs(recovered[i]-delta[i]) > 1e-6 {
			t.Fatalf("BoxMinus(BoxPlus(X,d),X) != d at %d: got %v want %v", i, recovered[i], delta[i])
		}
	}
}

func TestBoxPlusKeepsOrientationUnitNorm(t *testing.T) {
	s := sampleState()
	delta := make([]float64, StateDim)
	delta[offOrient], delta[offOrient+1], delta[offOrient+2] = 0.3, -0.4, 0.2
	out := s.boxplus(delta)
	n := math.Sqrt(out.Orientation.w*out.Orientation.w + out.Orientation.x*out.Orientation.x + out.Orientation.y*out.Orientation.y + out.Orientation.z*out.Orientation.z)
	if math.Abs(n-1) > 1e-12 {
		t.Fatalf("orientation not unit norm after BoxPlus: %v", n)
	}
}

func TestVectorManifoldRoundTrip(t *testing.T) {
	v := VectorManifold{1, 2, 3}
	delta := []float64{0.5, -0.5, 1}
	moved := v.BoxPlus(delta)
	back := moved.BoxMinus(v)
	for i := range delta {
		if math.Abs(back[i]-delta[i]) > 1e-12 {
			t.Fatalf("VectorManifold round trip mismatch at %d", i)
		}
	}
}

func TestS2PointBoxPlusPreservesUnitNorm(t *testing.T) {
	p := NewS2Point(vec3{0, 0, 1})
	moved := p.BoxPlus([]float64{0.3, -0.1}).(S2Point)
	n := normVec3(moved.v)
	if math.Abs(n-1) > 1e-12 {
		t.Fatalf("S2Point not unit norm after BoxPlus: %v", n)
	}
}

func TestS2PointBoxMinusInvertsBoxPlus(t *testing.T) {
	base := NewS2Point(vec3{0, 0, 1})
	delta := []float64{0.2, 0.15}
	moved := base.BoxPlus(delta).(S2Point)
	recovered := moved.BoxMinus(base)
	for i := range delta {
		if math.Abs(recovered[i]-delta[i]) > 1e-9 {
			t.Fatalf("S2 BoxMinus(BoxPlus(p,d),p) != d at %d: got %v want %v", i, recovered[i], delta[i])
		}
	}
}

func TestS2PointBoxMinusZeroAtSamePoint(t *testing.T) {
	p := NewS2Point(vec3{1, 2, 3})
	d := p.BoxMinus(p)
	if math.Abs(d[0]) > 1e-12 || math.Abs(d[1]) > 1e-12 {
		t.Fatalf("BoxMinus(p,p) should be zero, got %v", d)
	}
}

func TestStateDimMatchesDataModel(t *testing.T) {
	// 3+3+3+3+3+3+1+9+9+9+2+2+2+1 = 53
	if StateDim != 53 {
		t.Fatalf("StateDim = %d, want 53", StateDim)
	}
}
