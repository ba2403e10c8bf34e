package poseukf

import (
	"math/rand"

	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// expRandSource adapts a math/rand.Source to the golang.org/x/exp/rand.Source
// interface required by gonum's distmv package.
type expRandSource struct {
	src rand.Source
}

func (s expRandSource) Uint64() uint64 {
	if s64, ok := s.src.(rand.Source64); ok {
		return s64.Uint64()
	}
	hi := uint64(s.src.Int63())
	lo := uint64(s.src.Int63())
	return hi<<32 ^ lo
}

func (s expRandSource) Seed(seed uint64) {
	s.src.Seed(int64(seed))
}

// ProcessNoiseConfig names the per-block continuous-time process noise
// variances used to build the filter's static Q0. Every field is a variance
// (σ²), applied diagonally within its block; the two runtime modulations
// (orientation rotated into the nav frame, water-velocity inflated by
// travelled distance) are applied on top of this base in process.go.
type ProcessNoiseConfig struct {
	Position      vec3
	Orientation   vec3
	Velocity      vec3
	Acceleration  vec3
	BiasGyro      vec3
	BiasAcc       vec3
	Gravity       float64
	Inertia       [9]float64
	LinDamping    [9]float64
	QuadDamping   [9]float64
	WaterVel      [2]float64
	WaterVelBelow [2]float64
	BiasADCP      [2]float64
	WaterDensity  float64
}

// buildQ0 assembles the static, diagonal base process noise covariance from
// a ProcessNoiseConfig.
func buildQ0(cfg ProcessNoiseConfig) *mat.SymDense {
	q := mat.NewSymDense(StateDim, nil)
	set3 := func(off int, v vec3) {
		for i := 0; i < 3; i++ {
			q.SetSym(off+i, off+i, v[i])
		}
	}
	set2 := func(off int, v [2]float64) {
		for i := 0; i < 2; i++ {
			q.SetSym(off+i, off+i, v[i])
		}
	}
	set9 := func(off int, v [9]float64) {
		for i := 0; i < 9; i++ {
			q.SetSym(off+i, off+i, v[i])
		}
	}
	set3(offPosition, cfg.Position)
	set3(offOrient, cfg.Orientation)
	set3(offVelocity, cfg.Velocity)
	set3(offAccel, cfg.Acceleration)
	set3(offBiasGyro, cfg.BiasGyro)
	set3(offBiasAcc, cfg.BiasAcc)
	q.SetSym(offGravity, offGravity, cfg.Gravity)
	set9(offInertia, cfg.Inertia)
	set9(offLinDamp, cfg.LinDamping)
	set9(offQuadDamp, cfg.QuadDamping)
	set2(offWaterVel, cfg.WaterVel)
	set2(offWaterBel, cfg.WaterVelBelow)
	set2(offBiasADCP, cfg.BiasADCP)
	q.SetSym(offWaterRho, offWaterRho, cfg.WaterDensity)
	return q
}

// GaussianNoise generates zero-mean multivariate-normal samples for a given
// covariance. It is test/simulation tooling (synthesizing sensor noise for
// the end-to-end scenarios) rather than something the filter itself calls.
type GaussianNoise struct {
	dist *distmv.Normal
	dim  int
}

// NewGaussianNoise builds a generator for the given covariance and random
// source.
func NewGaussianNoise(cov *mat.SymDense, src rand.Source) (*GaussianNoise, error) {
	n, _ := cov.Dims()
	var esrc exprand.Source = expRandSource{src: src}
	dist, ok := distmv.NewNormal(make([]float64, n), cov, esrc)
	if !ok {
		return nil, errNumericalFailure("noise covariance is not positive definite")
	}
	return &GaussianNoise{dist: dist, dim: n}, nil
}

// Sample draws one noise vector.
func (g *GaussianNoise) Sample() []float64 {
	return g.dist.Rand(nil)
}
