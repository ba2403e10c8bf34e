package poseukf

import (
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/stat/distuv"
)

// MeasurementKind tags every measurement shape the filter accepts.
type MeasurementKind uint8

const (
	KindGeographicPosition MeasurementKind = iota + 1
	KindXYPosition
	KindZPosition
	KindPressure
	KindRotationRate
	KindVelocity
	KindAcceleration
	KindBodyEfforts
	KindWaterVelocity
	KindVisualLandmark
)

func (k MeasurementKind) String() string {
	switch k {
	case KindGeographicPosition:
		return "GeographicPosition"
	case KindXYPosition:
		return "XYPosition"
	case KindZPosition:
		return "ZPosition"
	case KindPressure:
		return "Pressure"
	case KindRotationRate:
		return "RotationRate"
	case KindVelocity:
		return "Velocity"
	case KindAcceleration:
		return "Acceleration"
	case KindBodyEfforts:
		return "BodyEfforts"
	case KindWaterVelocity:
		return "WaterVelocity"
	case KindVisualLandmark:
		return "VisualLandmark"
	default:
		return "Unknown"
	}
}

// recognisedKinds backs IsRecognisedKind; it's a slice (rather than a map)
// since membership is checked far less often than the table is built.
var recognisedKinds = []MeasurementKind{
	KindGeographicPosition, KindXYPosition, KindZPosition, KindPressure,
	KindRotationRate, KindVelocity, KindAcceleration, KindBodyEfforts,
	KindWaterVelocity, KindVisualLandmark,
}

// IsRecognisedKind reports whether kind is one this package knows how to
// gate and dispatch.
func IsRecognisedKind(kind MeasurementKind) bool {
	return slices.Contains(recognisedKinds, kind)
}

// acceptAllGate never rejects: used for measurement kinds where the original
// source applies ukfom::accept_any_mahalanobis_distance.
const acceptAllGate = -1

// GateConfig maps a measurement kind to the confidence level (e.g. 0.95) of
// its chi-squared innovation gate, and to the innovation's degrees of
// freedom. A confidence of 0 (the zero value) means accept-all. This is the
// "exposed as configuration" half of the innovation-gating design note;
// the entries of DefaultGateConfig reproduce the hard-coded literals from the
// original source.
type GateConfig struct {
	Confidence float64
	DOF        int
}

// GateTable holds the resolved chi-squared critical value per measurement
// kind.
type GateTable map[MeasurementKind]float64

// DefaultGateConfig returns the original source's hard-coded gate
// assignment: two-dof 95% for position-like measurements that a DVL/GPS
// outlier could corrupt, accept-all everywhere else.
func DefaultGateConfig() map[MeasurementKind]GateConfig {
	return map[MeasurementKind]GateConfig{
		KindGeographicPosition: {Confidence: 0.95, DOF: 2},
		KindXYPosition:         {Confidence: 0.95, DOF: 2},
		KindWaterVelocity:      {Confidence: 0.95, DOF: 2},
		KindZPosition:          {},
		KindPressure:           {},
		KindRotationRate:       {},
		KindVelocity:           {},
		KindAcceleration:       {},
		KindBodyEfforts:        {},
		KindVisualLandmark:     {},
	}
}

// NewGateTable resolves a GateConfig map into the chi-squared critical
// values the update step compares d² against, via distuv.ChiSquared.
func NewGateTable(cfg map[MeasurementKind]GateConfig) GateTable {
	table := make(GateTable, len(cfg))
	for kind, c := range cfg {
		if c.Confidence <= 0 || c.DOF <= 0 {
			table[kind] = acceptAllGate
			continue
		}
		chi2 := distuv.ChiSquared{K: float64(c.DOF)}
		table[kind] = chi2.Quantile(c.Confidence)
	}
	return table
}

// threshold returns the gate for kind, defaulting to accept-all for any
// kind missing from the table (e.g. one the caller's GateConfig omitted).
func (t GateTable) threshold(kind MeasurementKind) float64 {
	if v, ok := t[kind]; ok {
		return v
	}
	return acceptAllGate
}
