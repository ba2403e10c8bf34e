package poseukf

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"
)

// TrajectoryExporter writes a filter's state/covariance history to CSV, one
// row per Predict/Integrate call, for offline inspection of an end-to-end
// run.
type TrajectoryExporter interface {
	Write(state State, cov SymmetricView) error
	Close() error
}

// SymmetricView is the minimal read surface TrajectoryExporter needs off a
// covariance matrix; *mat.SymDense satisfies it.
type SymmetricView interface {
	At(i, j int) float64
}

// CSVTrajectoryExporter dumps position, orientation (as the SO(3)
// logarithm) and velocity, each with a ±2σ bound pulled off the diagonal of
// the supplied covariance.
type CSVTrajectoryExporter struct {
	delimiter string
	hdlr      *os.File
}

var trajectoryFields = []struct {
	name string
	off  int
}{
	{"pos_x", offPosition}, {"pos_y", offPosition + 1}, {"pos_z", offPosition + 2},
	{"orient_x", offOrient}, {"orient_y", offOrient + 1}, {"orient_z", offOrient + 2},
	{"vel_x", offVelocity}, {"vel_y", offVelocity + 1}, {"vel_z", offVelocity + 2},
}

// NewCSVTrajectoryExporter creates filepath/filename and writes its header.
func NewCSVTrajectoryExporter(filepath, filename string) (*CSVTrajectoryExporter, error) {
	f, err := os.Create(fmt.Sprintf("%s/%s", filepath, filename))
	if err != nil {
		return nil, err
	}
	delimiter := ","
	hdr := make([]string, 0, len(trajectoryFields)*3)
	for _, field := range trajectoryFields {
		hdr = append(hdr, field.name, field.name+"+2s", field.name+"-2s")
	}
	f.WriteString(fmt.Sprintf("# Creation date (UTC): %s\n%s\n", time.Now().UTC(), strings.Join(hdr, delimiter)))
	return &CSVTrajectoryExporter{delimiter: delimiter, hdlr: f}, nil
}

// Write implements TrajectoryExporter.
func (e *CSVTrajectoryExporter) Write(s State, cov SymmetricView) error {
	logOrient := logSO3(s.Orientation)
	values := [9]float64{
		s.Position[0], s.Position[1], s.Position[2],
		logOrient[0], logOrient[1], logOrient[2],
		s.Velocity[0], s.Velocity[1], s.Velocity[2],
	}
	vals := make([]string, 0, len(trajectoryFields)*3)
	for i, field := range trajectoryFields {
		bound := 2 * math.Sqrt(math.Max(cov.At(field.off, field.off), 0))
		vals = append(vals, fmt.Sprintf("%f", values[i]), fmt.Sprintf("%f", bound), fmt.Sprintf("%f", -bound))
	}
	_, err := e.hdlr.WriteString(strings.Join(vals, e.delimiter) + "\n")
	return err
}

// Close implements TrajectoryExporter.
func (e *CSVTrajectoryExporter) Close() error {
	e.hdlr.WriteString(fmt.Sprintf("# Closing date (UTC): %s\n", time.Now().UTC()))
	return e.hdlr.Close()
}
