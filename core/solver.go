package core

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/zhufengGNSS/SDGPSR/model"
)

// ErrInsufficientObservations is returned when fewer than four satellites are
// available; position and clock bias are then underdetermined.
var ErrInsufficientObservations = errors.New("solver: need at least 4 observations")

// Observation is one satellite's contribution to a navigation solve.
type Observation struct {
	PRN         int
	SatPos      model.Vec3 // ECEF at transmit time (m)
	Pseudorange float64    // metres, uncorrected for receiver clock
}

// Solution is a navigation solve output: receiver ECEF position and the
// receiver clock bias expressed in metres of range.
type Solution struct {
	Pos        model.Vec3
	ClockBiasM float64
	Iterations int
}

// Solver turns satellite observations into a position/clock estimate. The
// numeric routine is replaceable; the receiver only depends on this contract.
type Solver interface {
	Solve(obs []Observation) (Solution, error)
}

// LeastSquaresSolver is the default Solver: Gauss-Newton iteration on the
// linearised pseudorange equations, starting from the Earth's centre.
type LeastSquaresSolver struct {
	MaxIterations int
	ConvergenceM  float64
}

// NewLeastSquaresSolver returns a solver with conventional defaults.
func NewLeastSquaresSolver() *LeastSquaresSolver {
	return &LeastSquaresSolver{MaxIterations: 20, ConvergenceM: 1e-4}
}

// Solve iterates the linearised solution until the state update falls below
// ConvergenceM. Satellite positions are rotated for the Earth rotation during
// signal transit (Sagnac correction) before each geometry evaluation.
func (s *LeastSquaresSolver) Solve(obs []Observation) (Solution, error) {
	if len(obs) < 4 {
		return Solution{}, ErrInsufficientObservations
	}

	maxIter := s.MaxIterations
	if maxIter <= 0 {
		maxIter = 20
	}
	convergence := s.ConvergenceM
	if convergence <= 0 {
		convergence = 1e-4
	}

	var pos model.Vec3
	bias := 0.0

	for iter := 1; iter <= maxIter; iter++ {
		a := mat.NewDense(len(obs), 4, nil)
		r := mat.NewVecDense(len(obs), nil)

		for i, ob := range obs {
			sat := sagnacCorrected(ob.SatPos, ob.Pseudorange)
			d := sat.Sub(pos)
			rng := d.Norm()
			if rng == 0 {
				return Solution{}, fmt.Errorf("solver: degenerate geometry for PRN %d", ob.PRN)
			}
			a.Set(i, 0, -d.X/rng)
			a.Set(i, 1, -d.Y/rng)
			a.Set(i, 2, -d.Z/rng)
			a.Set(i, 3, 1)
			r.SetVec(i, ob.Pseudorange-(rng+bias))
		}

		var dx mat.VecDense
		if err := dx.SolveVec(a, r); err != nil {
			return Solution{}, fmt.Errorf("solver: normal equations: %w", err)
		}

		pos.X += dx.AtVec(0)
		pos.Y += dx.AtVec(1)
		pos.Z += dx.AtVec(2)
		bias += dx.AtVec(3)

		step := math.Sqrt(dx.AtVec(0)*dx.AtVec(0) + dx.AtVec(1)*dx.AtVec(1) + dx.AtVec(2)*dx.AtVec(2))
		if step < convergence {
			return Solution{Pos: pos, ClockBiasM: bias, Iterations: iter}, nil
		}
	}

	return Solution{}, fmt.Errorf("solver: no convergence after %d iterations", maxIter)
}

// sagnacCorrected rotates a satellite position about the Z axis by the Earth
// rotation accumulated over the signal transit time.
func sagnacCorrected(sat model.Vec3, pseudorange float64) model.Vec3 {
	theta := wgs84OmegaEDotRS * pseudorange / SpeedOfLightMPS
	sinT, cosT := math.Sincos(theta)
	return model.Vec3{
		X: cosT*sat.X + sinT*sat.Y,
		Y: -sinT*sat.X + cosT*sat.Y,
		Z: sat.Z,
	}
}
