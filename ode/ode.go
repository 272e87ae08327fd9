// Package ode integrates systems of complex ordinary differential equations.
//
// The integrator is the Dormand-Prince 5(4) embedded Runge-Kutta pair with adaptive step size control.
//
// References:
//   - A family of embedded Runge-Kutta formulae, J. R. Dormand and P. J. Prince
//   - Solving Ordinary Differential Equations I, Section II.4 Automatic step size control, Hairer, Norsett and Wanner
package ode

import (
	"math"
	"math/cmplx"

	"github.com/pkg/errors"
)

// System is the right hand side f of dy/dt = f(t, y).
// It must write the derivative into dst and not retain y.
type System func(dst []complex128, t float64, y []complex128)

// Butcher tableau of the Dormand-Prince method.
var (
	dpC = [7]float64{0, 1. / 5, 3. / 10, 4. / 5, 8. / 9, 1, 1}
	dpA = [7][6]float64{
		{},
		{1. / 5},
		{3. / 40, 9. / 40},
		{44. / 45, -56. / 15, 32. / 9},
		{19372. / 6561, -25360. / 2187, 64448. / 6561, -212. / 729},
		{9017. / 3168, -355. / 33, 46732. / 5247, 49. / 176, -5103. / 18656},
		{35. / 384, 0, 500. / 1113, 125. / 192, -2187. / 6784, 11. / 84},
	}
	// dpE is the difference between the 5th and 4th order weights.
	dpE = [7]float64{71. / 57600, 0, -71. / 16695, 71. / 1920, -17253. / 339200, 22. / 525, -1. / 40}
)

const (
	safety    = 0.9
	minFactor = 0.2
	maxFactor = 5.0
)

// Options are options of the ODE solver.
type Options struct {
	rtol     float64
	atol     float64
	h0       float64
	maxSteps int
}

// NewOptions returns the default solver options.
func NewOptions() Options {
	opt := Options{}
	opt.rtol = 1e-8
	opt.atol = 1e-10
	opt.maxSteps = 1 << 20
	return opt
}

// Tol sets the relative and absolute tolerances of the local error.
func (opt Options) Tol(rtol, atol float64) Options {
	opt.rtol, opt.atol = rtol, atol
	return opt
}

// InitialStep sets the first step size. By default it is estimated from the derivative at the initial point.
func (opt Options) InitialStep(h float64) Options {
	opt.h0 = h
	return opt
}

// MaxSteps sets the maximum number of steps of a single call to Integrate.
func (opt Options) MaxSteps(n int) Options {
	opt.maxSteps = n
	return opt
}

// Solver integrates a System forward in time.
type Solver struct {
	f   System
	opt Options

	t float64
	y []complex128
	h float64

	// k are the stages, k[0] holds f(t, y) thanks to the first-same-as-last property.
	k    [7][]complex128
	yNew []complex128
	tmp  []complex128

	// Steps is the number of accepted steps.
	Steps int
	// Rejected is the number of rejected steps.
	Rejected int
}

// NewSolver returns a solver starting from y0 at time t0.
// The solver owns a copy of y0.
func NewSolver(f System, t0 float64, y0 []complex128, options ...Options) *Solver {
	opt := NewOptions()
	if len(options) > 0 {
		opt = options[0]
	}

	s := &Solver{f: f, opt: opt, t: t0}
	s.y = make([]complex128, len(y0))
	copy(s.y, y0)
	for i := range s.k {
		s.k[i] = make([]complex128, len(y0))
	}
	s.yNew = make([]complex128, len(y0))
	s.tmp = make([]complex128, len(y0))

	s.f(s.k[0], s.t, s.y)
	s.h = opt.h0
	return s
}

func (s *Solver) T() float64 { return s.t }

// Y returns the current state. The returned slice is owned by the solver and changes with each step.
func (s *Solver) Y() []complex128 { return s.y }

// Step advances the solver by one accepted step without going past tEnd.
func (s *Solver) Step(tEnd float64) error {
	if tEnd <= s.t {
		return nil
	}
	if s.h <= 0 {
		s.h = s.initialStep(tEnd)
	}

	for {
		h := s.h
		last := false
		if s.t+h >= tEnd || tEnd-(s.t+h) < 1e-12*math.Abs(tEnd) {
			h = tEnd - s.t
			last = true
		}
		if h <= math.Abs(s.t)*1e-15 || h == 0 {
			return errors.Errorf("step size underflow t=%g h=%g", s.t, h)
		}

		errNorm := s.tryStep(h)
		if math.IsNaN(errNorm) || math.IsInf(errNorm, 0) {
			s.h = h * minFactor
			s.Rejected++
			continue
		}

		factor := maxFactor
		if errNorm > 0 {
			factor = min(maxFactor, max(minFactor, safety*math.Pow(errNorm, -0.2)))
		}
		if errNorm > 1 {
			s.h = h * factor
			s.Rejected++
			continue
		}

		// Accept.
		switch {
		case last:
			s.t = tEnd
		default:
			s.t += h
		}
		s.y, s.yNew = s.yNew, s.y
		s.k[0], s.k[6] = s.k[6], s.k[0]
		s.Steps++
		if !last {
			s.h = h * factor
		} else {
			// Keep the controller's step for the next interval instead of the truncated one.
			s.h = max(s.h, h*factor)
		}
		return nil
	}
}

// Integrate advances the solver to tEnd, calling callback after every accepted step.
func (s *Solver) Integrate(tEnd float64, callback func(t float64, y []complex128) bool) error {
	for steps := 0; s.t < tEnd; steps++ {
		if steps >= s.opt.maxSteps {
			return errors.Errorf("max steps %d reached at t=%g", s.opt.maxSteps, s.t)
		}
		if err := s.Step(tEnd); err != nil {
			return errors.Wrap(err, "")
		}
		if callback != nil && !callback(s.t, s.y) {
			return nil
		}
	}
	return nil
}

// tryStep computes a step of size h into s.yNew and s.k[6], returning the scaled error norm.
func (s *Solver) tryStep(h float64) float64 {
	for stage := 1; stage < 7; stage++ {
		copy(s.tmp, s.y)
		for j := 0; j < stage; j++ {
			a := dpA[stage][j]
			if a == 0 {
				continue
			}
			c := complex(h*a, 0)
			for i := range s.tmp {
				s.tmp[i] += c * s.k[j][i]
			}
		}
		s.f(s.k[stage], s.t+dpC[stage]*h, s.tmp)
		if stage == 6 {
			// The last stage is evaluated at the 5th order solution.
			copy(s.yNew, s.tmp)
		}
	}

	var sum float64
	for i := range s.y {
		var e complex128
		for j, ej := range dpE {
			if ej == 0 {
				continue
			}
			e += complex(ej, 0) * s.k[j][i]
		}
		e *= complex(h, 0)
		sc := s.opt.atol + s.opt.rtol*max(cmplx.Abs(s.y[i]), cmplx.Abs(s.yNew[i]))
		r := cmplx.Abs(e) / sc
		sum += r * r
	}
	return math.Sqrt(sum / float64(max(len(s.y), 1)))
}

// initialStep estimates a first step size, see Section II.4 of Hairer, Norsett and Wanner.
func (s *Solver) initialStep(tEnd float64) float64 {
	var d0, d1 float64
	for i, yi := range s.y {
		sc := s.opt.atol + s.opt.rtol*cmplx.Abs(yi)
		d0 += math.Pow(cmplx.Abs(yi)/sc, 2)
		d1 += math.Pow(cmplx.Abs(s.k[0][i])/sc, 2)
	}
	n := float64(max(len(s.y), 1))
	d0, d1 = math.Sqrt(d0/n), math.Sqrt(d1/n)

	h := 1e-6
	if d0 >= 1e-5 && d1 >= 1e-5 {
		h = 0.01 * d0 / d1
	}
	return min(h, tEnd-s.t)
}
