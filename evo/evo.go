// Package evo evolves quantum states in time under a Hamiltonian.
//
// Pure states follow the Schrodinger equation d|psi>/dt = -iH|psi>,
// and density operators follow the von Neumann equation drho/dt = -i[H, rho].
package evo

import (
	"fmt"
	"iter"
	"math"
	"math/cmplx"
	"time"

	"github.com/pkg/errors"

	"github.com/fumin/qdyn/calc"
	"github.com/fumin/qdyn/mat"
	"github.com/fumin/qdyn/ode"
)

const hermitianTol = 1e-10

// ErrStopped is returned by Update when a stop condition halts the evolution.
var ErrStopped = errors.New("stopped")

// Method is the strategy used to propagate states.
type Method int

const (
	// Integrate solves the equation of motion with an adaptive Runge-Kutta integrator.
	Integrate Method = iota
	// Solve diagonalizes the Hamiltonian once, and propagates exactly in its eigenbasis.
	Solve
	// Expm applies the action of the matrix exponential of the Hamiltonian.
	Expm
)

func (m Method) String() string {
	switch m {
	case Integrate:
		return "integrate"
	case Solve:
		return "solve"
	case Expm:
		return "expm"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// ParseMethod parses the name of a Method.
func ParseMethod(s string) (Method, error) {
	for _, m := range []Method{Integrate, Solve, Expm} {
		if m.String() == s {
			return m, nil
		}
	}
	return -1, errors.Errorf("%q", s)
}

// ComputeFunc computes a quantity of the state p at time t.
type ComputeFunc func(t float64, p calc.State) float64

// StopFunc reports whether the evolution should stop at time t.
type StopFunc func(t float64, p calc.State) bool

type compute struct {
	name string
	fn   ComputeFunc
}

// Options are options of an Evolution.
type Options struct {
	method   Method
	t0       float64
	rtol     float64
	atol     float64
	computes []compute
	stop     StopFunc
	logEvery time.Duration
}

// NewOptions returns the default evolution options.
func NewOptions() Options {
	opt := Options{}
	opt.method = Integrate
	opt.rtol = 1e-9
	opt.atol = 1e-12
	opt.logEvery = 30 * time.Second
	return opt
}

// Method sets the propagation method.
func (opt Options) Method(m Method) Options {
	opt.method = m
	return opt
}

// T0 sets the initial time.
func (opt Options) T0(t0 float64) Options {
	opt.t0 = t0
	return opt
}

// Tol sets the relative and absolute tolerances of the Integrate method.
func (opt Options) Tol(rtol, atol float64) Options {
	opt.rtol, opt.atol = rtol, atol
	return opt
}

// Compute registers fn under name.
// Callbacks run at the initial time, after every internal step of the Integrate method,
// and at every requested time of the Solve and Expm methods.
func (opt Options) Compute(name string, fn ComputeFunc) Options {
	opt.computes = append(append([]compute{}, opt.computes...), compute{name: name, fn: fn})
	return opt
}

// Stop sets a condition that halts the Integrate method after the first internal step it holds.
// For the other methods, it is checked at every requested time.
func (opt Options) Stop(fn StopFunc) Options {
	opt.stop = fn
	return opt
}

// LogEvery sets the interval between progress logs. Zero disables logging.
func (opt Options) LogEvery(d time.Duration) Options {
	opt.logEvery = d
	return opt
}

// Evolution is the time evolution of a state under a time independent Hamiltonian.
type Evolution struct {
	ham mat.LinearOperator
	opt Options
	d   int

	t  float64
	pt calc.State

	// Solve method.
	evals []float64
	evecs *mat.CDense
	// p0Eig is the initial state in the eigenbasis.
	p0Eig calc.State

	// Integrate method.
	solver *ode.Solver
	// hBuf and colBuf are buffers of the right hand side of the von Neumann equation.
	hBuf   []complex128
	colBuf []complex128

	// Expm method.
	norm float64

	times   []float64
	results map[string][]float64
	err     error
	logger  *progressLogger
}

// New creates an evolution of p0 under ham.
// The evolution owns a copy of p0.
func New(p0 calc.State, ham mat.LinearOperator, options ...Options) (*Evolution, error) {
	opt := NewOptions()
	if len(options) > 0 {
		opt = options[0]
	}

	d := p0.Dim()
	if ham.Rows() != d || ham.Cols() != d {
		return nil, errors.Errorf("%d %d %d", ham.Rows(), ham.Cols(), d)
	}
	if !p0.IsPure() {
		if r, c := p0.Rho.Dims(); r != c {
			return nil, errors.Errorf("%d %d", r, c)
		}
	}
	if !mat.IsHermitianOp(ham, hermitianTol) {
		return nil, errors.Errorf("hamiltonian not hermitian")
	}

	e := &Evolution{ham: ham, opt: opt, d: d, t: opt.t0, pt: p0.Copy()}
	e.results = make(map[string][]float64)
	for _, c := range opt.computes {
		e.results[c.name] = make([]float64, 0)
	}
	e.logger = newProgressLogger(opt.logEvery)

	switch opt.method {
	case Solve:
		if err := e.setupSolve(); err != nil {
			return nil, errors.Wrap(err, "")
		}
	case Integrate:
		if err := e.setupIntegrate(); err != nil {
			return nil, errors.Wrap(err, "")
		}
	case Expm:
		if err := e.setupExpm(); err != nil {
			return nil, errors.Wrap(err, "")
		}
	default:
		return nil, errors.Errorf("%v", opt.method)
	}

	e.record(e.t, e.pt)
	return e, nil
}

// T returns the current time.
func (e *Evolution) T() float64 { return e.t }

// Pt returns the current state. The returned state must not be modified.
func (e *Evolution) Pt() calc.State { return e.pt }

// Times returns the times at which the compute callbacks ran.
func (e *Evolution) Times() []float64 { return e.times }

// Results returns the values of each compute callback, aligned with Times.
func (e *Evolution) Results() map[string][]float64 { return e.results }

// Err returns the first error encountered by At.
func (e *Evolution) Err() error { return e.err }

// Update evolves the state to time t.
// Evolving backwards in time is only supported by the Solve and Expm methods.
func (e *Evolution) Update(t float64) error {
	if t == e.t {
		return nil
	}

	var err error
	switch e.opt.method {
	case Solve:
		err = e.updateSolve(t)
	case Integrate:
		err = e.updateIntegrate(t)
	case Expm:
		err = e.updateExpm(t)
	}
	if err != nil {
		return errors.Wrap(err, "")
	}

	if e.opt.method != Integrate {
		e.record(e.t, e.pt)
		if e.opt.stop != nil && e.opt.stop(e.t, e.pt) {
			return ErrStopped
		}
	}
	return nil
}

// At yields the state at each of times.
// Iteration ends early on the first error, which is then available from Err.
func (e *Evolution) At(times []float64) iter.Seq2[float64, calc.State] {
	return func(yield func(float64, calc.State) bool) {
		for _, t := range times {
			if err := e.Update(t); err != nil {
				e.err = errors.Wrap(err, fmt.Sprintf("%f", t))
				return
			}
			if !yield(e.t, e.pt) {
				return
			}
		}
	}
}

func (e *Evolution) record(t float64, p calc.State) {
	if len(e.opt.computes) == 0 {
		return
	}
	e.times = append(e.times, t)
	for _, c := range e.opt.computes {
		e.results[c.name] = append(e.results[c.name], c.fn(t, p))
	}
}

func (e *Evolution) setupSolve() error {
	h := mat.ToDense(e.ham)
	if !mat.IsHermitian(h, hermitianTol) {
		return errors.Errorf("hamiltonian not hermitian")
	}
	var err error
	e.evals, e.evecs, err = mat.Eigh(h)
	if err != nil {
		return errors.Wrap(err, "")
	}

	vH := mat.Adjoint(e.evecs)
	switch {
	case e.pt.IsPure():
		e.p0Eig = calc.Pure(mat.MulVec(vH, e.pt.Ket))
	default:
		e.p0Eig = calc.Mixed(mat.Mul(mat.Mul(vH, e.pt.Rho), e.evecs))
	}
	return nil
}

func (e *Evolution) updateSolve(t float64) error {
	dt := t - e.opt.t0
	phases := make([]complex128, e.d)
	for i, l := range e.evals {
		phases[i] = cmplx.Exp(complex(0, -l*dt))
	}

	switch {
	case e.p0Eig.IsPure():
		c := make([]complex128, e.d)
		for i, v := range e.p0Eig.Ket {
			c[i] = phases[i] * v
		}
		e.pt = calc.Pure(mat.MulVec(e.evecs, c))
	default:
		r := mat.NewCDense(e.d, e.d, nil)
		for i := range e.d {
			for j := range e.d {
				r.Set(i, j, phases[i]*e.p0Eig.Rho.At(i, j)*cmplx.Conj(phases[j]))
			}
		}
		e.pt = calc.Mixed(mat.Mul(mat.Mul(e.evecs, r), mat.Adjoint(e.evecs)))
	}
	e.t = t
	return nil
}

func (e *Evolution) setupIntegrate() error {
	var f ode.System
	var y0 []complex128
	switch {
	case e.pt.IsPure():
		f = func(dst []complex128, t float64, y []complex128) {
			e.ham.Apply(dst, y)
			for i := range dst {
				dst[i] *= -1i
			}
		}
		y0 = e.pt.Ket
	default:
		e.hBuf = make([]complex128, e.d)
		e.colBuf = make([]complex128, e.d)
		f = e.vonNeumann
		y0 = flatten(e.pt.Rho)
	}

	opt := ode.NewOptions().Tol(e.opt.rtol, e.opt.atol)
	e.solver = ode.NewSolver(f, e.t, y0, opt)
	return nil
}

// vonNeumann computes -i[H, rho] for a row major flattened rho.
func (e *Evolution) vonNeumann(dst []complex128, t float64, y []complex128) {
	d := e.d
	// dst temporarily holds H rho, computed column by column.
	for j := range d {
		for i := range d {
			e.colBuf[i] = y[i*d+j]
		}
		e.ham.Apply(e.hBuf, e.colBuf)
		for i := range d {
			dst[i*d+j] = e.hBuf[i]
		}
	}
	// Since both H and rho are Hermitian, rho H = (H rho)^H.
	for i := range d {
		for j := i; j < d; j++ {
			hrIJ, hrJI := dst[i*d+j], dst[j*d+i]
			dst[i*d+j] = -1i * (hrIJ - cmplx.Conj(hrJI))
			dst[j*d+i] = -1i * (hrJI - cmplx.Conj(hrIJ))
		}
	}
}

func (e *Evolution) updateIntegrate(t float64) error {
	if t < e.t {
		return errors.Errorf("cannot integrate backwards from %f to %f", e.t, t)
	}

	stopped := false
	err := e.solver.Integrate(t, func(tm float64, y []complex128) bool {
		e.t = tm
		e.pt = e.stateOf(y)
		e.record(tm, e.pt)
		e.logger.log(tm, t)
		if e.opt.stop != nil && e.opt.stop(tm, e.pt) {
			stopped = true
			return false
		}
		return true
	})
	if err != nil {
		return errors.Wrap(err, "")
	}
	if stopped {
		return ErrStopped
	}
	return nil
}

// stateOf copies the solver's state y.
func (e *Evolution) stateOf(y []complex128) calc.State {
	ket := make([]complex128, len(y))
	copy(ket, y)
	if e.d*e.d == len(y) && !e.pt.IsPure() {
		return calc.Mixed(mat.NewCDense(e.d, e.d, ket))
	}
	return calc.Pure(ket)
}

func (e *Evolution) setupExpm() error {
	switch h := e.ham.(type) {
	case *mat.COO:
		lo, hi := mat.Gerschgorin(h)
		e.norm = max(math.Abs(lo), math.Abs(hi))
	default:
		e.norm = mat.NormOne(mat.ToDense(e.ham))
	}
	return nil
}

func (e *Evolution) updateExpm(t float64) error {
	dt := complex(0, -(t - e.t))
	switch {
	case e.pt.IsPure():
		e.pt = calc.Pure(mat.ExpmMultiply(e.ham, dt, e.pt.Ket, e.norm))
	default:
		// U rho U^H = U (U rho)^H, since rho is Hermitian.
		u := e.expmColumns(dt, e.pt.Rho)
		e.pt = calc.Mixed(e.expmColumns(dt, mat.Adjoint(u)))
	}
	e.t = t
	return nil
}

// expmColumns applies exp(dt H) to every column of a.
func (e *Evolution) expmColumns(dt complex128, a *mat.CDense) *mat.CDense {
	out := mat.NewCDense(e.d, e.d, nil)
	col := make([]complex128, e.d)
	for j := range e.d {
		for i := range e.d {
			col[i] = a.At(i, j)
		}
		ucol := mat.ExpmMultiply(e.ham, dt, col, e.norm)
		for i, v := range ucol {
			out.Set(i, j, v)
		}
	}
	return out
}

func flatten(a *mat.CDense) []complex128 {
	r, c := a.Dims()
	flat := make([]complex128, 0, r*c)
	for i := range r {
		for j := range c {
			flat = append(flat, a.At(i, j))
		}
	}
	return flat
}
