package mps

import (
	"fmt"
	"log"

	"github.com/fumin/tensor"
	"github.com/pkg/errors"
)

// SearchGroundStateOptions are options for the MPS ground state search algorithm.
type SearchGroundStateOptions struct {
	maxIterations int
	tol           float32
	verbose       bool
}

// NewSearchGroundStateOptions returns the default MPS ground state search options.
func NewSearchGroundStateOptions() SearchGroundStateOptions {
	opt := SearchGroundStateOptions{}
	opt.maxIterations = 32
	opt.tol = 1e-6
	return opt
}

// MaxIterations sets the maximum number of sweeps.
func (opt SearchGroundStateOptions) MaxIterations(i int) SearchGroundStateOptions {
	opt.maxIterations = i
	return opt
}

// Tol sets the tolerance of the convergence criterion <H^2> - (<H>)^2.
func (opt SearchGroundStateOptions) Tol(tol float32) SearchGroundStateOptions {
	opt.tol = tol
	return opt
}

// Verbose logs the energy after every sweep.
func (opt SearchGroundStateOptions) Verbose(v bool) SearchGroundStateOptions {
	opt.verbose = v
	return opt
}

// Result is the outcome of a ground state search.
type Result struct {
	// Energy is <H> of the final state.
	Energy float64
	// Variance is <H^2> - <H>^2 of the final state.
	Variance float64
	// Sweeps is the number of right and left sweep pairs performed.
	Sweeps int
}

// dmrg holds the environments and scratch tensors of a ground state search.
type dmrg struct {
	ws []*tensor.Dense
	// envs[l] is the L expression up to site l left of the active site,
	// and the R expression from site l right of it.
	envs []*tensor.Dense
	bufs [10]*tensor.Dense
}

func newDMRG(ws []*tensor.Dense) *dmrg {
	d := &dmrg{ws: ws, envs: make([]*tensor.Dense, 0, len(ws))}
	for range ws {
		d.envs = append(d.envs, tensor.Zeros(1))
	}
	for i := range len(d.bufs) {
		d.bufs[i] = tensor.Zeros(1)
	}
	return d
}

// SearchGroundState optimizes ms in place into the ground state of the MPO ws.
// Chains need at least two sites.
// See Section 6.3 Iterative ground state search, Ulrich Schollwock.
func SearchGroundState(ws, ms []*tensor.Dense, options ...SearchGroundStateOptions) (Result, error) {
	opt := NewSearchGroundStateOptions()
	if len(options) > 0 {
		opt = options[0]
	}
	if len(ws) != len(ms) {
		return Result{}, errors.Errorf("%d %d", len(ws), len(ms))
	}
	if len(ms) < 2 {
		return Result{}, errors.Errorf("%d", len(ms))
	}

	d := newDMRG(ws)
	for l := len(ms) - 1; l >= 1; l-- {
		rightNormalize(ms, l, d.bufs[:3])
	}
	d.buildRight(ms)

	var res Result
	for res.Sweeps < opt.maxIterations {
		if err := d.rightSweep(ms); err != nil {
			return res, errors.Wrap(err, fmt.Sprintf("%d", res.Sweeps))
		}
		if err := d.leftSweep(ms); err != nil {
			return res, errors.Wrap(err, fmt.Sprintf("%d", res.Sweeps))
		}
		res.Sweeps++

		bufs2 := [2]*tensor.Dense(d.bufs[:2])
		norm2 := InnerProduct(ms, ms, bufs2)
		if abs(norm2) < epsilon {
			return res, errors.Errorf("%f", norm2)
		}
		// leftSweep built the R expressions down to envs[1], so only envs[0] is missing.
		rExpression(d.envs[0], d.envs[1], ws[0], ms[0], d.bufs[:2])
		h := d.envs[0].At(0, 0, 0) / norm2
		h2 := squareExpectation(ws, ms, bufs2) / norm2
		variance := h2 - h*h
		res.Energy, res.Variance = float64(real(h)), float64(real(variance))
		if opt.verbose {
			log.Printf("sweep %d energy %f variance %g", res.Sweeps, res.Energy, res.Variance)
		}
		if abs(variance) < opt.tol*max(abs(h2), 1) {
			return res, nil
		}
	}
	return res, errors.Errorf("not converged %#v", res)
}

// buildRight sets envs[l] to the R expression of the sites from l to the end.
func (d *dmrg) buildRight(ms []*tensor.Dense) {
	env := ones(d.envs[len(ms)-1], 1, 1, 1)
	for l := len(ms) - 1; l >= 0; l-- {
		env = rExpression(d.envs[l], env, d.ws[l], ms[l], d.bufs[:2])
	}
}

// optimize replaces site l by the lowest eigenvector of its effective Hamiltonian.
func (d *dmrg) optimize(ms []*tensor.Dense, l int, left, right *tensor.Dense) error {
	h := effectiveH(d.bufs[0], left, right, d.ws[l], d.bufs[1:])

	eigvals, eigvecs := d.bufs[1], d.bufs[2]
	if err := tensor.Arnoldi(eigvals, eigvecs, h, 1, [7]*tensor.Dense(d.bufs[3:])); err != nil {
		return errors.Wrap(err, fmt.Sprintf("%d", l))
	}
	resetCopy(ms[l], eigvecs.Reshape(ms[l].Shape()...))
	return nil
}

func (d *dmrg) rightSweep(ms []*tensor.Dense) error {
	for l := range len(ms) - 1 {
		left := ones(d.envs[l], 1, 1, 1)
		if l > 0 {
			left = d.envs[l-1]
		}
		if err := d.optimize(ms, l, left, d.envs[l+1]); err != nil {
			return errors.Wrap(err, "")
		}

		// Keeping the sites left of l left normalized, and those right of l right normalized,
		// reduces the generalized eigenvalue problem to an ordinary one.
		// See Equation 211, Section 6.3 Iterative ground state search, Ulrich Schollwock.
		leftNormalize(ms, l, d.bufs[:3])
		d.envs[l+1].Reset(1)

		lExpression(d.envs[l], left, d.ws[l], ms[l], d.bufs[:2])
	}
	return nil
}

func (d *dmrg) leftSweep(ms []*tensor.Dense) error {
	for l := len(ms) - 1; l >= 1; l-- {
		right := ones(d.envs[l], 1, 1, 1)
		if l < len(ms)-1 {
			right = d.envs[l+1]
		}
		if err := d.optimize(ms, l, d.envs[l-1], right); err != nil {
			return errors.Wrap(err, "")
		}

		rightNormalize(ms, l, d.bufs[:3])
		d.envs[l-1].Reset(1)

		rExpression(d.envs[l], right, d.ws[l], ms[l], d.bufs[:2])
	}
	return nil
}

// effectiveH returns the H matrix defined in Equation 210, Section 6.3 Iterative ground state search, Ulrich Schollwock.
func effectiveH(h, left, right, w *tensor.Dense, bufs []*tensor.Dense) *tensor.Dense {
	// right is of shape {rightTop, rightMid, rightBot}.
	// wRight is of shape {mpoLeft, mpoUp, mpoDown, rightTop, rightBot}.
	wRight := tensor.Contract(bufs[0], w, right, [][2]int{{mpoRightAxis, 1}})

	// left is of shape {leftTop, leftMid, leftBot}.
	// lwr is of shape {leftTop, leftBot, mpoUp, mpoDown, rightTop, rightBot}.
	lwr := tensor.Contract(bufs[1], left, wRight, [][2]int{{1, 0}})

	// h is of shape {leftTop, mpoUp, rightTop, leftBot, mpoDown, rightBot}.
	resetCopy(h, lwr.Transpose(0, 2, 4, 1, 3, 5))

	ls, ws, rs := left.Shape(), w.Shape(), right.Shape()
	if ls[0] != ls[2] || ws[mpoUpAxis] != ws[mpoDownAxis] || rs[0] != rs[2] {
		panic(fmt.Sprintf("%#v %#v %#v", ls, ws, rs))
	}
	return h.Reshape(ls[0]*ws[mpoUpAxis]*rs[0], ls[2]*ws[mpoDownAxis]*rs[2])
}
