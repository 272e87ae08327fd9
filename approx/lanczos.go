package approx

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	qmat "github.com/fumin/qdyn/mat"
)

const (
	// breakdownTol is the relative size of an off-diagonal Lanczos coefficient below which the Krylov subspace is invariant.
	breakdownTol = 1e-10
)

// lanczos runs at most steps iterations of the Lanczos algorithm on the Hermitian op starting from v.
// It returns the diagonal alpha and off-diagonal beta of the tridiagonal projection of op.
// Every new Lanczos vector is reorthogonalized against all previous ones.
func lanczos(op qmat.LinearOperator, v []complex128, steps int) ([]float64, []float64) {
	n := len(v)
	steps = min(steps, n)
	alpha := make([]float64, 0, steps)
	beta := make([]float64, 0, steps)

	basis := make([][]complex128, 0, steps)
	q := make([]complex128, n)
	norm := qmat.Norm(v)
	for i, vi := range v {
		q[i] = vi / complex(norm, 0)
	}

	var scale float64 = 1
	w := make([]complex128, n)
	for j := range steps {
		basis = append(basis, q)
		op.Apply(w, q)
		a := real(qmat.Inner(q, w))
		alpha = append(alpha, a)
		scale = max(scale, math.Abs(a))
		if j == steps-1 {
			break
		}

		// Orthogonalize twice against the whole basis.
		for range 2 {
			for _, b := range basis {
				c := qmat.Inner(b, w)
				for i := range w {
					w[i] -= c * b[i]
				}
			}
		}
		b := qmat.Norm(w)
		if b < breakdownTol*scale {
			break
		}
		beta = append(beta, b)
		scale = max(scale, b)

		q = make([]complex128, n)
		for i, wi := range w {
			q[i] = wi / complex(b, 0)
		}
	}
	return alpha, beta
}

// gaussQuadrature returns e1^T f(T) e1 where T is the symmetric tridiagonal matrix with diagonal alpha and off-diagonal beta.
func gaussQuadrature(alpha, beta []float64, f func(float64) float64) (float64, error) {
	k := len(alpha)
	t := mat.NewSymDense(k, nil)
	for i, a := range alpha {
		t.SetSym(i, i, a)
	}
	for i, b := range beta {
		t.SetSym(i, i+1, b)
	}

	var es mat.EigenSym
	if ok := es.Factorize(t, true); !ok {
		return math.NaN(), errors.Errorf("%#v %#v", alpha, beta)
	}
	theta := es.Values(nil)
	var u mat.Dense
	es.VectorsTo(&u)

	var s float64
	for j, th := range theta {
		tau := u.At(0, j)
		s += tau * tau * f(th)
	}
	return s, nil
}
