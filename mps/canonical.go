package mps

import (
	"math"

	"github.com/fumin/tensor"
	"github.com/pkg/errors"

	"github.com/fumin/qdyn/calc"
	"github.com/fumin/qdyn/mat"
)

// rightNormalize makes site i right normalized, multiplying the remainder into site i-1.
// See Section 4.4.2 Generation of a right-canonical MPS, Ulrich Schollwock.
func rightNormalize(ms []*tensor.Dense, i int, bufs []*tensor.Dense) {
	s := ms[i].Shape()
	dUp, dRight := s[mpsUpAxis], s[mpsRightAxis]

	// Decompose ms[i] = l @ q.H.
	mi := ms[i].Reshape(s[mpsLeftAxis], dUp*dRight)
	q := bufs[0]
	l := tensor.QR(q, mi.H(), [2]*tensor.Dense(bufs[1:])).H()

	// ms[i-1] = ms[i-1] @ l.
	resetCopy(ms[i-1], tensor.Contract(bufs[1], ms[i-1], l, [][2]int{{mpsRightAxis, 0}}))
	ms[i] = resetCopy(ms[i], q.H()).Reshape(-1, dUp, dRight)
}

// leftNormalize makes site i left normalized, multiplying the remainder into site i+1.
func leftNormalize(ms []*tensor.Dense, i int, bufs []*tensor.Dense) {
	s := ms[i].Shape()
	dLeft, dUp := s[mpsLeftAxis], s[mpsUpAxis]

	// Decompose ms[i] = q @ r.
	mi := ms[i].Reshape(dLeft*dUp, s[mpsRightAxis])
	q := bufs[0]
	r := tensor.QR(q, mi, [2]*tensor.Dense(bufs[1:]))

	// ms[i+1] = r @ ms[i+1].
	resetCopy(ms[i+1], tensor.Contract(bufs[1], r, ms[i+1], [][2]int{{1, mpsLeftAxis}}))
	ms[i] = resetCopy(ms[i], q).Reshape(dLeft, dUp, -1)
}

// Entropy returns the entanglement entropy in bits between the sites [0, cut] and the remaining sites of ms.
// ms is not modified.
func Entropy(ms []*tensor.Dense, cut int) (float64, error) {
	if cut < 0 || cut >= len(ms)-1 {
		return math.NaN(), errors.Errorf("%d %d", cut, len(ms))
	}
	cs := make([]*tensor.Dense, 0, len(ms))
	for _, m := range ms {
		cs = append(cs, resetCopy(tensor.Zeros(1), m))
	}

	// Bring cs into the mixed canonical form A...A C B...B with the center C at cut.
	bufs := []*tensor.Dense{tensor.Zeros(1), tensor.Zeros(1), tensor.Zeros(1)}
	for i := range cut {
		leftNormalize(cs, i, bufs)
	}
	for i := len(cs) - 1; i > cut; i-- {
		rightNormalize(cs, i, bufs)
	}

	// The Gram matrix of C reshaped to {left*up, right} has the squared Schmidt values as eigenvalues.
	c := cs[cut]
	s := c.Shape()
	cm := mat.NewCDense(s[mpsLeftAxis]*s[mpsUpAxis], s[mpsRightAxis], nil)
	for ijk, v := range c.All() {
		cm.Set(ijk[mpsLeftAxis]*s[mpsUpAxis]+ijk[mpsUpAxis], ijk[mpsRightAxis], complex128(v))
	}
	gram := mat.Mul(mat.Adjoint(cm), cm)
	tr := real(mat.Trace(gram))
	if tr < epsilon {
		return math.NaN(), errors.Errorf("%f", tr)
	}

	e, err := calc.Entropy(mat.Scale(complex(1/tr, 0), gram))
	if err != nil {
		return math.NaN(), errors.Wrap(err, "")
	}
	return e, nil
}
