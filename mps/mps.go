// Package mps implements matrix product states of spin chains.
//
// References:
//   - The density-matrix renormalization group in the age of matrix product states, Ulrich Schollwock
package mps

import (
	"fmt"
	"math/cmplx"
	"math/rand/v2"
	"slices"

	"github.com/fumin/tensor"
	"github.com/pkg/errors"
)

const (
	// mpsLeftAxis is the axis of a_{l-1} in Figure 6.
	mpsLeftAxis  = 0
	mpsUpAxis    = 1
	mpsRightAxis = 2
	// mpoLeftAxis is the axis of b_{l-1} in Figure 35.
	mpoLeftAxis  = 0
	mpoRightAxis = 1
	mpoUpAxis    = 2
	mpoDownAxis  = 3

	// Machine precision.
	epsilon = 0x1p-23
)

// NewMPS decomposes a state tensor of shape {d0, d1, ...} into a left canonical matrix product state.
// Site i is of shape {left, di, right}.
func NewMPS(state *tensor.Dense, bufs [2]*tensor.Dense) []*tensor.Dense {
	return decompose(state, slices.Clone(state.Shape()), bufs)
}

// FromKet decomposes the ket of a chain with physical dimensions dims into a left canonical matrix product state.
// Site 0 is the most significant index of the ket.
// Unlike NewMPS, the number of sites is not limited by the maximum dimension of tensors.
func FromKet(ket []complex128, dims []int) ([]*tensor.Dense, error) {
	size := 1
	for _, d := range dims {
		if d < 1 {
			return nil, errors.Errorf("%#v", dims)
		}
		size *= d
	}
	if len(dims) == 0 || size != len(ket) {
		return nil, errors.Errorf("%#v %d", dims, len(ket))
	}

	state := tensor.Zeros(len(ket))
	for i, v := range ket {
		state.SetAt([]int{i}, complex64(v))
	}
	bufs := [2]*tensor.Dense{tensor.Zeros(1), tensor.Zeros(1)}
	return decompose(state, dims, bufs), nil
}

// decompose splits off one site at a time from state, whose volume is the product of physDs.
func decompose(state *tensor.Dense, physDs []int, bufs [2]*tensor.Dense) []*tensor.Dense {
	sites := make([]*tensor.Dense, 0, len(physDs))
	leftD := 1
	for _, physD := range physDs[:len(physDs)-1] {
		q := tensor.Zeros(1)
		r := tensor.QR(q, state.Reshape(leftD*physD, -1), bufs)
		leftD, state = r.Shape()[0], r
		sites = append(sites, q.Reshape(-1, physD, leftD))
	}

	last := state.Reshape(leftD, physDs[len(physDs)-1], 1)
	return append(sites, resetCopy(tensor.Zeros(1), last))
}

// RandMPS returns a random matrix product state with the physical dimensions of mpo.
// maxD is the maximum bond dimension, which is D in the discussion below equation 71 in section 4.1.4, Ulrich Schollwock.
func RandMPS(mpo []*tensor.Dense, maxD int, rng *rand.Rand) []*tensor.Dense {
	n := len(mpo)
	physDs := make([]int, n)
	for i, w := range mpo {
		physDs[i] = w.Shape()[mpoDownAxis]
	}

	// Bond dimensions grow towards the middle of the chain, as they do for an exact state.
	bonds := make([]int, n+1)
	bonds[0], bonds[n] = 1, 1
	for i := 1; i < n; i++ {
		bonds[i] = bonds[i-1] * physDs[i-1]
	}
	right := 1
	for i := n - 1; i > 0; i-- {
		right *= physDs[i]
		bonds[i] = min(bonds[i], right, maxD)
	}

	sites := make([]*tensor.Dense, 0, n)
	for i, physD := range physDs {
		sites = append(sites, randTensor(rng, bonds[i], physD, bonds[i+1]))
	}
	return sites
}

// InnerProduct computes <x|y>.
// See Section 4.2.1 Efficient evaluation of contractions, Ulrich Schollwock.
func InnerProduct(x, y []*tensor.Dense, bufs [2]*tensor.Dense) complex64 {
	if len(x) != len(y) {
		panic(fmt.Sprintf("%d %d", len(x), len(y)))
	}

	f := ones(bufs[0], 1, 1)
	const fTopAxis, fBottomAxis = 0, 1
	for i, xi := range x {
		fyi := tensor.Contract(bufs[1], f, y[i], [][2]int{{fBottomAxis, mpsLeftAxis}})
		tensor.Contract(f, xi.Conj(), fyi, [][2]int{{mpsLeftAxis, fTopAxis}, {mpsUpAxis, mpsUpAxis}})
	}

	if !slices.Equal(f.Shape(), []int{1, 1}) {
		panic(fmt.Sprintf("%#v", f.Shape()))
	}
	return f.At(0, 0)
}

// Expectation returns <ms|ws|ms> / <ms|ms> for the MPO ws.
func Expectation(ws, ms []*tensor.Dense) complex64 {
	if len(ws) != len(ms) {
		panic(fmt.Sprintf("%d %d", len(ws), len(ms)))
	}
	bufs := [2]*tensor.Dense{tensor.Zeros(1), tensor.Zeros(1)}

	env, next := ones(tensor.Zeros(1), 1, 1, 1), tensor.Zeros(1)
	for i, w := range ws {
		env, next = lExpression(next, env, w, ms[i], bufs[:]), env
	}
	if !slices.Equal(env.Shape(), []int{1, 1, 1}) {
		panic(fmt.Sprintf("%#v", env.Shape()))
	}
	wv := env.At(0, 0, 0)

	return wv / InnerProduct(ms, ms, bufs)
}

// lExpression sets fi to the L expression of Equation 192, Section 6.2, Ulrich Schollwock,
// extending fi1 by the site m and the MPO w.
// See Figure 38, Ulrich Schollwock for a graphical explanation.
func lExpression(fi, fi1, w, m *tensor.Dense, bufs []*tensor.Dense) *tensor.Dense {
	// fi1 is of shape {fTop, fMid, fBot}.
	// fm is of shape {fTop, fMid, mpsTop, mpsRight}.
	fm := tensor.Contract(bufs[0], fi1, m, [][2]int{{2, mpsLeftAxis}})

	// wfm is of shape {mpoRight, mpoUp, fTop, mpsRight}.
	wfm := tensor.Contract(bufs[1], w, fm, [][2]int{{mpoDownAxis, 2}, {mpoLeftAxis, 1}})

	// fi is of shape {mpsRight.conj, mpoRight, mpsRight}.
	tensor.Contract(fi, m.Conj(), wfm, [][2]int{{mpsLeftAxis, 2}, {mpsUpAxis, 1}})
	return fi
}

// rExpression is the mirror image of lExpression, see Equation 193, Ulrich Schollwock.
func rExpression(fi, fi1, w, m *tensor.Dense, bufs []*tensor.Dense) *tensor.Dense {
	// fm is of shape {fTop, fMid, mpsLeft, mpsTop}.
	fm := tensor.Contract(bufs[0], fi1, m, [][2]int{{2, mpsRightAxis}})

	// wfm is of shape {mpoLeft, mpoUp, fTop, mpsLeft}.
	wfm := tensor.Contract(bufs[1], w, fm, [][2]int{{mpoDownAxis, 3}, {mpoRightAxis, 1}})

	// fi is of shape {mpsLeft.conj, mpoLeft, mpsLeft}.
	tensor.Contract(fi, m.Conj(), wfm, [][2]int{{mpsRightAxis, 2}, {mpsUpAxis, 1}})
	return fi
}

// squareExpectation returns <ms|ws^2|ms>.
// See Figure 44, Section 6.4, Ulrich Schollwock for a graphical explanation.
func squareExpectation(ws, ms []*tensor.Dense, bufs [2]*tensor.Dense) complex64 {
	// f is of shape {fTop, fMid2, fMid, fBot}.
	f := ones(bufs[0], 1, 1, 1, 1)
	for i, w := range ws {
		m := ms[i]
		// fm is of shape {fTop, fMid2, fMid, mpsTop, mpsRight}.
		fm := tensor.Contract(bufs[1], f, m, [][2]int{{3, mpsLeftAxis}})
		// wfm is of shape {mpoRight, mpoUp, fTop, fMid2, mpsRight}.
		wfm := tensor.Contract(bufs[0], w, fm, [][2]int{{mpoDownAxis, 3}, {mpoLeftAxis, 2}})
		// wwfm is of shape {mpoRight2, mpoUp2, mpoRight, fTop, mpsRight}.
		wwfm := tensor.Contract(bufs[1], w, wfm, [][2]int{{mpoDownAxis, 1}, {mpoLeftAxis, 3}})
		// f is of shape {mpsRight.conj, mpoRight2, mpoRight, mpsRight}.
		f = tensor.Contract(bufs[0], m.Conj(), wwfm, [][2]int{{mpsLeftAxis, 3}, {mpsUpAxis, 1}})
	}

	if !slices.Equal(f.Shape(), []int{1, 1, 1, 1}) {
		panic(fmt.Sprintf("%#v", f.Shape()))
	}
	return f.At(0, 0, 0, 0)
}

// Dense contracts the matrix product state ms into a dense ket.
// Site 0 is the most significant index of the ket.
func Dense(ms []*tensor.Dense) []complex128 {
	// p is of shape {1, d0*d1*...*di, right}.
	p, buf := resetCopy(tensor.Zeros(1), ms[0]), tensor.Zeros(1)
	for _, m := range ms[1:] {
		pm := tensor.Contract(buf, p, m, [][2]int{{mpsRightAxis, mpsLeftAxis}})
		s := pm.Shape()
		buf, p = p, pm.Reshape(s[0], s[1]*s[2], s[3])
	}

	shape := p.Shape()
	if shape[0] != 1 || shape[2] != 1 {
		panic(fmt.Sprintf("%#v", shape))
	}
	ket := make([]complex128, shape[1])
	for i := range ket {
		ket[i] = complex128(p.At(0, i, 0))
	}
	return ket
}

func resetCopy(dst, src *tensor.Dense) *tensor.Dense {
	shape := src.Shape()
	zeroDigit := make([]int, len(shape))
	dst.Reset(shape...).Set(zeroDigit, src)
	return dst
}

func ones(t *tensor.Dense, shape ...int) *tensor.Dense {
	t.Reset(shape...)
	for ijk := range t.All() {
		t.SetAt(ijk, 1)
	}
	return t
}

func abs(x complex64) float32 {
	return float32(cmplx.Abs(complex128(x)))
}

func randTensor(rng *rand.Rand, shape ...int) *tensor.Dense {
	t := tensor.Zeros(shape...)
	for ijk := range t.All() {
		t.SetAt(ijk, complex(rng.Float32()*2-1, rng.Float32()*2-1))
	}
	return t
}
