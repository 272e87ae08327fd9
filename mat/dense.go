package mat

import (
	"fmt"
	"math"
	"math/cmplx"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// CDense is a dense complex matrix.
type CDense = mat.CDense

func NewCDense(rows, cols int, data []complex128) *CDense {
	return mat.NewCDense(rows, cols, data)
}

// FromRows builds a dense matrix from its rows.
func FromRows(rows [][]complex128) *CDense {
	m := NewCDense(len(rows), len(rows[0]), nil)
	for i, row := range rows {
		for j, v := range row {
			m.Set(i, j, v)
		}
	}
	return m
}

func Eye(n int) *CDense {
	m := NewCDense(n, n, nil)
	for i := range n {
		m.Set(i, i, 1)
	}
	return m
}

// Mul returns a @ b.
func Mul(a, b *CDense) *CDense {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ac != br {
		panic(fmt.Sprintf("%d %d %d %d", ar, ac, br, bc))
	}
	c := NewCDense(ar, bc, nil)
	row := make([]complex128, bc)
	for i := range ar {
		clear(row)
		for k := range ac {
			aik := a.At(i, k)
			if aik == 0 {
				continue
			}
			for j := range bc {
				row[j] += aik * b.At(k, j)
			}
		}
		for j, v := range row {
			c.Set(i, j, v)
		}
	}
	return c
}

// MulVec returns a @ x.
func MulVec(a *CDense, x []complex128) []complex128 {
	r, c := a.Dims()
	if c != len(x) {
		panic(fmt.Sprintf("%d %d %d", r, c, len(x)))
	}
	y := make([]complex128, r)
	for i := range r {
		for j, xj := range x {
			y[i] += a.At(i, j) * xj
		}
	}
	return y
}

// Adjoint returns the conjugate transpose of a.
func Adjoint(a *CDense) *CDense {
	r, c := a.Dims()
	h := NewCDense(c, r, nil)
	for i := range r {
		for j := range c {
			h.Set(j, i, cmplx.Conj(a.At(i, j)))
		}
	}
	return h
}

// AddScaled returns a + s*b.
func AddScaled(a *CDense, s complex128, b *CDense) *CDense {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br || ac != bc {
		panic(fmt.Sprintf("%d %d %d %d", ar, ac, br, bc))
	}
	c := NewCDense(ar, ac, nil)
	for i := range ar {
		for j := range ac {
			c.Set(i, j, a.At(i, j)+s*b.At(i, j))
		}
	}
	return c
}

// Scale returns s*a.
func Scale(s complex128, a *CDense) *CDense {
	r, c := a.Dims()
	b := NewCDense(r, c, nil)
	for i := range r {
		for j := range c {
			b.Set(i, j, s*a.At(i, j))
		}
	}
	return b
}

// Kron returns the Kronecker product a ⊗ b.
func Kron(a, b *CDense) *CDense {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	k := NewCDense(ar*br, ac*bc, nil)
	for i := range ar {
		for j := range ac {
			aij := a.At(i, j)
			if aij == 0 {
				continue
			}
			for y := range br {
				for x := range bc {
					k.Set(i*br+y, j*bc+x, aij*b.At(y, x))
				}
			}
		}
	}
	return k
}

func Trace(a *CDense) complex128 {
	r, c := a.Dims()
	if r != c {
		panic(fmt.Sprintf("%d %d", r, c))
	}
	var tr complex128
	for i := range r {
		tr += a.At(i, i)
	}
	return tr
}

// Inner returns <a|b>.
func Inner(a, b []complex128) complex128 {
	if len(a) != len(b) {
		panic(fmt.Sprintf("%d %d", len(a), len(b)))
	}
	var s complex128
	for i, ai := range a {
		s += cmplx.Conj(ai) * b[i]
	}
	return s
}

func Norm(x []complex128) float64 {
	var s float64
	for _, v := range x {
		s += real(v)*real(v) + imag(v)*imag(v)
	}
	return math.Sqrt(s)
}

// Outer returns |a><b|.
func Outer(a, b []complex128) *CDense {
	o := NewCDense(len(a), len(b), nil)
	for i, ai := range a {
		for j, bj := range b {
			o.Set(i, j, ai*cmplx.Conj(bj))
		}
	}
	return o
}

// NormOne returns the maximum absolute column sum of a.
func NormOne(a *CDense) float64 {
	r, c := a.Dims()
	var n float64
	for j := range c {
		var s float64
		for i := range r {
			s += cmplx.Abs(a.At(i, j))
		}
		n = max(n, s)
	}
	return n
}

func IsHermitian(a *CDense, tol float64) bool {
	r, c := a.Dims()
	if r != c {
		return false
	}
	for i := range r {
		for j := i; j < c; j++ {
			if cmplx.Abs(a.At(i, j)-cmplx.Conj(a.At(j, i))) > tol {
				return false
			}
		}
	}
	return true
}

// hermitianPairs is the number of random vector pairs used by IsHermitianOp.
const hermitianPairs = 3

// IsHermitianOp reports whether op equals its adjoint within tol.
// Matrices are compared entrywise, whereas other operators are required to satisfy
// <x|op y> = <op x|y> for a few random x and y, relative to |op x||y|.
func IsHermitianOp(op LinearOperator, tol float64) bool {
	switch o := op.(type) {
	case *COO:
		return o.IsHermitian(tol)
	case denseOp:
		return IsHermitian(o.a, tol)
	}
	if op.Rows() != op.Cols() {
		return false
	}

	rng := rand.New(rand.NewPCG(1, 2))
	randVec := func() []complex128 {
		v := make([]complex128, op.Cols())
		for i := range v {
			v[i] = complex(rng.NormFloat64(), rng.NormFloat64())
		}
		return v
	}
	hx, hy := make([]complex128, op.Rows()), make([]complex128, op.Rows())
	for range hermitianPairs {
		x, y := randVec(), randVec()
		op.Apply(hx, x)
		op.Apply(hy, y)
		scale := max(1, Norm(hx)*Norm(y), Norm(x)*Norm(hy))
		if cmplx.Abs(Inner(x, hy)-Inner(hx, y)) > tol*scale {
			return false
		}
	}
	return true
}

type denseOp struct {
	a *CDense
}

func (op denseOp) Rows() int {
	r, _ := op.a.Dims()
	return r
}

func (op denseOp) Cols() int {
	_, c := op.a.Dims()
	return c
}

func (op denseOp) Apply(dst, x []complex128) {
	r, c := op.a.Dims()
	if len(dst) != r || len(x) != c {
		panic(fmt.Sprintf("%d %d %d %d", r, c, len(dst), len(x)))
	}
	for i := range r {
		var s complex128
		for j, xj := range x {
			s += op.a.At(i, j) * xj
		}
		dst[i] = s
	}
}

// AsOperator wraps a dense matrix as a LinearOperator.
func AsOperator(a *CDense) LinearOperator {
	return denseOp{a: a}
}

// ToDense materializes op by applying it to every basis vector.
func ToDense(op LinearOperator) *CDense {
	switch o := op.(type) {
	case *COO:
		return o.CDense()
	case denseOp:
		return o.a
	}

	r, c := op.Rows(), op.Cols()
	d := NewCDense(r, c, nil)
	e := make([]complex128, c)
	col := make([]complex128, r)
	for j := range c {
		clear(e)
		e[j] = 1
		op.Apply(col, e)
		for i, v := range col {
			d.Set(i, j, v)
		}
	}
	return d
}

// CDenseRows returns the rows of a.
func CDenseRows(a *CDense) [][]complex128 {
	r, c := a.Dims()
	rows := make([][]complex128, r)
	for i := range r {
		rows[i] = make([]complex128, c)
		for j := range c {
			rows[i][j] = a.At(i, j)
		}
	}
	return rows
}
