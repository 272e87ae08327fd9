package mat

import (
	"math"
	"math/cmplx"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Eigh computes the eigen decomposition of the Hermitian matrix a.
// The eigenvalues are returned in ascending order, and the i-th column of vecs is the eigenvector of vals[i].
//
// The decomposition is done on the real symmetric embedding
//
//	[Re(a) -Im(a)]
//	[Im(a)  Re(a)]
//
// whose spectrum is that of a with every eigenvalue doubled.
// An eigenvector [x; y] of the embedding corresponds to the eigenvector x+iy of a.
func Eigh(a *CDense) ([]float64, *CDense, error) {
	n, c := a.Dims()
	if n != c {
		return nil, nil, errors.Errorf("%d %d", n, c)
	}

	s := mat.NewSymDense(2*n, nil)
	for i := range n {
		for j := i; j < n; j++ {
			re := real(a.At(i, j))
			s.SetSym(i, j, re)
			s.SetSym(n+i, n+j, re)
		}
		for j := range n {
			s.SetSym(n+i, j, imag(a.At(i, j)))
		}
	}

	var es mat.EigenSym
	if ok := es.Factorize(s, true); !ok {
		return nil, nil, errors.Errorf("factorize failed")
	}
	embVals := es.Values(nil)
	var embVecs mat.Dense
	es.VectorsTo(&embVecs)

	var scale float64 = 1
	for _, v := range embVals {
		scale = max(scale, math.Abs(v))
	}
	tol := 1e-8 * scale

	vals := make([]float64, 0, n)
	vecs := NewCDense(n, n, nil)
	// accepted holds the eigenvectors picked so far.
	accepted := make([][]complex128, 0, n)
	candidate := func(k int) []complex128 {
		v := make([]complex128, n)
		for i := range n {
			v[i] = complex(embVecs.At(i, k), embVecs.At(n+i, k))
		}
		return v
	}
	for start := 0; start < len(embVals); {
		end := start + 1
		for end < len(embVals) && embVals[end]-embVals[end-1] <= tol {
			end++
		}
		var mean float64
		for _, v := range embVals[start:end] {
			mean += v
		}
		mean /= float64(end - start)

		// Within a degenerate group, x+iy and its partner i(x+iy) are both present.
		// Greedily pick the candidates that are most orthogonal to those already chosen.
		group := make([][]complex128, 0, end-start)
		for k := start; k < end; k++ {
			group = append(group, candidate(k))
		}
		groupStart := len(accepted)
		for range (end - start + 1) / 2 {
			var best []complex128
			var bestNorm float64 = -1
			for _, g := range group {
				r := residual(g, accepted[groupStart:])
				if rn := Norm(r); rn > bestNorm {
					best, bestNorm = r, rn
				}
			}
			if bestNorm < 1e-3 {
				break
			}
			for i := range best {
				best[i] /= complex(bestNorm, 0)
			}
			accepted = append(accepted, best)
			vals = append(vals, mean)
		}

		start = end
	}
	if len(vals) != n {
		return nil, nil, errors.Errorf("%d %d", len(vals), n)
	}

	for j, v := range accepted {
		fixPhase(v)
		for i, vi := range v {
			vecs.Set(i, j, vi)
		}
	}
	return vals, vecs, nil
}

// residual returns the component of v orthogonal to the orthonormal vectors basis.
func residual(v []complex128, basis [][]complex128) []complex128 {
	r := make([]complex128, len(v))
	copy(r, v)
	// Orthogonalize twice for numerical stability.
	for range 2 {
		for _, b := range basis {
			c := Inner(b, r)
			for i := range r {
				r[i] -= c * b[i]
			}
		}
	}
	return r
}

// fixPhase makes the largest entry of v real and positive.
func fixPhase(v []complex128) {
	var big complex128
	for _, x := range v {
		if cmplx.Abs(x) > cmplx.Abs(big)+1e-12 {
			big = x
		}
	}
	if big == 0 {
		return
	}
	phase := cmplx.Conj(big) / complex(cmplx.Abs(big), 0)
	for i := range v {
		v[i] *= phase
	}
}

// FuncHermitian returns f(a) for a Hermitian matrix a.
func FuncHermitian(a *CDense, f func(float64) float64) (*CDense, error) {
	vals, vecs, err := Eigh(a)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	n := len(vals)
	fv := make([]float64, n)
	for i, v := range vals {
		fv[i] = f(v)
	}

	b := NewCDense(n, n, nil)
	for i := range n {
		for j := range n {
			var s complex128
			for k := range n {
				s += vecs.At(i, k) * complex(fv[k], 0) * cmplx.Conj(vecs.At(j, k))
			}
			b.Set(i, j, s)
		}
	}
	return b, nil
}

// Sqrtm returns the square root of the positive semi-definite matrix a.
// Small negative eigenvalues from rounding are clipped to zero.
func Sqrtm(a *CDense) (*CDense, error) {
	s, err := FuncHermitian(a, func(x float64) float64 { return math.Sqrt(max(x, 0)) })
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return s, nil
}

// Expm returns the matrix exponential of a.
func Expm(a *CDense) *CDense {
	n, _ := a.Dims()
	emb := mat.NewDense(2*n, 2*n, nil)
	for i := range n {
		for j := range n {
			v := a.At(i, j)
			emb.Set(i, j, real(v))
			emb.Set(n+i, n+j, real(v))
			emb.Set(n+i, j, imag(v))
			emb.Set(i, n+j, -imag(v))
		}
	}
	var e mat.Dense
	e.Exp(emb)

	b := NewCDense(n, n, nil)
	for i := range n {
		for j := range n {
			b.Set(i, j, complex(e.At(i, j), e.At(n+i, j)))
		}
	}
	return b
}

// ExpmMultiply returns exp(t*op) @ v without forming the exponential.
// norm is an upper bound of the spectral radius of op, and is used to pick the number of substeps.
// Each substep sums a truncated Taylor series until the terms become negligible.
func ExpmMultiply(op LinearOperator, t complex128, v []complex128, norm float64) []complex128 {
	const maxTerms = 64
	const tol = 1e-15

	scale := cmplx.Abs(t) * norm
	steps := max(1, int(math.Ceil(scale)))
	dt := t / complex(float64(steps), 0)

	w := make([]complex128, len(v))
	copy(w, v)
	term := make([]complex128, len(v))
	next := make([]complex128, len(v))
	for range steps {
		copy(term, w)
		wNorm := Norm(w)
		for k := 1; k <= maxTerms; k++ {
			op.Apply(next, term)
			c := dt / complex(float64(k), 0)
			for i := range next {
				next[i] *= c
			}
			term, next = next, term
			for i := range w {
				w[i] += term[i]
			}
			if Norm(term) <= tol*max(wNorm, 1) {
				break
			}
		}
	}
	return w
}

// Gerschgorin returns lower and upper bounds of the real parts of the eigenvalues of m.
// See Theorem A3, Bounds for the eigenvalues of a matrix, Kenneth R. Garren.
func Gerschgorin(m *COO) (float64, float64) {
	centers := make([]complex128, m.rows)
	radii := make([]float64, m.rows)
	for _, v := range m.Data {
		if v.row == v.col {
			centers[v.row] = v.v
		} else {
			radii[v.row] += cmplx.Abs(v.v)
		}
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for i, c := range centers {
		lo = min(lo, real(c)-radii[i])
		hi = max(hi, real(c)+radii[i])
	}
	return lo, hi
}
