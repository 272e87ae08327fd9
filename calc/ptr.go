package calc

import (
	"math/cmplx"
	"slices"

	"github.com/pkg/errors"

	"github.com/fumin/qdyn/mat"
)

// PartialTrace traces out every subsystem of s not in keep.
// dims are the subsystem dimensions, and the kept subsystems are ordered ascending in the result.
func PartialTrace(s State, dims, keep []int) (*mat.CDense, error) {
	keep = slices.Clone(keep)
	slices.Sort(keep)
	ss, err := mat.NewSubsystems(dims, keep, mat.Complement(len(dims), keep))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if ss.Dim() != s.Dim() {
		return nil, errors.Errorf("%#v %d", dims, s.Dim())
	}
	dk, dt := ss.Sizes[0], ss.Sizes[1]

	rho := mat.NewCDense(dk, dk, nil)
	idx := make([]int, 2)
	if s.IsPure() {
		// Arrange the ket as a dk x dt matrix m, so that rho = m m^H.
		m := make([]complex128, dk*dt)
		for i, v := range s.Ket {
			ss.Split(idx, i)
			m[idx[0]*dt+idx[1]] = v
		}
		for i := range dk {
			for j := i; j < dk; j++ {
				var v complex128
				for t := range dt {
					v += m[i*dt+t] * cmplx.Conj(m[j*dt+t])
				}
				rho.Set(i, j, v)
				rho.Set(j, i, cmplx.Conj(v))
			}
		}
		return rho, nil
	}

	// full[k][t] is the flat index of kept index k and traced index t.
	full := make([][]int, dk)
	for k := range dk {
		full[k] = make([]int, dt)
		for t := range dt {
			idx[0], idx[1] = k, t
			full[k][t] = ss.Join(idx)
		}
	}
	for i := range dk {
		for j := range dk {
			var v complex128
			for t := range dt {
				v += s.Rho.At(full[i][t], full[j][t])
			}
			rho.Set(i, j, v)
		}
	}
	return rho, nil
}

// PartialTranspose transposes the subsystems sysb of the density operator rho.
func PartialTranspose(rho *mat.CDense, dims, sysb []int) (*mat.CDense, error) {
	sysb = slices.Clone(sysb)
	slices.Sort(sysb)
	ss, err := mat.NewSubsystems(dims, mat.Complement(len(dims), sysb), sysb)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	d, c := rho.Dims()
	if d != c || d != ss.Dim() {
		return nil, errors.Errorf("%#v %d %d", dims, d, c)
	}

	pt := mat.NewCDense(d, d, nil)
	ii, jj := make([]int, 2), make([]int, 2)
	for i := range d {
		ss.Split(ii, i)
		for j := range d {
			ss.Split(jj, j)
			ii[1], jj[1] = jj[1], ii[1]
			pt.Set(i, j, rho.At(ss.Join(ii), ss.Join(jj)))
			ii[1], jj[1] = jj[1], ii[1]
		}
	}
	return pt, nil
}
