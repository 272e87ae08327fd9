package mps

import (
	"github.com/fumin/tensor"
)

var (
	zero = [][]complex64{
		{0, 0},
		{0, 0},
	}
	identity = [][]complex64{
		{1, 0},
		{0, 1},
	}
	pauliX = [][]complex64{
		{0, 1},
		{1, 0},
	}
	pauliY = [][]complex64{
		{0, -1i},
		{1i, 0},
	}
	pauliZ = [][]complex64{
		{1, 0},
		{0, -1},
	}
)

func mul(c complex64, x [][]complex64) [][]complex64 {
	return tensor.T2(x).Mul(c).ToSlice2()
}

// MagnetizationZ returns the MPO of sum_i Z_i on a chain of n sites.
func MagnetizationZ(n int) []*tensor.Dense {
	w := tensor.T4([][][][]complex64{
		{identity, zero},
		{pauliZ, identity},
	})
	return newMPO(w, n)
}

// Ising returns the MPO of the transverse field Ising chain -sum_i Z_i Z_{i+1} - h sum_i X_i.
func Ising(n int, h complex64) []*tensor.Dense {
	w := tensor.T4([][][][]complex64{
		{identity, zero, zero},
		{pauliZ, zero, zero},
		{mul(-h, pauliX), mul(-1, pauliZ), identity},
	})
	return newMPO(w, n)
}

// Heisenberg returns the MPO of the open Heisenberg chain
// sum_i j[0] Sx_i Sx_{i+1} + j[1] Sy_i Sy_{i+1} + j[2] Sz_i Sz_{i+1} - bz sum_i Sz_i,
// where S = sigma/2 are the spin one half operators.
// See Section 6.1 Construction of a Hamiltonian MPO, Ulrich Schollwock.
func Heisenberg(n int, j [3]complex64, bz complex64) []*tensor.Dense {
	sx, sy, sz := mul(0.5, pauliX), mul(0.5, pauliY), mul(0.5, pauliZ)
	w := tensor.T4([][][][]complex64{
		{identity, zero, zero, zero, zero},
		{sx, zero, zero, zero, zero},
		{sy, zero, zero, zero, zero},
		{sz, zero, zero, zero, zero},
		{mul(-bz, sz), mul(j[0], sx), mul(j[1], sy), mul(j[2], sz), identity},
	})
	return newMPO(w, n)
}

func newMPO(w *tensor.Dense, n int) []*tensor.Dense {
	d0, d1, d2, d3 := w.Shape()[0], w.Shape()[1], w.Shape()[2], w.Shape()[3]

	// A single site only has the on-site term w[-1, 0].
	if n == 1 {
		return []*tensor.Dense{w.Slice([][2]int{{d0 - 1, d0}, {0, 1}, {0, d2}, {0, d3}})}
	}

	mpo := make([]*tensor.Dense, 0, n)

	// First MPO is w[-1].
	mpo = append(mpo, w.Slice([][2]int{{d0 - 1, d0}, {0, d1}, {0, d2}, {0, d3}}))

	for range n - 2 {
		mpo = append(mpo, w)
	}

	// Last MPO is w[:, 0].
	mpo = append(mpo, w.Slice([][2]int{{0, d0}, {0, 1}, {0, d2}, {0, d3}}))

	return mpo
}
