// Package qdyn builds Hamiltonians of spin lattices.
//
// Spin k of a lattice of numSpins spins is the k-th most significant bit of a basis index,
// and site {y, x} of an n[0] x n[1] lattice is spin y*n[1]+x.
package qdyn

import (
	"cmp"
	"log"
	"math"
	"slices"

	"github.com/pkg/errors"

	"github.com/fumin/qdyn/mat"
)

var (
	identity = mat.COOIdentity(2)
)

// TransverseFieldIsing sets hamiltonian to -sum_<ij> Z_i Z_j - h sum_i X_i on an open n[0] x n[1] lattice.
// buf is a scratch matrix.
func TransverseFieldIsing(hamiltonian, buf *mat.COO, n [2]int, h complex128) {
	numSpins := n[0] * n[1]
	hamiltonian.Zeros(1<<numSpins, 1<<numSpins)
	z := mat.M(mat.PauliZ)
	x := mat.M(mat.PauliX)

	for y := 0; y < n[0]; y++ {
		for xx := 0; xx < n[1]; xx++ {
			site := y*n[1] + xx
			up := y - 1
			if up >= 0 {
				sites(buf, numSpins, map[int]*mat.COO{up*n[1] + xx: z, site: z})
				hamiltonian.Add(-1, buf)
			}

			left := xx - 1
			if left >= 0 {
				sites(buf, numSpins, map[int]*mat.COO{y*n[1] + left: z, site: z})
				hamiltonian.Add(-1, buf)
			}

			sites(buf, numSpins, map[int]*mat.COO{site: x})
			hamiltonian.Add(-h, buf)
		}
	}
}

// Heisenberg sets hamiltonian to the Heisenberg chain of n spins
// sum_i j[0] Sx_i Sx_{i+1} + j[1] Sy_i Sy_{i+1} + j[2] Sz_i Sz_{i+1} - bz sum_i Sz_i,
// where S = sigma/2 are the spin one half operators.
// If cyclic, spin n-1 is coupled to spin 0.
func Heisenberg(hamiltonian, buf *mat.COO, n int, j [3]float64, bz float64, cyclic bool) {
	hamiltonian.Zeros(1<<n, 1<<n)
	spins := [3]*mat.COO{mat.M(mat.PauliX), mat.M(mat.PauliY), mat.M(mat.PauliZ)}
	for _, s := range spins {
		s.Mul(mat.M([][]complex128{{0.5}}))
	}

	bonds := make([][2]int, 0, n)
	for i := range n - 1 {
		bonds = append(bonds, [2]int{i, i + 1})
	}
	if cyclic && n > 2 {
		bonds = append(bonds, [2]int{n - 1, 0})
	}

	for _, b := range bonds {
		for k, s := range spins {
			if j[k] == 0 {
				continue
			}
			sites(buf, n, map[int]*mat.COO{b[0]: s, b[1]: s})
			hamiltonian.Add(complex(j[k], 0), buf)
		}
	}
	if bz != 0 {
		for i := range n {
			sites(buf, n, map[int]*mat.COO{i: spins[2]})
			hamiltonian.Add(complex(-bz, 0), buf)
		}
	}
}

// sites sets system to the tensor product of ops over numSpins spins, with identities on the other spins.
func sites(system *mat.COO, numSpins int, ops map[int]*mat.COO) {
	system.Scalar(1)
	for i := range numSpins {
		op, ok := ops[i]
		switch {
		case ok:
			system.Kron(op)
		default:
			system.Kron(identity)
		}
	}
}

// TransverseFieldIsingExplicit writes the same matrix as TransverseFieldIsing to dir in the CSV COO format.
// Rows are generated one at a time, so that the matrix is never held in memory.
func TransverseFieldIsingExplicit(dir string, n [2]int, h complex128) error {
	numSpins := n[0] * n[1]
	w, err := mat.NewCOOWriter(dir, 1<<numSpins, 1<<numSpins)
	if err != nil {
		return errors.Wrap(err, "")
	}

	// bonds is a reusable buffer for recording coupling bonds.
	bonds := make([][2]int, 0, 2)
	// flipped is a reusable buffer for the flipped state.
	flipped := make([]byte, numSpins)
	row := make([]entry, 0, numSpins+1)
	for i, state := range bits(numSpins) {
		row = row[:0]
		row = couplingExplicit(row, n, i, state, bonds)
		row = magneticExplicit(row, n, h, state, flipped)

		slices.SortFunc(row, func(a, b entry) int { return cmp.Compare(a.col, b.col) })
		for _, e := range row {
			if err := w.Write(e.v, i, e.col); err != nil {
				w.Close()
				return errors.Wrap(err, "")
			}
		}

		if i > 0 && i%(1<<20) == 0 {
			log.Printf("%d/%d %.2f", i, 1<<numSpins, float64(i)/float64(int(1)<<numSpins))
		}
	}

	if err := w.Close(); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func couplingExplicit(entries []entry, n [2]int, i int, state []byte, bonds [][2]int) []entry {
	var diag complex128
	for y := range n[0] {
		for x := range n[1] {
			spin := state[y*n[1]+x]

			bonds = bonds[:0]
			if up := y - 1; up >= 0 {
				bonds = append(bonds, [2]int{up, x})
			}
			if left := x - 1; left >= 0 {
				bonds = append(bonds, [2]int{y, left})
			}

			for _, b := range bonds {
				switch state[b[0]*n[1]+b[1]] {
				case spin:
					diag -= 1
				default:
					diag += 1
				}
			}
		}
	}
	if diag != 0 {
		entries = append(entries, entry{v: diag, col: i})
	}
	return entries
}

func magneticExplicit(entries []entry, n [2]int, h complex128, state []byte, flipped []byte) []entry {
	if h == 0 {
		return entries
	}
	for idx := range n[0] * n[1] {
		copy(flipped, state)
		flipped[idx] ^= 1
		entries = append(entries, entry{v: -h, col: bitIndex(flipped)})
	}
	return entries
}

// Statistics are the statistics of a spin configuration.
type Statistics struct {
	EigenValue []float64
	// Magnetization is the mean absolute magnetization per spin along Z.
	Magnetization float64
	// BinderCumulant is 1 - <m^4> / (3 <m^2>^2).
	BinderCumulant float64
}

// GetStatistics returns the eigenvalues, and the spin statistics of the ground state vvs[0].
func GetStatistics(n [2]int, vvs []mat.ValVec) (Statistics, error) {
	stats, err := SpinStatistics(n, vvs[0].Vec)
	if err != nil {
		return Statistics{}, errors.Wrap(err, "")
	}
	for _, vv := range vvs {
		stats.EigenValue = append(stats.EigenValue, real(vv.Val))
	}
	return stats, nil
}

// SpinStatistics returns the magnetization and Binder cumulant of ket measured in the Z basis.
// Since the Z2 symmetry makes the signed magnetization of symmetric states vanish,
// each basis state is counted with the sign of its majority spin.
func SpinStatistics(n [2]int, ket []complex128) (Statistics, error) {
	numSpins := n[0] * n[1]
	if len(ket) != 1<<numSpins {
		return Statistics{}, errors.Errorf("%d %d", len(ket), 1<<numSpins)
	}

	var stats Statistics
	// spinUpBasis is the basis where the majority of spins are up.
	spinUpBasis := make([]int8, numSpins)
	var totalProb float64
	var m2 float64
	for i, fullBasis := range bits(numSpins) {
		pickSpinUp(spinUpBasis, fullBasis)
		amplitude := ket[i]
		probability := real(amplitude)*real(amplitude) + imag(amplitude)*imag(amplitude)

		var basisM float64
		for _, spin := range spinUpBasis {
			basisM += float64(spin)
		}

		totalProb += probability
		stats.Magnetization += probability * basisM
		stats.BinderCumulant += probability * math.Pow(basisM, 4)
		m2 += probability * math.Pow(basisM, 2)
	}
	if math.Abs(totalProb-1) > 1e-3 {
		return Statistics{}, errors.Errorf("%f", totalProb)
	}

	stats.Magnetization /= float64(numSpins)
	stats.BinderCumulant /= (m2 * m2)
	stats.BinderCumulant = 1 - stats.BinderCumulant/3
	return stats, nil
}

func pickSpinUp(upState []int8, state []byte) {
	ups := 0
	for _, b := range state {
		if b == 1 {
			ups++
		}
	}

	// The majority bit counts as spin up.
	var up byte = 0
	if ups > len(state)-ups {
		up = 1
	}
	for i, b := range state {
		switch b {
		case up:
			upState[i] = 1
		default:
			upState[i] = -1
		}
	}
}

// bits yields every basis index of n spins together with its bits, most significant first.
// The yielded slice is reused.
func bits(n int) func(yield func(int, []byte) bool) {
	state := make([]byte, n)
	return func(yield func(int, []byte) bool) {
		numStates := 1 << n
		for i := range numStates {
			for k := range n {
				state[k] = byte(i>>(n-1-k)) & 1
			}
			if !yield(i, state) {
				return
			}
		}
	}
}

func bitIndex(state []byte) int {
	idx := 0
	for _, b := range state {
		idx = idx<<1 | int(b)
	}
	return idx
}

// entry is a non-zero value in column col of the row being generated.
type entry struct {
	v   complex128
	col int
}
