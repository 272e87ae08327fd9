// Package calc computes quantities derived from quantum states, such as entanglement measures and fidelities.
//
// Logarithms are in base 2, so that entropies and negativities are measured in bits.
package calc

import (
	"fmt"
	"math"
	"math/cmplx"
	"math/rand/v2"
	"slices"

	"github.com/pkg/errors"

	"github.com/fumin/qdyn/mat"
)

const (
	// eigenTol is the magnitude below which eigenvalues of density operators are treated as zero.
	eigenTol = 1e-12
)

// State is either a pure state Ket or a density operator Rho.
type State struct {
	Ket []complex128
	Rho *mat.CDense
}

func Pure(ket []complex128) State { return State{Ket: ket} }

func Mixed(rho *mat.CDense) State { return State{Rho: rho} }

func (s State) IsPure() bool { return s.Rho == nil }

func (s State) Dim() int {
	if s.IsPure() {
		return len(s.Ket)
	}
	r, _ := s.Rho.Dims()
	return r
}

// Dop returns the density operator of s.
func (s State) Dop() *mat.CDense {
	if s.IsPure() {
		return mat.Outer(s.Ket, s.Ket)
	}
	return s.Rho
}

// Copy returns a deep copy of s.
func (s State) Copy() State {
	if s.IsPure() {
		return Pure(slices.Clone(s.Ket))
	}
	return Mixed(mat.Scale(1, s.Rho))
}

func (s State) String() string {
	if s.IsPure() {
		return fmt.Sprintf("ket%v", s.Ket)
	}
	return fmt.Sprintf("rho%v", mat.CDenseRows(s.Rho))
}

// Normalize scales ket to unit norm in place.
func Normalize(ket []complex128) []complex128 {
	n := mat.Norm(ket)
	if n == 0 {
		return ket
	}
	for i := range ket {
		ket[i] /= complex(n, 0)
	}
	return ket
}

// ComputationalState returns the qubit basis state labelled by a string of 0s and 1s, such as "0101".
func ComputationalState(bits string) ([]complex128, error) {
	idx := 0
	for _, b := range bits {
		idx <<= 1
		switch b {
		case '0':
		case '1':
			idx |= 1
		default:
			return nil, errors.Errorf("%q", bits)
		}
	}
	ket := make([]complex128, 1<<len(bits))
	ket[idx] = 1
	return ket, nil
}

// RandKet returns a Haar random pure state of dimension d.
func RandKet(d int, rng *rand.Rand) []complex128 {
	ket := make([]complex128, d)
	for i := range ket {
		ket[i] = complex(rng.NormFloat64(), rng.NormFloat64())
	}
	return Normalize(ket)
}

// RandRho returns a random density operator of dimension d, drawn from the Hilbert-Schmidt measure.
func RandRho(d int, rng *rand.Rand) *mat.CDense {
	g := mat.NewCDense(d, d, nil)
	for i := range d {
		for j := range d {
			g.Set(i, j, complex(rng.NormFloat64(), rng.NormFloat64()))
		}
	}
	rho := mat.Mul(g, mat.Adjoint(g))
	return mat.Scale(1/mat.Trace(rho), rho)
}

// RandHerm returns a random Hermitian matrix of dimension d.
func RandHerm(d int, rng *rand.Rand) *mat.CDense {
	h := mat.NewCDense(d, d, nil)
	for i := range d {
		h.Set(i, i, complex(rng.NormFloat64(), 0))
		for j := i + 1; j < d; j++ {
			v := complex(rng.NormFloat64(), rng.NormFloat64()) / math.Sqrt2
			h.Set(i, j, v)
			h.Set(j, i, cmplx.Conj(v))
		}
	}
	return h
}

// Expec returns the expectation value of op in state s.
func Expec(op mat.LinearOperator, s State) complex128 {
	d := s.Dim()
	if op.Rows() != d || op.Cols() != d {
		panic(fmt.Sprintf("%d %d %d", op.Rows(), op.Cols(), d))
	}

	if s.IsPure() {
		y := make([]complex128, d)
		op.Apply(y, s.Ket)
		return mat.Inner(s.Ket, y)
	}

	// Tr(op rho) = sum_j (op rho_j)_j, where rho_j is the j-th column of rho.
	col := make([]complex128, d)
	y := make([]complex128, d)
	var tr complex128
	for j := range d {
		for i := range d {
			col[i] = s.Rho.At(i, j)
		}
		op.Apply(y, col)
		tr += y[j]
	}
	return tr
}

// Purity returns Tr(rho^2).
func Purity(s State) float64 {
	if s.IsPure() {
		n := mat.Norm(s.Ket)
		return n * n * n * n
	}
	d := s.Dim()
	var p float64
	for i := range d {
		for j := range d {
			v := s.Rho.At(i, j)
			p += real(v)*real(v) + imag(v)*imag(v)
		}
	}
	return p
}

// Entropy returns the von Neumann entropy of the density operator rho.
func Entropy(rho *mat.CDense) (float64, error) {
	vals, _, err := mat.Eigh(rho)
	if err != nil {
		return math.NaN(), errors.Wrap(err, "")
	}
	return entropyOf(vals), nil
}

func entropyOf(vals []float64) float64 {
	var s float64
	for _, v := range vals {
		if v <= eigenTol {
			continue
		}
		s -= v * math.Log2(v)
	}
	return s
}

// EntropySubsys returns the entropy of the subsystems sysa of a state with subsystem dimensions dims.
func EntropySubsys(s State, dims, sysa []int) (float64, error) {
	rho, err := PartialTrace(s, dims, sysa)
	if err != nil {
		return math.NaN(), errors.Wrap(err, "")
	}
	e, err := Entropy(rho)
	if err != nil {
		return math.NaN(), errors.Wrap(err, "")
	}
	return e, nil
}

// MutualInformation returns S(A) + S(B) - S(AB).
func MutualInformation(s State, dims, sysa, sysb []int) (float64, error) {
	sa, err := EntropySubsys(s, dims, sysa)
	if err != nil {
		return math.NaN(), errors.Wrap(err, "")
	}
	sb, err := EntropySubsys(s, dims, sysb)
	if err != nil {
		return math.NaN(), errors.Wrap(err, "")
	}
	sab, err := EntropySubsys(s, dims, slices.Concat(sysa, sysb))
	if err != nil {
		return math.NaN(), errors.Wrap(err, "")
	}
	return sa + sb - sab, nil
}

// TraceNorm returns the sum of the absolute eigenvalues of the Hermitian matrix a.
func TraceNorm(a *mat.CDense) (float64, error) {
	vals, _, err := mat.Eigh(a)
	if err != nil {
		return math.NaN(), errors.Wrap(err, "")
	}
	var n float64
	for _, v := range vals {
		n += math.Abs(v)
	}
	return n, nil
}

// Negativity returns (||rho^{T_B}||_1 - 1) / 2 between the subsystems sysa and sysb.
// Subsystems in neither are traced out first.
func Negativity(s State, dims, sysa, sysb []int) (float64, error) {
	tn, err := pptTraceNorm(s, dims, sysa, sysb)
	if err != nil {
		return math.NaN(), errors.Wrap(err, "")
	}
	return (tn - 1) / 2, nil
}

// LogNeg returns the logarithmic negativity log2(||rho^{T_B}||_1) between the subsystems sysa and sysb.
func LogNeg(s State, dims, sysa, sysb []int) (float64, error) {
	tn, err := pptTraceNorm(s, dims, sysa, sysb)
	if err != nil {
		return math.NaN(), errors.Wrap(err, "")
	}
	return math.Log2(tn), nil
}

func pptTraceNorm(s State, dims, sysa, sysb []int) (float64, error) {
	rhoTB, err := PPT(s, dims, sysa, sysb)
	if err != nil {
		return math.NaN(), errors.Wrap(err, "")
	}
	tn, err := TraceNorm(rhoTB)
	if err != nil {
		return math.NaN(), errors.Wrap(err, "")
	}
	return tn, nil
}

// PPT returns the partial transpose over sysb of the reduced density operator of sysa and sysb.
// Subsystems in neither are traced out first.
func PPT(s State, dims, sysa, sysb []int) (*mat.CDense, error) {
	keep := slices.Concat(sysa, sysb)
	slices.Sort(keep)
	rho, err := PartialTrace(s, dims, keep)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	// Relabel subsystems after tracing out the environment.
	keptDims := make([]int, len(keep))
	newB := make([]int, 0, len(sysb))
	for k, i := range keep {
		keptDims[k] = dims[i]
		if slices.Contains(sysb, i) {
			newB = append(newB, k)
		}
	}

	rhoTB, err := PartialTranspose(rho, keptDims, newB)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return rhoTB, nil
}

// Fidelity returns the Uhlmann fidelity Tr|sqrt(a) sqrt(b)| between two states.
// For pure states this is |<a|b>|.
func Fidelity(a, b State) (float64, error) {
	if a.Dim() != b.Dim() {
		return math.NaN(), errors.Errorf("%d %d", a.Dim(), b.Dim())
	}
	switch {
	case a.IsPure() && b.IsPure():
		return cmplx.Abs(mat.Inner(a.Ket, b.Ket)), nil
	case a.IsPure():
		return math.Sqrt(max(real(Expec(mat.AsOperator(b.Rho), a)), 0)), nil
	case b.IsPure():
		return math.Sqrt(max(real(Expec(mat.AsOperator(a.Rho), b)), 0)), nil
	}

	sqrtA, err := mat.Sqrtm(a.Rho)
	if err != nil {
		return math.NaN(), errors.Wrap(err, "")
	}
	m := mat.Mul(mat.Mul(sqrtA, b.Rho), sqrtA)
	vals, _, err := mat.Eigh(hermitianPart(m))
	if err != nil {
		return math.NaN(), errors.Wrap(err, "")
	}
	var f float64
	for _, v := range vals {
		f += math.Sqrt(max(v, 0))
	}
	return f, nil
}

// TraceDistance returns ||a - b||_1 / 2.
func TraceDistance(a, b State) (float64, error) {
	if a.Dim() != b.Dim() {
		return math.NaN(), errors.Errorf("%d %d", a.Dim(), b.Dim())
	}
	diff := mat.AddScaled(a.Dop(), -1, b.Dop())
	tn, err := TraceNorm(diff)
	if err != nil {
		return math.NaN(), errors.Wrap(err, "")
	}
	return tn / 2, nil
}

// Concurrence returns the Wootters concurrence of a two qubit state.
func Concurrence(s State) (float64, error) {
	if s.Dim() != 4 {
		return math.NaN(), errors.Errorf("%d", s.Dim())
	}
	rho := s.Dop()

	yy := mat.Kron(mat.FromRows(mat.PauliY), mat.FromRows(mat.PauliY))
	rhoConj := mat.NewCDense(4, 4, nil)
	for i := range 4 {
		for j := range 4 {
			rhoConj.Set(i, j, cmplx.Conj(rho.At(i, j)))
		}
	}
	rhoTilde := mat.Mul(mat.Mul(yy, rhoConj), yy)

	// The eigenvalues of sqrt(rho) rhoTilde sqrt(rho) equal those of rho rhoTilde, but the former is Hermitian.
	sqrtRho, err := mat.Sqrtm(rho)
	if err != nil {
		return math.NaN(), errors.Wrap(err, "")
	}
	r := mat.Mul(mat.Mul(sqrtRho, rhoTilde), sqrtRho)
	vals, _, err := mat.Eigh(hermitianPart(r))
	if err != nil {
		return math.NaN(), errors.Wrap(err, "")
	}
	lambdas := make([]float64, len(vals))
	for i, v := range vals {
		lambdas[i] = math.Sqrt(max(v, 0))
	}
	slices.Sort(lambdas)
	slices.Reverse(lambdas)
	return max(0, lambdas[0]-lambdas[1]-lambdas[2]-lambdas[3]), nil
}

// hermitianPart returns (a + a^H) / 2, removing rounding asymmetries.
func hermitianPart(a *mat.CDense) *mat.CDense {
	return mat.Scale(0.5, mat.AddScaled(a, 1, mat.Adjoint(a)))
}
