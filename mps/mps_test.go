package mps

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/cmplx"
	"math/rand/v2"
	"testing"

	"github.com/fumin/tensor"

	"github.com/fumin/qdyn/calc"
)

func newBufs() [2]*tensor.Dense {
	return [2]*tensor.Dense{tensor.Zeros(1), tensor.Zeros(1)}
}

func TestNewMPS(t *testing.T) {
	t.Parallel()
	tests := []struct {
		shape []int
	}{
		{shape: []int{2}},
		{shape: []int{2, 2}},
		{shape: []int{2, 3, 2}},
		{shape: []int{2, 2, 2, 2, 2}},
	}
	for i, test := range tests {
		t.Run(fmt.Sprintf("%v", test.shape), func(t *testing.T) {
			t.Parallel()
			rng := rand.New(rand.NewPCG(uint64(i), 0))
			state := tensor.Zeros(test.shape...)
			var norm2 float64
			for ijk := range state.All() {
				v := complex(float32(rng.NormFloat64()), float32(rng.NormFloat64()))
				state.SetAt(ijk, v)
				norm2 += math.Pow(cmplx.Abs(complex128(v)), 2)
			}
			size := 1
			for _, d := range test.shape {
				size *= d
			}
			expected := make([]complex128, size)
			for ijk, v := range state.All() {
				flat := 0
				for k, d := range test.shape {
					flat = flat*d + ijk[k]
				}
				expected[flat] = complex128(v)
			}

			bufs := newBufs()
			ms := NewMPS(state, bufs)
			if len(ms) != len(test.shape) {
				t.Fatalf("%d %d", len(ms), len(test.shape))
			}
			ket := Dense(ms)
			if len(ket) != len(expected) {
				t.Fatalf("%d %d", len(ket), len(expected))
			}
			for j, v := range ket {
				if cmplx.Abs(v-expected[j]) > 1e-4 {
					t.Fatalf("%d %v, expected %v", j, v, expected[j])
				}
			}

			ip := InnerProduct(ms, ms, bufs)
			if math.Abs(float64(real(ip))-norm2) > 1e-4*norm2 {
				t.Fatalf("%v, expected %f", ip, norm2)
			}
		})
	}
}

func TestHeisenbergGroundState(t *testing.T) {
	t.Parallel()
	tests := []struct {
		n  int
		e0 float64
	}{
		// The singlet.
		{n: 2, e0: -0.75},
		{n: 4, e0: -(3 + 2*math.Sqrt(3)) / 4},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%d", test.n), func(t *testing.T) {
			t.Parallel()
			mpo := Heisenberg(test.n, [3]complex64{1, 1, 1}, 0)
			state := RandMPS(mpo, 4, rand.New(rand.NewPCG(uint64(test.n), 0)))
			opt := NewSearchGroundStateOptions().MaxIterations(64).Tol(1e-4)
			res, err := SearchGroundState(mpo, state, opt)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if math.Abs(res.Energy-test.e0) > 1e-3 {
				t.Fatalf("%#v, expected %f", res, test.e0)
			}
			if e := Expectation(mpo, state); math.Abs(float64(real(e))-test.e0) > 1e-3 {
				t.Fatalf("%v, expected %f", e, test.e0)
			}
			if res.Sweeps < 1 {
				t.Fatalf("%#v", res)
			}
		})
	}
}

func TestSearchGroundStateErrors(t *testing.T) {
	t.Parallel()
	mpo := Ising(3, 1)
	rng := rand.New(rand.NewPCG(0, 0))
	if _, err := SearchGroundState(mpo, RandMPS(Ising(2, 1), 2, rng)); err == nil {
		t.Fatalf("expected length mismatch")
	}
	if _, err := SearchGroundState(Ising(1, 1), RandMPS(Ising(1, 1), 2, rng)); err == nil {
		t.Fatalf("expected too short chain")
	}
}

func TestExpectation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		bits []int
		mpo  []*tensor.Dense
		v    float64
	}{
		{bits: []int{0, 0, 0, 1}, mpo: MagnetizationZ(4), v: 2},
		{bits: []int{0, 1, 0, 1}, mpo: MagnetizationZ(4), v: 0},
		// Neighbouring spins are all aligned, and <X> vanishes.
		{bits: []int{0, 0, 0, 0}, mpo: Ising(4, 0.7), v: -3},
		{bits: []int{0, 1, 1, 0}, mpo: Ising(4, 0.7), v: 1},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%v", test.bits), func(t *testing.T) {
			t.Parallel()
			ms := basisMPS(test.bits)
			if e := Expectation(test.mpo, ms); cmplx.Abs(complex128(e)-complex(test.v, 0)) > 1e-5 {
				t.Fatalf("%v, expected %f", e, test.v)
			}
		})
	}
}

func TestEntropy(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(1, 2))
	shape := []int{2, 2, 2, 2, 2}
	state := tensor.Zeros(shape...)
	for ijk := range state.All() {
		state.SetAt(ijk, complex(float32(rng.NormFloat64()), float32(rng.NormFloat64())))
	}
	ms := NewMPS(state, newBufs())
	ket := calc.Normalize(Dense(ms))
	dims := []int{2, 2, 2, 2, 2}

	for cut := range len(shape) - 1 {
		sysa := make([]int, cut+1)
		for i := range sysa {
			sysa[i] = i
		}
		expected, err := calc.EntropySubsys(calc.Pure(ket), dims, sysa)
		if err != nil {
			t.Fatalf("%+v", err)
		}
		e, err := Entropy(ms, cut)
		if err != nil {
			t.Fatalf("%+v", err)
		}
		if math.Abs(e-expected) > 1e-3 {
			t.Fatalf("%d %f, expected %f", cut, e, expected)
		}
	}

	// The Bell pair shares one bit.
	bell := tensor.Zeros(2, 2)
	bell.SetAt([]int{0, 0}, 1)
	bell.SetAt([]int{1, 1}, 1)
	e, err := Entropy(NewMPS(bell, newBufs()), 0)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if math.Abs(e-1) > 1e-5 {
		t.Fatalf("%f", e)
	}

	if _, err := Entropy(ms, len(ms)-1); err == nil {
		t.Fatalf("expected error")
	}
}

// basisMPS returns the product state of the bits.
func basisMPS(bits []int) []*tensor.Dense {
	ms := make([]*tensor.Dense, 0, len(bits))
	for _, b := range bits {
		m := tensor.Zeros(1, 2, 1)
		m.SetAt([]int{0, b, 0}, 1)
		ms = append(ms, m)
	}
	return ms
}

func TestSingleSite(t *testing.T) {
	t.Parallel()
	// A single site Ising chain is -h X.
	mpo := Ising(1, 0.5)
	if len(mpo) != 1 {
		t.Fatalf("%d", len(mpo))
	}
	s := mpo[0].Shape()
	if s[0] != 1 || s[1] != 1 {
		t.Fatalf("%#v", s)
	}
	if v := mpo[0].At(0, 0, 0, 1); v != -0.5 {
		t.Fatalf("%v", v)
	}

	ket := Dense([]*tensor.Dense{tensor.T2([][]complex64{{1, 2}}).Reshape(1, 2, 1)})
	if len(ket) != 2 || ket[0] != 1 || ket[1] != 2 {
		t.Fatalf("%v", ket)
	}
}

func TestLongChain(t *testing.T) {
	t.Parallel()
	// Chains longer than the maximum tensor dimension.
	bits := []int{1, 0, 0, 1, 1, 0, 1, 0, 0, 0, 1, 1, 0, 1, 0, 1, 1, 0}
	ket := Dense(basisMPS(bits))
	if len(ket) != 1<<len(bits) {
		t.Fatalf("%d", len(ket))
	}
	var flat int
	for _, b := range bits {
		flat = flat<<1 | b
	}
	for i, v := range ket {
		expected := complex128(0)
		if i == flat {
			expected = 1
		}
		if v != expected {
			t.Fatalf("%d %v, expected %v", i, v, expected)
		}
	}

	rng := rand.New(rand.NewPCG(3, 4))
	ms := RandMPS(Ising(16, 1), 3, rng)
	var norm2 float64
	for _, v := range Dense(ms) {
		norm2 += real(v)*real(v) + imag(v)*imag(v)
	}
	ip := float64(real(InnerProduct(ms, ms, newBufs())))
	if math.Abs(norm2-ip) > 1e-4*ip {
		t.Fatalf("%f, expected %f", norm2, ip)
	}
}

func TestFromKet(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(5, 6))
	dims := make([]int, 16)
	for i := range dims {
		dims[i] = 2
	}
	ket := calc.RandKet(1<<len(dims), rng)
	ms, err := FromKet(ket, dims)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if len(ms) != len(dims) {
		t.Fatalf("%d", len(ms))
	}
	for i, v := range Dense(ms) {
		if cmplx.Abs(v-ket[i]) > 1e-5 {
			t.Fatalf("%d %v, expected %v", i, v, ket[i])
		}
	}

	if _, err := FromKet(ket, []int{2, 2}); err == nil {
		t.Fatalf("expected dimension mismatch")
	}
	if _, err := FromKet(ket[:4], []int{4, 0}); err == nil {
		t.Fatalf("expected invalid dimension")
	}
}

func TestMain(m *testing.M) {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)

	m.Run()
}
