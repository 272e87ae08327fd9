package calc

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/cmplx"
	"math/rand/v2"
	"testing"

	"github.com/fumin/qdyn/mat"
)

var (
	bell = []complex128{complex(1/math.Sqrt2, 0), 0, 0, complex(1/math.Sqrt2, 0)}
	ghz  = []complex128{complex(1/math.Sqrt2, 0), 0, 0, 0, 0, 0, 0, complex(1/math.Sqrt2, 0)}
)

func werner(p float64) *mat.CDense {
	rho := mat.Scale(complex(p, 0), mat.Outer(bell, bell))
	return mat.AddScaled(rho, complex((1-p)/4, 0), mat.Eye(4))
}

func TestEntanglement(t *testing.T) {
	t.Parallel()
	product, err := ComputationalState("00")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	tests := []struct {
		name        string
		s           State
		dims        []int
		sysa        []int
		sysb        []int
		entropy     float64
		logneg      float64
		negativity  float64
		mutinf      float64
		concurrence float64
	}{
		{
			name: "bell", s: Pure(bell), dims: []int{2, 2}, sysa: []int{0}, sysb: []int{1},
			entropy: 1, logneg: 1, negativity: 0.5, mutinf: 2, concurrence: 1,
		},
		{
			name: "bell mixed", s: Mixed(mat.Outer(bell, bell)), dims: []int{2, 2}, sysa: []int{0}, sysb: []int{1},
			entropy: 1, logneg: 1, negativity: 0.5, mutinf: 2, concurrence: 1,
		},
		{
			name: "product", s: Pure(product), dims: []int{2, 2}, sysa: []int{0}, sysb: []int{1},
			entropy: 0, logneg: 0, negativity: 0, mutinf: 0, concurrence: 0,
		},
		{
			name: "werner", s: Mixed(werner(0.8)), dims: []int{2, 2}, sysa: []int{0}, sysb: []int{1},
			entropy: 1, logneg: math.Log2(1.7), negativity: 0.35, mutinf: 2 - entropyOf([]float64{0.85, 0.05, 0.05, 0.05}), concurrence: 0.7,
		},
		// Tracing out one qubit of a GHZ state leaves a separable mixture.
		{
			name: "ghz", s: Pure(ghz), dims: []int{2, 2, 2}, sysa: []int{0}, sysb: []int{1},
			entropy: 1, logneg: 0, negativity: 0, mutinf: 1, concurrence: -1,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			e, err := EntropySubsys(test.s, test.dims, test.sysa)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if math.Abs(e-test.entropy) > 1e-9 {
				t.Fatalf("entropy %f, expected %f", e, test.entropy)
			}

			ln, err := LogNeg(test.s, test.dims, test.sysa, test.sysb)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if math.Abs(ln-test.logneg) > 1e-9 {
				t.Fatalf("logneg %f, expected %f", ln, test.logneg)
			}

			n, err := Negativity(test.s, test.dims, test.sysa, test.sysb)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if math.Abs(n-test.negativity) > 1e-9 {
				t.Fatalf("negativity %f, expected %f", n, test.negativity)
			}

			mi, err := MutualInformation(test.s, test.dims, test.sysa, test.sysb)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if math.Abs(mi-test.mutinf) > 1e-9 {
				t.Fatalf("mutinf %f, expected %f", mi, test.mutinf)
			}

			if test.concurrence < 0 {
				return
			}
			c, err := Concurrence(test.s)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if math.Abs(c-test.concurrence) > 1e-6 {
				t.Fatalf("concurrence %f, expected %f", c, test.concurrence)
			}
		})
	}
}

func TestPartialTrace(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(1, 2))
	dims := []int{2, 3, 2}
	ket := RandKet(12, rng)
	for _, keep := range [][]int{{0}, {1}, {2}, {0, 2}, {2, 0}, {0, 1, 2}, {}} {
		t.Run(fmt.Sprintf("%v", keep), func(t *testing.T) {
			t.Parallel()
			pure, err := PartialTrace(Pure(ket), dims, keep)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			mixed, err := PartialTrace(Mixed(mat.Outer(ket, ket)), dims, keep)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if d := maxDiff(pure, mixed); d > 1e-12 {
				t.Fatalf("%f", d)
			}
			if tr := mat.Trace(pure); cmplx.Abs(tr-1) > 1e-12 {
				t.Fatalf("%v", tr)
			}
		})
	}

	// Tracing out the second factor of a product state returns the first factor.
	a := RandRho(2, rng)
	b := RandRho(3, rng)
	ra, err := PartialTrace(Mixed(mat.Kron(a, b)), []int{2, 3}, []int{0})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if d := maxDiff(ra, a); d > 1e-12 {
		t.Fatalf("%f", d)
	}

	if _, err := PartialTrace(Pure(ket), []int{2, 2}, []int{0}); err == nil {
		t.Fatalf("expected dimension mismatch")
	}
	if _, err := PartialTrace(Pure(ket), dims, []int{3}); err == nil {
		t.Fatalf("expected out of range subsystem")
	}
}

func TestPartialTranspose(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(3, 4))
	a := RandRho(2, rng)
	b := RandRho(3, rng)
	dims := []int{2, 3}

	// The partial transpose of a product state transposes the factor.
	pt, err := PartialTranspose(mat.Kron(a, b), dims, []int{1})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	bt := mat.NewCDense(3, 3, nil)
	for i := range 3 {
		for j := range 3 {
			bt.Set(i, j, b.At(j, i))
		}
	}
	if d := maxDiff(pt, mat.Kron(a, bt)); d > 1e-12 {
		t.Fatalf("%f", d)
	}

	// Transposing twice is the identity.
	rho := RandRho(6, rng)
	pt, err = PartialTranspose(rho, dims, []int{0})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	ptpt, err := PartialTranspose(pt, dims, []int{0})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if d := maxDiff(ptpt, rho); d > 1e-12 {
		t.Fatalf("%f", d)
	}
}

func TestFidelity(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(5, 6))
	a := RandKet(4, rng)
	b := RandKet(4, rng)
	overlap := cmplx.Abs(mat.Inner(a, b))
	rho := RandRho(4, rng)
	tests := []struct {
		name string
		a    State
		b    State
		f    float64
	}{
		{name: "same", a: Pure(a), b: Pure(a), f: 1},
		{name: "pure", a: Pure(a), b: Pure(b), f: overlap},
		{name: "pure mixed", a: Pure(a), b: Mixed(mat.Outer(b, b)), f: overlap},
		{name: "mixed pure", a: Mixed(mat.Outer(a, a)), b: Pure(b), f: overlap},
		{name: "mixed", a: Mixed(mat.Outer(a, a)), b: Mixed(mat.Outer(b, b)), f: overlap},
		{name: "mixed same", a: Mixed(rho), b: Mixed(rho), f: 1},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			f, err := Fidelity(test.a, test.b)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if math.Abs(f-test.f) > 1e-6 {
				t.Fatalf("%f, expected %f", f, test.f)
			}
		})
	}

	if _, err := Fidelity(Pure(a), Pure(bell[:2])); err == nil {
		t.Fatalf("expected dimension mismatch")
	}
}

func TestTraceDistance(t *testing.T) {
	t.Parallel()
	zero, _ := ComputationalState("0")
	one, _ := ComputationalState("1")
	d, err := TraceDistance(Pure(zero), Pure(one))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if math.Abs(d-1) > 1e-9 {
		t.Fatalf("%f", d)
	}
	d, err = TraceDistance(Pure(zero), Mixed(mat.Scale(0.5, mat.Eye(2))))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if math.Abs(d-0.5) > 1e-9 {
		t.Fatalf("%f", d)
	}
}

func TestExpec(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(7, 8))
	h := RandHerm(5, rng)
	ket := RandKet(5, rng)
	pure := Expec(mat.AsOperator(h), Pure(ket))
	mixed := Expec(mat.AsOperator(h), Mixed(mat.Outer(ket, ket)))
	if cmplx.Abs(pure-mixed) > 1e-12 || math.Abs(imag(pure)) > 1e-12 {
		t.Fatalf("%v %v", pure, mixed)
	}

	if p := Purity(Pure(ket)); math.Abs(p-1) > 1e-12 {
		t.Fatalf("%f", p)
	}
	if p := Purity(Mixed(mat.Scale(0.25, mat.Eye(4)))); math.Abs(p-0.25) > 1e-12 {
		t.Fatalf("%f", p)
	}
}

func TestComputationalState(t *testing.T) {
	t.Parallel()
	ket, err := ComputationalState("0110")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if len(ket) != 16 || ket[6] != 1 {
		t.Fatalf("%v", ket)
	}
	if _, err := ComputationalState("012"); err == nil {
		t.Fatalf("expected error")
	}
}

func maxDiff(a, b *mat.CDense) float64 {
	r, c := a.Dims()
	var d float64
	for i := range r {
		for j := range c {
			d = max(d, cmplx.Abs(a.At(i, j)-b.At(i, j)))
		}
	}
	return d
}

func TestMain(m *testing.M) {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)

	m.Run()
}
