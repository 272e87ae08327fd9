package circuit

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/cmplx"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/fumin/qdyn/mps"
)

func TestGHZ(t *testing.T) {
	t.Parallel()
	c, err := New(3)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	gates := [][]string{
		{"H", "0"},
		{"H", "1"},
		{"CNOT", "1", "2"},
		{"CNOT", "0", "2"},
		{"H", "0"},
		{"H", "1"},
		{"H", "2"},
	}
	if err := c.ApplyCircuit(gates); err != nil {
		t.Fatalf("%+v", err)
	}

	expected := make([]complex128, 8)
	expected[0], expected[7] = 1/math.Sqrt2, 1/math.Sqrt2
	if d := maxDiff(c.Psi(), expected); d > 1e-6 {
		t.Fatalf("%v, expected %v", c.Psi(), expected)
	}
	if len(c.Gates()) != len(gates) {
		t.Fatalf("%d", len(c.Gates()))
	}

	// The matrix product state contracts back to the same ket.
	ms, err := c.MPS()
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if d := maxDiff(mps.Dense(ms), expected); d > 1e-5 {
		t.Fatalf("%f", d)
	}
}

func TestGates(t *testing.T) {
	t.Parallel()
	s2 := complex(1/math.Sqrt2, 0)
	tests := []struct {
		qasm string
		psi  []complex128
	}{
		{qasm: "1\nX 0", psi: []complex128{0, 1}},
		{qasm: "1\nY 0", psi: []complex128{0, 1i}},
		{qasm: "1\nX 0\nZ 0", psi: []complex128{0, -1}},
		{qasm: "1\nX 0\nS 0", psi: []complex128{0, 1i}},
		{qasm: "1\nX 0\nT 0", psi: []complex128{0, cmplx.Exp(complex(0, math.Pi/4))}},
		{qasm: "1\nH 0", psi: []complex128{s2, s2}},
		{qasm: "1\nRX 3.141592653589793 0", psi: []complex128{0, -1i}},
		{qasm: "1\nRY 3.141592653589793 0", psi: []complex128{0, 1}},
		{qasm: "1\nRZ 1 0", psi: []complex128{cmplx.Exp(-0.5i), 0}},
		{qasm: "1\nX_1_2 0", psi: []complex128{s2, -1i * s2}},
		{qasm: "1\ny_1_2 0", psi: []complex128{s2, s2}},
		// Qubit 0 is the most significant bit.
		{qasm: "2\nX 1", psi: []complex128{0, 1, 0, 0}},
		{qasm: "2\nCX 0 1", psi: []complex128{1, 0, 0, 0}},
		{qasm: "2\nX 0\nCX 0 1", psi: []complex128{0, 0, 0, 1}},
		{qasm: "2\nX 1\nCNOT 1 0", psi: []complex128{0, 0, 0, 1}},
		{qasm: "2\nX 0\nCY 0 1", psi: []complex128{0, 0, 0, 1i}},
		{qasm: "2\nX 0\nX 1\nCZ 1 0", psi: []complex128{0, 0, 0, -1}},
		{qasm: "3\nX 2\nCNOT 2 0", psi: []complex128{0, 0, 0, 0, 0, 1, 0, 0}},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%q", test.qasm), func(t *testing.T) {
			t.Parallel()
			c, err := FromQASM(test.qasm)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if d := maxDiff(c.Psi(), test.psi); d > 1e-6 {
				t.Fatalf("%v, expected %v", c.Psi(), test.psi)
			}
		})
	}
}

func TestManyQubits(t *testing.T) {
	t.Parallel()
	const n = 17
	c, err := New(n)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	gates := [][]string{
		{"X", "16"},
		{"CNOT", "16", "0"},
		{"X", "14"},
		{"CNOT", "14", "15"},
		{"H", "13"},
	}
	if err := c.ApplyCircuit(gates); err != nil {
		t.Fatalf("%+v", err)
	}

	bit := func(q int) int { return 1 << (n - 1 - q) }
	base := bit(0) | bit(14) | bit(15) | bit(16)
	expected := make([]complex128, 1<<n)
	expected[base], expected[base|bit(13)] = 1/math.Sqrt2, 1/math.Sqrt2
	if d := maxDiff(c.Psi(), expected); d > 1e-6 {
		t.Fatalf("%f", d)
	}

	ms, err := c.MPS()
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if len(ms) != n {
		t.Fatalf("%d", len(ms))
	}
	if d := maxDiff(mps.Dense(ms), expected); d > 1e-5 {
		t.Fatalf("%f", d)
	}

	if _, err := New(maxQubits + 1); err == nil {
		t.Fatalf("expected error")
	}
}

func TestFromKet(t *testing.T) {
	t.Parallel()
	// Start from |10>, and swap it into |01> with three CNOTs.
	c, err := FromKet([]complex128{0, 0, 1, 0})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err := c.ApplyCircuit([][]string{{"CNOT", "0", "1"}, {"CNOT", "1", "0"}, {"CNOT", "0", "1"}}); err != nil {
		t.Fatalf("%+v", err)
	}
	if d := maxDiff(c.Psi(), []complex128{0, 1, 0, 0}); d > 1e-6 {
		t.Fatalf("%v", c.Psi())
	}

	for _, ket := range [][]complex128{nil, {1}, {1, 0, 0}} {
		if _, err := FromKet(ket); err == nil {
			t.Fatalf("expected error %v", ket)
		}
	}
}

func TestApplyGateRound(t *testing.T) {
	t.Parallel()
	c, err := New(2)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err := c.ApplyGateRound(10, "H", "0"); err != nil {
		t.Fatalf("%+v", err)
	}
	if err := c.ApplyGateRound(-1, "X", "1"); err != nil {
		t.Fatalf("%+v", err)
	}
	if err := c.ApplyGate("2", "H", "0"); err != nil {
		t.Fatalf("%+v", err)
	}
	if err := c.ApplyGateRound(-2, "H", "0"); err == nil {
		t.Fatalf("expected error")
	}

	// Rounds are ordered by their numeric value.
	if tags := c.Tags(); !slices.Equal(tags, []string{"ROUND_2", "ROUND_10"}) {
		t.Fatalf("%#v", tags)
	}
	if g := c.Gates()[1]; g.ID != "X" || g.Round != -1 {
		t.Fatalf("%#v", g)
	}
	if d := maxDiff(c.Psi(), []complex128{0, 1, 0, 0}); d > 1e-6 {
		t.Fatalf("%v", c.Psi())
	}
}

func TestRounds(t *testing.T) {
	t.Parallel()
	qasm := "2\n0 H 0\n0 H 1\n\n1 CZ 0 1\n3 RZ 0.25 1\n"
	q, err := ParseQASM(qasm)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if q.N != 2 || len(q.Gates) != 4 {
		t.Fatalf("%#v", q)
	}

	dir, err := os.MkdirTemp("", "")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer os.RemoveAll(dir)
	fpath := filepath.Join(dir, "circuit.qasm")
	if err := os.WriteFile(fpath, []byte(qasm), 0644); err != nil {
		t.Fatalf("%+v", err)
	}
	c, err := FromQASMFile(fpath)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if tags := c.Tags(); !slices.Equal(tags, []string{"ROUND_0", "ROUND_1", "ROUND_3"}) {
		t.Fatalf("%#v", tags)
	}
	g := c.Gates()[3]
	if g.ID != "RZ" || g.Round != 3 || !slices.Equal(g.Args, []string{"0.25", "1"}) {
		t.Fatalf("%#v", g)
	}

	var norm float64
	for _, v := range c.Psi() {
		norm += math.Pow(cmplx.Abs(v), 2)
	}
	if math.Abs(norm-1) > 1e-6 {
		t.Fatalf("%f", norm)
	}
}

func TestErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		qasm string
	}{
		{qasm: "two\nH 0"},
		{qasm: "0"},
		{qasm: "2\nFOO 0"},
		{qasm: "2\nH 2"},
		{qasm: "2\nH -1"},
		{qasm: "2\nH a"},
		{qasm: "2\nH 0 1"},
		{qasm: "2\nRX pi 0"},
		{qasm: "2\nRX 0"},
		{qasm: "2\nCNOT 1 1"},
		{qasm: "2\nCNOT 0"},
		{qasm: "2\n7"},
		{qasm: "2\n-1 H 0"},
		{qasm: "2\n+2 H 0"},
		{qasm: "2\n99999999999999999999 H 0"},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%q", test.qasm), func(t *testing.T) {
			t.Parallel()
			if _, err := FromQASM(test.qasm); err == nil {
				t.Fatalf("expected error")
			}
		})
	}

	if _, err := FromQASMFile(filepath.Join(os.TempDir(), "does-not-exist.qasm")); err == nil {
		t.Fatalf("expected error")
	}
}

func maxDiff(a, b []complex128) float64 {
	var d float64
	for i := range a {
		d = max(d, cmplx.Abs(a[i]-b[i]))
	}
	return d
}

func TestMain(m *testing.M) {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)

	m.Run()
}
