// Package circuit simulates quantum circuits on a state vector of qubits.
//
// Circuits can be read from the QASM format, whose first line is the number of qubits,
// followed by one gate per line:
//
//	3
//	0 H 0
//	1 CNOT 0 1
//	1 RZ 0.5 2
//
// A leading integer on a gate line is the round of the gate.
package circuit

import (
	"fmt"
	"math/bits"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/fumin/tensor"
	"github.com/pkg/errors"

	"github.com/fumin/qdyn/mps"
)

// QASM is a parsed QASM circuit.
type QASM struct {
	// N is the number of qubits.
	N int
	// Gates are the fields of each gate line.
	Gates [][]string
}

// ParseQASM parses a circuit in the QASM format.
func ParseQASM(qasm string) (QASM, error) {
	lines := strings.Split(qasm, "\n")
	n, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return QASM{}, errors.Wrap(err, "")
	}
	if n <= 0 {
		return QASM{}, errors.Errorf("%d", n)
	}

	q := QASM{N: n, Gates: make([][]string, 0, len(lines)-1)}
	for _, l := range lines[1:] {
		fields := strings.Fields(l)
		if len(fields) == 0 {
			continue
		}
		q.Gates = append(q.Gates, fields)
	}
	return q, nil
}

// ParseQASMFile parses the QASM file at fpath.
func ParseQASMFile(fpath string) (QASM, error) {
	b, err := os.ReadFile(fpath)
	if err != nil {
		return QASM{}, errors.Wrap(err, "")
	}
	q, err := ParseQASM(string(b))
	if err != nil {
		return QASM{}, errors.Wrap(err, fpath)
	}
	return q, nil
}

// Gate is an applied gate.
type Gate struct {
	ID   string
	Args []string
	// Round is the round of the gate, or -1 if it has none.
	Round int
}

// Circuit is a quantum circuit acting on a state vector.
type Circuit struct {
	n int
	// psi is of shape {2^n}, with qubit 0 the most significant bit.
	psi   *tensor.Dense
	buf   *tensor.Dense
	gates []Gate
}

// maxQubits bounds the size of the state vector.
const maxQubits = 30

// New returns a circuit of n qubits in the state |00...0>.
func New(n int) (*Circuit, error) {
	if n <= 0 || n > maxQubits {
		return nil, errors.Errorf("%d", n)
	}
	c := &Circuit{n: n, psi: tensor.Zeros(1 << n), buf: tensor.Zeros(1)}
	c.psi.SetAt([]int{0}, 1)
	return c, nil
}

// FromKet returns a circuit in the state ket, whose length is a power of two.
func FromKet(ket []complex128) (*Circuit, error) {
	n := bits.Len(uint(len(ket))) - 1
	if n <= 0 || n > maxQubits || len(ket) != 1<<n {
		return nil, errors.Errorf("%d", len(ket))
	}
	c := &Circuit{n: n, psi: tensor.Zeros(len(ket)), buf: tensor.Zeros(1)}
	for i, v := range ket {
		c.psi.SetAt([]int{i}, complex64(v))
	}
	return c, nil
}

// FromQASM runs the circuit qasm starting from |00...0>.
func FromQASM(qasm string) (*Circuit, error) {
	q, err := ParseQASM(qasm)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	c, err := New(q.N)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := c.ApplyCircuit(q.Gates); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return c, nil
}

// FromQASMFile runs the circuit in the QASM file at fpath.
func FromQASMFile(fpath string) (*Circuit, error) {
	b, err := os.ReadFile(fpath)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	c, err := FromQASM(string(b))
	if err != nil {
		return nil, errors.Wrap(err, fpath)
	}
	return c, nil
}

func (c *Circuit) N() int { return c.n }

// Gates returns the applied gates.
func (c *Circuit) Gates() []Gate { return c.gates }

// Tags returns the round tags of the applied gates, in increasing round.
func (c *Circuit) Tags() []string {
	rounds := make([]int, 0)
	for _, g := range c.gates {
		if g.Round < 0 {
			continue
		}
		rounds = append(rounds, g.Round)
	}
	slices.Sort(rounds)
	rounds = slices.Compact(rounds)

	tags := make([]string, 0, len(rounds))
	for _, r := range rounds {
		tags = append(tags, fmt.Sprintf("ROUND_%d", r))
	}
	return tags
}

// ApplyGate applies the gate id to the qubits in args.
// Rotation gates take the angle before the qubit.
// If id consists of decimal digits, it is the round of the gate, and the gate is args[0].
func (c *Circuit) ApplyGate(id string, args ...string) error {
	if !isRound(id) {
		return c.ApplyGateRound(-1, id, args...)
	}
	round, err := strconv.Atoi(id)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if len(args) == 0 {
		return errors.Errorf("no gate in round %d", round)
	}
	if err := c.ApplyGateRound(round, args[0], args[1:]...); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// ApplyGateRound applies the gate id in the given round, where -1 means no round.
func (c *Circuit) ApplyGateRound(round int, id string, args ...string) error {
	if round < -1 {
		return errors.Errorf("%d", round)
	}
	def, ok := gateDefs[strings.ToUpper(id)]
	if !ok {
		return errors.Errorf("unknown gate %q", id)
	}
	switch def.kind {
	case oneQubit:
		if len(args) != 1 {
			return errors.Errorf("%s %#v", id, args)
		}
		i, err := c.qubit(args[0])
		if err != nil {
			return errors.Wrap(err, id)
		}
		c.apply1(tensor.T2(def.u), i)
	case rotation:
		if len(args) != 2 {
			return errors.Errorf("%s %#v", id, args)
		}
		theta, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return errors.Wrap(err, id)
		}
		i, err := c.qubit(args[1])
		if err != nil {
			return errors.Wrap(err, id)
		}
		c.apply1(tensor.T2(def.rot(theta)), i)
	case twoQubit:
		if len(args) != 2 {
			return errors.Errorf("%s %#v", id, args)
		}
		i, err := c.qubit(args[0])
		if err != nil {
			return errors.Wrap(err, id)
		}
		j, err := c.qubit(args[1])
		if err != nil {
			return errors.Wrap(err, id)
		}
		if i == j {
			return errors.Errorf("%s %d %d", id, i, j)
		}
		// Contract indexes its operands with their own digits, so shared gates are copied.
		g := *def.g
		c.apply2(&g, i, j)
	}

	c.gates = append(c.gates, Gate{ID: id, Args: slices.Clone(args), Round: round})
	return nil
}

func isRound(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ApplyCircuit applies gates in order, each being the fields of a QASM gate line.
func (c *Circuit) ApplyCircuit(gates [][]string) error {
	for k, g := range gates {
		if len(g) == 0 {
			return errors.Errorf("empty gate %d", k)
		}
		if err := c.ApplyGate(g[0], g[1:]...); err != nil {
			return errors.Wrap(err, fmt.Sprintf("%d", k))
		}
	}
	return nil
}

func (c *Circuit) qubit(s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return -1, errors.Wrap(err, "")
	}
	if i < 0 || i >= c.n {
		return -1, errors.Errorf("%d %d", i, c.n)
	}
	return i, nil
}

// apply1 applies the one qubit gate u to qubit i.
func (c *Circuit) apply1(u *tensor.Dense, i int) {
	view := c.psi.Reshape(1<<i, 2, 1<<(c.n-i-1))
	// up is of shape {i, left, right}.
	up := tensor.Contract(c.buf, u, view, [][2]int{{1, 1}})
	c.psi = resetCopy(c.psi, up.Transpose(1, 0, 2)).Reshape(1 << c.n)
}

// apply2 applies the two qubit gate g of shape {outI, outJ, inI, inJ} to the qubits i and j.
func (c *Circuit) apply2(g *tensor.Dense, i, j int) {
	a, b := min(i, j), max(i, j)
	view := c.psi.Reshape(1<<a, 2, 1<<(b-a-1), 2, 1<<(c.n-b-1))
	axI, axJ := 1, 3
	if i > j {
		axI, axJ = 3, 1
	}
	// gp is of shape {i, j, left, middle, right}.
	gp := tensor.Contract(c.buf, g, view, [][2]int{{2, axI}, {3, axJ}})

	if i < j {
		gp = gp.Transpose(2, 0, 3, 1, 4)
	} else {
		gp = gp.Transpose(2, 1, 3, 0, 4)
	}
	c.psi = resetCopy(c.psi, gp).Reshape(1 << c.n)
}

// Psi returns the state as a dense ket, with qubit 0 the most significant bit.
func (c *Circuit) Psi() []complex128 {
	ket := make([]complex128, 1<<c.n)
	for i := range ket {
		ket[i] = complex128(c.psi.At(i))
	}
	return ket
}

// MPS returns the state as a matrix product state.
func (c *Circuit) MPS() ([]*tensor.Dense, error) {
	dims := make([]int, c.n)
	for i := range dims {
		dims[i] = 2
	}
	ms, err := mps.FromKet(c.Psi(), dims)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return ms, nil
}

func resetCopy(dst, src *tensor.Dense) *tensor.Dense {
	shape := src.Shape()
	zeroDigit := make([]int, len(shape))
	dst.Reset(shape...).Set(zeroDigit, src)
	return dst
}
