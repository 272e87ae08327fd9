package circuit

import (
	"math"
	"math/cmplx"

	"github.com/fumin/tensor"
)

var (
	hadamard = [][]complex64{
		{math.Sqrt2 / 2, math.Sqrt2 / 2},
		{math.Sqrt2 / 2, -math.Sqrt2 / 2},
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
	phaseS = [][]complex64{
		{1, 0},
		{0, 1i},
	}
	phaseT = [][]complex64{
		{1, 0},
		{0, complex64(cmplx.Exp(complex(0, math.Pi/4)))},
	}
)

// rx returns exp(-i theta X / 2).
func rx(theta float64) [][]complex64 {
	c, s := float32(math.Cos(theta/2)), float32(math.Sin(theta/2))
	return [][]complex64{
		{complex(c, 0), complex(0, -s)},
		{complex(0, -s), complex(c, 0)},
	}
}

// ry returns exp(-i theta Y / 2).
func ry(theta float64) [][]complex64 {
	c, s := float32(math.Cos(theta/2)), float32(math.Sin(theta/2))
	return [][]complex64{
		{complex(c, 0), complex(-s, 0)},
		{complex(s, 0), complex(c, 0)},
	}
}

// rz returns exp(-i theta Z / 2).
func rz(theta float64) [][]complex64 {
	return [][]complex64{
		{complex64(cmplx.Exp(complex(0, -theta/2))), 0},
		{0, complex64(cmplx.Exp(complex(0, theta/2)))},
	}
}

// controlled returns the two qubit gate that applies u to the second qubit when the first qubit is one.
// The returned tensor is of shape {outControl, outTarget, inControl, inTarget}.
func controlled(u [][]complex64) *tensor.Dense {
	g := tensor.Zeros(2, 2, 2, 2)
	g.SetAt([]int{0, 0, 0, 0}, 1)
	g.SetAt([]int{0, 1, 0, 1}, 1)
	for i := range 2 {
		for j := range 2 {
			g.SetAt([]int{1, i, 1, j}, u[i][j])
		}
	}
	return g
}

type gateKind int

const (
	oneQubit gateKind = iota
	rotation
	twoQubit
)

type gateDef struct {
	kind gateKind
	// u is the matrix of one qubit gates.
	u [][]complex64
	// rot returns the matrix of a rotation gate.
	rot func(theta float64) [][]complex64
	// g is the tensor of two qubit gates.
	g *tensor.Dense
}

var gateDefs = map[string]gateDef{
	"H":     {kind: oneQubit, u: hadamard},
	"X":     {kind: oneQubit, u: pauliX},
	"Y":     {kind: oneQubit, u: pauliY},
	"Z":     {kind: oneQubit, u: pauliZ},
	"S":     {kind: oneQubit, u: phaseS},
	"T":     {kind: oneQubit, u: phaseT},
	"X_1_2": {kind: oneQubit, u: rx(math.Pi / 2)},
	"Y_1_2": {kind: oneQubit, u: ry(math.Pi / 2)},
	"RX":    {kind: rotation, rot: rx},
	"RY":    {kind: rotation, rot: ry},
	"RZ":    {kind: rotation, rot: rz},
	"CX":    {kind: twoQubit, g: controlled(pauliX)},
	"CNOT":  {kind: twoQubit, g: controlled(pauliX)},
	"CY":    {kind: twoQubit, g: controlled(pauliY)},
	"CZ":    {kind: twoQubit, g: controlled(pauliZ)},
}
