package mat

import (
	"cmp"
	"fmt"
	"iter"
	"math/cmplx"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	PauliI = [][]complex128{
		{1, 0},
		{0, 1},
	}
	PauliX = [][]complex128{
		{0, 1},
		{1, 0},
	}
	PauliY = [][]complex128{
		{0, -1i},
		{1i, 0},
	}
	PauliZ = [][]complex128{
		{1, 0},
		{0, -1},
	}
)

// LinearOperator is a linear map that can only be applied to vectors.
type LinearOperator interface {
	Rows() int
	Cols() int
	// Apply sets dst to the operator applied to x.
	Apply(dst, x []complex128)
}

type vRowCol struct {
	v   complex128
	row int
	col int
}

// COO is a sparse matrix in coordinate format.
// Data is kept sorted in row major order.
type COO struct {
	rows int
	cols int
	Data []vRowCol
}

func M(dense [][]complex128) *COO {
	m := &COO{rows: len(dense), cols: len(dense[0]), Data: make([]vRowCol, 0)}
	for i, row := range dense {
		for j, v := range row {
			if v == 0 {
				continue
			}
			m.Data = append(m.Data, vRowCol{v: v, row: i, col: j})
		}
	}
	return m
}

func COOZeros(rows, cols int) *COO {
	m := M([][]complex128{{0}})
	m.Zeros(rows, cols)
	return m
}

func COOIdentity(rows int) *COO {
	m := M([][]complex128{{0}})
	m.Zeros(rows, rows)
	for i := 0; i < rows; i++ {
		m.Data = append(m.Data, vRowCol{v: 1, row: i, col: i})
	}
	return m
}

func (m *COO) Rows() int { return m.rows }
func (m *COO) Cols() int { return m.cols }

func (m *COO) Zeros(rows, cols int) {
	m.rows, m.cols = rows, cols
	m.Data = m.Data[:0]
}

func (m *COO) Scalar(v complex128) {
	m.rows, m.cols = 1, 1
	m.Data = m.Data[:0]
	m.Data = append(m.Data, vRowCol{v: v, row: 0, col: 0})
}

// Copy returns a deep copy of m.
func (m *COO) Copy() *COO {
	return &COO{rows: m.rows, cols: m.cols, Data: slices.Clone(m.Data)}
}

func (a *COO) Equal(b *COO) bool {
	if a.rows != b.rows {
		return false
	}
	if a.cols != b.cols {
		return false
	}
	return slices.Equal(a.Data, b.Data)
}

// Slice returns the rows [yBound[0], yBound[1]) and columns [xBound[0], xBound[1]) of m.
// Negative bounds count from the end.
func (m *COO) Slice(yBound, xBound [2]int) *COO {
	for i := range 2 {
		if yBound[i] < 0 {
			yBound[i] += m.rows
		}
		if xBound[i] < 0 {
			xBound[i] += m.cols
		}
	}

	s := &COO{rows: yBound[1] - yBound[0], cols: xBound[1] - xBound[0], Data: make([]vRowCol, 0)}
	// The entries of the sliced rows are contiguous.
	lo, _ := slices.BinarySearchFunc(m.Data, yBound[0], func(v vRowCol, row int) int { return cmp.Compare(v.row, row) })
	for _, v := range m.Data[lo:] {
		if v.row >= yBound[1] {
			break
		}
		if v.col < xBound[0] || v.col >= xBound[1] {
			continue
		}
		s.Data = append(s.Data, vRowCol{v: v.v, row: v.row - yBound[0], col: v.col - xBound[0]})
	}
	return s
}

// Add sets a to a + c*b.
// b may also be a scalar or a column vector, in which case it is broadcast over the non-zero entries of a.
func (a *COO) Add(c complex128, b *COO) {
	if b.rows != a.rows || b.cols != a.cols {
		bm := b.index()
		for i, av := range a.Data {
			a.Data[i].v = av.v + c*bm[broadcastKey(a, b, av.row, av.col)]
		}
		a.Data = slices.DeleteFunc(a.Data, isZero)
		return
	}

	// Merge the sorted entries of a and b.
	sum := make([]vRowCol, 0, len(a.Data)+len(b.Data))
	i, j := 0, 0
	for i < len(a.Data) || j < len(b.Data) {
		var v vRowCol
		switch {
		case j == len(b.Data) || (i < len(a.Data) && rowMajor(a.Data[i], b.Data[j]) < 0):
			v = a.Data[i]
			i++
		case i == len(a.Data) || rowMajor(a.Data[i], b.Data[j]) > 0:
			v = b.Data[j]
			v.v *= c
			j++
		default:
			v = a.Data[i]
			v.v += c * b.Data[j].v
			i++
			j++
		}
		if v.v != 0 {
			sum = append(sum, v)
		}
	}
	a.Data = sum
}

// Mul multiplies a and b element-wise, broadcasting b if it is a scalar or a column vector.
func (a *COO) Mul(b *COO) {
	bm := b.index()
	for i, av := range a.Data {
		a.Data[i].v = av.v * bm[broadcastKey(a, b, av.row, av.col)]
	}
	a.Data = slices.DeleteFunc(a.Data, isZero)
}

// broadcastKey returns the position in b of the entry that meets the entry at row i and column j of a.
func broadcastKey(a, b *COO, i, j int) [2]int {
	switch {
	case b.rows == 1 && b.cols == 1:
		return [2]int{0, 0}
	case b.rows == a.rows && b.cols == 1:
		return [2]int{i, 0}
	case b.rows == a.rows && b.cols == a.cols:
		return [2]int{i, j}
	default:
		panic(fmt.Sprintf("wrong dimensions %d %d %d %d", a.rows, a.cols, b.rows, b.cols))
	}
}

// Kron sets a to the Kronecker product a ⊗ b.
func (a *COO) Kron(b *COO) {
	// Visiting the rows of a, then the rows of b, yields the product in row major order.
	data := make([]vRowCol, 0, len(a.Data)*len(b.Data))
	bRows := rowGroups(b.Data)
	for _, ar := range rowGroups(a.Data) {
		for _, br := range bRows {
			for _, av := range ar {
				for _, bv := range br {
					v := vRowCol{v: av.v * bv.v, row: av.row*b.rows + bv.row, col: av.col*b.cols + bv.col}
					data = append(data, v)
				}
			}
		}
	}
	a.rows, a.cols = a.rows*b.rows, a.cols*b.cols
	a.Data = slices.DeleteFunc(data, isZero)
}

// rowGroups splits row major entries into runs of the same row.
func rowGroups(data []vRowCol) [][]vRowCol {
	groups := make([][]vRowCol, 0)
	for start := 0; start < len(data); {
		end := start + 1
		for end < len(data) && data[end].row == data[start].row {
			end++
		}
		groups = append(groups, data[start:end])
		start = end
	}
	return groups
}

func isZero(v vRowCol) bool { return v.v == 0 }

// All yields the row, column and value of every non-zero entry in row major order.
func (m *COO) All() iter.Seq2[[2]int, complex128] {
	return func(yield func([2]int, complex128) bool) {
		for _, v := range m.Data {
			if !yield([2]int{v.row, v.col}, v.v) {
				return
			}
		}
	}
}

// SetAt sets the entry at row i and column j to v.
func (m *COO) SetAt(i, j int, v complex128) {
	if i < 0 || i >= m.rows || j < 0 || j >= m.cols {
		panic(fmt.Sprintf("%d %d %d %d", i, j, m.rows, m.cols))
	}
	e := vRowCol{v: v, row: i, col: j}
	k, found := slices.BinarySearchFunc(m.Data, e, rowMajor)
	switch {
	case found && v == 0:
		m.Data = slices.Delete(m.Data, k, k+1)
	case found:
		m.Data[k].v = v
	case v != 0:
		m.Data = slices.Insert(m.Data, k, e)
	}
}

// Apply computes dst = m @ x.
func (m *COO) Apply(dst, x []complex128) {
	if len(dst) != m.rows || len(x) != m.cols {
		panic(fmt.Sprintf("%d %d %d %d", m.rows, m.cols, len(dst), len(x)))
	}
	clear(dst)
	for _, v := range m.Data {
		dst[v.row] += v.v * x[v.col]
	}
}

func (m *COO) Dense() [][]complex128 {
	dense := make([][]complex128, m.rows)
	for i := range dense {
		dense[i] = make([]complex128, m.cols)
	}

	for _, v := range m.Data {
		dense[v.row][v.col] = v.v
	}

	return dense
}

// CDense converts m to a dense matrix.
func (m *COO) CDense() *CDense {
	d := NewCDense(m.rows, m.cols, nil)
	for _, v := range m.Data {
		d.Set(v.row, v.col, v.v)
	}
	return d
}

// Eigen returns the eigen decomposition of the Hermitian matrix m sorted by eigenvalue.
func (m *COO) Eigen() ([]ValVec, error) {
	vals, vecs, err := Eigh(m.CDense())
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	vvs := make([]ValVec, 0, len(vals))
	for i, v := range vals {
		vec := make([]complex128, 0, m.rows)
		for j := 0; j < m.rows; j++ {
			vec = append(vec, vecs.At(j, i))
		}
		vvs = append(vvs, ValVec{Val: complex(v, 0), Vec: vec})
	}
	return vvs, nil
}

type ValVec struct {
	Val complex128
	Vec []complex128
}

func (m *COO) index() map[[2]int]complex128 {
	idx := make(map[[2]int]complex128, len(m.Data))
	for _, v := range m.Data {
		idx[[2]int{v.row, v.col}] = v.v
	}
	return idx
}

// IsHermitian reports whether m equals its conjugate transpose within tol.
func (m *COO) IsHermitian(tol float64) bool {
	if m.rows != m.cols {
		return false
	}
	idx := m.index()
	for _, v := range m.Data {
		if cmplx.Abs(v.v-cmplx.Conj(idx[[2]int{v.col, v.row}])) > tol {
			return false
		}
	}
	return true
}

func (m *COO) String() string {
	idx := m.index()

	lines := []string{}
	for i := 0; i < m.rows; i++ {
		cs := []string{}
		for j := 0; j < m.cols; j++ {
			v := idx[[2]int{i, j}]
			switch {
			case imag(v) == 0:
				cs = append(cs, format(real(v)))
			case real(v) == 0:
				cs = append(cs, format(imag(v))+"i")
			default:
				cs = append(cs, format(real(v))+"+"+format(imag(v))+"i")
			}
		}
		l := strings.Join(cs, "\t")
		lines = append(lines, l)
	}

	return strings.Join(lines, "\n")
}

func rowMajor(a, b vRowCol) int {
	if c := cmp.Compare(a.row, b.row); c != 0 {
		return c
	}
	return cmp.Compare(a.col, b.col)
}

func format(v float64) string {
	// If v is 0 or -0, return "0" immediately to avoid returning "-0".
	if v == 0 {
		return " 0"
	}

	s := strconv.FormatFloat(v, 'g', -1, 64)

	// Add a space before non-negative numbers to align with other negative numbers in the same column.
	if v >= 0 {
		s = " " + s
	}

	return s
}

// Ikron places op, which acts on the subsystems inds of a composite system with dimensions dims, into the full space.
// The remaining subsystems are padded with identities.
// inds must be sorted and contiguous when op acts on more than one subsystem.
func Ikron(op *COO, dims []int, inds ...int) (*COO, error) {
	if len(inds) == 0 {
		return nil, errors.Errorf("no subsystems")
	}
	opD := 1
	for k, i := range inds {
		if i < 0 || i >= len(dims) {
			return nil, errors.Errorf("%d %#v", i, dims)
		}
		if k > 0 && i != inds[k-1]+1 {
			return nil, errors.Errorf("not contiguous %#v", inds)
		}
		opD *= dims[i]
	}
	if op.rows != opD || op.cols != opD {
		return nil, errors.Errorf("%d %d %d", op.rows, op.cols, opD)
	}

	full := M([][]complex128{{1}})
	for i := 0; i < len(dims); i++ {
		switch {
		case i == inds[0]:
			full.Kron(op)
		case i > inds[0] && i <= inds[len(inds)-1]:
		default:
			full.Kron(COOIdentity(dims[i]))
		}
	}
	return full, nil
}
