package approx

import (
	"github.com/fumin/tensor"
	"github.com/pkg/errors"

	"github.com/fumin/qdyn/mat"
)

// LazyPtr is the reduced density operator of a pure state on some of its subsystems.
// It is applied by contracting the state with the input vector, without forming the reduced density operator.
type LazyPtr struct {
	// psi is the state grouped into the shape {dA, dB}, where A are the kept subsystems.
	psi     *tensor.Dense
	psiConj *tensor.Dense
	dA      int
}

// NewLazyPtr returns the reduced density operator of psi on the subsystems sysa.
func NewLazyPtr(psi []complex128, dims, sysa []int) (*LazyPtr, error) {
	ss, err := mat.NewSubsystems(dims, sysa, mat.Complement(len(dims), sysa))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if ss.Dim() != len(psi) {
		return nil, errors.Errorf("%#v %d", dims, len(psi))
	}

	op := &LazyPtr{dA: ss.Sizes[0]}
	op.psi = group(psi, ss)
	op.psiConj = op.psi.Conj()
	return op, nil
}

func (op *LazyPtr) Rows() int { return op.dA }
func (op *LazyPtr) Cols() int { return op.dA }

// Apply computes dst = Tr_B(|psi><psi|) x.
// It is safe for concurrent use.
func (op *LazyPtr) Apply(dst, x []complex128) {
	xt := vectorTensor(x)
	// Contract indexes its operands with their own digits, so each call works on private copies.
	psi, psiConj := *op.psi, *op.psiConj

	// t1 is of shape {dB}.
	t1 := tensor.Contract(tensor.Zeros(1), &psiConj, xt, [][2]int{{0, 0}})
	// y is of shape {dA}.
	y := tensor.Contract(tensor.Zeros(1), &psi, t1, [][2]int{{1, 0}})

	for i := range dst {
		dst[i] = complex128(y.At(i))
	}
}

// LazyPtrPpt is the partial transpose over B of the reduced density operator of a pure state on the subsystems A and B.
type LazyPtrPpt struct {
	// psi is the state grouped into the shape {dA, dB, dC}, where C are the traced out subsystems.
	psi     *tensor.Dense
	psiConj *tensor.Dense
	dA, dB  int
}

// NewLazyPtrPpt returns the partial transpose over sysb of the reduced density operator of psi on sysa and sysb.
// Basis states are ordered with sysa more significant than sysb.
func NewLazyPtrPpt(psi []complex128, dims, sysa, sysb []int) (*LazyPtrPpt, error) {
	ss, err := mat.NewSubsystems(dims, sysa, sysb, mat.Complement(len(dims), sysa, sysb))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if ss.Dim() != len(psi) {
		return nil, errors.Errorf("%#v %d", dims, len(psi))
	}

	op := &LazyPtrPpt{dA: ss.Sizes[0], dB: ss.Sizes[1]}
	op.psi = group(psi, ss)
	op.psiConj = op.psi.Conj()
	return op, nil
}

func (op *LazyPtrPpt) Rows() int { return op.dA * op.dB }
func (op *LazyPtrPpt) Cols() int { return op.dA * op.dB }

// Apply computes dst = (Tr_C |psi><psi|)^{T_B} x.
// It is safe for concurrent use.
func (op *LazyPtrPpt) Apply(dst, x []complex128) {
	xt := vectorTensor(x).Reshape(op.dA, op.dB)
	psi, psiConj := *op.psi, *op.psiConj

	// t1 is of shape {b, c, b'}.
	t1 := tensor.Contract(tensor.Zeros(1), &psiConj, xt, [][2]int{{0, 0}})
	// y is of shape {a, b}, contracting b' and c.
	y := tensor.Contract(tensor.Zeros(1), &psi, t1, [][2]int{{1, 2}, {2, 1}})

	for a := range op.dA {
		for b := range op.dB {
			dst[a*op.dB+b] = complex128(y.At(a, b))
		}
	}
}

// group arranges psi into a tensor whose axes are the groups of ss.
func group(psi []complex128, ss *mat.Subsystems) *tensor.Dense {
	g := tensor.Zeros(ss.Sizes...)
	idx := make([]int, len(ss.Sizes))
	for i, v := range psi {
		ss.Split(idx, i)
		g.SetAt(idx, complex64(v))
	}
	return g
}

func vectorTensor(x []complex128) *tensor.Dense {
	t := tensor.Zeros(len(x))
	for i, v := range x {
		t.SetAt([]int{i}, complex64(v))
	}
	return t
}
