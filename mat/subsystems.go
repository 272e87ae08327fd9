package mat

import (
	"slices"

	"github.com/pkg/errors"
)

// Subsystems splits the basis of a composite system into groups of subsystems.
// Subsystem 0 is the most significant digit of a flat index, as in a Kronecker product.
type Subsystems struct {
	dims   []int
	groups [][]int
	// Sizes are the dimensions of each group.
	Sizes []int

	// pos[s] is the group of subsystem s and stride[s] its stride within that group.
	pos    []int
	stride []int
}

// NewSubsystems groups the subsystems of dims.
// Every subsystem must belong to exactly one group.
// The order of subsystems inside a group determines the ordering of the group's basis.
func NewSubsystems(dims []int, groups ...[]int) (*Subsystems, error) {
	s := &Subsystems{dims: slices.Clone(dims), Sizes: make([]int, len(groups))}
	s.pos = make([]int, len(dims))
	s.stride = make([]int, len(dims))
	for i := range s.pos {
		s.pos[i] = -1
	}
	for _, d := range dims {
		if d <= 0 {
			return nil, errors.Errorf("%#v", dims)
		}
	}

	for g, group := range groups {
		s.groups = append(s.groups, slices.Clone(group))
		size := 1
		for k := len(group) - 1; k >= 0; k-- {
			i := group[k]
			if i < 0 || i >= len(dims) {
				return nil, errors.Errorf("%d %#v", i, dims)
			}
			if s.pos[i] != -1 {
				return nil, errors.Errorf("duplicate %d %#v", i, groups)
			}
			s.pos[i] = g
			s.stride[i] = size
			size *= dims[i]
		}
		s.Sizes[g] = size
	}
	for i, p := range s.pos {
		if p == -1 {
			return nil, errors.Errorf("subsystem %d not grouped %#v", i, groups)
		}
	}
	return s, nil
}

// Dim returns the dimension of the whole system.
func (s *Subsystems) Dim() int {
	d := 1
	for _, di := range s.dims {
		d *= di
	}
	return d
}

// Split writes the group indices of the flat index i into out.
func (s *Subsystems) Split(out []int, i int) {
	clear(out)
	for k := len(s.dims) - 1; k >= 0; k-- {
		digit := i % s.dims[k]
		i /= s.dims[k]
		out[s.pos[k]] += digit * s.stride[k]
	}
}

// Join is the inverse of Split.
func (s *Subsystems) Join(idx []int) int {
	flat := 0
	for k, d := range s.dims {
		g := s.pos[k]
		digit := (idx[g] / s.stride[k]) % d
		flat = flat*d + digit
	}
	return flat
}

// Complement returns the subsystems of a system with n subsystems that are not in sys, in ascending order.
func Complement(n int, sys ...[]int) []int {
	in := make([]bool, n)
	for _, ss := range sys {
		for _, i := range ss {
			if i >= 0 && i < n {
				in[i] = true
			}
		}
	}
	c := make([]int, 0, n)
	for i, ok := range in {
		if !ok {
			c = append(c, i)
		}
	}
	return c
}
