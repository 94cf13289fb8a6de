package compute

import "fmt"

// Shape is a 4-D tensor shape in row-major order (d0 slowest, d3 fastest).
type Shape [4]uint32

// NewShape builds a Shape from the four dimensions.
func NewShape(d0, d1, d2, d3 uint32) Shape { return Shape{d0, d1, d2, d3} }

// Elems returns the total element count, the product of the four dimensions.
func (s Shape) Elems() uint64 {
	return uint64(s[0]) * uint64(s[1]) * uint64(s[2]) * uint64(s[3])
}

// Bytes returns the buffer size for this shape at the given element type.
func (s Shape) Bytes(t ElementType) uint64 {
	return s.Elems() * uint64(t.Stride())
}

// Validate rejects empty tensors. Any zero dimension makes the element
// product zero, so one check covers all four.
func (s Shape) Validate() error {
	if s.Elems() == 0 {
		return fmt.Errorf("%w: %v", ErrEmptyShape, s)
	}
	return nil
}

// Equal reports exact equality across all four dimensions. No broadcasting:
// the kernels assume both inputs share one fixed layout.
func (s Shape) Equal(o Shape) bool { return s == o }

func (s Shape) String() string {
	return fmt.Sprintf("(%d,%d,%d,%d)", s[0], s[1], s[2], s[3])
}
