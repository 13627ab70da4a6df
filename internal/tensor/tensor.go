package tensor

import "math/rand"

// Tensor represents a dense float32 tensor in row-major layout.
//
// Shape holds the extent of each axis and Strides the number of elements
// between consecutive indices along that axis. Views produced by Narrow share
// their backing Data with the parent, so a view's Strides may describe a
// larger allocation than its Shape.
//
// Tensor does not perform any memory safety beyond the checks performed by
// Go's slice types; out-of-range indices will panic.
type Tensor struct {
	Shape   []int
	Strides []int
	Data    []float32
}

// New allocates a zero-initialised contiguous tensor with the given shape.
func New(shape ...int) *Tensor {
	n := 1
	for _, d := range shape {
		if d < 0 {
			panic("tensor: negative dimension")
		}
		n *= d
	}
	return &Tensor{
		Shape:   append([]int(nil), shape...),
		Strides: contiguousStrides(shape),
		Data:    make([]float32, n),
	}
}

// FromData wraps existing data in a contiguous tensor. The data length must
// match the product of the shape.
func FromData(data []float32, shape ...int) *Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}
	if n != len(data) {
		panic("tensor: data length mismatch")
	}
	return &Tensor{
		Shape:   append([]int(nil), shape...),
		Strides: contiguousStrides(shape),
		Data:    data,
	}
}

func contiguousStrides(shape []int) []int {
	strides := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= shape[i]
	}
	return strides
}

// Rank returns the number of axes.
func (t *Tensor) Rank() int { return len(t.Shape) }

// Dim returns the extent of axis i. Negative i counts from the end.
func (t *Tensor) Dim(i int) int {
	if i < 0 {
		i += len(t.Shape)
	}
	return t.Shape[i]
}

// Size returns the number of logical elements described by Shape.
func (t *Tensor) Size() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// At returns the element at the given multi-axis index.
func (t *Tensor) At(idx ...int) float32 {
	return t.Data[t.flatIndex(idx)]
}

// Set stores v at the given multi-axis index.
func (t *Tensor) Set(v float32, idx ...int) {
	t.Data[t.flatIndex(idx)] = v
}

func (t *Tensor) flatIndex(idx []int) int {
	if len(idx) != len(t.Shape) {
		panic("tensor: index rank mismatch")
	}
	flat := 0
	for i, x := range idx {
		if x < 0 || x >= t.Shape[i] {
			panic("tensor: index out of range")
		}
		flat += x * t.Strides[i]
	}
	return flat
}

// Narrow returns a view covering the first length positions along axis. The
// view shares backing data with t.
func (t *Tensor) Narrow(axis, length int) *Tensor {
	if axis < 0 {
		axis += len(t.Shape)
	}
	if length < 0 || length > t.Shape[axis] {
		panic("tensor: narrow out of range")
	}
	shape := append([]int(nil), t.Shape...)
	shape[axis] = length
	return &Tensor{
		Shape:   shape,
		Strides: append([]int(nil), t.Strides...),
		Data:    t.Data,
	}
}

// CopyInto copies src into the region of t starting at offset along axis.
// Both tensors must agree on every other axis extent.
func (t *Tensor) CopyInto(src *Tensor, axis, offset int) {
	if axis < 0 {
		axis += len(t.Shape)
	}
	if len(src.Shape) != len(t.Shape) {
		panic("tensor: rank mismatch")
	}
	for i, d := range src.Shape {
		if i == axis {
			continue
		}
		if d != t.Shape[i] {
			panic("tensor: shape mismatch")
		}
	}
	if offset+src.Shape[axis] > t.Shape[axis] {
		panic("tensor: copy out of range")
	}
	idx := make([]int, len(src.Shape))
	var walk func(ax int)
	walk = func(ax int) {
		if ax == len(src.Shape) {
			dst := 0
			for i, x := range idx {
				if i == axis {
					x += offset
				}
				dst += x * t.Strides[i]
			}
			t.Data[dst] = src.At(idx...)
			return
		}
		for x := 0; x < src.Shape[ax]; x++ {
			idx[ax] = x
			walk(ax + 1)
		}
	}
	walk(0)
}

// FillRand fills t with deterministic pseudo-random values in [-1, 1) derived
// from seed.
func FillRand(t *Tensor, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	for i := range t.Data {
		t.Data[i] = rng.Float32()*2 - 1
	}
}
