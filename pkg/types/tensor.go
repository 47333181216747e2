package types

import "fmt"

// Tensor is a dense float32 tensor in row-major order. Once submitted for
// inference the submitter must not mutate Data.
type Tensor struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// Elems returns the number of elements implied by Shape.
func (t Tensor) Elems() int {
	if len(t.Shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// Validate checks that Data matches Shape.
func (t Tensor) Validate() error {
	if len(t.Shape) == 0 {
		return fmt.Errorf("tensor has no shape")
	}
	for _, d := range t.Shape {
		if d <= 0 {
			return fmt.Errorf("tensor has non-positive dimension %d", d)
		}
	}
	if got, want := len(t.Data), t.Elems(); got != want {
		return fmt.Errorf("tensor data length %d does not match shape %v (want %d)", got, t.Shape, want)
	}
	return nil
}

// SameShape reports whether two tensors have identical shapes.
func (t Tensor) SameShape(o Tensor) bool {
	if len(t.Shape) != len(o.Shape) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != o.Shape[i] {
			return false
		}
	}
	return true
}

// Stack concatenates same-shape tensors along a new leading batch dimension.
func Stack(ts []Tensor) (Tensor, error) {
	if len(ts) == 0 {
		return Tensor{}, fmt.Errorf("stack of zero tensors")
	}
	first := ts[0]
	if err := first.Validate(); err != nil {
		return Tensor{}, err
	}
	elems := first.Elems()
	out := Tensor{
		Shape: append([]int{len(ts)}, first.Shape...),
		Data:  make([]float32, 0, len(ts)*elems),
	}
	for i, t := range ts {
		if !t.SameShape(first) {
			return Tensor{}, fmt.Errorf("tensor %d shape %v does not match batch shape %v", i, t.Shape, first.Shape)
		}
		out.Data = append(out.Data, t.Data...)
	}
	return out, nil
}

// Row returns the i-th slice along the leading (batch) dimension. The
// returned tensor aliases the receiver's data.
func (t Tensor) Row(i int) (Tensor, error) {
	if len(t.Shape) < 2 {
		return Tensor{}, fmt.Errorf("tensor rank %d has no batch dimension", len(t.Shape))
	}
	n := t.Shape[0]
	if i < 0 || i >= n {
		return Tensor{}, fmt.Errorf("row %d out of range [0,%d)", i, n)
	}
	inner := 1
	for _, d := range t.Shape[1:] {
		inner *= d
	}
	return Tensor{
		Shape: append([]int(nil), t.Shape[1:]...),
		Data:  t.Data[i*inner : (i+1)*inner],
	}, nil
}
