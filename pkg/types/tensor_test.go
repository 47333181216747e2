package types

import "testing"

func TestTensorValidate(t *testing.T) {
	good := Tensor{Shape: []int{2, 3}, Data: make([]float32, 6)}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid tensor rejected: %v", err)
	}
	cases := []Tensor{
		{},
		{Shape: []int{0, 3}, Data: nil},
		{Shape: []int{-1}, Data: nil},
		{Shape: []int{2, 3}, Data: make([]float32, 5)},
	}
	for i, c := range cases {
		if err := c.Validate(); err == nil {
			t.Fatalf("case %d: invalid tensor accepted", i)
		}
	}
}

func TestTensorElems(t *testing.T) {
	if got := (Tensor{Shape: []int{2, 3, 4}}).Elems(); got != 24 {
		t.Fatalf("Elems=%d, want 24", got)
	}
	if got := (Tensor{}).Elems(); got != 0 {
		t.Fatalf("Elems=%d for shapeless tensor, want 0", got)
	}
}

func TestStackAndRow(t *testing.T) {
	a := Tensor{Shape: []int{2, 2}, Data: []float32{1, 2, 3, 4}}
	b := Tensor{Shape: []int{2, 2}, Data: []float32{5, 6, 7, 8}}
	stacked, err := Stack([]Tensor{a, b})
	if err != nil {
		t.Fatalf("Stack: %v", err)
	}
	if len(stacked.Shape) != 3 || stacked.Shape[0] != 2 {
		t.Fatalf("stacked shape=%v", stacked.Shape)
	}
	if stacked.Elems() != 8 || len(stacked.Data) != 8 {
		t.Fatalf("stacked data len=%d", len(stacked.Data))
	}

	row, err := stacked.Row(1)
	if err != nil {
		t.Fatalf("Row: %v", err)
	}
	if !row.SameShape(b) {
		t.Fatalf("row shape=%v", row.Shape)
	}
	for i := range row.Data {
		if row.Data[i] != b.Data[i] {
			t.Fatalf("row data=%v, want %v", row.Data, b.Data)
		}
	}

	if _, err := stacked.Row(2); err == nil {
		t.Fatalf("out-of-range row accepted")
	}
	flat := Tensor{Shape: []int{4}, Data: make([]float32, 4)}
	if _, err := flat.Row(0); err == nil {
		t.Fatalf("Row on rank-1 tensor accepted")
	}
}

func TestStackRejectsMismatchedShapes(t *testing.T) {
	a := Tensor{Shape: []int{2, 2}, Data: make([]float32, 4)}
	b := Tensor{Shape: []int{3, 2}, Data: make([]float32, 6)}
	if _, err := Stack([]Tensor{a, b}); err == nil {
		t.Fatalf("mismatched shapes accepted")
	}
	if _, err := Stack(nil); err == nil {
		t.Fatalf("empty stack accepted")
	}
}
