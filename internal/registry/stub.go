package registry

import (
	"context"
	"fmt"

	"segmentd/internal/config"
	"segmentd/internal/device"
	"segmentd/pkg/types"
)

// StubBinder binds models to a host-side placeholder runtime: the forward
// pass emits a logit tensor of the model's declared output shape whose
// values track the mean input intensity. It stands in until a real device
// runtime is linked, the same way the daemon serves placeholder output in
// development builds.
func StubBinder(mc config.ModelConfig) (ForwardFunc, error) {
	if len(mc.OutputShape) == 0 {
		return nil, fmt.Errorf("stub runtime requires an output_shape for %q", mc.Name)
	}
	outElems := 1
	for _, d := range mc.OutputShape {
		if d <= 0 {
			return nil, fmt.Errorf("non-positive output dimension %d for %q", d, mc.Name)
		}
		outElems *= d
	}
	outShape := append([]int(nil), mc.OutputShape...)

	return func(ctx context.Context, input types.Tensor, _ device.Stream) (types.Tensor, error) {
		if err := ctx.Err(); err != nil {
			return types.Tensor{}, err
		}
		if err := input.Validate(); err != nil {
			return types.Tensor{}, err
		}
		// Batched input gets a batched output.
		batched := len(input.Shape) == len(mc.InputShape)+1 || (len(mc.InputShape) == 0 && len(input.Shape) > 1)
		n := 1
		rows := []types.Tensor{input}
		if batched {
			n = input.Shape[0]
			rows = rows[:0]
			for i := 0; i < n; i++ {
				row, err := input.Row(i)
				if err != nil {
					return types.Tensor{}, err
				}
				rows = append(rows, row)
			}
		}
		out := types.Tensor{Data: make([]float32, 0, n*outElems)}
		if batched {
			out.Shape = append([]int{n}, outShape...)
		} else {
			out.Shape = outShape
		}
		for _, row := range rows {
			var sum float64
			for _, v := range row.Data {
				sum += float64(v)
			}
			mean := float32(0)
			if len(row.Data) > 0 {
				mean = float32(sum / float64(len(row.Data)))
			}
			for i := 0; i < outElems; i++ {
				out.Data = append(out.Data, mean)
			}
		}
		return out, nil
	}, nil
}
