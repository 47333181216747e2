package types

// Model describes a registered segmentation model.
type Model struct {
	Name   string `json:"name"`
	Family string `json:"family,omitempty"`
	// Largest batch the device can safely run for this model.
	MaxBatchSize int `json:"max_batch_size"`
	// Preferred batch size measured offline; the queue forms batches up to this under load.
	OptimalBatchSize int `json:"optimal_batch_size"`
	// Expected input tensor shape (CHW), excluding the batch dimension.
	InputShape []int `json:"input_shape,omitempty"`
	// Documented output tensor shape (CHW), excluding the batch dimension.
	OutputShape []int `json:"output_shape,omitempty"`
}
