package registry

import (
	"context"
	"fmt"
	"sort"

	"segmentd/internal/config"
	"segmentd/internal/device"
	"segmentd/pkg/types"
)

// ForwardFunc runs one forward pass on the device. stream is nil when
// stream isolation is disabled; implementations then use the default
// device queue. Implementations must honor ctx cancellation between
// device submissions where the runtime allows it.
type ForwardFunc func(ctx context.Context, input types.Tensor, stream device.Stream) (types.Tensor, error)

// Handle pairs a model descriptor with its runtime callable. Handles are
// resolved once at load time so the hot path never branches on name
// strings.
type Handle struct {
	types.Model
	forward ForwardFunc
	eval    func()
}

// Eval puts the runtime in inference (no-gradient) mode. Called before
// every forward pass; a nil toggle is a no-op.
func (h *Handle) Eval() {
	if h.eval != nil {
		h.eval()
	}
}

// Forward invokes the model callable.
func (h *Handle) Forward(ctx context.Context, input types.Tensor, stream device.Stream) (types.Tensor, error) {
	return h.forward(ctx, input, stream)
}

// Registry maps model names to handles. Populated at startup, read-only
// afterwards, so lookups take no lock.
type Registry struct {
	models map[string]*Handle
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{models: make(map[string]*Handle)}
}

// Register adds a model handle. Duplicate names are an error so a config
// typo fails at startup, not at request time.
func (r *Registry) Register(m types.Model, fwd ForwardFunc, eval func()) error {
	if m.Name == "" {
		return fmt.Errorf("model with empty name")
	}
	if fwd == nil {
		return fmt.Errorf("model %q has no forward callable", m.Name)
	}
	if _, exists := r.models[m.Name]; exists {
		return fmt.Errorf("model %q registered twice", m.Name)
	}
	if m.MaxBatchSize <= 0 {
		m.MaxBatchSize = 1
	}
	if m.OptimalBatchSize <= 0 || m.OptimalBatchSize > m.MaxBatchSize {
		m.OptimalBatchSize = m.MaxBatchSize
	}
	r.models[m.Name] = &Handle{Model: m, forward: fwd, eval: eval}
	return nil
}

// Resolve returns the handle for name.
func (r *Registry) Resolve(name string) (*Handle, bool) {
	h, ok := r.models[name]
	return h, ok
}

// List returns registered model descriptors sorted by name.
func (r *Registry) List() []types.Model {
	out := make([]types.Model, 0, len(r.models))
	for _, h := range r.models {
		out = append(out, h.Model)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered models.
func (r *Registry) Len() int { return len(r.models) }

// Binder produces a forward callable for one configured model. The daemon
// supplies a binder backed by the linked runtime.
type Binder func(config.ModelConfig) (ForwardFunc, error)

// FromConfig builds a registry from configuration, binding each model
// through bind.
func FromConfig(cfgs []config.ModelConfig, bind Binder) (*Registry, error) {
	r := New()
	for _, mc := range cfgs {
		fwd, err := bind(mc)
		if err != nil {
			return nil, fmt.Errorf("bind model %q: %w", mc.Name, err)
		}
		m := types.Model{
			Name:             mc.Name,
			Family:           mc.Family,
			MaxBatchSize:     mc.MaxBatchSize,
			OptimalBatchSize: mc.OptimalBatchSize,
			InputShape:       mc.InputShape,
			OutputShape:      mc.OutputShape,
		}
		if err := r.Register(m, fwd, nil); err != nil {
			return nil, err
		}
	}
	return r, nil
}
