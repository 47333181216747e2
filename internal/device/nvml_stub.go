//go:build !nvml

package device

// Discover returns the host fallback. Build with -tags=nvml to sample a
// real GPU through NVML.
func Discover() Device { return NewHost() }
