// Package simplego implements a simple, and not very fast, but very portable
// pure-Go backend for GoSparse.
//
// Kernels are reference quality: they favor being obviously correct over
// density of computation. It supports Float32, Float64, Complex64 and
// Complex128 everywhere, plus Float16 and BFloat16 (computed through float32)
// for the matrix-vector and matrix-matrix products.
package simplego

import (
	"github.com/gomlx/gosparse/backends"
)

// BackendName to be used in GOSPARSE_BACKEND to specify this backend.
const BackendName = "go"

func init() {
	backends.Register(BackendName, New)
}

// New constructs a new SimpleGo Backend.
// There are no configurations, the string is simply ignored.
func New(_ string) (backends.Backend, error) {
	return &Backend{}, nil
}

// Backend implements the backends.Backend interface with portable Go kernels.
type Backend struct{}

// Compile-time check that simplego.Backend implements backends.Backend.
var _ backends.Backend = &Backend{}

// Name returns the short name of the backend.
func (b *Backend) Name() string { return BackendName }

// Description is a longer description of the Backend that can be used to pretty-print.
func (b *Backend) Description() string {
	return "Simple Go Portable Backend"
}
