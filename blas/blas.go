// Package blas is the dispatch-and-validation layer for sparse-dense linear
// algebra over CSR matrices: matrix-vector multiply-accumulate (Addmv),
// triangular system solve (TriangularSolve) and dense matrix product sampled
// by an existing sparsity pattern (SampledAddmm).
//
// Every operation follows the same sequence: validate operands, handle
// degenerate inputs as exact algebraic cases, prepare the output buffer, and
// delegate the arithmetic to a backends.Backend. Outputs may alias inputs
// (result may be self, X may be B); operations produce the same values either
// way.
//
// Failures come in two classes and are never conflated:
//
//   - Caller-contract violations (e.g. passing a dense matrix where the
//     operation is defined for CSR) are programmer errors in the calling
//     layer. They are checked only when building with the "debug" tag, and
//     panic.
//   - User-input validation failures (shape, dtype or layout mismatches in
//     user-supplied operands) are always checked, before any output mutation,
//     and returned as descriptive errors scoped to the single call.
package blas

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// debugChecks is set by the build tag "debug", see debug_on.go / debug_off.go.

// assertInternal checks a caller contract. These are invariants the calling
// layer must have already guaranteed, not recoverable input errors: they are
// compiled out unless the "debug" build tag is set, and panic when violated.
func assertInternal(condition bool, format string, args ...any) {
	if debugChecks && !condition {
		exceptions.Panicf(format, args...)
	}
}

// checkScalars validates that the complex-capable coefficients can be
// represented in the operands' dtype. Runs before any output mutation.
func checkScalars(op string, dtype dtypes.DType, beta, alpha complex128) error {
	if dtype.IsComplex() || (imag(beta) == 0 && imag(alpha) == 0) {
		return nil
	}
	return errors.Errorf("%s: complex coefficients (beta=%v, alpha=%v) cannot be used with real dtype %s",
		op, beta, alpha, dtype)
}
