package blas

import (
	"github.com/gomlx/gosparse/backends"
	"github.com/gomlx/gosparse/types/tensors"
	"github.com/pkg/errors"
)

// TriangularSolve solves op(A)·X = B for X, where A is an (m, m) sparse CSR
// matrix whose upper or lower triangular part (per the upper flag) is the
// effective coefficient matrix, op is identity or transpose (per the
// transpose flag), and with unitriangular the diagonal entries are assumed to
// be 1 -- stored diagonal values, if any, are ignored.
//
// B is dense (m, nrhs). X is mutated in place and may alias B; otherwise it
// is resized to B's shape. cloneA exists purely to keep the signature
// symmetric with the dense triangular-solve counterpart: it carries no
// computational meaning here and is returned unmodified.
//
// A structurally empty A without unitriangular has no usable diagonal and the
// backend reports it as a singular system.
func TriangularSolve(backend backends.Backend, b, a *tensors.Tensor, upper, transpose, unitriangular bool, x, cloneA *tensors.Tensor) (*tensors.Tensor, *tensors.Tensor, error) {
	assertInternal(a.IsSparseCSR(), "triangular_solve: A must be in sparse CSR layout, got %s", a.Layout())

	if b.Layout() != tensors.Strided {
		return nil, nil, errors.Errorf("triangular_solve: expected B to have strided layout, but got %s", b.Layout())
	}
	if x.Layout() != tensors.Strided {
		return nil, nil, errors.Errorf("triangular_solve: expected X to have strided layout, but got %s", x.Layout())
	}
	if a.Rank() != 2 || a.Dim(0) != a.Dim(1) {
		return nil, nil, errors.Errorf("triangular_solve: expected A to be a square matrix, got shape %s", a.Shape())
	}
	if b.Rank() != 2 {
		return nil, nil, errors.Errorf("triangular_solve: expected B to be 2-D (m x nrhs), got %d-D", b.Rank())
	}
	if b.Dim(0) != a.Dim(0) {
		return nil, nil, errors.Errorf("triangular_solve: A shape %s and B shape %s have mismatched rows",
			a.Shape(), b.Shape())
	}
	if b.DType() != a.DType() {
		return nil, nil, errors.Errorf("triangular_solve: expected A and B to have the same dtype, but got %s and %s",
			a.DType(), b.DType())
	}
	if x.DType() != b.DType() {
		return nil, nil, errors.Errorf("triangular_solve: expected X and B to have the same dtype, but got %s and %s",
			x.DType(), b.DType())
	}
	if x != b {
		x.ResizeOutput(b.Dim(0), b.Dim(1))
	}

	if err := backend.TriangularSolve(a, b, x, upper, transpose, unitriangular); err != nil {
		return nil, nil, err
	}
	return x, cloneA, nil
}
