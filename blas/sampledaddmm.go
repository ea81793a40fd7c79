package blas

import (
	"github.com/gomlx/gosparse/backends"
	"github.com/gomlx/gosparse/types/tensors"
	"github.com/pkg/errors"
)

// SampledAddmm computes result = alpha*(mat1 @ mat2)·spy(self) + beta*self,
// where spy(self) is the indicator of self's sparsity pattern: the dense
// product contributes only at the coordinates where self has stored entries,
// and result inherits exactly self's row pointers and column indices -- only
// the values differ. Coordinates absent from self are not represented in the
// result, not even as explicit zeros.
//
// mat1 (m, k) and mat2 (k, n) are dense; self and result are (m, n) CSR, all
// four sharing one dtype. result may be the same tensor as self; otherwise it
// is structurally reshaped to self's pattern.
//
// The backend runs the reference algorithm: materialize the full dense
// accumulate beta*self + alpha*(mat1 @ mat2) and mask it by self's pattern. A
// production-grade backend would compute only the sampled entries; the
// contract obligation is correctness, not density of computation.
func SampledAddmm(backend backends.Backend, self, mat1, mat2 *tensors.Tensor, beta, alpha complex128, result *tensors.Tensor) (*tensors.Tensor, error) {
	assertInternal(self.IsSparseCSR(), "sampled_addmm: self must be in sparse CSR layout, got %s", self.Layout())

	if mat1.Layout() != tensors.Strided {
		return nil, errors.Errorf("sampled_addmm: expected mat1 to have strided layout, but got %s", mat1.Layout())
	}
	if mat2.Layout() != tensors.Strided {
		return nil, errors.Errorf("sampled_addmm: expected mat2 to have strided layout, but got %s", mat2.Layout())
	}
	if !result.IsSparseCSR() {
		return nil, errors.Errorf("sampled_addmm: expected result to have sparse csr layout, but got %s", result.Layout())
	}
	if mat1.DType() != mat2.DType() {
		return nil, errors.Errorf("sampled_addmm: expected mat1 and mat2 to have the same dtype, but got %s and %s",
			mat1.DType(), mat2.DType())
	}
	if mat1.DType() != self.DType() {
		return nil, errors.Errorf("sampled_addmm: expected mat1 and self to have the same dtype, but got %s and %s",
			mat1.DType(), self.DType())
	}
	if result.DType() != self.DType() {
		return nil, errors.Errorf("sampled_addmm: expected result and self to have the same dtype, but got %s and %s",
			result.DType(), self.DType())
	}
	if mat1.Rank() != 2 {
		return nil, errors.Errorf("sampled_addmm: expected mat1 to be a matrix, got %d-D tensor", mat1.Rank())
	}
	if mat2.Rank() != 2 {
		return nil, errors.Errorf("sampled_addmm: expected mat2 to be a matrix, got %d-D tensor", mat2.Rank())
	}
	if result.Rank() != 2 {
		return nil, errors.Errorf("sampled_addmm: expected result to be a matrix, got %d-D tensor", result.Rank())
	}
	if mat1.Dim(1) != mat2.Dim(0) {
		return nil, errors.Errorf("sampled_addmm: mat1 and mat2 shapes cannot be multiplied (%dx%d and %dx%d)",
			mat1.Dim(0), mat1.Dim(1), mat2.Dim(0), mat2.Dim(1))
	}
	if self.Dim(0) != mat1.Dim(0) {
		return nil, errors.Errorf("sampled_addmm: self dim 0 (%d) must match mat1 dim 0 (%d)", self.Dim(0), mat1.Dim(0))
	}
	if self.Dim(1) != mat2.Dim(1) {
		return nil, errors.Errorf("sampled_addmm: self dim 1 (%d) must match mat2 dim 1 (%d)", self.Dim(1), mat2.Dim(1))
	}
	if err := checkScalars("sampled_addmm", self.DType(), beta, alpha); err != nil {
		return nil, err
	}
	if result != self {
		result.ResizeAsCSR(self)
	}

	// The dense accumulate is fully materialized before result is touched, so
	// result aliasing self is safe.
	dense, err := backend.Addmm(self.ToDense(), mat1, mat2, beta, alpha)
	if err != nil {
		return nil, err
	}
	masked, err := dense.SparseMask(self)
	if err != nil {
		return nil, errors.WithMessage(err, "sampled_addmm")
	}
	if err = result.CopyFrom(masked); err != nil {
		return nil, errors.WithMessage(err, "sampled_addmm: writing result")
	}
	return result, nil
}

// SampledAddmmAlloc is the allocating variant of SampledAddmm: it constructs
// a fresh empty CSR output with self's dtype, delegates to the in-place form
// and returns the freshly produced result.
func SampledAddmmAlloc(backend backends.Backend, self, mat1, mat2 *tensors.Tensor, beta, alpha complex128) (*tensors.Tensor, error) {
	result := tensors.EmptyCSR(self.DType())
	return SampledAddmm(backend, self, mat1, mat2, beta, alpha, result)
}
