package blas

import (
	"github.com/gomlx/gosparse/backends"
	"github.com/gomlx/gosparse/types/tensors"
	"github.com/pkg/errors"
)

// Addmv computes result = beta*self + alpha*(mat @ vec), where mat is an
// (m, k) sparse CSR matrix, vec a dense k-vector and self a bias
// broadcastable to an m-vector. It returns result, mutated in place, so call
// sites can chain.
//
// result may be the same tensor as self (in-place accumulation), in which
// case it must already have shape (m,). Otherwise result is resized to (m,)
// and, only when beta != 0, self's values are copied in first: with beta == 0
// the output is purely alpha*(mat @ vec) and prior values of self -- stale,
// uninitialized, NaN or Inf -- never contribute.
//
// A mat with zero stored entries is exactly the zero matrix, and the result
// is produced without invoking the backend: the zero vector when beta == 0,
// beta*self otherwise.
//
// mat being in CSR layout is a contract with the caller, asserted only in
// debug builds. Everything else is user-facing validation.
func Addmv(backend backends.Backend, self, mat, vec *tensors.Tensor, beta, alpha complex128, result *tensors.Tensor) (*tensors.Tensor, error) {
	assertInternal(mat.IsSparseCSR(), "addmv: mat must be in sparse CSR layout, got %s", mat.Layout())

	if mat.Rank() != 2 {
		return nil, errors.Errorf("addmv: expected mat to be 2-D, got %d-D", mat.Rank())
	}
	if vec.Layout() != tensors.Strided {
		return nil, errors.Errorf("addmv: expected vec to have strided layout, but got %s", vec.Layout())
	}
	if self.Layout() != tensors.Strided {
		return nil, errors.Errorf("addmv: expected self to have strided layout, but got %s", self.Layout())
	}
	if result.Layout() != tensors.Strided {
		return nil, errors.Errorf("addmv: expected result to have strided layout, but got %s", result.Layout())
	}
	if vec.Rank() != 1 {
		return nil, errors.Errorf("addmv: expected vec to be 1-D, got %d-D", vec.Rank())
	}
	if vec.DType() != mat.DType() {
		return nil, errors.Errorf("addmv: expected mat and vec to have the same dtype, but got %s and %s",
			mat.DType(), vec.DType())
	}
	if self.DType() != mat.DType() {
		return nil, errors.Errorf("addmv: expected mat and self to have the same dtype, but got %s and %s",
			mat.DType(), self.DType())
	}
	if result.DType() != mat.DType() {
		return nil, errors.Errorf("addmv: expected result and mat to have the same dtype, but got %s and %s",
			result.DType(), mat.DType())
	}
	m, k := mat.Dim(0), mat.Dim(1)
	if vec.Dim(0) != k {
		return nil, errors.Errorf("addmv: mat shape %s cannot be multiplied with vec of dimension %d",
			mat.Shape(), vec.Dim(0))
	}
	if err := checkScalars("addmv", mat.DType(), beta, alpha); err != nil {
		return nil, err
	}
	expandedSelf, err := self.ExpandTo(m)
	if err != nil {
		return nil, errors.WithMessage(err, "addmv: self is not broadcastable to the result shape")
	}
	if result == self {
		if err = result.Shape().CheckDims(m); err != nil {
			return nil, errors.WithMessage(err, "addmv: in-place result (==self) must already have the result shape")
		}
	} else {
		result.ResizeOutput(m)
		if beta != 0 {
			if err = result.CopyFrom(expandedSelf); err != nil {
				return nil, errors.WithMessage(err, "addmv: copying self into result")
			}
		}
	}

	if mat.Nnz() == 0 {
		// Shortcut for a structurally empty matrix: it is exactly the zero
		// linear map, independent of the backend's behavior on empty inputs.
		if beta == 0 {
			// Values in self are ignored when beta == 0; NaNs and Infs must
			// not propagate.
			result.Zero()
			return result, nil
		}
		if err = result.ScaleFrom(beta, expandedSelf); err != nil {
			return nil, errors.WithMessage(err, "addmv")
		}
		return result, nil
	}

	if err = backend.Addmv(mat, vec, beta, alpha, result); err != nil {
		return nil, err
	}
	return result, nil
}
