package simplego

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gosparse/types/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// TriangularSolve implements backends.Backend: substitution over the stored
// triangle of the CSR matrix a, solving op(a)·x = b.
//
// The non-transposed systems run row-oriented substitution, forward for lower
// and backward for upper. The transposed systems reuse a's CSR rows as the
// columns of op(a) and run scatter-style substitution in the mirror order.
// Stored entries outside the selected triangle are ignored.
//
// A structurally missing (or stored-zero) diagonal entry without the
// unitriangular flag makes the system singular and is reported as an error;
// with unitriangular set the diagonal is never read.
func (b *Backend) TriangularSolve(a, bT, x *tensors.Tensor, upper, transpose, unitriangular bool) error {
	klog.V(2).Infof("simplego.TriangularSolve: a=%s b=%s upper=%v transpose=%v unitriangular=%v",
		a, bT, upper, transpose, unitriangular)
	switch a.DType() {
	case dtypes.Float32:
		return triangularSolveCSR[float32](a, bT, x, upper, transpose, unitriangular)
	case dtypes.Float64:
		return triangularSolveCSR[float64](a, bT, x, upper, transpose, unitriangular)
	case dtypes.Complex64:
		return triangularSolveCSR[complex64](a, bT, x, upper, transpose, unitriangular)
	case dtypes.Complex128:
		return triangularSolveCSR[complex128](a, bT, x, upper, transpose, unitriangular)
	default:
		return errors.Errorf("triangular_solve: dtype %s not supported by the %q backend", a.DType(), BackendName)
	}
}

func triangularSolveCSR[T interface {
	tensors.PODNumeric
	tensors.Supported
}](a, b, x *tensors.Tensor, upper, transpose, unitriangular bool) error {
	m := a.Dim(0)
	nrhs := b.Dim(1)
	rowPtr, colIdx := a.RowPointers(), a.ColumnIndices()
	vals := tensors.ValuesData[T](a)
	bFlat := tensors.FlatData[T](b)
	xFlat := tensors.FlatData[T](x)
	// Substitution runs in place over x; x may alias b.
	copy(xFlat, bFlat)

	if !transpose {
		return solveRows(m, nrhs, rowPtr, colIdx, vals, xFlat, upper, unitriangular)
	}
	return solveColumns(m, nrhs, rowPtr, colIdx, vals, xFlat, upper, unitriangular)
}

// solveRows performs row-oriented substitution for the non-transposed
// systems: forward (ascending rows) for lower triangular, backward for upper.
// On entry x holds b; each row's already-solved neighbors are subtracted
// before dividing by the diagonal.
func solveRows[T tensors.PODNumeric](m, nrhs int, rowPtr, colIdx []int32, vals, x []T, upper, unitriangular bool) error {
	rowStart, rowEnd, step := 0, m, 1
	if upper {
		rowStart, rowEnd, step = m-1, -1, -1
	}
	for i := rowStart; i != rowEnd; i += step {
		var diag T
		diagFound := false
		for p := rowPtr[i]; p < rowPtr[i+1]; p++ {
			j := int(colIdx[p])
			if j == i {
				if !unitriangular {
					diag = vals[p]
					diagFound = true
				}
				continue
			}
			if (upper && j < i) || (!upper && j > i) {
				continue // outside the selected triangle
			}
			av := vals[p]
			for k := 0; k < nrhs; k++ {
				x[i*nrhs+k] -= av * x[j*nrhs+k]
			}
		}
		if unitriangular {
			continue
		}
		if !diagFound || diag == 0 {
			return singularError(i)
		}
		for k := 0; k < nrhs; k++ {
			x[i*nrhs+k] /= diag
		}
	}
	return nil
}

// solveColumns performs substitution for the transposed systems, using the
// CSR rows of a as the columns of op(a): once x's row i is final, row i of a
// scatters its contribution out of the still-pending rows of x. A lower
// triangular a transposes to an upper system, so it runs backward; upper
// transposes to lower and runs forward.
func solveColumns[T tensors.PODNumeric](m, nrhs int, rowPtr, colIdx []int32, vals, x []T, upper, unitriangular bool) error {
	rowStart, rowEnd, step := m-1, -1, -1
	if upper {
		rowStart, rowEnd, step = 0, m, 1
	}
	for i := rowStart; i != rowEnd; i += step {
		if !unitriangular {
			var diag T
			diagFound := false
			for p := rowPtr[i]; p < rowPtr[i+1]; p++ {
				if int(colIdx[p]) == i {
					diag = vals[p]
					diagFound = true
					break
				}
			}
			if !diagFound || diag == 0 {
				return singularError(i)
			}
			for k := 0; k < nrhs; k++ {
				x[i*nrhs+k] /= diag
			}
		}
		for p := rowPtr[i]; p < rowPtr[i+1]; p++ {
			j := int(colIdx[p])
			if j == i || (upper && j < i) || (!upper && j > i) {
				continue // diagonal already applied, off-triangle ignored
			}
			av := vals[p]
			for k := 0; k < nrhs; k++ {
				x[j*nrhs+k] -= av * x[i*nrhs+k]
			}
		}
	}
	return nil
}

func singularError(row int) error {
	return errors.Errorf("triangular_solve: matrix is singular, no non-zero diagonal entry stored for row %d", row)
}
