package tensors

import (
	"reflect"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gosparse/types/shapes"
	"github.com/pkg/errors"
)

// MakeCSR returns a rows x cols sparse CSR Tensor from its three component
// arrays. values must be a slice of one of the Supported types; the dtype is
// inferred from it. The tensor takes ownership of all three slices.
//
// The CSR invariants are validated: len(rowPtr) == rows+1, rowPtr starts at 0
// and is non-decreasing, nnz == rowPtr[rows] == len(colIdx) == len(values),
// and every column index is within [0, cols). Sparse matrices typically come
// from user data, so violations are reported as errors, not panics.
func MakeCSR(rowPtr, colIdx []int32, values any, rows, cols int) (*Tensor, error) {
	if rows < 0 || cols < 0 {
		return nil, errors.Errorf("MakeCSR: dimensions (%d, %d) cannot be negative", rows, cols)
	}
	valuesV := reflect.ValueOf(values)
	if valuesV.Kind() != reflect.Slice {
		return nil, errors.Errorf("MakeCSR: values must be a slice, got %T", values)
	}
	dtype := dtypes.FromGoType(valuesV.Type().Elem())
	if dtype == dtypes.InvalidDType {
		return nil, errors.Errorf("MakeCSR: unsupported values element type %s", valuesV.Type().Elem())
	}
	if len(rowPtr) != rows+1 {
		return nil, errors.Errorf("MakeCSR: rowPtr has %d entries, want rows+1=%d", len(rowPtr), rows+1)
	}
	if rowPtr[0] != 0 {
		return nil, errors.Errorf("MakeCSR: rowPtr must start at 0, got %d", rowPtr[0])
	}
	for i := 1; i < len(rowPtr); i++ {
		if rowPtr[i] < rowPtr[i-1] {
			return nil, errors.Errorf("MakeCSR: rowPtr must be non-decreasing, rowPtr[%d]=%d < rowPtr[%d]=%d",
				i, rowPtr[i], i-1, rowPtr[i-1])
		}
	}
	nnz := int(rowPtr[rows])
	if len(colIdx) != nnz {
		return nil, errors.Errorf("MakeCSR: colIdx has %d entries, rowPtr[%d] declares nnz=%d", len(colIdx), rows, nnz)
	}
	if valuesV.Len() != nnz {
		return nil, errors.Errorf("MakeCSR: values has %d entries, rowPtr[%d] declares nnz=%d", valuesV.Len(), rows, nnz)
	}
	for p, col := range colIdx {
		if col < 0 || int(col) >= cols {
			return nil, errors.Errorf("MakeCSR: column index %d at position %d out of range [0, %d)", col, p, cols)
		}
	}
	return &Tensor{
		shape:  shapes.Make(dtype, rows, cols),
		layout: SparseCSR,
		rowPtr: rowPtr,
		colIdx: colIdx,
		values: values,
	}, nil
}

// EmptyCSR returns a structurally empty 0x0 CSR Tensor of the given dtype.
// It is the usual starting point for an output the caller wants allocated on
// their behalf -- see blas.SampledAddmmAlloc.
func EmptyCSR(dtype dtypes.DType) *Tensor {
	return &Tensor{
		shape:  shapes.Make(dtype, 0, 0),
		layout: SparseCSR,
		rowPtr: []int32{0},
		colIdx: nil,
		values: reflect.MakeSlice(reflect.SliceOf(dtype.GoType()), 0, 0).Interface(),
	}
}

// Nnz returns the number of stored entries. Zero means a structurally empty,
// all-implicit-zero matrix -- distinct from stored entries whose value is 0.
// It panics for strided tensors.
func (t *Tensor) Nnz() int {
	t.assertCSR("Nnz")
	return int(t.rowPtr[len(t.rowPtr)-1])
}

// RowPointers returns the CSR row pointer array, of length rows+1.
// The returned slice is the tensor's storage, not a copy.
func (t *Tensor) RowPointers() []int32 {
	t.assertCSR("RowPointers")
	return t.rowPtr
}

// ColumnIndices returns the CSR column index array, of length Nnz().
// The returned slice is the tensor's storage, not a copy.
func (t *Tensor) ColumnIndices() []int32 {
	t.assertCSR("ColumnIndices")
	return t.colIdx
}

// Values returns the CSR stored-values slice, of length Nnz().
func (t *Tensor) Values() any {
	t.assertCSR("Values")
	return t.values
}

// ValuesData returns the CSR stored values of t as a []T. It panics if T
// doesn't correspond to t's dtype or if t is not in CSR layout.
func ValuesData[T Supported](t *Tensor) []T {
	values, ok := t.Values().([]T)
	if !ok {
		var v T
		exceptions.Panicf("tensors.ValuesData[%T] is incompatible with tensor dtype %s", v, t.DType())
	}
	return values
}

func (t *Tensor) assertCSR(op string) {
	if t.layout != SparseCSR {
		exceptions.Panicf("Tensor.%s: tensor %s is not in CSR layout", op, t)
	}
}

// ResizeAsCSR makes t share src's sparsity pattern: the shape, row pointers
// and column indices are copied, and a fresh (zero) values buffer of t's dtype
// is allocated. Any previous contents of t are dropped.
//
// src must be in CSR layout. t becomes CSR regardless of its previous layout.
func (t *Tensor) ResizeAsCSR(src *Tensor) {
	src.assertCSR("ResizeAsCSR(src)")
	nnz := src.Nnz()
	t.shape = shapes.Make(t.shape.DType, src.Dim(0), src.Dim(1))
	t.layout = SparseCSR
	t.rowPtr = slices.Clone(src.rowPtr)
	t.colIdx = slices.Clone(src.colIdx)
	t.values = reflect.MakeSlice(reflect.SliceOf(t.shape.DType.GoType()), nnz, nnz).Interface()
	t.flat = nil
}

// ToDense returns a new dense (Strided) Tensor with the same logical contents
// as the CSR tensor t: stored entries scattered in place, everything else 0.
func (t *Tensor) ToDense() *Tensor {
	t.assertCSR("ToDense")
	rows, cols := t.Dim(0), t.Dim(1)
	dense := FromShape(shapes.Make(t.shape.DType, rows, cols))
	dstV := reflect.ValueOf(dense.flat)
	srcV := reflect.ValueOf(t.values)
	for i := 0; i < rows; i++ {
		for p := t.rowPtr[i]; p < t.rowPtr[i+1]; p++ {
			dstV.Index(i*cols + int(t.colIdx[p])).Set(srcV.Index(int(p)))
		}
	}
	return dense
}

// SparseMask returns a new CSR Tensor with pattern's sparsity structure and
// t's values at the stored coordinates: spy(pattern) applied to the dense t.
// Coordinates absent from pattern are not represented in the result.
//
// t must be dense and match pattern's dimensions and dtype.
func (t *Tensor) SparseMask(pattern *Tensor) (*Tensor, error) {
	if t.layout != Strided {
		return nil, errors.Errorf("SparseMask: expected a strided tensor, got %s layout", t.layout)
	}
	if !pattern.IsSparseCSR() {
		return nil, errors.Errorf("SparseMask: expected pattern in CSR layout, got %s", pattern.layout)
	}
	if !t.shape.EqualDimensions(pattern.shape) {
		return nil, errors.Errorf("SparseMask: tensor %s and pattern %s dimensions differ", t.shape, pattern.shape)
	}
	if t.DType() != pattern.DType() {
		return nil, errors.Errorf("SparseMask: tensor dtype %s and pattern dtype %s differ", t.DType(), pattern.DType())
	}
	rows, cols := pattern.Dim(0), pattern.Dim(1)
	nnz := pattern.Nnz()
	masked := &Tensor{
		shape:  pattern.shape.Clone(),
		layout: SparseCSR,
		rowPtr: slices.Clone(pattern.rowPtr),
		colIdx: slices.Clone(pattern.colIdx),
		values: reflect.MakeSlice(reflect.SliceOf(t.shape.DType.GoType()), nnz, nnz).Interface(),
	}
	dstV := reflect.ValueOf(masked.values)
	srcV := reflect.ValueOf(t.flat)
	for i := 0; i < rows; i++ {
		for p := pattern.rowPtr[i]; p < pattern.rowPtr[i+1]; p++ {
			dstV.Index(int(p)).Set(srcV.Index(i*cols + int(pattern.colIdx[p])))
		}
	}
	return masked, nil
}
