package blas_test

import (
	"fmt"
	"math"
	"os"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gosparse/backends"
	_ "github.com/gomlx/gosparse/backends/simplego"
	"github.com/gomlx/gosparse/blas"
	"github.com/gomlx/gosparse/types/shapes"
	"github.com/gomlx/gosparse/types/tensors"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
)

var backend backends.Backend

func TestMain(m *testing.M) {
	fmt.Printf("Available backends: %q\n", backends.List())
	if os.Getenv(backends.ConfigEnvVar) == "" {
		must.M(os.Setenv(backends.ConfigEnvVar, "go"))
	}
	backend = backends.MustNew()
	os.Exit(m.Run())
}

// mustCSR builds a CSR tensor, failing the test on invalid structure.
func mustCSR(t *testing.T, rowPtr, colIdx []int32, values any, rows, cols int) *tensors.Tensor {
	t.Helper()
	csr, err := tensors.MakeCSR(rowPtr, colIdx, values, rows, cols)
	require.NoError(t, err)
	return csr
}

func emptyCSR(t *testing.T, rows, cols int) *tensors.Tensor {
	t.Helper()
	rowPtr := make([]int32, rows+1)
	return mustCSR(t, rowPtr, nil, []float64{}, rows, cols)
}

func TestAddmv(t *testing.T) {
	// mat = [[1, 0, 2], [0, 3, 0]], vec = [1, 10, 100] -> mat@vec = [201, 30].
	mat := mustCSR(t, []int32{0, 2, 3}, []int32{0, 2, 1}, []float64{1, 2, 3}, 2, 3)
	vec := tensors.FromFlatAndDimensions([]float64{1, 10, 100}, 3)
	self := tensors.FromFlatAndDimensions([]float64{7, 11}, 2)
	out := tensors.FromShape(shapes.Make(dtypes.Float64, 0))

	result, err := blas.Addmv(backend, self, mat, vec, 2, 3, out)
	require.NoError(t, err)
	require.Same(t, out, result, "Addmv returns its output operand")
	require.Equal(t, []float64{2*7 + 3*201, 2*11 + 3*30}, tensors.FlatData[float64](result))
	// self untouched.
	require.Equal(t, []float64{7, 11}, tensors.FlatData[float64](self))
}

func TestAddmvBetaZeroIgnoresSelf(t *testing.T) {
	mat := mustCSR(t, []int32{0, 1, 2}, []int32{0, 1}, []float64{2, 3}, 2, 2)
	vec := tensors.FromFlatAndDimensions([]float64{5, 7}, 2)
	nan, inf := math.NaN(), math.Inf(1)
	self := tensors.FromFlatAndDimensions([]float64{nan, inf}, 2)
	// Output starts with hostile values too.
	out := tensors.FromFlatAndDimensions([]float64{nan, nan}, 2)

	result, err := blas.Addmv(backend, self, mat, vec, 0, 1, out)
	require.NoError(t, err)
	require.Equal(t, []float64{10, 21}, tensors.FlatData[float64](result))
}

func TestAddmvEmptyMatrix(t *testing.T) {
	vec := tensors.FromFlatAndDimensions([]float64{1, 1, 1}, 3)
	self := tensors.FromFlatAndDimensions([]float64{1, 2, 3}, 3)

	t.Run("beta!=0", func(t *testing.T) {
		// 0-nnz 3x3 is exactly the zero matrix: beta*self, alpha irrelevant.
		out := tensors.FromShape(shapes.Make(dtypes.Float64, 3))
		result, err := blas.Addmv(backend, self, emptyCSR(t, 3, 3), vec, 2, 5, out)
		require.NoError(t, err)
		require.Equal(t, []float64{2, 4, 6}, tensors.FlatData[float64](result))
	})

	t.Run("beta==0", func(t *testing.T) {
		nan := math.NaN()
		hostileSelf := tensors.FromFlatAndDimensions([]float64{nan, nan, nan}, 3)
		out := tensors.FromFlatAndDimensions([]float64{nan, nan, nan}, 3)
		result, err := blas.Addmv(backend, hostileSelf, emptyCSR(t, 3, 3), vec, 0, 5, out)
		require.NoError(t, err)
		require.Equal(t, []float64{0, 0, 0}, tensors.FlatData[float64](result))
	})
}

func TestAddmvAliasSafe(t *testing.T) {
	mat := mustCSR(t, []int32{0, 2, 3}, []int32{0, 1, 0}, []float64{1, 2, 3}, 2, 2)
	vec := tensors.FromFlatAndDimensions([]float64{10, 20}, 2)

	initial := []float64{5, -4}
	distinctSelf := tensors.FromFlatAndDimensions([]float64{5, -4}, 2)
	distinctOut := tensors.FromShape(shapes.Make(dtypes.Float64, 2))
	_, err := blas.Addmv(backend, distinctSelf, mat, vec, 3, 2, distinctOut)
	require.NoError(t, err)

	aliased := tensors.FromFlatAndDimensions(initial, 2)
	result, err := blas.Addmv(backend, aliased, mat, vec, 3, 2, aliased)
	require.NoError(t, err)
	require.Same(t, aliased, result)
	require.Equal(t, tensors.FlatData[float64](distinctOut), tensors.FlatData[float64](aliased))
}

func TestAddmvBroadcastSelf(t *testing.T) {
	mat := mustCSR(t, []int32{0, 1, 2}, []int32{0, 0}, []float64{1, 2}, 2, 1)
	vec := tensors.FromFlatAndDimensions([]float64{10}, 1)

	// Scalar bias broadcast to (2,).
	scalarSelf := tensors.FromFlatAndDimensions([]float64{100})
	out := tensors.FromShape(shapes.Make(dtypes.Float64, 0))
	result, err := blas.Addmv(backend, scalarSelf, mat, vec, 1, 1, out)
	require.NoError(t, err)
	require.Equal(t, []float64{110, 120}, tensors.FlatData[float64](result))

	// Non-broadcastable bias is a user error.
	badSelf := tensors.FromFlatAndDimensions([]float64{1, 2, 3}, 3)
	_, err = blas.Addmv(backend, badSelf, mat, vec, 1, 1, out)
	require.Error(t, err)
}

func TestAddmvValidation(t *testing.T) {
	mat := mustCSR(t, []int32{0, 1}, []int32{0}, []float64{1}, 1, 1)
	vec := tensors.FromFlatAndDimensions([]float64{1}, 1)
	self := tensors.FromFlatAndDimensions([]float64{1}, 1)
	out := tensors.FromShape(shapes.Make(dtypes.Float64, 1))

	matrixVec := tensors.FromFlatAndDimensions([]float64{1}, 1, 1)
	_, err := blas.Addmv(backend, self, mat, matrixVec, 1, 1, out)
	require.ErrorContains(t, err, "vec to be 1-D")

	wrongDTypeVec := tensors.FromFlatAndDimensions([]float32{1}, 1)
	_, err = blas.Addmv(backend, self, mat, wrongDTypeVec, 1, 1, out)
	require.ErrorContains(t, err, "same dtype")

	longVec := tensors.FromFlatAndDimensions([]float64{1, 2}, 2)
	_, err = blas.Addmv(backend, self, mat, longVec, 1, 1, out)
	require.ErrorContains(t, err, "cannot be multiplied")

	wrongDTypeOut := tensors.FromShape(shapes.Make(dtypes.Float32, 1))
	_, err = blas.Addmv(backend, self, mat, vec, 1, 1, wrongDTypeOut)
	require.ErrorContains(t, err, "result")

	// Complex coefficients with a real dtype, rejected before any mutation.
	stale := tensors.FromFlatAndDimensions([]float64{42}, 1)
	_, err = blas.Addmv(backend, self, mat, vec, 1i, 1, stale)
	require.Error(t, err)
	require.Equal(t, []float64{42}, tensors.FlatData[float64](stale))
}

func TestAddmvLayoutValidation(t *testing.T) {
	mat := mustCSR(t, []int32{0, 1}, []int32{0}, []float64{1}, 1, 1)
	vec := tensors.FromFlatAndDimensions([]float64{1}, 1)
	self := tensors.FromFlatAndDimensions([]float64{1}, 1)
	sparse := mustCSR(t, []int32{0, 1}, []int32{0}, []float64{1}, 1, 1)
	out := tensors.FromShape(shapes.Make(dtypes.Float64, 1))

	// CSR where a dense operand is required is a validation error, not a panic.
	_, err := blas.Addmv(backend, self, mat, sparse, 1, 1, out)
	require.ErrorContains(t, err, "vec to have strided layout")

	_, err = blas.Addmv(backend, sparse, mat, vec, 1, 1, out)
	require.ErrorContains(t, err, "self to have strided layout")

	_, err = blas.Addmv(backend, self, mat, vec, 1, 1, sparse)
	require.ErrorContains(t, err, "result to have strided layout")
}

func TestTriangularSolveRoundTrip(t *testing.T) {
	// Lower triangular, non-singular: [[2, 0, 0], [1, 3, 0], [0, -1, 4]].
	a := mustCSR(t, []int32{0, 1, 3, 5}, []int32{0, 0, 1, 1, 2}, []float64{2, 1, 3, -1, 4}, 3, 3)
	b := tensors.FromFlatAndDimensions([]float64{2, 4, 8, -2, 0, 12}, 3, 2)
	x := tensors.FromShape(shapes.Make(dtypes.Float64, 0, 0))
	scratch := tensors.FromShape(shapes.Make(dtypes.Float64, 1))

	gotX, gotScratch, err := blas.TriangularSolve(backend, b, a, false, false, false, x, scratch)
	require.NoError(t, err)
	require.Same(t, x, gotX)
	require.Same(t, scratch, gotScratch, "scratch is a pass-through")

	// Recover B as A@X and compare within tolerance.
	xf := tensors.FlatData[float64](x)
	bf := tensors.FlatData[float64](b)
	ad := tensors.FlatData[float64](a.ToDense())
	for i := 0; i < 3; i++ {
		for k := 0; k < 2; k++ {
			var sum float64
			for j := 0; j < 3; j++ {
				sum += ad[i*3+j] * xf[j*2+k]
			}
			require.InDelta(t, bf[i*2+k], sum, 1e-12)
		}
	}
}

func TestTriangularSolveValidation(t *testing.T) {
	a := mustCSR(t, []int32{0, 1, 2}, []int32{0, 1}, []float64{1, 1}, 2, 2)
	b := tensors.FromFlatAndDimensions([]float64{1, 1}, 2, 1)
	x := tensors.FromShape(shapes.Make(dtypes.Float64, 2, 1))
	scratch := tensors.FromShape(shapes.Make(dtypes.Float64, 1))

	rect := mustCSR(t, []int32{0, 1}, []int32{0}, []float64{1}, 1, 2)
	_, _, err := blas.TriangularSolve(backend, b, rect, false, false, false, x, scratch)
	require.ErrorContains(t, err, "square")

	vecB := tensors.FromFlatAndDimensions([]float64{1, 1}, 2)
	_, _, err = blas.TriangularSolve(backend, vecB, a, false, false, false, x, scratch)
	require.ErrorContains(t, err, "2-D")

	shortB := tensors.FromFlatAndDimensions([]float64{1}, 1, 1)
	_, _, err = blas.TriangularSolve(backend, shortB, a, false, false, false, x, scratch)
	require.ErrorContains(t, err, "mismatched rows")

	wrongDTypeB := tensors.FromFlatAndDimensions([]float32{1, 1}, 2, 1)
	_, _, err = blas.TriangularSolve(backend, wrongDTypeB, a, false, false, false, x, scratch)
	require.ErrorContains(t, err, "same dtype")

	// CSR where a dense operand is required is a validation error, not a panic.
	sparseB := mustCSR(t, []int32{0, 1, 2}, []int32{0, 0}, []float64{1, 1}, 2, 1)
	_, _, err = blas.TriangularSolve(backend, sparseB, a, false, false, false, x, scratch)
	require.ErrorContains(t, err, "B to have strided layout")

	_, _, err = blas.TriangularSolve(backend, b, a, false, false, false, sparseB, scratch)
	require.ErrorContains(t, err, "X to have strided layout")
}

func TestSampledAddmmWorkedExample(t *testing.T) {
	// mat1 = 2x3 all-ones, mat2 = 3x2 all-ones, self = identity pattern with
	// values {1, 1}, beta=1, alpha=1: product is all-3s, result stores
	// {(0,0): 4, (1,1): 4} and nothing else.
	mat1 := tensors.FromFlatAndDimensions([]float64{1, 1, 1, 1, 1, 1}, 2, 3)
	mat2 := tensors.FromFlatAndDimensions([]float64{1, 1, 1, 1, 1, 1}, 3, 2)
	self := mustCSR(t, []int32{0, 1, 2}, []int32{0, 1}, []float64{1, 1}, 2, 2)
	out := tensors.EmptyCSR(dtypes.Float64)

	result, err := blas.SampledAddmm(backend, self, mat1, mat2, 1, 1, out)
	require.NoError(t, err)
	require.Same(t, out, result)
	require.True(t, result.IsSparseCSR())
	require.Equal(t, []int32{0, 1, 2}, result.RowPointers())
	require.Equal(t, []int32{0, 1}, result.ColumnIndices())
	require.Equal(t, []float64{4, 4}, tensors.ValuesData[float64](result))
	require.Equal(t, 2, result.Nnz(), "(0,1) and (1,0) are absent, not explicit zeros")
}

func TestSampledAddmmBetaZeroIgnoresSelf(t *testing.T) {
	nan := math.NaN()
	self := mustCSR(t, []int32{0, 1}, []int32{0}, []float64{nan}, 1, 1)
	mat := tensors.FromFlatAndDimensions([]float64{2}, 1, 1)

	// beta == 0: self contributes only its pattern, never its values.
	result, err := blas.SampledAddmmAlloc(backend, self, mat, mat, 0, 1)
	require.NoError(t, err)
	require.Equal(t, []float64{4}, tensors.ValuesData[float64](result))
}

func TestSampledAddmmPatternPreserved(t *testing.T) {
	mat1 := tensors.FromFlatAndDimensions([]float64{1, 2, 3, 4, 5, 6}, 3, 2)
	mat2 := tensors.FromFlatAndDimensions([]float64{7, 8, 9, 10}, 2, 2)
	// Irregular pattern: row 0 empty, row 1 full, row 2 one entry.
	self := mustCSR(t, []int32{0, 0, 2, 3}, []int32{0, 1, 1}, []float64{10, 20, 30}, 3, 2)

	result, err := blas.SampledAddmmAlloc(backend, self, mat1, mat2, 1, 2)
	require.NoError(t, err)
	require.Equal(t, self.RowPointers(), result.RowPointers())
	require.Equal(t, self.ColumnIndices(), result.ColumnIndices())

	// Values at stored coordinates: alpha*(mat1@mat2)[i,j] + beta*self[i,j].
	product := []float64{
		1*7 + 2*9, 1*8 + 2*10,
		3*7 + 4*9, 3*8 + 4*10,
		5*7 + 6*9, 5*8 + 6*10,
	}
	want := []float64{
		2*product[2] + 10,
		2*product[3] + 20,
		2*product[5] + 30,
	}
	require.Equal(t, want, tensors.ValuesData[float64](result))
	// self's own values untouched.
	require.Equal(t, []float64{10, 20, 30}, tensors.ValuesData[float64](self))
}

func TestSampledAddmmInPlace(t *testing.T) {
	mat1 := tensors.FromFlatAndDimensions([]float64{1, 0, 0, 1}, 2, 2)
	mat2 := tensors.FromFlatAndDimensions([]float64{5, 6, 7, 8}, 2, 2)
	self := mustCSR(t, []int32{0, 1, 2}, []int32{0, 1}, []float64{100, 200}, 2, 2)

	result, err := blas.SampledAddmm(backend, self, mat1, mat2, 1, 1, self)
	require.NoError(t, err)
	require.Same(t, self, result)
	// (mat1@mat2) == mat2 here; diagonal entries 5 and 8.
	require.Equal(t, []float64{105, 208}, tensors.ValuesData[float64](result))
}

func TestSampledAddmmDTypeValidation(t *testing.T) {
	self := mustCSR(t, []int32{0, 1}, []int32{0}, []float64{1}, 1, 1)
	m64 := tensors.FromFlatAndDimensions([]float64{1}, 1, 1)
	m32 := tensors.FromFlatAndDimensions([]float32{1}, 1, 1)
	out64 := tensors.EmptyCSR(dtypes.Float64)
	out32 := tensors.EmptyCSR(dtypes.Float32)

	for _, test := range []struct {
		name             string
		mat1, mat2       *tensors.Tensor
		result           *tensors.Tensor
		wantErrSubstring string
	}{
		{"mat1 vs mat2", m64, m32, out64, "mat1 and mat2 to have the same dtype"},
		{"mat1 vs self", m32, m32, out64, "mat1 and self to have the same dtype"},
		{"result vs self", m64, m64, out32, "result and self to have the same dtype"},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := blas.SampledAddmm(backend, self, test.mat1, test.mat2, 1, 1, test.result)
			require.ErrorContains(t, err, test.wantErrSubstring)
		})
	}
}

func TestSampledAddmmShapeValidation(t *testing.T) {
	self := mustCSR(t, []int32{0, 1, 2}, []int32{0, 1}, []float64{1, 1}, 2, 2)
	out := tensors.EmptyCSR(dtypes.Float64)

	mat23 := tensors.FromFlatAndDimensions(make([]float64, 6), 2, 3)
	mat42 := tensors.FromFlatAndDimensions(make([]float64, 8), 4, 2)
	_, err := blas.SampledAddmm(backend, self, mat23, mat42, 1, 1, out)
	require.ErrorContains(t, err, "cannot be multiplied (2x3 and 4x2)")

	mat32 := tensors.FromFlatAndDimensions(make([]float64, 6), 3, 2)
	mat22 := tensors.FromFlatAndDimensions(make([]float64, 4), 2, 2)
	_, err = blas.SampledAddmm(backend, self, mat32, mat22, 1, 1, out)
	require.ErrorContains(t, err, "self dim 0")

	mat24 := tensors.FromFlatAndDimensions(make([]float64, 8), 2, 4)
	_, err = blas.SampledAddmm(backend, self, mat22, mat24, 1, 1, out)
	require.ErrorContains(t, err, "self dim 1")

	vec := tensors.FromFlatAndDimensions(make([]float64, 2), 2)
	_, err = blas.SampledAddmm(backend, self, vec, mat22, 1, 1, out)
	require.ErrorContains(t, err, "mat1 to be a matrix")
}

func TestSampledAddmmLayoutValidation(t *testing.T) {
	self := mustCSR(t, []int32{0, 1}, []int32{0}, []float64{1}, 1, 1)
	dense := tensors.FromFlatAndDimensions([]float64{1}, 1, 1)
	sparseArg := mustCSR(t, []int32{0, 1}, []int32{0}, []float64{1}, 1, 1)

	_, err := blas.SampledAddmm(backend, self, sparseArg, dense, 1, 1, tensors.EmptyCSR(dtypes.Float64))
	require.ErrorContains(t, err, "mat1 to have strided layout")

	_, err = blas.SampledAddmm(backend, self, dense, sparseArg, 1, 1, tensors.EmptyCSR(dtypes.Float64))
	require.ErrorContains(t, err, "mat2 to have strided layout")

	_, err = blas.SampledAddmm(backend, self, dense, dense, 1, 1, dense)
	require.ErrorContains(t, err, "result to have sparse csr layout")
}

func TestSampledAddmmComplex(t *testing.T) {
	self := mustCSR(t, []int32{0, 1}, []int32{0}, []complex128{1}, 1, 1)
	mat := tensors.FromFlatAndDimensions([]complex128{2i}, 1, 1)

	result, err := blas.SampledAddmmAlloc(backend, self, mat, mat, 1i, 1)
	require.NoError(t, err)
	// 1*(2i*2i) + 1i*1 = -4 + 1i.
	require.Equal(t, []complex128{-4 + 1i}, tensors.ValuesData[complex128](result))
}
