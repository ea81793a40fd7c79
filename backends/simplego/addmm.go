package simplego

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/gomlx/gosparse/types/shapes"
	"github.com/gomlx/gosparse/types/tensors"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"k8s.io/klog/v2"
)

// Addmm implements backends.Backend: it returns a freshly allocated dense
// tensor holding beta*self + alpha*(mat1 @ mat2). A naive triple loop --
// reference quality, not a tuned GEMM.
func (b *Backend) Addmm(self, mat1, mat2 *tensors.Tensor, beta, alpha complex128) (*tensors.Tensor, error) {
	klog.V(2).Infof("simplego.Addmm: self=%s mat1=%s mat2=%s beta=%v alpha=%v", self, mat1, mat2, beta, alpha)
	switch self.DType() {
	case dtypes.Float32:
		return addmmDense[float32](self, mat1, mat2, beta, alpha)
	case dtypes.Float64:
		return addmmDense[float64](self, mat1, mat2, beta, alpha)
	case dtypes.Complex64:
		return addmmDense[complex64](self, mat1, mat2, beta, alpha)
	case dtypes.Complex128:
		return addmmDense[complex128](self, mat1, mat2, beta, alpha)
	case dtypes.Float16:
		return addmmDense16[float16.Float16](self, mat1, mat2, beta, alpha, float16.Fromfloat32)
	case dtypes.BFloat16:
		return addmmDense16[bfloat16.BFloat16](self, mat1, mat2, beta, alpha, bfloat16.FromFloat32)
	default:
		return nil, errors.Errorf("addmm: dtype %s not supported by the %q backend", self.DType(), BackendName)
	}
}

func addmmDense[T interface {
	tensors.PODNumeric
	tensors.Supported
}](self, mat1, mat2 *tensors.Tensor, beta, alpha complex128) (*tensors.Tensor, error) {
	betaT, err := tensors.ConvertScalar[T](beta)
	if err != nil {
		return nil, errors.WithMessagef(err, "addmm: beta for dtype %s", self.DType())
	}
	alphaT, err := tensors.ConvertScalar[T](alpha)
	if err != nil {
		return nil, errors.WithMessagef(err, "addmm: alpha for dtype %s", self.DType())
	}
	m, k, n := mat1.Dim(0), mat1.Dim(1), mat2.Dim(1)
	out := tensors.FromShape(shapes.Make(self.DType(), m, n))
	outFlat := tensors.FlatData[T](out)
	selfFlat := tensors.FlatData[T](self)
	lhs := tensors.FlatData[T](mat1)
	rhs := tensors.FlatData[T](mat2)
	betaIsZero := beta == 0
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			var acc T
			for l := 0; l < k; l++ {
				acc += lhs[i*k+l] * rhs[l*n+j]
			}
			if betaIsZero {
				// self is ignored entirely: NaNs and Infs in it must not
				// propagate through 0*self.
				outFlat[i*n+j] = alphaT * acc
			} else {
				outFlat[i*n+j] = betaT*selfFlat[i*n+j] + alphaT*acc
			}
		}
	}
	return out, nil
}

// addmmDense16 is the 16-bit floats variant: storage in T, accumulation in float32.
func addmmDense16[T tensors.Float16s](self, mat1, mat2 *tensors.Tensor, beta, alpha complex128, from func(float32) T) (*tensors.Tensor, error) {
	if imag(beta) != 0 || imag(alpha) != 0 {
		return nil, errors.Errorf("addmm: complex coefficients (beta=%v, alpha=%v) cannot be used with real dtype %s",
			beta, alpha, self.DType())
	}
	beta32, alpha32 := float32(real(beta)), float32(real(alpha))
	m, k, n := mat1.Dim(0), mat1.Dim(1), mat2.Dim(1)
	out := tensors.FromShape(shapes.Make(self.DType(), m, n))
	outFlat := tensors.FlatData[T](out)
	selfFlat := tensors.FlatData[T](self)
	lhs := tensors.FlatData[T](mat1)
	rhs := tensors.FlatData[T](mat2)
	betaIsZero := beta == 0
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			var acc float32
			for l := 0; l < k; l++ {
				acc += lhs[i*k+l].Float32() * rhs[l*n+j].Float32()
			}
			if betaIsZero {
				outFlat[i*n+j] = from(alpha32 * acc)
			} else {
				outFlat[i*n+j] = from(beta32*selfFlat[i*n+j].Float32() + alpha32*acc)
			}
		}
	}
	return out, nil
}
