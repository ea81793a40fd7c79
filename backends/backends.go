// Package backends defines the interface a GoSparse compute backend needs to
// implement, and a registry to select one at runtime.
//
// The blas package is a dispatch-and-validation layer: it checks shapes,
// dtypes and layouts, prepares output buffers, and handles degenerate inputs
// algebraically, then hands the validated operands to a Backend for the
// actual CSR arithmetic. Backends are assumed correct; their performance
// characteristics (parallelism, cache blocking, SIMD) are invisible to the
// caller, which always observes sequential, deterministic completion.
//
// The portable pure-Go backend lives in backends/simplego and registers
// itself under the name "go":
//
//	import _ "github.com/gomlx/gosparse/backends/simplego"
package backends

import (
	"os"
	"sort"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gosparse/types/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Backend is the compute API GoSparse delegates to after validation.
//
// The scalar coefficients are complex128, the complex-capable coefficient
// type: for real dtypes a coefficient with a non-zero imaginary part is an
// error. Kernels may assume operands already validated by the blas layer
// (matching dtypes, compatible dimensions, correctly sized outputs).
type Backend interface {
	// Name returns the short name the backend was registered under. E.g.: "go".
	Name() string

	// Description is a longer description of the Backend that can be used to pretty-print.
	Description() string

	// Addmv accumulates a CSR matrix-vector product into result:
	//
	//	result = beta*result + alpha*(mat @ vec)
	//
	// mat is a CSR matrix of shape (m, k) with at least one stored entry,
	// vec a dense k-vector and result a dense m-vector. With beta == 0 the
	// prior contents of result are ignored entirely, not multiplied: stale
	// NaN or Inf values must not leak into the output.
	Addmv(mat, vec *tensors.Tensor, beta, alpha complex128, result *tensors.Tensor) error

	// TriangularSolve solves op(a)·x = b for x, where only the upper (or
	// lower) triangular part of the CSR matrix a is the coefficient matrix
	// and op is identity or transpose. With unitriangular the diagonal is
	// taken to be all ones and stored diagonal entries are never read.
	//
	// a is (m, m) CSR; b and x are dense (m, nrhs). x may alias b.
	TriangularSolve(a, b, x *tensors.Tensor, upper, transpose, unitriangular bool) error

	// Addmm returns the dense accumulate beta*self + alpha*(mat1 @ mat2) as
	// a freshly allocated dense tensor. self is (m, n), mat1 (m, k) and
	// mat2 (k, n), all dense with one dtype. With beta == 0 the values of
	// self are ignored entirely, not multiplied: NaN or Inf entries must
	// not leak into the output.
	Addmm(self, mat1, mat2 *tensors.Tensor, beta, alpha complex128) (*tensors.Tensor, error)
}

// Constructor takes a config string (optionally empty) and returns a Backend.
type Constructor func(config string) (Backend, error)

var (
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register a backend constructor under the given name. The configuration
// string given to New is passed along to the constructor.
//
// To be safe, call Register during initialization of a package.
func Register(name string, constructor Constructor) {
	if _, found := registeredConstructors[name]; found {
		exceptions.Panicf("backends.Register: backend %q registered twice", name)
	}
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
	klog.V(1).Infof("backends: registered %q", name)
}

// List returns the names of the registered backends, sorted.
func List() []string {
	names := make([]string, 0, len(registeredConstructors))
	for name := range registeredConstructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultConfig is the backend configuration to use if none is given through
// the environment. See NewWithConfig for the format.
var DefaultConfig string

// ConfigEnvVar is the environment variable with the default backend
// configuration: "<backend_name>:<backend_configuration>", where the
// configuration part is backend specific and optional.
const ConfigEnvVar = "GOSPARSE_BACKEND"

// New returns a new Backend using the default configuration: the ConfigEnvVar
// environment variable if set, else DefaultConfig if set, else the first
// registered backend with an empty configuration.
func New() (Backend, error) {
	if config, found := os.LookupEnv(ConfigEnvVar); found {
		return NewWithConfig(config)
	}
	if DefaultConfig != "" {
		return NewWithConfig(DefaultConfig)
	}
	return NewWithConfig("")
}

// MustNew is like New but panics on error.
func MustNew() Backend {
	backend, err := New()
	if err != nil {
		panic(err)
	}
	return backend
}

// NewWithConfig creates a Backend from a "<backend_name>:<backend_configuration>"
// string. An empty name selects the first registered backend.
func NewWithConfig(config string) (Backend, error) {
	if len(registeredConstructors) == 0 {
		return nil, errors.Errorf(`no registered backends for GoSparse -- maybe import the portable one with import _ "github.com/gomlx/gosparse/backends/simplego"?`)
	}
	backendName := firstRegistered
	backendConfig := config
	if idx := strings.Index(config, ":"); idx != -1 {
		backendName = config[:idx]
		backendConfig = config[idx+1:]
	} else if config != "" {
		backendName = config
		backendConfig = ""
	}
	constructor, found := registeredConstructors[backendName]
	if !found {
		return nil, errors.Errorf("can't find backend %q for configuration %q given -- registered: %q",
			backendName, config, List())
	}
	klog.V(1).Infof("backends: creating %q with configuration %q", backendName, backendConfig)
	return constructor(backendConfig)
}
