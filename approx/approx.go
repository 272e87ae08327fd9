// Package approx estimates spectral functions Tr f(A) of large Hermitian operators.
//
// The estimator is stochastic Lanczos quadrature: Tr f(A) is the average of d <v|f(A)|v> over random unit probes v,
// and each <v|f(A)|v> is approximated by Gauss quadrature on the Krylov subspace of A and v.
//
// References:
//   - Fast Estimation of tr(f(A)) via Stochastic Lanczos Quadrature, Shashanka Ubaru, Jie Chen and Yousef Saad
package approx

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"slices"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/fumin/qdyn/calc"
	"github.com/fumin/qdyn/mat"
)

// Backend selects how reduced density operators of subsystems are represented.
type Backend int

const (
	// Dense forms reduced density operators explicitly.
	Dense Backend = iota
	// Tensor contracts the state with each Lanczos vector, never forming the reduced density operator.
	Tensor
)

func (b Backend) String() string {
	switch b {
	case Dense:
		return "dense"
	case Tensor:
		return "tensor"
	default:
		return fmt.Sprintf("Backend(%d)", int(b))
	}
}

// ParseBackend parses the name of a Backend.
func ParseBackend(s string) (Backend, error) {
	for _, b := range []Backend{Dense, Tensor} {
		if b.String() == s {
			return b, nil
		}
	}
	return -1, errors.Errorf("%q", s)
}

// Options are options of the spectral function estimator.
type Options struct {
	steps      int
	samples    int
	minSamples int
	tol        float64
	workers    int
	seed       uint64
	backend    Backend
}

// NewOptions returns the default estimator options.
func NewOptions() Options {
	opt := Options{}
	opt.steps = 32
	opt.samples = 256
	opt.minSamples = 8
	opt.tol = 1e-2
	opt.workers = runtime.GOMAXPROCS(0)
	opt.backend = Dense
	return opt
}

// Steps sets the number of Lanczos iterations per probe.
func (opt Options) Steps(k int) Options {
	opt.steps = k
	return opt
}

// Samples sets the maximum number of probes.
func (opt Options) Samples(n int) Options {
	opt.samples = n
	return opt
}

// MinSamples sets the number of probes before convergence is tested.
func (opt Options) MinSamples(n int) Options {
	opt.minSamples = n
	return opt
}

// Tol sets the relative standard error at which sampling stops.
func (opt Options) Tol(tol float64) Options {
	opt.tol = tol
	return opt
}

// Workers sets the number of probes evaluated concurrently.
func (opt Options) Workers(n int) Options {
	opt.workers = n
	return opt
}

// Seed sets the seed of the probes.
// The i-th probe depends only on the seed and i.
func (opt Options) Seed(seed uint64) Options {
	opt.seed = seed
	return opt
}

// Backend sets the representation of reduced density operators.
func (opt Options) Backend(b Backend) Options {
	opt.backend = b
	return opt
}

// Estimate is a stochastic estimate of a trace.
type Estimate struct {
	Value float64
	// Err is the standard error of Value.
	Err float64
	// Samples is the number of probes used.
	Samples int
}

func getOptions(options []Options) Options {
	opt := NewOptions()
	if len(options) > 0 {
		opt = options[0]
	}
	return opt
}

// SpectralFunction estimates Tr f(op) for the Hermitian operator op.
func SpectralFunction(ctx context.Context, op mat.LinearOperator, f func(float64) float64, options ...Options) (Estimate, error) {
	opt := getOptions(options)
	if op.Rows() != op.Cols() {
		return Estimate{}, errors.Errorf("%d %d", op.Rows(), op.Cols())
	}
	if opt.steps < 1 || opt.samples < 1 || opt.workers < 1 {
		return Estimate{}, errors.Errorf("%#v", opt)
	}
	d := op.Rows()

	values := make([]float64, 0, opt.samples)
	for len(values) < opt.samples {
		batch := make([]float64, min(opt.workers, opt.samples-len(values)))
		g, gctx := errgroup.WithContext(ctx)
		for k := range batch {
			i := len(values) + k
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return errors.Wrap(err, "")
				}
				v, err := sample(op, f, opt, i)
				if err != nil {
					return errors.Wrap(err, fmt.Sprintf("%d", i))
				}
				batch[k] = float64(d) * v
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return Estimate{}, errors.Wrap(err, "")
		}
		values = append(values, batch...)

		if len(values) < max(opt.minSamples, 2) {
			continue
		}
		est := estimate(values)
		if est.Err <= opt.tol*max(math.Abs(est.Value), 1) {
			return est, nil
		}
	}
	return estimate(values), nil
}

// sample returns <v|f(op)|v> for the i-th unit Rademacher probe v.
func sample(op mat.LinearOperator, f func(float64) float64, opt Options, i int) (float64, error) {
	rng := rand.New(rand.NewPCG(opt.seed, uint64(i)))
	v := make([]complex128, op.Rows())
	for j := range v {
		v[j] = 1
		if rng.IntN(2) == 0 {
			v[j] = -1
		}
	}

	alpha, beta := lanczos(op, v, opt.steps)
	q, err := gaussQuadrature(alpha, beta, f)
	if err != nil {
		return math.NaN(), errors.Wrap(err, "")
	}
	return q, nil
}

func estimate(values []float64) Estimate {
	n := float64(len(values))
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= n

	var ss float64
	for _, v := range values {
		ss += (v - mean) * (v - mean)
	}
	stderr := math.Inf(1)
	if len(values) > 1 {
		stderr = math.Sqrt(ss / (n - 1) / n)
	}
	return Estimate{Value: mean, Err: stderr, Samples: len(values)}
}

// Tr estimates the trace of op.
func Tr(ctx context.Context, op mat.LinearOperator, options ...Options) (Estimate, error) {
	est, err := SpectralFunction(ctx, op, func(x float64) float64 { return x }, options...)
	if err != nil {
		return Estimate{}, errors.Wrap(err, "")
	}
	return est, nil
}

// Entropy estimates the von Neumann entropy in bits of the density operator op.
func Entropy(ctx context.Context, op mat.LinearOperator, options ...Options) (Estimate, error) {
	est, err := SpectralFunction(ctx, op, xlog2x, options...)
	if err != nil {
		return Estimate{}, errors.Wrap(err, "")
	}
	return est, nil
}

func xlog2x(x float64) float64 {
	// Eigenvalues that are zero up to rounding do not contribute.
	if x <= 1e-12 {
		return 0
	}
	return -x * math.Log2(x)
}

// TraceNorm estimates the sum of the absolute eigenvalues of op.
func TraceNorm(ctx context.Context, op mat.LinearOperator, options ...Options) (Estimate, error) {
	est, err := SpectralFunction(ctx, op, math.Abs, options...)
	if err != nil {
		return Estimate{}, errors.Wrap(err, "")
	}
	return est, nil
}

// EntropySubsys estimates the entropy of the subsystems sysa of the pure state psi.
func EntropySubsys(ctx context.Context, psi []complex128, dims, sysa []int, options ...Options) (Estimate, error) {
	opt := getOptions(options)

	var rhoA mat.LinearOperator
	switch opt.backend {
	case Tensor:
		op, err := NewLazyPtr(psi, dims, sysa)
		if err != nil {
			return Estimate{}, errors.Wrap(err, "")
		}
		rhoA = op
	default:
		keep := slices.Clone(sysa)
		slices.Sort(keep)
		rho, err := calc.PartialTrace(calc.Pure(psi), dims, keep)
		if err != nil {
			return Estimate{}, errors.Wrap(err, "")
		}
		rhoA = mat.AsOperator(rho)
	}

	est, err := Entropy(ctx, rhoA, opt)
	if err != nil {
		return Estimate{}, errors.Wrap(err, "")
	}
	return est, nil
}

// MutInfSubsys estimates the mutual information between the subsystems sysa and sysb of the pure state psi.
// Its error is the sum of the errors of the three entropies.
func MutInfSubsys(ctx context.Context, psi []complex128, dims, sysa, sysb []int, options ...Options) (Estimate, error) {
	sa, err := EntropySubsys(ctx, psi, dims, sysa, options...)
	if err != nil {
		return Estimate{}, errors.Wrap(err, "")
	}
	sb, err := EntropySubsys(ctx, psi, dims, sysb, options...)
	if err != nil {
		return Estimate{}, errors.Wrap(err, "")
	}
	sab, err := EntropySubsys(ctx, psi, dims, slices.Concat(sysa, sysb), options...)
	if err != nil {
		return Estimate{}, errors.Wrap(err, "")
	}

	est := Estimate{Value: sa.Value + sb.Value - sab.Value}
	est.Err = sa.Err + sb.Err + sab.Err
	est.Samples = sa.Samples + sb.Samples + sab.Samples
	return est, nil
}

// LogNegSubsys estimates the logarithmic negativity between the subsystems sysa and sysb of the pure state psi.
// Subsystems in neither are traced out.
func LogNegSubsys(ctx context.Context, psi []complex128, dims, sysa, sysb []int, options ...Options) (Estimate, error) {
	opt := getOptions(options)

	var rhoTB mat.LinearOperator
	switch opt.backend {
	case Tensor:
		op, err := NewLazyPtrPpt(psi, dims, sysa, sysb)
		if err != nil {
			return Estimate{}, errors.Wrap(err, "")
		}
		rhoTB = op
	default:
		a, b := slices.Clone(sysa), slices.Clone(sysb)
		slices.Sort(a)
		slices.Sort(b)
		rho, err := calc.PPT(calc.Pure(psi), dims, a, b)
		if err != nil {
			return Estimate{}, errors.Wrap(err, "")
		}
		rhoTB = mat.AsOperator(rho)
	}

	tn, err := TraceNorm(ctx, rhoTB, opt)
	if err != nil {
		return Estimate{}, errors.Wrap(err, "")
	}
	// Propagate the standard error through log2 to first order.
	est := Estimate{Value: math.Log2(tn.Value), Samples: tn.Samples}
	est.Err = tn.Err / (tn.Value * math.Ln2)
	return est, nil
}
