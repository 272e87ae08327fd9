// Command evolve quenches a transverse field Ising chain and records the dynamics.
//
// The chain starts in the ground state of field h0, found by DMRG,
// and evolves under field h1. Alternatively, the Hamiltonian is read from a COO directory,
// and the chain starts with every spin up.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"math/bits"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"

	"github.com/pkg/errors"

	"github.com/fumin/qdyn"
	"github.com/fumin/qdyn/approx"
	"github.com/fumin/qdyn/calc"
	"github.com/fumin/qdyn/evo"
	"github.com/fumin/qdyn/mat"
	"github.com/fumin/qdyn/mps"
	"github.com/fumin/qdyn/store"
)

const (
	nameEnergy        = "energy"
	nameEntropy       = "entropy"
	nameLogNeg        = "logneg"
	nameMagnetization = "magnetization"
	nameApprox        = "entropy_approx"
	nameApproxErr     = "entropy_approx_err"
)

var (
	dbPath      = flag.String("db", filepath.Join("runs", "qdyn.sqlite"), "database path")
	runName     = flag.String("run", "quench", "run name")
	numSpins    = flag.Int("n", 6, "chain length")
	h0          = flag.Float64("h0", 0.1, "transverse field of the initial ground state")
	h1          = flag.Float64("h1", 1, "transverse field after the quench")
	cooDir      = flag.String("coo", "", "directory of a Hamiltonian in the COO format, overrides h1")
	methodStr   = flag.String("method", evo.Integrate.String(), "propagation method, one of integrate, solve, expm")
	tMax        = flag.Float64("tmax", 5, "final time")
	dt          = flag.Float64("dt", 0.25, "interval between recorded states")
	stopEntropy = flag.Float64("stopEntropy", math.Inf(1), "stop once the half chain entropy exceeds this value")
	approxOn    = flag.Bool("approx", false, "also estimate the half chain entropy stochastically")
	samples     = flag.Int("samples", 256, "maximum number of samples of the stochastic estimate")
	seed        = flag.Uint64("seed", 0, "seed of the initial DMRG state and the stochastic estimate")
)

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)

	if err := mainWithErr(); err != nil {
		log.Fatalf("%+v", err)
	}
}

func mainWithErr() error {
	ctx := context.Background()
	method, err := evo.ParseMethod(*methodStr)
	if err != nil {
		return errors.Wrap(err, "")
	}

	if err := os.MkdirAll(filepath.Dir(*dbPath), os.ModePerm); err != nil {
		return errors.Wrap(err, "")
	}
	db, err := store.Open(*dbPath)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer db.Close()

	ham, psi0, err := setup()
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := db.WriteMatrix(ctx, *runName, ham); err != nil {
		return errors.Wrap(err, "")
	}
	n := bits.Len(uint(len(psi0))) - 1
	dims := make([]int, n)
	for i := range dims {
		dims[i] = 2
	}
	half := make([]int, n/2)
	for i := range half {
		half[i] = i
	}

	opt := evo.NewOptions().Method(method)
	opt = opt.Compute(nameEnergy, func(t float64, p calc.State) float64 {
		return real(calc.Expec(ham, p))
	})
	opt = opt.Compute(nameEntropy, func(t float64, p calc.State) float64 {
		s, err := calc.EntropySubsys(p, dims, half)
		if err != nil {
			log.Printf("%+v", err)
			return math.NaN()
		}
		return s
	})
	if n >= 2 {
		opt = opt.Compute(nameLogNeg, func(t float64, p calc.State) float64 {
			ln, err := calc.LogNeg(p, dims, []int{0}, []int{1})
			if err != nil {
				log.Printf("%+v", err)
				return math.NaN()
			}
			return ln
		})
	}
	opt = opt.Compute(nameMagnetization, func(t float64, p calc.State) float64 {
		stats, err := qdyn.SpinStatistics([2]int{n, 1}, p.Ket)
		if err != nil {
			log.Printf("%+v", err)
			return math.NaN()
		}
		return stats.Magnetization
	})
	if !math.IsInf(*stopEntropy, 1) {
		opt = opt.Stop(func(t float64, p calc.State) bool {
			s, err := calc.EntropySubsys(p, dims, half)
			return err == nil && s > *stopEntropy
		})
	}

	e, err := evo.New(calc.Pure(psi0), ham, opt)
	if err != nil {
		return errors.Wrap(err, "")
	}

	times := make([]float64, 0)
	for t := *dt; t <= *tMax+*dt/2; t += *dt {
		times = append(times, t)
	}
	approxT, approxV, approxErr := make([]float64, 0), make([]float64, 0), make([]float64, 0)
	approxOpt := approx.NewOptions().Backend(approx.Tensor).Samples(*samples).Seed(*seed)
	for t, p := range e.At(slices.Concat([]float64{0}, times)) {
		if err := db.WriteKet(ctx, *runName, t, p.Ket); err != nil {
			return errors.Wrap(err, "")
		}
		if !*approxOn || len(half) == 0 {
			continue
		}
		est, err := approx.EntropySubsys(ctx, p.Ket, dims, half, approxOpt)
		if err != nil {
			return errors.Wrap(err, "")
		}
		approxT = append(approxT, t)
		approxV = append(approxV, est.Value)
		approxErr = append(approxErr, est.Err)
	}
	if err := e.Err(); err != nil && !errors.Is(err, evo.ErrStopped) {
		return errors.Wrap(err, "")
	}

	for name, vs := range e.Results() {
		if err := db.WriteSeries(ctx, *runName, name, e.Times(), vs); err != nil {
			return errors.Wrap(err, "")
		}
	}
	if len(approxT) > 0 {
		if err := db.WriteSeries(ctx, *runName, nameApprox, approxT, approxV); err != nil {
			return errors.Wrap(err, "")
		}
		if err := db.WriteSeries(ctx, *runName, nameApproxErr, approxT, approxErr); err != nil {
			return errors.Wrap(err, "")
		}
	}

	if err := printSeries(ctx, db); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// setup returns the Hamiltonian and the initial state.
func setup() (*mat.COO, []complex128, error) {
	if *cooDir != "" {
		ham, err := mat.ReadCOO(*cooDir)
		if err != nil {
			return nil, nil, errors.Wrap(err, "")
		}
		d := ham.Rows()
		if d != ham.Cols() || d&(d-1) != 0 {
			return nil, nil, errors.Errorf("%d %d", ham.Rows(), ham.Cols())
		}
		psi0 := make([]complex128, d)
		psi0[0] = 1
		return ham, psi0, nil
	}

	if *numSpins < 2 {
		return nil, nil, errors.Errorf("%d", *numSpins)
	}
	psi0, err := groundState(*numSpins, *h0)
	if err != nil {
		return nil, nil, errors.Wrap(err, "")
	}
	ham, buf := mat.COOZeros(1, 1), mat.COOZeros(1, 1)
	qdyn.TransverseFieldIsing(ham, buf, [2]int{*numSpins, 1}, complex(*h1, 0))
	return ham, psi0, nil
}

// groundState returns the normalized ground state of the Ising chain of n spins in the field h.
func groundState(n int, h float64) ([]complex128, error) {
	mpo := mps.Ising(n, complex(float32(h), 0))
	const bondDim = 8
	state := mps.RandMPS(mpo, bondDim, rand.New(rand.NewPCG(*seed, 0)))
	opt := mps.NewSearchGroundStateOptions().MaxIterations(64).Tol(1e-5)
	res, err := mps.SearchGroundState(mpo, state, opt)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	s, err := mps.Entropy(state, n/2-1)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	log.Printf("ground energy %f entropy %f at h %f after %d sweeps", res.Energy, s, h, res.Sweeps)

	return calc.Normalize(mps.Dense(state)), nil
}

func printSeries(ctx context.Context, db *store.Store) error {
	names, err := db.Names(ctx, *runName)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if len(names) == 0 {
		return nil
	}
	ts, _, err := db.ReadSeries(ctx, *runName, names[0])
	if err != nil {
		return errors.Wrap(err, "")
	}
	values := make(map[string]map[float64]float64, len(names))
	for _, name := range names {
		nts, vs, err := db.ReadSeries(ctx, *runName, name)
		if err != nil {
			return errors.Wrap(err, "")
		}
		values[name] = make(map[float64]float64, len(nts))
		for i, t := range nts {
			values[name][t] = vs[i]
		}
		if len(nts) > len(ts) {
			ts = nts
		}
	}

	fmt.Printf("t")
	for _, name := range names {
		fmt.Printf(",%s", name)
	}
	fmt.Printf("\n")
	for _, t := range ts {
		fmt.Printf("%f", t)
		for _, name := range names {
			v, ok := values[name][t]
			switch {
			case ok:
				fmt.Printf(",%f", v)
			default:
				fmt.Printf(",")
			}
		}
		fmt.Printf("\n")
	}
	return nil
}
