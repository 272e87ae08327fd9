// Command circuit runs a QASM circuit and prints its final state.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/cmplx"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/fumin/qdyn/approx"
	"github.com/fumin/qdyn/calc"
	"github.com/fumin/qdyn/circuit"
	"github.com/fumin/qdyn/store"
)

var (
	qasmPath  = flag.String("qasm", "", "QASM file")
	dbPath    = flag.String("db", "", "database path, the final state is stored if set")
	runName   = flag.String("run", "circuit", "run name")
	threshold = flag.Float64("threshold", 1e-6, "smallest amplitude to print")
	approxOn  = flag.Bool("approx", false, "also estimate the half system entropy stochastically")
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
	c, err := circuit.FromQASMFile(*qasmPath)
	if err != nil {
		return errors.Wrap(err, "")
	}
	log.Printf("%d qubits %d gates rounds %s", c.N(), len(c.Gates()), strings.Join(c.Tags(), " "))

	psi := c.Psi()
	fmt.Printf("basis,re,im\n")
	for i, v := range psi {
		if cmplx.Abs(v) < *threshold {
			continue
		}
		fmt.Printf("%0*b,%f,%f\n", c.N(), i, real(v), imag(v))
	}

	dims := make([]int, c.N())
	for i := range dims {
		dims[i] = 2
	}
	half := make([]int, c.N()/2)
	for i := range half {
		half[i] = i
	}
	s, err := calc.EntropySubsys(calc.Pure(psi), dims, half)
	if err != nil {
		return errors.Wrap(err, "")
	}
	log.Printf("half system entropy %f", s)
	if *approxOn && len(half) > 0 {
		est, err := approx.EntropySubsys(ctx, psi, dims, half, approx.NewOptions().Backend(approx.Tensor))
		if err != nil {
			return errors.Wrap(err, "")
		}
		log.Printf("estimated half system entropy %f +- %f, %d samples", est.Value, est.Err, est.Samples)
	}

	if *dbPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(*dbPath), os.ModePerm); err != nil {
		return errors.Wrap(err, "")
	}
	db, err := store.Open(*dbPath)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer db.Close()
	if err := db.WriteKet(ctx, *runName, 0, psi); err != nil {
		return errors.Wrap(err, "")
	}
	if err := db.WriteSeries(ctx, *runName, "entropy", []float64{0}, []float64{s}); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}
