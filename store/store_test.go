package store

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/fumin/qdyn/mat"
)

func TestSeries(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	ctx := context.Background()

	ts := []float64{0, 0.5, 1}
	if err := s.WriteSeries(ctx, "run", "energy", ts, []float64{-1, -1.5, -2}); err != nil {
		t.Fatalf("%+v", err)
	}
	if err := s.WriteSeries(ctx, "run", "entropy", ts, []float64{0, 0.1, 0.2}); err != nil {
		t.Fatalf("%+v", err)
	}
	// Writing again replaces the previous series.
	if err := s.WriteSeries(ctx, "run", "energy", ts[:2], []float64{3, 4}); err != nil {
		t.Fatalf("%+v", err)
	}

	gotT, gotV, err := s.ReadSeries(ctx, "run", "energy")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if !slices.Equal(gotT, ts[:2]) || !slices.Equal(gotV, []float64{3, 4}) {
		t.Fatalf("%#v %#v", gotT, gotV)
	}

	names, err := s.Names(ctx, "run")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if !slices.Equal(names, []string{"energy", "entropy"}) {
		t.Fatalf("%#v", names)
	}

	if _, _, err := s.ReadSeries(ctx, "other", "energy"); err == nil {
		t.Fatalf("expected error")
	}
	if err := s.WriteSeries(ctx, "run", "bad", ts, []float64{1}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestKet(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	ctx := context.Background()

	ket := []complex128{0.6, 0, 0, 0.8i}
	if err := s.WriteKet(ctx, "run", 1.5, ket); err != nil {
		t.Fatalf("%+v", err)
	}
	if err := s.WriteKet(ctx, "run", 0, []complex128{1, 0, 0, 0}); err != nil {
		t.Fatalf("%+v", err)
	}
	got, err := s.ReadKet(ctx, "run", 1.5)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if !slices.Equal(got, ket) {
		t.Fatalf("%#v", got)
	}

	times, err := s.KetTimes(ctx, "run")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if !slices.Equal(times, []float64{0, 1.5}) {
		t.Fatalf("%#v", times)
	}

	if _, err := s.ReadKet(ctx, "run", 2); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMatrix(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	ctx := context.Background()

	m := mat.M([][]complex128{
		{1, 0, 2i},
		{0, 0, 0},
		{-3, 4 + 1i, 0},
	})
	if err := s.WriteMatrix(ctx, "h", m); err != nil {
		t.Fatalf("%+v", err)
	}
	got, err := s.ReadMatrix(ctx, "h")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if !got.Equal(m) {
		t.Fatalf("%v, expected %v", got, m)
	}

	if _, err := s.ReadMatrix(ctx, "missing"); err == nil {
		t.Fatalf("expected error")
	}
}

func newStore(t *testing.T) *Store {
	dir, err := os.MkdirTemp("", "")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	s, err := Open(filepath.Join(dir, "db.sqlite"))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	t.Cleanup(func() {
		s.Close()
		os.RemoveAll(dir)
	})
	return s
}

func TestMain(m *testing.M) {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)

	m.Run()
}
