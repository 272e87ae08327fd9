// Package store persists time series, state snapshots and sparse matrices in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/fumin/qdyn/mat"
)

const (
	tableSeries      = "series"
	tableKet         = "ket"
	tableAmplitude   = "amplitude"
	tableMatrix      = "matrix"
	tableMatrixEntry = "matrix_entry"
)

// Store is a SQLite database of evolution results.
type Store struct {
	Path string
	db   *sql.DB
}

// Open opens the database at dbPath, creating it if it does not exist.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", dbPath))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := prepareDB(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "")
	}
	return &Store{Path: dbPath, db: db}, nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func prepareDB(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sqlStrs := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (run TEXT, name TEXT, idx INTEGER, t REAL, v REAL, PRIMARY KEY (run, name, idx)) STRICT`, tableSeries),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (run TEXT, t REAL, dim INTEGER, PRIMARY KEY (run, t)) STRICT`, tableKet),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (run TEXT, t REAL, i INTEGER, re REAL, im REAL, PRIMARY KEY (run, t, i)) STRICT`, tableAmplitude),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (name TEXT, rows INTEGER, cols INTEGER, PRIMARY KEY (name)) STRICT`, tableMatrix),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (name TEXT, i INTEGER, j INTEGER, re REAL, im REAL, PRIMARY KEY (name, i, j)) STRICT`, tableMatrixEntry),
	}
	for _, sqlStr := range sqlStrs {
		if _, err := db.ExecContext(ctx, sqlStr); err != nil {
			return errors.Wrap(err, sqlStr)
		}
	}
	return nil
}

// inTx runs fn in a transaction, committing if fn succeeds.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "")
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// WriteSeries replaces the series name of run with the values vs at times ts.
func (s *Store) WriteSeries(ctx context.Context, run, name string, ts, vs []float64) error {
	if len(ts) != len(vs) {
		return errors.Errorf("%d %d", len(ts), len(vs))
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		sqlStr := fmt.Sprintf(`DELETE FROM %s WHERE run=? AND name=?`, tableSeries)
		if _, err := tx.ExecContext(ctx, sqlStr, run, name); err != nil {
			return errors.Wrap(err, sqlStr)
		}

		sqlStr = fmt.Sprintf(`INSERT INTO %s (run, name, idx, t, v) VALUES (?, ?, ?, ?, ?)`, tableSeries)
		stmt, err := tx.PrepareContext(ctx, sqlStr)
		if err != nil {
			return errors.Wrap(err, sqlStr)
		}
		defer stmt.Close()
		for i, t := range ts {
			if _, err := stmt.ExecContext(ctx, run, name, i, t, vs[i]); err != nil {
				return errors.Wrap(err, fmt.Sprintf("%d %f %f", i, t, vs[i]))
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("%s %s", run, name))
	}
	return nil
}

// ReadSeries returns the times and values of the series name of run.
func (s *Store) ReadSeries(ctx context.Context, run, name string) ([]float64, []float64, error) {
	sqlStr := fmt.Sprintf(`SELECT t, v FROM %s WHERE run=? AND name=? ORDER BY idx`, tableSeries)
	rows, err := s.db.QueryContext(ctx, sqlStr, run, name)
	if err != nil {
		return nil, nil, errors.Wrap(err, sqlStr)
	}
	defer rows.Close()

	ts, vs := make([]float64, 0), make([]float64, 0)
	for rows.Next() {
		var t, v float64
		if err := rows.Scan(&t, &v); err != nil {
			return nil, nil, errors.Wrap(err, "")
		}
		ts = append(ts, t)
		vs = append(vs, v)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, errors.Wrap(err, "")
	}
	if len(ts) == 0 {
		return nil, nil, errors.Errorf("no series %s %s", run, name)
	}
	return ts, vs, nil
}

// Names returns the sorted names of the series of run.
func (s *Store) Names(ctx context.Context, run string) ([]string, error) {
	sqlStr := fmt.Sprintf(`SELECT DISTINCT name FROM %s WHERE run=? ORDER BY name`, tableSeries)
	rows, err := s.db.QueryContext(ctx, sqlStr, run)
	if err != nil {
		return nil, errors.Wrap(err, sqlStr)
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "")
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return names, nil
}

// WriteKet replaces the snapshot of run at time t with ket.
// Only non-zero amplitudes are stored.
func (s *Store) WriteKet(ctx context.Context, run string, t float64, ket []complex128) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		sqlStr := fmt.Sprintf(`DELETE FROM %s WHERE run=? AND t=?`, tableAmplitude)
		if _, err := tx.ExecContext(ctx, sqlStr, run, t); err != nil {
			return errors.Wrap(err, sqlStr)
		}
		sqlStr = fmt.Sprintf(`INSERT OR REPLACE INTO %s (run, t, dim) VALUES (?, ?, ?)`, tableKet)
		if _, err := tx.ExecContext(ctx, sqlStr, run, t, len(ket)); err != nil {
			return errors.Wrap(err, sqlStr)
		}

		sqlStr = fmt.Sprintf(`INSERT INTO %s (run, t, i, re, im) VALUES (?, ?, ?, ?, ?)`, tableAmplitude)
		stmt, err := tx.PrepareContext(ctx, sqlStr)
		if err != nil {
			return errors.Wrap(err, sqlStr)
		}
		defer stmt.Close()
		for i, v := range ket {
			if v == 0 {
				continue
			}
			if _, err := stmt.ExecContext(ctx, run, t, i, real(v), imag(v)); err != nil {
				return errors.Wrap(err, fmt.Sprintf("%d %v", i, v))
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("%s %f", run, t))
	}
	return nil
}

// ReadKet returns the snapshot of run at time t.
func (s *Store) ReadKet(ctx context.Context, run string, t float64) ([]complex128, error) {
	sqlStr := fmt.Sprintf(`SELECT dim FROM %s WHERE run=? AND t=?`, tableKet)
	var dim int
	if err := s.db.QueryRowContext(ctx, sqlStr, run, t).Scan(&dim); err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("%s %f", run, t))
	}

	sqlStr = fmt.Sprintf(`SELECT i, re, im FROM %s WHERE run=? AND t=?`, tableAmplitude)
	rows, err := s.db.QueryContext(ctx, sqlStr, run, t)
	if err != nil {
		return nil, errors.Wrap(err, sqlStr)
	}
	defer rows.Close()

	ket := make([]complex128, dim)
	for rows.Next() {
		var i int
		var re, im float64
		if err := rows.Scan(&i, &re, &im); err != nil {
			return nil, errors.Wrap(err, "")
		}
		if i < 0 || i >= dim {
			return nil, errors.Errorf("%d %d", i, dim)
		}
		ket[i] = complex(re, im)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return ket, nil
}

// KetTimes returns the sorted times of the snapshots of run.
func (s *Store) KetTimes(ctx context.Context, run string) ([]float64, error) {
	sqlStr := fmt.Sprintf(`SELECT t FROM %s WHERE run=? ORDER BY t`, tableKet)
	rows, err := s.db.QueryContext(ctx, sqlStr, run)
	if err != nil {
		return nil, errors.Wrap(err, sqlStr)
	}
	defer rows.Close()

	ts := make([]float64, 0)
	for rows.Next() {
		var t float64
		if err := rows.Scan(&t); err != nil {
			return nil, errors.Wrap(err, "")
		}
		ts = append(ts, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return ts, nil
}

// WriteMatrix replaces the matrix name with m.
func (s *Store) WriteMatrix(ctx context.Context, name string, m *mat.COO) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		sqlStr := fmt.Sprintf(`DELETE FROM %s WHERE name=?`, tableMatrixEntry)
		if _, err := tx.ExecContext(ctx, sqlStr, name); err != nil {
			return errors.Wrap(err, sqlStr)
		}
		sqlStr = fmt.Sprintf(`INSERT OR REPLACE INTO %s (name, rows, cols) VALUES (?, ?, ?)`, tableMatrix)
		if _, err := tx.ExecContext(ctx, sqlStr, name, m.Rows(), m.Cols()); err != nil {
			return errors.Wrap(err, sqlStr)
		}

		sqlStr = fmt.Sprintf(`INSERT INTO %s (name, i, j, re, im) VALUES (?, ?, ?, ?, ?)`, tableMatrixEntry)
		stmt, err := tx.PrepareContext(ctx, sqlStr)
		if err != nil {
			return errors.Wrap(err, sqlStr)
		}
		defer stmt.Close()
		for ij, v := range m.All() {
			if _, err := stmt.ExecContext(ctx, name, ij[0], ij[1], real(v), imag(v)); err != nil {
				return errors.Wrap(err, fmt.Sprintf("%v %v", ij, v))
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, name)
	}
	return nil
}

// ReadMatrix returns the matrix name.
func (s *Store) ReadMatrix(ctx context.Context, name string) (*mat.COO, error) {
	sqlStr := fmt.Sprintf(`SELECT rows, cols FROM %s WHERE name=?`, tableMatrix)
	var numRows, numCols int
	if err := s.db.QueryRowContext(ctx, sqlStr, name).Scan(&numRows, &numCols); err != nil {
		return nil, errors.Wrap(err, name)
	}

	sqlStr = fmt.Sprintf(`SELECT i, j, re, im FROM %s WHERE name=? ORDER BY i, j`, tableMatrixEntry)
	rows, err := s.db.QueryContext(ctx, sqlStr, name)
	if err != nil {
		return nil, errors.Wrap(err, sqlStr)
	}
	defer rows.Close()

	m := mat.COOZeros(numRows, numCols)
	for rows.Next() {
		var i, j int
		var re, im float64
		if err := rows.Scan(&i, &j, &re, &im); err != nil {
			return nil, errors.Wrap(err, "")
		}
		if i < 0 || i >= numRows || j < 0 || j >= numCols {
			return nil, errors.Errorf("%d %d %d %d", i, j, numRows, numCols)
		}
		m.SetAt(i, j, complex(re, im))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return m, nil
}
