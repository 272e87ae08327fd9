package mat

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"math/cmplx"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// The CSV COO format stores a matrix in a directory of two files.
// FnameShape holds "rows,cols", and FnameCOO holds one "value,row,col" line per non-zero entry in row major order.
// Values are formatted like numpy, with j as the imaginary unit.
// An empty value or row field repeats the one of the previous line, and is not allowed on the first line.
// Each row and column pair appears at most once.
const (
	FnameShape = "shape.csv"
	FnameCOO   = "coo.csv"
)

// COOWriter streams the entries of a matrix into the CSV COO format.
type COOWriter struct {
	f    *os.File
	w    *csv.Writer
	rows int
	cols int
	prev vRowCol
}

// NewCOOWriter creates the files of a rows x cols matrix in dir.
func NewCOOWriter(dir string, rows, cols int) (*COOWriter, error) {
	shapePath := filepath.Join(dir, FnameShape)
	if err := os.WriteFile(shapePath, []byte(fmt.Sprintf("%d,%d", rows, cols)), 0644); err != nil {
		return nil, errors.Wrap(err, "")
	}
	f, err := os.Create(filepath.Join(dir, FnameCOO))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	w := &COOWriter{f: f, w: csv.NewWriter(f), rows: rows, cols: cols}
	w.prev = vRowCol{v: cmplx.NaN(), row: -1, col: -1}
	return w, nil
}

// Write appends v at row i and column j. Zeros are skipped.
// Entries must be written in row major order.
func (w *COOWriter) Write(v complex128, i, j int) error {
	if i < 0 || i >= w.rows || j < 0 || j >= w.cols {
		return errors.Errorf("%d %d %d %d", i, j, w.rows, w.cols)
	}
	if v == 0 {
		return nil
	}
	e := vRowCol{v: v, row: i, col: j}
	if w.prev.row >= 0 && rowMajor(w.prev, e) >= 0 {
		return errors.Errorf("not row major %d %d after %d %d", i, j, w.prev.row, w.prev.col)
	}

	var vStr, rowStr string
	if v != w.prev.v {
		vStr = FormatNumpy(v)
	}
	if i != w.prev.row {
		rowStr = strconv.Itoa(i)
	}
	if err := w.w.Write([]string{vStr, rowStr, strconv.Itoa(j)}); err != nil {
		return errors.Wrap(err, "")
	}
	w.prev = e
	return nil
}

// Close flushes the written entries and closes the files.
func (w *COOWriter) Close() error {
	w.w.Flush()
	err := w.w.Error()
	if err1 := w.f.Close(); err1 != nil && err == nil {
		err = err1
	}
	if err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// WriteCOO writes m to dir in the CSV COO format.
func (m *COO) WriteCOO(dir string) error {
	w, err := NewCOOWriter(dir, m.rows, m.cols)
	if err != nil {
		return errors.Wrap(err, "")
	}
	for _, v := range m.Data {
		if err := w.Write(v.v, v.row, v.col); err != nil {
			w.Close()
			return errors.Wrap(err, "")
		}
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// COOReader streams the entries of a matrix written in the CSV COO format.
type COOReader struct {
	f    *os.File
	r    *csv.Reader
	rows int
	cols int
	line int
	prev vRowCol
}

func NewCOOReader(dir string) (*COOReader, error) {
	rows, cols, err := readShape(dir)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	f, err := os.Open(filepath.Join(dir, FnameCOO))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return &COOReader{f: f, r: csv.NewReader(f), rows: rows, cols: cols}, nil
}

func (r *COOReader) Rows() int { return r.rows }
func (r *COOReader) Cols() int { return r.cols }

func (r *COOReader) Close() error {
	if err := r.f.Close(); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// Read returns the value, row and column of the next entry, or io.EOF after the last one.
func (r *COOReader) Read() (complex128, int, int, error) {
	record, err := r.r.Read()
	if err == io.EOF {
		return 0, -1, -1, io.EOF
	}
	r.line++
	if err != nil {
		return 0, -1, -1, errors.Wrap(err, fmt.Sprintf("%d", r.line))
	}
	if len(record) != 3 {
		return 0, -1, -1, errors.Errorf("%d %#v", r.line, record)
	}

	if r.line == 1 && (record[0] == "" || record[1] == "") {
		return 0, -1, -1, errors.Errorf("nothing to repeat %d %#v", r.line, record)
	}
	e := r.prev
	if record[0] != "" {
		if e.v, err = strconv.ParseComplex(strings.ReplaceAll(record[0], "j", "i"), 128); err != nil {
			return 0, -1, -1, errors.Wrap(err, fmt.Sprintf("%d %#v", r.line, record))
		}
	}
	if record[1] != "" {
		if e.row, err = strconv.Atoi(record[1]); err != nil {
			return 0, -1, -1, errors.Wrap(err, fmt.Sprintf("%d %#v", r.line, record))
		}
	}
	if e.col, err = strconv.Atoi(record[2]); err != nil {
		return 0, -1, -1, errors.Wrap(err, fmt.Sprintf("%d %#v", r.line, record))
	}
	if e.row < 0 || e.row >= r.rows || e.col < 0 || e.col >= r.cols {
		return 0, -1, -1, errors.Errorf("%d %#v %d %d", r.line, record, r.rows, r.cols)
	}

	r.prev = e
	return e.v, e.row, e.col, nil
}

// ReadCOO reads the matrix written to dir in the CSV COO format.
func ReadCOO(dir string) (*COO, error) {
	r, err := NewCOOReader(dir)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer r.Close()

	m := &COO{rows: r.Rows(), cols: r.Cols(), Data: make([]vRowCol, 0)}
	for {
		v, i, j, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		m.Data = append(m.Data, vRowCol{v: v, row: i, col: j})
	}
	if !slices.IsSortedFunc(m.Data, rowMajor) {
		slices.SortFunc(m.Data, rowMajor)
	}
	for k := 1; k < len(m.Data); k++ {
		if prev, e := m.Data[k-1], m.Data[k]; rowMajor(prev, e) == 0 {
			return nil, errors.Errorf("duplicate entry %d %d", e.row, e.col)
		}
	}
	return m, nil
}

func readShape(dir string) (int, int, error) {
	b, err := os.ReadFile(filepath.Join(dir, FnameShape))
	if err != nil {
		return -1, -1, errors.Wrap(err, "")
	}
	records, err := csv.NewReader(bytes.NewReader(b)).ReadAll()
	if err != nil {
		return -1, -1, errors.Wrap(err, "")
	}
	if len(records) != 1 || len(records[0]) != 2 {
		return -1, -1, errors.Errorf("%q", b)
	}

	var shape [2]int
	for k, s := range records[0] {
		shape[k], err = strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return -1, -1, errors.Wrap(err, fmt.Sprintf("%q", b))
		}
		if shape[k] < 0 {
			return -1, -1, errors.Errorf("%q", b)
		}
	}
	return shape[0], shape[1], nil
}

// FormatNumpy formats v the way numpy does, with j as the imaginary unit.
func FormatNumpy(v complex128) string {
	switch {
	case imag(v) == 0:
		return strconv.FormatFloat(real(v), 'g', -1, 64)
	default:
		s := strconv.FormatComplex(v, 'g', -1, 128)
		return strings.ReplaceAll(s, "i", "j")
	}
}
