package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"
)

// TargetColumn is the label the regressor is fitted against
const TargetColumn = "karma_score"

var (
	ErrNoHeader      = errors.New("csv has no header row")
	ErrMissingColumn = errors.New("required column not found")
)

// tokens read as missing, following the pandas defaults
var naTokens = map[string]struct{}{
	"": {}, "nan": {}, "na": {}, "n/a": {}, "null": {}, "none": {}, "<na>": {}, "-nan": {}, "#n/a": {},
}

// Frame is a numeric table read from CSV. Missing cells are NaN until FillNA.
type Frame struct {
	Header []string
	Rows   [][]float64
}

// LoadCSV reads a frame from a CSV file on disk
func LoadCSV(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer file.Close()

	return ReadCSV(file)
}

// ReadCSV parses a header row followed by numeric rows
func ReadCSV(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	frame := &Frame{Header: header}
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row %d: %w", line, err)
		}

		row := make([]float64, len(header))
		for i, cell := range record {
			v, err := parseCell(cell)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", line, header[i], err)
			}
			row[i] = v
		}
		frame.Rows = append(frame.Rows, row)
	}

	return frame, nil
}

func parseCell(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	if _, ok := naTokens[strings.ToLower(cell)]; ok {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric value %q", cell)
	}
	return v, nil
}

// DropDuplicates removes exact-duplicate rows keeping the first occurrence.
// Missing values compare equal to each other.
func (f *Frame) DropDuplicates() *Frame {
	seen := make(map[string]struct{}, len(f.Rows))
	out := &Frame{Header: f.Header, Rows: make([][]float64, 0, len(f.Rows))}

	var sb strings.Builder
	for _, row := range f.Rows {
		sb.Reset()
		for _, v := range row {
			sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
			sb.WriteByte(',')
		}
		key := sb.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out.Rows = append(out.Rows, row)
	}

	return out
}

// FillNA replaces missing values with v
func (f *Frame) FillNA(v float64) *Frame {
	out := &Frame{Header: f.Header, Rows: make([][]float64, len(f.Rows))}
	for i, row := range f.Rows {
		filled := make([]float64, len(row))
		for j, x := range row {
			if math.IsNaN(x) {
				x = v
			}
			filled[j] = x
		}
		out.Rows[i] = filled
	}
	return out
}

func (f *Frame) columnIndex(name string) int {
	for i, h := range f.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Dataset is a feature matrix with its target, columns in a fixed order
type Dataset struct {
	Columns []string
	X       [][]float64
	Y       []float64
}

// Dataset selects the given feature columns, in order, and the target column
func (f *Frame) Dataset(columns []string, target string) (*Dataset, error) {
	targetIdx := f.columnIndex(target)
	if targetIdx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, target)
	}

	idx := make([]int, len(columns))
	used := map[int]bool{targetIdx: true}
	for i, col := range columns {
		j := f.columnIndex(col)
		if j < 0 {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
		idx[i] = j
		used[j] = true
	}
	for i, h := range f.Header {
		if !used[i] {
			slog.Warn("Ignoring unknown dataset column", "column", h)
		}
	}

	ds := &Dataset{
		Columns: append([]string(nil), columns...),
		X:       make([][]float64, len(f.Rows)),
		Y:       make([]float64, len(f.Rows)),
	}
	for r, row := range f.Rows {
		x := make([]float64, len(idx))
		for i, j := range idx {
			x[i] = row[j]
		}
		ds.X[r] = x
		ds.Y[r] = row[targetIdx]
	}
	return ds, nil
}

// Len returns the number of rows
func (d *Dataset) Len() int {
	return len(d.Y)
}

// Split shuffles the rows and holds out testFraction of them. At least one row
// lands on each side.
func (d *Dataset) Split(testFraction float64, seed int64) (*Dataset, *Dataset, error) {
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("test fraction must be in (0, 1), got %v", testFraction)
	}
	n := d.Len()
	if n < 2 {
		return nil, nil, fmt.Errorf("need at least 2 rows to split, got %d", n)
	}

	nTest := int(math.Ceil(testFraction * float64(n)))
	if nTest >= n {
		nTest = n - 1
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	test := d.subset(perm[:nTest])
	train := d.subset(perm[nTest:])
	return train, test, nil
}

func (d *Dataset) subset(rows []int) *Dataset {
	out := &Dataset{
		Columns: d.Columns,
		X:       make([][]float64, len(rows)),
		Y:       make([]float64, len(rows)),
	}
	for i, r := range rows {
		out.X[i] = d.X[r]
		out.Y[i] = d.Y[r]
	}
	return out
}
