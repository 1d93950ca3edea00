// Package cellio reads and writes the CSV formats the engine exchanges
// with callers: intracell distance matrices in upper-triangular vectorform
// on input, and SLB/qGW distance tables on output.
package cellio

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/cajal-go/shapedist/pkg/errs"
	"github.com/cajal-go/shapedist/pkg/mmspace"
)

// Cell is one named intracell distance matrix read from an input file,
// square and symmetric but not yet validated as an MMSpace (callers should
// pass D through mmspace.New).
type Cell struct {
	Name string
	D    [][]float64
}

// ValidateIntracellCSV checks structural formatting without allocating
// distance matrices: a header starting with "cell_id", and every data row's
// value count forming a valid upper-triangular vectorform (n*(n-1)/2 for
// some integer n).
func ValidateIntracellCSV(r io.Reader) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.Comment = '#'

	header, err := readPastComments(reader)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrMalformedInput, err)
	}
	if len(header) == 0 || header[0] != "cell_id" {
		return fmt.Errorf("%w: expected header starting with \"cell_id\"", errs.ErrMalformedInput)
	}

	lineNum := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: line %d: %v", errs.ErrMalformedInput, lineNum, err)
		}
		if len(record) > 0 && record[0] == "#" {
			continue
		}
		values := record[1:]
		if !isTriangularCount(len(values)) {
			return fmt.Errorf("%w: line %d is not in upper-triangular vectorform (%d values)", errs.ErrMalformedInput, lineNum, len(values))
		}
		for i, v := range values {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				return fmt.Errorf("%w: line %d token %d is not a number: %v", errs.ErrMalformedInput, lineNum, i+2, err)
			}
		}
		lineNum++
	}
	return nil
}

// isTriangularCount reports whether count equals n*(n-1)/2 for some
// integer n >= 2.
func isTriangularCount(count int) bool {
	if count == 0 {
		return false
	}
	n := int(math.Ceil(math.Sqrt(2 * float64(count))))
	for _, cand := range []int{n - 1, n, n + 1} {
		if cand >= 2 && cand*(cand-1)/2 == count {
			return true
		}
	}
	return false
}

func readPastComments(reader *csv.Reader) ([]string, error) {
	for {
		record, err := reader.Read()
		if err != nil {
			return nil, err
		}
		if len(record) > 0 && record[0] == "#" {
			continue
		}
		return record, nil
	}
}

// ReadIntracellCSV reads every cell in the file, expanding each row's
// upper-triangular vectorform into a full square distance matrix.
func ReadIntracellCSV(r io.Reader) ([]Cell, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.Comment = '#'

	header, err := readPastComments(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrMalformedInput, err)
	}
	if len(header) == 0 || header[0] != "cell_id" {
		return nil, fmt.Errorf("%w: expected header starting with \"cell_id\"", errs.ErrMalformedInput)
	}

	var cells []Cell
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrMalformedInput, err)
		}
		if len(record) > 0 && record[0] == "#" {
			continue
		}
		name := record[0]
		values := make([]float64, len(record)-1)
		for i, v := range record[1:] {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: cell %q: %v", errs.ErrMalformedInput, name, err)
			}
			values[i] = f
		}
		d, err := fromVectorform(values)
		if err != nil {
			return nil, fmt.Errorf("%w: cell %q: %v", errs.ErrMalformedInput, name, err)
		}
		cells = append(cells, Cell{Name: name, D: d})
	}
	return cells, nil
}

// fromVectorform expands a strict upper-triangle vectorform (row-major,
// i.e. (0,1),(0,2),...,(0,n-1),(1,2),...) into a symmetric zero-diagonal
// matrix.
func fromVectorform(values []float64) ([][]float64, error) {
	count := len(values)
	n := 0
	for cand := 2; cand*(cand-1)/2 <= count; cand++ {
		if cand*(cand-1)/2 == count {
			n = cand
		}
	}
	if n == 0 {
		return nil, fmt.Errorf("%d values do not form a valid upper-triangular vectorform", count)
	}
	d := make([][]float64, n)
	for i := range d {
		d[i] = make([]float64, n)
	}
	k := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d[i][j] = values[k]
			d[j][i] = values[k]
			k++
		}
	}
	return d, nil
}

// ReadIntracellCSVFile opens path and reads its cells.
func ReadIntracellCSVFile(path string) ([]Cell, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadIntracellCSV(f)
}

// ToMMSpaces converts Cells into validated MMSpaces with uniform measure.
func ToMMSpaces(cells []Cell) ([]*mmspace.MMSpace, error) {
	out := make([]*mmspace.MMSpace, len(cells))
	for i, c := range cells {
		m, err := mmspace.New(c.Name, c.D, nil)
		if err != nil {
			return nil, err
		}
		out[i] = m
	}
	return out, nil
}
