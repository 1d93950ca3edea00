package cellio

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
)

const writeBatchSize = 1000

// WriteSLBCSV writes an (name_i, name_j, slb) row per off-diagonal pair
// i<j, batching writes to bound peak memory the way the dispatcher batches
// job results.
func WriteSLBCSV(w io.Writer, names []string, slb [][]float64) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"cell_id_1", "cell_id_2", "slb"}); err != nil {
		return err
	}

	batch := make([][]string, 0, writeBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := writer.WriteAll(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	n := len(names)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			batch = append(batch, []string{names[i], names[j], strconv.FormatFloat(slb[i][j], 'g', -1, 64)})
			if len(batch) >= writeBatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	return flush()
}

// ResultKind distinguishes an exactly-computed qGW entry from one filled by
// the SLB+median estimator.
type ResultKind string

const (
	KindQGW ResultKind = "QGW"
	KindEst ResultKind = "EST"
)

// WriteResultCSV writes an (name_i, name_j, distance, kind) row per
// off-diagonal pair i<j.
func WriteResultCSV(w io.Writer, names []string, distance [][]float64, known [][]bool) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"cell_id_1", "cell_id_2", "distance", "kind"}); err != nil {
		return err
	}

	batch := make([][]string, 0, writeBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := writer.WriteAll(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	n := len(names)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			kind := KindEst
			if known[i][j] {
				kind = KindQGW
			}
			batch = append(batch, []string{
				names[i], names[j],
				strconv.FormatFloat(distance[i][j], 'g', -1, 64),
				string(kind),
			})
			if len(batch) >= writeBatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	return flush()
}

// WriteSLBCSVFile creates (or truncates) path and writes the SLB matrix to it.
func WriteSLBCSVFile(path string, names []string, slb [][]float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteSLBCSV(f, names, slb)
}

// WriteResultCSVFile creates (or truncates) path and writes the result
// matrix to it.
func WriteResultCSVFile(path string, names []string, distance [][]float64, known [][]bool) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteResultCSV(f, names, distance, known)
}
