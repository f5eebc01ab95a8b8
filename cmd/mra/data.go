package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/btracey/mra"
)

const (
	obsColumn   = "obs"
	truthColumn = "truth"
	naValue     = "NA"
)

var errNoRows = errors.New("data set has no rows")

// dataSet is a CSV table of locations with an optional observation and
// true-value column. Every other column is a coordinate.
type dataSet struct {
	coords []string
	x      *mat.Dense
	obs    []float64 // NaN where missing
	truth  []float64 // nil if absent
}

func readDataSet(r io.Reader) (*dataSet, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, errNoRows
	}
	header := records[0]
	obsCol, truthCol := -1, -1
	var coordCols []int
	ds := &dataSet{}
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case obsColumn:
			obsCol = i
		case truthColumn:
			truthCol = i
		default:
			coordCols = append(coordCols, i)
			ds.coords = append(ds.coords, strings.TrimSpace(name))
		}
	}
	if len(coordCols) == 0 {
		return nil, fmt.Errorf("no coordinate columns in header %v", header)
	}
	rows := records[1:]
	ds.x = mat.NewDense(len(rows), len(coordCols), nil)
	ds.obs = make([]float64, len(rows))
	if truthCol >= 0 {
		ds.truth = make([]float64, len(rows))
	}
	for i, rec := range rows {
		line := i + 2
		for j, c := range coordCols {
			v, err := parseValue(rec[c])
			if err != nil || math.IsNaN(v) {
				return nil, fmt.Errorf("line %d: invalid %s value %q", line, header[c], rec[c])
			}
			ds.x.Set(i, j, v)
		}
		ds.obs[i] = math.NaN()
		if obsCol >= 0 {
			if ds.obs[i], err = parseValue(rec[obsCol]); err != nil {
				return nil, fmt.Errorf("line %d: invalid %s value %q", line, obsColumn, rec[obsCol])
			}
		}
		if truthCol >= 0 {
			if ds.truth[i], err = parseValue(rec[truthCol]); err != nil {
				return nil, fmt.Errorf("line %d: invalid %s value %q", line, truthColumn, rec[truthCol])
			}
		}
	}
	return ds, nil
}

// parseValue parses a float, with NA or an empty field as NaN.
func parseValue(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == naValue {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return naValue
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// prepared returns the locations scaled onto the unit box and the centered
// observations with their mean.
func (ds *dataSet) prepared() (*mat.Dense, []float64, float64) {
	x, _, _ := mra.NormalizeLocations(ds.x)
	y, mean := mra.CenterObservations(ds.obs)
	return x, y, mean
}

// write writes the data set with extra columns appended to every row.
func (ds *dataSet) write(w io.Writer, extraNames []string, extra ...[]float64) error {
	cw := csv.NewWriter(w)
	header := append([]string(nil), ds.coords...)
	header = append(header, obsColumn)
	if ds.truth != nil {
		header = append(header, truthColumn)
	}
	header = append(header, extraNames...)
	if err := cw.Write(header); err != nil {
		return err
	}
	r, c := ds.x.Dims()
	rec := make([]string, 0, len(header))
	for i := 0; i < r; i++ {
		rec = rec[:0]
		for j := 0; j < c; j++ {
			rec = append(rec, formatValue(ds.x.At(i, j)))
		}
		rec = append(rec, formatValue(ds.obs[i]))
		if ds.truth != nil {
			rec = append(rec, formatValue(ds.truth[i]))
		}
		for _, col := range extra {
			rec = append(rec, formatValue(col[i]))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func loadDataSet(path string) (*dataSet, error) {
	if path == "" {
		return readDataSet(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening data set at %s: %v", path, err)
	}
	defer f.Close()
	ds, err := readDataSet(f)
	if err != nil {
		return nil, fmt.Errorf("reading data set at %s: %v", path, err)
	}
	return ds, nil
}

// writeOutput calls write with the file at path, or with STDOUT if path is
// empty. The file is closed whether or not write fails, and the first error
// is returned.
func writeOutput(path string, write func(io.Writer) error) error {
	if path == "" {
		return write(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	err = write(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}
