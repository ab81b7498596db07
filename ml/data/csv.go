package data

import (
	"io"
	"math"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/pkg/errors"
)

// LoadCSV reads a CSV with a header line from r, and returns an InMemoryDataset with the label taken
// from the column labelColumn, and the inputs from inputColumns, in the given order. If no inputColumns
// are given, all columns except the label are used as inputs, in the order of the file.
//
// All the used columns must hold numeric values.
func LoadCSV(name string, r io.Reader, labelColumn string, inputColumns ...string) (*InMemoryDataset, error) {
	df := dataframe.ReadCSV(r, dataframe.HasHeader(true),
		dataframe.DetectTypes(false), dataframe.DefaultType(series.Float))
	if df.Err != nil {
		return nil, errors.Wrapf(df.Err, "failed to parse CSV for dataset %q", name)
	}
	names := df.Names()
	if !slices.Contains(names, labelColumn) {
		return nil, errors.Errorf("dataset %q: label column %q not found in CSV columns %q", name, labelColumn, names)
	}
	if len(inputColumns) == 0 {
		for _, colName := range names {
			if colName != labelColumn {
				inputColumns = append(inputColumns, colName)
			}
		}
	}
	if len(inputColumns) == 0 {
		return nil, errors.Errorf("dataset %q: CSV has no input columns besides the label %q", name, labelColumn)
	}
	numRows := df.Nrow()
	if numRows == 0 {
		return nil, errors.Errorf("dataset %q: CSV has no rows", name)
	}

	labels, err := floatColumn(df, labelColumn)
	if err != nil {
		return nil, errors.WithMessagef(err, "dataset %q", name)
	}
	inputs := make([][]float64, numRows)
	for ii := range inputs {
		inputs[ii] = make([]float64, len(inputColumns))
	}
	for colIdx, colName := range inputColumns {
		if !slices.Contains(names, colName) {
			return nil, errors.Errorf("dataset %q: input column %q not found in CSV columns %q", name, colName, names)
		}
		values, err := floatColumn(df, colName)
		if err != nil {
			return nil, errors.WithMessagef(err, "dataset %q", name)
		}
		for rowIdx, value := range values {
			inputs[rowIdx][colIdx] = value
		}
	}
	return NewInMemory(name, inputs, labels), nil
}

// floatColumn returns the values of the column, or an error if any of them is not a number.
func floatColumn(df dataframe.DataFrame, colName string) ([]float64, error) {
	values := df.Col(colName).Float()
	for rowIdx, value := range values {
		if math.IsNaN(value) {
			return nil, errors.Errorf("column %q, row %d: value %q is not a number",
				colName, rowIdx, df.Col(colName).Elem(rowIdx).String())
		}
	}
	return values, nil
}

// LoadCSVFile is like LoadCSV, but reads from a file. If filePath is an URL ("http://" or "https://"),
// it is first downloaded to cacheDir, if not there yet.
//
// The dataset is named after the file name.
func LoadCSVFile(filePath, cacheDir, labelColumn string, inputColumns ...string) (*InMemoryDataset, error) {
	if strings.HasPrefix(filePath, "http://") || strings.HasPrefix(filePath, "https://") {
		localPath := path.Join(ReplaceTildeInDir(cacheDir), path.Base(filePath))
		if err := DownloadIfMissing(filePath, localPath, ""); err != nil {
			return nil, err
		}
		filePath = localPath
	}
	filePath = ReplaceTildeInDir(filePath)
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open CSV file %q", filePath)
	}
	defer func() { _ = f.Close() }()
	name := strings.TrimSuffix(path.Base(filePath), path.Ext(filePath))
	return LoadCSV(name, f, labelColumn, inputColumns...)
}
