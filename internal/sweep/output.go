package sweep

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Table kinds used in output file names.
const (
	KindAPD     = "apd"
	KindSummary = "summary"
	KindAP      = "ap"
)

// BaseName returns the output name of a kind without extension, e.g.
// "BRapd_PCL_400_VAR_1".
func BaseName(model, kind string, pclMin, varMin float64) string {
	return fmt.Sprintf("%s%s_PCL_%g_VAR_%g", strings.ToUpper(model), kind, pclMin, varMin)
}

// FileName returns the table file name for a kind, e.g.
// "BRapd_PCL_400_VAR_1.txt". Ionic tables use the variable name as kind.
func FileName(model, kind string, pclMin, varMin float64) string {
	return BaseName(model, kind, pclMin, varMin) + ".txt"
}

// TableWriter writes tab-separated rows whose first two columns are the PCL
// and variable value of a grid point.
type TableWriter struct {
	w *csv.Writer
}

// NewTableWriter returns a TableWriter writing to w.
func NewTableWriter(w io.Writer) *TableWriter {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	return &TableWriter{w: cw}
}

// WriteRow writes one grid point followed by its values.
func (t *TableWriter) WriteRow(pcl, v float64, values []float64) error {
	row := make([]string, 0, len(values)+2)
	row = append(row, FormatFloat(pcl), FormatFloat(v))
	for _, x := range values {
		row = append(row, FormatFloat(x))
	}
	return t.w.Write(row)
}

// WriteValues writes a row of bare values.
func (t *TableWriter) WriteValues(values []float64) error {
	row := make([]string, len(values))
	for i, x := range values {
		row[i] = FormatFloat(x)
	}
	return t.w.Write(row)
}

// WriteHeader writes a header row.
func (t *TableWriter) WriteHeader(cols []string) error {
	return t.w.Write(cols)
}

// Flush flushes buffered rows and reports any write error.
func (t *TableWriter) Flush() error {
	t.w.Flush()
	return t.w.Error()
}
