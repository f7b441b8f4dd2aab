// Package plot renders bifurcation diagrams of a finished sweep: every
// retained APD of every grid point against the swept quantity.
package plot

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	gplot "gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/apdbif/internal/fsutil"
	"github.com/banshee-data/apdbif/internal/sweep"
)

// KindDiagram names diagram files.
const KindDiagram = "bif"

// Output formats.
const (
	FormatPNG  = "png"
	FormatHTML = "html"
)

// ErrNoPoints is returned when a diagram has nothing to draw.
var ErrNoPoints = errors.New("diagram has no points")

var (
	pngWidth  = 10 * vg.Inch
	pngHeight = 6 * vg.Inch
)

// Diagram is a labelled scatter of APD points.
type Diagram struct {
	Title  string
	XLabel string
	YLabel string
	Points plotter.XYs
}

// FromResult builds the bifurcation diagram of r. The x axis is the PCL when
// the sweep has more than one PCL, otherwise the swept variable.
func FromResult(r *sweep.Result) Diagram {
	byPCL := len(r.Grid.PCL.Values) > 1
	d := Diagram{
		Title:  fmt.Sprintf("%s APD bifurcation", strings.ToUpper(r.Model)),
		XLabel: "PCL (ms)",
		YLabel: "APD (ms)",
	}
	if !byPCL {
		d.XLabel = r.Grid.Var.Name
		if d.XLabel == "" {
			d.XLabel = "variable"
		}
	}

	for idx := 0; idx < r.Grid.Len(); idx++ {
		pcl, v := r.Grid.Point(idx)
		x := v
		if byPCL {
			x = pcl
		}
		for _, apd := range r.Records.Retained(idx, r.Discard) {
			d.Points = append(d.Points, plotter.XY{X: x, Y: apd})
		}
	}
	return d
}

// WritePNG renders the diagram with gonum/plot.
func (d Diagram) WritePNG(w io.Writer) error {
	if len(d.Points) == 0 {
		return ErrNoPoints
	}
	p := gplot.New()
	p.Title.Text = d.Title
	p.X.Label.Text = d.XLabel
	p.Y.Label.Text = d.YLabel
	p.Add(plotter.NewGrid())

	sc, err := plotter.NewScatter(d.Points)
	if err != nil {
		return fmt.Errorf("scatter: %w", err)
	}
	sc.GlyphStyle.Radius = vg.Points(1.5)
	p.Add(sc)

	wt, err := p.WriterTo(pngWidth, pngHeight, FormatPNG)
	if err != nil {
		return fmt.Errorf("render png: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// WriteHTML renders the diagram as a standalone go-echarts page.
func (d Diagram) WriteHTML(w io.Writer) error {
	if len(d.Points) == 0 {
		return ErrNoPoints
	}
	data := make([]opts.ScatterData, 0, len(d.Points))
	for _, pt := range d.Points {
		data = append(data, opts.ScatterData{Value: []interface{}{pt.X, pt.Y}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: d.Title, Width: "1000px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: d.Title, Subtitle: fmt.Sprintf("points=%d", len(d.Points))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: d.XLabel, NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: d.YLabel, NameLocation: "middle", NameGap: 40}),
	)
	scatter.AddSeries("apd", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	return scatter.Render(w)
}

// WriteFiles renders r in each requested format into dir and returns the
// paths written.
func WriteFiles(fsys fsutil.FileSystem, dir string, r *sweep.Result, formats []string) ([]string, error) {
	if len(formats) == 0 {
		return nil, nil
	}
	d := FromResult(r)
	base := sweep.BaseName(r.Model, KindDiagram, r.Grid.PCL.Min(), r.Grid.Var.Min())

	var paths []string
	for _, format := range formats {
		var buf bytes.Buffer
		var err error
		switch format {
		case FormatPNG:
			err = d.WritePNG(&buf)
		case FormatHTML:
			err = d.WriteHTML(&buf)
		default:
			err = fmt.Errorf("unknown plot format %q", format)
		}
		if err != nil {
			return paths, err
		}
		path := filepath.Join(dir, base+"."+format)
		if err := fsys.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return paths, fmt.Errorf("write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
