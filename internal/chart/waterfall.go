package chart

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image/color"
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/ZanzyTHEbar/stacking-predict/internal/explain"
)

// DefaultMaxDisplay shows every feature of the default catalogue
const DefaultMaxDisplay = 18

var (
	positiveColor = color.RGBA{R: 0xff, G: 0x00, B: 0x51, A: 0xff}
	negativeColor = color.RGBA{R: 0x00, G: 0x8b, B: 0xfb, A: 0xff}
	guideColor    = color.RGBA{R: 0x99, G: 0x99, B: 0x99, A: 0xff}
)

// Options controls chart rendering
type Options struct {
	MaxDisplay int
	Width      vg.Length
	Title      string
}

// Row is one bar of the waterfall. Bars run from Start to End; End - Start
// equals Value.
type Row struct {
	Label string
	Value float64
	Start float64
	End   float64
}

// Rows lays out the waterfall bottom to top: the least important features
// (or the collapsed "N other features" row) first, the largest contribution
// last. The first bar starts at the baseline and the last one ends at the
// prediction.
func Rows(attr *explain.Attribution, maxDisplay int) []Row {
	if maxDisplay <= 0 {
		maxDisplay = DefaultMaxDisplay
	}

	ranked := append([]explain.Contribution(nil), attr.Values...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return math.Abs(ranked[i].Value) > math.Abs(ranked[j].Value)
	})

	var rows []Row
	shown := ranked
	if len(ranked) > maxDisplay {
		// One slot goes to the collapsed row
		keep := maxDisplay - 1
		shown = ranked[:keep]
		rest := 0.0
		for _, c := range ranked[keep:] {
			rest += c.Value
		}
		rows = append(rows, Row{
			Label: fmt.Sprintf("%d other features", len(ranked)-keep),
			Value: rest,
		})
	}
	for i := len(shown) - 1; i >= 0; i-- {
		c := shown[i]
		rows = append(rows, Row{
			Label: fmt.Sprintf("%s = %s", strconv.FormatFloat(c.Data, 'g', 4, 64), c.Feature),
			Value: c.Value,
		})
	}

	pos := attr.Baseline
	for i := range rows {
		rows[i].Start = pos
		pos += rows[i].Value
		rows[i].End = pos
	}
	return rows
}

// Waterfall renders the attribution as a PNG
func Waterfall(attr *explain.Attribution, opts Options) ([]byte, error) {
	if attr == nil || len(attr.Values) == 0 {
		return nil, errors.New("chart: empty attribution")
	}
	rows := Rows(attr, opts.MaxDisplay)

	p := plot.New()
	p.Title.Text = opts.Title
	p.X.Label.Text = fmt.Sprintf("E[f(X)] = %.3f    f(x) = %.3f", attr.Baseline, attr.Prediction)

	labels := make([]string, len(rows))
	marks := plotter.XYLabels{
		XYs:    make(plotter.XYs, len(rows)),
		Labels: make([]string, len(rows)),
	}
	for i, r := range rows {
		labels[i] = r.Label
		y := float64(i)
		bar, err := plotter.NewPolygon(plotter.XYs{
			{X: r.Start, Y: y - 0.35},
			{X: r.End, Y: y - 0.35},
			{X: r.End, Y: y + 0.35},
			{X: r.Start, Y: y + 0.35},
		})
		if err != nil {
			return nil, fmt.Errorf("chart: %w", err)
		}
		bar.LineStyle.Width = 0
		if r.Value >= 0 {
			bar.Color = positiveColor
		} else {
			bar.Color = negativeColor
		}
		p.Add(bar)

		marks.XYs[i] = plotter.XY{X: math.Max(r.Start, r.End), Y: y}
		marks.Labels[i] = fmt.Sprintf(" %+.3f", r.Value)
	}

	values, err := plotter.NewLabels(marks)
	if err != nil {
		return nil, fmt.Errorf("chart: %w", err)
	}
	p.Add(values)

	top := float64(len(rows)) - 0.5
	for _, x := range []float64{attr.Baseline, attr.Prediction} {
		guide, err := plotter.NewLine(plotter.XYs{{X: x, Y: -0.5}, {X: x, Y: top}})
		if err != nil {
			return nil, fmt.Errorf("chart: %w", err)
		}
		guide.Color = guideColor
		guide.Dashes = []vg.Length{vg.Points(3), vg.Points(3)}
		p.Add(guide)
	}

	p.NominalY(labels...)
	p.Y.Min, p.Y.Max = -0.5, top
	p.Add(plotter.NewGrid())

	width := opts.Width
	if width == 0 {
		width = 8 * vg.Inch
	}
	height := vg.Length(len(rows))*0.35*vg.Inch + 1.25*vg.Inch

	w, err := p.WriterTo(width, height, "png")
	if err != nil {
		return nil, fmt.Errorf("chart: %w", err)
	}
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("chart: %w", err)
	}
	return buf.Bytes(), nil
}

// DataURI embeds a PNG for inline display
func DataURI(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
