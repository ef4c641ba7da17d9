package frontend

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/stacking-predict/internal/analysis"
	"github.com/ZanzyTHEbar/stacking-predict/internal/chart"
	"github.com/ZanzyTHEbar/stacking-predict/internal/explain"
	"github.com/ZanzyTHEbar/stacking-predict/internal/schema"
)

const pageTitle = "Stacking model prediction and SHAP analysis"

// LoadIndexTemplate parses index.html from the embedded filesystem
func LoadIndexTemplate(templates fs.FS) (*template.Template, error) {
	tmpl, err := template.ParseFS(templates, "index.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	return tmpl, nil
}

type pageData struct {
	Nonce    string
	Title    string
	Fields   []fieldView
	Result   *resultView
	Error    string
	Warnings []string
	Figures  []figureView
}

type fieldView struct {
	Name    string
	Label   string
	Numeric bool
	Min     string
	Max     string
	Step    string
	Value   string
	Options []optionView
}

type optionView struct {
	Value    string
	Selected bool
}

type resultView struct {
	Prediction       string
	Baseline         string
	Method           explain.Method
	Fallback         bool
	Chart            template.URL
	Contributors     []contributorView
	ExplanationError string
}

type contributorView struct {
	Feature  string
	Data     string
	Value    string
	Positive bool
}

type figureView struct {
	URL     string
	Caption string
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// fieldViews renders the form. Submitted values win over defaults so a
// rejected form keeps what the user typed.
func fieldViews(c *schema.Catalogue, submitted map[string]string) []fieldView {
	fields := c.Fields()
	out := make([]fieldView, 0, len(fields))
	for _, f := range fields {
		v := fieldView{Name: f.Name, Label: f.Label}
		raw, ok := submitted[f.Name]
		if f.Numeric != nil {
			v.Numeric = true
			v.Min = formatFloat(f.Numeric.Min)
			v.Max = formatFloat(f.Numeric.Max)
			v.Step = f.Step()
			v.Value = formatFloat(f.Numeric.Default)
			if ok {
				v.Value = raw
			}
		} else {
			selected := f.Categorical.Default
			if ok {
				selected = raw
			}
			for _, opt := range f.Categorical.Options {
				v.Options = append(v.Options, optionView{Value: opt, Selected: opt == selected})
			}
		}
		out = append(out, v)
	}
	return out
}

func newResultView(result *analysis.Result, chartURI string) *resultView {
	rv := &resultView{Prediction: fmt.Sprintf("%.2f", result.Prediction)}
	if result.ExplanationError != nil {
		rv.ExplanationError = result.ExplanationError.Error()
	}
	if attr := result.Attribution; attr != nil {
		rv.Baseline = fmt.Sprintf("%.3f", attr.Baseline)
		rv.Method = attr.Method
		rv.Fallback = attr.Fallback
		rv.Chart = template.URL(chartURI) // produced by chart.DataURI
		for _, ctb := range analysis.RankContributors(attr) {
			rv.Contributors = append(rv.Contributors, contributorView{
				Feature:  ctb.Feature,
				Data:     strconv.FormatFloat(ctb.Data, 'g', 4, 64),
				Value:    fmt.Sprintf("%+.3f", ctb.Contribution),
				Positive: ctb.Contribution >= 0,
			})
		}
	}
	return rv
}

// renderChart returns the waterfall as a data URI, or "" when it could not
// be drawn.
func renderChart(attr *explain.Attribution, maxDisplay int) (string, error) {
	if attr == nil {
		return "", nil
	}
	png, err := chart.Waterfall(attr, chart.Options{MaxDisplay: maxDisplay})
	if err != nil {
		return "", err
	}
	return chart.DataURI(png), nil
}

// RenderPage renders the index template with the given status
func RenderPage(c *gin.Context, tmpl *template.Template, status int, data pageData) error {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")

	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
	return nil
}
