package chart

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/stacking-predict/internal/explain"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func sampleAttribution(n int) *explain.Attribution {
	attr := &explain.Attribution{Method: explain.MethodKernel, Baseline: 10}
	sum := 0.0
	for i := 0; i < n; i++ {
		v := float64(i+1) * 0.1
		if i%2 == 1 {
			v = -v
		}
		sum += v
		attr.Values = append(attr.Values, explain.Contribution{
			Feature: fmt.Sprintf("f%d", i),
			Value:   v,
			Data:    float64(i),
		})
	}
	attr.Prediction = attr.Baseline + sum
	return attr
}

func TestRows_Cumulative(t *testing.T) {
	attr := sampleAttribution(5)
	rows := Rows(attr, 0)
	require.Len(t, rows, 5)

	assert.InDelta(t, attr.Baseline, rows[0].Start, 1e-12)
	assert.InDelta(t, attr.Prediction, rows[len(rows)-1].End, 1e-12)
	for i := 1; i < len(rows); i++ {
		assert.InDelta(t, rows[i-1].End, rows[i].Start, 1e-12)
	}

	// Largest on top
	assert.Equal(t, "4 = f4", rows[4].Label)
	assert.Equal(t, "0 = f0", rows[0].Label)
}

func TestRows_CollapsesExtraFeatures(t *testing.T) {
	attr := sampleAttribution(18)
	rows := Rows(attr, 5)
	require.Len(t, rows, 5)

	assert.Equal(t, "14 other features", rows[0].Label)
	assert.InDelta(t, attr.Prediction, rows[4].End, 1e-9)
	assert.True(t, strings.HasSuffix(rows[4].Label, "f17"))
}

func TestWaterfall_RendersPNG(t *testing.T) {
	tests := []struct {
		name string
		attr *explain.Attribution
		opts Options
	}{
		{name: "all features", attr: sampleAttribution(18)},
		{name: "collapsed", attr: sampleAttribution(18), opts: Options{MaxDisplay: 6, Title: "collapsed"}},
		{name: "single feature", attr: sampleAttribution(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			png, err := Waterfall(tt.attr, tt.opts)
			require.NoError(t, err)
			assert.True(t, bytes.HasPrefix(png, pngMagic))
			assert.True(t, strings.HasPrefix(DataURI(png), "data:image/png;base64,iVBOR"))
		})
	}
}

func TestWaterfall_Empty(t *testing.T) {
	_, err := Waterfall(nil, Options{})
	assert.Error(t, err)
	_, err = Waterfall(&explain.Attribution{}, Options{})
	assert.Error(t, err)
}
