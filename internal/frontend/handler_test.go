package frontend

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/stacking-predict/internal/analysis"
	"github.com/ZanzyTHEbar/stacking-predict/internal/cache"
	"github.com/ZanzyTHEbar/stacking-predict/internal/explain"
	"github.com/ZanzyTHEbar/stacking-predict/internal/model"
	"github.com/ZanzyTHEbar/stacking-predict/internal/schema"
	"github.com/ZanzyTHEbar/stacking-predict/internal/security"
)

type stubPipeline struct {
	result *analysis.Result
	err    error
}

func (stubPipeline) Catalogue() *schema.Catalogue { return schema.Default() }

func (s stubPipeline) Analyze(schema.Values) (*analysis.Result, error) {
	return s.result, s.err
}

func newAnalyzer(t *testing.T) *analysis.Analyzer {
	t.Helper()
	artifact, err := model.LoadArtifact(filepath.Join("..", "..", "models", "stacking_regressor.json"))
	require.NoError(t, err)
	a, err := analysis.NewAnalyzer(schema.Default(), artifact, explain.Options{Seed: 7}, nil)
	require.NoError(t, err)
	return a
}

func setupPage(t *testing.T, p Pipeline, opts Options) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h, err := NewHandler(p, opts)
	require.NoError(t, err)

	r := gin.New()
	r.Use(security.CSPMiddleware(security.CSPConfig{}))
	h.Register(r)
	return r
}

func defaultForm() url.Values {
	form := url.Values{}
	for name, v := range schema.Default().Defaults() {
		form.Set(name, fmt.Sprint(v))
	}
	return form
}

func postForm(r *gin.Engine, form url.Values) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/predict", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.ServeHTTP(w, req)
	return w
}

func TestIndex_RendersForm(t *testing.T) {
	r := setupPage(t, stubPipeline{}, Options{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	body := w.Body.String()

	for _, name := range schema.Default().FeatureNames() {
		assert.Contains(t, body, `name="`+name+`"`)
	}
	assert.Contains(t, body, `<input type="number" id="Age" name="Age" min="21" max="63" step="1" value="21" required>`)
	assert.Contains(t, body, `<option value="No" selected>No</option>`, "Medical_insurance defaults to No")
	assert.NotContains(t, body, "Predicted value")

	policy := w.Header().Get("Content-Security-Policy")
	start := strings.Index(policy, "'nonce-") + len("'nonce-")
	nonce := policy[start : start+strings.Index(policy[start:], "'")]
	assert.Contains(t, body, `<style nonce="`+nonce+`">`)
}

func TestPredict_RendersResult(t *testing.T) {
	a := newAnalyzer(t)
	r := setupPage(t, a, Options{})

	expected, err := a.Analyze(schema.Default().Defaults())
	require.NoError(t, err)

	w := postForm(r, defaultForm())
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()

	assert.Contains(t, body, fmt.Sprintf("Predicted value: %.2f", expected.Prediction))
	assert.Contains(t, body, `src="data:image/png;base64,`)
	assert.Contains(t, body, "kernel explainer")
	assert.Equal(t, 18, strings.Count(body, `<td class="num `))
	assert.NotContains(t, body, `class="error"`)
}

func TestPredict_InvalidInput(t *testing.T) {
	r := setupPage(t, newAnalyzer(t), Options{})

	tests := []struct {
		name     string
		mutate   func(url.Values)
		contains string
	}{
		{name: "age out of range", mutate: func(f url.Values) { f.Set("Age", "64") }, contains: "64 is outside [21, 63]"},
		{name: "not a number", mutate: func(f url.Values) { f.Set("Anxiety", "high") }, contains: "is not a number"},
		{name: "fractional integer", mutate: func(f url.Values) { f.Set("Resilience", "18.5") }, contains: "not a whole number"},
		{name: "unknown option", mutate: func(f url.Values) { f.Set("Occupation", "Retired") }, contains: "is not one of"},
		{name: "missing field", mutate: func(f url.Values) { f.Del("Rooming_in") }, contains: "missing value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := defaultForm()
			tt.mutate(form)
			w := postForm(r, form)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			body := w.Body.String()
			assert.Equal(t, 1, strings.Count(body, `class="error"`))
			assert.Contains(t, body, tt.contains)
			assert.NotContains(t, body, "Predicted value")
		})
	}

	// The rejected value is kept in the form
	form := defaultForm()
	form.Set("Age", "64")
	assert.Contains(t, postForm(r, form).Body.String(), `name="Age" min="21" max="63" step="1" value="64"`)
}

func TestPredict_ExplanationFailureKeepsPrediction(t *testing.T) {
	result := &analysis.Result{
		Prediction:       12.345,
		ExplanationError: &explain.ExplanationError{Method: explain.MethodKernel, Cause: errors.New("solver diverged")},
	}
	r := setupPage(t, stubPipeline{result: result}, Options{})

	w := postForm(r, defaultForm())
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Predicted value: 12.35")
	assert.Contains(t, body, "Explanation unavailable: kernel explanation failed: solver diverged")
	assert.NotContains(t, body, "data:image/png")
}

func TestPredict_PredictionFailure(t *testing.T) {
	r := setupPage(t, stubPipeline{err: &model.PredictionError{Cause: errors.New("boom")}}, Options{})

	w := postForm(r, defaultForm())
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Prediction failed.")
	assert.NotContains(t, body, "boom")
}

func TestFigures(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "overall_contribution.png")
	require.NoError(t, os.WriteFile(present, []byte("\x89PNG\r\n\x1a\n"), 0o644))
	missing := filepath.Join(dir, "base_learners.png")

	r := setupPage(t, stubPipeline{}, Options{FigurePaths: []string{present, missing}})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `<img src="/figures/0" alt="overall_contribution">`)
	assert.Contains(t, body, "base_learners.png")
	assert.Contains(t, body, "was not found.")
	assert.NotContains(t, body, "/figures/1")

	tests := []struct {
		path   string
		status int
	}{
		{"/figures/0", http.StatusOK},
		{"/figures/1", http.StatusNotFound},
		{"/figures/2", http.StatusNotFound},
		{"/figures/-1", http.StatusNotFound},
		{"/figures/abc", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", tt.path, nil)
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestFigures_Cached(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "beeswarm.png")
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG\r\n\x1a\nfirst"), 0o644))

	figures := cache.New[[]byte](time.Minute, 1)
	r := setupPage(t, stubPipeline{}, Options{FigurePaths: []string{path}, FigureCache: figures})

	get := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/figures/0", nil)
		r.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 2; i++ {
		w := get()
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
		assert.True(t, strings.HasSuffix(w.Body.String(), "first"))
	}
	assert.Equal(t, int64(1), figures.Stats()["hits"])

	// A rewritten file is served fresh
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG\r\n\x1a\nsecond"), 0o644))
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))
	w := get()
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasSuffix(w.Body.String(), "second"))
	assert.Equal(t, 1, figures.Size())

	require.NoError(t, os.Remove(path))
	assert.Equal(t, http.StatusNotFound, get().Code)
}
