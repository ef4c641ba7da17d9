package explain

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/combin"

	"github.com/ZanzyTHEbar/stacking-predict/internal/model"
)

// KernelExplainer estimates SHAP values for any model by scoring feature
// coalitions against a background sample and solving a weighted linear
// regression over the coalition masks.
type KernelExplainer struct {
	Background [][]float64
	Samples    int
	Seed       int64
}

// NewKernelExplainer copies the background rows
func NewKernelExplainer(background [][]float64, samples int, seed int64) *KernelExplainer {
	bg := make([][]float64, len(background))
	for i, row := range background {
		bg[i] = append([]float64(nil), row...)
	}
	return &KernelExplainer{Background: bg, Samples: samples, Seed: seed}
}

func (*KernelExplainer) Method() Method { return MethodKernel }

// coalitions holds the sampled masks over the varying features and their
// kernel weights.
type coalitions struct {
	masks   [][]bool
	weights []float64
	index   map[string]int
}

func (c *coalitions) add(mask []bool, w float64) {
	key := maskKey(mask)
	if i, ok := c.index[key]; ok {
		c.weights[i] += w
		return
	}
	c.index[key] = len(c.masks)
	c.masks = append(c.masks, append([]bool(nil), mask...))
	c.weights = append(c.weights, w)
}

func maskKey(mask []bool) string {
	b := make([]byte, len(mask))
	for i, on := range mask {
		if on {
			b[i] = 1
		}
	}
	return string(b)
}

// Shap returns a flat slice of values and the mean model output over the
// background.
func (k *KernelExplainer) Shap(m model.Predictor, x []float64) (values any, baseline float64, err error) {
	if len(k.Background) == 0 {
		return nil, 0, errors.New("kernel explainer has no background rows")
	}
	for i, row := range k.Background {
		if len(row) != len(x) {
			return nil, 0, fmt.Errorf("background row %d has %d columns, want %d", i, len(row), len(x))
		}
	}

	fx, err := predictOne(m, x)
	if err != nil {
		return nil, 0, err
	}
	bgPreds, err := m.Predict(k.Background)
	if err != nil {
		return nil, 0, err
	}
	fnull := mean(bgPreds)

	phi := make([]float64, len(x))

	// Features equal to x in every background row cannot move the output
	varying := make([]int, 0, len(x))
	for j := range x {
		for _, row := range k.Background {
			if row[j] != x[j] {
				varying = append(varying, j)
				break
			}
		}
	}

	switch len(varying) {
	case 0:
		return phi, fnull, nil
	case 1:
		phi[varying[0]] = fx - fnull
		return phi, fnull, nil
	}

	c := k.sample(len(varying))
	ey, err := k.evaluate(m, x, varying, c.masks)
	if err != nil {
		return nil, 0, err
	}

	solved, err := solve(c, ey, fx, fnull)
	if err != nil {
		return nil, 0, err
	}
	for i, j := range varying {
		phi[j] = solved[i]
	}
	return phi, fnull, nil
}

// budget returns the number of coalitions to evaluate for M features
func (k *KernelExplainer) budget(M int) int {
	n := k.Samples
	if n <= 0 {
		n = 2*M + 2048
	}
	n = max(n, MinSamples(M))
	if M < 31 {
		if full := 1<<M - 2; n > full {
			n = full
		}
	}
	return n
}

// MinSamples is the smallest budget for M features that still enumerates
// every single-feature coalition and its complement, which keeps the
// regression full rank.
func MinSamples(M int) int {
	if M < 2 {
		return 0
	}
	weights := sizeWeights(M)
	nSubsets := float64(M)
	if (M-1)/2 >= 1 {
		nSubsets *= 2
	}
	return int(math.Ceil(nSubsets / weights[0]))
}

// sizeWeights returns the normalised kernel weight of each coalition size
// 1..M/2, with sizes below M/2 counting their complements too.
func sizeWeights(M int) []float64 {
	nPaired := (M - 1) / 2
	weights := make([]float64, M/2)
	total := 0.0
	for i := range weights {
		s := float64(i + 1)
		weights[i] = float64(M-1) / (s*float64(M) - s*s)
		if i < nPaired {
			weights[i] *= 2
		}
		total += weights[i]
	}
	for i := range weights {
		weights[i] /= total
	}
	return weights
}

// sample enumerates whole coalition sizes (smallest and largest first) while
// the budget covers them and fills the rest by seeded random draws.
func (k *KernelExplainer) sample(M int) *coalitions {
	nSamples := k.budget(M)
	c := &coalitions{index: make(map[string]int)}

	nSizes := M / 2
	nPaired := (M - 1) / 2
	weights := sizeWeights(M)

	remaining := append([]float64(nil), weights...)
	left := nSamples
	full := 0
	mask := make([]bool, M)

	for size := 1; size <= nSizes; size++ {
		paired := size <= nPaired
		nSubsets := float64(combin.Binomial(M, size))
		if paired {
			nSubsets *= 2
		}
		if float64(left)*remaining[size-1]/nSubsets < 1-1e-8 {
			break
		}
		full++
		left -= int(nSubsets)
		if remaining[size-1] < 1 {
			scale := 1 - remaining[size-1]
			for i := range remaining {
				remaining[i] /= scale
			}
		}

		w := weights[size-1] / float64(combin.Binomial(M, size))
		if paired {
			w /= 2
		}
		gen := combin.NewCombinationGenerator(M, size)
		idx := make([]int, size)
		for gen.Next() {
			gen.Combination(idx)
			for i := range mask {
				mask[i] = false
			}
			for _, j := range idx {
				mask[j] = true
			}
			c.add(mask, w)
			if paired {
				for i := range mask {
					mask[i] = !mask[i]
				}
				c.add(mask, w)
			}
		}
	}

	fixed := len(c.masks)
	left = nSamples - fixed
	if full == nSizes || left <= 0 {
		return c
	}

	rest := append([]float64(nil), weights[full:]...)
	restTotal := 0.0
	for _, w := range rest {
		restTotal += w
	}
	cdf := make([]float64, len(rest))
	acc := 0.0
	for i, w := range rest {
		acc += w / restTotal
		cdf[i] = acc
	}

	rng := rand.New(rand.NewPCG(uint64(k.Seed), uint64(M)))
	for draws := 0; left > 0 && draws < 4*nSamples; draws++ {
		u := rng.Float64()
		pick := len(cdf) - 1
		for i, p := range cdf {
			if u < p {
				pick = i
				break
			}
		}
		size := pick + full + 1

		for i := range mask {
			mask[i] = false
		}
		for _, j := range rng.Perm(M)[:size] {
			mask[j] = true
		}
		before := len(c.masks)
		c.add(mask, 1)
		if len(c.masks) > before {
			left--
		}
		if left > 0 && size <= nPaired {
			for i := range mask {
				mask[i] = !mask[i]
			}
			before = len(c.masks)
			c.add(mask, 1)
			if len(c.masks) > before {
				left--
			}
		}
	}

	// Random draws share whatever kernel weight the enumerated sizes left
	sampled := 0.0
	for _, w := range c.weights[fixed:] {
		sampled += w
	}
	if sampled > 0 {
		for i := fixed; i < len(c.weights); i++ {
			c.weights[i] *= restTotal / sampled
		}
	}
	return c
}

// evaluate returns the expected model output for each coalition, with the
// features outside the coalition drawn from the background.
func (k *KernelExplainer) evaluate(m model.Predictor, x []float64, varying []int, masks [][]bool) ([]float64, error) {
	nBg := len(k.Background)
	batch := make([][]float64, 0, len(masks)*nBg)
	for _, mask := range masks {
		for _, row := range k.Background {
			synth := append([]float64(nil), row...)
			for i, j := range varying {
				if mask[i] {
					synth[j] = x[j]
				}
			}
			batch = append(batch, synth)
		}
	}

	preds, err := m.Predict(batch)
	if err != nil {
		return nil, err
	}
	if len(preds) != len(batch) {
		return nil, fmt.Errorf("model returned %d predictions for %d rows", len(preds), len(batch))
	}

	ey := make([]float64, len(masks))
	for i := range masks {
		ey[i] = mean(preds[i*nBg : (i+1)*nBg])
	}
	return ey, nil
}

// solve fits the weighted least squares problem with the efficiency
// constraint sum(phi) == fx - fnull eliminated through the last feature.
func solve(c *coalitions, ey []float64, fx, fnull float64) ([]float64, error) {
	M := len(c.masks[0])
	n := len(c.masks)
	last := M - 1
	delta := fx - fnull

	X := mat.NewDense(n, last, nil)
	y := mat.NewVecDense(n, nil)
	for r, mask := range c.masks {
		zl := b2f(mask[last])
		for j := 0; j < last; j++ {
			X.Set(r, j, b2f(mask[j])-zl)
		}
		y.SetVec(r, ey[r]-fnull-zl*delta)
	}

	// Normal equations: (X'WX) phi = X'Wy
	var WX mat.Dense
	WX.Apply(func(i, _ int, v float64) float64 { return v * c.weights[i] }, X)
	var A mat.Dense
	A.Mul(X.T(), &WX)
	var b mat.VecDense
	b.MulVec(WX.T(), y)

	var sol mat.VecDense
	if err := sol.SolveVec(&A, &b); err != nil {
		var cond mat.Condition
		if errors.As(err, &cond) {
			return nil, fmt.Errorf("%d coalitions for %d features (condition %g): %w", n, M, float64(cond), ErrRankDeficient)
		}
		return nil, fmt.Errorf("weighted least squares: %w", err)
	}

	phi := make([]float64, M)
	sum := 0.0
	for j := 0; j < last; j++ {
		phi[j] = sol.AtVec(j)
		if math.IsNaN(phi[j]) || math.IsInf(phi[j], 0) {
			return nil, errors.New("weighted least squares produced non-finite values")
		}
		sum += phi[j]
	}
	phi[last] = delta - sum
	return phi, nil
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	sum := 0.0
	for _, f := range v {
		sum += f
	}
	return sum / float64(len(v))
}
