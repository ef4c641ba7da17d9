package explain

import (
	"fmt"

	"github.com/ZanzyTHEbar/stacking-predict/internal/model"
)

// TreeExplainer computes exact path-dependent TreeSHAP values for models
// that expose a tree ensemble.
type TreeExplainer struct{}

func (*TreeExplainer) Method() Method { return MethodTree }

// Shap returns one row of values per model output and the cover-weighted
// expected value of the ensemble.
func (*TreeExplainer) Shap(m model.Predictor, x []float64) (values any, baseline float64, err error) {
	tm, ok := m.(model.TreeModel)
	if !ok {
		return nil, 0, fmt.Errorf("%s model has no tree structure: %w", model.Kind(m), model.ErrUnsupportedModel)
	}
	ens, err := tm.TreeEnsemble()
	if err != nil {
		return nil, 0, err
	}

	for i, wt := range ens.Trees {
		if err := wt.Tree.Validate(len(x)); err != nil {
			return nil, 0, fmt.Errorf("tree %d: %w", i, err)
		}
	}

	phi := make([]float64, len(x))
	for _, wt := range ens.Trees {
		treeShap(wt.Tree, x, phi, wt.Weight)
	}
	return [][]float64{phi}, ens.ExpectedValue(), nil
}

// pathElem tracks one feature on the current root-to-node path: the
// fraction of zero paths (cover ratio) and one paths (x agrees with the
// split) flowing through it, plus the permutation weight.
type pathElem struct {
	d int
	z float64
	o float64
	w float64
}

func treeShap(t *model.Tree, x, phi []float64, scale float64) {
	recurse(t, x, phi, scale, 0, nil, 1, 1, -1)
}

func recurse(t *model.Tree, x, phi []float64, scale float64, j int, m []pathElem, pz, po float64, pi int) {
	m = extend(m, pz, po, pi)
	node := t.Nodes[j]

	if t.IsLeaf(j) {
		for i := 1; i < len(m); i++ {
			u := unwind(m, i)
			sum := 0.0
			for _, e := range u {
				sum += e.w
			}
			phi[m[i].d] += sum * (m[i].o - m[i].z) * node.Value * scale
		}
		return
	}

	hot, cold := node.Left, node.Right
	if x[node.Feature] > node.Threshold {
		hot, cold = cold, hot
	}

	iz, io := 1.0, 1.0
	for k := 1; k < len(m); k++ {
		if m[k].d == node.Feature {
			iz, io = m[k].z, m[k].o
			m = unwind(m, k)
			break
		}
	}

	recurse(t, x, phi, scale, hot, m, iz*t.Nodes[hot].Cover/node.Cover, io, node.Feature)
	recurse(t, x, phi, scale, cold, m, iz*t.Nodes[cold].Cover/node.Cover, 0, node.Feature)
}

func extend(m []pathElem, pz, po float64, pi int) []pathElem {
	l := len(m)
	out := make([]pathElem, l+1)
	copy(out, m)
	w := 0.0
	if l == 0 {
		w = 1
	}
	out[l] = pathElem{d: pi, z: pz, o: po, w: w}
	for i := l - 1; i >= 0; i-- {
		out[i+1].w += po * out[i].w * float64(i+1) / float64(l+1)
		out[i].w = pz * out[i].w * float64(l-i) / float64(l+1)
	}
	return out
}

// unwind undoes extend for element i and returns the shortened path
func unwind(m []pathElem, i int) []pathElem {
	l := len(m) - 1
	o, z := m[i].o, m[i].z
	n := m[l].w

	out := make([]pathElem, l)
	copy(out, m[:l])
	for j := l - 1; j >= 0; j-- {
		if o != 0 {
			t := out[j].w
			out[j].w = n * float64(l+1) / (float64(j+1) * o)
			n = t - out[j].w*z*float64(l-j)/float64(l+1)
		} else {
			out[j].w = out[j].w * float64(l+1) / (z * float64(l-j))
		}
	}
	for j := i; j < l; j++ {
		out[j].d, out[j].z, out[j].o = m[j+1].d, m[j+1].z, m[j+1].o
	}
	return out
}
