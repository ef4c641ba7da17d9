package model

import (
	"errors"
	"fmt"
	"math"
)

// Node is one node of a regression tree in array form. Internal nodes send
// x[Feature] <= Threshold to Left and everything else to Right. Leaves have
// Left == Right == -1. Cover is the number (or weight) of training samples
// that reached the node.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
	Cover     float64 `json:"cover"`
}

// Tree is a regression tree rooted at node 0
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// IsLeaf reports whether node i is a leaf
func (t *Tree) IsLeaf(i int) bool {
	return t.Nodes[i].Left < 0
}

// Eval returns the leaf value reached by x
func (t *Tree) Eval(x []float64) float64 {
	i := 0
	for !t.IsLeaf(i) {
		n := t.Nodes[i]
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return t.Nodes[i].Value
}

// ExpectedValue is the cover-weighted mean of the leaf values
func (t *Tree) ExpectedValue() float64 {
	root := t.Nodes[0].Cover
	sum := 0.0
	for i, n := range t.Nodes {
		if t.IsLeaf(i) {
			sum += n.Value * n.Cover / root
		}
	}
	return sum
}

// Validate checks that the node array is a well formed tree over nFeatures
// inputs. Children must have larger indices than their parent, which rules
// out cycles, and every non-root node must have exactly one parent.
func (t *Tree) Validate(nFeatures int) error {
	if t == nil || len(t.Nodes) == 0 {
		return errors.New("tree has no nodes")
	}
	parents := make([]int, len(t.Nodes))
	for i, n := range t.Nodes {
		if !(n.Cover > 0) || math.IsInf(n.Cover, 0) {
			return fmt.Errorf("node %d: cover must be positive", i)
		}
		if math.IsNaN(n.Value) || math.IsInf(n.Value, 0) {
			return fmt.Errorf("node %d: value must be finite", i)
		}
		if n.Left < 0 || n.Right < 0 {
			if n.Left != -1 || n.Right != -1 {
				return fmt.Errorf("node %d: leaf must have left == right == -1", i)
			}
			continue
		}
		if n.Feature < 0 || n.Feature >= nFeatures {
			return fmt.Errorf("node %d: feature %d out of range [0, %d)", i, n.Feature, nFeatures)
		}
		if math.IsNaN(n.Threshold) {
			return fmt.Errorf("node %d: threshold is NaN", i)
		}
		for _, c := range []int{n.Left, n.Right} {
			if c <= i || c >= len(t.Nodes) {
				return fmt.Errorf("node %d: child %d out of range", i, c)
			}
			parents[c]++
		}
		if n.Left == n.Right {
			return fmt.Errorf("node %d: left and right children are the same node", i)
		}
	}
	for i := 1; i < len(parents); i++ {
		if parents[i] != 1 {
			return fmt.Errorf("node %d has %d parents, want 1", i, parents[i])
		}
	}
	return nil
}

// WeightedTree is a tree scaled by a constant factor
type WeightedTree struct {
	Tree   *Tree
	Weight float64
}

// Ensemble is Offset + sum(Weight_t * tree_t(x))
type Ensemble struct {
	Trees  []WeightedTree
	Offset float64
}

// Eval scores a single row
func (e *Ensemble) Eval(x []float64) float64 {
	sum := e.Offset
	for _, wt := range e.Trees {
		sum += wt.Weight * wt.Tree.Eval(x)
	}
	return sum
}

// ExpectedValue is the ensemble output averaged over the training covers
func (e *Ensemble) ExpectedValue() float64 {
	sum := e.Offset
	for _, wt := range e.Trees {
		sum += wt.Weight * wt.Tree.ExpectedValue()
	}
	return sum
}

// Scale multiplies every tree weight and the offset by w
func (e *Ensemble) Scale(w float64) *Ensemble {
	out := &Ensemble{Offset: e.Offset * w, Trees: make([]WeightedTree, len(e.Trees))}
	for i, wt := range e.Trees {
		out.Trees[i] = WeightedTree{Tree: wt.Tree, Weight: wt.Weight * w}
	}
	return out
}

func (e *Ensemble) predict(X [][]float64, nFeatures int) ([]float64, error) {
	if err := checkShape(X, nFeatures); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = e.Eval(row)
	}
	return out, nil
}
