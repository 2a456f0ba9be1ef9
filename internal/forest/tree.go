package forest

import (
	"math"
	"math/rand"
	"sort"
)

const leaf = -1

// Node is one entry of a tree's flat node table. Leaves have Feature == -1.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v"`
}

// Tree is a CART regression tree stored as a node table rooted at index 0
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature == leaf {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

func (t *Tree) depth() int {
	var walk func(i int) int
	walk = func(i int) int {
		n := t.Nodes[i]
		if n.Feature == leaf {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	return walk(0)
}

type treeBuilder struct {
	x      [][]float64
	y      []float64
	params Params
	rng    *rand.Rand
	nodes  []Node
	order  []int
}

func buildTree(x [][]float64, y []float64, samples []int, params Params, rng *rand.Rand) Tree {
	b := &treeBuilder{
		x:      x,
		y:      y,
		params: params,
		rng:    rng,
		order:  make([]int, len(x[0])),
	}
	for i := range b.order {
		b.order[i] = i
	}
	b.grow(samples, 0)
	return Tree{Nodes: b.nodes}
}

// grow appends the subtree for samples and returns its root index
func (b *treeBuilder) grow(samples []int, depth int) int {
	idx := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: leaf, Value: b.mean(samples)})

	if len(samples) < b.params.MinSamplesSplit || len(samples) < 2*b.params.MinSamplesLeaf {
		return idx
	}
	if b.params.MaxDepth > 0 && depth >= b.params.MaxDepth {
		return idx
	}
	if b.pure(samples) {
		return idx
	}

	feature, threshold, ok := b.bestSplit(samples)
	if !ok {
		return idx
	}

	left := make([]int, 0, len(samples))
	right := make([]int, 0, len(samples))
	for _, s := range samples {
		if b.x[s][feature] <= threshold {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[idx] = Node{Feature: feature, Threshold: threshold, Left: l, Right: r, Value: b.nodes[idx].Value}
	return idx
}

func (b *treeBuilder) mean(samples []int) float64 {
	if len(samples) == 0 {
		return 0
	}
	s := 0.0
	for _, i := range samples {
		s += b.y[i]
	}
	return s / float64(len(samples))
}

func (b *treeBuilder) pure(samples []int) bool {
	first := b.y[samples[0]]
	for _, i := range samples[1:] {
		if b.y[i] != first {
			return false
		}
	}
	return true
}

// candidates returns the features tried at one split
func (b *treeBuilder) candidates() []int {
	k := int(math.Ceil(b.params.MaxFeatures * float64(len(b.order))))
	if k >= len(b.order) {
		return b.order
	}
	if k < 1 {
		k = 1
	}
	b.rng.Shuffle(len(b.order), func(i, j int) { b.order[i], b.order[j] = b.order[j], b.order[i] })
	return b.order[:k]
}

// bestSplit finds the threshold minimising the summed squared error of both
// children
func (b *treeBuilder) bestSplit(samples []int) (int, float64, bool) {
	n := len(samples)
	minLeaf := b.params.MinSamplesLeaf

	totalSum, totalSq := 0.0, 0.0
	for _, s := range samples {
		totalSum += b.y[s]
		totalSq += b.y[s] * b.y[s]
	}

	bestFeature, bestThreshold := -1, 0.0
	bestSSE := math.Inf(1)

	sorted := make([]int, n)
	for _, f := range b.candidates() {
		copy(sorted, samples)
		sort.Slice(sorted, func(i, j int) bool { return b.x[sorted[i]][f] < b.x[sorted[j]][f] })

		leftSum, leftSq := 0.0, 0.0
		for i := 0; i < n-1; i++ {
			v := b.y[sorted[i]]
			leftSum += v
			leftSq += v * v

			nl := i + 1
			nr := n - nl
			if nl < minLeaf || nr < minLeaf {
				continue
			}
			cur, next := b.x[sorted[i]][f], b.x[sorted[i+1]][f]
			if cur == next {
				continue
			}

			rightSum := totalSum - leftSum
			rightSq := totalSq - leftSq
			sse := (leftSq - leftSum*leftSum/float64(nl)) + (rightSq - rightSum*rightSum/float64(nr))
			if sse < bestSSE {
				bestSSE = sse
				bestFeature = f
				bestThreshold = cur + (next-cur)/2
				// midpoint can round up to next for adjacent floats
				if bestThreshold >= next {
					bestThreshold = cur
				}
			}
		}
	}

	if bestFeature < 0 {
		return 0, 0, false
	}
	return bestFeature, bestThreshold, true
}
