package ml

import (
	"math"
	"math/rand"
	"sort"
)

// TreeNode is one node of a CART decision tree. Leaves carry the class
// probability vector observed (with balanced class weights) at fit time.
type TreeNode struct {
	Leaf      bool
	Feature   int
	Threshold float64
	Left      *TreeNode
	Right     *TreeNode
	Probs     []float64
	Class     int
}

// RandomForest is an ensemble of CART trees fit on bootstrapped samples with
// per-node feature subsampling. Class weights are balanced against label
// imbalance and the random source is seeded, so fitting on an identical
// batch yields identical trees.
type RandomForest struct {
	NumTrees   int
	MaxDepth   int
	Seed       int64
	NumClasses int
	Trees      []*TreeNode
}

// NewRandomForest builds an unfitted forest.
func NewRandomForest(numTrees, maxDepth int, seed int64) *RandomForest {
	return &RandomForest{NumTrees: numTrees, MaxDepth: maxDepth, Seed: seed}
}

// Fit trains the forest on feature rows X with integer class labels y in
// [0, numClasses).
func (f *RandomForest) Fit(x [][]float64, y []int, numClasses int) {
	n := len(x)
	if n == 0 {
		return
	}
	d := len(x[0])
	f.NumClasses = numClasses

	// Balanced class weights: n / (k * count(class)).
	counts := make([]float64, numClasses)
	for _, c := range y {
		counts[c]++
	}
	classWeight := make([]float64, numClasses)
	for c := range classWeight {
		if counts[c] > 0 {
			classWeight[c] = float64(n) / (float64(numClasses) * counts[c])
		}
	}

	mtry := int(math.Sqrt(float64(d)))
	if mtry < 1 {
		mtry = 1
	}

	rng := rand.New(rand.NewSource(f.Seed))
	f.Trees = make([]*TreeNode, f.NumTrees)
	for t := 0; t < f.NumTrees; t++ {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = rng.Intn(n)
		}
		f.Trees[t] = f.buildNode(x, y, idx, classWeight, mtry, 0, rng)
	}
}

func weightedCounts(y []int, idx []int, classWeight []float64, numClasses int) []float64 {
	counts := make([]float64, numClasses)
	for _, i := range idx {
		counts[y[i]] += classWeight[y[i]]
	}
	return counts
}

func gini(counts []float64) float64 {
	var total float64
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return 0
	}
	impurity := 1.0
	for _, c := range counts {
		p := c / total
		impurity -= p * p
	}
	return impurity
}

func argmax(vals []float64) int {
	best := 0
	for i, v := range vals {
		if v > vals[best] {
			best = i
		}
	}
	return best
}

func (f *RandomForest) leaf(counts []float64) *TreeNode {
	var total float64
	for _, c := range counts {
		total += c
	}
	probs := make([]float64, len(counts))
	if total > 0 {
		for i, c := range counts {
			probs[i] = c / total
		}
	}
	return &TreeNode{Leaf: true, Probs: probs, Class: argmax(counts)}
}

func (f *RandomForest) buildNode(x [][]float64, y []int, idx []int, classWeight []float64, mtry, depth int, rng *rand.Rand) *TreeNode {
	counts := weightedCounts(y, idx, classWeight, f.NumClasses)
	if depth >= f.MaxDepth || len(idx) < 2 || gini(counts) == 0 {
		return f.leaf(counts)
	}

	d := len(x[0])
	features := rng.Perm(d)[:mtry]

	bestImpurity := math.Inf(1)
	bestFeature := -1
	var bestThreshold float64

	sorted := make([]int, len(idx))
	for _, fi := range features {
		copy(sorted, idx)
		sort.Slice(sorted, func(a, b int) bool { return x[sorted[a]][fi] < x[sorted[b]][fi] })

		left := make([]float64, f.NumClasses)
		right := make([]float64, f.NumClasses)
		copy(right, counts)
		var leftTotal, rightTotal float64
		for _, c := range counts {
			rightTotal += c
		}

		for pos := 0; pos < len(sorted)-1; pos++ {
			i := sorted[pos]
			w := classWeight[y[i]]
			left[y[i]] += w
			leftTotal += w
			right[y[i]] -= w
			rightTotal -= w

			v, next := x[i][fi], x[sorted[pos+1]][fi]
			if v == next {
				continue
			}
			impurity := (leftTotal*gini(left) + rightTotal*gini(right)) / (leftTotal + rightTotal)
			if impurity < bestImpurity {
				bestImpurity = impurity
				bestFeature = fi
				bestThreshold = (v + next) / 2
			}
		}
	}

	if bestFeature < 0 {
		return f.leaf(counts)
	}

	var leftIdx, rightIdx []int
	for _, i := range idx {
		if x[i][bestFeature] <= bestThreshold {
			leftIdx = append(leftIdx, i)
		} else {
			rightIdx = append(rightIdx, i)
		}
	}
	if len(leftIdx) == 0 || len(rightIdx) == 0 {
		return f.leaf(counts)
	}

	return &TreeNode{
		Feature:   bestFeature,
		Threshold: bestThreshold,
		Left:      f.buildNode(x, y, leftIdx, classWeight, mtry, depth+1, rng),
		Right:     f.buildNode(x, y, rightIdx, classWeight, mtry, depth+1, rng),
	}
}

func (t *TreeNode) evaluate(row []float64) *TreeNode {
	node := t
	for !node.Leaf {
		if node.Feature < len(row) && row[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node
}

// PredictProba averages leaf probability vectors across trees (soft voting).
func (f *RandomForest) PredictProba(row []float64) []float64 {
	probs := make([]float64, f.NumClasses)
	if len(f.Trees) == 0 {
		return probs
	}
	for _, tree := range f.Trees {
		leaf := tree.evaluate(row)
		for c, p := range leaf.Probs {
			probs[c] += p
		}
	}
	for c := range probs {
		probs[c] /= float64(len(f.Trees))
	}
	return probs
}

// Predict returns the majority class for one feature row.
func (f *RandomForest) Predict(row []float64) int {
	return argmax(f.PredictProba(row))
}
