package ml

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// IsoNode is one node of an isolation tree. Leaves record how many training
// rows they absorbed so scoring can add the expected remaining path length.
type IsoNode struct {
	Leaf    bool
	Feature int
	Split   float64
	Size    int
	Left    *IsoNode
	Right   *IsoNode
}

// IsolationForest isolates outliers via random axis-aligned partitioning;
// rows that isolate in fewer splits score higher. The decision threshold is
// set at fit time so that roughly Contamination of the training rows are
// flagged.
type IsolationForest struct {
	NumTrees      int
	SubsampleSize int
	Contamination float64
	Seed          int64
	SampleSize    int // actual per-tree sample size used at fit time
	Threshold     float64
	Trees         []*IsoNode
}

// NewIsolationForest builds an unfitted detector with the standard 256-row
// subsample cap.
func NewIsolationForest(numTrees int, contamination float64, seed int64) *IsolationForest {
	return &IsolationForest{
		NumTrees:      numTrees,
		SubsampleSize: 256,
		Contamination: contamination,
		Seed:          seed,
	}
}

const eulerMascheroni = 0.5772156649015329

// avgPathLength is the expected path length of an unsuccessful BST search
// over n rows, the normalizing constant of the isolation forest score.
func avgPathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		fn := float64(n)
		return 2*(math.Log(fn-1)+eulerMascheroni) - 2*(fn-1)/fn
	}
}

// Fit grows the trees on row subsamples and derives the score threshold from
// the training-score distribution.
func (f *IsolationForest) Fit(x [][]float64) {
	n := len(x)
	if n == 0 {
		return
	}
	sample := f.SubsampleSize
	if sample > n {
		sample = n
	}
	f.SampleSize = sample
	heightLimit := int(math.Ceil(math.Log2(float64(sample))))
	if heightLimit < 1 {
		heightLimit = 1
	}

	rng := rand.New(rand.NewSource(f.Seed))
	f.Trees = make([]*IsoNode, f.NumTrees)
	for t := 0; t < f.NumTrees; t++ {
		idx := rng.Perm(n)[:sample]
		f.Trees[t] = buildIsoNode(x, idx, 0, heightLimit, rng)
	}

	scores := make([]float64, n)
	for i, row := range x {
		scores[i] = f.Score(row)
	}
	sort.Float64s(scores)
	f.Threshold = stat.Quantile(1-f.Contamination, stat.Empirical, scores, nil)
}

func buildIsoNode(x [][]float64, idx []int, depth, limit int, rng *rand.Rand) *IsoNode {
	if len(idx) <= 1 || depth >= limit {
		return &IsoNode{Leaf: true, Size: len(idx)}
	}

	d := len(x[0])
	type span struct {
		feature  int
		min, max float64
	}
	var eligible []span
	for fi := 0; fi < d; fi++ {
		lo, hi := x[idx[0]][fi], x[idx[0]][fi]
		for _, i := range idx[1:] {
			v := x[i][fi]
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if hi > lo {
			eligible = append(eligible, span{fi, lo, hi})
		}
	}
	if len(eligible) == 0 {
		return &IsoNode{Leaf: true, Size: len(idx)}
	}

	chosen := eligible[rng.Intn(len(eligible))]
	split := chosen.min + rng.Float64()*(chosen.max-chosen.min)

	var left, right []int
	for _, i := range idx {
		if x[i][chosen.feature] < split {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &IsoNode{Leaf: true, Size: len(idx)}
	}

	return &IsoNode{
		Feature: chosen.feature,
		Split:   split,
		Left:    buildIsoNode(x, left, depth+1, limit, rng),
		Right:   buildIsoNode(x, right, depth+1, limit, rng),
	}
}

func pathLength(node *IsoNode, row []float64) float64 {
	depth := 0.0
	for !node.Leaf {
		if node.Feature < len(row) && row[node.Feature] < node.Split {
			node = node.Left
		} else {
			node = node.Right
		}
		depth++
	}
	return depth + avgPathLength(node.Size)
}

// Score returns the anomaly score in (0, 1); higher means more isolated.
func (f *IsolationForest) Score(row []float64) float64 {
	if len(f.Trees) == 0 {
		return 0
	}
	var total float64
	for _, tree := range f.Trees {
		total += pathLength(tree, row)
	}
	avg := total / float64(len(f.Trees))
	return math.Pow(2, -avg/avgPathLength(f.SampleSize))
}

// IsOutlier reports whether the row scores at or above the fitted threshold.
func (f *IsolationForest) IsOutlier(row []float64) bool {
	return f.Score(row) >= f.Threshold
}
