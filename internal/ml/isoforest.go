package ml

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// TreeNode is one node of a serialized isolation tree. Leaves carry the
// number of training rows that reached them; internal nodes split on
// Feature at Threshold.
type TreeNode struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Size      int       `json:"size"`
	Left      *TreeNode `json:"left,omitempty"`
	Right     *TreeNode `json:"right,omitempty"`
}

// leaf reports whether the node terminates a path.
func (n *TreeNode) leaf() bool { return n.Left == nil && n.Right == nil }

// IsolationForest scores rows by how quickly random axis-aligned splits
// isolate them. Trained forests arrive as JSON artifacts; the historical
// scan also fits small forests in-process with a fixed seed.
//
// The decision convention follows the usual one for this family of
// models: ScoreSamples is -2^(-E[h(x)]/c(n)) in [-1, 0), Decision
// subtracts the calibrated offset, and rows with a negative decision
// value are flagged with -1.
type IsolationForest struct {
	Trees      []*TreeNode `json:"trees"`
	SampleSize int         `json:"sample_size"`
	Offset     float64     `json:"offset"`

	numTrees int
	rng      *rand.Rand
}

// NewIsolationForest prepares an empty forest for in-process fitting.
// The seed fixes the subsamples and splits so repeated fits agree.
func NewIsolationForest(numTrees, sampleSize int, seed int64) *IsolationForest {
	return &IsolationForest{
		Trees:      make([]*TreeNode, 0, numTrees),
		SampleSize: sampleSize,
		numTrees:   numTrees,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// Validate checks a forest loaded from an artifact.
func (f *IsolationForest) Validate() error {
	if len(f.Trees) == 0 {
		return fmt.Errorf("isolation forest: no trees")
	}
	if f.SampleSize < 2 {
		return fmt.Errorf("isolation forest: sample size %d", f.SampleSize)
	}
	return nil
}

// Fit builds the forest over data, one random subsample per tree. Tree
// depth is capped at ceil(log2(sample size)).
func (f *IsolationForest) Fit(data [][]float64) error {
	if len(data) == 0 {
		return fmt.Errorf("isolation forest: no training rows")
	}
	if f.rng == nil {
		f.rng = rand.New(rand.NewSource(1))
	}
	if f.numTrees == 0 {
		f.numTrees = 100
	}
	if f.SampleSize > len(data) {
		f.SampleSize = len(data)
	}

	maxDepth := int(math.Ceil(math.Log2(math.Max(float64(f.SampleSize), 2))))
	f.Trees = f.Trees[:0]
	for i := 0; i < f.numTrees; i++ {
		sample := f.sample(data)
		f.Trees = append(f.Trees, f.buildTree(sample, 0, maxDepth))
	}
	return nil
}

// CalibrateOffset sets the decision offset so that roughly contamination
// of the training rows end up with a negative decision value.
func (f *IsolationForest) CalibrateOffset(data [][]float64, contamination float64) {
	scores := make([]float64, len(data))
	for i, x := range data {
		scores[i] = f.ScoreSamples(x)
	}
	sort.Float64s(scores)
	f.Offset = percentile(scores, 100*contamination)
}

// ScoreSamples returns the sample score of x. Values near -1 mean the
// row isolates quickly; dense rows sit near -0.5.
func (f *IsolationForest) ScoreSamples(x []float64) float64 {
	total := 0.0
	for _, tree := range f.Trees {
		total += pathLength(tree, x, 0)
	}
	mean := total / float64(len(f.Trees))
	return -math.Pow(2, -mean/avgPathLength(f.SampleSize))
}

// Decision returns the signed decision value for x. Negative means
// anomalous.
func (f *IsolationForest) Decision(x []float64) float64 {
	return f.ScoreSamples(x) - f.Offset
}

// Predict returns the -1/1 anomaly flag and the decision value for x.
func (f *IsolationForest) Predict(x []float64) (int, float64) {
	d := f.Decision(x)
	if d < 0 {
		return -1, d
	}
	return 1, d
}

// sample draws the per-tree subsample without replacement.
func (f *IsolationForest) sample(data [][]float64) [][]float64 {
	if f.SampleSize >= len(data) {
		out := make([][]float64, len(data))
		copy(out, data)
		return out
	}
	shuffled := make([][]float64, len(data))
	copy(shuffled, data)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := f.rng.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled[:f.SampleSize]
}

// buildTree recursively splits data on a random feature at a random
// value within its range.
func (f *IsolationForest) buildTree(data [][]float64, depth, maxDepth int) *TreeNode {
	if len(data) <= 1 || depth >= maxDepth || allIdentical(data) {
		return &TreeNode{Feature: -1, Size: len(data)}
	}

	feature := f.rng.Intn(len(data[0]))
	lo, hi := featureRange(data, feature)
	split := lo + f.rng.Float64()*(hi-lo)

	left, right := partition(data, feature, split)
	if len(left) == 0 || len(right) == 0 {
		return &TreeNode{Feature: -1, Size: len(data)}
	}

	return &TreeNode{
		Feature:   feature,
		Threshold: split,
		Size:      len(data),
		Left:      f.buildTree(left, depth+1, maxDepth),
		Right:     f.buildTree(right, depth+1, maxDepth),
	}
}

// pathLength walks x down a tree, adding the expected remaining depth at
// the leaf it lands in.
func pathLength(node *TreeNode, x []float64, depth float64) float64 {
	if node.leaf() {
		return depth + avgPathLength(node.Size)
	}
	if x[node.Feature] < node.Threshold {
		return pathLength(node.Left, x, depth+1)
	}
	return pathLength(node.Right, x, depth+1)
}

// avgPathLength is the expected path length of an unsuccessful search in
// a binary search tree over n rows, the standard normalizer c(n).
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	if n == 2 {
		return 1
	}
	// c(n) = 2H(n-1) - 2(n-1)/n with H(m) ~ ln(m) + Euler-Mascheroni
	h := math.Log(float64(n-1)) + 0.5772156649
	return 2*h - 2*float64(n-1)/float64(n)
}

// percentile computes the p-th percentile of sorted values with linear
// interpolation between ranks.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

func allIdentical(data [][]float64) bool {
	first := data[0]
	for _, row := range data[1:] {
		for j := range first {
			if math.Abs(row[j]-first[j]) > 1e-12 {
				return false
			}
		}
	}
	return true
}

func featureRange(data [][]float64, feature int) (float64, float64) {
	lo, hi := data[0][feature], data[0][feature]
	for _, row := range data {
		v := row[feature]
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

func partition(data [][]float64, feature int, split float64) ([][]float64, [][]float64) {
	var left, right [][]float64
	for _, row := range data {
		if row[feature] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	return left, right
}
