package prognostic

import (
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/causalgo/augsynth/core/parallel"
	"github.com/causalgo/augsynth/pkg/errors"
	"github.com/causalgo/augsynth/pkg/log"
)

// RFOptions configures the random forest backend.
type RFOptions struct {
	// NTrees is the ensemble size. Default 100.
	NTrees int
	// MaxDepth caps tree depth; 0 means unlimited.
	MaxDepth int
	// MinLeaf is the minimum samples per leaf. Default 3.
	MinLeaf int
	// MTry is the number of features tried per split; 0 means p/3 (at
	// least 1).
	MTry int
	// Seed drives bootstrap and feature sampling. Default 42.
	Seed int
	// Avg stacks all post-periods into a single regression.
	Avg bool
}

func (o *RFOptions) defaults() {
	if o.NTrees <= 0 {
		o.NTrees = 100
	}
	if o.MinLeaf <= 0 {
		o.MinLeaf = 3
	}
	if o.Seed == 0 {
		o.Seed = 42
	}
}

// RandomForest is the nonparametric outcome model: a bootstrap ensemble of
// variance-reduction regression trees fit on control rows, per post-period
// or stacked, predicting control outcomes for all units. Params carries
// impurity-decrease feature importances concatenated across periods.
type RandomForest struct {
	Opts RFOptions
}

// Fit implements the Model contract.
func (f RandomForest) Fit(X, Y *mat.Dense, trt []bool) (*Fit, error) {
	opts := f.Opts
	opts.defaults()

	n, p, nPost, err := validateInputs("RandomForest.Fit", X, Y, trt)
	if err != nil {
		return nil, err
	}
	ctrl := controlIndices(trt)
	if len(ctrl) < 2 {
		return nil, errors.NewValueError("RandomForest.Fit", "need at least two control units")
	}

	y0hat := mat.NewDense(n, nPost, nil)

	if opts.Avg {
		Xs, ys := stackControls(X, Y, ctrl)
		forest := growForest(Xs, ys, opts)
		for i := 0; i < n; i++ {
			pred := forest.predict(rowOf(X, i, p))
			for k := 0; k < nPost; k++ {
				y0hat.Set(i, k, pred)
			}
		}
		return &Fit{
			Y0Hat:  y0hat,
			Params: Params{Importances: forest.importances},
		}, nil
	}

	Xc := mat.NewDense(len(ctrl), p, nil)
	for r, i := range ctrl {
		for j := 0; j < p; j++ {
			Xc.Set(r, j, X.At(i, j))
		}
	}

	forests := make([]*forest, nPost)
	parallel.ParallelizeWithThreshold(nPost, perPeriodParallelThreshold, func(start, end int) {
		for k := start; k < end; k++ {
			yc := make([]float64, len(ctrl))
			for r, i := range ctrl {
				yc[r] = Y.At(i, k)
			}
			// Offset the seed so periods grow distinct ensembles.
			o := opts
			o.Seed = opts.Seed + k
			forests[k] = growForest(Xc, yc, o)
		}
	})

	importances := make([]float64, 0, p*nPost)
	for k := 0; k < nPost; k++ {
		for i := 0; i < n; i++ {
			y0hat.Set(i, k, forests[k].predict(rowOf(X, i, p)))
		}
		importances = append(importances, forests[k].importances...)
	}

	log.Debug().
		Str(log.OperationKey, "RandomForest.Fit").
		Int(log.PostPeriods, nPost).
		Int("n_trees", opts.NTrees).
		Msg("random forest fit complete")

	return &Fit{
		Y0Hat:  y0hat,
		Params: Params{Importances: importances},
	}, nil
}

func rowOf(X *mat.Dense, i, p int) []float64 {
	row := make([]float64, p)
	for j := 0; j < p; j++ {
		row[j] = X.At(i, j)
	}
	return row
}

type treeNode struct {
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
	value     float64
	leaf      bool
}

type forest struct {
	trees       []*treeNode
	importances []float64
}

func growForest(X *mat.Dense, y []float64, opts RFOptions) *forest {
	n, p := X.Dims()
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 1 << 30
	}
	mtry := opts.MTry
	if mtry <= 0 {
		mtry = p / 3
		if mtry < 1 {
			mtry = 1
		}
	}
	if mtry > p {
		mtry = p
	}

	rng := rand.New(rand.NewSource(int64(opts.Seed)))
	gains := make([]float64, p)

	trees := make([]*treeNode, opts.NTrees)
	for t := 0; t < opts.NTrees; t++ {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = rng.Intn(n)
		}
		trees[t] = buildTree(X, y, idx, 0, maxDepth, opts.MinLeaf, mtry, rng, gains)
	}

	total := 0.0
	for _, g := range gains {
		total += g
	}
	imp := make([]float64, p)
	if total > 0 {
		for j := range imp {
			imp[j] = gains[j] / total
		}
	}
	return &forest{trees: trees, importances: imp}
}

func buildTree(X *mat.Dense, y []float64, idx []int, depth, maxDepth, minLeaf, mtry int, rng *rand.Rand, gains []float64) *treeNode {
	mean, sse := meanSSE(y, idx)
	if depth >= maxDepth || len(idx) < 2*minLeaf || sse == 0 {
		return &treeNode{leaf: true, value: mean}
	}

	_, p := X.Dims()
	feats := rng.Perm(p)[:mtry]

	bestGain := 0.0
	bestFeat := -1
	bestThresh := 0.0
	var bestLeft, bestRight []int

	for _, j := range feats {
		sorted := make([]int, len(idx))
		copy(sorted, idx)
		sort.Slice(sorted, func(a, b int) bool {
			return X.At(sorted[a], j) < X.At(sorted[b], j)
		})

		// Prefix sums over the sorted order for O(1) split evaluation.
		sumL, sumSqL := 0.0, 0.0
		sumTotal, sumSqTotal := 0.0, 0.0
		for _, i := range sorted {
			sumTotal += y[i]
			sumSqTotal += y[i] * y[i]
		}

		for s := 0; s < len(sorted)-1; s++ {
			i := sorted[s]
			sumL += y[i]
			sumSqL += y[i] * y[i]

			nl := s + 1
			nr := len(sorted) - nl
			if nl < minLeaf || nr < minLeaf {
				continue
			}
			// Skip ties: the split must separate distinct feature values.
			if X.At(sorted[s], j) == X.At(sorted[s+1], j) {
				continue
			}

			sumR := sumTotal - sumL
			sumSqR := sumSqTotal - sumSqL
			sseL := sumSqL - sumL*sumL/float64(nl)
			sseR := sumSqR - sumR*sumR/float64(nr)
			gain := sse - sseL - sseR
			if gain > bestGain {
				bestGain = gain
				bestFeat = j
				bestThresh = (X.At(sorted[s], j) + X.At(sorted[s+1], j)) / 2
				bestLeft = append([]int(nil), sorted[:nl]...)
				bestRight = append([]int(nil), sorted[nl:]...)
			}
		}
	}

	if bestFeat < 0 {
		return &treeNode{leaf: true, value: mean}
	}
	gains[bestFeat] += bestGain

	return &treeNode{
		feature:   bestFeat,
		threshold: bestThresh,
		left:      buildTree(X, y, bestLeft, depth+1, maxDepth, minLeaf, mtry, rng, gains),
		right:     buildTree(X, y, bestRight, depth+1, maxDepth, minLeaf, mtry, rng, gains),
	}
}

func meanSSE(y []float64, idx []int) (mean, sse float64) {
	for _, i := range idx {
		mean += y[i]
	}
	mean /= float64(len(idx))
	for _, i := range idx {
		d := y[i] - mean
		sse += d * d
	}
	return mean, sse
}

func (f *forest) predict(row []float64) float64 {
	sum := 0.0
	for _, t := range f.trees {
		node := t
		for !node.leaf {
			if row[node.feature] <= node.threshold {
				node = node.left
			} else {
				node = node.right
			}
		}
		sum += node.value
	}
	return sum / float64(len(f.trees))
}
