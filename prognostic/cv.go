package prognostic

import (
	"math/rand"
)

// cvFold is one train/validation split.
type cvFold struct {
	train []int
	val   []int
}

// kFold generates shuffled k-fold splits over n samples with a
// deterministic seed. Fold sizes differ by at most one.
func kFold(n, k, seed int) []cvFold {
	if k < 2 {
		k = 2
	}
	if k > n {
		k = n
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	r := rand.New(rand.NewSource(int64(seed)))
	r.Shuffle(n, func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})

	folds := make([]cvFold, k)
	foldSize := n / k
	remainder := n % k

	cur := 0
	for f := 0; f < k; f++ {
		size := foldSize
		if f < remainder {
			size++
		}
		val := make([]int, size)
		copy(val, indices[cur:cur+size])
		train := make([]int, 0, n-size)
		train = append(train, indices[:cur]...)
		train = append(train, indices[cur+size:]...)
		folds[f] = cvFold{train: train, val: val}
		cur += size
	}
	return folds
}
