package train

import (
	"math"
	"math/rand/v2"
	"sort"
)

// minPerClassForStratify is the smallest class that can place one sample in
// each of the three partitions.
const minPerClassForStratify = 3

// Split holds indexes into the sample slice.
type Split struct {
	Train      []int `json:"-"`
	Validation []int `json:"-"`
	Test       []int `json:"-"`
	Stratified bool  `json:"stratified"`
}

func (s Split) Sizes() (train, val, test int) {
	return len(s.Train), len(s.Validation), len(s.Test)
}

// StratifiedSplit partitions indexes by label: testFrac of each class goes to
// test, then valFrac of the remainder to validation. Each class contributes
// at least one sample to every partition. When any class has fewer than
// three samples it falls back to RandomSplit and Stratified is false.
func StratifiedSplit(labels []int, valFrac, testFrac float64, seed uint64) Split {
	byClass := make(map[int][]int)
	for i, l := range labels {
		byClass[l] = append(byClass[l], i)
	}
	for _, idx := range byClass {
		if len(idx) < minPerClassForStratify {
			return RandomSplit(len(labels), valFrac, testFrac, seed)
		}
	}

	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	rng := rand.New(rand.NewPCG(seed, seed))
	split := Split{Stratified: true}
	for _, c := range classes {
		idx := byClass[c]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

		n := len(idx)
		nTest := clamp(round(float64(n)*testFrac), 1, n-2)
		nVal := clamp(round(float64(n-nTest)*valFrac), 1, n-nTest-1)

		split.Test = append(split.Test, idx[:nTest]...)
		split.Validation = append(split.Validation, idx[nTest:nTest+nVal]...)
		split.Train = append(split.Train, idx[nTest+nVal:]...)
	}

	shuffleInts(rng, split.Train)
	return split
}

// RandomSplit ignores labels. Validation and test each get at least one
// sample when n >= 3.
func RandomSplit(n int, valFrac, testFrac float64, seed uint64) Split {
	rng := rand.New(rand.NewPCG(seed, seed))
	idx := rng.Perm(n)

	nTest := round(float64(n) * testFrac)
	nVal := round(float64(n-nTest) * valFrac)
	if n >= 3 {
		nTest = clamp(nTest, 1, n-2)
		nVal = clamp(nVal, 1, n-nTest-1)
	} else {
		nTest, nVal = 0, 0
	}

	return Split{
		Test:       idx[:nTest],
		Validation: idx[nTest : nTest+nVal],
		Train:      idx[nTest+nVal:],
	}
}

func round(v float64) int {
	return int(math.Round(v))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func shuffleInts(rng *rand.Rand, s []int) {
	rng.Shuffle(len(s), func(i, j int) { s[i], s[j] = s[j], s[i] })
}
