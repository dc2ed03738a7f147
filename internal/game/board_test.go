package game

import (
	"math/rand/v2"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDeckHasEveryTokenTwice(t *testing.T) {
	deck := NewDeck([]Token{"A", "B", "C"})
	assert.Equal(t, []Token{"A", "B", "C", "A", "B", "C"}, deck)
}

func TestShuffleIsPermutation(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	deck := NewDeck([]Token{"🎮", "🎯", "🎲", "🎪", "🎨", "🎭", "🎸", "🎺"})

	for i := 0; i < 200; i++ {
		got := append([]Token(nil), deck...)
		Shuffle(got, rng)

		want := append([]Token(nil), deck...)
		slices.Sort(want)
		slices.Sort(got)
		require.Equal(t, want, got)
	}
}

func TestShuffleHandlesTinyInputs(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	var empty []Token
	Shuffle(empty, rng)
	assert.Empty(t, empty)

	one := []Token{"A"}
	Shuffle(one, rng)
	assert.Equal(t, []Token{"A"}, one)
}

// TestShuffleIsUnbiased runs a chi-square goodness-of-fit test over all 24
// orderings of four distinct items. With 23 degrees of freedom the 0.1%
// critical value is 49.73; a biased shuffle (e.g. j drawn from [0, n)) lands
// far above it at this sample size.
func TestShuffleIsUnbiased(t *testing.T) {
	const trials = 240_000
	rng := rand.New(rand.NewPCG(2024, 1))

	counts := map[string]int{}
	for i := 0; i < trials; i++ {
		s := []string{"a", "b", "c", "d"}
		Shuffle(s, rng)
		counts[strings.Join(s, "")]++
	}
	require.Len(t, counts, 24, "every ordering must be reachable")

	expected := float64(trials) / 24
	chi2 := 0.0
	for _, c := range counts {
		d := float64(c) - expected
		chi2 += d * d / expected
	}
	assert.Less(t, chi2, 49.73, "chi-square %.2f", chi2)
}

// Each element should land in each position equally often.
func TestShufflePositionFrequencies(t *testing.T) {
	const n, trials = 16, 160_000
	rng := rand.New(rand.NewPCG(99, 3))

	var hits [n][n]int
	for i := 0; i < trials; i++ {
		s := make([]int, n)
		for k := range s {
			s[k] = k
		}
		Shuffle(s, rng)
		for pos, v := range s {
			hits[v][pos]++
		}
	}

	expected := float64(trials) / n
	for v := 0; v < n; v++ {
		for pos := 0; pos < n; pos++ {
			assert.InDelta(t, expected, float64(hits[v][pos]), expected*0.08,
				"value %d at position %d", v, pos)
		}
	}
}

func TestSeededDealerIsStable(t *testing.T) {
	deck := NewDeck([]Token{"A", "B", "C", "D", "E", "F", "G", "H"})

	a := SeededDealer(42)(deck)
	b := SeededDealer(42)(deck)
	assert.Equal(t, a, b)
	assert.True(t, samePairs(deck, a))

	// the input deck is left untouched
	assert.Equal(t, NewDeck([]Token{"A", "B", "C", "D", "E", "F", "G", "H"}), deck)
}

func TestSamePairs(t *testing.T) {
	deck := NewDeck([]Token{"A", "B"})
	assert.True(t, samePairs(deck, []Token{"B", "A", "A", "B"}))
	assert.False(t, samePairs(deck, []Token{"A", "A", "A", "B"}))
	assert.False(t, samePairs(deck, []Token{"A", "B", "A"}))
	assert.False(t, samePairs(deck, []Token{"A", "B", "A", "C"}))
}
