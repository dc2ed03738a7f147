// internal/game/board.go
//
// Deck construction and shuffling.

package game

import "math/rand/v2"

// NewDeck returns every token of the alphabet twice, in alphabet order.
func NewDeck(alphabet []Token) []Token {
	deck := make([]Token, 0, 2*len(alphabet))
	deck = append(deck, alphabet...)
	deck = append(deck, alphabet...)
	return deck
}

// Shuffle permutes s in place with the Fisher–Yates algorithm: walk i from the
// last index down to 1 and swap s[i] with s[j] for j drawn uniformly from
// [0, i]. Every ordering is equally likely given a uniform rng.
func Shuffle[T any](s []T, rng *rand.Rand) {
	for i := len(s) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}

// Dealer turns a deck into a board order. The engine calls it once per game.
type Dealer func(deck []Token) []Token

// RandomDealer shuffles a copy of the deck with rng.
func RandomDealer(rng *rand.Rand) Dealer {
	return func(deck []Token) []Token {
		out := append([]Token(nil), deck...)
		Shuffle(out, rng)
		return out
	}
}

// SeededDealer deals the same order every time for a given seed, whatever
// happened before. Daily games use it so every player sees one layout.
func SeededDealer(seed uint64) Dealer {
	return func(deck []Token) []Token {
		out := append([]Token(nil), deck...)
		Shuffle(out, rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
		return out
	}
}

// FixedDealer ignores the deck and deals order as given. Meant for tests and
// replays; order must still hold every token exactly twice.
func FixedDealer(order []Token) Dealer {
	return func([]Token) []Token {
		return append([]Token(nil), order...)
	}
}

// layout builds the board cards for a dealt order.
func layout(order []Token) []Card {
	cards := make([]Card, len(order))
	for i, t := range order {
		cards[i] = Card{Position: i, Token: t, State: CardHidden}
	}
	return cards
}
