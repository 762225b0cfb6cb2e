package deck

import (
	"errors"
	"math/rand"
	"time"
)

// ErrDeckExhausted is returned when drawing from an empty deck.
// Callers are expected to Reset between hands rather than recover mid-deal.
var ErrDeckExhausted = errors.New("deck exhausted")

const (
	// Number of riffle passes per shuffle. Six or more gets close enough
	// to uniform for casual play; this is not a cryptographic guarantee.
	riffleCount = 7
)

// Deck represents a deck of playing cards with a discard pile.
// The union of draw pile and discard pile is always the canonical
// 52-card set.
type Deck struct {
	cards    []Card
	discards []Card
	rng      *rand.Rand
}

// New creates a new standard 52-card deck in canonical order
func New() *Deck {
	return NewWithRand(rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewWithRand creates a deck using the given random source, for
// deterministic shuffles in tests
func NewWithRand(rng *rand.Rand) *Deck {
	d := &Deck{
		cards: make([]Card, 0, 52),
		rng:   rng,
	}
	for suit := Spades; suit <= Clubs; suit++ {
		for rank := Two; rank <= Ace; rank++ {
			d.cards = append(d.cards, NewCard(suit, rank))
		}
	}
	return d
}

// NewStacked creates a deck that draws the given cards in order, for
// rigging deals in tests
func NewStacked(cards []Card) *Deck {
	return &Deck{
		cards: append([]Card(nil), cards...),
		rng:   rand.New(rand.NewSource(0)),
	}
}

// NewShuffled creates a new deck and shuffles it
func NewShuffled() *Deck {
	d := New()
	d.Shuffle()
	return d
}

// Shuffle randomizes the draw pile with repeated riffles and a final cut.
// Only the order changes; composition is untouched.
func (d *Deck) Shuffle() {
	for i := 0; i < riffleCount; i++ {
		d.riffle()
	}
	d.cut()
}

// riffle splits the draw pile roughly in half and interleaves the two
// packets, dropping cards from each side in proportion to its remaining size
func (d *Deck) riffle() {
	n := len(d.cards)
	if n < 2 {
		return
	}

	// Split point wobbles around the middle like a human cut
	split := n/2 + d.rng.Intn(7) - 3
	if split < 1 {
		split = 1
	}
	if split > n-1 {
		split = n - 1
	}

	left := append([]Card(nil), d.cards[:split]...)
	right := append([]Card(nil), d.cards[split:]...)

	merged := d.cards[:0]
	for len(left) > 0 || len(right) > 0 {
		if len(left) == 0 {
			merged = append(merged, right...)
			break
		}
		if len(right) == 0 {
			merged = append(merged, left...)
			break
		}
		if d.rng.Intn(len(left)+len(right)) < len(left) {
			merged = append(merged, left[0])
			left = left[1:]
		} else {
			merged = append(merged, right[0])
			right = right[1:]
		}
	}
	d.cards = merged
}

// cut moves a random top packet to the bottom
func (d *Deck) cut() {
	n := len(d.cards)
	if n < 2 {
		return
	}
	at := 1 + d.rng.Intn(n-1)
	d.cards = append(d.cards[at:], d.cards[:at]...)
}

// Draw removes and returns n cards from the top of the draw pile.
// Drawn cards move to the discard pile so the 52-card invariant holds.
func (d *Deck) Draw(n int) ([]Card, error) {
	if n > len(d.cards) {
		return nil, ErrDeckExhausted
	}
	cards := make([]Card, n)
	copy(cards, d.cards[:n])
	d.discards = append(d.discards, cards...)
	d.cards = d.cards[n:]
	return cards, nil
}

// DrawOne removes and returns the top card
func (d *Deck) DrawOne() (Card, error) {
	cards, err := d.Draw(1)
	if err != nil {
		return Card{}, err
	}
	return cards[0], nil
}

// Remaining returns the number of cards left in the draw pile
func (d *Deck) Remaining() int {
	return len(d.cards)
}

// Discarded returns a copy of the discard pile
func (d *Deck) Discarded() []Card {
	return append([]Card(nil), d.discards...)
}

// Reset returns all discards to the draw pile and reshuffles the full
// 52-card set
func (d *Deck) Reset() {
	d.cards = append(d.cards, d.discards...)
	d.discards = d.discards[:0]
	d.Shuffle()
}
