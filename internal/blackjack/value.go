package blackjack

import "github.com/greenfelt/casino/internal/deck"

// rankValue returns the hard blackjack value of a card (ace counts 1)
func rankValue(r deck.Rank) int {
	switch {
	case r == deck.Ace:
		return 1
	case r >= deck.Ten:
		return 10
	default:
		return int(r)
	}
}

// Value computes the best displayable value of a hand. The hard total
// counts every ace as 1; when an ace is present and promoting it to 11
// does not bust, the soft total is used instead. Only one ace can ever
// play as 11.
func Value(cards []deck.Card) (value int, soft bool) {
	hard := 0
	hasAce := false
	for _, c := range cards {
		hard += rankValue(c.Rank)
		if c.IsAce() {
			hasAce = true
		}
	}
	if hasAce && hard+10 <= 21 {
		return hard + 10, true
	}
	return hard, false
}

// IsBust reports whether the hand is over 21
func IsBust(cards []deck.Card) bool {
	v, _ := Value(cards)
	return v > 21
}

// IsBlackjack reports a natural: exactly two cards totaling 21
func IsBlackjack(cards []deck.Card) bool {
	if len(cards) != 2 {
		return false
	}
	v, _ := Value(cards)
	return v == 21
}

// DealerShouldHit implements the house policy: hit below 17 and on a
// soft 17, stand otherwise
func DealerShouldHit(cards []deck.Card) bool {
	v, soft := Value(cards)
	if v < 17 {
		return true
	}
	return v == 17 && soft
}
