package evaluator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/greenfelt/casino/internal/deck"
)

// Category enumerates poker hand categories ordered from weakest to strongest
type Category int

const (
	HighCard Category = iota
	Pair
	TwoPair
	ThreeOfAKind
	Straight
	Flush
	FullHouse
	FourOfAKind
	StraightFlush
)

// String returns a human-readable category name
func (c Category) String() string {
	switch c {
	case HighCard:
		return "High Card"
	case Pair:
		return "Pair"
	case TwoPair:
		return "Two Pair"
	case ThreeOfAKind:
		return "Three of a Kind"
	case Straight:
		return "Straight"
	case Flush:
		return "Flush"
	case FullHouse:
		return "Full House"
	case FourOfAKind:
		return "Four of a Kind"
	case StraightFlush:
		return "Straight Flush"
	default:
		return "Unknown"
	}
}

// HandRank is the comparable strength of a poker hand: the category, then
// the primary rank(s) followed by kickers in descending order.
type HandRank struct {
	Category Category    `json:"category"`
	Ranks    []deck.Rank `json:"ranks"`
	Label    string      `json:"label"`
}

// Compare returns 1 if a beats b, -1 if b beats a, 0 for a tie (split pot).
// Category decides first, then the ranks vectors lexicographically.
func Compare(a, b HandRank) int {
	if a.Category != b.Category {
		if a.Category > b.Category {
			return 1
		}
		return -1
	}
	for i := 0; i < len(a.Ranks) && i < len(b.Ranks); i++ {
		if a.Ranks[i] != b.Ranks[i] {
			if a.Ranks[i] > b.Ranks[i] {
				return 1
			}
			return -1
		}
	}
	return 0
}

// Evaluate ranks the best 5-card hand contained in 5 to 7 cards.
// Duplicate cards are rejected.
func Evaluate(cards []deck.Card) (HandRank, error) {
	if len(cards) < 5 || len(cards) > 7 {
		return HandRank{}, fmt.Errorf("evaluate: need 5-7 cards, got %d", len(cards))
	}

	seen := make(map[deck.Card]bool, len(cards))
	rankCounts := make(map[deck.Rank]int)
	suits := make(map[deck.Suit][]deck.Rank)
	for _, c := range cards {
		if seen[c] {
			return HandRank{}, fmt.Errorf("evaluate: duplicate card %s", c)
		}
		seen[c] = true
		rankCounts[c.Rank]++
		suits[c.Suit] = append(suits[c.Suit], c.Rank)
	}

	// Straight flush: a straight within any 5+ card suit bucket
	for _, suited := range suits {
		if len(suited) < 5 {
			continue
		}
		if high := straightHigh(suited); high > 0 {
			label := fmt.Sprintf("Straight Flush, %s high", high)
			if high == deck.Ace {
				label = "Royal Flush"
			}
			return HandRank{StraightFlush, []deck.Rank{high}, label}, nil
		}
	}

	// Ranks by multiplicity, ties broken by rank, both descending
	quads := ranksWithCount(rankCounts, 4)
	trips := ranksWithCount(rankCounts, 3)
	pairs := ranksWithCount(rankCounts, 2)

	if len(quads) > 0 {
		quad := quads[0]
		kickers := topKickers(rankCounts, []deck.Rank{quad}, 1)
		return HandRank{
			FourOfAKind,
			append([]deck.Rank{quad}, kickers...),
			fmt.Sprintf("Four of a Kind, %ss", quad),
		}, nil
	}

	if len(trips) > 0 {
		// Best triple plus best pair; a second triple may supply the pair
		over := trips[0]
		var under deck.Rank
		if len(trips) > 1 {
			under = trips[1]
		}
		if len(pairs) > 0 && pairs[0] > under {
			under = pairs[0]
		}
		if under > 0 {
			return HandRank{
				FullHouse,
				[]deck.Rank{over, under},
				fmt.Sprintf("Full House, %ss over %ss", over, under),
			}, nil
		}
	}

	for _, suited := range suits {
		if len(suited) < 5 {
			continue
		}
		top := descending(suited)[:5]
		return HandRank{
			Flush,
			top,
			fmt.Sprintf("Flush, %s high", top[0]),
		}, nil
	}

	allRanks := make([]deck.Rank, 0, len(rankCounts))
	for r := range rankCounts {
		allRanks = append(allRanks, r)
	}
	if high := straightHigh(allRanks); high > 0 {
		return HandRank{
			Straight,
			[]deck.Rank{high},
			fmt.Sprintf("Straight, %s high", high),
		}, nil
	}

	if len(trips) > 0 {
		trip := trips[0]
		kickers := topKickers(rankCounts, []deck.Rank{trip}, 2)
		return HandRank{
			ThreeOfAKind,
			append([]deck.Rank{trip}, kickers...),
			fmt.Sprintf("Three of a Kind, %ss", trip),
		}, nil
	}

	if len(pairs) >= 2 {
		hi, lo := pairs[0], pairs[1]
		kickers := topKickers(rankCounts, []deck.Rank{hi, lo}, 1)
		return HandRank{
			TwoPair,
			append([]deck.Rank{hi, lo}, kickers...),
			fmt.Sprintf("Two Pair, %ss and %ss", hi, lo),
		}, nil
	}

	if len(pairs) == 1 {
		pair := pairs[0]
		kickers := topKickers(rankCounts, []deck.Rank{pair}, 3)
		return HandRank{
			Pair,
			append([]deck.Rank{pair}, kickers...),
			fmt.Sprintf("Pair of %ss", pair),
		}, nil
	}

	top := topKickers(rankCounts, nil, 5)
	return HandRank{
		HighCard,
		top,
		fmt.Sprintf("High Card %s", top[0]),
	}, nil
}

// MustEvaluate is Evaluate for inputs known to be valid, such as showdown
// hands the engine dealt itself
func MustEvaluate(cards []deck.Card) HandRank {
	hr, err := Evaluate(cards)
	if err != nil {
		panic(err)
	}
	return hr
}

// straightHigh returns the high card of the best straight in the rank set,
// or 0 when there is none. The wheel (A-2-3-4-5) counts with a high of Five.
func straightHigh(ranks []deck.Rank) deck.Rank {
	present := make(map[deck.Rank]bool, len(ranks))
	for _, r := range ranks {
		present[r] = true
	}

	for high := deck.Ace; high >= deck.Six; high-- {
		run := true
		for r := high; r > high-5; r-- {
			if !present[r] {
				run = false
				break
			}
		}
		if run {
			return high
		}
	}

	// Wheel: ace plays low
	if present[deck.Ace] && present[deck.Two] && present[deck.Three] &&
		present[deck.Four] && present[deck.Five] {
		return deck.Five
	}
	return 0
}

// ranksWithCount returns ranks appearing exactly count times, descending
func ranksWithCount(counts map[deck.Rank]int, count int) []deck.Rank {
	var out []deck.Rank
	for r, c := range counts {
		if c == count {
			out = append(out, r)
		}
	}
	return descending(out)
}

// topKickers returns the n highest ranks not in used, descending
func topKickers(counts map[deck.Rank]int, used []deck.Rank, n int) []deck.Rank {
	skip := make(map[deck.Rank]bool, len(used))
	for _, r := range used {
		skip[r] = true
	}
	var out []deck.Rank
	for r := range counts {
		if !skip[r] {
			out = append(out, r)
		}
	}
	out = descending(out)
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func descending(ranks []deck.Rank) []deck.Rank {
	out := append([]deck.Rank(nil), ranks...)
	sort.Slice(out, func(i, j int) bool { return out[i] > out[j] })
	return out
}

// FormatCards renders a hand like "A♠ K♠ Q♠"
func FormatCards(cards []deck.Card) string {
	strs := make([]string, len(cards))
	for i, c := range cards {
		strs[i] = c.String()
	}
	return strings.Join(strs, " ")
}
