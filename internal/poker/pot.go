package poker

import "sort"

// Pot is one layer of the pot: the main pot or a side pot capped by an
// all-in contribution. Eligible holds player indices.
type Pot struct {
	Amount   int
	Eligible []int
}

// buildPots layers every player's cumulative contribution into a main pot
// and side pots. Each distinct contribution level of a live player caps a
// layer; a layer is winnable only by live players who contributed at least
// up to its cap. Folded chips stay in whichever layers they reached.
func buildPots(players []*Player) []Pot {
	levels := make([]int, 0, len(players))
	seen := make(map[int]bool)
	for _, p := range players {
		if p.InHand() && p.TotalBet > 0 && !seen[p.TotalBet] {
			seen[p.TotalBet] = true
			levels = append(levels, p.TotalBet)
		}
	}
	sort.Ints(levels)

	var pots []Pot
	prev := 0
	for _, level := range levels {
		pot := Pot{}
		for i, p := range players {
			contribution := min(p.TotalBet, level) - min(p.TotalBet, prev)
			if contribution > 0 {
				pot.Amount += contribution
			}
			if p.InHand() && p.TotalBet >= level {
				pot.Eligible = append(pot.Eligible, i)
			}
		}
		if pot.Amount > 0 {
			pots = append(pots, pot)
		}
		prev = level
	}

	// Chips above the highest live contribution (a fold after a raise no
	// one matched) go to the last layer.
	excess := 0
	for _, p := range players {
		if p.TotalBet > prev {
			excess += p.TotalBet - prev
		}
	}
	if excess > 0 && len(pots) > 0 {
		pots[len(pots)-1].Amount += excess
	}

	return pots
}
