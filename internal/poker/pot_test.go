package poker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenfelt/casino/internal/deck"
)

// hole gives pot-test players live cards; contents never matter here
func hole() []deck.Card {
	return []deck.Card{
		{Suit: deck.Spades, Rank: deck.Two},
		{Suit: deck.Hearts, Rank: deck.Three},
	}
}

func TestBuildPotsNoAllIn(t *testing.T) {
	t.Parallel()

	players := []*Player{
		{User: "a", TotalBet: 100, HoleCards: hole()},
		{User: "b", TotalBet: 100, HoleCards: hole()},
		{User: "c", TotalBet: 100, HoleCards: hole()},
	}

	pots := buildPots(players)
	require.Len(t, pots, 1)
	assert.Equal(t, 300, pots[0].Amount)
	assert.Equal(t, []int{0, 1, 2}, pots[0].Eligible)
}

func TestBuildPotsSingleAllIn(t *testing.T) {
	t.Parallel()

	players := []*Player{
		{User: "a", TotalBet: 100, AllIn: true, HoleCards: hole()},
		{User: "b", TotalBet: 300, HoleCards: hole()},
		{User: "c", TotalBet: 300, HoleCards: hole()},
	}

	pots := buildPots(players)
	require.Len(t, pots, 2)

	assert.Equal(t, 300, pots[0].Amount, "main pot: 100 from each")
	assert.Equal(t, []int{0, 1, 2}, pots[0].Eligible)

	assert.Equal(t, 400, pots[1].Amount, "side pot: 200 more from b and c")
	assert.Equal(t, []int{1, 2}, pots[1].Eligible)
}

func TestBuildPotsLayeredAllIns(t *testing.T) {
	t.Parallel()

	players := []*Player{
		{User: "a", TotalBet: 50, AllIn: true, HoleCards: hole()},
		{User: "b", TotalBet: 200, AllIn: true, HoleCards: hole()},
		{User: "c", TotalBet: 500, HoleCards: hole()},
		{User: "d", TotalBet: 500, HoleCards: hole()},
	}

	pots := buildPots(players)
	require.Len(t, pots, 3)

	assert.Equal(t, 200, pots[0].Amount)
	assert.Equal(t, []int{0, 1, 2, 3}, pots[0].Eligible)
	assert.Equal(t, 450, pots[1].Amount)
	assert.Equal(t, []int{1, 2, 3}, pots[1].Eligible)
	assert.Equal(t, 600, pots[2].Amount)
	assert.Equal(t, []int{2, 3}, pots[2].Eligible)

	total := 0
	for _, pot := range pots {
		total += pot.Amount
	}
	assert.Equal(t, 1250, total, "pot layers conserve every chip")
}

func TestBuildPotsFoldedChipsStayIn(t *testing.T) {
	t.Parallel()

	players := []*Player{
		{User: "a", TotalBet: 100, HoleCards: hole()},
		{User: "b", TotalBet: 60, Folded: true, HoleCards: hole()},
		{User: "c", TotalBet: 100, HoleCards: hole()},
	}

	pots := buildPots(players)
	require.Len(t, pots, 1)
	assert.Equal(t, 260, pots[0].Amount, "folded chips are not returned")
	assert.Equal(t, []int{0, 2}, pots[0].Eligible, "folded seat is not eligible")
}

func TestBuildPotsShortAllInRefund(t *testing.T) {
	t.Parallel()

	// b is all-in deeper than anyone can match; the unmatched layer is
	// only winnable by b, which is the refund.
	players := []*Player{
		{User: "a", TotalBet: 300, AllIn: true, HoleCards: hole()},
		{User: "b", TotalBet: 500, AllIn: true, HoleCards: hole()},
	}

	pots := buildPots(players)
	require.Len(t, pots, 2)
	assert.Equal(t, 600, pots[0].Amount)
	assert.Equal(t, []int{0, 1}, pots[0].Eligible)
	assert.Equal(t, 200, pots[1].Amount)
	assert.Equal(t, []int{1}, pots[1].Eligible)
}
