package poker

import "github.com/greenfelt/casino/internal/deck"

// Street represents the betting round
type Street int

const (
	Preflop Street = iota
	Flop
	Turn
	River
	Showdown
)

func (s Street) String() string {
	return [...]string{"preflop", "flop", "turn", "river", "showdown"}[s]
}

// Action represents a player action as it appears on the wire
type Action string

const (
	ActionCheck Action = "CHECK"
	ActionCall  Action = "CALL"
	ActionBet   Action = "BET"
	ActionRaise Action = "RAISE"
	ActionFold  Action = "FOLD"
)

// Player represents a seat in the hand
type Player struct {
	User       string
	Chips      int
	HoleCards  []deck.Card
	Folded     bool
	AllIn      bool
	SittingOut bool
	Leaving    bool // left mid-hand, seat pruned at the next deal
	Bet        int  // committed this street
	TotalBet   int  // committed this hand, drives side-pot eligibility
	Acted      bool // acted since the last aggression this street
}

// CanAct returns true if the player can still make a decision this hand
func (p *Player) CanAct() bool {
	return !p.Folded && !p.AllIn && !p.SittingOut
}

// InHand returns true if the player still holds live cards
func (p *Player) InHand() bool {
	return !p.Folded && !p.SittingOut && len(p.HoleCards) > 0
}
