package poker

import (
	"time"

	"github.com/greenfelt/casino/internal/deck"
)

// PlayerState is one seat as exposed in snapshots
type PlayerState struct {
	User       string      `json:"user"`
	Chips      int         `json:"chips"`
	HoleCards  []deck.Card `json:"hole,omitempty"`
	HasFolded  bool        `json:"hasFolded"`
	IsAllIn    bool        `json:"isAllIn"`
	SittingOut bool        `json:"sittingOut"`
	CurrentBet int         `json:"currentBet"`
	TotalBet   int         `json:"totalBet"`
}

// State is the full serializable snapshot of the table
type State struct {
	HandID             string        `json:"handId,omitempty"`
	Players            []PlayerState `json:"players"`
	Community          []deck.Card   `json:"community"`
	Pot                int           `json:"pot"`
	Street             string        `json:"street"`
	DealerIndex        int           `json:"dealerIndex"`
	CurrentPlayerIndex int           `json:"currentPlayerIndex"`
	StreetStartIndex   int           `json:"streetStartIndex"`
	LastAggressorIndex int           `json:"lastAggressorIndex"`
	CurrentBet         int           `json:"currentBet"`
	MinBet             int           `json:"minBet"`
	MaxBet             int           `json:"maxBet"`
	TurnEndsAt         *time.Time    `json:"turnEndsAt,omitempty"`
	InHand             bool          `json:"inHand"`
	Winners            []Winner      `json:"winners,omitempty"`
}

// Snapshot serializes the table for one viewer. Hole cards are included
// only for the viewer's own seat, except at showdown where every live
// hand is revealed.
func (t *Table) Snapshot(viewer string) State {
	st := State{
		HandID:             t.handID,
		Players:            make([]PlayerState, len(t.players)),
		Community:          append([]deck.Card(nil), t.community...),
		Pot:                t.TotalPot(),
		Street:             t.street.String(),
		DealerIndex:        t.dealerIndex,
		CurrentPlayerIndex: t.currentIndex,
		StreetStartIndex:   t.streetStartIndex,
		LastAggressorIndex: t.lastAggressorIndex,
		CurrentBet:         t.currentBet,
		MinBet:             t.cfg.MinBet,
		MaxBet:             t.cfg.MaxBet,
		InHand:             t.inHand,
		Winners:            append([]Winner(nil), t.winners...),
	}

	showdown := t.street == Showdown && !t.inHand
	for i, p := range t.players {
		ps := PlayerState{
			User:       p.User,
			Chips:      p.Chips,
			HasFolded:  p.Folded,
			IsAllIn:    p.AllIn,
			SittingOut: p.SittingOut,
			CurrentBet: p.Bet,
			TotalBet:   p.TotalBet,
		}
		if p.User == viewer || (showdown && p.InHand()) {
			ps.HoleCards = append([]deck.Card(nil), p.HoleCards...)
		}
		st.Players[i] = ps
	}

	if t.inHand && t.currentIndex >= 0 {
		ends := t.turnEndsAt
		st.TurnEndsAt = &ends
	}
	return st
}
