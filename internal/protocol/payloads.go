package protocol

import "fmt"

// Client to server payloads

// JoinPayload identifies a session to the server. Names are unique
// per connected session.
type JoinPayload struct {
	Name string `json:"name"`
}

func (p *JoinPayload) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(p.Name) > 32 {
		return fmt.Errorf("name exceeds 32 characters")
	}
	return nil
}

// MovePayload carries positional presence. Not interpreted by the
// game engines, only relayed. Name is stamped by the server on the
// way back out.
type MovePayload struct {
	Name string  `json:"name,omitempty"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// JoinBlackjackPayload requests a blackjack seat. A nil SeatID asks
// for automatic assignment.
type JoinBlackjackPayload struct {
	SeatID *int `json:"seatId,omitempty"`
}

var pokerActions = map[string]bool{
	"CHECK": true,
	"CALL":  true,
	"BET":   true,
	"RAISE": true,
	"FOLD":  true,
}

// PokerActionPayload is one poker decision. Amount is the wager for
// BET and the new street total for RAISE.
type PokerActionPayload struct {
	Action string `json:"action"`
	Amount int    `json:"amount,omitempty"`
}

func (p *PokerActionPayload) Validate() error {
	if !pokerActions[p.Action] {
		return fmt.Errorf("unrecognized poker action %q", p.Action)
	}
	if p.Amount < 0 {
		return fmt.Errorf("amount must not be negative")
	}
	return nil
}

var blackjackActions = map[string]bool{
	"HIT":         true,
	"STAND":       true,
	"DOUBLE_DOWN": true,
	"SPLIT":       true,
	"BET":         true,
	"DEAL":        true,
	"SIT_OUT":     true,
	"SPECTATE":    true,
}

// BlackjackActionPayload is one blackjack decision.
type BlackjackActionPayload struct {
	Action string `json:"action"`
	Amount int    `json:"amount,omitempty"`
	SeatID *int   `json:"seatId,omitempty"`
}

func (p *BlackjackActionPayload) Validate() error {
	if !blackjackActions[p.Action] {
		return fmt.Errorf("unrecognized blackjack action %q", p.Action)
	}
	if p.Amount < 0 {
		return fmt.Errorf("amount must not be negative")
	}
	return nil
}

// Server to client payloads

// WelcomePayload greets a freshly opened connection and prompts the
// client to JOIN with an identity.
type WelcomePayload struct {
	Server  string `json:"server"`
	Message string `json:"message"`
}

// DisconnectPayload names a user whose session has ended.
type DisconnectPayload struct {
	Name string `json:"name"`
}

// ErrorPayload reports a rejected action back to the acting session.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// LobbyPlayer is one roster entry in a lobby state broadcast.
type LobbyPlayer struct {
	Name    string `json:"name"`
	Balance int    `json:"balance"`
}

// LobbyStatePayload is the roster and table settings for one lobby.
type LobbyStatePayload struct {
	LobbyID string        `json:"lobbyId"`
	Players []LobbyPlayer `json:"players"`
	MinBet  int           `json:"minBet"`
	MaxBet  int           `json:"maxBet"`
	InGame  bool          `json:"inGame"`
}
