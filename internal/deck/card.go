package deck

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Suit represents a card suit
type Suit int

const (
	Spades Suit = iota
	Hearts
	Diamonds
	Clubs
)

// String returns the string representation of a suit
func (s Suit) String() string {
	switch s {
	case Spades:
		return "♠"
	case Hearts:
		return "♥"
	case Diamonds:
		return "♦"
	case Clubs:
		return "♣"
	default:
		return "?"
	}
}

// IsRed returns true if the suit is red (Hearts or Diamonds)
func (s Suit) IsRed() bool {
	return s == Hearts || s == Diamonds
}

// MarshalJSON encodes the suit as its symbol
func (s Suit) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a suit from its symbol or letter form
func (s *Suit) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	suit, err := parseSuit(str)
	if err != nil {
		return err
	}
	*s = suit
	return nil
}

func parseSuit(str string) (Suit, error) {
	switch str {
	case "♠", "s", "S":
		return Spades, nil
	case "♥", "h", "H":
		return Hearts, nil
	case "♦", "d", "D":
		return Diamonds, nil
	case "♣", "c", "C":
		return Clubs, nil
	}
	return 0, fmt.Errorf("invalid suit: %q", str)
}

// Rank represents a card rank. Aces are high (14) for comparison.
type Rank int

const (
	Two Rank = iota + 2
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
	Ace
)

// String returns the string representation of a rank
func (r Rank) String() string {
	switch {
	case r >= Two && r <= Ten:
		return fmt.Sprintf("%d", int(r))
	case r == Jack:
		return "J"
	case r == Queen:
		return "Q"
	case r == King:
		return "K"
	case r == Ace:
		return "A"
	default:
		return "?"
	}
}

// MarshalJSON encodes the rank as its display string ("2".."10", "J", "Q", "K", "A")
func (r Rank) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON decodes a rank from its display string
func (r *Rank) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	rank, err := parseRank(str)
	if err != nil {
		return err
	}
	*r = rank
	return nil
}

func parseRank(str string) (Rank, error) {
	switch strings.ToUpper(str) {
	case "2", "3", "4", "5", "6", "7", "8", "9":
		return Rank(str[0] - '0'), nil
	case "10", "T":
		return Ten, nil
	case "J":
		return Jack, nil
	case "Q":
		return Queen, nil
	case "K":
		return King, nil
	case "A":
		return Ace, nil
	}
	return 0, fmt.Errorf("invalid rank: %q", str)
}

// Card represents a playing card
type Card struct {
	Suit Suit `json:"suit"`
	Rank Rank `json:"rank"`
}

// NewCard creates a new card
func NewCard(suit Suit, rank Rank) Card {
	return Card{Suit: suit, Rank: rank}
}

// String returns the string representation of a card (e.g., "A♠")
func (c Card) String() string {
	return fmt.Sprintf("%s%s", c.Rank, c.Suit)
}

// IsRed returns true if the card is red
func (c Card) IsRed() bool {
	return c.Suit.IsRed()
}

// IsAce returns true if the card is an Ace
func (c Card) IsAce() bool {
	return c.Rank == Ace
}

// ParseCard parses a two-character card like "As" or "Th" (case insensitive)
func ParseCard(str string) (Card, error) {
	runes := []rune(str)
	if len(runes) != 2 {
		return Card{}, fmt.Errorf("invalid card: %q", str)
	}
	rank, err := parseRank(string(runes[0]))
	if err != nil {
		return Card{}, err
	}
	suit, err := parseSuit(string(runes[1]))
	if err != nil {
		return Card{}, err
	}
	return Card{Suit: suit, Rank: rank}, nil
}

// ParseCards parses a compact card string like "AsKsQsJsTs"
func ParseCards(str string) ([]Card, error) {
	runes := []rune(str)
	if len(runes)%2 != 0 {
		return nil, fmt.Errorf("invalid card string: %q", str)
	}
	cards := make([]Card, 0, len(runes)/2)
	for i := 0; i < len(runes); i += 2 {
		card, err := ParseCard(string(runes[i : i+2]))
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, nil
}
