// Package protocol defines the versioned JSON envelope exchanged over
// the casino WebSocket and the typed payloads carried inside it.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Version is the only envelope version this server speaks.
const Version = 1

// Key discriminates the payload carried by an envelope.
type Key string

// Client to server keys
const (
	KeyJoin            Key = "JOIN"
	KeyMove            Key = "MOVE"
	KeyJoinPoker       Key = "JOIN_POKER"
	KeyLeavePoker      Key = "LEAVE_POKER"
	KeyStartPoker      Key = "START_POKER"
	KeyEndPoker        Key = "END_POKER"
	KeyPokerAction     Key = "POKER_ACTION"
	KeyJoinBlackjack   Key = "JOIN_BLACKJACK"
	KeyLeaveBlackjack  Key = "LEAVE_BLACKJACK"
	KeyBlackjackAction Key = "BLACKJACK_ACTION"
)

// Server to client keys
const (
	KeyWelcome             Key = "WELCOME"
	KeyDisconnect          Key = "DISCONNECT"
	KeyError               Key = "ERROR"
	KeyPokerLobbyState     Key = "POKER_LOBBY_STATE"
	KeyPokerGameState      Key = "POKER_GAME_STATE"
	KeyBlackjackLobbyState Key = "BLACKJACK_LOBBY_STATE"
	KeyBlackjackGameState  Key = "BLACKJACK_GAME_STATE"
)

func (k Key) String() string {
	return string(k)
}

var knownKeys = map[Key]bool{
	KeyJoin:                true,
	KeyMove:                true,
	KeyJoinPoker:           true,
	KeyLeavePoker:          true,
	KeyStartPoker:          true,
	KeyEndPoker:            true,
	KeyPokerAction:         true,
	KeyJoinBlackjack:       true,
	KeyLeaveBlackjack:      true,
	KeyBlackjackAction:     true,
	KeyWelcome:             true,
	KeyDisconnect:          true,
	KeyError:               true,
	KeyPokerLobbyState:     true,
	KeyPokerGameState:      true,
	KeyBlackjackLobbyState: true,
	KeyBlackjackGameState:  true,
}

// Known reports whether k is part of the wire vocabulary.
func Known(k Key) bool {
	return knownKeys[k]
}

var (
	// ErrProtocol marks an envelope that could not be parsed at all.
	// The handler drops the message and logs it, without replying.
	ErrProtocol = errors.New("protocol error")

	// ErrValidation marks an envelope that parsed but whose payload
	// fails its schema. Dropped without any state mutation.
	ErrValidation = errors.New("validation error")

	// ErrUnknownKey marks a key outside the wire vocabulary. Unknown
	// keys are ignored for forward compatibility, never replied to.
	ErrUnknownKey = errors.New("unknown message key")
)

// Envelope is the wire framing for every message in both directions.
// Ts is epoch milliseconds; RequestID correlates a reply with the
// inbound message that caused it.
type Envelope struct {
	Key       Key             `json:"key"`
	V         int             `json:"v"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Ts        int64           `json:"ts,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
	LobbyID   string          `json:"lobbyId,omitempty"`
}

// New wraps payload in an envelope stamped with the current time.
func New(key Key, payload any) (*Envelope, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", key, err)
		}
		raw = b
	}
	return &Envelope{
		Key:     key,
		V:       Version,
		Payload: raw,
		Ts:      time.Now().UnixMilli(),
	}, nil
}

// Decode parses raw bytes into an envelope and checks the framing.
// Returns ErrProtocol for unparsable or unversionable input and
// ErrUnknownKey for keys outside the vocabulary.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if env.Key == "" {
		return nil, fmt.Errorf("%w: missing key", ErrProtocol)
	}
	if env.V != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrProtocol, env.V)
	}
	if !Known(env.Key) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, env.Key)
	}
	return &env, nil
}

// DecodePayload unmarshals the envelope payload into v. When v
// implements Validator its schema check runs after unmarshalling.
func (e *Envelope) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%w: %s requires a payload", ErrValidation, e.Key)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrValidation, e.Key, err)
	}
	if val, ok := v.(Validator); ok {
		if err := val.Validate(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrValidation, e.Key, err)
		}
	}
	return nil
}

// Encode serializes the envelope for the wire.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Validator is implemented by inbound payloads with schema rules
// beyond what JSON unmarshalling enforces.
type Validator interface {
	Validate() error
}
