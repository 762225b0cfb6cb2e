package server

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/greenfelt/casino/internal/poker"
	"github.com/greenfelt/casino/internal/protocol"
)

// PokerLobby owns the poker table. Every mutation is serialized by the
// lobby mutex; the engine itself is not safe for concurrent use.
// Buy-ins move balance into table chips and cash-outs move them back,
// so the registry balance never changes mid-hand.
type PokerLobby struct {
	id     string
	cfg    poker.Config
	logger *log.Logger
	clock  quartz.Clock
	users  *Registry
	notify func()

	mu       sync.Mutex
	table    *poker.Table
	timer    *quartz.Timer
	timerSeq int
}

// NewPokerLobby creates the lobby with an empty table
func NewPokerLobby(cfg poker.Config, users *Registry, logger *log.Logger, clock quartz.Clock) *PokerLobby {
	return &PokerLobby{
		id:     "poker",
		cfg:    cfg,
		logger: logger.WithPrefix("poker-lobby"),
		clock:  clock,
		users:  users,
		notify: func() {},
		table:  poker.NewTable(cfg, logger, clock),
	}
}

// SetNotify installs the broadcast callback invoked after mutations
// that happen outside a dispatched message, such as timer expiry.
func (l *PokerLobby) SetNotify(fn func()) {
	l.notify = fn
}

// Join buys the user in, moving starting chips out of their balance
func (l *PokerLobby) Join(user string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	buyIn := l.cfg.StartingChips
	if err := l.users.Debit(user, buyIn); err != nil {
		return err
	}
	if err := l.table.AddPlayer(user, buyIn); err != nil {
		_ = l.users.Credit(user, buyIn)
		return err
	}
	return nil
}

// Leave cashes the user out, crediting remaining chips back
func (l *PokerLobby) Leave(user string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.leaveLocked(user)
}

func (l *PokerLobby) leaveLocked(user string) error {
	chips, err := l.table.RemovePlayer(user)
	if err != nil {
		return err
	}
	if chips > 0 {
		_ = l.users.Credit(user, chips)
	}
	l.rearmLocked()
	return nil
}

// StartHand deals a new hand. Only seated users may start one.
func (l *PokerLobby) StartHand(user string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.table.Seated(user) {
		return poker.ErrNotSeated
	}
	if err := l.table.StartHand(); err != nil {
		return err
	}
	l.rearmLocked()
	return nil
}

// EndGame closes the table between hands, cashing every seat out
func (l *PokerLobby) EndGame(user string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.table.Seated(user) {
		return poker.ErrNotSeated
	}
	if l.table.InHand() {
		return fmt.Errorf("%w: hand in progress", poker.ErrIllegalAction)
	}
	for _, u := range l.table.Users() {
		if err := l.leaveLocked(u); err != nil {
			l.logger.Error("cash-out failed", "user", u, "error", err)
		}
	}
	l.logger.Info("table closed", "by", user)
	return nil
}

// Act applies one poker decision for the acting user
func (l *PokerLobby) Act(user string, action poker.Action, amount int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.table.Apply(user, action, amount); err != nil {
		return err
	}
	l.rearmLocked()
	return nil
}

// Disconnect removes a departed session if it was seated. The engine
// folds the seat immediately when it held the acting turn.
func (l *PokerLobby) Disconnect(user string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.table.Seated(user) {
		return
	}
	if err := l.leaveLocked(user); err != nil {
		l.logger.Error("disconnect cleanup failed", "user", user, "error", err)
	}
}

// Seated reports whether the user has a seat at the table
func (l *PokerLobby) Seated(user string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.table.Seated(user)
}

// LobbyState builds the roster broadcast payload
func (l *PokerLobby) LobbyState() protocol.LobbyStatePayload {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := protocol.LobbyStatePayload{
		LobbyID: l.id,
		Players: []protocol.LobbyPlayer{},
		MinBet:  l.cfg.MinBet,
		MaxBet:  l.cfg.MaxBet,
		InGame:  l.table.InHand(),
	}
	for _, user := range l.table.Users() {
		st.Players = append(st.Players, protocol.LobbyPlayer{
			Name:    user,
			Balance: l.users.Balance(user),
		})
	}
	return st
}

// StateFor snapshots the table as seen by one viewer
func (l *PokerLobby) StateFor(viewer string) poker.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.table.Snapshot(viewer)
}

// rearmLocked schedules the turn timer for the acting seat, replacing
// any previous timer. Callers hold the lobby mutex.
func (l *PokerLobby) rearmLocked() {
	l.timerSeq++
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}

	user := l.table.CurrentUser()
	if user == "" {
		return
	}
	seq := l.timerSeq
	l.timer = l.clock.AfterFunc(l.cfg.TurnTimeout, func() {
		l.onTimeout(seq, user)
	})
}

func (l *PokerLobby) onTimeout(seq int, user string) {
	l.mu.Lock()
	if seq != l.timerSeq {
		l.mu.Unlock()
		return
	}
	l.logger.Info("turn timer expired", "user", user)
	l.table.ForceDefault(user)
	l.rearmLocked()
	l.mu.Unlock()

	l.notify()
}
