package server

import (
	"sync"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/greenfelt/casino/internal/blackjack"
	"github.com/greenfelt/casino/internal/protocol"
)

// BlackjackLobby owns the blackjack table. Bets are escrowed: posting
// a bet debits the balance at once, doubling debits the extra bet, and
// settlement credits each payout exactly once.
type BlackjackLobby struct {
	id     string
	cfg    blackjack.Config
	logger *log.Logger
	clock  quartz.Clock
	users  *Registry
	notify func()

	mu       sync.Mutex
	game     *blackjack.Game
	timer    *quartz.Timer
	timerSeq int
}

// NewBlackjackLobby creates the lobby with an empty table
func NewBlackjackLobby(cfg blackjack.Config, users *Registry, logger *log.Logger, clock quartz.Clock) *BlackjackLobby {
	return &BlackjackLobby{
		id:     "blackjack",
		cfg:    cfg,
		logger: logger.WithPrefix("blackjack-lobby"),
		clock:  clock,
		users:  users,
		notify: func() {},
		game:   blackjack.NewGame(cfg, logger, clock),
	}
}

// SetNotify installs the broadcast callback for timer-driven mutations
func (l *BlackjackLobby) SetNotify(fn func()) {
	l.notify = fn
}

// Join seats a user. A nil seatID takes the first free seat; a user
// already seated but sitting out rejoins the next round instead.
func (l *BlackjackLobby) Join(user string, seatID *int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.seatedLocked(user) {
		return l.game.Rejoin(user)
	}

	id := -1
	if seatID != nil {
		id = *seatID
	}
	_, err := l.game.Join(user, id)
	return err
}

// Leave frees the user's seat. Escrowed money comes back: a bet posted
// during betting is refunded here, and a dealt hand stands in place so
// its settlement still pays out.
func (l *BlackjackLobby) Leave(user string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.game.Leave(user)
	if err != nil {
		return err
	}
	l.settleLocked()
	l.rearmLocked()
	return nil
}

// Act applies one blackjack decision, moving escrow as needed
func (l *BlackjackLobby) Act(user string, action blackjack.Action, amount int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch action {
	case blackjack.ActionBet:
		if err := l.users.Debit(user, amount); err != nil {
			return err
		}
		if err := l.game.Apply(user, action, amount); err != nil {
			_ = l.users.Credit(user, amount)
			return err
		}

	case blackjack.ActionDoubleDown:
		bet := l.betOf(user)
		if err := l.users.Debit(user, bet); err != nil {
			return err
		}
		if err := l.game.Apply(user, action, amount); err != nil {
			_ = l.users.Credit(user, bet)
			return err
		}

	default:
		if err := l.game.Apply(user, action, amount); err != nil {
			return err
		}
	}

	l.settleLocked()
	l.rearmLocked()
	return nil
}

// Disconnect drops a departed session's seat
func (l *BlackjackLobby) Disconnect(user string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.seatedLocked(user) {
		return
	}
	if err := l.game.Leave(user); err != nil {
		l.logger.Error("disconnect cleanup failed", "user", user, "error", err)
	}
	l.settleLocked()
	l.rearmLocked()
}

// Seated reports whether the user holds a seat
func (l *BlackjackLobby) Seated(user string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seatedLocked(user)
}

func (l *BlackjackLobby) seatedLocked(user string) bool {
	for _, u := range l.game.Users() {
		if u == user {
			return true
		}
	}
	return false
}

// LobbyState builds the roster broadcast payload
func (l *BlackjackLobby) LobbyState() protocol.LobbyStatePayload {
	l.mu.Lock()
	defer l.mu.Unlock()

	phase := l.game.Phase()
	st := protocol.LobbyStatePayload{
		LobbyID: l.id,
		Players: []protocol.LobbyPlayer{},
		MinBet:  l.cfg.MinBet,
		MaxBet:  l.cfg.MaxBet,
		InGame:  phase != blackjack.PhaseWaiting && phase != blackjack.PhaseFinished,
	}
	for _, user := range l.game.Users() {
		st.Players = append(st.Players, protocol.LobbyPlayer{
			Name:    user,
			Balance: l.users.Balance(user),
		})
	}
	return st
}

// State snapshots the table. Blackjack hands are public, so every
// viewer sees the same snapshot.
func (l *BlackjackLobby) State() blackjack.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.game.Snapshot()
}

// betOf returns the user's posted bet this round. Callers hold the
// lobby mutex.
func (l *BlackjackLobby) betOf(user string) int {
	for _, view := range l.game.Snapshot().Players {
		if view.User == user {
			return view.Hand.Bet
		}
	}
	return 0
}

// settleLocked credits payouts once the round has settled
func (l *BlackjackLobby) settleLocked() {
	for _, r := range l.game.ConsumeResults() {
		if r.Payout > 0 {
			if err := l.users.Credit(r.User, r.Payout); err != nil {
				l.logger.Error("payout failed", "user", r.User, "error", err)
			}
		}
		l.logger.Info("settled", "user", r.User, "outcome", r.Outcome, "bet", r.Bet, "payout", r.Payout)
	}
}

// rearmLocked schedules the phase timer: one shared deadline for the
// betting phase, a per-seat deadline during the player turn.
func (l *BlackjackLobby) rearmLocked() {
	l.timerSeq++
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}

	seq := l.timerSeq
	switch l.game.Phase() {
	case blackjack.PhaseBetting:
		l.timer = l.clock.AfterFunc(l.cfg.TurnTimeout, func() {
			l.onBettingTimeout(seq)
		})
	case blackjack.PhasePlayerTurn:
		user := l.game.CurrentUser()
		if user == "" {
			return
		}
		l.timer = l.clock.AfterFunc(l.cfg.TurnTimeout, func() {
			l.onTurnTimeout(seq, user)
		})
	}
}

func (l *BlackjackLobby) onBettingTimeout(seq int) {
	l.mu.Lock()
	if seq != l.timerSeq {
		l.mu.Unlock()
		return
	}
	l.logger.Info("betting timer expired")
	for _, user := range l.game.Users() {
		l.game.ForceDefault(user)
	}
	l.settleLocked()
	l.rearmLocked()
	l.mu.Unlock()

	l.notify()
}

func (l *BlackjackLobby) onTurnTimeout(seq int, user string) {
	l.mu.Lock()
	if seq != l.timerSeq {
		l.mu.Unlock()
		return
	}
	l.logger.Info("turn timer expired", "user", user)
	l.game.ForceDefault(user)
	l.settleLocked()
	l.rearmLocked()
	l.mu.Unlock()

	l.notify()
}
