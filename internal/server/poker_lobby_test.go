package server

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenfelt/casino/internal/poker"
)

func newTestPokerLobby(t *testing.T, balance int) (*PokerLobby, *Registry, *quartz.Mock) {
	t.Helper()
	clock := quartz.NewMock(t)
	logger := log.New(io.Discard)
	users := NewRegistry(balance, logger, clock)

	cfg := poker.DefaultConfig()
	cfg.TurnTimeout = 30 * time.Second
	return NewPokerLobby(cfg, users, logger, clock), users, clock
}

func TestPokerLobbyBuyInAndCashOut(t *testing.T) {
	lobby, users, _ := newTestPokerLobby(t, 2500)
	require.NoError(t, users.Bind("alice", nil))

	require.NoError(t, lobby.Join("alice"))
	assert.Equal(t, 1500, users.Balance("alice"), "buy-in moves chips out of the balance")
	assert.True(t, lobby.Seated("alice"))

	require.NoError(t, lobby.Leave("alice"))
	assert.Equal(t, 2500, users.Balance("alice"), "cash-out returns untouched chips")
	assert.False(t, lobby.Seated("alice"))
}

func TestPokerLobbyJoinInsufficientBalance(t *testing.T) {
	lobby, users, _ := newTestPokerLobby(t, 500)
	require.NoError(t, users.Bind("alice", nil))

	err := lobby.Join("alice")
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, 500, users.Balance("alice"), "failed buy-in does not debit")
	assert.False(t, lobby.Seated("alice"))
}

func TestPokerLobbyStartHandRequiresSeat(t *testing.T) {
	lobby, users, _ := newTestPokerLobby(t, 2500)
	require.NoError(t, users.Bind("alice", nil))

	assert.ErrorIs(t, lobby.StartHand("alice"), poker.ErrNotSeated)
}

func TestPokerLobbyTurnTimerForcesDefault(t *testing.T) {
	lobby, users, clock := newTestPokerLobby(t, 2500)
	for _, name := range []string{"alice", "bob"} {
		require.NoError(t, users.Bind(name, nil))
		require.NoError(t, lobby.Join(name))
	}

	var notified atomic.Int32
	lobby.SetNotify(func() { notified.Add(1) })

	require.NoError(t, lobby.StartHand("alice"))
	first := lobby.StateFor("").CurrentPlayerIndex
	require.GreaterOrEqual(t, first, 0)

	// Nobody acts; the timer checks the first seat through
	clock.Advance(30 * time.Second).MustWait(context.Background())

	st := lobby.StateFor("")
	assert.True(t, st.InHand, "free check keeps the hand alive")
	assert.NotEqual(t, first, st.CurrentPlayerIndex, "turn moved on")
	assert.Greater(t, notified.Load(), int32(0), "timeout triggers a broadcast")
}

func TestPokerLobbyEndGameCashesEveryoneOut(t *testing.T) {
	lobby, users, _ := newTestPokerLobby(t, 2500)
	for _, name := range []string{"alice", "bob"} {
		require.NoError(t, users.Bind(name, nil))
		require.NoError(t, lobby.Join(name))
	}

	require.NoError(t, lobby.EndGame("alice"))
	assert.False(t, lobby.Seated("alice"))
	assert.False(t, lobby.Seated("bob"))
	assert.Equal(t, 2500, users.Balance("alice"))
	assert.Equal(t, 2500, users.Balance("bob"))
}

func TestPokerLobbyEndGameRejectedMidHand(t *testing.T) {
	lobby, users, _ := newTestPokerLobby(t, 2500)
	for _, name := range []string{"alice", "bob"} {
		require.NoError(t, users.Bind(name, nil))
		require.NoError(t, lobby.Join(name))
	}

	require.NoError(t, lobby.StartHand("alice"))
	assert.ErrorIs(t, lobby.EndGame("alice"), poker.ErrIllegalAction)
}

func TestPokerLobbyDisconnectFoldsSeat(t *testing.T) {
	lobby, users, _ := newTestPokerLobby(t, 2500)
	for _, name := range []string{"alice", "bob", "carol"} {
		require.NoError(t, users.Bind(name, nil))
		require.NoError(t, lobby.Join(name))
	}

	require.NoError(t, lobby.StartHand("alice"))
	acting := lobby.StateFor("").Players[lobby.StateFor("").CurrentPlayerIndex].User

	lobby.Disconnect(acting)

	st := lobby.StateFor("")
	for _, p := range st.Players {
		if p.User == acting {
			assert.True(t, p.HasFolded, "disconnected seat folds immediately")
		}
	}
	assert.Equal(t, 2500, users.Balance(acting), "remaining stack cashes out")
}
