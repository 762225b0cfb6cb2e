package server

import (
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(1000, log.New(io.Discard), quartz.NewMock(t))
}

func TestRegistryBindCreatesAccount(t *testing.T) {
	r := newTestRegistry(t)

	require.NoError(t, r.Bind("alice", nil))
	u, ok := r.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, 1000, u.Balance)
	assert.Equal(t, []string{"alice"}, r.Online())
}

func TestRegistryRejectsDuplicateName(t *testing.T) {
	r := newTestRegistry(t)

	require.NoError(t, r.Bind("alice", nil))
	assert.ErrorIs(t, r.Bind("alice", nil), ErrNameTaken)
}

func TestRegistryReconnectKeepsBalance(t *testing.T) {
	r := newTestRegistry(t)

	require.NoError(t, r.Bind("alice", nil))
	require.NoError(t, r.Debit("alice", 400))
	r.Unbind("alice")

	require.NoError(t, r.Bind("alice", nil), "name is free again after unbind")
	assert.Equal(t, 600, r.Balance("alice"), "account survives the disconnect")
}

func TestRegistryDebitInsufficientFunds(t *testing.T) {
	r := newTestRegistry(t)

	require.NoError(t, r.Bind("alice", nil))
	err := r.Debit("alice", 1500)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, 1000, r.Balance("alice"), "failed debit does not mutate")
}

func TestRegistryCreditAndDebit(t *testing.T) {
	r := newTestRegistry(t)

	require.NoError(t, r.Bind("alice", nil))
	require.NoError(t, r.Debit("alice", 250))
	require.NoError(t, r.Credit("alice", 100))
	assert.Equal(t, 850, r.Balance("alice"))

	assert.ErrorIs(t, r.Debit("ghost", 1), ErrUnknownUser)
	assert.ErrorIs(t, r.Credit("ghost", 1), ErrUnknownUser)
}
