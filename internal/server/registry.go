package server

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
)

var (
	// ErrNameTaken is returned when a JOIN names an already-connected user
	ErrNameTaken = errors.New("name already connected")

	// ErrUnknownUser is returned for balance operations on absent users
	ErrUnknownUser = errors.New("unknown user")

	// ErrInsufficientFunds is returned when a debit exceeds the balance
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// User is a server-side account. Balance moves only through Debit and
// Credit, driven by buy-ins, bets and settlement.
type User struct {
	Name      string    `json:"name"`
	Balance   int       `json:"balance"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Registry maps session names to connections and holds user accounts.
// Accounts survive disconnects; the connection binding does not.
type Registry struct {
	mu              sync.RWMutex
	users           map[string]*User
	online          map[string]*Connection
	startingBalance int
	clock           quartz.Clock
	logger          *log.Logger
}

// NewRegistry creates an empty session registry
func NewRegistry(startingBalance int, logger *log.Logger, clock quartz.Clock) *Registry {
	return &Registry{
		users:           make(map[string]*User),
		online:          make(map[string]*Connection),
		startingBalance: startingBalance,
		clock:           clock,
		logger:          logger.WithPrefix("registry"),
	}
}

// Bind associates a name with a connection. Names are unique across
// connected sessions; a returning user reclaims their account.
func (r *Registry) Bind(name string, conn *Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.online[name]; ok {
		return fmt.Errorf("%w: %s", ErrNameTaken, name)
	}
	if _, ok := r.users[name]; !ok {
		now := r.clock.Now()
		r.users[name] = &User{
			Name:      name,
			Balance:   r.startingBalance,
			CreatedAt: now,
			UpdatedAt: now,
		}
		r.logger.Info("account created", "user", name, "balance", r.startingBalance)
	}
	r.online[name] = conn
	r.logger.Info("session bound", "user", name)
	return nil
}

// Unbind drops the connection binding, keeping the account
func (r *Registry) Unbind(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.online, name)
}

// Connection returns the live connection for a user, if any
func (r *Registry) Connection(name string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.online[name]
	return conn, ok
}

// Online returns all connected user names in sorted order
func (r *Registry) Online() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.online))
	for name := range r.online {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns a copy of a user's account
func (r *Registry) Lookup(name string) (User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[name]
	if !ok {
		return User{}, false
	}
	return *u, true
}

// Balance returns the user's current balance
func (r *Registry) Balance(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if u, ok := r.users[name]; ok {
		return u.Balance
	}
	return 0
}

// Debit removes funds from a user's balance. Fails without mutation
// when the balance cannot cover the amount.
func (r *Registry) Debit(name string, amount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownUser, name)
	}
	if u.Balance < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, name, u.Balance, amount)
	}
	u.Balance -= amount
	u.UpdatedAt = r.clock.Now()
	return nil
}

// Credit adds funds to a user's balance
func (r *Registry) Credit(name string, amount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownUser, name)
	}
	u.Balance += amount
	u.UpdatedAt = r.clock.Now()
	return nil
}
