package blackjack

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/greenfelt/casino/internal/deck"
)

// NumSeats is the fixed number of seats at a blackjack table
const NumSeats = 5

// Phase represents the round lifecycle
type Phase string

const (
	PhaseWaiting    Phase = "waiting"
	PhaseBetting    Phase = "betting"
	PhaseDealing    Phase = "dealing"
	PhasePlayerTurn Phase = "player_turn"
	PhaseDealerTurn Phase = "dealer_turn"
	PhaseFinished   Phase = "finished"
)

// Action represents a blackjack action as it appears on the wire
type Action string

const (
	ActionHit        Action = "HIT"
	ActionStand      Action = "STAND"
	ActionDoubleDown Action = "DOUBLE_DOWN"
	ActionSplit      Action = "SPLIT"
	ActionBet        Action = "BET"
	ActionDeal       Action = "DEAL"
	ActionSitOut     Action = "SIT_OUT"
	ActionSpectate   Action = "SPECTATE"
)

// Outcome describes how a seat settled against the dealer
type Outcome string

const (
	OutcomeWin        Outcome = "win"
	OutcomeBlackjack  Outcome = "blackjack"
	OutcomePush       Outcome = "push"
	OutcomeLose       Outcome = "lose"
	OutcomeDealerBust Outcome = "dealer_bust"
)

var (
	// ErrIllegalAction covers well-formed actions that violate turn or
	// phase rules. The caller reports these to the acting session only.
	ErrIllegalAction = errors.New("illegal action")

	// ErrSeatTaken is returned when joining an occupied seat
	ErrSeatTaken = errors.New("seat taken")

	// ErrTableFull is returned when no seat is free
	ErrTableFull = errors.New("table full")

	// ErrNotSeated is returned for actions from users without a seat
	ErrNotSeated = errors.New("not seated at this table")
)

// Config holds table settings
type Config struct {
	MinBet          int
	MaxBet          int
	BlackjackPayout float64 // multiplier on the bet for a natural, e.g. 1.5
	TurnTimeout     time.Duration
}

// DefaultConfig returns sensible table settings
func DefaultConfig() Config {
	return Config{
		MinBet:          10,
		MaxBet:          500,
		BlackjackPayout: 1.5,
		TurnTimeout:     30 * time.Second,
	}
}

// Hand is a seat's cards for the current round
type Hand struct {
	Cards       []deck.Card `json:"cards"`
	Bet         int         `json:"bet"`
	IsStanding  bool        `json:"isStanding"`
	IsBusted    bool        `json:"isBusted"`
	IsBlackjack bool        `json:"isBlackjack"`
	Value       int         `json:"value"`
}

// Seat is a table position, optionally occupied
type Seat struct {
	User       string
	Hand       Hand
	IsActive   bool // participating in the current round
	IsFinished bool // done acting this round
	SittingOut bool
	BetPosted  bool
	Doubled    bool
	Departed   bool // user left mid-round, seat freed after settlement
	Outcome    Outcome
	Payout     int
}

// Result reports one seat's settlement. Payout is the credit owed back
// to the user, bets having been escrowed when posted.
type Result struct {
	SeatID  int
	User    string
	Outcome Outcome
	Bet     int
	Payout  int
}

// Game is the authoritative blackjack table state machine. It is not
// safe for concurrent use; the owning table serializes access.
type Game struct {
	cfg           Config
	logger        *log.Logger
	clock         quartz.Clock
	newShoe       func() *deck.Deck
	shoe          *deck.Deck
	phase         Phase
	dealerHand    []deck.Card
	dealerVisible bool
	seats         [NumSeats]*Seat
	currentSeat   int
	turnEndsAt    time.Time
	roundNumber   int
	lastResults   []Result
}

// NewGame creates a blackjack table with empty seats
func NewGame(cfg Config, logger *log.Logger, clock quartz.Clock) *Game {
	g := &Game{
		cfg:         cfg,
		logger:      logger.WithPrefix("blackjack"),
		clock:       clock,
		newShoe:     deck.NewShuffled,
		phase:       PhaseWaiting,
		currentSeat: -1,
	}
	g.shoe = g.newShoe()
	for i := range g.seats {
		g.seats[i] = &Seat{}
	}
	return g
}

// Phase returns the current round phase
func (g *Game) Phase() Phase {
	return g.phase
}

// CurrentUser returns the user whose turn it is, or "" outside player_turn
func (g *Game) CurrentUser() string {
	if g.phase != PhasePlayerTurn || g.currentSeat < 0 {
		return ""
	}
	return g.seats[g.currentSeat].User
}

// Join seats a user. seatID -1 takes the first free seat.
func (g *Game) Join(user string, seatID int) (int, error) {
	if g.seatOf(user) >= 0 {
		return -1, fmt.Errorf("%w: %s already seated", ErrIllegalAction, user)
	}
	if seatID >= NumSeats {
		return -1, fmt.Errorf("%w: seat %d out of range", ErrIllegalAction, seatID)
	}
	if seatID < 0 {
		for i, s := range g.seats {
			if s.User == "" {
				seatID = i
				break
			}
		}
		if seatID < 0 {
			return -1, ErrTableFull
		}
	} else if g.seats[seatID].User != "" {
		return -1, ErrSeatTaken
	}

	g.seats[seatID] = &Seat{User: user}
	g.logger.Info("player seated", "user", user, "seat", seatID)
	return seatID, nil
}

// Leave removes a user from the table. A bet posted this round is not
// forfeited: during betting it is returned, and a dealt hand stands in
// place so settlement still pays it, the seat being freed only after
// the round settles.
func (g *Game) Leave(user string) error {
	id := g.seatOf(user)
	if id < 0 {
		return ErrNotSeated
	}
	seat := g.seats[id]

	switch {
	case g.phase == PhaseBetting && seat.BetPosted:
		g.lastResults = append(g.lastResults, Result{
			SeatID: id, User: user, Outcome: OutcomePush,
			Bet: seat.Hand.Bet, Payout: seat.Hand.Bet,
		})
		g.seats[id] = &Seat{}
		g.logger.Info("player left during betting, bet returned", "user", user, "seat", id)
		g.maybeDeal()

	case g.phase == PhasePlayerTurn && seat.IsActive:
		seat.Departed = true
		if !seat.IsFinished {
			seat.Hand.IsStanding = true
			g.finishSeat(seat)
			if g.currentSeat == id {
				g.advanceTurn()
			}
		}
		g.logger.Info("player left mid-round, hand stands", "user", user, "seat", id)

	default:
		g.seats[id] = &Seat{}
		g.logger.Info("player left", "user", user, "seat", id)
		if g.phase == PhaseBetting {
			g.maybeDeal()
		}
	}
	return nil
}

// Apply handles a player action for the current phase
func (g *Game) Apply(user string, action Action, amount int) error {
	switch action {
	case ActionDeal:
		return g.startBetting(user)
	case ActionBet:
		return g.placeBet(user, amount)
	case ActionHit:
		return g.hit(user)
	case ActionStand:
		return g.stand(user)
	case ActionDoubleDown:
		return g.doubleDown(user)
	case ActionSplit:
		// Declared on the wire but not implemented; one hand per seat.
		return fmt.Errorf("%w: split not supported", ErrIllegalAction)
	case ActionSitOut, ActionSpectate:
		return g.sitOut(user)
	default:
		return fmt.Errorf("%w: unknown action %q", ErrIllegalAction, action)
	}
}

// ForceDefault applies the timeout/disconnect policy for a user: sit out
// during betting, stand when holding the acting turn.
func (g *Game) ForceDefault(user string) {
	id := g.seatOf(user)
	if id < 0 {
		return
	}
	switch g.phase {
	case PhaseBetting:
		if !g.seats[id].BetPosted {
			g.logger.Info("betting timeout, sitting out", "user", user)
			_ = g.sitOut(user)
		}
	case PhasePlayerTurn:
		if g.currentSeat == id {
			g.logger.Info("turn timeout, standing", "user", user)
			_ = g.stand(user)
		}
	}
}

// startBetting opens a new round from waiting or finished
func (g *Game) startBetting(user string) error {
	if g.seatOf(user) < 0 {
		return ErrNotSeated
	}
	if g.phase != PhaseWaiting && g.phase != PhaseFinished {
		return fmt.Errorf("%w: round already underway", ErrIllegalAction)
	}
	g.resetRound()
	g.lastResults = nil
	g.phase = PhaseBetting
	g.turnEndsAt = g.clock.Now().Add(g.cfg.TurnTimeout)
	g.logger.Info("betting open", "round", g.roundNumber+1)
	return nil
}

func (g *Game) placeBet(user string, amount int) error {
	if g.phase != PhaseBetting {
		return fmt.Errorf("%w: not in betting phase", ErrIllegalAction)
	}
	id := g.seatOf(user)
	if id < 0 {
		return ErrNotSeated
	}
	seat := g.seats[id]
	if seat.SittingOut {
		return fmt.Errorf("%w: sitting out", ErrIllegalAction)
	}
	if seat.BetPosted {
		return fmt.Errorf("%w: bet already posted", ErrIllegalAction)
	}
	if amount < g.cfg.MinBet || amount > g.cfg.MaxBet {
		return fmt.Errorf("%w: bet %d outside table limits %d-%d",
			ErrIllegalAction, amount, g.cfg.MinBet, g.cfg.MaxBet)
	}

	seat.Hand.Bet = amount
	seat.BetPosted = true
	g.logger.Info("bet posted", "user", user, "amount", amount)
	g.maybeDeal()
	return nil
}

// maybeDeal advances to dealing once every eligible seat has posted
func (g *Game) maybeDeal() {
	if g.phase != PhaseBetting {
		return
	}
	for _, s := range g.seats {
		if s.User != "" && !s.SittingOut && !s.BetPosted {
			return
		}
	}
	g.deal()
}

// deal gives two cards to each bet-posted seat and the dealer, hidden
// second card, then opens the player turn
func (g *Game) deal() {
	g.phase = PhaseDealing
	g.shoe = g.newShoe()

	for _, s := range g.seats {
		if s.User != "" && s.BetPosted {
			s.IsActive = true
		}
	}

	for pass := 0; pass < 2; pass++ {
		for _, s := range g.seats {
			if !s.IsActive {
				continue
			}
			card, err := g.shoe.DrawOne()
			if err != nil {
				g.abortRound(err)
				return
			}
			s.Hand.Cards = append(s.Hand.Cards, card)
		}
		card, err := g.shoe.DrawOne()
		if err != nil {
			g.abortRound(err)
			return
		}
		g.dealerHand = append(g.dealerHand, card)
	}

	for _, s := range g.seats {
		if !s.IsActive {
			continue
		}
		g.recompute(s)
		if s.Hand.IsBlackjack {
			s.IsFinished = true
		}
	}

	g.dealerVisible = false
	g.phase = PhasePlayerTurn
	g.currentSeat = -1
	g.advanceTurn()
}

// abortRound handles deck exhaustion mid-deal: fatal to the hand, bets
// returned, table back to waiting
func (g *Game) abortRound(err error) {
	g.logger.Error("round aborted", "error", err)
	for i, s := range g.seats {
		if s.Hand.Bet > 0 {
			g.lastResults = append(g.lastResults, Result{
				SeatID: i, User: s.User, Outcome: OutcomePush,
				Bet: s.Hand.Bet, Payout: s.Hand.Bet,
			})
		}
	}
	g.freeDepartedSeats()
	g.resetRound()
	g.phase = PhaseWaiting
}

func (g *Game) hit(user string) error {
	seat, err := g.actingSeat(user)
	if err != nil {
		return err
	}
	card, err := g.shoe.DrawOne()
	if err != nil {
		g.abortRound(err)
		return nil
	}
	seat.Hand.Cards = append(seat.Hand.Cards, card)
	g.recompute(seat)
	g.logger.Info("hit", "user", user, "card", card, "value", seat.Hand.Value)

	if seat.Hand.IsBusted || seat.Hand.Value == 21 {
		g.finishSeat(seat)
		g.advanceTurn()
	} else {
		g.turnEndsAt = g.clock.Now().Add(g.cfg.TurnTimeout)
	}
	return nil
}

func (g *Game) stand(user string) error {
	seat, err := g.actingSeat(user)
	if err != nil {
		return err
	}
	seat.Hand.IsStanding = true
	g.finishSeat(seat)
	g.logger.Info("stand", "user", user, "value", seat.Hand.Value)
	g.advanceTurn()
	return nil
}

func (g *Game) doubleDown(user string) error {
	seat, err := g.actingSeat(user)
	if err != nil {
		return err
	}
	if len(seat.Hand.Cards) != 2 || seat.Doubled {
		return fmt.Errorf("%w: double down only as first decision", ErrIllegalAction)
	}

	card, err := g.shoe.DrawOne()
	if err != nil {
		g.abortRound(err)
		return nil
	}
	seat.Doubled = true
	seat.Hand.Bet *= 2
	seat.Hand.Cards = append(seat.Hand.Cards, card)
	g.recompute(seat)
	if !seat.Hand.IsBusted {
		seat.Hand.IsStanding = true
	}
	g.logger.Info("double down", "user", user, "card", card, "value", seat.Hand.Value)
	g.finishSeat(seat)
	g.advanceTurn()
	return nil
}

// sitOut removes the seat from the active round without giving up the
// table position
func (g *Game) sitOut(user string) error {
	id := g.seatOf(user)
	if id < 0 {
		return ErrNotSeated
	}
	seat := g.seats[id]
	seat.SittingOut = true

	switch g.phase {
	case PhaseBetting:
		// A bet already posted comes back; the seat must not be dealt in
		if seat.BetPosted {
			g.lastResults = append(g.lastResults, Result{
				SeatID: id, User: user, Outcome: OutcomePush,
				Bet: seat.Hand.Bet, Payout: seat.Hand.Bet,
			})
			seat.Hand.Bet = 0
			seat.BetPosted = false
		}
		g.maybeDeal()
	case PhasePlayerTurn:
		if seat.IsActive && !seat.IsFinished {
			seat.IsActive = false
			g.finishSeat(seat)
			if g.currentSeat == id {
				g.advanceTurn()
			}
		}
	}
	g.logger.Info("sitting out", "user", user)
	return nil
}

// Rejoin clears a sitting-out flag between rounds
func (g *Game) Rejoin(user string) error {
	id := g.seatOf(user)
	if id < 0 {
		return ErrNotSeated
	}
	g.seats[id].SittingOut = false
	return nil
}

func (g *Game) actingSeat(user string) (*Seat, error) {
	if g.phase != PhasePlayerTurn {
		return nil, fmt.Errorf("%w: not in player turn", ErrIllegalAction)
	}
	id := g.seatOf(user)
	if id < 0 {
		return nil, ErrNotSeated
	}
	if id != g.currentSeat {
		return nil, fmt.Errorf("%w: not your turn", ErrIllegalAction)
	}
	return g.seats[id], nil
}

func (g *Game) recompute(s *Seat) {
	v, _ := Value(s.Hand.Cards)
	s.Hand.Value = v
	s.Hand.IsBusted = IsBust(s.Hand.Cards)
	s.Hand.IsBlackjack = IsBlackjack(s.Hand.Cards)
}

func (g *Game) finishSeat(s *Seat) {
	s.IsFinished = true
}

// advanceTurn moves to the next active unfinished seat in index order,
// or runs the dealer when none remain
func (g *Game) advanceTurn() {
	if g.phase != PhasePlayerTurn {
		return
	}
	for i := g.currentSeat + 1; i < NumSeats; i++ {
		s := g.seats[i]
		if s.IsActive && !s.IsFinished {
			g.currentSeat = i
			g.turnEndsAt = g.clock.Now().Add(g.cfg.TurnTimeout)
			g.logger.Debug("turn", "user", s.User, "seat", i)
			return
		}
	}
	g.currentSeat = -1
	g.dealerTurn()
}

// dealerTurn reveals the hole card and applies the house policy
func (g *Game) dealerTurn() {
	g.phase = PhaseDealerTurn
	g.dealerVisible = true

	// Dealer only draws when a live hand remains to pay
	live := false
	for _, s := range g.seats {
		if s.IsActive && !s.Hand.IsBusted {
			live = true
			break
		}
	}

	for live && DealerShouldHit(g.dealerHand) {
		card, err := g.shoe.DrawOne()
		if err != nil {
			g.abortRound(err)
			return
		}
		g.dealerHand = append(g.dealerHand, card)
		v, _ := Value(g.dealerHand)
		g.logger.Info("dealer hits", "card", card, "value", v)
	}

	g.settle()
}

// settle resolves every active seat against the dealer and records results
func (g *Game) settle() {
	dealerValue, _ := Value(g.dealerHand)
	dealerBust := IsBust(g.dealerHand)
	dealerNatural := IsBlackjack(g.dealerHand)

	// Appends, never resets: refunds recorded earlier in the round
	// (sit-outs, departures during betting) settle alongside the hands
	for i, s := range g.seats {
		if !s.IsActive {
			continue
		}
		bet := s.Hand.Bet

		switch {
		case s.Hand.IsBusted:
			s.Outcome = OutcomeLose
			s.Payout = 0
		case s.Hand.IsBlackjack && !dealerNatural:
			s.Outcome = OutcomeBlackjack
			s.Payout = bet + int(float64(bet)*g.cfg.BlackjackPayout)
		case dealerNatural && !s.Hand.IsBlackjack:
			s.Outcome = OutcomeLose
			s.Payout = 0
		case dealerBust:
			s.Outcome = OutcomeDealerBust
			s.Payout = bet * 2
		case s.Hand.Value > dealerValue:
			s.Outcome = OutcomeWin
			s.Payout = bet * 2
		case s.Hand.Value == dealerValue:
			s.Outcome = OutcomePush
			s.Payout = bet
		default:
			s.Outcome = OutcomeLose
			s.Payout = 0
		}

		g.lastResults = append(g.lastResults, Result{
			SeatID: i, User: s.User, Outcome: s.Outcome,
			Bet: bet, Payout: s.Payout,
		})
		g.logger.Info("settled", "user", s.User, "outcome", s.Outcome,
			"bet", bet, "payout", s.Payout)
	}

	g.phase = PhaseFinished
	g.roundNumber++
	g.freeDepartedSeats()
}

// freeDepartedSeats clears seats whose users left mid-round, now that
// their hands have been settled
func (g *Game) freeDepartedSeats() {
	for i, s := range g.seats {
		if s.Departed {
			g.seats[i] = &Seat{}
		}
	}
}

// LastResults returns the settlement of the most recent round
func (g *Game) LastResults() []Result {
	return append([]Result(nil), g.lastResults...)
}

// ConsumeResults returns the settlement of the last round and clears it,
// so the owning table credits each payout exactly once.
func (g *Game) ConsumeResults() []Result {
	results := g.lastResults
	g.lastResults = nil
	return results
}

// resetRound clears per-round state, keeping seats and sit-out flags
func (g *Game) resetRound() {
	for _, s := range g.seats {
		user, sittingOut := s.User, s.SittingOut
		*s = Seat{User: user, SittingOut: sittingOut}
	}
	g.dealerHand = nil
	g.dealerVisible = false
	g.currentSeat = -1
}

// Reset returns a finished table to waiting
func (g *Game) Reset() {
	if g.phase == PhaseFinished {
		g.resetRound()
		g.phase = PhaseWaiting
	}
}

func (g *Game) seatOf(user string) int {
	for i, s := range g.seats {
		if s.User != "" && s.User == user {
			return i
		}
	}
	return -1
}

// Occupied returns the number of seated users
func (g *Game) Occupied() int {
	n := 0
	for _, s := range g.seats {
		if s.User != "" {
			n++
		}
	}
	return n
}

// Users returns all seated users
func (g *Game) Users() []string {
	var users []string
	for _, s := range g.seats {
		if s.User != "" {
			users = append(users, s.User)
		}
	}
	return users
}

// PlayerView is one seat as exposed in snapshots
type PlayerView struct {
	User       string `json:"user"`
	Hand       Hand   `json:"hand"`
	IsActive   bool   `json:"isActive"`
	IsFinished bool   `json:"isFinished"`
	SittingOut bool   `json:"sittingOut"`
	Outcome    string `json:"outcome,omitempty"`
}

// State is the full serializable snapshot of the table
type State struct {
	Phase           Phase              `json:"phase"`
	DealerHand      []deck.Card        `json:"dealerHand"`
	DealerVisible   bool               `json:"dealerVisible"`
	DealerValue     int                `json:"dealerValue"`
	Players         map[int]PlayerView `json:"players"`
	CurrentPlayerID string             `json:"currentPlayerId,omitempty"`
	CurrentSeat     int                `json:"currentSeat"`
	TurnEndsAt      *time.Time         `json:"turnEndsAt,omitempty"`
	RoundNumber     int                `json:"roundNumber"`
	MinBet          int                `json:"minBet"`
	MaxBet          int                `json:"maxBet"`
}

// Snapshot serializes the full table state. The dealer's hole card is
// masked until the dealer turn reveals it.
func (g *Game) Snapshot() State {
	st := State{
		Phase:         g.phase,
		DealerVisible: g.dealerVisible,
		Players:       make(map[int]PlayerView),
		CurrentSeat:   g.currentSeat,
		RoundNumber:   g.roundNumber,
		MinBet:        g.cfg.MinBet,
		MaxBet:        g.cfg.MaxBet,
	}

	if g.dealerVisible {
		st.DealerHand = append([]deck.Card(nil), g.dealerHand...)
		st.DealerValue, _ = Value(g.dealerHand)
	} else if len(g.dealerHand) > 0 {
		// Only the up-card is public
		st.DealerHand = []deck.Card{g.dealerHand[0]}
		st.DealerValue, _ = Value(st.DealerHand)
	}

	for i, s := range g.seats {
		if s.User == "" {
			continue
		}
		st.Players[i] = PlayerView{
			User:       s.User,
			Hand:       s.Hand,
			IsActive:   s.IsActive,
			IsFinished: s.IsFinished,
			SittingOut: s.SittingOut,
			Outcome:    string(s.Outcome),
		}
	}

	if g.phase == PhasePlayerTurn && g.currentSeat >= 0 {
		st.CurrentPlayerID = g.seats[g.currentSeat].User
	}
	if g.phase == PhasePlayerTurn || g.phase == PhaseBetting {
		t := g.turnEndsAt
		st.TurnEndsAt = &t
	}
	return st
}
