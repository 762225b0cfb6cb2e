package poker

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"

	"github.com/greenfelt/casino/internal/deck"
	"github.com/greenfelt/casino/internal/evaluator"
)

var (
	// ErrIllegalAction covers well-formed actions that violate turn or
	// betting rules. Callers report these to the acting session only.
	ErrIllegalAction = errors.New("illegal action")

	// ErrNotSeated is returned for actions from users without a seat
	ErrNotSeated = errors.New("not seated at this table")

	// ErrAlreadySeated is returned when a user joins twice
	ErrAlreadySeated = errors.New("already seated")

	// ErrTableFull is returned when the table has no free seat
	ErrTableFull = errors.New("table full")

	// ErrTooFewPlayers is returned when a hand cannot start
	ErrTooFewPlayers = errors.New("not enough players")

	// ErrHandInProgress is returned when a hand is already underway
	ErrHandInProgress = errors.New("hand in progress")
)

// Config holds table settings
type Config struct {
	MinBet        int // minimum bet and raise increment
	MaxBet        int // cap on the street bet, 0 for no limit
	StartingChips int
	MaxPlayers    int
	TurnTimeout   time.Duration
}

// DefaultConfig returns sensible table settings
func DefaultConfig() Config {
	return Config{
		MinBet:        10,
		MaxBet:        0,
		StartingChips: 1000,
		MaxPlayers:    9,
		TurnTimeout:   30 * time.Second,
	}
}

// Winner records one player's share of a settled pot
type Winner struct {
	User   string      `json:"user"`
	Amount int         `json:"amount"`
	Label  string      `json:"label,omitempty"`
	Cards  []deck.Card `json:"cards,omitempty"`
}

// Table is the authoritative poker table state machine. It is not safe
// for concurrent use; the owning table serializes access.
type Table struct {
	cfg     Config
	logger  *log.Logger
	clock   quartz.Clock
	newDeck func() *deck.Deck
	cards   *deck.Deck

	players   []*Player
	community []deck.Card

	pot                int // collected from completed streets
	street             Street
	dealerIndex        int
	currentIndex       int
	streetStartIndex   int
	lastAggressorIndex int
	currentBet         int

	handID     string
	turnEndsAt time.Time
	winners    []Winner
	inHand     bool
}

// NewTable creates an empty poker table
func NewTable(cfg Config, logger *log.Logger, clock quartz.Clock) *Table {
	return &Table{
		cfg:          cfg,
		logger:       logger.WithPrefix("poker"),
		clock:        clock,
		newDeck:      deck.NewShuffled,
		dealerIndex:  -1,
		currentIndex: -1,
	}
}

// AddPlayer seats a user with the given chip stack. Joining mid-hand is
// allowed; the player sits out until the next hand.
func (t *Table) AddPlayer(user string, chips int) error {
	if t.indexOf(user) >= 0 {
		return ErrAlreadySeated
	}
	if len(t.players) >= t.cfg.MaxPlayers {
		return ErrTableFull
	}
	t.players = append(t.players, &Player{
		User:       user,
		Chips:      chips,
		SittingOut: t.inHand,
	})
	t.logger.Info("player seated", "user", user, "chips", chips)
	return nil
}

// RemovePlayer takes a user off the table and returns their remaining
// chips. Mid-hand the seat is folded first; chips already committed stay
// in the pot.
func (t *Table) RemovePlayer(user string) (int, error) {
	idx := t.indexOf(user)
	if idx < 0 {
		return 0, ErrNotSeated
	}
	p := t.players[idx]
	chips := p.Chips
	p.Chips = 0

	if t.inHand && p.InHand() {
		wasCurrent := idx == t.currentIndex
		p.Folded = true
		p.Acted = true
		p.SittingOut = true
		t.logger.Info("player left mid-hand, folded", "user", user)
		if t.unfolded() == 1 {
			t.awardUncontested()
		} else if wasCurrent {
			t.advance()
		}
	}

	if t.inHand {
		// Seat is pruned at the next hand so in-hand indexes stay stable
		p.Leaving = true
	} else {
		t.players = append(t.players[:idx], t.players[idx+1:]...)
		if t.dealerIndex >= len(t.players) {
			t.dealerIndex = len(t.players) - 1
		}
	}

	t.logger.Info("player left", "user", user, "chips", chips)
	return chips, nil
}

// StartHand shuffles up and deals. At least two players with chips are
// required.
func (t *Table) StartHand() error {
	if t.inHand {
		return ErrHandInProgress
	}

	// Prune seats abandoned mid-hand
	kept := t.players[:0]
	for _, p := range t.players {
		if !p.Leaving {
			kept = append(kept, p)
		}
	}
	t.players = kept
	if t.dealerIndex >= len(t.players) {
		t.dealerIndex = len(t.players) - 1
	}

	eligible := 0
	for _, p := range t.players {
		p.HoleCards = nil
		p.Folded = false
		p.AllIn = false
		p.Bet = 0
		p.TotalBet = 0
		p.Acted = false
		p.SittingOut = p.Chips <= 0
		if !p.SittingOut {
			eligible++
		}
	}
	if eligible < 2 {
		return ErrTooFewPlayers
	}

	t.cards = t.newDeck()
	t.community = nil
	t.pot = 0
	t.currentBet = 0
	t.winners = nil
	t.street = Preflop
	t.handID = uuid.NewString()
	t.lastAggressorIndex = -1

	for _, p := range t.players {
		if p.SittingOut {
			continue
		}
		hole, err := t.cards.Draw(2)
		if err != nil {
			return fmt.Errorf("dealing hole cards: %w", err)
		}
		p.HoleCards = hole
	}

	t.dealerIndex = t.nextEligible(t.dealerIndex)
	t.streetStartIndex = t.nextEligible(t.dealerIndex)
	t.currentIndex = t.streetStartIndex
	t.inHand = true
	t.armTurn()

	t.logger.Info("hand started", "handId", t.handID,
		"players", eligible, "dealer", t.dealerIndex)
	return nil
}

// Apply handles an action from a user. Illegal actions leave the table
// state untouched.
func (t *Table) Apply(user string, action Action, amount int) error {
	if !t.inHand {
		return fmt.Errorf("%w: no hand in progress", ErrIllegalAction)
	}
	idx := t.indexOf(user)
	if idx < 0 {
		return ErrNotSeated
	}
	if idx != t.currentIndex {
		return fmt.Errorf("%w: not your turn", ErrIllegalAction)
	}
	p := t.players[idx]

	switch action {
	case ActionCheck:
		if p.Bet != t.currentBet {
			return fmt.Errorf("%w: cannot check facing a bet", ErrIllegalAction)
		}
		p.Acted = true

	case ActionCall:
		toCall := t.currentBet - p.Bet
		if toCall <= 0 {
			return fmt.Errorf("%w: nothing to call", ErrIllegalAction)
		}
		if toCall > p.Chips {
			// Short stack: calling all-in for less
			toCall = p.Chips
		}
		t.commit(p, toCall)
		p.Acted = true

	case ActionBet:
		if t.currentBet != 0 {
			return fmt.Errorf("%w: facing a bet, raise instead", ErrIllegalAction)
		}
		if amount > p.Chips {
			return fmt.Errorf("%w: bet %d exceeds stack %d", ErrIllegalAction, amount, p.Chips)
		}
		if amount < t.cfg.MinBet && amount != p.Chips {
			return fmt.Errorf("%w: bet %d below minimum %d", ErrIllegalAction, amount, t.cfg.MinBet)
		}
		if t.cfg.MaxBet > 0 && amount > t.cfg.MaxBet {
			return fmt.Errorf("%w: bet %d above maximum %d", ErrIllegalAction, amount, t.cfg.MaxBet)
		}
		t.commit(p, amount)
		t.currentBet = p.Bet
		t.aggression(idx)

	case ActionRaise:
		if t.currentBet == 0 {
			return fmt.Errorf("%w: nothing to raise, bet instead", ErrIllegalAction)
		}
		allInTarget := p.Bet + p.Chips
		if amount > allInTarget {
			return fmt.Errorf("%w: raise to %d exceeds stack", ErrIllegalAction, amount)
		}
		if amount <= t.currentBet {
			return fmt.Errorf("%w: raise to %d does not exceed current bet %d",
				ErrIllegalAction, amount, t.currentBet)
		}
		if amount < t.currentBet+t.cfg.MinBet && amount != allInTarget {
			return fmt.Errorf("%w: raise to %d below minimum raise to %d",
				ErrIllegalAction, amount, t.currentBet+t.cfg.MinBet)
		}
		if t.cfg.MaxBet > 0 && amount > t.cfg.MaxBet {
			return fmt.Errorf("%w: raise to %d above maximum %d", ErrIllegalAction, amount, t.cfg.MaxBet)
		}
		t.commit(p, amount-p.Bet)
		t.currentBet = p.Bet
		t.aggression(idx)

	case ActionFold:
		p.Folded = true
		p.Acted = true

	default:
		return fmt.Errorf("%w: unknown action %q", ErrIllegalAction, action)
	}

	t.logger.Info("action", "user", user, "action", action, "amount", amount,
		"street", t.street, "pot", t.TotalPot())

	if t.unfolded() == 1 {
		t.awardUncontested()
		return nil
	}
	t.advance()
	return nil
}

// ForceDefault applies the timeout/disconnect policy to the acting
// player: check when free, fold otherwise.
func (t *Table) ForceDefault(user string) {
	if !t.inHand || t.currentIndex < 0 {
		return
	}
	p := t.players[t.currentIndex]
	if p.User != user {
		return
	}
	if p.Bet == t.currentBet {
		t.logger.Info("turn timeout, checking", "user", user)
		_ = t.Apply(user, ActionCheck, 0)
	} else {
		t.logger.Info("turn timeout, folding", "user", user)
		_ = t.Apply(user, ActionFold, 0)
	}
}

// commit moves chips from the player's stack into their street bet
func (t *Table) commit(p *Player, n int) {
	p.Chips -= n
	p.Bet += n
	p.TotalBet += n
	if p.Chips == 0 {
		p.AllIn = true
	}
}

// aggression records a bet or raise: everyone else must act again
func (t *Table) aggression(idx int) {
	t.lastAggressorIndex = idx
	for i, p := range t.players {
		p.Acted = i == idx
	}
}

// advance moves the turn to the next eligible seat or closes the street
func (t *Table) advance() {
	if t.bettingComplete() {
		t.advanceStreet()
		return
	}
	next := t.nextEligible(t.currentIndex)
	if next < 0 {
		t.advanceStreet()
		return
	}
	t.currentIndex = next
	t.armTurn()
}

// bettingComplete is true once every player who can act has acted since
// the last aggression and matched the current bet
func (t *Table) bettingComplete() bool {
	for _, p := range t.players {
		if p.CanAct() && (!p.Acted || p.Bet != t.currentBet) {
			return false
		}
	}
	return true
}

// advanceStreet collects bets, deals the next street, and either reopens
// betting or runs the board out when nobody is left to act
func (t *Table) advanceStreet() {
	for _, p := range t.players {
		t.pot += p.Bet
		p.Bet = 0
		p.Acted = false
	}
	t.currentBet = 0
	t.lastAggressorIndex = -1

	if t.street == River {
		t.showdown()
		return
	}

	var draw int
	switch t.street {
	case Preflop:
		draw = 3
	default:
		draw = 1
	}
	cards, err := t.cards.Draw(draw)
	if err != nil {
		// Deck exhaustion is fatal to the hand: refund street bets were
		// already collected, so settle what we have at showdown.
		t.logger.Error("deck exhausted mid-deal", "error", err)
		t.showdown()
		return
	}
	t.community = append(t.community, cards...)
	t.street++
	t.logger.Info("street", "street", t.street,
		"community", evaluator.FormatCards(t.community), "pot", t.pot)

	// Fewer than two players able to act means betting is closed for the
	// rest of the hand; run the board out.
	if t.actors() < 2 {
		t.advanceStreet()
		return
	}

	t.streetStartIndex = t.nextEligible(t.dealerIndex)
	t.currentIndex = t.streetStartIndex
	t.armTurn()
}

// showdown settles every pot layer against the best eligible hands
func (t *Table) showdown() {
	t.street = Showdown
	t.currentIndex = -1
	t.inHand = false

	pots := buildPots(t.players)
	ranks := make(map[int]evaluator.HandRank)
	for i, p := range t.players {
		if p.InHand() {
			ranks[i] = evaluator.MustEvaluate(append(append([]deck.Card(nil),
				p.HoleCards...), t.community...))
		}
	}

	awards := make(map[int]int)
	labels := make(map[int]string)
	for _, pot := range pots {
		var winners []int
		for _, idx := range pot.Eligible {
			if len(winners) == 0 {
				winners = []int{idx}
				continue
			}
			switch evaluator.Compare(ranks[idx], ranks[winners[0]]) {
			case 1:
				winners = []int{idx}
			case 0:
				winners = append(winners, idx)
			}
		}
		if len(winners) == 0 {
			continue
		}

		// Split equally; the odd chip goes to the earliest position after
		// the dealer.
		ordered := t.byPosition(winners)
		share := pot.Amount / len(ordered)
		remainder := pot.Amount % len(ordered)
		for i, idx := range ordered {
			amount := share
			if i == 0 {
				amount += remainder
			}
			awards[idx] += amount
			labels[idx] = ranks[idx].Label
		}
	}

	t.winners = nil
	for _, idx := range t.byPosition(keys(awards)) {
		p := t.players[idx]
		p.Chips += awards[idx]
		t.winners = append(t.winners, Winner{
			User:   p.User,
			Amount: awards[idx],
			Label:  labels[idx],
			Cards:  p.HoleCards,
		})
		t.logger.Info("pot awarded", "user", p.User,
			"amount", awards[idx], "hand", labels[idx])
	}
}

// awardUncontested gives the pot to the last unfolded player without a
// showdown or reveal
func (t *Table) awardUncontested() {
	total := t.pot
	for _, p := range t.players {
		total += p.Bet
		p.Bet = 0
	}
	t.pot = 0

	for _, p := range t.players {
		if p.InHand() {
			p.Chips += total
			t.winners = []Winner{{User: p.User, Amount: total}}
			t.logger.Info("pot awarded uncontested", "user", p.User, "amount", total)
			break
		}
	}
	t.currentIndex = -1
	t.inHand = false
}

// byPosition orders player indices clockwise starting left of the dealer
func (t *Table) byPosition(indices []int) []int {
	n := len(t.players)
	ordered := append([]int(nil), indices...)
	pos := func(i int) int { return ((i - t.dealerIndex - 1) % n + n) % n }
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && pos(ordered[j]) < pos(ordered[j-1]); j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}
	return ordered
}

func keys(m map[int]int) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// nextEligible returns the next seat clockwise from i that can act, or -1
func (t *Table) nextEligible(i int) int {
	n := len(t.players)
	for step := 1; step <= n; step++ {
		idx := ((i + step) % n + n) % n
		if t.players[idx].CanAct() {
			return idx
		}
	}
	return -1
}

// actors counts players still able to make decisions
func (t *Table) actors() int {
	n := 0
	for _, p := range t.players {
		if p.CanAct() {
			n++
		}
	}
	return n
}

// unfolded counts players still holding live cards
func (t *Table) unfolded() int {
	n := 0
	for _, p := range t.players {
		if p.InHand() {
			n++
		}
	}
	return n
}

func (t *Table) armTurn() {
	t.turnEndsAt = t.clock.Now().Add(t.cfg.TurnTimeout)
}

func (t *Table) indexOf(user string) int {
	for i, p := range t.players {
		if p.User == user {
			return i
		}
	}
	return -1
}

// InHand reports whether a hand is underway
func (t *Table) InHand() bool {
	return t.inHand
}

// CurrentUser returns the acting player, or "" between hands
func (t *Table) CurrentUser() string {
	if !t.inHand || t.currentIndex < 0 {
		return ""
	}
	return t.players[t.currentIndex].User
}

// Users returns all seated users
func (t *Table) Users() []string {
	out := make([]string, 0, len(t.players))
	for _, p := range t.players {
		if p.User != "" {
			out = append(out, p.User)
		}
	}
	return out
}

// Seated reports whether the user has a seat
func (t *Table) Seated(user string) bool {
	return t.indexOf(user) >= 0
}

// PlayerCount returns the number of seats taken
func (t *Table) PlayerCount() int {
	return len(t.players)
}

// TotalPot returns collected pot plus uncollected street bets
func (t *Table) TotalPot() int {
	total := t.pot
	for _, p := range t.players {
		total += p.Bet
	}
	return total
}

// Winners returns the settlement of the last completed hand
func (t *Table) Winners() []Winner {
	return append([]Winner(nil), t.winners...)
}
