// game/engine.go
package game

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/coder/quartz"

	"github.com/wfunc/blackjackserver/broadcast"
	"github.com/wfunc/blackjackserver/deck"
	"github.com/wfunc/blackjackserver/logger"
	"github.com/wfunc/blackjackserver/models"
	"github.com/wfunc/blackjackserver/monitor"
	"github.com/wfunc/blackjackserver/persistence"
)

// 玩家动作名称
const (
	ActionStart     = "start"
	ActionBet       = "bet"
	ActionHit       = "hit"
	ActionStand     = "stand"
	ActionDouble    = "double"
	ActionSplit     = "split"
	ActionSurrender = "surrender"
)

// Action is one player-submitted move. Amount is only meaningful for
// bets.
type Action struct {
	Name   string `json:"name"`
	Amount int64  `json:"amount,omitempty"`
}

// Engine drives every stage transition for every room. It holds no
// per-room state of its own: the durable stage blob plus its version
// counter in the store is the single source of truth, and every write
// goes through a compare-and-swap on that counter. Player calls and
// the deadline sweeper run the same transition code, so a transition
// raced by both sides commits exactly once.
type Engine struct {
	store      persistence.Store
	decks      deck.Client
	events     broadcast.Broadcaster
	clock      quartz.Clock
	maxRetries int

	mu        sync.Mutex
	roomLocks map[string]*sync.Mutex
}

func NewEngine(store persistence.Store, decks deck.Client, events broadcast.Broadcaster, clock quartz.Clock) *Engine {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Engine{
		store:      store,
		decks:      decks,
		events:     events,
		clock:      clock,
		maxRetries: 3,
		roomLocks:  make(map[string]*sync.Mutex),
	}
}

func (e *Engine) roomLock(roomID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, exists := e.roomLocks[roomID]
	if !exists {
		lock = &sync.Mutex{}
		e.roomLocks[roomID] = lock
	}
	return lock
}

// PerformAction applies one player action to a room. A version
// conflict means another writer moved the stage first; the action is
// re-validated against the fresh stage a few times before giving up
// with ErrConflict.
func (e *Engine) PerformAction(ctx context.Context, roomID string, userID int64, action Action) error {
	monitor.ActionsTotal.WithLabelValues(action.Name).Inc()

	var err error
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		err = e.step(ctx, roomID, userID, action)
		if !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return err
}

func (e *Engine) step(ctx context.Context, roomID string, userID int64, action Action) error {
	room, stage, err := e.load(roomID)
	if err != nil {
		return err
	}

	switch action.Name {
	case ActionStart:
		return e.handleStart(ctx, room, stage, userID)
	case ActionBet:
		betting, ok := stage.(Betting)
		if !ok {
			return fmt.Errorf("%w: cannot bet during %s", ErrBadRequest, stage.StageType())
		}
		return e.handleBet(ctx, room, betting, userID, action.Amount)
	case ActionHit:
		turn, ok := stage.(PlayerAction)
		if !ok {
			return fmt.Errorf("%w: cannot hit during %s", ErrBadRequest, stage.StageType())
		}
		return e.handleHit(ctx, room, turn, userID)
	case ActionStand:
		turn, ok := stage.(PlayerAction)
		if !ok {
			return fmt.Errorf("%w: cannot stand during %s", ErrBadRequest, stage.StageType())
		}
		return e.handleStand(ctx, room, turn, userID)
	case ActionDouble:
		turn, ok := stage.(PlayerAction)
		if !ok {
			return fmt.Errorf("%w: cannot double during %s", ErrBadRequest, stage.StageType())
		}
		return e.handleDouble(ctx, room, turn, userID)
	case ActionSplit, ActionSurrender:
		return fmt.Errorf("%w: %s is not supported in this game mode", ErrBadRequest, action.Name)
	default:
		return fmt.Errorf("%w: unknown action %q", ErrBadRequest, action.Name)
	}
}

// AdvanceExpired forces the room forward when its stage deadline has
// passed, and re-drives any automatic stage a crash may have stranded.
// It is the scheduler's entry point but shares every transition with
// PerformAction, so a tick racing a player commits at most one of the
// two.
func (e *Engine) AdvanceExpired(ctx context.Context, roomID string) error {
	room, stage, err := e.load(roomID)
	if err != nil {
		return err
	}

	switch v := stage.(type) {
	case Betting:
		if e.clock.Now().Before(v.Deadline) {
			return nil
		}
		if len(v.Bets) == 0 {
			// Nobody committed chips; re-open the window instead of
			// dealing an empty round.
			next := Betting{
				Deadline: e.clock.Now().Add(room.Config.BettingLimit()),
				Bets:     map[int64]int64{},
			}
			_, err := e.writeStage(room.ID, next, room.Version)
			return err
		}
		return e.closeBetting(ctx, room.ID)
	case PlayerAction:
		if e.clock.Now().Before(v.Deadline) {
			return nil
		}
		return e.forceStand(ctx, room, v)
	case Init, Setup, Dealing, FinishRound, Teardown:
		return e.advanceAuto(ctx, room.ID)
	default:
		return nil
	}
}

// load fetches the room and decodes its stage. An empty state blob
// means the room has never started.
func (e *Engine) load(roomID string) (*models.Room, Stage, error) {
	room, err := e.store.GetRoom(roomID)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: room %s", ErrNotFound, roomID)
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if len(room.State) == 0 {
		return room, NotStarted{}, nil
	}
	stage, err := UnmarshalStage(room.State)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: corrupt stage for room %s: %v", ErrInternal, roomID, err)
	}
	return room, stage, nil
}

// writeStage commits a stage transition guarded by the version the
// caller loaded. A successful commit is also the broadcast point: the
// new stage goes out exactly once, in commit order. The room lock is
// held across the version write and the publish so a competing writer
// cannot commit the next stage before this one reaches subscribers;
// it is never held across deck or balance I/O.
func (e *Engine) writeStage(roomID string, next Stage, expectedVersion int64) (bool, error) {
	data, err := MarshalStage(next)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	lock := e.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	ok, err := e.store.WriteStageIfVersionMatches(roomID, data, expectedVersion)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if !ok {
		return false, nil
	}
	monitor.StageTransitions.WithLabelValues(next.StageType().String()).Inc()
	e.events.Publish(roomID, broadcast.Event{
		Type:    broadcast.EventGameState,
		Payload: broadcast.GameStatePayload{Stage: data},
	})
	return true, nil
}

// mustWriteStage is writeStage for player-driven transitions, where a
// lost race surfaces as ErrConflict so PerformAction can re-validate.
func (e *Engine) mustWriteStage(roomID string, next Stage, expectedVersion int64) error {
	ok, err := e.writeStage(roomID, next, expectedVersion)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	return nil
}

// advanceAuto drives the chain of automatic stages until the room
// reaches a stage that waits on players. Each link is its own CAS
// write; losing one means another writer owns the chain, so we stop
// quietly.
func (e *Engine) advanceAuto(ctx context.Context, roomID string) error {
	for {
		room, stage, err := e.load(roomID)
		if err != nil {
			return err
		}

		switch stage.(type) {
		case Init:
			if err := e.runInit(ctx, room); err != nil {
				return err
			}
		case Setup:
			if err := e.runSetup(ctx, room); err != nil {
				return err
			}
		case Dealing:
			if err := e.runDealing(ctx, room); err != nil {
				return err
			}
		case FinishRound:
			if err := e.runFinishRound(ctx, room); err != nil {
				return err
			}
		case Teardown:
			if err := e.runTeardown(ctx, room); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (e *Engine) handleStart(ctx context.Context, room *models.Room, stage Stage, userID int64) error {
	if _, ok := stage.(NotStarted); !ok {
		return fmt.Errorf("%w: game already started", ErrBadRequest)
	}
	if userID != room.HostID {
		return fmt.Errorf("%w: only the host can start the game", ErrBadRequest)
	}
	players, err := e.store.ListActivePlayers(room.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if len(players) < room.MinPlayers {
		return fmt.Errorf("%w: need at least %d players", ErrBadRequest, room.MinPlayers)
	}
	if err := e.mustWriteStage(room.ID, Init{}, room.Version); err != nil {
		return err
	}
	return e.advanceAuto(ctx, room.ID)
}

func (e *Engine) runInit(ctx context.Context, room *models.Room) error {
	if room.Config.ResetBalance {
		if err := e.store.ResetBalances(room.ID, room.Config.StartingBalance); err != nil {
			return fmt.Errorf("%w: %v", ErrInternal, err)
		}
	}
	if err := e.store.DeleteHands(room.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	_, err := e.writeStage(room.ID, Setup{}, room.Version)
	return err
}

func (e *Engine) runSetup(ctx context.Context, room *models.Room) error {
	if room.DeckID == "" {
		deckID, err := e.decks.ShuffleDeck(ctx)
		if err != nil {
			return fmt.Errorf("%w: deck provider unavailable: %v", ErrInternal, err)
		}
		if err := e.store.SetDeckID(room.ID, deckID); err != nil {
			return fmt.Errorf("%w: %v", ErrInternal, err)
		}
	}
	next := Betting{
		Deadline: e.clock.Now().Add(room.Config.BettingLimit()),
		Bets:     map[int64]int64{},
	}
	_, err := e.writeStage(room.ID, next, room.Version)
	return err
}

func (e *Engine) handleBet(ctx context.Context, room *models.Room, stage Betting, userID int64, amount int64) error {
	player, err := e.store.GetPlayer(room.ID, userID)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return fmt.Errorf("%w: user %d is not in room %s", ErrNotFound, userID, room.ID)
		}
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if player.Status != models.PlayerActive {
		return fmt.Errorf("%w: player is not active", ErrBadRequest)
	}
	if amount < room.Config.MinBet {
		return fmt.Errorf("%w: bet %d below table minimum %d", ErrBadRequest, amount, room.Config.MinBet)
	}

	// A re-bet replaces the recorded wager; only the difference moves
	// chips. The debit happens before the stage write so a player can
	// never owe more than they hold; a lost stage race refunds it.
	delta := amount - stage.Bets[userID]
	if delta != 0 {
		if _, err := e.store.AdjustPlayerBalance(room.ID, userID, -delta); err != nil {
			if errors.Is(err, persistence.ErrInsufficientBalance) {
				return fmt.Errorf("%w: bet %d exceeds balance", ErrBadRequest, amount)
			}
			return fmt.Errorf("%w: %v", ErrInternal, err)
		}
	}

	next := Betting{Deadline: stage.Deadline, Bets: map[int64]int64{}}
	for id, bet := range stage.Bets {
		next.Bets[id] = bet
	}
	next.Bets[userID] = amount

	if err := e.mustWriteStage(room.ID, next, room.Version); err != nil {
		if delta != 0 {
			if _, refundErr := e.store.AdjustPlayerBalance(room.ID, userID, delta); refundErr != nil {
				logger.Log.Errorf("Failed to refund %d to user %d in room %s: %v", delta, userID, room.ID, refundErr)
			}
		}
		return err
	}

	e.events.Publish(room.ID, broadcast.Event{
		Type:    broadcast.EventPlayerAction,
		Payload: broadcast.PlayerActionPayload{UserID: userID, Action: ActionBet, Amount: amount},
	})

	// A bet landing after the deadline closes the window itself
	// instead of leaving the room parked until the next sweep tick.
	if !e.clock.Now().Before(next.Deadline) {
		return e.closeBetting(ctx, room.ID)
	}

	// Close the window early once every active player has chips down.
	players, err := e.store.ListActivePlayers(room.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	allIn := true
	for _, p := range players {
		if _, betPlaced := next.Bets[p.UserID]; !betPlaced {
			allIn = false
			break
		}
	}
	if allIn {
		return e.closeBetting(ctx, room.ID)
	}
	return nil
}

// closeBetting materializes the recorded bets into hand rows and moves
// the room to Dealing. Hand creation is idempotent per seat (the store
// deduplicates), so a raced or crash-retried close never deals a
// player twice and never destroys a competing writer's rows.
func (e *Engine) closeBetting(ctx context.Context, roomID string) error {
	room, stage, err := e.load(roomID)
	if err != nil {
		return err
	}
	betting, ok := stage.(Betting)
	if !ok {
		return nil
	}
	if len(betting.Bets) == 0 {
		return nil
	}

	bettors := make([]int64, 0, len(betting.Bets))
	for userID := range betting.Bets {
		bettors = append(bettors, userID)
	}
	sort.Slice(bettors, func(i, j int) bool { return bettors[i] < bettors[j] })

	for ord, userID := range bettors {
		hand := &models.Hand{
			RoomID:    room.ID,
			UserID:    userID,
			Ord:       ord,
			HandIndex: 0,
			Bet:       betting.Bets[userID],
		}
		if err := e.store.CreateHand(hand); err != nil {
			return fmt.Errorf("%w: %v", ErrInternal, err)
		}
	}
	dealerHand := &models.Hand{
		RoomID: room.ID,
		UserID: models.DealerUserID,
		Ord:    -1,
	}
	if err := e.store.CreateHand(dealerHand); err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}

	ok, err = e.writeStage(room.ID, Dealing{}, room.Version)
	if err != nil || !ok {
		return err
	}
	return e.advanceAuto(ctx, room.ID)
}

func (e *Engine) runDealing(ctx context.Context, room *models.Room) error {
	hands, err := e.store.ListHandsForRoom(room.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}

	deal := func(hand *models.Hand) error {
		if len(hand.Cards) >= initialDealSize {
			// Already dealt; a crash mid-deal restarts here without
			// double-dealing.
			return nil
		}
		cards, err := e.decks.DrawCards(ctx, room.DeckID, pileName(hand), initialDealSize-len(hand.Cards))
		if err != nil {
			return fmt.Errorf("%w: deck provider unavailable: %v", ErrInternal, err)
		}
		hand.Cards = append(hand.Cards, cards...)
		if err := e.store.UpdateHand(hand); err != nil {
			return fmt.Errorf("%w: %v", ErrInternal, err)
		}
		return nil
	}

	// Seats draw first in turn order; the house draws last.
	for i := range hands {
		if hands[i].UserID == models.DealerUserID {
			continue
		}
		if err := deal(&hands[i]); err != nil {
			return err
		}
	}
	for i := range hands {
		if hands[i].UserID != models.DealerUserID {
			continue
		}
		if err := deal(&hands[i]); err != nil {
			return err
		}
	}

	for _, hand := range hands {
		if hand.UserID == models.DealerUserID {
			e.publishDealerUpCard(room.ID, hand)
		} else {
			e.publishPlayerReveal(room.ID, hand)
		}
	}

	next, done := e.firstTurn(room, hands)
	if done {
		_, err := e.writeStage(room.ID, FinishRound{}, room.Version)
		return err
	}
	_, err = e.writeStage(room.ID, next, room.Version)
	return err
}

// firstTurn finds the opening seat, skipping hands already resolved by
// the deal (blackjacks act for themselves).
func (e *Engine) firstTurn(room *models.Room, hands []models.Hand) (PlayerAction, bool) {
	for _, hand := range hands {
		if hand.UserID == models.DealerUserID {
			continue
		}
		if IsBlackjack(hand.Cards) {
			continue
		}
		return PlayerAction{
			Deadline:    e.clock.Now().Add(room.Config.TurnLimit()),
			PlayerIndex: hand.Ord,
			HandIndex:   hand.HandIndex,
		}, false
	}
	return PlayerAction{}, true
}

// nextTurn computes the stage after the current seat resolves: the
// following live hand, or FinishRound when none remain.
func (e *Engine) nextTurn(room *models.Room, hands []models.Hand, current PlayerAction) Stage {
	for _, hand := range hands {
		if hand.UserID == models.DealerUserID {
			continue
		}
		if hand.Ord < current.PlayerIndex {
			continue
		}
		if hand.Ord == current.PlayerIndex && hand.HandIndex <= current.HandIndex {
			continue
		}
		if IsBlackjack(hand.Cards) || IsBust(hand.Cards) {
			continue
		}
		return PlayerAction{
			Deadline:    e.clock.Now().Add(room.Config.TurnLimit()),
			PlayerIndex: hand.Ord,
			HandIndex:   hand.HandIndex,
		}
	}
	return FinishRound{}
}

// currentHand resolves the seat a turn stage points at.
func (e *Engine) currentHand(roomID string, turn PlayerAction) (*models.Hand, []models.Hand, error) {
	hands, err := e.store.ListHandsForRoom(roomID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	for i := range hands {
		if hands[i].Ord == turn.PlayerIndex && hands[i].HandIndex == turn.HandIndex {
			return &hands[i], hands, nil
		}
	}
	return nil, nil, fmt.Errorf("%w: no hand at seat %d/%d", ErrInternal, turn.PlayerIndex, turn.HandIndex)
}

func (e *Engine) handleHit(ctx context.Context, room *models.Room, turn PlayerAction, userID int64) error {
	hand, _, err := e.currentHand(room.ID, turn)
	if err != nil {
		return err
	}
	if hand.UserID != userID {
		return fmt.Errorf("%w: not your turn", ErrBadRequest)
	}

	// Claim the turn by extending its deadline through a version
	// write. Whoever wins the claim is the only writer allowed to
	// draw, so a raced hit never draws twice.
	claimed := PlayerAction{
		Deadline:    e.clock.Now().Add(room.Config.TurnLimit()),
		PlayerIndex: turn.PlayerIndex,
		HandIndex:   turn.HandIndex,
	}
	if err := e.mustWriteStage(room.ID, claimed, room.Version); err != nil {
		return err
	}

	cards, err := e.decks.DrawCards(ctx, room.DeckID, pileName(hand), 1)
	if err != nil {
		return fmt.Errorf("%w: deck provider unavailable: %v", ErrInternal, err)
	}
	hand.Cards = append(hand.Cards, cards...)
	if err := e.store.UpdateHand(hand); err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}

	e.events.Publish(room.ID, broadcast.Event{
		Type:    broadcast.EventPlayerAction,
		Payload: broadcast.PlayerActionPayload{UserID: userID, Action: ActionHit},
	})
	e.publishPlayerReveal(room.ID, *hand)

	value, _ := HandValue(hand.Cards)
	if value < blackjackValue {
		return nil
	}
	// Bust or 21: the seat is done, move the pointer.
	return e.resolveTurn(ctx, room.ID, claimed)
}

func (e *Engine) handleStand(ctx context.Context, room *models.Room, turn PlayerAction, userID int64) error {
	hand, hands, err := e.currentHand(room.ID, turn)
	if err != nil {
		return err
	}
	if hand.UserID != userID {
		return fmt.Errorf("%w: not your turn", ErrBadRequest)
	}

	next := e.nextTurn(room, hands, turn)
	if err := e.mustWriteStage(room.ID, next, room.Version); err != nil {
		return err
	}
	e.events.Publish(room.ID, broadcast.Event{
		Type:    broadcast.EventPlayerAction,
		Payload: broadcast.PlayerActionPayload{UserID: userID, Action: ActionStand},
	})
	if _, finished := next.(FinishRound); finished {
		return e.advanceAuto(ctx, room.ID)
	}
	return nil
}

func (e *Engine) handleDouble(ctx context.Context, room *models.Room, turn PlayerAction, userID int64) error {
	hand, _, err := e.currentHand(room.ID, turn)
	if err != nil {
		return err
	}
	if hand.UserID != userID {
		return fmt.Errorf("%w: not your turn", ErrBadRequest)
	}
	if len(hand.Cards) != initialDealSize {
		return fmt.Errorf("%w: double is only allowed on the first two cards", ErrBadRequest)
	}

	claimed := PlayerAction{
		Deadline:    e.clock.Now().Add(room.Config.TurnLimit()),
		PlayerIndex: turn.PlayerIndex,
		HandIndex:   turn.HandIndex,
	}
	if err := e.mustWriteStage(room.ID, claimed, room.Version); err != nil {
		return err
	}

	if _, err := e.store.AdjustPlayerBalance(room.ID, userID, -hand.Bet); err != nil {
		if errors.Is(err, persistence.ErrInsufficientBalance) {
			return fmt.Errorf("%w: balance too low to double", ErrBadRequest)
		}
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	hand.Bet *= 2

	cards, err := e.decks.DrawCards(ctx, room.DeckID, pileName(hand), 1)
	if err != nil {
		return fmt.Errorf("%w: deck provider unavailable: %v", ErrInternal, err)
	}
	hand.Cards = append(hand.Cards, cards...)
	if err := e.store.UpdateHand(hand); err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}

	e.events.Publish(room.ID, broadcast.Event{
		Type:    broadcast.EventPlayerAction,
		Payload: broadcast.PlayerActionPayload{UserID: userID, Action: ActionDouble, Amount: hand.Bet},
	})
	e.publishPlayerReveal(room.ID, *hand)

	// Doubling ends the seat's turn after its single card.
	return e.resolveTurn(ctx, room.ID, claimed)
}

// resolveTurn moves the pointer off a finished seat using a fresh
// stage read, so the claim write above and the pointer write are two
// separate versioned steps.
func (e *Engine) resolveTurn(ctx context.Context, roomID string, current PlayerAction) error {
	room, stage, err := e.load(roomID)
	if err != nil {
		return err
	}
	turn, ok := stage.(PlayerAction)
	if !ok || turn.PlayerIndex != current.PlayerIndex || turn.HandIndex != current.HandIndex {
		return nil
	}
	hands, err := e.store.ListHandsForRoom(roomID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	next := e.nextTurn(room, hands, turn)
	ok, err = e.writeStage(roomID, next, room.Version)
	if err != nil || !ok {
		return err
	}
	if _, finished := next.(FinishRound); finished {
		return e.advanceAuto(ctx, roomID)
	}
	return nil
}

// forceStand resolves an expired turn on the player's behalf.
func (e *Engine) forceStand(ctx context.Context, room *models.Room, turn PlayerAction) error {
	hand, hands, err := e.currentHand(room.ID, turn)
	if err != nil {
		return err
	}
	next := e.nextTurn(room, hands, turn)
	ok, err := e.writeStage(room.ID, next, room.Version)
	if err != nil || !ok {
		return err
	}
	e.events.Publish(room.ID, broadcast.Event{
		Type:    broadcast.EventPlayerAction,
		Payload: broadcast.PlayerActionPayload{UserID: hand.UserID, Action: ActionStand},
	})
	if _, finished := next.(FinishRound); finished {
		return e.advanceAuto(ctx, room.ID)
	}
	return nil
}

func (e *Engine) runFinishRound(ctx context.Context, room *models.Room) error {
	hands, err := e.store.ListHandsForRoom(room.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}

	var dealer *models.Hand
	for i := range hands {
		if hands[i].UserID == models.DealerUserID {
			dealer = &hands[i]
			break
		}
	}
	if dealer == nil {
		return fmt.Errorf("%w: dealer hand missing in room %s", ErrInternal, room.ID)
	}

	// House rule: draw to 17, stand on all 17s.
	for DealerMustHit(dealer.Cards) {
		cards, err := e.decks.DrawCards(ctx, room.DeckID, pileName(dealer), 1)
		if err != nil {
			return fmt.Errorf("%w: deck provider unavailable: %v", ErrInternal, err)
		}
		dealer.Cards = append(dealer.Cards, cards...)
		if err := e.store.UpdateHand(dealer); err != nil {
			return fmt.Errorf("%w: %v", ErrInternal, err)
		}
	}
	e.publishDealerReveal(room.ID, *dealer)

	record := &models.GameRecord{
		RoomID:    room.ID,
		CreatedAt: e.clock.Now(),
	}
	for i := range hands {
		hand := &hands[i]
		if hand.UserID == models.DealerUserID {
			continue
		}
		outcome, payout := SettleHand(hand.Cards, dealer.Cards, hand.Bet, room.Config.BlackjackPayout)
		if payout > 0 {
			// Payouts after a committed round must land; a failed
			// credit is logged for manual reconciliation rather than
			// aborting the remaining seats.
			if _, err := e.store.AdjustPlayerBalance(room.ID, hand.UserID, payout); err != nil {
				logger.Log.Errorf("Failed to pay %d to user %d in room %s: %v", payout, hand.UserID, room.ID, err)
			}
		}
		record.Players = append(record.Players, models.PlayerOutcome{
			UserID:  hand.UserID,
			Outcome: outcome,
			Net:     payout - hand.Bet,
		})
	}
	if err := e.store.SaveGameRecord(record); err != nil {
		logger.Log.Errorf("Failed to save game record for room %s: %v", room.ID, err)
	}

	_, err = e.writeStage(room.ID, Teardown{}, room.Version)
	return err
}

func (e *Engine) runTeardown(ctx context.Context, room *models.Room) error {
	if !room.Active {
		if err := e.store.SetRoomEnded(room.ID); err != nil {
			return fmt.Errorf("%w: %v", ErrInternal, err)
		}
		_, err := e.writeStage(room.ID, NotStarted{}, room.Version)
		return err
	}
	// Straight into the next round; Init clears the table.
	_, err := e.writeStage(room.ID, Init{}, room.Version)
	return err
}

func (e *Engine) publishPlayerReveal(roomID string, hand models.Hand) {
	value, _ := HandValue(hand.Cards)
	views := make([]broadcast.CardView, 0, len(hand.Cards))
	for _, c := range hand.Cards {
		views = append(views, cardView(c))
	}
	e.events.Publish(roomID, broadcast.Event{
		Type: broadcast.EventPlayerReveal,
		Payload: broadcast.PlayerRevealPayload{
			UserID:    hand.UserID,
			HandIndex: hand.HandIndex,
			Cards:     views,
			Value:     value,
		},
	})
}

// publishDealerUpCard shows the dealer's first card only; the hole
// card stays face down until the round resolves.
func (e *Engine) publishDealerUpCard(roomID string, hand models.Hand) {
	views := make([]broadcast.CardView, 0, len(hand.Cards))
	for i, c := range hand.Cards {
		if i == 0 {
			views = append(views, cardView(c))
		} else {
			views = append(views, broadcast.CardView{IsFaceDown: true})
		}
	}
	e.events.Publish(roomID, broadcast.Event{
		Type:    broadcast.EventDealerReveal,
		Payload: broadcast.DealerRevealPayload{Cards: views},
	})
}

func (e *Engine) publishDealerReveal(roomID string, hand models.Hand) {
	value, _ := HandValue(hand.Cards)
	views := make([]broadcast.CardView, 0, len(hand.Cards))
	for _, c := range hand.Cards {
		views = append(views, cardView(c))
	}
	e.events.Publish(roomID, broadcast.Event{
		Type:    broadcast.EventDealerReveal,
		Payload: broadcast.DealerRevealPayload{Cards: views, Value: value},
	})
}

func cardView(c deck.Card) broadcast.CardView {
	return broadcast.CardView{Code: c.Code, Suit: c.Suit, Value: c.Value}
}

func pileName(hand *models.Hand) string {
	return fmt.Sprintf("hand%d", hand.ID)
}
