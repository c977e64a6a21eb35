// game/score.go
package game

import (
	"github.com/wfunc/blackjackserver/deck"
)

const (
	blackjackValue  = 21
	dealerStandsAt  = 17
	initialDealSize = 2
)

// cardPoints maps a provider card value to its base blackjack points.
// Aces count 11 here and are demoted to 1 by HandValue as needed.
func cardPoints(c deck.Card) int {
	switch c.Value {
	case "ACE", "A":
		return 11
	case "KING", "QUEEN", "JACK", "K", "Q", "J", "10", "0":
		return 10
	case "9":
		return 9
	case "8":
		return 8
	case "7":
		return 7
	case "6":
		return 6
	case "5":
		return 5
	case "4":
		return 4
	case "3":
		return 3
	case "2":
		return 2
	default:
		return 0
	}
}

// HandValue computes the best blackjack total for a hand. Aces start
// at 11 and are demoted one at a time while the total busts; soft is
// true when an ace still counts as 11.
func HandValue(cards []deck.Card) (value int, soft bool) {
	total := 0
	aces := 0
	for _, c := range cards {
		points := cardPoints(c)
		if points == 11 {
			aces++
		}
		total += points
	}
	for aces > 0 && total > blackjackValue {
		total -= 10
		aces--
	}
	return total, aces > 0
}

// IsBlackjack reports a two-card 21, which pays the configured
// multiplier and outranks any later 21.
func IsBlackjack(cards []deck.Card) bool {
	if len(cards) != initialDealSize {
		return false
	}
	value, _ := HandValue(cards)
	return value == blackjackValue
}

// IsBust reports whether the hand exceeded 21.
func IsBust(cards []deck.Card) bool {
	value, _ := HandValue(cards)
	return value > blackjackValue
}

// Outcome names for settled hands.
const (
	OutcomeWin       = "win"
	OutcomeLose      = "lose"
	OutcomePush      = "push"
	OutcomeBlackjack = "blackjack"
)

// SettleHand compares a player hand against the dealer and returns the
// outcome name and the amount to credit back. The bet was already
// debited at bet time, so the payout is purely additive: a win returns
// 2x the stake, a push returns the stake, a loss returns nothing and a
// blackjack returns the stake plus stake*payout.
func SettleHand(player, dealer []deck.Card, bet int64, blackjackPayout float64) (string, int64) {
	playerValue, _ := HandValue(player)
	dealerValue, _ := HandValue(dealer)

	switch {
	case playerValue > blackjackValue:
		return OutcomeLose, 0
	case IsBlackjack(player) && !IsBlackjack(dealer):
		return OutcomeBlackjack, bet + int64(float64(bet)*blackjackPayout)
	case dealerValue > blackjackValue:
		return OutcomeWin, 2 * bet
	case playerValue > dealerValue:
		return OutcomeWin, 2 * bet
	case playerValue == dealerValue:
		return OutcomePush, bet
	default:
		return OutcomeLose, 0
	}
}

// DealerMustHit implements the house rule: hit below 17, stand at or
// above.
func DealerMustHit(cards []deck.Card) bool {
	value, _ := HandValue(cards)
	return value < dealerStandsAt
}
