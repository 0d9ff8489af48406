// Package trigger decides whether a resting PendingOrder should fire against
// the latest oracle band, and implements the KeeperAgent (§4.7) that scans
// the book for matches every tick.
package trigger

import "permsim/internal/domain"

// Holds reports whether order's trigger condition is satisfied given the
// current best-ask/best-bid proxies (PriceCache's max/min band).
//
// Limit orders trigger toward a favorable entry price; Stop orders trigger
// on a breakout past an adverse/momentum level; StopLoss shares Stop's
// direction (protective exit in the same direction as a breakout entry);
// TakeProfit is the mirror of Limit (an exit priced like the opposite side's
// entry limit, since closing a Long is a sell and closing a Short is a buy).
func Holds(order domain.PendingOrder, ask, bid *domain.Price) bool {
	trigger := order.TriggerPrice
	if trigger == nil {
		return false
	}
	long := order.Side == domain.Long

	switch order.Kind {
	case domain.Limit:
		if long {
			return ask.Cmp(trigger) <= 0
		}
		return bid.Cmp(trigger) >= 0
	case domain.Stop, domain.StopLoss:
		if long {
			return ask.Cmp(trigger) >= 0
		}
		return bid.Cmp(trigger) <= 0
	case domain.TakeProfit:
		if long {
			return bid.Cmp(trigger) >= 0
		}
		return ask.Cmp(trigger) <= 0
	default:
		return false
	}
}
