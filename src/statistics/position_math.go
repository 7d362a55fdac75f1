package statistics

import (
	"stratd/src/datamodels"
)

// lotState is the minimal average-cost bookkeeping the trade-driven
// trackers share. It mirrors the ledger's position convention: additions
// re-average, reductions realize PnL, crossing zero restarts the average.
type lotState struct {
	quantity    float64
	averageCost float64
}

// apply folds a fill into the lot and returns the PnL realized by the fill
// (commission excluded) and whether any quantity was closed.
func (s *lotState) apply(event datamodels.TradeEvent) (realized float64, closedAny bool) {
	signedQty := event.Quantity
	if event.Direction == datamodels.OrderSideSell {
		signedQty = -event.Quantity
	}

	switch {
	case s.quantity == 0 || sameSign(s.quantity, signedQty):
		totalCost := s.averageCost*abs(s.quantity) + event.Price*abs(signedQty)
		newQty := s.quantity + signedQty
		s.averageCost = totalCost / abs(newQty)
		s.quantity = newQty
		return 0, false
	case abs(signedQty) <= abs(s.quantity):
		closed := abs(signedQty)
		realized = closed * (event.Price - s.averageCost) * signOf(s.quantity)
		s.quantity += signedQty
		if s.quantity == 0 {
			s.averageCost = 0
		}
		return realized, true
	default:
		closed := abs(s.quantity)
		realized = closed * (event.Price - s.averageCost) * signOf(s.quantity)
		s.quantity += signedQty
		s.averageCost = event.Price
		return realized, true
	}
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func signOf(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
