// README: Pure fare computation: base + distance, surcharge, discount, floor.
package pricing

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrUnknownClass = errors.New("unknown vehicle class")
var ErrNoVehicles = errors.New("quote request has no vehicles")

// Compute prices one job from the supplied rate table and customer terms.
// The order is fixed: base+distance subtotal, then the single winning
// surcharge window, then the customer discount, then the minimum floor.
// Calling it twice with the same inputs yields the same breakdown.
func Compute(req QuoteRequest, rates RateTable, terms CustomerTerms) (Quote, error) {
	if len(req.Classes) == 0 {
		return Quote{}, ErrNoVehicles
	}

	var base int64
	for _, class := range req.Classes {
		amount, ok := rates.BaseByClass[class]
		if !ok {
			return Quote{}, fmt.Errorf("%w: %s", ErrUnknownClass, class)
		}
		base += amount
	}

	distanceAmount := int64(math.Round(req.DistanceKm * float64(rates.PerKm)))
	subtotal := base + distanceAmount

	q := Quote{
		Currency:       rates.Currency,
		Base:           base,
		DistanceKm:     req.DistanceKm,
		DistanceAmount: distanceAmount,
		Subtotal:       subtotal,
		Minimum:        rates.Minimum,
	}

	running := subtotal
	if win, ok := matchSurcharge(rates.Surcharges, req.At); ok {
		q.SurchargeName = win.Name
		q.SurchargePercent = win.Percent
		running = applyPercent(running, win.Percent)
	}
	q.AfterSurcharge = running

	if terms.DiscountPercent > 0 {
		q.DiscountPercent = terms.DiscountPercent
		running = applyPercent(running, -terms.DiscountPercent)
	}
	q.AfterDiscount = running

	if running < rates.Minimum {
		running = rates.Minimum
	}
	q.Final = running
	return q, nil
}

// matchSurcharge returns the highest-priority window covering t, if any.
func matchSurcharge(windows []SurchargeWindow, t time.Time) (SurchargeWindow, bool) {
	var best SurchargeWindow
	found := false
	for _, w := range windows {
		if !windowCovers(w, t) {
			continue
		}
		if !found || w.Priority > best.Priority {
			best = w
			found = true
		}
	}
	return best, found
}

func windowCovers(w SurchargeWindow, t time.Time) bool {
	if len(w.Days) > 0 && !containsDay(w.Days, t.Weekday()) {
		return false
	}
	h := t.Hour()
	if w.StartHour <= w.EndHour {
		return h >= w.StartHour && h < w.EndHour
	}
	// Overnight window wraps past midnight.
	return h >= w.StartHour || h < w.EndHour
}

func containsDay(days []time.Weekday, d time.Weekday) bool {
	for _, v := range days {
		if v == d {
			return true
		}
	}
	return false
}

func applyPercent(amount int64, percent float64) int64 {
	return int64(math.Round(float64(amount) * (1 + percent/100)))
}
