// README: Rate table and quote breakdown definitions for tow pricing.
package pricing

import (
	"time"

	"github.com/eden-magar/towing-saas-sub002/internal/types"
)

type VehicleClass string

const (
	ClassMotorcycle VehicleClass = "motorcycle"
	ClassPrivate    VehicleClass = "private"
	ClassSUV        VehicleClass = "suv"
	ClassVanTruck   VehicleClass = "van_truck"
	ClassHeavy      VehicleClass = "heavy"
)

// SurchargeWindow is a recurring weekly time window with a percent uplift.
// Windows do not stack: the highest-priority matching window wins.
type SurchargeWindow struct {
	Name     string
	Percent  float64
	Priority int
	// Days the window applies on; empty means every day.
	Days []time.Weekday
	// Hours are half-open [StartHour, EndHour). StartHour > EndHour wraps
	// past midnight (e.g. 21→06 for a night window).
	StartHour int
	EndHour   int
}

// RateTable is the caller-supplied pricing input. Rates are never read from
// process-global state; each tenant's table is loaded per computation.
type RateTable struct {
	CompanyID   types.ID
	Currency    string
	BaseByClass map[VehicleClass]int64
	PerKm       int64
	Minimum     int64
	Surcharges  []SurchargeWindow
}

// CustomerTerms carries per-customer pricing agreements.
type CustomerTerms struct {
	DiscountPercent float64
}

// QuoteRequest prices one job. Classes holds the class of every vehicle on
// the tow; the base amount is charged per vehicle and summed.
type QuoteRequest struct {
	Classes    []VehicleClass
	DistanceKm float64
	At         time.Time
}

// Quote retains every intermediate figure so the final amount is auditable.
type Quote struct {
	Currency         string  `json:"currency"`
	Base             int64   `json:"base"`
	DistanceKm       float64 `json:"distance_km"`
	DistanceAmount   int64   `json:"distance_amount"`
	Subtotal         int64   `json:"subtotal"`
	SurchargeName    string  `json:"surcharge_name,omitempty"`
	SurchargePercent float64 `json:"surcharge_percent"`
	AfterSurcharge   int64   `json:"after_surcharge"`
	DiscountPercent  float64 `json:"discount_percent"`
	AfterDiscount    int64   `json:"after_discount"`
	Minimum          int64   `json:"minimum"`
	Final            int64   `json:"final"`
}

func (q Quote) Money() types.Money {
	return types.Money{Amount: q.Final, Currency: q.Currency}
}
