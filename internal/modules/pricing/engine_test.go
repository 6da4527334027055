package pricing

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func testRates() RateTable {
	return RateTable{
		CompanyID: "c1",
		Currency:  "ILS",
		BaseByClass: map[VehicleClass]int64{
			ClassMotorcycle: 12000,
			ClassPrivate:    18000,
			ClassSUV:        22000,
			ClassVanTruck:   28000,
		},
		PerKm:   600,
		Minimum: 25000,
		Surcharges: []SurchargeWindow{
			{Name: "night", Percent: 20, Priority: 10, StartHour: 21, EndHour: 6},
			{Name: "weekend", Percent: 15, Priority: 5, Days: []time.Weekday{time.Friday, time.Saturday}, StartHour: 0, EndHour: 24},
		},
	}
}

// Wednesday noon: no surcharge window covers it.
var dayTime = time.Date(2025, 11, 5, 12, 0, 0, 0, time.UTC)

// Wednesday 23:30: night window.
var nightTime = time.Date(2025, 11, 5, 23, 30, 0, 0, time.UTC)

// Saturday noon: weekend window.
var weekendTime = time.Date(2025, 11, 8, 12, 0, 0, 0, time.UTC)

// Friday 23:30: both windows match; night has the higher priority.
var fridayNight = time.Date(2025, 11, 7, 23, 30, 0, 0, time.UTC)

func TestCompute_NightSurchargeThenDiscount(t *testing.T) {
	// Private car, 25km at ₪6/km: 180 + 150 = 330.
	// +20% night = 396, −10% customer discount = 356.40, above the ₪250 floor.
	q, err := Compute(QuoteRequest{
		Classes:    []VehicleClass{ClassPrivate},
		DistanceKm: 25,
		At:         nightTime,
	}, testRates(), CustomerTerms{DiscountPercent: 10})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	if q.Base != 18000 {
		t.Errorf("base = %d, want 18000", q.Base)
	}
	if q.DistanceAmount != 15000 {
		t.Errorf("distance amount = %d, want 15000", q.DistanceAmount)
	}
	if q.Subtotal != 33000 {
		t.Errorf("subtotal = %d, want 33000", q.Subtotal)
	}
	if q.SurchargeName != "night" || q.SurchargePercent != 20 {
		t.Errorf("surcharge = %s/%v, want night/20", q.SurchargeName, q.SurchargePercent)
	}
	if q.AfterSurcharge != 39600 {
		t.Errorf("after surcharge = %d, want 39600", q.AfterSurcharge)
	}
	if q.AfterDiscount != 35640 {
		t.Errorf("after discount = %d, want 35640", q.AfterDiscount)
	}
	if q.Final != 35640 {
		t.Errorf("final = %d, want 35640", q.Final)
	}
}

// Surcharge-before-discount is a fixed policy; flipping the order changes the
// figure whenever rounding bites, so the locked breakdown above is the contract.
func TestCompute_OrderIsSurchargeThenDiscount(t *testing.T) {
	rates := RateTable{
		CompanyID:   "c1",
		Currency:    "ILS",
		BaseByClass: map[VehicleClass]int64{ClassMotorcycle: 900},
		PerKm:       9,
		Minimum:     0,
		Surcharges:  []SurchargeWindow{{Name: "night", Percent: 5, Priority: 1, StartHour: 21, EndHour: 6}},
	}

	q, err := Compute(QuoteRequest{
		Classes:    []VehicleClass{ClassMotorcycle},
		DistanceKm: 11,
		At:         nightTime,
	}, rates, CustomerTerms{DiscountPercent: 5})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	// 900 + 99 = 999; +5% → 1049 (rounded); −5% → 997.
	if q.AfterDiscount != 997 {
		t.Errorf("after discount = %d, want 997", q.AfterDiscount)
	}
	// Discount first would give round(999*0.95)=949, then +5% → 996.
	discountFirst := applyPercent(applyPercent(999, -5), 5)
	if discountFirst == q.AfterDiscount {
		t.Fatalf("inputs no longer order-sensitive (%d both ways)", discountFirst)
	}
}

func TestCompute_MinimumFloor(t *testing.T) {
	q, err := Compute(QuoteRequest{
		Classes:    []VehicleClass{ClassMotorcycle},
		DistanceKm: 2,
		At:         dayTime,
	}, testRates(), CustomerTerms{})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	// 12000 + 1200 = 13200, lifted to the 25000 floor.
	if q.AfterDiscount != 13200 {
		t.Errorf("after discount = %d, want 13200", q.AfterDiscount)
	}
	if q.Final != 25000 {
		t.Errorf("final = %d, want 25000", q.Final)
	}
}

func TestCompute_SurchargesDoNotStack(t *testing.T) {
	q, err := Compute(QuoteRequest{
		Classes:    []VehicleClass{ClassPrivate},
		DistanceKm: 25,
		At:         fridayNight,
	}, testRates(), CustomerTerms{})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if q.SurchargeName != "night" {
		t.Errorf("winning window = %s, want night (higher priority)", q.SurchargeName)
	}
	// Only the 20% night uplift, never 20%+15%.
	if q.AfterSurcharge != 39600 {
		t.Errorf("after surcharge = %d, want 39600", q.AfterSurcharge)
	}
}

func TestCompute_WeekendWindowByDay(t *testing.T) {
	q, err := Compute(QuoteRequest{
		Classes:    []VehicleClass{ClassPrivate},
		DistanceKm: 25,
		At:         weekendTime,
	}, testRates(), CustomerTerms{})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if q.SurchargeName != "weekend" || q.SurchargePercent != 15 {
		t.Errorf("surcharge = %s/%v, want weekend/15", q.SurchargeName, q.SurchargePercent)
	}
}

func TestCompute_MultiVehicleBase(t *testing.T) {
	q, err := Compute(QuoteRequest{
		Classes:    []VehicleClass{ClassPrivate, ClassSUV},
		DistanceKm: 40,
		At:         dayTime,
	}, testRates(), CustomerTerms{})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if q.Base != 18000+22000 {
		t.Errorf("base = %d, want %d", q.Base, 18000+22000)
	}
}

func TestCompute_Deterministic(t *testing.T) {
	req := QuoteRequest{
		Classes:    []VehicleClass{ClassVanTruck},
		DistanceKm: 17.3,
		At:         nightTime,
	}
	a, err := Compute(req, testRates(), CustomerTerms{DiscountPercent: 5})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	b, err := Compute(req, testRates(), CustomerTerms{DiscountPercent: 5})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Errorf("breakdowns differ: %+v vs %+v", a, b)
	}
}

func TestCompute_Errors(t *testing.T) {
	if _, err := Compute(QuoteRequest{DistanceKm: 5, At: dayTime}, testRates(), CustomerTerms{}); !errors.Is(err, ErrNoVehicles) {
		t.Errorf("expected ErrNoVehicles, got %v", err)
	}
	_, err := Compute(QuoteRequest{
		Classes:    []VehicleClass{"hovercraft"},
		DistanceKm: 5,
		At:         dayTime,
	}, testRates(), CustomerTerms{})
	if !errors.Is(err, ErrUnknownClass) {
		t.Errorf("expected ErrUnknownClass, got %v", err)
	}
}

func TestWindowCovers_OvernightWrap(t *testing.T) {
	w := SurchargeWindow{Name: "night", StartHour: 21, EndHour: 6}
	cases := []struct {
		hour int
		want bool
	}{
		{20, false}, {21, true}, {23, true}, {0, true}, {5, true}, {6, false}, {12, false},
	}
	for _, tc := range cases {
		at := time.Date(2025, 11, 5, tc.hour, 0, 0, 0, time.UTC)
		if got := windowCovers(w, at); got != tc.want {
			t.Errorf("windowCovers(hour=%d) = %v, want %v", tc.hour, got, tc.want)
		}
	}
}
