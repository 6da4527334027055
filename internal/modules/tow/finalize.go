// README: Tow finalization — prices the route and writes the terminal status
// once every non-skipped point is done. Shared by the execution controller
// (last completion) and the dispatcher service (skip of the last open point).
package tow

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eden-magar/towing-saas-sub002/internal/maps"
	"github.com/eden-magar/towing-saas-sub002/internal/modules/pricing"
	"github.com/eden-magar/towing-saas-sub002/internal/notify"
	"github.com/eden-magar/towing-saas-sub002/internal/types"
)

type Finalizer struct {
	store    *Store
	pricing  PriceQuoter
	distance DistanceProvider
	notifier notify.Notifier
	log      *logrus.Logger
}

func NewFinalizer(store *Store, quoter PriceQuoter, distance DistanceProvider, notifier notify.Notifier, log *logrus.Logger) *Finalizer {
	return &Finalizer{
		store:    store,
		pricing:  quoter,
		distance: distance,
		notifier: notifier,
		log:      log,
	}
}

// finalizeIfDone completes the tow once every non-skipped point is done:
// prices the route and writes the terminal status in one conditional UPDATE,
// so concurrent callers finalize at most once.
func (f *Finalizer) finalizeIfDone(ctx context.Context, t *Tow) error {
	points, err := f.store.ListPoints(ctx, t.ID)
	if err != nil {
		return err
	}
	if RemainingPoints(points) > 0 {
		return nil
	}

	vehicles, err := f.store.ListVehicles(ctx, t.ID)
	if err != nil {
		return err
	}
	classes := make([]pricing.VehicleClass, 0, len(vehicles))
	for _, v := range vehicles {
		classes = append(classes, v.Class)
	}

	distanceKm := f.totalRouteKm(ctx, t, points)

	// Surcharge windows are judged against the job's start time; a tow
	// finalized without one (degenerate data) falls back to now.
	at := time.Now()
	if t.StartedAt != nil {
		at = *t.StartedAt
	}

	var price *types.Money
	var breakdown *pricing.Quote
	q, err := f.pricing.Quote(ctx, t.CompanyID, t.CustomerID, pricing.QuoteRequest{
		Classes:    classes,
		DistanceKm: distanceKm,
		At:         at,
	})
	if err != nil {
		// A missing rate table is a back-office problem; it must not strand
		// the driver on a finished job. The tow completes unpriced.
		f.log.WithError(err).WithField("tow_id", t.ID).Error("price finalization failed")
	} else {
		m := q.Money()
		price = &m
		breakdown = &q
	}

	ok, err := f.store.CompleteTow(ctx, t.ID, price, breakdown)
	if err != nil {
		return err
	}
	if !ok {
		// Lost the finalization race or the dispatcher cancelled; either
		// way the stored status is authoritative.
		return nil
	}

	_ = f.store.AppendEvent(ctx, &Event{
		TowID:      t.ID,
		FromStatus: string(StatusInProgress),
		ToStatus:   string(StatusCompleted),
		ActorType:  "system",
		CreatedAt:  time.Now(),
	})
	f.notifier.Notify(ctx, string(t.CompanyID), "tow_completed", map[string]any{
		"tow_id":      string(t.ID),
		"distance_km": distanceKm,
	})
	return nil
}

// totalRouteKm sums the route's consecutive legs, preferring stored road
// distances, then a live lookup, then the haversine fallback.
func (f *Finalizer) totalRouteKm(ctx context.Context, t *Tow, points []*Point) float64 {
	total := 0.0
	var prev *Point
	for _, p := range points {
		if p.Status == PointSkipped {
			continue
		}
		if p.LegKm != nil {
			total += *p.LegKm
		} else {
			total += f.legKm(ctx, t, prev, p)
		}
		prev = p
	}
	return total
}

func (f *Finalizer) legKm(ctx context.Context, t *Tow, prev, p *Point) float64 {
	var origin string
	var originPos *types.Point
	switch {
	case prev != nil:
		origin = prev.LocationRef()
		originPos = prev.Pos
	case t.StartFromBase:
		origin = baseLocationRef(t)
		originPos = t.BasePos
	default:
		// First leg without a base start contributes no distance.
		return 0
	}

	if f.distance != nil && origin != "" {
		if leg, err := f.distance.Distance(ctx, origin, p.LocationRef()); err == nil {
			return leg.Km
		}
	}
	if originPos != nil && p.Pos != nil {
		return maps.HaversineKm(*originPos, *p.Pos)
	}
	return 0
}
