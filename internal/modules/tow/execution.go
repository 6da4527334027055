// README: Driver execution controller — the only writer of tow/point state
// during field execution. Each operation takes the caller's expected point
// status and applies the transition optimistically.
package tow

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eden-magar/towing-saas-sub002/internal/maps"
	"github.com/eden-magar/towing-saas-sub002/internal/modules/cash"
	"github.com/eden-magar/towing-saas-sub002/internal/notify"
	"github.com/eden-magar/towing-saas-sub002/internal/types"
)

// DistanceProvider is the road-distance boundary; *maps.RouteService
// satisfies it. Lookups are best-effort metadata, never a gate.
type DistanceProvider interface {
	Distance(ctx context.Context, origin, destination string) (maps.Leg, error)
}

// CashRecorder is the ledger boundary; *cash.Service satisfies it.
type CashRecorder interface {
	RecordCollection(ctx context.Context, cmd cash.CollectCommand) (*cash.Transaction, error)
}

type Controller struct {
	store     *Store
	cache     *Cache
	finalizer *Finalizer
	cash      CashRecorder
	distance  DistanceProvider
	notifier  notify.Notifier
	log       *logrus.Logger
	minPhotos int
}

func NewController(
	store *Store,
	cache *Cache,
	finalizer *Finalizer,
	recorder CashRecorder,
	distance DistanceProvider,
	notifier notify.Notifier,
	log *logrus.Logger,
	minPhotos int,
) *Controller {
	return &Controller{
		store:     store,
		cache:     cache,
		finalizer: finalizer,
		cash:      recorder,
		distance:  distance,
		notifier:  notifier,
		log:       log,
		minPhotos: minPhotos,
	}
}

// TransitionCommand identifies one point transition attempt. Expected is the
// status the driver's device last observed; a mismatch with storage fails
// with ErrStaleTransition instead of applying a stale view.
type TransitionCommand struct {
	CompanyID types.ID
	TowID     types.ID
	PointID   types.ID
	DriverID  types.ID
	Expected  PointStatus
}

type CompleteCommand struct {
	TransitionCommand
	// RecipientName/Phone are collected at the door on dropoffs.
	RecipientName  string
	RecipientPhone string
	// CashAmount, when set on a dropoff, is recorded in the ledger
	// together with the completion. Agorot.
	CashAmount *int64
	CashNotes  string
}

// Depart moves a point pending→en_route when the driver begins travel.
func (c *Controller) Depart(ctx context.Context, cmd TransitionCommand) (*Snapshot, error) {
	return c.transition(ctx, cmd, PointEnRoute, nil)
}

// Arrive moves a point en_route→arrived. Safe to retry: a repeat while
// already arrived is a no-op returning the same state.
func (c *Controller) Arrive(ctx context.Context, cmd TransitionCommand) (*Snapshot, error) {
	return c.transition(ctx, cmd, PointArrived, nil)
}

// Complete moves a point arrived→completed once the evidence gate and, for
// dropoffs, the recipient requirement are satisfied. Completing the last
// non-skipped point finalizes the tow and its price.
func (c *Controller) Complete(ctx context.Context, cmd CompleteCommand) (*Snapshot, error) {
	return c.transition(ctx, cmd.TransitionCommand, PointCompleted, &cmd)
}

// transition runs the shared optimistic flow: load, validate, conditionally
// write, then apply per-target side effects exactly once. Target-already-
// reached beats the expected-status check: a call whose target equals the
// stored status is treated as a retry and succeeds regardless of how stale
// the caller's expected-status is, because the requested outcome already
// holds. ErrStaleTransition is reserved for calls asking for a state change
// the stored status no longer permits.
func (c *Controller) transition(ctx context.Context, cmd TransitionCommand, target PointStatus, complete *CompleteCommand) (*Snapshot, error) {
	if cmd.TowID == "" || cmd.PointID == "" {
		return nil, ErrBadRequest
	}

	t, err := c.store.GetTow(ctx, cmd.CompanyID, cmd.TowID)
	if err != nil {
		return nil, err
	}
	points, err := c.store.ListPoints(ctx, cmd.TowID)
	if err != nil {
		return nil, err
	}
	p := findPoint(points, cmd.PointID)
	if p == nil {
		return nil, ErrNotFound
	}

	if !t.Status.Active() {
		// Retrying the completion that finalized the tow is still success.
		if t.Status == StatusCompleted && p.Status == target {
			return c.replaySideEffects(ctx, t, points, p, complete)
		}
		return nil, ErrTowNotActive
	}

	if p.Status != cmd.Expected {
		// A retry that already landed is success, not conflict; the write
		// below never ran twice, so replay only the idempotent effects.
		if p.Status == target {
			return c.replaySideEffects(ctx, t, points, p, complete)
		}
		return nil, ErrStaleTransition
	}
	if !CanTransition(cmd.Expected, target) {
		return nil, ErrStaleTransition
	}
	if target == PointEnRoute && !predecessorsDone(points, p) {
		return nil, ErrStaleTransition
	}

	if target == PointCompleted {
		if err := c.checkCompletePreconditions(ctx, t, p, complete); err != nil {
			return nil, err
		}
	}

	ok, err := c.store.UpdatePointStatus(ctx, p.ID, cmd.Expected, target, p.StatusVersion)
	if err != nil {
		return nil, err
	}
	if !ok {
		return c.resolveMissedWrite(ctx, cmd, target, complete)
	}

	_ = c.store.AppendEvent(ctx, &Event{
		TowID:      t.ID,
		PointID:    &p.ID,
		FromStatus: string(cmd.Expected),
		ToStatus:   string(target),
		ActorType:  "driver",
		ActorID:    driverRef(cmd.DriverID, t),
		CreatedAt:  time.Now(),
	})

	switch target {
	case PointEnRoute:
		if _, err := c.store.MarkInProgress(ctx, t.ID); err != nil {
			c.log.WithError(err).WithField("tow_id", t.ID).Error("mark in_progress failed")
		}
	case PointArrived:
		c.recordLegDistance(ctx, t, points, p)
	case PointCompleted:
		if err := c.recordCash(ctx, t, p, complete); err != nil {
			return nil, err
		}
		if err := c.finalizer.finalizeIfDone(ctx, t); err != nil {
			return nil, err
		}
	}

	return c.snapshot(ctx, cmd.CompanyID, cmd.TowID)
}

// resolveMissedWrite classifies a conditional UPDATE that matched no rows:
// the tow went inactive, the retry already landed, or the client is stale.
func (c *Controller) resolveMissedWrite(ctx context.Context, cmd TransitionCommand, target PointStatus, complete *CompleteCommand) (*Snapshot, error) {
	t, err := c.store.GetTow(ctx, cmd.CompanyID, cmd.TowID)
	if err != nil {
		return nil, err
	}
	if !t.Status.Active() && t.Status != StatusCompleted {
		return nil, ErrTowNotActive
	}
	points, err := c.store.ListPoints(ctx, cmd.TowID)
	if err != nil {
		return nil, err
	}
	p := findPoint(points, cmd.PointID)
	if p == nil {
		return nil, ErrNotFound
	}
	if p.Status == target {
		return c.replaySideEffects(ctx, t, points, p, complete)
	}
	return nil, ErrStaleTransition
}

// replaySideEffects re-runs the deduplicated effects of a completion whose
// write already landed (cash entry, tow finalization), then returns the
// current snapshot. Non-completion retries have no effects to replay.
func (c *Controller) replaySideEffects(ctx context.Context, t *Tow, points []*Point, p *Point, complete *CompleteCommand) (*Snapshot, error) {
	if complete != nil {
		if err := c.recordCash(ctx, t, p, complete); err != nil {
			return nil, err
		}
		if t.Status == StatusInProgress {
			if err := c.finalizer.finalizeIfDone(ctx, t); err != nil {
				return nil, err
			}
		}
	}
	return c.snapshot(ctx, t.CompanyID, t.ID)
}

func (c *Controller) checkCompletePreconditions(ctx context.Context, t *Tow, p *Point, cmd *CompleteCommand) error {
	if cmd == nil {
		return ErrBadRequest
	}
	if p.Type == PointDropoff {
		name := cmd.RecipientName
		if name == "" {
			name = p.RecipientName
		}
		if name == "" {
			return &PreconditionError{
				Reason:  ReasonMissingRecipient,
				Message: "dropoff requires a recipient name",
			}
		}
		if cmd.RecipientName != "" {
			if err := c.store.SetPointRecipient(ctx, p.ID, cmd.RecipientName, cmd.RecipientPhone); err != nil {
				return err
			}
		}
	} else if cmd.CashAmount != nil {
		return ErrBadRequest
	}

	if cmd.CashAmount != nil && *cmd.CashAmount <= 0 {
		return cash.ErrInvalidAmount
	}

	shortfalls, err := c.store.PhotoShortfalls(ctx, t.ID, p.ID, PhotoTypeFor(p.Type), c.minPhotos)
	if err != nil {
		return err
	}
	if len(shortfalls) > 0 {
		sf := shortfalls[0]
		return &PreconditionError{
			Reason: ReasonInsufficientPhotos,
			Message: fmt.Sprintf("take %d more photo(s) of vehicle %s",
				c.minPhotos-sf.Have, sf.Plate),
		}
	}
	return nil
}

// recordCash appends the collection attached to a dropoff completion. The
// ledger's per-point uniqueness makes replays a no-op, which is what lets
// the completion and the collection behave as one atomic outcome under
// retries.
func (c *Controller) recordCash(ctx context.Context, t *Tow, p *Point, cmd *CompleteCommand) error {
	if cmd == nil || cmd.CashAmount == nil || p.Type != PointDropoff {
		return nil
	}
	driverID := cmd.DriverID
	if driverID == "" && t.DriverID != nil {
		driverID = *t.DriverID
	}
	_, err := c.cash.RecordCollection(ctx, cash.CollectCommand{
		CompanyID: t.CompanyID,
		DriverID:  driverID,
		Amount:    *cmd.CashAmount,
		TowID:     t.ID,
		PointID:   p.ID,
		Notes:     cmd.CashNotes,
	})
	return err
}

// recordLegDistance fetches the road distance for the leg ending at p.
// Upstream failure is logged and ignored: distance is metadata, not a gate.
func (c *Controller) recordLegDistance(ctx context.Context, t *Tow, points []*Point, p *Point) {
	if c.distance == nil {
		return
	}
	origin, ok := previousLocationRef(t, points, p)
	if !ok {
		return
	}
	leg, err := c.distance.Distance(ctx, origin, p.LocationRef())
	if err != nil {
		c.log.WithError(err).WithFields(logrus.Fields{
			"tow_id":   t.ID,
			"point_id": p.ID,
		}).Warn("leg distance lookup failed")
		return
	}
	if err := c.store.SetPointLeg(ctx, p.ID, leg.Km, leg.Minutes); err != nil {
		c.log.WithError(err).WithField("point_id", p.ID).Warn("leg distance store failed")
	}
}

// previousLocationRef resolves the routing origin for the leg ending at p:
// the nearest earlier non-skipped point, or the company base for the first
// stop of a start-from-base job.
func previousLocationRef(t *Tow, points []*Point, p *Point) (string, bool) {
	var prev *Point
	for _, q := range points {
		if q.Seq >= p.Seq {
			break
		}
		if q.Status != PointSkipped {
			prev = q
		}
	}
	if prev != nil {
		return prev.LocationRef(), true
	}
	if t.StartFromBase {
		ref := baseLocationRef(t)
		return ref, ref != ""
	}
	return "", false
}

func baseLocationRef(t *Tow) string {
	if t.BasePos != nil && !t.BasePos.IsZero() {
		return fmt.Sprintf("%f,%f", t.BasePos.Lat, t.BasePos.Lng)
	}
	return t.BaseAddress
}

// predecessorsDone enforces visitation order: a driver may only depart to a
// point once every earlier point is completed or skipped.
func predecessorsDone(points []*Point, p *Point) bool {
	for _, q := range points {
		if q.Seq >= p.Seq {
			break
		}
		if q.Status != PointCompleted && q.Status != PointSkipped {
			return false
		}
	}
	return true
}

func findPoint(points []*Point, id types.ID) *Point {
	for _, p := range points {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func driverRef(cmdDriver types.ID, t *Tow) *types.ID {
	if cmdDriver != "" {
		return &cmdDriver
	}
	return t.DriverID
}

func (c *Controller) snapshot(ctx context.Context, companyID, towID types.ID) (*Snapshot, error) {
	t, err := c.store.GetTow(ctx, companyID, towID)
	if err != nil {
		return nil, err
	}
	points, err := c.store.ListPoints(ctx, towID)
	if err != nil {
		return nil, err
	}
	vehicles, err := c.store.ListVehicles(ctx, towID)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{Tow: t, Points: points, Vehicles: vehicles, Progress: Progress(points)}
	if c.cache != nil {
		if err := c.cache.Put(ctx, snap); err != nil {
			c.log.WithError(err).WithField("tow_id", towID).Debug("snapshot cache refresh failed")
		}
	}
	return snap, nil
}
