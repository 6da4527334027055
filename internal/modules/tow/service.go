// README: Dispatcher-facing tow service: creation, assignment, cancellation,
// overrides, evidence intake, and read-model snapshots.
package tow

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eden-magar/towing-saas-sub002/internal/modules/pricing"
	"github.com/eden-magar/towing-saas-sub002/internal/notify"
	"github.com/eden-magar/towing-saas-sub002/internal/types"
)

var (
	ErrNotFound = errors.New("tow not found")
	// ErrStaleTransition means the caller acted on an outdated snapshot.
	// Refetch and retry with the status actually stored.
	ErrStaleTransition = errors.New("stale transition")
	// ErrTowNotActive rejects point transitions on cancelled/completed tows.
	// Not retryable; the driver flow must stop.
	ErrTowNotActive = errors.New("tow is not active")
	ErrBadRequest   = errors.New("bad request")
)

// Machine-readable precondition reasons surfaced to the driver client.
const (
	ReasonInsufficientPhotos = "insufficient_photos"
	ReasonMissingRecipient   = "missing_recipient"
)

// PreconditionError reports a completion requirement the driver can resolve
// locally (take more photos, enter a recipient) and then retry.
type PreconditionError struct {
	Reason  string
	Message string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed (%s): %s", e.Reason, e.Message)
}

// PriceQuoter is the pricing engine boundary; *pricing.Service satisfies it.
type PriceQuoter interface {
	Quote(ctx context.Context, companyID, customerID types.ID, req pricing.QuoteRequest) (pricing.Quote, error)
}

type Service struct {
	store     *Store
	cache     *Cache
	pricing   PriceQuoter
	finalizer *Finalizer
	notifier  notify.Notifier
	log       *logrus.Logger
}

func NewService(store *Store, cache *Cache, quoter PriceQuoter, finalizer *Finalizer, notifier notify.Notifier, log *logrus.Logger) *Service {
	return &Service{store: store, cache: cache, pricing: quoter, finalizer: finalizer, notifier: notifier, log: log}
}

type PointInput struct {
	Type           PointType
	Address        string
	Pos            *types.Point
	ContactName    string
	ContactPhone   string
	RecipientName  string
	RecipientPhone string
	Notes          string
}

type VehicleInput struct {
	Class        pricing.VehicleClass
	Plate        string
	Manufacturer string
	Model        string
	Color        string
}

type CreateCommand struct {
	CompanyID     types.ID
	CustomerID    types.ID
	StartFromBase bool
	BaseAddress   string
	BasePos       *types.Point
	Notes         string
	Points        []PointInput
	Vehicles      []VehicleInput
	// QuoteDistanceKm requests an up-front estimate over the given route
	// distance. Zero defers pricing to completion.
	QuoteDistanceKm float64
}

// Create builds a tow in pending with its ordered points and vehicles.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Snapshot, error) {
	if cmd.CompanyID == "" || len(cmd.Points) == 0 || len(cmd.Vehicles) == 0 {
		return nil, ErrBadRequest
	}
	for _, p := range cmd.Points {
		if p.Type != PointPickup && p.Type != PointDropoff {
			return nil, ErrBadRequest
		}
		if p.Address == "" {
			return nil, ErrBadRequest
		}
	}
	if cmd.StartFromBase && cmd.BaseAddress == "" && cmd.BasePos == nil {
		return nil, ErrBadRequest
	}

	now := time.Now()
	t := &Tow{
		ID:            newID(),
		CompanyID:     cmd.CompanyID,
		CustomerID:    cmd.CustomerID,
		Status:        StatusPending,
		StartFromBase: cmd.StartFromBase,
		BaseAddress:   cmd.BaseAddress,
		BasePos:       cmd.BasePos,
		Notes:         cmd.Notes,
		CreatedAt:     now,
	}

	points := make([]*Point, 0, len(cmd.Points))
	for i, in := range cmd.Points {
		points = append(points, &Point{
			ID:             newID(),
			TowID:          t.ID,
			Type:           in.Type,
			Seq:            i,
			Status:         PointPending,
			Address:        in.Address,
			Pos:            in.Pos,
			ContactName:    in.ContactName,
			ContactPhone:   in.ContactPhone,
			RecipientName:  in.RecipientName,
			RecipientPhone: in.RecipientPhone,
			Notes:          in.Notes,
		})
	}

	vehicles := make([]*Vehicle, 0, len(cmd.Vehicles))
	classes := make([]pricing.VehicleClass, 0, len(cmd.Vehicles))
	for _, in := range cmd.Vehicles {
		if in.Plate == "" || in.Class == "" {
			return nil, ErrBadRequest
		}
		vehicles = append(vehicles, &Vehicle{
			ID:           newID(),
			TowID:        t.ID,
			Class:        in.Class,
			Plate:        in.Plate,
			Manufacturer: in.Manufacturer,
			Model:        in.Model,
			Color:        in.Color,
		})
		classes = append(classes, in.Class)
	}

	// Pre-quote is best-effort metadata; a missing rate table should not
	// block dispatch.
	if cmd.QuoteDistanceKm > 0 && s.pricing != nil {
		q, err := s.pricing.Quote(ctx, cmd.CompanyID, cmd.CustomerID, pricing.QuoteRequest{
			Classes:    classes,
			DistanceKm: cmd.QuoteDistanceKm,
			At:         now,
		})
		if err != nil {
			s.log.WithError(err).WithField("company_id", cmd.CompanyID).Warn("pre-quote failed")
		} else {
			m := q.Money()
			t.FinalPrice = &m
			t.Breakdown = &q
		}
	}

	if err := s.store.CreateTow(ctx, t, points, vehicles); err != nil {
		return nil, err
	}
	_ = s.store.AppendEvent(ctx, &Event{
		TowID:      t.ID,
		FromStatus: "",
		ToStatus:   string(StatusPending),
		ActorType:  "dispatcher",
		CreatedAt:  now,
	})

	snap := &Snapshot{Tow: t, Points: points, Vehicles: vehicles, Progress: 0}
	s.refreshCache(ctx, snap)
	return snap, nil
}

type AssignCommand struct {
	CompanyID types.ID
	TowID     types.ID
	DriverID  types.ID
}

// Assign pins a driver and moves pending→assigned.
func (s *Service) Assign(ctx context.Context, cmd AssignCommand) (*Snapshot, error) {
	if cmd.DriverID == "" {
		return nil, ErrBadRequest
	}
	t, err := s.store.GetTow(ctx, cmd.CompanyID, cmd.TowID)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusPending {
		return nil, ErrStaleTransition
	}
	ok, err := s.store.AssignDriver(ctx, cmd.CompanyID, cmd.TowID, cmd.DriverID, t.StatusVersion)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrStaleTransition
	}
	_ = s.store.AppendEvent(ctx, &Event{
		TowID:      t.ID,
		FromStatus: string(StatusPending),
		ToStatus:   string(StatusAssigned),
		ActorType:  "dispatcher",
		ActorID:    &cmd.DriverID,
		CreatedAt:  time.Now(),
	})
	s.notifier.Notify(ctx, string(cmd.DriverID), "tow_assigned", map[string]any{
		"tow_id": string(t.ID),
	})
	return s.Get(ctx, cmd.CompanyID, cmd.TowID)
}

// Cancel is terminal and wins every race: once stored, in-flight driver
// writes fail with ErrTowNotActive.
func (s *Service) Cancel(ctx context.Context, companyID, towID types.ID) (*Snapshot, error) {
	t, err := s.store.GetTow(ctx, companyID, towID)
	if err != nil {
		return nil, err
	}
	ok, err := s.store.CancelTow(ctx, companyID, towID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTowNotActive
	}
	_ = s.store.AppendEvent(ctx, &Event{
		TowID:      towID,
		FromStatus: string(t.Status),
		ToStatus:   string(StatusCancelled),
		ActorType:  "dispatcher",
		CreatedAt:  time.Now(),
	})
	if t.DriverID != nil {
		s.notifier.Notify(ctx, string(*t.DriverID), "tow_cancelled", map[string]any{
			"tow_id": string(towID),
		})
	}
	return s.Get(ctx, companyID, towID)
}

// SkipPoint is the dispatcher override for an unreachable stop. Drivers have
// no path to skipped.
func (s *Service) SkipPoint(ctx context.Context, companyID, towID, pointID types.ID) (*Snapshot, error) {
	t, err := s.store.GetTow(ctx, companyID, towID)
	if err != nil {
		return nil, err
	}
	if t.Status == StatusCancelled || t.Status == StatusCompleted {
		return nil, ErrTowNotActive
	}
	p, err := s.store.GetPoint(ctx, towID, pointID)
	if err != nil {
		return nil, err
	}
	ok, err := s.store.SkipPoint(ctx, towID, pointID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrStaleTransition
	}
	_ = s.store.AppendEvent(ctx, &Event{
		TowID:      towID,
		PointID:    &pointID,
		FromStatus: string(p.Status),
		ToStatus:   string(PointSkipped),
		ActorType:  "dispatcher",
		CreatedAt:  time.Now(),
	})
	// Skipping the last open point can leave every non-skipped point
	// completed with no driver transition left to close the tow, so the
	// finalization check runs here too.
	if t.Status == StatusInProgress {
		if err := s.finalizer.finalizeIfDone(ctx, t); err != nil {
			return nil, err
		}
	}
	return s.Get(ctx, companyID, towID)
}

type AttachPhotoCommand struct {
	CompanyID types.ID
	TowID     types.ID
	PointID   types.ID
	VehicleID types.ID
	// URL is the reference returned by the photo storage collaborator;
	// raw bytes never reach this service.
	URL        string
	CapturedAt time.Time
}

// AttachPhoto records one piece of evidence against a point's vehicle.
func (s *Service) AttachPhoto(ctx context.Context, cmd AttachPhotoCommand) (*Photo, error) {
	if cmd.URL == "" || cmd.VehicleID == "" {
		return nil, ErrBadRequest
	}
	t, err := s.store.GetTow(ctx, cmd.CompanyID, cmd.TowID)
	if err != nil {
		return nil, err
	}
	if !t.Status.Active() {
		return nil, ErrTowNotActive
	}
	p, err := s.store.GetPoint(ctx, cmd.TowID, cmd.PointID)
	if err != nil {
		return nil, err
	}
	if p.Status == PointCompleted || p.Status == PointSkipped {
		return nil, ErrStaleTransition
	}
	capturedAt := cmd.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}
	photo := &Photo{
		ID:         newID(),
		TowID:      cmd.TowID,
		PointID:    cmd.PointID,
		VehicleID:  cmd.VehicleID,
		Type:       PhotoTypeFor(p.Type),
		URL:        cmd.URL,
		CapturedAt: capturedAt,
	}
	if err := s.store.AddPhoto(ctx, photo); err != nil {
		return nil, err
	}
	return photo, nil
}

// Get assembles the full snapshot with derived progress.
func (s *Service) Get(ctx context.Context, companyID, towID types.ID) (*Snapshot, error) {
	t, err := s.store.GetTow(ctx, companyID, towID)
	if err != nil {
		return nil, err
	}
	points, err := s.store.ListPoints(ctx, towID)
	if err != nil {
		return nil, err
	}
	vehicles, err := s.store.ListVehicles(ctx, towID)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{Tow: t, Points: points, Vehicles: vehicles, Progress: Progress(points)}
	s.refreshCache(ctx, snap)
	return snap, nil
}

// GetCached serves dashboard reads from the Redis snapshot when available,
// falling back to the store. Dashboard traffic never blocks the execution
// path either way.
func (s *Service) GetCached(ctx context.Context, companyID, towID types.ID) (*Snapshot, error) {
	if s.cache != nil {
		if snap, err := s.cache.Get(ctx, towID); err == nil && snap != nil && snap.Tow.CompanyID == companyID {
			return snap, nil
		}
	}
	return s.Get(ctx, companyID, towID)
}

// List returns company tows with derived progress for dashboards.
func (s *Service) List(ctx context.Context, companyID types.ID, status Status, limit int) ([]TowSummary, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListTows(ctx, companyID, status, limit)
}

func (s *Service) refreshCache(ctx context.Context, snap *Snapshot) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Put(ctx, snap); err != nil {
		s.log.WithError(err).WithField("tow_id", snap.Tow.ID).Debug("snapshot cache refresh failed")
	}
}

func newID() types.ID {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return types.ID(hex.EncodeToString(b[:]))
}
