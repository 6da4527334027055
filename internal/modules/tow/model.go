// README: Tow aggregate, point lifecycle, and status definitions.
package tow

import (
	"fmt"
	"time"

	"github.com/eden-magar/towing-saas-sub002/internal/modules/pricing"
	"github.com/eden-magar/towing-saas-sub002/internal/types"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Active reports whether point transitions are still accepted.
func (s Status) Active() bool {
	return s == StatusAssigned || s == StatusInProgress
}

type PointStatus string

const (
	PointPending   PointStatus = "pending"
	PointEnRoute   PointStatus = "en_route"
	PointArrived   PointStatus = "arrived"
	PointCompleted PointStatus = "completed"
	PointSkipped   PointStatus = "skipped"
)

type PointType string

const (
	PointPickup  PointType = "pickup"
	PointDropoff PointType = "dropoff"
)

type PhotoType string

const (
	PhotoBeforePickup  PhotoType = "before_pickup"
	PhotoBeforeDropoff PhotoType = "before_dropoff"
)

// PhotoTypeFor maps a stop type to the evidence set it requires.
func PhotoTypeFor(t PointType) PhotoType {
	if t == PointDropoff {
		return PhotoBeforeDropoff
	}
	return PhotoBeforePickup
}

// AllowedTransitions represents the point state flow as code. Skipped is
// reachable only through the dispatcher override, never the driver flow.
var AllowedTransitions = map[PointStatus][]PointStatus{
	PointPending: {PointEnRoute, PointSkipped},
	PointEnRoute: {PointArrived, PointSkipped},
	PointArrived: {PointCompleted},
}

func CanTransition(from, to PointStatus) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// Tow is one job: an ordered route of points, driven by one driver.
type Tow struct {
	ID            types.ID
	CompanyID     types.ID
	CustomerID    types.ID
	Status        Status
	StatusVersion int
	DriverID      *types.ID
	StartFromBase bool
	BaseAddress   string
	BasePos       *types.Point
	Notes         string
	FinalPrice    *types.Money
	Breakdown     *pricing.Quote
	CreatedAt     time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
	CancelledAt   *time.Time
}

// Point is one stop within a tow. Seq defines the visitation order.
type Point struct {
	ID             types.ID
	TowID          types.ID
	Type           PointType
	Seq            int
	Status         PointStatus
	StatusVersion  int
	Address        string
	Pos            *types.Point
	ContactName    string
	ContactPhone   string
	RecipientName  string
	RecipientPhone string
	Notes          string
	LegKm          *float64
	LegMinutes     *float64
	ArrivedAt      *time.Time
	CompletedAt    *time.Time
}

// Vehicle travels with the tow for the duration of the job.
type Vehicle struct {
	ID           types.ID
	TowID        types.ID
	Class        pricing.VehicleClass
	Plate        string
	Manufacturer string
	Model        string
	Color        string
}

// Photo is one piece of photographic evidence, stored by reference only.
type Photo struct {
	ID         types.ID
	TowID      types.ID
	PointID    types.ID
	VehicleID  types.ID
	Type       PhotoType
	URL        string
	CapturedAt time.Time
}

// Event is one audit row in the tow state log.
type Event struct {
	ID         int64
	TowID      types.ID
	PointID    *types.ID
	FromStatus string
	ToStatus   string
	ActorType  string
	ActorID    *types.ID
	CreatedAt  time.Time
}

// Snapshot is the read model handed to drivers and dashboards.
type Snapshot struct {
	Tow      *Tow
	Points   []*Point
	Vehicles []*Vehicle
	Progress float64
}

// Progress is completed points over total non-skipped points, in percent.
// It is derived, never stored.
func Progress(points []*Point) float64 {
	total := 0
	done := 0
	for _, p := range points {
		if p.Status == PointSkipped {
			continue
		}
		total++
		if p.Status == PointCompleted {
			done++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(done) / float64(total) * 100
}

// RemainingPoints counts non-skipped points not yet completed.
func RemainingPoints(points []*Point) int {
	n := 0
	for _, p := range points {
		if p.Status != PointSkipped && p.Status != PointCompleted {
			n++
		}
	}
	return n
}

// LocationRef renders the best routing reference for a point: resolved
// coordinates when present, the street address otherwise.
func (p *Point) LocationRef() string {
	if p.Pos != nil && !p.Pos.IsZero() {
		return fmt.Sprintf("%f,%f", p.Pos.Lat, p.Pos.Lng)
	}
	return p.Address
}
