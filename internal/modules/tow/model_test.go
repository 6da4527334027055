// README: Point state machine and derived read-model tests (no database).
package tow

import (
	"testing"

	"github.com/eden-magar/towing-saas-sub002/internal/types"
)

// TestCanTransition verifies the point state machine transition table.
func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to PointStatus
		want     bool
	}{
		// happy-path forward transitions
		{PointPending, PointEnRoute, true},
		{PointEnRoute, PointArrived, true},
		{PointArrived, PointCompleted, true},
		// dispatcher skip, only before arrival
		{PointPending, PointSkipped, true},
		{PointEnRoute, PointSkipped, true},
		{PointArrived, PointSkipped, false},
		// invalid: skipping states
		{PointPending, PointArrived, false},
		{PointPending, PointCompleted, false},
		{PointEnRoute, PointCompleted, false},
		// invalid: going backwards
		{PointArrived, PointEnRoute, false},
		{PointEnRoute, PointPending, false},
		// terminal states have no outgoing transitions
		{PointCompleted, PointEnRoute, false},
		{PointCompleted, PointSkipped, false},
		{PointSkipped, PointEnRoute, false},
		{PointSkipped, PointCompleted, false},
		// self-loops are not transitions
		{PointEnRoute, PointEnRoute, false},
		{PointArrived, PointArrived, false},
	}
	for _, tc := range cases {
		got := CanTransition(tc.from, tc.to)
		if got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestProgressExcludesSkipped(t *testing.T) {
	points := []*Point{
		{Seq: 0, Status: PointCompleted},
		{Seq: 1, Status: PointSkipped},
		{Seq: 2, Status: PointCompleted},
		{Seq: 3, Status: PointPending},
	}
	// 2 of 3 non-skipped points are done.
	if got := Progress(points); got < 66.6 || got > 66.7 {
		t.Errorf("Progress = %v, want ~66.67", got)
	}
	if got := RemainingPoints(points); got != 1 {
		t.Errorf("RemainingPoints = %d, want 1", got)
	}
}

func TestProgressEmptyRoute(t *testing.T) {
	if got := Progress(nil); got != 0 {
		t.Errorf("Progress(nil) = %v, want 0", got)
	}
	all := []*Point{{Status: PointSkipped}, {Status: PointSkipped}}
	if got := Progress(all); got != 0 {
		t.Errorf("Progress(all skipped) = %v, want 0", got)
	}
}

func TestPhotoTypeFor(t *testing.T) {
	if got := PhotoTypeFor(PointPickup); got != PhotoBeforePickup {
		t.Errorf("PhotoTypeFor(pickup) = %s", got)
	}
	if got := PhotoTypeFor(PointDropoff); got != PhotoBeforeDropoff {
		t.Errorf("PhotoTypeFor(dropoff) = %s", got)
	}
}

func TestPointLocationRef(t *testing.T) {
	p := &Point{Address: "Herzl 1, Tel Aviv"}
	if got := p.LocationRef(); got != "Herzl 1, Tel Aviv" {
		t.Errorf("LocationRef without coords = %q", got)
	}
	p.Pos = &types.Point{Lat: 32.0853, Lng: 34.7818}
	if got := p.LocationRef(); got != "32.085300,34.781800" {
		t.Errorf("LocationRef with coords = %q", got)
	}
}
