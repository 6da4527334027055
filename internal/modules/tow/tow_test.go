// README: Driver execution flow tests (preconditions, overrides, pricing).
package tow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/eden-magar/towing-saas-sub002/internal/modules/cash"
	"github.com/eden-magar/towing-saas-sub002/internal/modules/pricing"
	"github.com/eden-magar/towing-saas-sub002/internal/notify"
	"github.com/eden-magar/towing-saas-sub002/internal/types"
)

const testMinPhotos = 2

// stubQuoter returns a canned quote (or error) without touching rate tables.
type stubQuoter struct {
	quote pricing.Quote
	err   error
}

func (q stubQuoter) Quote(context.Context, types.ID, types.ID, pricing.QuoteRequest) (pricing.Quote, error) {
	return q.quote, q.err
}

type testEnv struct {
	store *Store
	svc   *Service
	ctrl  *Controller
	cash  *cash.Service
}

func newTestEnv(t *testing.T, quoter PriceQuoter) *testEnv {
	t.Helper()
	store := setupTestStore(t)
	log := logrus.New()
	log.SetOutput(io.Discard)
	cashSvc := cash.NewService(cash.NewStore(store.db))
	finalizer := NewFinalizer(store, quoter, nil, notify.Noop{}, log)
	return &testEnv{
		store: store,
		svc:   NewService(store, nil, quoter, finalizer, notify.Noop{}, log),
		ctrl:  NewController(store, nil, finalizer, cashSvc, nil, notify.Noop{}, log, testMinPhotos),
		cash:  cashSvc,
	}
}

func mustCreateTow(t *testing.T, env *testEnv, companyID types.ID, points []PointInput) *Snapshot {
	t.Helper()
	snap, err := env.svc.Create(context.Background(), CreateCommand{
		CompanyID: companyID,
		Points:    points,
		Vehicles:  []VehicleInput{{Class: pricing.ClassPrivate, Plate: "12-345-67"}},
	})
	if err != nil {
		t.Fatalf("create tow: %v", err)
	}
	return snap
}

func mustAssign(t *testing.T, env *testEnv, companyID, towID, driverID types.ID) {
	t.Helper()
	if _, err := env.svc.Assign(context.Background(), AssignCommand{
		CompanyID: companyID, TowID: towID, DriverID: driverID,
	}); err != nil {
		t.Fatalf("assign: %v", err)
	}
}

func attachPhotos(t *testing.T, env *testEnv, snap *Snapshot, pointID types.ID, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := env.svc.AttachPhoto(context.Background(), AttachPhotoCommand{
			CompanyID: snap.Tow.CompanyID,
			TowID:     snap.Tow.ID,
			PointID:   pointID,
			VehicleID: snap.Vehicles[0].ID,
			URL:       fmt.Sprintf("file:///photos/%s-%d.jpg", pointID, i),
		}); err != nil {
			t.Fatalf("attach photo %d: %v", i, err)
		}
	}
}

func assertTowStatus(t *testing.T, env *testEnv, companyID, towID types.ID, want Status) {
	t.Helper()
	tow, err := env.store.GetTow(context.Background(), companyID, towID)
	if err != nil {
		t.Fatalf("get tow: %v", err)
	}
	if tow.Status != want {
		t.Fatalf("tow status = %s, want %s", tow.Status, want)
	}
}

func twoPoints() []PointInput {
	return []PointInput{
		{Type: PointPickup, Address: "Herzl 1, Tel Aviv"},
		{Type: PointDropoff, Address: "Jaffa 20, Jerusalem"},
	}
}

func TestTowFlowHappyPath(t *testing.T) {
	quoter := stubQuoter{quote: pricing.Quote{Currency: "ILS", Final: 35640}}
	env := newTestEnv(t, quoter)
	ctx := context.Background()

	snap := mustCreateTow(t, env, "c_happy", twoPoints())
	assertTowStatus(t, env, "c_happy", snap.Tow.ID, StatusPending)
	mustAssign(t, env, "c_happy", snap.Tow.ID, "d1")

	pickup, dropoff := snap.Points[0], snap.Points[1]
	base := TransitionCommand{CompanyID: "c_happy", TowID: snap.Tow.ID, DriverID: "d1"}

	cmd := base
	cmd.PointID = pickup.ID
	cmd.Expected = PointPending
	if _, err := env.ctrl.Depart(ctx, cmd); err != nil {
		t.Fatalf("depart pickup: %v", err)
	}
	// First departure starts the job.
	assertTowStatus(t, env, "c_happy", snap.Tow.ID, StatusInProgress)

	cmd.Expected = PointEnRoute
	if _, err := env.ctrl.Arrive(ctx, cmd); err != nil {
		t.Fatalf("arrive pickup: %v", err)
	}

	// Completing without the evidence minimum is rejected with a reason the
	// driver can act on.
	cmd.Expected = PointArrived
	_, err := env.ctrl.Complete(ctx, CompleteCommand{TransitionCommand: cmd})
	var pre *PreconditionError
	if !errors.As(err, &pre) || pre.Reason != ReasonInsufficientPhotos {
		t.Fatalf("complete pickup without photos: got %v, want insufficient_photos", err)
	}

	attachPhotos(t, env, snap, pickup.ID, testMinPhotos)
	if _, err := env.ctrl.Complete(ctx, CompleteCommand{TransitionCommand: cmd}); err != nil {
		t.Fatalf("complete pickup: %v", err)
	}

	cmd.PointID = dropoff.ID
	cmd.Expected = PointPending
	if _, err := env.ctrl.Depart(ctx, cmd); err != nil {
		t.Fatalf("depart dropoff: %v", err)
	}
	cmd.Expected = PointEnRoute
	if _, err := env.ctrl.Arrive(ctx, cmd); err != nil {
		t.Fatalf("arrive dropoff: %v", err)
	}
	attachPhotos(t, env, snap, dropoff.ID, testMinPhotos)

	// A dropoff needs someone to sign for the vehicle.
	cmd.Expected = PointArrived
	_, err = env.ctrl.Complete(ctx, CompleteCommand{TransitionCommand: cmd})
	if !errors.As(err, &pre) || pre.Reason != ReasonMissingRecipient {
		t.Fatalf("complete dropoff without recipient: got %v, want missing_recipient", err)
	}

	amount := int64(35640)
	final, err := env.ctrl.Complete(ctx, CompleteCommand{
		TransitionCommand: cmd,
		RecipientName:     "Dana Levi",
		RecipientPhone:    "050-1234567",
		CashAmount:        &amount,
	})
	if err != nil {
		t.Fatalf("complete dropoff: %v", err)
	}

	if final.Tow.Status != StatusCompleted {
		t.Fatalf("tow status = %s, want completed", final.Tow.Status)
	}
	if final.Progress != 100 {
		t.Fatalf("progress = %v, want 100", final.Progress)
	}
	if final.Tow.FinalPrice == nil || final.Tow.FinalPrice.Amount != 35640 {
		t.Fatalf("final price = %+v, want 35640", final.Tow.FinalPrice)
	}
	if final.Points[1].RecipientName != "Dana Levi" {
		t.Fatalf("recipient = %q, want Dana Levi", final.Points[1].RecipientName)
	}

	bal, err := env.cash.Balance(ctx, "c_happy", "d1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal != amount {
		t.Fatalf("driver balance = %d, want %d", bal, amount)
	}
}

func TestDepartOutOfOrder(t *testing.T) {
	env := newTestEnv(t, stubQuoter{})
	snap := mustCreateTow(t, env, "c_order", twoPoints())
	mustAssign(t, env, "c_order", snap.Tow.ID, "d1")

	// The dropoff cannot start while the pickup is untouched.
	_, err := env.ctrl.Depart(context.Background(), TransitionCommand{
		CompanyID: "c_order", TowID: snap.Tow.ID,
		PointID: snap.Points[1].ID, Expected: PointPending,
	})
	if err != ErrStaleTransition {
		t.Fatalf("depart out of order: got %v, want ErrStaleTransition", err)
	}
}

func TestStaleExpectedStatus(t *testing.T) {
	env := newTestEnv(t, stubQuoter{})
	ctx := context.Background()
	snap := mustCreateTow(t, env, "c_stale", twoPoints())
	mustAssign(t, env, "c_stale", snap.Tow.ID, "d1")

	cmd := TransitionCommand{
		CompanyID: "c_stale", TowID: snap.Tow.ID,
		PointID: snap.Points[0].ID, Expected: PointPending,
	}
	if _, err := env.ctrl.Depart(ctx, cmd); err != nil {
		t.Fatalf("depart: %v", err)
	}

	// The device's view is now outdated.
	if _, err := env.ctrl.Arrive(ctx, cmd); err != ErrStaleTransition {
		t.Fatalf("arrive with stale expected: got %v, want ErrStaleTransition", err)
	}

	// A repeat of the transition that already landed is a success, not a
	// conflict, and does not bump the version again.
	repeat := cmd
	repeat.Expected = PointPending
	got, err := env.ctrl.Depart(ctx, repeat)
	if err != nil {
		t.Fatalf("repeat depart: %v", err)
	}
	if got.Points[0].Status != PointEnRoute {
		t.Fatalf("point status after repeat = %s, want en_route", got.Points[0].Status)
	}
	if got.Points[0].StatusVersion != 1 {
		t.Fatalf("status version after repeat = %d, want 1", got.Points[0].StatusVersion)
	}
}

func TestCancelBlocksDriverWrites(t *testing.T) {
	env := newTestEnv(t, stubQuoter{})
	ctx := context.Background()
	snap := mustCreateTow(t, env, "c_cancel", twoPoints())
	mustAssign(t, env, "c_cancel", snap.Tow.ID, "d1")

	if _, err := env.svc.Cancel(ctx, "c_cancel", snap.Tow.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	assertTowStatus(t, env, "c_cancel", snap.Tow.ID, StatusCancelled)

	_, err := env.ctrl.Depart(ctx, TransitionCommand{
		CompanyID: "c_cancel", TowID: snap.Tow.ID,
		PointID: snap.Points[0].ID, Expected: PointPending,
	})
	if err != ErrTowNotActive {
		t.Fatalf("depart after cancel: got %v, want ErrTowNotActive", err)
	}

	_, err = env.svc.AttachPhoto(ctx, AttachPhotoCommand{
		CompanyID: "c_cancel", TowID: snap.Tow.ID,
		PointID: snap.Points[0].ID, VehicleID: snap.Vehicles[0].ID,
		URL: "file:///photos/late.jpg",
	})
	if err != ErrTowNotActive {
		t.Fatalf("photo after cancel: got %v, want ErrTowNotActive", err)
	}

	// Cancelling again is rejected; the tow is already terminal.
	if _, err := env.svc.Cancel(ctx, "c_cancel", snap.Tow.ID); err != ErrTowNotActive {
		t.Fatalf("second cancel: got %v, want ErrTowNotActive", err)
	}
}

func TestSkipUnblocksRoute(t *testing.T) {
	env := newTestEnv(t, stubQuoter{quote: pricing.Quote{Currency: "ILS", Final: 25000}})
	ctx := context.Background()
	snap := mustCreateTow(t, env, "c_skip", []PointInput{
		{Type: PointPickup, Address: "Herzl 1, Tel Aviv"},
		{Type: PointPickup, Address: "Allenby 99, Tel Aviv"},
		{Type: PointDropoff, Address: "Jaffa 20, Jerusalem"},
	})
	mustAssign(t, env, "c_skip", snap.Tow.ID, "d1")

	first, second, dropoff := snap.Points[0], snap.Points[1], snap.Points[2]
	cmd := TransitionCommand{CompanyID: "c_skip", TowID: snap.Tow.ID, DriverID: "d1"}

	cmd.PointID = first.ID
	cmd.Expected = PointPending
	if _, err := env.ctrl.Depart(ctx, cmd); err != nil {
		t.Fatalf("depart first: %v", err)
	}
	cmd.Expected = PointEnRoute
	if _, err := env.ctrl.Arrive(ctx, cmd); err != nil {
		t.Fatalf("arrive first: %v", err)
	}
	attachPhotos(t, env, snap, first.ID, testMinPhotos)
	cmd.Expected = PointArrived
	if _, err := env.ctrl.Complete(ctx, CompleteCommand{TransitionCommand: cmd}); err != nil {
		t.Fatalf("complete first: %v", err)
	}

	// The second pickup is unreachable; until the dispatcher skips it the
	// driver cannot move on.
	cmd.PointID = dropoff.ID
	cmd.Expected = PointPending
	if _, err := env.ctrl.Depart(ctx, cmd); err != ErrStaleTransition {
		t.Fatalf("depart past pending point: got %v, want ErrStaleTransition", err)
	}

	if _, err := env.svc.SkipPoint(ctx, "c_skip", snap.Tow.ID, second.ID); err != nil {
		t.Fatalf("skip: %v", err)
	}

	if _, err := env.ctrl.Depart(ctx, cmd); err != nil {
		t.Fatalf("depart after skip: %v", err)
	}
	cmd.Expected = PointEnRoute
	if _, err := env.ctrl.Arrive(ctx, cmd); err != nil {
		t.Fatalf("arrive dropoff: %v", err)
	}
	attachPhotos(t, env, snap, dropoff.ID, testMinPhotos)
	cmd.Expected = PointArrived
	final, err := env.ctrl.Complete(ctx, CompleteCommand{
		TransitionCommand: cmd, RecipientName: "Noa Mizrahi",
	})
	if err != nil {
		t.Fatalf("complete dropoff: %v", err)
	}

	// The skipped point drops out of the denominator and does not hold the
	// tow open.
	if final.Tow.Status != StatusCompleted {
		t.Fatalf("tow status = %s, want completed", final.Tow.Status)
	}
	if final.Progress != 100 {
		t.Fatalf("progress = %v, want 100", final.Progress)
	}

	// A completed point cannot be skipped.
	if _, err := env.svc.SkipPoint(ctx, "c_skip", snap.Tow.ID, first.ID); err != ErrTowNotActive {
		t.Fatalf("skip on completed tow: got %v, want ErrTowNotActive", err)
	}
}

func TestSkipLastPointFinalizesTow(t *testing.T) {
	env := newTestEnv(t, stubQuoter{quote: pricing.Quote{Currency: "ILS", Final: 27500}})
	ctx := context.Background()
	snap := mustCreateTow(t, env, "c_skiplast", twoPoints())
	mustAssign(t, env, "c_skiplast", snap.Tow.ID, "d1")

	pickup, dropoff := snap.Points[0], snap.Points[1]
	cmd := TransitionCommand{
		CompanyID: "c_skiplast", TowID: snap.Tow.ID, DriverID: "d1",
		PointID: pickup.ID, Expected: PointPending,
	}
	if _, err := env.ctrl.Depart(ctx, cmd); err != nil {
		t.Fatalf("depart pickup: %v", err)
	}
	cmd.Expected = PointEnRoute
	if _, err := env.ctrl.Arrive(ctx, cmd); err != nil {
		t.Fatalf("arrive pickup: %v", err)
	}
	attachPhotos(t, env, snap, pickup.ID, testMinPhotos)
	cmd.Expected = PointArrived
	if _, err := env.ctrl.Complete(ctx, CompleteCommand{TransitionCommand: cmd}); err != nil {
		t.Fatalf("complete pickup: %v", err)
	}
	assertTowStatus(t, env, "c_skiplast", snap.Tow.ID, StatusInProgress)

	// The dropoff is unreachable and the dispatcher skips it. No driver
	// transition remains, so the skip itself must close the tow.
	final, err := env.svc.SkipPoint(ctx, "c_skiplast", snap.Tow.ID, dropoff.ID)
	if err != nil {
		t.Fatalf("skip last point: %v", err)
	}
	if final.Tow.Status != StatusCompleted {
		t.Fatalf("tow status after skip = %s, want completed", final.Tow.Status)
	}
	if final.Tow.CompletedAt == nil {
		t.Fatal("completed_at not set after skip finalization")
	}
	if final.Tow.FinalPrice == nil || final.Tow.FinalPrice.Amount != 27500 {
		t.Fatalf("final price = %+v, want 27500", final.Tow.FinalPrice)
	}
	if final.Progress != 100 {
		t.Fatalf("progress = %v, want 100", final.Progress)
	}
}

func TestCashOnPickupRejected(t *testing.T) {
	env := newTestEnv(t, stubQuoter{})
	ctx := context.Background()
	snap := mustCreateTow(t, env, "c_cashpickup", twoPoints())
	mustAssign(t, env, "c_cashpickup", snap.Tow.ID, "d1")

	cmd := TransitionCommand{
		CompanyID: "c_cashpickup", TowID: snap.Tow.ID,
		PointID: snap.Points[0].ID, Expected: PointPending,
	}
	if _, err := env.ctrl.Depart(ctx, cmd); err != nil {
		t.Fatalf("depart: %v", err)
	}
	cmd.Expected = PointEnRoute
	if _, err := env.ctrl.Arrive(ctx, cmd); err != nil {
		t.Fatalf("arrive: %v", err)
	}
	attachPhotos(t, env, snap, snap.Points[0].ID, testMinPhotos)

	amount := int64(10000)
	cmd.Expected = PointArrived
	_, err := env.ctrl.Complete(ctx, CompleteCommand{
		TransitionCommand: cmd, CashAmount: &amount,
	})
	if err != ErrBadRequest {
		t.Fatalf("cash on pickup: got %v, want ErrBadRequest", err)
	}
}

func TestCompleteUnpricedWhenRatesMissing(t *testing.T) {
	env := newTestEnv(t, stubQuoter{err: pricing.ErrNoRates})
	snap := completeSinglePointTow(t, env, "c_unpriced")

	// A back-office pricing gap must not strand the driver; the job closes
	// without a price.
	if snap.Tow.Status != StatusCompleted {
		t.Fatalf("tow status = %s, want completed", snap.Tow.Status)
	}
	if snap.Tow.FinalPrice != nil {
		t.Fatalf("final price = %+v, want nil", snap.Tow.FinalPrice)
	}
}

func TestFinalizePriceWithRateTable(t *testing.T) {
	env := newTestEnv(t, nil)

	// Real rate table: the zero-distance route still pays the minimum.
	mustExec(t, env.store.db, `
		INSERT INTO pricing_settings (company_id, currency, per_km, minimum)
		VALUES ('c_rates', 'ILS', 600, 25000)`)
	mustExec(t, env.store.db, `
		INSERT INTO rate_classes (company_id, vehicle_class, base_amount)
		VALUES ('c_rates', 'private', 18000)`)

	quoter := pricing.NewService(pricing.NewStore(env.store.db))
	env.svc.pricing = quoter
	env.ctrl.finalizer.pricing = quoter

	snap := completeSinglePointTow(t, env, "c_rates")
	if snap.Tow.FinalPrice == nil || snap.Tow.FinalPrice.Amount != 25000 {
		t.Fatalf("final price = %+v, want 25000", snap.Tow.FinalPrice)
	}
	if snap.Tow.Breakdown == nil || snap.Tow.Breakdown.Minimum != 25000 {
		t.Fatalf("breakdown = %+v, want minimum 25000", snap.Tow.Breakdown)
	}
}

func TestPreQuoteOnCreate(t *testing.T) {
	env := newTestEnv(t, stubQuoter{quote: pricing.Quote{Currency: "ILS", Final: 33000}})
	snap, err := env.svc.Create(context.Background(), CreateCommand{
		CompanyID:       "c_prequote",
		Points:          twoPoints(),
		Vehicles:        []VehicleInput{{Class: pricing.ClassPrivate, Plate: "12-345-67"}},
		QuoteDistanceKm: 25,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if snap.Tow.FinalPrice == nil || snap.Tow.FinalPrice.Amount != 33000 {
		t.Fatalf("pre-quote price = %+v, want 33000", snap.Tow.FinalPrice)
	}

	// Round-trips through the store.
	got, err := env.store.GetTow(context.Background(), "c_prequote", snap.Tow.ID)
	if err != nil {
		t.Fatalf("get tow: %v", err)
	}
	if got.FinalPrice == nil || got.FinalPrice.Amount != 33000 {
		t.Fatalf("stored price = %+v, want 33000", got.FinalPrice)
	}
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t, stubQuoter{})
	ctx := context.Background()

	cases := []struct {
		name string
		cmd  CreateCommand
	}{
		{"no points", CreateCommand{
			CompanyID: "c_v",
			Vehicles:  []VehicleInput{{Class: pricing.ClassPrivate, Plate: "1"}},
		}},
		{"no vehicles", CreateCommand{
			CompanyID: "c_v",
			Points:    twoPoints(),
		}},
		{"point without address", CreateCommand{
			CompanyID: "c_v",
			Points:    []PointInput{{Type: PointPickup}},
			Vehicles:  []VehicleInput{{Class: pricing.ClassPrivate, Plate: "1"}},
		}},
		{"vehicle without plate", CreateCommand{
			CompanyID: "c_v",
			Points:    twoPoints(),
			Vehicles:  []VehicleInput{{Class: pricing.ClassPrivate}},
		}},
		{"base start without base", CreateCommand{
			CompanyID:     "c_v",
			StartFromBase: true,
			Points:        twoPoints(),
			Vehicles:      []VehicleInput{{Class: pricing.ClassPrivate, Plate: "1"}},
		}},
	}
	for _, tc := range cases {
		if _, err := env.svc.Create(ctx, tc.cmd); err != ErrBadRequest {
			t.Errorf("%s: got %v, want ErrBadRequest", tc.name, err)
		}
	}
}

// completeSinglePointTow drives a one-dropoff tow through its whole flow and
// returns the final snapshot.
func completeSinglePointTow(t *testing.T, env *testEnv, companyID types.ID) *Snapshot {
	t.Helper()
	ctx := context.Background()
	snap := mustCreateTow(t, env, companyID, []PointInput{
		{Type: PointDropoff, Address: "Jaffa 20, Jerusalem"},
	})
	mustAssign(t, env, companyID, snap.Tow.ID, "d1")

	cmd := TransitionCommand{
		CompanyID: companyID, TowID: snap.Tow.ID, DriverID: "d1",
		PointID: snap.Points[0].ID, Expected: PointPending,
	}
	if _, err := env.ctrl.Depart(ctx, cmd); err != nil {
		t.Fatalf("depart: %v", err)
	}
	cmd.Expected = PointEnRoute
	if _, err := env.ctrl.Arrive(ctx, cmd); err != nil {
		t.Fatalf("arrive: %v", err)
	}
	attachPhotos(t, env, snap, snap.Points[0].ID, testMinPhotos)
	cmd.Expected = PointArrived
	final, err := env.ctrl.Complete(ctx, CompleteCommand{
		TransitionCommand: cmd, RecipientName: "Dana Levi",
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	return final
}
