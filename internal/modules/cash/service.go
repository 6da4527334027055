// README: Cash ledger service: collections, full-balance transfers, approvals.
package cash

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/eden-magar/towing-saas-sub002/internal/types"
)

var (
	ErrInvalidAmount     = errors.New("cash amount must be positive")
	ErrNothingToTransfer = errors.New("no outstanding balance to transfer")
	ErrNotFound          = errors.New("transfer not found")
	ErrAlreadyResolved   = errors.New("transfer already approved or rejected")
)

type Service struct {
	store *Store
}

func NewService(store *Store) *Service {
	return &Service{store: store}
}

type CollectCommand struct {
	CompanyID types.ID
	DriverID  types.ID
	Amount    int64
	Currency  string
	TowID     types.ID
	PointID   types.ID
	Notes     string
}

// RecordCollection appends a collection entry for cash taken at a dropoff.
// Retries on the same tow point are absorbed by the uniqueness constraint.
func (s *Service) RecordCollection(ctx context.Context, cmd CollectCommand) (*Transaction, error) {
	if cmd.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	currency := cmd.Currency
	if currency == "" {
		currency = "ILS"
	}
	t := &Transaction{
		ID:        newID(),
		CompanyID: cmd.CompanyID,
		DriverID:  cmd.DriverID,
		Type:      TypeCollection,
		Amount:    cmd.Amount,
		Currency:  currency,
		Notes:     cmd.Notes,
		CreatedAt: time.Now(),
	}
	if cmd.TowID != "" {
		t.TowID = &cmd.TowID
	}
	if cmd.PointID != "" {
		t.PointID = &cmd.PointID
	}
	if _, err := s.store.AppendCollection(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// ReportTransfer debits the driver's entire outstanding balance. Partial
// transfers are deliberately unsupported: the float is always cleared whole.
func (s *Service) ReportTransfer(ctx context.Context, companyID, driverID types.ID, notes string) (*Transaction, error) {
	t, ok, err := s.store.AppendTransfer(ctx, newID(), companyID, driverID, notes, time.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNothingToTransfer
	}
	return t, nil
}

// Approve acknowledges a reported transfer. The balance already dropped when
// the transfer was reported; this appends an audit entry only.
func (s *Service) Approve(ctx context.Context, companyID, transferID types.ID, notes string) (*Transaction, error) {
	transfer, err := s.store.GetTransfer(ctx, companyID, transferID)
	if err != nil {
		return nil, err
	}
	entry := &Transaction{
		ID:            newID(),
		CompanyID:     companyID,
		DriverID:      transfer.DriverID,
		Type:          TypeApproval,
		Amount:        0,
		Currency:      transfer.Currency,
		RefTransferID: &transfer.ID,
		Notes:         notes,
		CreatedAt:     time.Now(),
	}
	// A prior rejection re-credit makes the transfer immutable.
	ok, err := s.store.AppendResolution(ctx, entry, TypeCollection)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyResolved
	}
	return entry, nil
}

// Reject re-credits a reported transfer the back office refused to accept.
// The re-credit is a collection entry referencing the transfer, keeping the
// balance invariant at Σcollections − Σtransfers.
func (s *Service) Reject(ctx context.Context, companyID, transferID types.ID, notes string) (*Transaction, error) {
	transfer, err := s.store.GetTransfer(ctx, companyID, transferID)
	if err != nil {
		return nil, err
	}
	entry := &Transaction{
		ID:            newID(),
		CompanyID:     companyID,
		DriverID:      transfer.DriverID,
		Type:          TypeCollection,
		Amount:        transfer.Amount,
		Currency:      transfer.Currency,
		RefTransferID: &transfer.ID,
		Notes:         notes,
		CreatedAt:     time.Now(),
	}
	ok, err := s.store.AppendResolution(ctx, entry, TypeApproval)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyResolved
	}
	return entry, nil
}

// Balance returns the driver's current float, always derived by summation.
func (s *Service) Balance(ctx context.Context, companyID, driverID types.ID) (int64, error) {
	return s.store.Balance(ctx, companyID, driverID)
}

// Statement returns the driver's recent ledger entries, newest first.
func (s *Service) Statement(ctx context.Context, companyID, driverID types.ID, limit int) ([]*Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListByDriver(ctx, companyID, driverID, limit)
}

func newID() types.ID {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return types.ID(hex.EncodeToString(b[:]))
}
