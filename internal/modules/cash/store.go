// README: Cash ledger store backed by PostgreSQL (append-only, derived balance).
package cash

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eden-magar/towing-saas-sub002/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// AppendCollection inserts a collection entry. The partial unique index on
// (tow_id, point_id) for collections makes mobile retries a no-op; inserted
// reports whether this call created the row.
func (s *Store) AppendCollection(ctx context.Context, t *Transaction) (inserted bool, err error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO cash_transactions (
			id, company_id, driver_id, type, amount, currency,
			tow_id, point_id, ref_transfer_id, notes, created_at
		) VALUES ($1, $2, $3, 'collection', $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (tow_id, point_id) WHERE type = 'collection' DO NOTHING`,
		string(t.ID),
		string(t.CompanyID),
		string(t.DriverID),
		t.Amount,
		t.Currency,
		idPtr(t.TowID),
		idPtr(t.PointID),
		idPtr(t.RefTransferID),
		t.Notes,
		t.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// AppendTransfer atomically snapshots the driver's derived balance and writes
// a transfer entry for that full amount. Returns ok=false when the balance
// is not positive. The advisory lock serializes reports per driver; without
// it two simultaneous reports could both read the same positive balance and
// double-debit the float.
func (s *Store) AppendTransfer(ctx context.Context, id types.ID, companyID, driverID types.ID, notes string, now time.Time) (*Transaction, bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1 || ':' || $2))`,
		string(companyID), string(driverID),
	)
	if err != nil {
		return nil, false, err
	}

	row := tx.QueryRow(ctx, `
		WITH bal AS (
			SELECT COALESCE(SUM(
				CASE type
					WHEN 'collection' THEN amount
					WHEN 'transfer' THEN -amount
					ELSE 0
				END), 0) AS amount
			FROM cash_transactions
			WHERE company_id = $2 AND driver_id = $3
		)
		INSERT INTO cash_transactions (
			id, company_id, driver_id, type, amount, currency, notes, created_at
		)
		SELECT $1, $2, $3, 'transfer', bal.amount, 'ILS', $4, $5
		FROM bal
		WHERE bal.amount > 0
		RETURNING amount`,
		string(id), string(companyID), string(driverID), notes, now,
	)

	var amount int64
	err = row.Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, tx.Commit(ctx)
	}
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return &Transaction{
		ID:        id,
		CompanyID: companyID,
		DriverID:  driverID,
		Type:      TypeTransfer,
		Amount:    amount,
		Currency:  "ILS",
		Notes:     notes,
		CreatedAt: now,
	}, true, nil
}

// GetTransfer returns a transfer entry by id, or ErrNotFound.
func (s *Store) GetTransfer(ctx context.Context, companyID, transferID types.ID) (*Transaction, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, company_id, driver_id, type, amount, currency,
		       tow_id, point_id, ref_transfer_id, notes, created_at
		FROM cash_transactions
		WHERE company_id = $1 AND id = $2 AND type = 'transfer'`,
		string(companyID), string(transferID),
	)
	t, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// AppendResolution inserts an approval or rejection-credit entry referencing
// a transfer, refusing when an entry of the opposite type already exists. The
// advisory lock serializes resolutions per transfer; without it a concurrent
// approve+reject pair could both pass the existence check and leave the
// transfer both acknowledged and re-credited. The partial unique index on
// (ref_transfer_id, type) additionally absorbs same-type retries.
func (s *Store) AppendResolution(ctx context.Context, t *Transaction, opposite Type) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`,
		idPtr(t.RefTransferID),
	)
	if err != nil {
		return false, err
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO cash_transactions (
			id, company_id, driver_id, type, amount, currency,
			ref_transfer_id, notes, created_at
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9
		WHERE NOT EXISTS (
			SELECT 1 FROM cash_transactions
			WHERE company_id = $2 AND ref_transfer_id = $7 AND type = $10
		)
		ON CONFLICT (ref_transfer_id, type) WHERE ref_transfer_id IS NOT NULL DO NOTHING`,
		string(t.ID),
		string(t.CompanyID),
		string(t.DriverID),
		string(t.Type),
		t.Amount,
		t.Currency,
		idPtr(t.RefTransferID),
		t.Notes,
		t.CreatedAt,
		string(opposite),
	)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Balance derives the driver's float by summing the full log. There is no
// cached counter to drift.
func (s *Store) Balance(ctx context.Context, companyID, driverID types.ID) (int64, error) {
	row := s.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(
			CASE type
				WHEN 'collection' THEN amount
				WHEN 'transfer' THEN -amount
				ELSE 0
			END), 0)
		FROM cash_transactions
		WHERE company_id = $1 AND driver_id = $2`,
		string(companyID), string(driverID),
	)
	var balance int64
	err := row.Scan(&balance)
	return balance, err
}

// ListByDriver returns the driver's ledger history, newest first.
func (s *Store) ListByDriver(ctx context.Context, companyID, driverID types.ID, limit int) ([]*Transaction, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, company_id, driver_id, type, amount, currency,
		       tow_id, point_id, ref_transfer_id, notes, created_at
		FROM cash_transactions
		WHERE company_id = $1 AND driver_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3`,
		string(companyID), string(driverID), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*Transaction, error) {
	var t Transaction
	var towID, pointID, refID, notes sql.NullString
	err := row.Scan(
		&t.ID, &t.CompanyID, &t.DriverID, &t.Type, &t.Amount, &t.Currency,
		&towID, &pointID, &refID, &notes, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.TowID = nullID(towID)
	t.PointID = nullID(pointID)
	t.RefTransferID = nullID(refID)
	if notes.Valid {
		t.Notes = notes.String
	}
	return &t, nil
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func nullID(v sql.NullString) *types.ID {
	if !v.Valid {
		return nil
	}
	id := types.ID(v.String)
	return &id
}
