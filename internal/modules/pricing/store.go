// README: Per-company rate tables and customer terms backed by PostgreSQL.
package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eden-magar/towing-saas-sub002/internal/types"
)

var ErrNoRates = errors.New("company has no rate table")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// GetRateTable loads the company's full pricing configuration.
func (s *Store) GetRateTable(ctx context.Context, companyID types.ID) (RateTable, error) {
	table := RateTable{
		CompanyID:   companyID,
		BaseByClass: map[VehicleClass]int64{},
	}

	row := s.db.QueryRow(ctx, `
		SELECT currency, per_km, minimum
		FROM pricing_settings
		WHERE company_id = $1`, string(companyID),
	)
	err := row.Scan(&table.Currency, &table.PerKm, &table.Minimum)
	if errors.Is(err, pgx.ErrNoRows) {
		return RateTable{}, ErrNoRates
	}
	if err != nil {
		return RateTable{}, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT vehicle_class, base_amount
		FROM rate_classes
		WHERE company_id = $1`, string(companyID),
	)
	if err != nil {
		return RateTable{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var class string
		var amount int64
		if err := rows.Scan(&class, &amount); err != nil {
			return RateTable{}, err
		}
		table.BaseByClass[VehicleClass(class)] = amount
	}
	if err := rows.Err(); err != nil {
		return RateTable{}, err
	}

	wrows, err := s.db.Query(ctx, `
		SELECT name, percent, priority, days, start_hour, end_hour
		FROM surcharge_windows
		WHERE company_id = $1
		ORDER BY priority DESC`, string(companyID),
	)
	if err != nil {
		return RateTable{}, err
	}
	defer wrows.Close()
	for wrows.Next() {
		var w SurchargeWindow
		var days []int32
		if err := wrows.Scan(&w.Name, &w.Percent, &w.Priority, &days, &w.StartHour, &w.EndHour); err != nil {
			return RateTable{}, err
		}
		for _, d := range days {
			w.Days = append(w.Days, time.Weekday(d))
		}
		table.Surcharges = append(table.Surcharges, w)
	}
	if err := wrows.Err(); err != nil {
		return RateTable{}, err
	}

	return table, nil
}

// GetCustomerTerms returns the customer's agreed discount. Unknown customers
// get zero terms rather than an error: walk-in jobs have no account.
func (s *Store) GetCustomerTerms(ctx context.Context, companyID, customerID types.ID) (CustomerTerms, error) {
	if customerID == "" {
		return CustomerTerms{}, nil
	}
	row := s.db.QueryRow(ctx, `
		SELECT discount_percent
		FROM customers
		WHERE company_id = $1 AND id = $2`, string(companyID), string(customerID),
	)
	var terms CustomerTerms
	err := row.Scan(&terms.DiscountPercent)
	if errors.Is(err, pgx.ErrNoRows) {
		return CustomerTerms{}, nil
	}
	if err != nil {
		return CustomerTerms{}, err
	}
	return terms, nil
}
