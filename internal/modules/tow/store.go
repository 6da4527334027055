// README: Tow store backed by PostgreSQL; conditional UPDATEs carry the
// optimistic-concurrency checks for every state transition.
package tow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eden-magar/towing-saas-sub002/internal/modules/pricing"
	"github.com/eden-magar/towing-saas-sub002/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// CreateTow inserts the tow with its points and vehicles in one transaction.
func (s *Store) CreateTow(ctx context.Context, t *Tow, points []*Point, vehicles []*Vehicle) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var baseLat, baseLng *float64
	if t.BasePos != nil {
		baseLat, baseLng = &t.BasePos.Lat, &t.BasePos.Lng
	}
	var breakdown []byte
	var finalPrice *int64
	var currency *string
	if t.Breakdown != nil {
		if breakdown, err = json.Marshal(t.Breakdown); err != nil {
			return err
		}
	}
	if t.FinalPrice != nil {
		finalPrice = &t.FinalPrice.Amount
		currency = &t.FinalPrice.Currency
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO tows (
			id, company_id, customer_id, status, status_version, driver_id,
			start_from_base, base_address, base_lat, base_lng, notes,
			final_price, price_currency, price_breakdown, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15
		)`,
		string(t.ID), string(t.CompanyID), string(t.CustomerID),
		string(t.Status), t.StatusVersion, idPtr(t.DriverID),
		t.StartFromBase, t.BaseAddress, baseLat, baseLng, t.Notes,
		finalPrice, currency, breakdown, t.CreatedAt,
	)
	if err != nil {
		return err
	}

	for _, p := range points {
		var lat, lng *float64
		if p.Pos != nil {
			lat, lng = &p.Pos.Lat, &p.Pos.Lng
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO tow_points (
				id, tow_id, type, seq, status, status_version,
				address, lat, lng, contact_name, contact_phone,
				recipient_name, recipient_phone, notes
			) VALUES (
				$1, $2, $3, $4, $5, $6,
				$7, $8, $9, $10, $11,
				$12, $13, $14
			)`,
			string(p.ID), string(t.ID), string(p.Type), p.Seq,
			string(p.Status), p.StatusVersion,
			p.Address, lat, lng, p.ContactName, p.ContactPhone,
			p.RecipientName, p.RecipientPhone, p.Notes,
		)
		if err != nil {
			return err
		}
	}

	for _, v := range vehicles {
		_, err = tx.Exec(ctx, `
			INSERT INTO tow_vehicles (
				id, tow_id, vehicle_class, plate, manufacturer, model, color
			) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			string(v.ID), string(t.ID), string(v.Class),
			v.Plate, v.Manufacturer, v.Model, v.Color,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (s *Store) GetTow(ctx context.Context, companyID, id types.ID) (*Tow, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, company_id, customer_id, status, status_version, driver_id,
		       start_from_base, base_address, base_lat, base_lng, notes,
		       final_price, price_currency, price_breakdown,
		       created_at, started_at, completed_at, cancelled_at
		FROM tows
		WHERE company_id = $1 AND id = $2`,
		string(companyID), string(id),
	)
	return scanTow(row)
}

func (s *Store) GetPoint(ctx context.Context, towID, pointID types.ID) (*Point, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, tow_id, type, seq, status, status_version,
		       address, lat, lng, contact_name, contact_phone,
		       recipient_name, recipient_phone, notes,
		       leg_km, leg_minutes, arrived_at, completed_at
		FROM tow_points
		WHERE tow_id = $1 AND id = $2`,
		string(towID), string(pointID),
	)
	p, err := scanPoint(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *Store) ListPoints(ctx context.Context, towID types.ID) ([]*Point, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, tow_id, type, seq, status, status_version,
		       address, lat, lng, contact_name, contact_phone,
		       recipient_name, recipient_phone, notes,
		       leg_km, leg_minutes, arrived_at, completed_at
		FROM tow_points
		WHERE tow_id = $1
		ORDER BY seq`,
		string(towID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Point
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) ListVehicles(ctx context.Context, towID types.ID) ([]*Vehicle, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, tow_id, vehicle_class, plate, manufacturer, model, color
		FROM tow_vehicles
		WHERE tow_id = $1
		ORDER BY id`,
		string(towID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Vehicle
	for rows.Next() {
		var v Vehicle
		if err := rows.Scan(&v.ID, &v.TowID, &v.Class, &v.Plate, &v.Manufacturer, &v.Model, &v.Color); err != nil {
			return nil, err
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}

// AssignDriver moves pending→assigned and pins the driver, conditionally.
func (s *Store) AssignDriver(ctx context.Context, companyID, towID, driverID types.ID, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE tows
		SET status = 'assigned',
		    status_version = status_version + 1,
		    driver_id = $1
		WHERE company_id = $2 AND id = $3 AND status = 'pending' AND status_version = $4`,
		string(driverID), string(companyID), string(towID), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CancelTow is the dispatcher override; allowed from any non-terminal status.
func (s *Store) CancelTow(ctx context.Context, companyID, towID types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE tows
		SET status = 'cancelled',
		    status_version = status_version + 1,
		    cancelled_at = NOW()
		WHERE company_id = $1 AND id = $2
		  AND status IN ('pending', 'assigned', 'in_progress')`,
		string(companyID), string(towID),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkInProgress fires when the first point leaves pending. Safe to call on
// every departure; it only matches the assigned→in_progress edge.
func (s *Store) MarkInProgress(ctx context.Context, towID types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE tows
		SET status = 'in_progress',
		    status_version = status_version + 1,
		    started_at = COALESCE(started_at, NOW())
		WHERE id = $1 AND status = 'assigned'`,
		string(towID),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CompleteTow finalizes the job with its price in one conditional write.
// A nil price completes the tow unpriced (rate-table misconfiguration).
func (s *Store) CompleteTow(ctx context.Context, towID types.ID, price *types.Money, breakdown *pricing.Quote) (bool, error) {
	var amount *int64
	var currency *string
	var blob []byte
	if price != nil {
		amount = &price.Amount
		currency = &price.Currency
	}
	if breakdown != nil {
		var err error
		if blob, err = json.Marshal(breakdown); err != nil {
			return false, err
		}
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE tows
		SET status = 'completed',
		    status_version = status_version + 1,
		    completed_at = NOW(),
		    final_price = COALESCE($1, final_price),
		    price_currency = COALESCE($2, price_currency),
		    price_breakdown = COALESCE($3, price_breakdown)
		WHERE id = $4 AND status = 'in_progress'`,
		amount, currency, blob, string(towID),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetPointRecipient records the recipient collected at the door.
func (s *Store) SetPointRecipient(ctx context.Context, pointID types.ID, name, phone string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE tow_points
		SET recipient_name = $1,
		    recipient_phone = CASE WHEN $2 <> '' THEN $2 ELSE recipient_phone END
		WHERE id = $3`,
		name, phone, string(pointID),
	)
	return err
}

// SetQuote records a pre-job estimate without touching status.
func (s *Store) SetQuote(ctx context.Context, towID types.ID, price types.Money, breakdown *pricing.Quote) error {
	blob, err := json.Marshal(breakdown)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		UPDATE tows
		SET final_price = $1, price_currency = $2, price_breakdown = $3
		WHERE id = $4`,
		price.Amount, price.Currency, blob, string(towID),
	)
	return err
}

// UpdatePointStatus applies one point transition as a single conditional
// UPDATE. The EXISTS guard refuses the write the instant the owning tow
// leaves the active statuses, so a dispatcher cancel racing a driver
// transition wins deterministically.
func (s *Store) UpdatePointStatus(ctx context.Context, pointID types.ID, from, to PointStatus, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE tow_points
		SET status = $1,
		    status_version = status_version + 1,
		    arrived_at = CASE WHEN $1 = 'arrived' THEN NOW() ELSE arrived_at END,
		    completed_at = CASE WHEN $1 = 'completed' THEN NOW() ELSE completed_at END
		WHERE id = $2 AND status = $3 AND status_version = $4
		  AND EXISTS (
			SELECT 1 FROM tows
			WHERE tows.id = tow_points.tow_id
			  AND tows.status IN ('assigned', 'in_progress')
		  )`,
		string(to), string(pointID), string(from), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SkipPoint is the dispatcher override; no tow-active guard beyond
// non-terminal, and only pending/en_route points qualify.
func (s *Store) SkipPoint(ctx context.Context, towID, pointID types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE tow_points
		SET status = 'skipped', status_version = status_version + 1
		WHERE tow_id = $1 AND id = $2 AND status IN ('pending', 'en_route')`,
		string(towID), string(pointID),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetPointLeg stores best-effort distance metadata for the leg ending here.
func (s *Store) SetPointLeg(ctx context.Context, pointID types.ID, km, minutes float64) error {
	_, err := s.db.Exec(ctx, `
		UPDATE tow_points SET leg_km = $1, leg_minutes = $2 WHERE id = $3`,
		km, minutes, string(pointID),
	)
	return err
}

// PhotoShortfall describes one vehicle still missing evidence at a point.
type PhotoShortfall struct {
	VehicleID types.ID
	Plate     string
	Have      int
}

// PhotoShortfalls lists vehicles with fewer than min photos of the given
// type for the point. Empty result means the evidence gate is satisfied.
func (s *Store) PhotoShortfalls(ctx context.Context, towID, pointID types.ID, photoType PhotoType, min int) ([]PhotoShortfall, error) {
	rows, err := s.db.Query(ctx, `
		SELECT v.id, v.plate, COUNT(p.id) AS have
		FROM tow_vehicles v
		LEFT JOIN tow_photos p
		  ON p.vehicle_id = v.id AND p.point_id = $2 AND p.type = $3
		WHERE v.tow_id = $1
		GROUP BY v.id, v.plate
		HAVING COUNT(p.id) < $4
		ORDER BY v.plate`,
		string(towID), string(pointID), string(photoType), min,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PhotoShortfall
	for rows.Next() {
		var sf PhotoShortfall
		if err := rows.Scan(&sf.VehicleID, &sf.Plate, &sf.Have); err != nil {
			return nil, err
		}
		out = append(out, sf)
	}
	return out, rows.Err()
}

func (s *Store) AddPhoto(ctx context.Context, p *Photo) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO tow_photos (id, tow_id, point_id, vehicle_id, type, url, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(p.ID), string(p.TowID), string(p.PointID), string(p.VehicleID),
		string(p.Type), p.URL, p.CapturedAt,
	)
	return err
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO tow_state_events (
			tow_id, point_id, from_status, to_status, actor_type, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(e.TowID), idPtr(e.PointID), e.FromStatus, e.ToStatus,
		e.ActorType, idPtr(e.ActorID), e.CreatedAt,
	)
	return err
}

// TowSummary is one dashboard row; counts come from an aggregate join so the
// listing never touches the execution path.
type TowSummary struct {
	Tow             *Tow
	CompletedPoints int
	TotalPoints     int
}

func (s *Store) ListTows(ctx context.Context, companyID types.ID, status Status, limit int) ([]TowSummary, error) {
	rows, err := s.db.Query(ctx, `
		SELECT t.id, t.company_id, t.customer_id, t.status, t.status_version, t.driver_id,
		       t.start_from_base, t.base_address, t.base_lat, t.base_lng, t.notes,
		       t.final_price, t.price_currency, t.price_breakdown,
		       t.created_at, t.started_at, t.completed_at, t.cancelled_at,
		       COUNT(p.id) FILTER (WHERE p.status = 'completed') AS done,
		       COUNT(p.id) FILTER (WHERE p.status <> 'skipped') AS total
		FROM tows t
		LEFT JOIN tow_points p ON p.tow_id = t.id
		WHERE t.company_id = $1 AND ($2 = '' OR t.status = $2)
		GROUP BY t.id
		ORDER BY t.created_at DESC
		LIMIT $3`,
		string(companyID), string(status), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TowSummary
	for rows.Next() {
		var t Tow
		var done, total int
		if err := scanTowFields(rows, &t, &done, &total); err != nil {
			return nil, err
		}
		out = append(out, TowSummary{Tow: &t, CompletedPoints: done, TotalPoints: total})
	}
	return out, rows.Err()
}

func scanTow(row pgx.Row) (*Tow, error) {
	var t Tow
	err := scanTowFields(row, &t)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// scanTowFields scans the shared tow column list, plus any trailing extras.
func scanTowFields(row pgx.Row, t *Tow, extra ...any) error {
	var driverID, currency sql.NullString
	var baseLat, baseLng sql.NullFloat64
	var finalPrice sql.NullInt64
	var breakdown []byte
	var startedAt, completedAt, cancelledAt sql.NullTime

	dest := []any{
		&t.ID, &t.CompanyID, &t.CustomerID, &t.Status, &t.StatusVersion, &driverID,
		&t.StartFromBase, &t.BaseAddress, &baseLat, &baseLng, &t.Notes,
		&finalPrice, &currency, &breakdown,
		&t.CreatedAt, &startedAt, &completedAt, &cancelledAt,
	}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return err
	}

	t.DriverID = nullID(driverID)
	if baseLat.Valid && baseLng.Valid {
		t.BasePos = &types.Point{Lat: baseLat.Float64, Lng: baseLng.Float64}
	}
	if finalPrice.Valid {
		cur := "ILS"
		if currency.Valid {
			cur = currency.String
		}
		t.FinalPrice = &types.Money{Amount: finalPrice.Int64, Currency: cur}
	}
	if len(breakdown) > 0 {
		var q pricing.Quote
		if err := json.Unmarshal(breakdown, &q); err == nil {
			t.Breakdown = &q
		}
	}
	t.StartedAt = nullTime(startedAt)
	t.CompletedAt = nullTime(completedAt)
	t.CancelledAt = nullTime(cancelledAt)
	return nil
}

func scanPoint(row pgx.Row) (*Point, error) {
	var p Point
	var lat, lng, legKm, legMinutes sql.NullFloat64
	var arrivedAt, completedAt sql.NullTime

	err := row.Scan(
		&p.ID, &p.TowID, &p.Type, &p.Seq, &p.Status, &p.StatusVersion,
		&p.Address, &lat, &lng, &p.ContactName, &p.ContactPhone,
		&p.RecipientName, &p.RecipientPhone, &p.Notes,
		&legKm, &legMinutes, &arrivedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	if lat.Valid && lng.Valid {
		p.Pos = &types.Point{Lat: lat.Float64, Lng: lng.Float64}
	}
	if legKm.Valid {
		p.LegKm = &legKm.Float64
	}
	if legMinutes.Valid {
		p.LegMinutes = &legMinutes.Float64
	}
	p.ArrivedAt = nullTime(arrivedAt)
	p.CompletedAt = nullTime(completedAt)
	return &p, nil
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

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
