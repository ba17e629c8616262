package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"motoride/internal/domain/booking"
	"motoride/internal/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// BookingRepo persists bookings using pgx and plain SQL.
type BookingRepo struct{}

// NewBookingRepo constructs a new BookingRepo.
func NewBookingRepo() ports.BookingRepository {
	return &BookingRepo{}
}

const bookingColumns = `
	id, created_at, updated_at, customer_id, driver_id,
	pickup_lat, pickup_lng, dest_lat, dest_lng, status,
	accepted_at, started_at, completed_at, cancelled_at, rejected_at,
	cancelled_by`

// scanBooking reads one row in bookingColumns order.
func scanBooking(row pgx.Row) (*booking.Booking, error) {
	var b booking.Booking
	var status string
	err := row.Scan(
		&b.ID, &b.CreatedAt, &b.UpdatedAt, &b.CustomerID, &b.DriverID,
		&b.Pickup.Lat, &b.Pickup.Lng, &b.Destination.Lat, &b.Destination.Lng, &status,
		&b.AcceptedAt, &b.StartedAt, &b.CompletedAt, &b.CancelledAt, &b.RejectedAt,
		&b.CancelledBy,
	)
	if err != nil {
		return nil, err
	}
	b.Status = booking.Status(status)
	return &b, nil
}

// CreateBooking inserts a new booking row in PENDING state.
func (repo *BookingRepo) CreateBooking(ctx context.Context, b *booking.Booking) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	if b.ID == "" {
		b.ID = uuid.NewString()
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO bookings (
			id, customer_id, pickup_lat, pickup_lng, dest_lat, dest_lng, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`,
		b.ID,
		b.CustomerID,
		b.Pickup.Lat,
		b.Pickup.Lng,
		b.Destination.Lat,
		b.Destination.Lng,
		b.Status.String(), // PENDING
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	return err
}

// GetByID fetches a booking by primary key.
func (repo *BookingRepo) GetByID(ctx context.Context, id string) (*booking.Booking, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	b, err := scanBooking(tx.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
	`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return b, nil
}

// GetActiveForCustomer fetches the customer's non-terminal booking, if any.
func (repo *BookingRepo) GetActiveForCustomer(ctx context.Context, customerID string) (*booking.Booking, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	b, err := scanBooking(tx.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE customer_id = $1
		  AND status IN ('PENDING', 'ACCEPTED', 'ONGOING')
		ORDER BY created_at DESC
		LIMIT 1
	`, customerID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return b, nil
}

// GetActiveForDriver fetches the driver's ACCEPTED/ONGOING booking, if any.
func (repo *BookingRepo) GetActiveForDriver(ctx context.Context, driverID string) (*booking.Booking, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	b, err := scanBooking(tx.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE driver_id = $1
		  AND status IN ('ACCEPTED', 'ONGOING')
		ORDER BY created_at DESC
		LIMIT 1
	`, driverID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return b, nil
}

// ListForUser returns a page of bookings where the user appears on either
// side, newest first, plus the total match count.
func (repo *BookingRepo) ListForUser(ctx context.Context, userID string, status *booking.Status, page, limit int) ([]*booking.Booking, int, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, 0, err
	}

	where := `WHERE (customer_id = $1 OR driver_id = $1)`
	args := []any{userID}
	if status != nil {
		where += ` AND status = $2`
		args = append(args, status.String())
	}

	var total int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM bookings `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count bookings: %w", err)
	}

	offset := (page - 1) * limit
	args = append(args, limit, offset)
	rows, err := tx.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM bookings
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, bookingColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()

	var out []*booking.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows error: %w", err)
	}

	return out, total, nil
}

// AcceptPending is the conditional accept update. The WHERE clause is the
// authoritative linearization point: only one concurrent caller can ever
// move a given PENDING row to ACCEPTED.
func (repo *BookingRepo) AcceptPending(ctx context.Context, bookingID, driverID string, at time.Time) (bool, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return false, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE bookings
		SET status = 'ACCEPTED',
		    driver_id = $1,
		    accepted_at = $2,
		    updated_at = now()
		WHERE id = $3
		  AND status = 'PENDING'
		  AND driver_id IS NULL
	`, driverID, at, bookingID)
	if err != nil {
		return false, err
	}

	return tag.RowsAffected() == 1, nil
}

// UpdateStatus sets the booking status, stamps the matching timeline column,
// and enforces the status table's transition rules under a row lock.
func (repo *BookingRepo) UpdateStatus(ctx context.Context, id string, next booking.Status, at time.Time, cancelledBy string) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	// lock the row and read current status to enforce transitions
	var current string
	err = tx.QueryRow(ctx, `
		SELECT status
		FROM bookings
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&current)
	if err != nil {
		return err
	}

	if !next.Valid() {
		return booking.ErrInvalidStatus
	}
	if !booking.Status(current).CanTransitionTo(next) {
		return booking.ErrInvalidStatusTransition
	}

	column := booking.TimestampColumn(next)
	query := fmt.Sprintf(`
		UPDATE bookings
		SET status = $1,
		    %s = $2,
		    updated_at = now()
	`, column)
	args := []any{next.String(), at}

	if next == booking.StatusCancelled && strings.TrimSpace(cancelledBy) != "" {
		query += `, cancelled_by = $3 WHERE id = $4`
		args = append(args, cancelledBy, id)
	} else {
		query += ` WHERE id = $3`
		args = append(args, id)
	}

	_, err = tx.Exec(ctx, query, args...)
	return err
}

// Delete removes a terminal booking row. Authorization is the service's job.
func (repo *BookingRepo) Delete(ctx context.Context, id string) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ActiveByDrivers returns each driver's non-terminal booking in one scan.
func (repo *BookingRepo) ActiveByDrivers(ctx context.Context, driverIDs []string) (map[string]*booking.Booking, error) {
	out := make(map[string]*booking.Booking, len(driverIDs))
	if len(driverIDs) == 0 {
		return out, nil
	}

	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE driver_id = ANY($1)
		  AND status IN ('PENDING', 'ACCEPTED', 'ONGOING')
	`, driverIDs)
	if err != nil {
		return nil, fmt.Errorf("query active by drivers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		if b.DriverID != nil {
			out[*b.DriverID] = b
		}
	}
	return out, rows.Err()
}

// ListPendingIDs enumerates all PENDING booking ids for the timeout reaper.
func (repo *BookingRepo) ListPendingIDs(ctx context.Context) ([]string, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `SELECT id FROM bookings WHERE status = 'PENDING'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountCancellationsBy counts customer-initiated cancellations involving a
// specific driver inside the blocked-derivation window.
func (repo *BookingRepo) CountCancellationsBy(ctx context.Context, customerID, driverID string, since time.Time) (int, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return 0, err
	}

	var n int
	err = tx.QueryRow(ctx, `
		SELECT count(*)
		FROM bookings
		WHERE customer_id = $1
		  AND driver_id = $2
		  AND status = 'CANCELLED'
		  AND cancelled_by = 'customer'
		  AND cancelled_at >= $3
	`, customerID, driverID, since).Scan(&n)
	return n, err
}

// CompletedTripCounts returns per-driver completed booking counts for the
// customer inside the history window. The inner LIMIT caps how much history
// feeds the ranking.
func (repo *BookingRepo) CompletedTripCounts(ctx context.Context, customerID string, since time.Time, limit int) (map[string]int, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT driver_id, count(*)
		FROM (
			SELECT driver_id
			FROM bookings
			WHERE customer_id = $1
			  AND status = 'COMPLETED'
			  AND driver_id IS NOT NULL
			  AND completed_at >= $2
			ORDER BY completed_at DESC
			LIMIT $3
		) recent
		GROUP BY driver_id
	`, customerID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var driverID string
		var n int
		if err := rows.Scan(&driverID, &n); err != nil {
			return nil, err
		}
		out[driverID] = n
	}
	return out, rows.Err()
}
