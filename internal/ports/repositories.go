package ports

import (
	"context"
	"time"

	"motoride/internal/domain/booking"
	"motoride/internal/domain/driver"
	"motoride/internal/domain/notification"
	"motoride/internal/domain/user"
)

// UnitOfWork interface is used to manage transactions across multiple repository operations.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// BookingRepository defines the methods for managing booking rows. The
// conditional AcceptPending update is the linearization point of the accept
// protocol; everything else is plain reads and guarded writes.
type BookingRepository interface {
	CreateBooking(ctx context.Context, b *booking.Booking) error
	GetByID(ctx context.Context, id string) (*booking.Booking, error)

	// GetActiveForCustomer returns the customer's non-terminal booking, nil when none.
	GetActiveForCustomer(ctx context.Context, customerID string) (*booking.Booking, error)

	// GetActiveForDriver returns the driver's ACCEPTED/ONGOING booking, nil when none.
	GetActiveForDriver(ctx context.Context, driverID string) (*booking.Booking, error)

	// ListForUser returns bookings where the user is customer or driver,
	// newest first, with the total row count for pagination.
	ListForUser(ctx context.Context, userID string, status *booking.Status, page, limit int) ([]*booking.Booking, int, error)

	// AcceptPending performs the conditional accept update:
	// status=ACCEPTED, driver, accepted_at where id AND status=PENDING AND
	// driver IS NULL. Returns false when the race was lost.
	AcceptPending(ctx context.Context, bookingID, driverID string, at time.Time) (bool, error)

	// UpdateStatus sets the status and stamps the matching timeline column.
	// cancelledBy is recorded only for CANCELLED transitions.
	UpdateStatus(ctx context.Context, id string, next booking.Status, at time.Time, cancelledBy string) error

	Delete(ctx context.Context, id string) error

	// ActiveByDrivers returns the PENDING/ACCEPTED/ONGOING booking per driver
	// id, in one scan. Drivers without one are absent from the map.
	ActiveByDrivers(ctx context.Context, driverIDs []string) (map[string]*booking.Booking, error)

	// ListPendingIDs enumerates all PENDING booking ids (timeout reaper).
	ListPendingIDs(ctx context.Context) ([]string, error)

	// CountCancellationsBy counts bookings of the customer cancelled by the
	// customer and involving the given driver since the cutoff.
	CountCancellationsBy(ctx context.Context, customerID, driverID string, since time.Time) (int, error)

	// CompletedTripCounts returns completed-booking counts per driver for a
	// customer within the history window, capped at limit rows scanned.
	CompletedTripCounts(ctx context.Context, customerID string, since time.Time, limit int) (map[string]int, error)
}

// DriverRepository defines read access to driver profiles. The coordinator
// never writes this table.
type DriverRepository interface {
	GetByID(ctx context.Context, driverID string) (*driver.Driver, error)

	// FindOnline returns online drivers of the vehicle type with a known
	// location, excluding the given ids.
	FindOnline(ctx context.Context, vehicle driver.VehicleType, exclude []string) ([]driver.Driver, error)
}

// NotificationRepository persists user-visible notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *notification.Notification) error
	ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*notification.Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
}

// UserRepository reads user display data for event payload enrichment.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
}
