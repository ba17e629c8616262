package postgres

import (
	"context"
	"fmt"

	"motoride/internal/domain/driver"
	"motoride/internal/ports"

	"github.com/jackc/pgx/v5"
)

// DriverRepo reads driver profiles using pgx and plain SQL. The profile table
// is owned by the users service; this repo never writes it.
type DriverRepo struct{}

// NewDriverRepo constructs a new DriverRepo.
func NewDriverRepo() ports.DriverRepository {
	return &DriverRepo{}
}

// GetByID fetches a driver profile by id.
func (repo *DriverRepo) GetByID(ctx context.Context, driverID string) (*driver.Driver, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var d driver.Driver
	var vehicleType string
	err = tx.QueryRow(ctx, `
		SELECT id, name, vehicle_type, vehicle_plate, rating, online,
		       last_lat, last_lng, updated_at
		FROM drivers
		WHERE id = $1
	`, driverID).Scan(
		&d.ID, &d.Name, &vehicleType, &d.VehiclePlate, &d.Rating, &d.Online,
		&d.LastLat, &d.LastLng, &d.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	d.VehicleType = driver.VehicleType(vehicleType)
	return &d, nil
}

// FindOnline returns online drivers of the vehicle type with a known
// location, excluding the given ids. Distance filtering happens in the
// matching engine; the query only prunes what SQL can prune cheaply.
func (repo *DriverRepo) FindOnline(ctx context.Context, vehicle driver.VehicleType, exclude []string) ([]driver.Driver, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	if exclude == nil {
		exclude = []string{}
	}

	rows, err := tx.Query(ctx, `
		SELECT id, name, vehicle_type, vehicle_plate, rating, online,
		       last_lat, last_lng, updated_at
		FROM drivers
		WHERE online = TRUE
		  AND vehicle_type = $1
		  AND last_lat IS NOT NULL
		  AND last_lng IS NOT NULL
		  AND NOT (id = ANY($2))
	`, vehicle.String(), exclude)
	if err != nil {
		return nil, fmt.Errorf("query online drivers: %w", err)
	}
	defer rows.Close()

	var out []driver.Driver
	for rows.Next() {
		var d driver.Driver
		var vehicleType string
		err := rows.Scan(
			&d.ID, &d.Name, &vehicleType, &d.VehiclePlate, &d.Rating, &d.Online,
			&d.LastLat, &d.LastLng, &d.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan driver: %w", err)
		}
		d.VehicleType = driver.VehicleType(vehicleType)
		out = append(out, d)
	}

	return out, rows.Err()
}
