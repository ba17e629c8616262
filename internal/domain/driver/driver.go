package driver

import (
	"errors"
	"strings"
	"time"
)

// VehicleType of a driver's registered vehicle. Matching currently only
// dispatches motorcycles.
type VehicleType string

const (
	VehicleMotorcycle VehicleType = "MOTORCYCLE"
	VehicleCar        VehicleType = "CAR"
)

var ErrInvalidVehicleType = errors.New("invalid vehicle type")

// ParseVehicleType normalizes and validates a vehicle type string.
func ParseVehicleType(s string) (VehicleType, error) {
	vt := VehicleType(strings.ToUpper(strings.TrimSpace(s)))
	if vt.Valid() {
		return vt, nil
	}
	return "", ErrInvalidVehicleType
}

// Valid reports whether the vehicle type is known.
func (vt VehicleType) Valid() bool {
	return vt == VehicleMotorcycle || vt == VehicleCar
}

// String returns the string representation of the VehicleType.
func (vt VehicleType) String() string { return string(vt) }

// Driver is the read-mostly profile the coordinator consumes. Ownership of
// this data lives with the users service; the coordinator only reads.
type Driver struct {
	ID           string
	Name         string
	VehicleType  VehicleType
	VehiclePlate string
	Rating       float64
	Online       bool
	LastLat      *float64
	LastLng      *float64
	UpdatedAt    time.Time
}

// HasKnownLocation reports whether the driver ever reported a position.
func (d *Driver) HasKnownLocation() bool {
	return d.LastLat != nil && d.LastLng != nil
}

// Location returns the last known coordinates; only meaningful when
// HasKnownLocation is true.
func (d *Driver) Location() (lat, lng float64) {
	if !d.HasKnownLocation() {
		return 0, 0
	}
	return *d.LastLat, *d.LastLng
}
