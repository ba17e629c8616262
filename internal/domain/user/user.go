package user

import (
	"errors"
	"strings"
	"time"
)

// User is the read model the coordinator needs from the externally-owned
// users table: enough to address notifications and enrich event payloads.
type User struct {
	ID        string
	Name      string
	Role      Role
	CreatedAt time.Time
}

var ErrNameRequired = errors.New("user name is required")

// NewUser builds a user read model with validated fields.
func NewUser(id, name string, role Role) (*User, error) {
	if id = strings.TrimSpace(id); id == "" {
		return nil, errors.New("user id is required")
	}
	if name = strings.TrimSpace(name); name == "" {
		return nil, ErrNameRequired
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	return &User{ID: id, Name: name, Role: role, CreatedAt: time.Now().UTC()}, nil
}
