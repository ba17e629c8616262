package notification

import (
	"errors"
	"strings"
	"time"
)

// Notification is the durable, user-visible copy of a dispatched event.
// Realtime delivery through the session gateway is best-effort; this row is
// what survives a missed push.
type Notification struct {
	ID        string
	UserID    string
	Type      string // event topic, e.g. booking.accepted
	Content   string
	IsRead    bool
	RelatedID string // booking or trip id
	CreatedAt time.Time
}

var (
	ErrUserRequired = errors.New("notification user id is required")
	ErrTypeRequired = errors.New("notification type is required")
)

// New builds an unread notification for a user.
func New(userID, typ, content, relatedID string) (*Notification, error) {
	if userID = strings.TrimSpace(userID); userID == "" {
		return nil, ErrUserRequired
	}
	if typ = strings.TrimSpace(typ); typ == "" {
		return nil, ErrTypeRequired
	}
	return &Notification{
		UserID:    userID,
		Type:      typ,
		Content:   content,
		RelatedID: relatedID,
		IsRead:    false,
		CreatedAt: time.Now().UTC(),
	}, nil
}
