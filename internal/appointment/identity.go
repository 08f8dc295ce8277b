package appointment

import (
	"strings"

	"github.com/google/uuid"
)

// Principal is the authenticated caller of a protected operation.
type Principal struct {
	ID    uuid.UUID
	Email string
	Name  string
	Role  Role
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// Booker identifies who a new appointment is for. It is either an
// AuthenticatedClient or a GuestClient; no other implementations exist.
type Booker interface {
	isBooker()
}

type AuthenticatedClient struct {
	ID    uuid.UUID
	Email string
	Name  string
}

func (AuthenticatedClient) isBooker() {}

type GuestClient struct {
	Name  string
	Email string
	Phone string
}

func (GuestClient) isBooker() {}

// BookerFor picks the booking identity: an authenticated principal wins over
// guest details, and guest details without an email are no identity at all.
func BookerFor(p *Principal, guest *GuestInfo) Booker {
	if p != nil && p.ID != uuid.Nil {
		return AuthenticatedClient{ID: p.ID, Email: p.Email, Name: p.Name}
	}
	if guest != nil && strings.TrimSpace(guest.Email) != "" {
		return GuestClient{Name: guest.Name, Email: strings.TrimSpace(guest.Email), Phone: guest.Phone}
	}
	return nil
}

// applyBooker fills the client or guest fields of a, exactly one of them.
func applyBooker(a *Appointment, b Booker) error {
	switch v := b.(type) {
	case AuthenticatedClient:
		if v.ID == uuid.Nil {
			return ErrMissingIdentity
		}
		id := v.ID
		a.ClientID = &id
		a.Guest = nil
	case GuestClient:
		if strings.TrimSpace(v.Email) == "" {
			return ErrMissingIdentity
		}
		a.ClientID = nil
		a.Guest = &GuestInfo{Name: v.Name, Email: strings.TrimSpace(v.Email), Phone: v.Phone}
	default:
		return ErrMissingIdentity
	}
	return nil
}
