package appointment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memRepo is an in-memory Repository that enforces the active-slot rule the
// way the partial unique index does.
type memRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]Session
	users    map[uuid.UUID]User
	appts    map[uuid.UUID]Appointment
	events   []EventLog
	// slotChecks counts FindActiveInSlot calls.
	slotChecks int
}

func newMemRepo() *memRepo {
	return &memRepo{
		sessions: map[uuid.UUID]Session{},
		users:    map[uuid.UUID]User{},
		appts:    map[uuid.UUID]Appointment{},
	}
}

func (r *memRepo) addSession(name string, duration, price int) Session {
	s := Session{ID: uuid.New(), Name: name, Duration: duration, Price: price, IsActive: true}
	r.sessions[s.ID] = s
	return s
}

func (r *memRepo) addUser(name string, role Role) User {
	u := User{ID: uuid.New(), Name: name, Email: name + "@example.com", Role: role, IsActive: true}
	r.users[u.ID] = u
	return u
}

func (r *memRepo) put(a Appointment) Appointment {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.IsActive = true
	r.appts[a.ID] = a
	return a
}

func (r *memRepo) GetSessionByID(_ context.Context, id uuid.UUID) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &s, nil
}

func (r *memRepo) GetUserByID(_ context.Context, id uuid.UUID) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (r *memRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *memRepo) GetAppointmentDetail(_ context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	d := r.detail(a)
	return &d, nil
}

func (r *memRepo) detail(a Appointment) AppointmentDetail {
	d := AppointmentDetail{Appointment: a}
	if s, ok := r.sessions[a.SessionID]; ok {
		d.Session = &s
	}
	if t, ok := r.users[a.TherapistID]; ok {
		d.Therapist = &UserSummary{ID: t.ID, Name: t.Name, Email: t.Email}
	}
	if a.ClientID != nil {
		if c, ok := r.users[*a.ClientID]; ok {
			d.Client = &UserSummary{ID: c.ID, Name: c.Name, Email: c.Email}
		}
	}
	return d
}

func (r *memRepo) ListAppointments(_ context.Context, f Filter) ([]AppointmentDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []AppointmentDetail
	for _, a := range r.appts {
		switch {
		case !a.IsActive:
			continue
		case f.ClientID != nil && (a.ClientID == nil || *a.ClientID != *f.ClientID):
			continue
		case f.TherapistID != nil && a.TherapistID != *f.TherapistID:
			continue
		case f.Status != nil && a.Status != *f.Status:
			continue
		case f.Date != nil && !a.Date.Equal(*f.Date):
			continue
		}
		out = append(out, r.detail(a))
	}
	return out, nil
}

func (r *memRepo) FindActiveInSlot(_ context.Context, therapistID uuid.UUID, date time.Time, label string, exclude *uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slotChecks++
	if a, ok := r.occupant(therapistID, date, label, exclude); ok {
		return &a, nil
	}
	return nil, ErrAppointmentNotFound
}

func (r *memRepo) occupant(therapistID uuid.UUID, date time.Time, label string, exclude *uuid.UUID) (Appointment, bool) {
	for _, a := range r.appts {
		if exclude != nil && a.ID == *exclude {
			continue
		}
		if a.TherapistID == therapistID && a.Date.Equal(date) && a.Time == label && a.Status.Active() {
			return a, true
		}
	}
	return Appointment{}, false
}

func (r *memRepo) TakenTimes(_ context.Context, therapistID uuid.UUID, date time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var taken []string
	for _, a := range r.appts {
		if a.TherapistID == therapistID && a.Date.Equal(date) && a.Status != StatusCancelled {
			taken = append(taken, a.Time)
		}
	}
	return taken, nil
}

func (r *memRepo) CreateAppointment(_ context.Context, a *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.Status.Active() {
		if _, ok := r.occupant(a.TherapistID, a.Date, a.Time, nil); ok {
			return nil, ErrSlotConflict
		}
	}
	saved := *a
	saved.IsActive = true
	r.appts[saved.ID] = saved
	return &saved, nil
}

func (r *memRepo) UpdateSchedule(_ context.Context, a *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.appts[a.ID]
	if !ok || !stored.Status.Active() {
		return nil, ErrInvalidTransition
	}
	if a.Status.Active() {
		if _, ok := r.occupant(a.TherapistID, a.Date, a.Time, &a.ID); ok {
			return nil, ErrSlotConflict
		}
	}
	saved := *a
	r.appts[a.ID] = saved
	return &saved, nil
}

func (r *memRepo) SetStatus(_ context.Context, id uuid.UUID, to AppointmentStatus) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if to.Active() {
		if _, taken := r.occupant(a.TherapistID, a.Date, a.Time, &a.ID); taken {
			return nil, ErrSlotConflict
		}
	}
	a.Status = to
	r.appts[id] = a
	return &a, nil
}

func (r *memRepo) Cancel(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok || !a.Status.Active() {
		return nil, ErrInvalidTransition
	}
	a.Status = StatusCancelled
	r.appts[id] = a
	return &a, nil
}

func (r *memRepo) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *memRepo) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.EventType)
	}
	return out
}
