package appointment

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// Availability lists the labels still open for a therapist on a date. It is
// advisory; Create re-checks the slot under the lock.
func (s *Service) Availability(ctx context.Context, therapistID uuid.UUID, date time.Time) (*Availability, error) {
	ctx, span := tracer.Start(ctx, "appointment.availability")
	defer span.End()
	span.SetAttributes(
		attribute.String("appointment.therapist_id", therapistID.String()),
		attribute.String("appointment.date", FormatDate(date)),
	)

	date = CalendarDate(date)
	if err := s.checkTherapist(ctx, therapistID); err != nil {
		span.RecordError(err)
		return nil, err
	}

	version, versionOK := s.availabilityVersion(ctx, therapistID, date)
	key := availabilityKey(therapistID, date, version)

	var view *Availability
	hit := false
	if versionOK {
		view, hit = s.cachedAvailability(ctx, key)
	}
	span.SetAttributes(attribute.Bool("cache.hit", hit))
	if !hit {
		taken, err := s.repo.TakenTimes(ctx, therapistID, date)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("load taken slots: %w", err)
		}
		view = buildAvailability(therapistID, date, taken)

		if versionOK {
			if body, err := json.Marshal(view); err == nil {
				if err := s.cache.Set(ctx, key, body, s.cfg.CacheTTL); err != nil {
					s.logger.Warn("availability cache write failed", "key", key, "error", err)
				}
			}
		}
	}

	// Bookable depends on today, so it is never served from cache.
	view.Bookable = checkBookableDate(date, s.clock.Now(), s.cfg.Timezone) == nil
	return view, nil
}

// availabilityVersion reads the day's cache version. When it cannot be read
// the view is computed without touching the cache.
func (s *Service) availabilityVersion(ctx context.Context, therapistID uuid.UUID, date time.Time) (int64, bool) {
	body, ok, err := s.cache.Get(ctx, availabilityVersionKey(therapistID, date))
	if err != nil {
		s.logger.Warn("availability cache version read failed", "therapist_id", therapistID, "error", err)
		return 0, false
	}
	if !ok {
		return 0, true
	}
	version, err := strconv.ParseInt(string(body), 10, 64)
	if err != nil {
		return 0, false
	}
	return version, true
}

func (s *Service) cachedAvailability(ctx context.Context, key string) (*Availability, bool) {
	body, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("availability cache read failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var view Availability
	if err := json.Unmarshal(body, &view); err != nil {
		return nil, false
	}
	return &view, true
}

func buildAvailability(therapistID uuid.UUID, date time.Time, taken []string) *Availability {
	used := make(map[string]bool, len(taken))
	for _, label := range taken {
		used[label] = true
	}

	view := &Availability{
		TherapistID: therapistID,
		Date:        FormatDate(date),
		Slots:       make([]string, 0, len(TimeSlots)),
		Taken:       []string{},
	}
	for _, label := range TimeSlots {
		if used[label] {
			view.Taken = append(view.Taken, label)
			continue
		}
		view.Slots = append(view.Slots, label)
	}
	return view
}
