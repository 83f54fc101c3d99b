package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/model"
)

// DefaultHorizonDays is how far ahead a field can be booked, today included.
const DefaultHorizonDays = 7

type Slot struct {
	Start      int
	Available  bool
	Multiplier Multiplier
	Price      int64
}

func (s Slot) Time() string { return FormatClock(s.Start) }

// CheckHorizon verifies today <= date < today+days, with today taken in loc.
func CheckHorizon(date, now time.Time, loc *time.Location, days int) error {
	if loc == nil {
		loc = time.UTC
	}
	today := model.DayOf(now, loc)
	day := model.DayOf(date, time.UTC)
	if day.Before(today) || !day.Before(today.AddDate(0, 0, days)) {
		return fmt.Errorf("%w: %s not in [%s, +%dd)", model.ErrOutOfHorizon, model.FormatDate(day), model.FormatDate(today), days)
	}
	return nil
}

type ResolverConfig struct {
	Location    *time.Location
	HorizonDays int
	Now         func() time.Time
}

// Resolver builds the slot list for a field and day.
type Resolver struct {
	store   ReservationLister
	loc     *time.Location
	horizon int
	now     func() time.Time
}

func NewResolver(store ReservationLister, cfg ResolverConfig) *Resolver {
	r := &Resolver{store: store, loc: cfg.Location, horizon: cfg.HorizonDays, now: cfg.Now}
	if r.loc == nil {
		r.loc = time.UTC
	}
	if r.horizon <= 0 {
		r.horizon = DefaultHorizonDays
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

func (r *Resolver) Location() *time.Location { return r.loc }
func (r *Resolver) HorizonDays() int          { return r.horizon }
func (r *Resolver) Now() time.Time            { return r.now() }

// Resolve returns the hourly slots of field on date in start order. A slot is
// available unless a reservation still holding its interval contains the slot start.
// Inactive fields and fields without hours resolve to no slots.
func (r *Resolver) Resolve(ctx context.Context, field model.Field, date time.Time) ([]Slot, error) {
	now := r.now()
	if err := CheckHorizon(date, now, r.loc, r.horizon); err != nil {
		return nil, err
	}
	hours, ok, err := OperatingHours(field)
	if err != nil {
		return nil, err
	}
	if !ok || !field.Active {
		return []Slot{}, nil
	}

	existing, err := r.store.ListReservations(ctx, field.ID, date, model.BlockingStatuses)
	if err != nil {
		return nil, err
	}
	starts, err := GenerateSlots(hours.Start, hours.End, DefaultStep)
	if err != nil {
		return nil, err
	}

	slots := make([]Slot, 0, len(starts))
	for _, t := range starts {
		_, booked := Conflicts(model.Interval{Start: t, End: t + 1}, existing, now)
		slots = append(slots, Slot{
			Start:      t,
			Available:  !booked,
			Multiplier: MultiplierFor(t / 60),
			Price:      SlotPrice(field.PricePerHour, t),
		})
	}
	return slots, nil
}
