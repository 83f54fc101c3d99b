// Package booking orchestrates availability queries, booking submission and reservation
// transitions over a field directory and a reservation store.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/admission"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/audit"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/availability"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/lifecycle"
	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	MinDurationHours = 1
	MaxDurationHours = 4
)

type FieldDirectory interface {
	GetField(ctx context.Context, id string) (model.Field, error)
	ListFields(ctx context.Context) ([]model.Field, error)
}

type Store interface {
	availability.ReservationLister
	CreateReservation(ctx context.Context, d model.Draft, now time.Time) (model.Reservation, error)
	UpdateStatus(ctx context.Context, id string, change model.StatusChange, now time.Time) (model.Reservation, error)
	GetReservation(ctx context.Context, id string) (model.Reservation, error)
	SearchReservations(ctx context.Context, f model.ReservationFilter) ([]model.Reservation, error)
}

// ActivityLog answers queries over recorded reservation transitions.
type ActivityLog interface {
	ListActivity(ctx context.Context, f audit.Filter) ([]audit.Entry, error)
}

type Config struct {
	Location    *time.Location
	HorizonDays int
	Pricing     availability.PricingPolicy
	Now         func() time.Time
	Locker      admission.Locker
	Activity    ActivityLog
	Logger      *slog.Logger
}

type Service struct {
	fields   FieldDirectory
	store    Store
	resolver *availability.Resolver
	guard    *availability.Guard
	pricing  availability.PricingPolicy
	locker   admission.Locker
	activity ActivityLog
	logger   *slog.Logger
	tracer   trace.Tracer
}

func NewService(fields FieldDirectory, store Store, cfg Config) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Pricing == "" {
		cfg.Pricing = availability.PricingStartHour
	}
	if cfg.Locker == nil {
		cfg.Locker = admission.Noop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		fields: fields,
		store:  store,
		resolver: availability.NewResolver(store, availability.ResolverConfig{
			Location:    cfg.Location,
			HorizonDays: cfg.HorizonDays,
			Now:         cfg.Now,
		}),
		guard:    availability.NewGuard(store, cfg.Now),
		pricing:  cfg.Pricing,
		locker:   cfg.Locker,
		activity: cfg.Activity,
		logger:   cfg.Logger,
		tracer:   otel.Tracer("reservation-service/booking"),
	}
}

func (s *Service) now() time.Time { return s.resolver.Now() }

// Location is the zone in which "today" and slot times are read.
func (s *Service) Location() *time.Location { return s.resolver.Location() }

// Fields lists the fields open for booking.
func (s *Service) Fields(ctx context.Context) ([]model.Field, error) {
	all, err := s.fields.ListFields(ctx)
	if err != nil {
		return nil, err
	}
	active := make([]model.Field, 0, len(all))
	for _, f := range all {
		if f.Active {
			active = append(active, f)
		}
	}
	return active, nil
}

type DayAvailability struct {
	Field model.Field
	Date  time.Time
	Slots []availability.Slot
}

func (s *Service) Availability(ctx context.Context, fieldID string, date time.Time) (DayAvailability, error) {
	field, err := s.fields.GetField(ctx, fieldID)
	if err != nil {
		return DayAvailability{}, err
	}
	slots, err := s.resolver.Resolve(ctx, field, date)
	if err != nil {
		return DayAvailability{}, err
	}
	return DayAvailability{Field: field, Date: date, Slots: slots}, nil
}

// BookedIntervals returns the intervals currently held on fieldID/date, by start.
func (s *Service) BookedIntervals(ctx context.Context, fieldID string, date time.Time) ([]model.Interval, error) {
	if _, err := s.fields.GetField(ctx, fieldID); err != nil {
		return nil, err
	}
	rows, err := s.store.ListReservations(ctx, fieldID, date, model.BlockingStatuses)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]model.Interval, 0, len(rows))
	for _, r := range rows {
		if lifecycle.Blocks(r, now) {
			out = append(out, r.Interval)
		}
	}
	return out, nil
}

// Request is a customer's booking submission as received at the boundary.
type Request struct {
	FieldID       string
	Date          string
	StartTime     string
	DurationHours int
	Customer      model.Customer
	Notes         string
}

// Quote validates req and prices it without touching the reservation store.
func (s *Service) Quote(ctx context.Context, req Request) (model.Draft, error) {
	req.Customer.Name = strings.TrimSpace(req.Customer.Name)
	req.Customer.Phone = strings.TrimSpace(req.Customer.Phone)
	req.Customer.Email = strings.TrimSpace(req.Customer.Email)
	if req.FieldID == "" {
		return model.Draft{}, fmt.Errorf("%w: field_id is required", model.ErrInvalidInput)
	}
	if req.Customer.Name == "" || req.Customer.Phone == "" {
		return model.Draft{}, fmt.Errorf("%w: customer name and phone are required", model.ErrInvalidInput)
	}
	if req.DurationHours < MinDurationHours || req.DurationHours > MaxDurationHours {
		return model.Draft{}, fmt.Errorf("%w: duration must be %d-%d hours, got %d", model.ErrInvalidDuration, MinDurationHours, MaxDurationHours, req.DurationHours)
	}
	date, err := model.ParseDate(req.Date)
	if err != nil {
		return model.Draft{}, err
	}
	start, err := availability.ParseClock(req.StartTime)
	if err != nil {
		return model.Draft{}, err
	}

	field, err := s.fields.GetField(ctx, req.FieldID)
	if err != nil {
		return model.Draft{}, err
	}
	now := s.now()
	if err := availability.CheckHorizon(date, now, s.Location(), s.resolver.HorizonDays()); err != nil {
		return model.Draft{}, err
	}

	hours, ok, err := availability.OperatingHours(field)
	if err != nil {
		return model.Draft{}, err
	}
	if !ok || !field.Active {
		return model.Draft{}, fmt.Errorf("%w: field %s has no bookable hours", model.ErrInvalidRange, field.ID)
	}
	iv, err := availability.NewInterval(start, start+req.DurationHours*60)
	if err != nil {
		return model.Draft{}, err
	}
	if !availability.OnGrid(hours.Start, iv.Start, availability.DefaultStep) || !availability.Within(iv, hours) {
		return model.Draft{}, fmt.Errorf("%w: %s for %dh is outside %s-%s", model.ErrInvalidRange,
			req.StartTime, req.DurationHours, field.OpenTime, field.CloseTime)
	}

	y, m, d := date.Date()
	startsAt := time.Date(y, m, d, iv.Start/60, iv.Start%60, 0, 0, s.Location())
	if startsAt.Before(now) {
		return model.Draft{}, fmt.Errorf("%w: %s %s has already started", model.ErrOutOfHorizon, req.Date, req.StartTime)
	}

	return model.Draft{
		FieldID:    field.ID,
		Date:       date,
		Interval:   iv,
		Customer:   req.Customer,
		Notes:      strings.TrimSpace(req.Notes),
		TotalPrice: availability.TotalPrice(field.PricePerHour, iv, s.pricing),
	}, nil
}

// Submit validates, re-checks and admits a booking as a pending reservation.
// A rejected submission leaves nothing behind.
func (s *Service) Submit(ctx context.Context, req Request) (res model.Reservation, err error) {
	ctx, span := s.tracer.Start(ctx, "booking.submit", trace.WithAttributes(
		attribute.String("field.id", req.FieldID),
		attribute.String("booking.date", req.Date),
		attribute.String("booking.start", req.StartTime),
		attribute.Int("booking.duration_hours", req.DurationHours),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	draft, err := s.Quote(ctx, req)
	if err != nil {
		return model.Reservation{}, err
	}

	conflict, err := s.guard.CheckConflict(ctx, draft.FieldID, draft.Date, draft.Interval)
	if err != nil {
		return model.Reservation{}, err
	}
	if conflict {
		return model.Reservation{}, fmt.Errorf("%s %s: %w", model.DayKey(draft.FieldID, draft.Date), req.StartTime, model.ErrSlotUnavailable)
	}

	release, lockErr := s.locker.Acquire(ctx, model.DayKey(draft.FieldID, draft.Date))
	defer release()
	if lockErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.Reservation{}, ctxErr
		}
		s.logger.Warn("admission lock unavailable", "field_id", draft.FieldID, "date", model.FormatDate(draft.Date), "err", lockErr)
	}

	res, err = s.store.CreateReservation(ctx, draft, s.now())
	if err != nil {
		return model.Reservation{}, err
	}
	span.SetAttributes(attribute.String("reservation.id", res.ID))
	s.logger.Info("reservation created",
		"reservation_id", res.ID,
		"field_id", res.FieldID,
		"date", model.FormatDate(res.Date),
		"start", availability.FormatClock(res.Interval.Start),
		"end", availability.FormatClock(res.Interval.End),
		"total_price", res.TotalPrice,
	)
	return res, nil
}

// Get returns the reservation with lazy expiry applied.
func (s *Service) Get(ctx context.Context, id string) (model.Reservation, error) {
	res, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return model.Reservation{}, err
	}
	res, _ = lifecycle.Apply(res, s.now())
	return res, nil
}

// List returns reservations matching f with lazy expiry applied. Status filters
// match the effective status.
func (s *Service) List(ctx context.Context, f model.ReservationFilter) ([]model.Reservation, error) {
	now := s.now()
	f.AsOf = now
	rows, err := s.store.SearchReservations(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]model.Reservation, 0, len(rows))
	for _, r := range rows {
		r, _ = lifecycle.Apply(r, now)
		out = append(out, r)
	}
	return out, nil
}

// Confirm records payment for a pending reservation on behalf of actor.
func (s *Service) Confirm(ctx context.Context, id, paymentReference, actor string) (model.Reservation, error) {
	res, err := s.store.UpdateStatus(ctx, id, model.StatusChange{
		To:               model.StatusConfirmed,
		PaymentReference: strings.TrimSpace(paymentReference),
		Actor:            actor,
	}, s.now())
	if err != nil {
		return res, err
	}
	s.logger.Info("reservation confirmed", "reservation_id", id, "payment_reference", res.PaymentReference, "by", actor)
	return res, nil
}

// Cancel releases a pending or confirmed reservation on behalf of actor.
func (s *Service) Cancel(ctx context.Context, id, reason, actor string) (model.Reservation, error) {
	res, err := s.store.UpdateStatus(ctx, id, model.StatusChange{
		To:     model.StatusCancelled,
		Reason: strings.TrimSpace(reason),
		Actor:  actor,
	}, s.now())
	if err != nil {
		return res, err
	}
	s.logger.Info("reservation cancelled", "reservation_id", id, "by", actor)
	return res, nil
}

// CancelByCustomer cancels id only when phone matches the one it was booked with.
// A mismatch is reported as not found.
func (s *Service) CancelByCustomer(ctx context.Context, id, phone, reason string) (model.Reservation, error) {
	res, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return model.Reservation{}, err
	}
	if phone = strings.TrimSpace(phone); phone == "" || phone != res.Customer.Phone {
		return model.Reservation{}, fmt.Errorf("reservation %q: %w", id, model.ErrNotFound)
	}
	return s.Cancel(ctx, id, reason, audit.ActorCustomer)
}

// Activity returns the logged transitions matching f, newest first.
func (s *Service) Activity(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	if s.activity == nil {
		return []audit.Entry{}, nil
	}
	return s.activity.ListActivity(ctx, f)
}

// IsClientError reports whether err stems from the request rather than the system.
func IsClientError(err error) bool {
	for _, target := range []error{
		model.ErrInvalidRange, model.ErrOutOfHorizon, model.ErrSlotUnavailable, model.ErrNotFound,
		model.ErrInvalidTransition, model.ErrInvalidDuration, model.ErrInvalidInput,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
