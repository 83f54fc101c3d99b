// Package availability computes which hourly slots of a field can be booked on a given
// day, what each costs, and whether a proposed interval collides with what is already held.
//
// Times of day are integer minutes in [0, 1440). They are converted from and to "HH:MM"
// only at the boundary.
package availability

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/model"
)

const (
	MinutesPerDay = 24 * 60
	DefaultStep   = 60
)

// ParseClock converts "HH:MM" (24-hour) into minutes of day.
func ParseClock(s string) (int, error) {
	if len(s) != len("15:04") {
		return 0, fmt.Errorf("%w: time %q must be HH:MM", model.ErrInvalidRange, s)
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%w: time %q must be HH:MM", model.ErrInvalidRange, s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func FormatClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

// NewInterval builds a half-open [start, end) interval inside a single day.
func NewInterval(start, end int) (model.Interval, error) {
	if start < 0 || end > MinutesPerDay || start >= end {
		return model.Interval{}, fmt.Errorf("%w: %d-%d", model.ErrInvalidRange, start, end)
	}
	return model.Interval{Start: start, End: end}, nil
}

// OperatingHours returns the field's [open, close) interval. ok is false when the
// field has no hours configured.
func OperatingHours(f model.Field) (iv model.Interval, ok bool, err error) {
	if !f.HasHours() {
		return model.Interval{}, false, nil
	}
	open, err := ParseClock(f.OpenTime)
	if err != nil {
		return model.Interval{}, false, err
	}
	closing, err := ParseClock(f.CloseTime)
	if err != nil {
		return model.Interval{}, false, err
	}
	iv, err = NewInterval(open, closing)
	if err != nil {
		return model.Interval{}, false, err
	}
	return iv, true, nil
}

// GenerateSlots returns every t with open <= t < close and (t-open) a multiple of step.
func GenerateSlots(open, closing, step int) ([]int, error) {
	if open >= closing {
		return nil, fmt.Errorf("%w: open %s is not before close %s", model.ErrInvalidRange, FormatClock(open), FormatClock(closing))
	}
	if step <= 0 {
		return nil, fmt.Errorf("%w: step must be positive", model.ErrInvalidRange)
	}
	slots := make([]int, 0, (closing-open+step-1)/step)
	for t := open; t < closing; t += step {
		slots = append(slots, t)
	}
	return slots, nil
}

// OnGrid reports whether t is one of the slot starts generated from open.
func OnGrid(open, t, step int) bool {
	return t >= open && (t-open)%step == 0
}

// Overlaps is the half-open overlap test: [a1,a2) and [b1,b2) collide iff a1 < b2 && b1 < a2.
func Overlaps(a, b model.Interval) bool {
	return a.Start < b.End && b.Start < a.End
}

// Contains reports whether minute t lies in [iv.Start, iv.End).
func Contains(iv model.Interval, t int) bool {
	return iv.Start <= t && t < iv.End
}

// Within reports whether inner lies entirely inside outer.
func Within(inner, outer model.Interval) bool {
	return outer.Start <= inner.Start && inner.End <= outer.End
}
