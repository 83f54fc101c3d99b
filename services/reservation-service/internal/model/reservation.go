package model

import (
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// BlockingStatuses are the statuses that hold a slot.
var BlockingStatuses = []Status{StatusPending, StatusConfirmed}

func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusExpired:
		return st, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, s)
	}
}

// Interval is a half-open [Start, End) range of minutes of day.
type Interval struct {
	Start int
	End   int
}

type Customer struct {
	Name  string
	Phone string
	Email string
}

type Reservation struct {
	ID       string
	FieldID  string
	Date     time.Time // calendar day at 00:00 UTC
	Interval Interval
	Customer Customer
	Notes    string

	TotalPrice       int64
	Status           Status
	PaymentReference string
	CancelReason     string
	CancelledBy      string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ConfirmedAt *time.Time
	CancelledAt *time.Time
	ExpiredAt   *time.Time
}

// Draft is a validated, priced booking proposal awaiting admission.
type Draft struct {
	FieldID    string
	Date       time.Time
	Interval   Interval
	Customer   Customer
	Notes      string
	TotalPrice int64
}

// ReservationFilter narrows admin listings. Zero values match everything.
type ReservationFilter struct {
	FieldID string
	Date    *time.Time
	Status  Status
	// AsOf, when set, makes Status match the status in effect at that instant,
	// so a lapsed pending row counts as expired.
	AsOf  time.Time
	Query string
	Limit int
}

const DateLayout = "2006-01-02"

// ParseDate parses "YYYY-MM-DD" into a calendar day at 00:00 UTC.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
	}
	return d, nil
}

func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}

// DayOf returns the calendar day of t as seen in loc, at 00:00 UTC.
func DayOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// StatusChange is a requested transition plus the details recorded with it.
type StatusChange struct {
	To               Status
	PaymentReference string
	Reason           string
	Actor            string
}

// DayKey names the admission scope for one field on one day.
func DayKey(fieldID string, date time.Time) string {
	return fieldID + "/" + FormatDate(date)
}
