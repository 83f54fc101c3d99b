package availability

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/model"
)

// Multiplier is a price factor in hundredths: 80 is 0.8.
type Multiplier int

const (
	OffPeak Multiplier = 80
	Normal  Multiplier = 100
	Peak    Multiplier = 120
)

func (m Multiplier) Float() float64 { return float64(m) / 100 }

func (m Multiplier) String() string {
	return strconv.FormatFloat(m.Float(), 'f', -1, 64)
}

// MultiplierFor returns the pricing band for an hour of day:
// before 08:00 is off-peak, 16:00 to 21:00 is peak, everything else normal.
func MultiplierFor(hour int) Multiplier {
	switch {
	case hour < 8:
		return OffPeak
	case hour >= 16 && hour < 21:
		return Peak
	default:
		return Normal
	}
}

// PricingPolicy selects how a multi-hour booking is charged.
type PricingPolicy string

const (
	// PricingStartHour applies the start hour's multiplier to the whole booking.
	PricingStartHour PricingPolicy = "start_hour"
	// PricingHourly charges each occupied hour at its own multiplier.
	PricingHourly PricingPolicy = "hourly"
)

func ParsePricingPolicy(s string) (PricingPolicy, error) {
	switch p := PricingPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PricingStartHour, nil
	case PricingStartHour, PricingHourly:
		return p, nil
	default:
		return "", fmt.Errorf("unknown pricing policy %q", s)
	}
}

// SlotPrice is the price of one hour starting at minute t.
func SlotPrice(basePerHour int64, t int) int64 {
	return roundDiv(basePerHour*int64(MultiplierFor(t/60)), 100)
}

// TotalPrice prices iv at basePerHour, rounded to the nearest minor unit.
func TotalPrice(basePerHour int64, iv model.Interval, policy PricingPolicy) int64 {
	var weighted int64 // multiplier-hundredths x minutes
	switch policy {
	case PricingHourly:
		for t := iv.Start; t < iv.End; {
			next := (t/60 + 1) * 60
			if next > iv.End {
				next = iv.End
			}
			weighted += int64(MultiplierFor(t/60)) * int64(next-t)
			t = next
		}
	default:
		weighted = int64(MultiplierFor(iv.Start/60)) * int64(iv.End-iv.Start)
	}
	return roundDiv(basePerHour*weighted, 100*60)
}

func roundDiv(n, d int64) int64 {
	if n < 0 {
		return -roundDiv(-n, d)
	}
	return (n + d/2) / d
}
