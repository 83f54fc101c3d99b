package availability

import (
	"errors"
	"testing"

	"github.com/md-rashed-zaman/fieldreserve/services/reservation-service/internal/model"
)

func TestParseClock(t *testing.T) {
	cases := map[string]int{"00:00": 0, "08:00": 480, "16:30": 990, "23:59": 1439}
	for in, want := range cases {
		got, err := ParseClock(in)
		if err != nil {
			t.Fatalf("ParseClock(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseClock(%q): expected %d, got %d", in, want, got)
		}
		if FormatClock(got) != in {
			t.Fatalf("FormatClock(%d): expected %q, got %q", got, in, FormatClock(got))
		}
	}
	for _, bad := range []string{"", "8:00", "24:00", "12:60", "noon", "12:00:00"} {
		if _, err := ParseClock(bad); !errors.Is(err, model.ErrInvalidRange) {
			t.Fatalf("ParseClock(%q): expected ErrInvalidRange, got %v", bad, err)
		}
	}
}

func TestGenerateSlots(t *testing.T) {
	slots, err := GenerateSlots(480, 1320, 60)
	if err != nil {
		t.Fatalf("GenerateSlots: %v", err)
	}
	if len(slots) != 14 {
		t.Fatalf("expected 14 slots, got %d", len(slots))
	}
	if slots[0] != 480 || slots[13] != 1260 {
		t.Fatalf("unexpected bounds %d..%d", slots[0], slots[13])
	}

	// A partial trailing hour still yields a slot start.
	slots, err = GenerateSlots(480, 570, 60)
	if err != nil {
		t.Fatalf("GenerateSlots: %v", err)
	}
	if len(slots) != 2 || slots[1] != 540 {
		t.Fatalf("unexpected slots %v", slots)
	}

	again, _ := GenerateSlots(480, 570, 60)
	if len(again) != len(slots) || again[0] != slots[0] || again[1] != slots[1] {
		t.Fatal("expected identical output on repeated calls")
	}
}

func TestGenerateSlots_InvalidRange(t *testing.T) {
	for _, tc := range [][3]int{{600, 600, 60}, {700, 600, 60}, {0, 600, 0}} {
		if _, err := GenerateSlots(tc[0], tc[1], tc[2]); !errors.Is(err, model.ErrInvalidRange) {
			t.Fatalf("GenerateSlots%v: expected ErrInvalidRange, got %v", tc, err)
		}
	}
}

func TestGenerateSlots_Property(t *testing.T) {
	for open := 0; open < MinutesPerDay; open += 37 {
		for closing := open + 1; closing < MinutesPerDay; closing += 53 {
			slots, err := GenerateSlots(open, closing, 60)
			if err != nil {
				t.Fatalf("GenerateSlots(%d,%d): %v", open, closing, err)
			}
			want := (closing - open + 59) / 60
			if len(slots) != want {
				t.Fatalf("GenerateSlots(%d,%d): expected %d slots, got %d", open, closing, want, len(slots))
			}
			for i, s := range slots {
				if s < open || s >= closing || (s-open)%60 != 0 {
					t.Fatalf("slot %d out of grid for [%d,%d)", s, open, closing)
				}
				if i > 0 && s-slots[i-1] != 60 {
					t.Fatalf("slots not 60 minutes apart: %v", slots)
				}
			}
		}
	}
}

func TestOverlaps(t *testing.T) {
	a := model.Interval{Start: 600, End: 720}
	cases := []struct {
		b    model.Interval
		want bool
	}{
		{model.Interval{Start: 720, End: 780}, false},
		{model.Interval{Start: 540, End: 600}, false},
		{model.Interval{Start: 660, End: 780}, true},
		{model.Interval{Start: 540, End: 660}, true},
		{model.Interval{Start: 630, End: 690}, true},
		{model.Interval{Start: 540, End: 800}, true},
	}
	for _, tc := range cases {
		if got := Overlaps(a, tc.b); got != tc.want {
			t.Fatalf("Overlaps(%v, %v): expected %v", a, tc.b, tc.want)
		}
		if Overlaps(tc.b, a) != Overlaps(a, tc.b) {
			t.Fatalf("Overlaps is not symmetric for %v", tc.b)
		}
	}
}

func TestOperatingHours(t *testing.T) {
	if _, ok, err := OperatingHours(model.Field{}); ok || err != nil {
		t.Fatalf("expected no hours, got ok=%v err=%v", ok, err)
	}
	if _, _, err := OperatingHours(model.Field{OpenTime: "22:00", CloseTime: "08:00"}); !errors.Is(err, model.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange for inverted hours, got %v", err)
	}
	if _, _, err := OperatingHours(model.Field{OpenTime: "08:00"}); !errors.Is(err, model.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange for missing close, got %v", err)
	}
	iv, ok, err := OperatingHours(model.Field{OpenTime: "08:00", CloseTime: "22:00"})
	if err != nil || !ok || iv.Start != 480 || iv.End != 1320 {
		t.Fatalf("unexpected hours %v ok=%v err=%v", iv, ok, err)
	}
}
