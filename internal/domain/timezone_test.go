package domain

import (
	"testing"
	"time"
)

func TestOffsetForSlot(t *testing.T) {
	cases := []struct {
		start, slot, want int
	}{
		{9, 1, 9},
		{9, 2, 8},
		{-11, 1, -11},
		{-11, 2, 12}, // wrap from the western edge back to +12
		{-11, 3, 11},
		{0, 13, 12},
		{0, 24, 1},
		{12, 24, -11},
		{3, 24, 4}, // last slot is one east of the start
	}
	for _, c := range cases {
		got, err := OffsetForSlot(c.start, c.slot)
		if err != nil {
			t.Fatalf("OffsetForSlot(%d, %d): %v", c.start, c.slot, err)
		}
		if got != c.want {
			t.Errorf("OffsetForSlot(%d, %d) = %d, want %d", c.start, c.slot, got, c.want)
		}
	}
}

func TestOffsetForSlotCoversAllZones(t *testing.T) {
	seen := map[int]bool{}
	for n := 1; n <= SlotCount; n++ {
		off, err := OffsetForSlot(5, n)
		if err != nil {
			t.Fatalf("slot %d: %v", n, err)
		}
		if seen[off] {
			t.Fatalf("offset %d assigned twice", off)
		}
		seen[off] = true
	}
	if len(seen) != SlotCount {
		t.Fatalf("covered %d offsets, want %d", len(seen), SlotCount)
	}
}

func TestOffsetForSlotRejectsBadInput(t *testing.T) {
	if _, err := OffsetForSlot(13, 1); err == nil {
		t.Error("accepted start offset 13")
	}
	if _, err := OffsetForSlot(-12, 1); err == nil {
		t.Error("accepted start offset -12")
	}
	if _, err := OffsetForSlot(0, 0); err == nil {
		t.Error("accepted slot 0")
	}
	if _, err := OffsetForSlot(0, 25); err == nil {
		t.Error("accepted slot 25")
	}
}

func TestParseOffset(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"+3", 3, false},
		{"-11", -11, false},
		{"0", 0, false},
		{"utc+12", 12, false},
		{"UTC-5", -5, false},
		{" 7 ", 7, false},
		{"+13", 0, true},
		{"-12", 0, true},
		{"", 0, true},
		{"moscow", 0, true},
	}
	for _, c := range cases {
		got, err := ParseOffset(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseOffset(%q): expected error, got %d", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseOffset(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseOffset(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestUserDueAt(t *testing.T) {
	at := func(hour int) time.Time {
		return time.Date(2025, time.June, 1, hour, 0, 0, 0, time.UTC)
	}
	cases := []struct {
		offset, notify, utcHour int
		want                    bool
	}{
		{3, 21, 18, true},   // 18 UTC is 21:00 at UTC+3
		{3, 21, 19, false},
		{-11, 8, 19, true},  // 19 UTC is 08:00 at UTC-11
		{12, 9, 21, true},   // wraps past midnight
		{0, 0, 0, true},
		{0, 0, 12, false},
	}
	for _, c := range cases {
		u := &User{TZOffset: c.offset, NotifyHour: c.notify}
		if got := u.DueAt(at(c.utcHour)); got != c.want {
			t.Errorf("offset %d notify %d at %02d UTC: got %v, want %v",
				c.offset, c.notify, c.utcHour, got, c.want)
		}
	}
}
