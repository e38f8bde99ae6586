package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Timezone offsets are whole hours in [-11, +12]; a chain visits all 24 of
// them, one slot each, moving westward from its creator's offset.
const (
	MinOffset = -11
	MaxOffset = 12
	SlotCount = 24
)

var ErrOffsetRange = errors.New("offset out of range")

// ValidOffset reports whether off is a usable whole-hour offset.
func ValidOffset(off int) bool {
	return off >= MinOffset && off <= MaxOffset
}

// WrapOffset maps any integer onto the cyclic range [-11, +12].
// -12 wraps to +12, +13 wraps to -11, and so on.
func WrapOffset(off int) int {
	m := (off - MinOffset) % SlotCount
	if m < 0 {
		m += SlotCount
	}
	return m + MinOffset
}

// OffsetForSlot returns the timezone offset required for slot n (1..24) of a
// chain whose first slot sits at startOff. Slots advance westward, so each
// step subtracts one hour, wrapping from -11 back to +12.
func OffsetForSlot(startOff, n int) (int, error) {
	if !ValidOffset(startOff) {
		return 0, fmt.Errorf("%w: %d", ErrOffsetRange, startOff)
	}
	if n < 1 || n > SlotCount {
		return 0, fmt.Errorf("slot %d outside 1..%d", n, SlotCount)
	}
	return WrapOffset(startOff - (n - 1)), nil
}

// ParseOffset parses user input like "+3", "-11", "0" or "UTC+3".
func ParseOffset(s string) (int, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	s = strings.TrimPrefix(s, "UTC")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty offset")
	}
	off, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid offset %q", s)
	}
	if !ValidOffset(off) {
		return 0, fmt.Errorf("%w: %d", ErrOffsetRange, off)
	}
	return off, nil
}

// FormatOffset renders an offset as "UTC+3" / "UTC-11" / "UTC±0".
func FormatOffset(off int) string {
	switch {
	case off > 0:
		return "UTC+" + strconv.Itoa(off)
	case off < 0:
		return "UTC" + strconv.Itoa(off)
	default:
		return "UTC±0"
	}
}
