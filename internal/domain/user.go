package domain

import "time"

// User holds per-chat settings. The relay core reads only identity, offset,
// notify hour and the enabled flag; everything else belongs to presentation.
type User struct {
	ChatID     int64
	TZOffset   int // whole hours, [-11, +12]
	NotifyHour int // local hour (0..23) at which offers are rolled
	Lang       string
	Enabled    bool
	CreatedAt  time.Time
}

// DueAt reports whether the user's local notify hour matches the given UTC
// instant. Local hour is UTC hour plus the stored offset, wrapped mod 24.
func (u *User) DueAt(nowUTC time.Time) bool {
	local := (nowUTC.UTC().Hour() + u.TZOffset) % 24
	if local < 0 {
		local += 24
	}
	return local == u.NotifyHour
}
