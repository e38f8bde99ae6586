package domain

import "time"

// Assignment statuses. pending and writing are "open": the offer is live and
// counts against the one-open-offer-per-(user,chain) rule.
const (
	AssignmentPending = "pending"
	AssignmentWriting = "writing"
	AssignmentWritten = "written"
	AssignmentSkipped = "skipped"
	AssignmentExpired = "expired"
)

// Assignment is a time-boxed offer for one user to fill one slot of one
// chain. Offers never outlive their TTL: the hourly sweep expires anything
// still open past ExpiresAt.
type Assignment struct {
	ID         string
	UserID     int64
	ChainID    string
	SlotIndex  int
	Status     string
	AssignedAt time.Time
	ExpiresAt  time.Time
}

// Open reports whether the offer is still live.
func (a *Assignment) Open() bool {
	return a.Status == AssignmentPending || a.Status == AssignmentWriting
}
