package session

// Identity type tags stored in session records.
const (
	IdentityStaff     uint8 = 0
	IdentityCandidate uint8 = 1
)

// Record defines a public type used by vkauth APIs.
//
// Record instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Record struct {
	SessionID    string
	IdentityID   string
	IdentityType uint8

	Role      string
	ProcessID string

	// SwitchedTo holds the assumed candidate ID while the owning staff
	// session is switched; empty otherwise.
	SwitchedTo string

	CreatedAt  int64
	LastSeenAt int64
	ExpiresAt  int64
}
