package vkauth

import "context"

// Role is the staff authorization level carried in tokens and checked by the
// access guards.
type Role string

const (
	// RoleSuperadmin is an exported constant or variable used by the authentication engine.
	RoleSuperadmin Role = "SUPERADMIN"
	// RoleAdmin is an exported constant or variable used by the authentication engine.
	RoleAdmin Role = "ADMIN"
	// RoleGestor is an exported constant or variable used by the authentication engine.
	RoleGestor Role = "GESTOR"
	// RoleKomisia is an exported constant or variable used by the authentication engine.
	RoleKomisia Role = "KOMISIA"
)

// Valid reports whether r is one of the four recognized staff roles.
// Anything else, including the empty string, is treated as no role at all.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperadmin, RoleAdmin, RoleGestor, RoleKomisia:
		return true
	}
	return false
}

// CanSwitch reports whether r may assume a candidate identity.
func (r Role) CanSwitch() bool {
	return r == RoleSuperadmin || r == RoleAdmin
}

// IdentityKind discriminates the two identity variants in tokens and
// session records.
type IdentityKind string

const (
	// KindStaff is an exported constant or variable used by the authentication engine.
	KindStaff IdentityKind = "staff"
	// KindCandidate is an exported constant or variable used by the authentication engine.
	KindCandidate IdentityKind = "candidate"
)

// TwoFactorState carries the durable TOTP state stored alongside a staff
// identity. Secret and LastUsedCounter are meaningful only when Enabled.
type TwoFactorState struct {
	Enabled         bool
	Secret          []byte
	LastUsedCounter int64
}

// StaffIdentity is the administrator record returned by [IdentityStore].
// PasswordHash is a PHC-format argon2id string.
type StaffIdentity struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	Active       bool
	Deleted      bool
	TwoFactor    TwoFactorState
}

// CandidateIdentity is the applicant record returned by [IdentityStore].
// ProcessID scopes the candidate to exactly one selection process.
type CandidateIdentity struct {
	ID           string
	ExternalID   string
	ProcessID    string
	DisplayName  string
	PasswordHash string
	Archived     bool
}

// IdentityStore is the interface callers implement to integrate vkauth with
// their identity database. Lookups receive logins already normalized to
// lowercase; implementations must match case-insensitively stored values
// accordingly. A login resolves to at most one identity variant. Lookups
// return (nil, nil) when nothing matches; a non-nil error means the backend
// itself failed.
//
// PersistEnrollment must write the secret, the backup-code hashes, and the
// enabled flag in a single atomic operation: a crash mid-call must never
// leave an identity with 2FA half-enabled.
//
// ConsumeBackupCode must atomically test-and-delete the hash, returning true
// exactly once per stored code.
type IdentityStore interface {
	FindStaffByLogin(ctx context.Context, login string) (*StaffIdentity, error)
	FindStaffByID(ctx context.Context, id string) (*StaffIdentity, error)
	FindCandidateByLogin(ctx context.Context, login string) (*CandidateIdentity, error)
	FindCandidateByID(ctx context.Context, id string) (*CandidateIdentity, error)
	PersistEnrollment(ctx context.Context, identityID string, secret []byte, backupCodeHashes [][32]byte) error
	DisableTwoFactor(ctx context.Context, identityID string) error
	ReplaceBackupCodes(ctx context.Context, identityID string, backupCodeHashes [][32]byte) error
	ConsumeBackupCode(ctx context.Context, identityID string, codeHash [32]byte) (bool, error)
	UpdateTwoFactorLastUsedCounter(ctx context.Context, identityID string, counter int64) error
}

// AuthResult is returned by [Engine.Validate] and [Engine.CurrentSession].
// It is the decoded, verified view of a session token.
type AuthResult struct {
	IdentityID string
	Kind       IdentityKind
	SessionID  string

	// Staff fields. Zero for candidate tokens.
	Role  Role
	Login string

	// Candidate fields. Zero for staff tokens.
	CandidateID string
	ProcessID   string
	Name        string

	// SwitchedFrom is non-nil when the token is a switched candidate token;
	// it names the original staff identity.
	SwitchedFrom *SwitchOrigin
}

// SwitchOrigin identifies the staff identity behind a switched token.
type SwitchOrigin struct {
	StaffID string
	Role    Role
	Login   string
}

// LoginResult is returned by [Engine.Login]. Either Token is set (login
// complete) or TwoFactorRequired is true and ChallengeID references a
// pending two-factor challenge for [Engine.Verify2FA].
type LoginResult struct {
	Token     string
	SessionID string

	TwoFactorRequired bool
	ChallengeID       string
}

// TOTPEnrollment is returned by [Engine.BeginTOTPEnrollment]. Nothing in it
// is durable until the enrollment is confirmed; BackupCodes are shown to the
// user exactly once.
type TOTPEnrollment struct {
	EnrollmentID    string
	SecretBase32    string
	ProvisioningURI string
	BackupCodes     []string
}
