// Package identity defines the marketplace principal model: users, their roles,
// and the capability predicates derived from role. The verification flag is an
// orthogonal attribute maintained by the KYC review flow; it gates creation of
// certain entities but never grants elevated capabilities.
package identity

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	id "realhub/pkg/domain"
	dErrors "realhub/pkg/domain-errors"
)

// Role is the finite set of marketplace roles. Construct from external input
// via ParseRole to enforce the allowlist; direct casting bypasses validation.
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleGovernment     Role = "government"
	RoleRealEstateFirm Role = "real_estate_firm"
	RolePropertyOwner  Role = "property_owner"
	RoleBuyerRenter    Role = "buyer_renter"
)

var validRoles = map[Role]bool{
	RoleAdmin:          true,
	RoleGovernment:     true,
	RoleRealEstateFirm: true,
	RolePropertyOwner:  true,
	RoleBuyerRenter:    true,
}

// ParseRole constructs a Role from external input.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "role cannot be empty")
	}
	r := Role(s)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid role")
	}
	return r, nil
}

func (r Role) IsValid() bool { return validRoles[r] }

func (r Role) IsAdmin() bool      { return r == RoleAdmin }
func (r Role) IsGovernment() bool { return r == RoleGovernment }

// CanListProperties reports whether the role may create property listings at
// all; the verification flag is checked separately at creation time.
func (r Role) CanListProperties() bool {
	return r == RolePropertyOwner || r == RoleRealEstateFirm || r == RoleAdmin
}

// Actor is the authenticated principal view passed explicitly into every core
// call. It carries exactly what authorization needs: identity, role, and the
// KYC verification flag.
type Actor struct {
	ID       id.UserID
	Role     Role
	Verified bool
}

// IsZero reports whether the actor is the unauthenticated principal.
func (a Actor) IsZero() bool { return a.ID.IsNil() }

// Anonymous is the unauthenticated principal used for public reads.
func Anonymous() Actor { return Actor{} }

// User is the stored identity aggregate.
//
// Invariants:
//   - Email is non-empty and unique (case-insensitive)
//   - Role is one of the supported roles; immutable except through admin action
//   - Verified is mutated only by the KYC review flow
type User struct {
	ID           id.UserID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name"`
	PhoneNumber  string    `json:"phone_number,omitempty"`
	Address      string    `json:"address,omitempty"`
	Role         Role      `json:"role"`
	Verified     bool      `json:"is_verified"`

	// KYC profile fields supplied at submission time.
	IDType                     string `json:"id_type,omitempty"`
	IDNumber                   string `json:"id_number,omitempty"`
	BusinessName               string `json:"business_name,omitempty"`
	BusinessRegistrationNumber string `json:"business_registration_number,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"-"`
}

// Actor projects the stored user onto the principal view.
func (u *User) Actor() Actor {
	return Actor{ID: u.ID, Role: u.Role, Verified: u.Verified}
}

// NewUser constructs a user aggregate, validating invariants.
func NewUser(userID id.UserID, email, fullName string, role Role, now time.Time) (*User, error) {
	if email == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "email cannot be empty")
	}
	if !role.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid role")
	}
	return &User{
		ID:        userID,
		Email:     email,
		FullName:  fullName,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}, nil
}

// SetPassword hashes and stores the credential. Credential checks stay on the
// aggregate so callers never see the hash.
func (u *User) SetPassword(plaintext string) error {
	if len(plaintext) < 8 {
		return dErrors.New(dErrors.CodeValidation, "password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "hashing password")
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword reports whether plaintext matches the stored credential.
func (u *User) CheckPassword(plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(plaintext)) == nil
}
