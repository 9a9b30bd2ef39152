package auth

import "time"

// User represents an identity record. Roles holds resolved role names when the
// record was loaded through a flow that needs them.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Roles        []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Role is a named grouping of users. Name is unique.
type Role struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// RefreshToken is one whitelist row per issued refresh token. ID equals the
// jti claim of the token it mirrors, so a decoded payload can be matched to
// its row with a single point lookup. Rows flip Revoked exactly once and are
// never deleted; exchanged sessions stay behind as an audit trail.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	Revoked   bool
	CreatedAt time.Time
}

// TokenPair carries freshly minted access and refresh tokens along with their
// expirations.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Principal is the authenticated identity attached to request context by the
// bearer middleware. Roles is the snapshot baked into the access token at mint
// time; later role changes do not show up until the token is refreshed.
type Principal struct {
	UserID string
	Roles  []string
}

// HasRole reports whether the principal carries the named role.
func (p Principal) HasRole(name string) bool {
	for _, r := range p.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the principal carries at least one of the named roles.
func (p Principal) HasAnyRole(names ...string) bool {
	for _, name := range names {
		if p.HasRole(name) {
			return true
		}
	}
	return false
}
