package auth

import "context"

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Users(ctx context.Context) UserStore
	Roles(ctx context.Context) RoleStore
	RefreshTokens(ctx context.Context) RefreshTokenStore
}

// UserStore manages identity records.
type UserStore interface {
	// Create inserts a user, assigning an ID when none is set. A duplicate
	// email fails with ErrAlreadyExists.
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// RoleStore manages the role catalog and user assignments.
type RoleStore interface {
	// Ensure makes sure the named roles exist.
	Ensure(ctx context.Context, names []string) error
	// Assign grants a role by name. Repeated assignments are no-ops.
	Assign(ctx context.Context, userID, roleName string) error
	// NamesByUser returns the role names assigned to a user, sorted.
	NamesByUser(ctx context.Context, userID string) ([]string, error)
}

// RefreshTokenStore manages the persisted refresh token whitelist.
type RefreshTokenStore interface {
	// Create inserts a whitelist row keyed by the issuer-chosen jti. The
	// primary key is the only uniqueness guard; callers must supply fresh,
	// high-entropy identifiers.
	Create(ctx context.Context, tok *RefreshToken) error
	// Find is a point lookup by jti; ErrNotFound when no row exists.
	Find(ctx context.Context, id string) (*RefreshToken, error)
	// Revoke flips revoked false->true. ErrNotFound when no row exists,
	// ErrRevoked when the flag was already set. The conditional flip is the
	// rotation lock: of two concurrent exchanges of the same token exactly
	// one observes the transition.
	Revoke(ctx context.Context, id string) error
	// RevokeAllByUser bulk-revokes every live token owned by the user and
	// returns how many were flipped.
	RevokeAllByUser(ctx context.Context, userID string) (int64, error)
}
