package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service orchestrates the login/register/refresh flows: it mints token pairs
// through the Codec and keeps the refresh token whitelist in the Store in
// sync. Refresh exchanges rotate the presented token — the old session is
// retired before a replacement is issued.
type Service struct {
	store Store
	codec *Codec
	now   func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs a Service over the given store and codec.
func NewService(store Store, codec *Codec, opts ...ServiceOption) (*Service, error) {
	if store == nil || codec == nil {
		return nil, errors.New("auth: store and codec are required")
	}
	s := &Service{store: store, codec: codec, now: time.Now}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Register creates a new identity and issues its first token pair. A taken
// email fails with ErrAlreadyExists before any token is minted.
func (s *Service) Register(ctx context.Context, email, password string) (TokenPair, *User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return TokenPair{}, nil, ErrInvalidInput
	}
	users := s.store.Users(ctx)
	if _, err := users.FindByEmail(ctx, email); err == nil {
		return TokenPair{}, nil, ErrAlreadyExists
	} else if !errors.Is(err, ErrNotFound) {
		return TokenPair{}, nil, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return TokenPair{}, nil, err
	}
	user := &User{Email: email, PasswordHash: hash}
	if err := users.Create(ctx, user); err != nil {
		return TokenPair{}, nil, err
	}
	// Fresh accounts start without roles; role grants happen out of band.
	pair, err := s.mint(ctx, user.ID, nil)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, user, nil
}

// Login authenticates credentials and issues a token pair. Unknown email and
// wrong password collapse into the same ErrUnauthorized so responses do not
// reveal whether an account exists.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, *User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return TokenPair{}, nil, ErrUnauthorized
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, nil, ErrUnauthorized
		}
		return TokenPair{}, nil, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return TokenPair{}, nil, ErrUnauthorized
	}
	roles, err := s.store.Roles(ctx).NamesByUser(ctx, user.ID)
	if err != nil {
		return TokenPair{}, nil, err
	}
	user.Roles = roles
	pair, err := s.mint(ctx, user.ID, roles)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, user, nil
}

// Refresh exchanges a refresh token for a new pair, rotating the presented
// session. The whitelist is the revocation enforcement point: a valid,
// unexpired signature is not sufficient if the row is missing or revoked.
func (s *Service) Refresh(ctx context.Context, rawToken string) (TokenPair, error) {
	if strings.TrimSpace(rawToken) == "" {
		// Request-shape error, not an auth error.
		return TokenPair{}, ErrInvalidInput
	}
	claims, err := s.codec.VerifyRefresh(rawToken)
	if err != nil {
		return TokenPair{}, err
	}

	tokens := s.store.RefreshTokens(ctx)
	record, err := tokens.Find(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrUnauthorized
		}
		return TokenPair{}, err
	}
	if record.Revoked {
		return TokenPair{}, ErrUnauthorized
	}
	// Codec verification already proved the signature; comparing the stored
	// hash again guards the whitelist itself against tampering.
	if !hashEqual(record.TokenHash, hashToken(rawToken)) {
		return TokenPair{}, ErrUnauthorized
	}

	user, err := s.store.Users(ctx).Find(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrUnauthorized
		}
		return TokenPair{}, err
	}
	roles, err := s.store.Roles(ctx).NamesByUser(ctx, user.ID)
	if err != nil {
		return TokenPair{}, err
	}

	// Rotate before reissuing. The conditional flip serializes concurrent
	// exchanges of the same token: the loser sees ErrRevoked here.
	if err := tokens.Revoke(ctx, record.ID); err != nil {
		if errors.Is(err, ErrRevoked) || errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrUnauthorized
		}
		return TokenPair{}, err
	}

	return s.mint(ctx, user.ID, roles)
}

// Logout retires the presented refresh token. The access token stays valid
// until expiry; only the session behind it is closed.
func (s *Service) Logout(ctx context.Context, rawToken string) error {
	if strings.TrimSpace(rawToken) == "" {
		return ErrInvalidInput
	}
	claims, err := s.codec.VerifyRefresh(rawToken)
	if err != nil {
		return err
	}
	tokens := s.store.RefreshTokens(ctx)
	record, err := tokens.Find(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrUnauthorized
		}
		return err
	}
	if !hashEqual(record.TokenHash, hashToken(rawToken)) {
		return ErrUnauthorized
	}
	if err := tokens.Revoke(ctx, record.ID); err != nil {
		if errors.Is(err, ErrRevoked) {
			// Logging out twice is harmless.
			return nil
		}
		return err
	}
	return nil
}

// RevokeAll closes every live session owned by the user ("log out
// everywhere") and returns how many were closed.
func (s *Service) RevokeAll(ctx context.Context, userID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, ErrInvalidInput
	}
	return s.store.RefreshTokens(ctx).RevokeAllByUser(ctx, userID)
}

// mint signs a fresh pair under a newly generated session identifier and
// whitelists the refresh token. The jti is chosen here, never by the store.
func (s *Service) mint(ctx context.Context, userID string, roles []string) (TokenPair, error) {
	jti := uuid.NewString()
	access, accessExp, err := s.codec.SignAccess(userID, roles, 0)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := s.codec.SignRefresh(userID, jti, 0)
	if err != nil {
		return TokenPair{}, err
	}
	record := &RefreshToken{
		ID:        jti,
		UserID:    userID,
		TokenHash: hashToken(refresh),
	}
	if err := s.store.RefreshTokens(ctx).Create(ctx, record); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

// hashToken produces the one-way hash stored in place of the raw token.
func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func hashEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
