package auth

import (
	"context"
	"sort"
	"sync"
	"time"

	"culturetrail.org/internal/ids"
)

var _ Store = (*MemStore)(nil)

// MemStore implements Store in memory. It backs package tests and local runs
// without a database; the Postgres store is the production implementation.
type MemStore struct {
	mu          sync.Mutex
	users       map[string]*User   // by id
	emails      map[string]string  // email -> id
	roles       map[string]*Role   // by name
	assignments map[string][]string // user id -> role names
	tokens      map[string]*RefreshToken
}

func NewMemStore() *MemStore {
	return &MemStore{
		users:       make(map[string]*User),
		emails:      make(map[string]string),
		roles:       make(map[string]*Role),
		assignments: make(map[string][]string),
		tokens:      make(map[string]*RefreshToken),
	}
}

func (s *MemStore) Users(context.Context) UserStore                 { return (*memUsers)(s) }
func (s *MemStore) Roles(context.Context) RoleStore                 { return (*memRoles)(s) }
func (s *MemStore) RefreshTokens(context.Context) RefreshTokenStore { return (*memTokens)(s) }

type memUsers MemStore

func (s *memUsers) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.emails[u.Email]; taken {
		return ErrAlreadyExists
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	clone := *u
	s.users[u.ID] = &clone
	s.emails[u.Email] = u.ID
	return nil
}

func (s *memUsers) Find(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (s *memUsers) FindByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.Lock()
	id, ok := s.emails[email]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s.Find(ctx, id)
}

type memRoles MemStore

func (s *memRoles) Ensure(_ context.Context, names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range names {
		if _, ok := s.roles[name]; !ok {
			s.roles[name] = &Role{ID: ids.New(), Name: name, CreatedAt: time.Now().UTC()}
		}
	}
	return nil
}

func (s *memRoles) Assign(_ context.Context, userID, roleName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleName]; !ok {
		return ErrNotFound
	}
	for _, name := range s.assignments[userID] {
		if name == roleName {
			return nil
		}
	}
	s.assignments[userID] = append(s.assignments[userID], roleName)
	return nil
}

func (s *memRoles) NamesByUser(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := append([]string(nil), s.assignments[userID]...)
	sort.Strings(names)
	return names, nil
}

type memTokens MemStore

func (s *memTokens) Create(_ context.Context, tok *RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tokens[tok.ID]; exists {
		return ErrAlreadyExists
	}
	tok.CreatedAt = time.Now().UTC()
	clone := *tok
	s.tokens[tok.ID] = &clone
	return nil
}

func (s *memTokens) Find(_ context.Context, id string) (*RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *tok
	return &clone, nil
}

func (s *memTokens) Revoke(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[id]
	if !ok {
		return ErrNotFound
	}
	if tok.Revoked {
		return ErrRevoked
	}
	tok.Revoked = true
	return nil
}

func (s *memTokens) RevokeAllByUser(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, tok := range s.tokens {
		if tok.UserID == userID && !tok.Revoked {
			tok.Revoked = true
			n++
		}
	}
	return n, nil
}
