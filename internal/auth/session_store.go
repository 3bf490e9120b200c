package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wolfman30/hmpv-lab-platform/internal/storage"
)

// Session record names.
const (
	KeyAuthToken = "authToken"
	KeyUser      = "user"
)

// SessionStore persists the authToken and user records of each client session.
type SessionStore struct {
	backend storage.Backend
	prefix  string
}

func NewSessionStore(backend storage.Backend, prefix string) *SessionStore {
	if backend == nil {
		panic("auth: storage backend required")
	}
	if prefix == "" {
		prefix = "session:"
	}
	return &SessionStore{backend: backend, prefix: prefix}
}

func (s *SessionStore) key(sessionID, name string) string {
	return s.prefix + sessionID + ":" + name
}

func (s *SessionStore) Save(ctx context.Context, sessionID, token string, user User) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("auth: encode user: %w", err)
	}
	if err := s.backend.PutAll(ctx, map[string][]byte{
		s.key(sessionID, KeyAuthToken): []byte(token),
		s.key(sessionID, KeyUser):      raw,
	}); err != nil {
		return fmt.Errorf("auth: save session: %w", err)
	}
	return nil
}

// Load returns the persisted token and user, or ErrNoSession.
func (s *SessionStore) Load(ctx context.Context, sessionID string) (string, *User, error) {
	token, err := s.backend.Get(ctx, s.key(sessionID, KeyAuthToken))
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil, ErrNoSession
	}
	if err != nil {
		return "", nil, fmt.Errorf("auth: load token: %w", err)
	}
	raw, err := s.backend.Get(ctx, s.key(sessionID, KeyUser))
	if errors.Is(err, storage.ErrNotFound) {
		return string(token), nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("auth: load user: %w", err)
	}
	var user User
	if err := json.Unmarshal(raw, &user); err != nil {
		return "", nil, fmt.Errorf("%w: %s: %v", storage.ErrCorrupt, KeyUser, err)
	}
	return string(token), &user, nil
}

func (s *SessionStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.backend.Delete(ctx, s.key(sessionID, KeyAuthToken), s.key(sessionID, KeyUser)); err != nil {
		return fmt.Errorf("auth: clear session: %w", err)
	}
	return nil
}
