// Package memory holds mutex-guarded stores used by the memory storage driver and by
// service tests.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"go-auth-service/internal/model"
)

type UserStore struct {
	mu      sync.RWMutex
	byID    map[string]model.User
	byEmail map[string]string
}

func NewUserStore() *UserStore {
	return &UserStore{
		byID:    map[string]model.User{},
		byEmail: map[string]string{},
	}
}

func (s *UserStore) Create(_ context.Context, user model.User) error {
	key := strings.ToLower(strings.TrimSpace(user.Email))

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[key]; exists {
		return model.ErrUserAlreadyExists
	}
	if _, exists := s.byID[user.ID]; exists {
		return model.ErrUserAlreadyExists
	}

	s.byID[user.ID] = user
	s.byEmail[key] = user.ID
	return nil
}

func (s *UserStore) FindByID(_ context.Context, id string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byID[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return user, nil
}

func (s *UserStore) FindByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return s.byID[id], nil
}

func (s *UserStore) UpdatePassword(_ context.Context, id string, passwordHash string, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok {
		return model.ErrUserNotFound
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = updatedAt
	s.byID[id] = user
	return nil
}

func (s *UserStore) SetActive(_ context.Context, id string, active bool, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok {
		return model.ErrUserNotFound
	}
	user.IsActive = active
	user.UpdatedAt = updatedAt
	s.byID[id] = user
	return nil
}

func (s *UserStore) Ping(context.Context) error {
	return nil
}
