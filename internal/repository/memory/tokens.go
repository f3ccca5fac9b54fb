package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-auth-service/internal/model"
)

type RefreshTokenStore struct {
	mu     sync.Mutex
	byID   map[string]*model.RefreshToken
	byHash map[string]string
	now    func() time.Time
}

func NewRefreshTokenStore(now func() time.Time) *RefreshTokenStore {
	if now == nil {
		now = time.Now
	}
	return &RefreshTokenStore{
		byID:   map[string]*model.RefreshToken{},
		byHash: map[string]string{},
		now:    now,
	}
}

func (s *RefreshTokenStore) Create(_ context.Context, userID string, tokenHash string, expiresAt time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byHash[tokenHash]; exists {
		return "", model.ErrInvalidInput
	}

	record := &model.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: s.now().UTC(),
	}
	s.byID[record.ID] = record
	s.byHash[tokenHash] = record.ID
	return record.ID, nil
}

func (s *RefreshTokenStore) FindActiveByHash(_ context.Context, tokenHash string) (model.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byHash[tokenHash]
	if !ok {
		return model.RefreshToken{}, model.ErrTokenNotFound
	}
	record := s.byID[id]
	if !record.Active(s.now()) {
		return model.RefreshToken{}, model.ErrTokenNotFound
	}
	return *record, nil
}

func (s *RefreshTokenStore) Revoke(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.byID[id]
	if !ok || record.IsRevoked {
		return false, nil
	}
	record.IsRevoked = true
	return true, nil
}

func (s *RefreshTokenStore) RevokeAllForUser(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, record := range s.byID {
		if record.UserID == userID && !record.IsRevoked {
			record.IsRevoked = true
			count++
		}
	}
	return count, nil
}

func (s *RefreshTokenStore) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for id, record := range s.byID {
		if !record.ExpiresAt.After(before) {
			delete(s.byHash, record.TokenHash)
			delete(s.byID, id)
			count++
		}
	}
	return count, nil
}
