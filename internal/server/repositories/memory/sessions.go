package memory

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

type sessionStore struct {
	m    *Manager
	inTx bool
}

func (s *sessionStore) Put(_ context.Context, accountID int64, token string, expiresAt time.Time) error {
	defer s.m.lockWrite(s.inTx)()
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	if old, ok := s.m.sessions[accountID]; ok {
		delete(s.m.byToken, old.Token)
	}
	s.m.sessions[accountID] = models.SessionRecord{
		AccountID: accountID,
		Token:     token,
		ExpiresAt: expiresAt,
		CreatedAt: s.m.now(),
	}
	s.m.byToken[token] = accountID
	return nil
}

func (s *sessionStore) FindByToken(_ context.Context, token string) (*models.SessionRecord, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	id, ok := s.m.byToken[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	rec := s.m.sessions[id]
	return &rec, nil
}

func (s *sessionStore) FindByAccount(_ context.Context, accountID int64) (*models.SessionRecord, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	rec, ok := s.m.sessions[accountID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &rec, nil
}

func (s *sessionStore) DeleteByAccount(_ context.Context, accountID int64) error {
	defer s.m.lockWrite(s.inTx)()
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	if rec, ok := s.m.sessions[accountID]; ok {
		delete(s.m.byToken, rec.Token)
		delete(s.m.sessions, accountID)
	}
	return nil
}

func (s *sessionStore) DeleteExpired(_ context.Context, asOf time.Time) (int64, error) {
	defer s.m.lockWrite(s.inTx)()
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	var n int64
	for id, rec := range s.m.sessions {
		if rec.Expired(asOf) {
			delete(s.m.byToken, rec.Token)
			delete(s.m.sessions, id)
			n++
		}
	}
	return n, nil
}
