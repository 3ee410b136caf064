// Package memory is a process-local backend for accounts and sessions.
// It is meant for development runs and tests; nothing survives a restart.
package memory

import (
	"context"
	"database/sql"
	"maps"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/sessions"
)

// Manager owns the data and vends repositories over it. Repositories built
// from the DBTX passed into a WithTx callback join that unit of work; any
// other DBTX (nil included) gives repositories whose writes wait for running
// units of work to finish.
type Manager struct {
	// txMu serializes units of work and writes made outside them, mu guards the maps.
	txMu sync.Mutex
	mu   sync.RWMutex

	now func() time.Time

	accounts map[int64]models.Account
	nextID   int64

	sessions map[int64]models.SessionRecord
	byToken  map[string]int64
}

// NewManager returns an empty store. A nil now means time.Now.
func NewManager(now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		now:      now,
		accounts: make(map[int64]models.Account),
		sessions: make(map[int64]models.SessionRecord),
		byToken:  make(map[string]int64),
	}
}

func (m *Manager) RunMigrations(context.Context, *sql.DB) error {
	return nil
}

func (m *Manager) Accounts(db dbx.DBTX) accounts.Repository {
	return &accountRepo{m: m, inTx: m.joins(db)}
}

func (m *Manager) Sessions(db dbx.DBTX) sessions.Store {
	return &sessionStore{m: m, inTx: m.joins(db)}
}

// txHandle is the DBTX seen inside a WithTx callback. It never runs SQL.
type txHandle struct {
	dbx.DBTX
	m *Manager
}

func (m *Manager) joins(db dbx.DBTX) bool {
	h, ok := db.(*txHandle)
	return ok && h.m == m
}

// lockWrite takes the unit-of-work lock for a write made outside one, so a
// rollback never undoes it.
func (m *Manager) lockWrite(inTx bool) func() {
	if inTx {
		return func() {}
	}
	m.txMu.Lock()
	return m.txMu.Unlock
}

type snapshot struct {
	accounts map[int64]models.Account
	nextID   int64
	sessions map[int64]models.SessionRecord
	byToken  map[string]int64
}

func (m *Manager) snapshot() snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return snapshot{
		accounts: maps.Clone(m.accounts),
		nextID:   m.nextID,
		sessions: maps.Clone(m.sessions),
		byToken:  maps.Clone(m.byToken),
	}
}

func (m *Manager) restore(s snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts = s.accounts
	m.nextID = s.nextID
	m.sessions = s.sessions
	m.byToken = s.byToken
}

// WithTx runs fn while holding the unit-of-work lock. When fn fails or
// panics every change it made is undone.
func (m *Manager) WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) (err error) {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snap := m.snapshot()

	defer func() {
		if p := recover(); p != nil {
			m.restore(snap)
			panic(p)
		}
		if err != nil {
			m.restore(snap)
		}
	}()

	return fn(ctx, &txHandle{m: m})
}
