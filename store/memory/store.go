// Package memory is an in-process account.Store for tests, examples and
// single-node development. It honours the same conditional-update contract as
// store/postgres.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/MrEthical07/authcore/account"
	"github.com/MrEthical07/authcore/permission"
)

// Store keeps accounts in maps guarded by one RWMutex.
type Store struct {
	mu      sync.RWMutex
	byID    map[string]account.Account
	byEmail map[string]string // live accounts only
	now     func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		byID:    make(map[string]account.Account),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func (s *Store) Create(_ context.Context, a account.Account) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[a.Email]; taken {
		return account.Account{}, account.ErrEmailTaken
	}
	if _, dup := s.byID[a.ID]; dup {
		return account.Account{}, account.ErrEmailTaken
	}
	now := s.now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	s.byID[a.ID] = a
	if a.Status != account.StatusDeleted {
		s.byEmail[a.Email] = a.ID
	}
	return a, nil
}

func (s *Store) GetByID(_ context.Context, id string) (account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[id]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	return a, nil
}

func (s *Store) GetByEmail(_ context.Context, email string) (account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	return s.byID[id], nil
}

func (s *Store) Transition(_ context.Context, id string, from []account.Status, to account.Status, bump bool) (account.Account, error) {
	if err := account.ValidateTransition(from, to); err != nil {
		return account.Account{}, err
	}
	return s.update(id, from, func(a *account.Account, now time.Time) {
		a.Status = to
		if bump {
			a.TokenVersion++
		}
		if to == account.StatusDeleted {
			a.DeletedAt = &now
			delete(s.byEmail, a.Email)
		}
	})
}

func (s *Store) UpdatePassword(_ context.Context, id string, from []account.Status, hash string) (account.Account, error) {
	return s.update(id, from, func(a *account.Account, _ time.Time) {
		a.PasswordHash = hash
		a.TokenVersion++
	})
}

func (s *Store) UpdateRole(_ context.Context, id string, role permission.Role) (account.Account, error) {
	return s.update(id, account.LiveStatuses(), func(a *account.Account, _ time.Time) {
		a.Role = role
		a.TokenVersion++
	})
}

func (s *Store) update(id string, from []account.Status, mutate func(*account.Account, time.Time)) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	if !slices.Contains(from, a.Status) {
		return account.Account{}, account.ErrStateConflict
	}
	now := s.now().UTC()
	mutate(&a, now)
	a.UpdatedAt = now
	s.byID[id] = a
	return a, nil
}
