package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/brickparty/brick-party/internal/core/domain"
	"github.com/brickparty/brick-party/internal/port"
)

var ErrSetNotFound = errors.New("set not found")

// Session is one user's view of one set.
type Session struct {
	*Resolver
	UserID string
}

// Sessions keeps at most one open set per user. Opening another set discards
// the previous one.
type Sessions struct {
	catalog   port.CatalogRepository
	owned     port.OwnedRepository
	cache     port.CacheRepository
	forwarder ChangeForwarder

	mu     sync.Mutex
	byUser map[string]*Session
}

// NewSessions wires the loaders. owned and cache may be nil.
func NewSessions(catalog port.CatalogRepository, owned port.OwnedRepository, cache port.CacheRepository, forwarder ChangeForwarder) *Sessions {
	return &Sessions{
		catalog:   catalog,
		owned:     owned,
		cache:     cache,
		forwarder: forwarder,
		byUser:    make(map[string]*Session),
	}
}

func (s *Sessions) Open(ctx context.Context, userID, setNumber string, cloudSync bool) (*Session, error) {
	s.mu.Lock()
	current, ok := s.byUser[userID]
	s.mu.Unlock()
	if ok && current.SetNumber() == setNumber {
		return s.reuse(ctx, current, cloudSync)
	}

	rows, err := s.loadRows(ctx, setNumber)
	if err != nil {
		return nil, err
	}

	store := NewOwnedStore()
	if cloudSync {
		owned, err := s.loadOwned(ctx, userID, setNumber)
		if err != nil {
			return nil, err
		}
		store.Load(setNumber, owned)
	}

	session := &Session{
		Resolver: NewResolver(NewInventoryIndex(setNumber, rows), store, s.forwarder, userID, cloudSync),
		UserID:   userID,
	}

	s.mu.Lock()
	// a concurrent Open for the same set may have won
	if existing, ok := s.byUser[userID]; ok && existing.SetNumber() == setNumber {
		s.mu.Unlock()
		return s.reuse(ctx, existing, cloudSync)
	}
	s.byUser[userID] = session
	s.mu.Unlock()
	return session, nil
}

// reuse applies the requested sync mode to an open session. Turning sync on
// reloads the remote state first.
func (s *Sessions) reuse(ctx context.Context, session *Session, cloudSync bool) (*Session, error) {
	if !cloudSync || session.CloudSync() {
		session.SetCloudSync(cloudSync)
		return session, nil
	}
	owned, err := s.loadOwned(ctx, session.UserID, session.SetNumber())
	if err != nil {
		return nil, err
	}
	session.ResumeCloudSync(owned)
	return session, nil
}

// Close forgets the user's session.
func (s *Sessions) Close(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byUser, userID)
}

func (s *Sessions) loadRows(ctx context.Context, setNumber string) ([]domain.InventoryRow, error) {
	if s.cache != nil {
		rows, hit, err := s.cache.CachedInventory(ctx, setNumber)
		if err != nil {
			slog.Warn("catalog cache read failed", "set", setNumber, "error", err)
		} else if hit && len(rows) > 0 {
			return rows, nil
		}
	}

	rows, err := s.catalog.LoadInventory(ctx, setNumber)
	if err != nil {
		return nil, fmt.Errorf("load inventory %s: %w", setNumber, err)
	}
	if len(rows) == 0 {
		return nil, ErrSetNotFound
	}

	if s.cache != nil {
		if err := s.cache.CacheInventory(ctx, setNumber, rows); err != nil {
			slog.Warn("catalog cache write failed", "set", setNumber, "error", err)
		}
	}
	return rows, nil
}

func (s *Sessions) loadOwned(ctx context.Context, userID, setNumber string) (map[string]int, error) {
	if s.cache != nil {
		owned, hit, err := s.cache.MirroredOwned(ctx, userID, setNumber)
		if err != nil {
			slog.Warn("owned mirror read failed", "set", setNumber, "error", err)
		} else if hit {
			return owned, nil
		}
	}
	if s.owned == nil {
		return nil, nil
	}

	owned, err := s.owned.LoadOwned(ctx, userID, setNumber)
	if err != nil {
		return nil, fmt.Errorf("load owned %s: %w", setNumber, err)
	}
	return owned, nil
}
