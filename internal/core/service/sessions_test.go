package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brickparty/brick-party/internal/core/domain"
)

// Mock CatalogRepository
type mockCatalog struct {
	mu    sync.Mutex
	sets  map[string][]domain.InventoryRow
	loads int
	err   error
}

func (m *mockCatalog) LoadInventory(ctx context.Context, setNumber string) ([]domain.InventoryRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	if m.err != nil {
		return nil, m.err
	}
	return m.sets[setNumber], nil
}

func newCatalog() *mockCatalog {
	return &mockCatalog{sets: map[string][]domain.InventoryRow{
		testSet:   sw0001Rows(),
		"10179-1": {part("3001:5", 4)},
	}}
}

func TestSessions_OpenLoadsAndCaches(t *testing.T) {
	catalog := newCatalog()
	cache := newMockCacheRepo()
	sessions := NewSessions(catalog, nil, cache, nil)
	ctx := context.Background()

	s, err := sessions.Open(ctx, "user-1", testSet, false)
	require.NoError(t, err)
	assert.Equal(t, testSet, s.SetNumber())
	assert.Len(t, s.Index().Rows(), 3)
	assert.Len(t, cache.inventory[testSet], 3)

	again, err := sessions.Open(ctx, "user-1", testSet, false)
	require.NoError(t, err)
	assert.Same(t, s, again)

	// another user hits the cache
	_, err = sessions.Open(ctx, "user-2", testSet, false)
	require.NoError(t, err)
	assert.Equal(t, 1, catalog.loads)
}

func TestSessions_SwitchingSetDiscardsState(t *testing.T) {
	sessions := NewSessions(newCatalog(), nil, nil, nil)
	ctx := context.Background()

	s, err := sessions.Open(ctx, "user-1", testSet, false)
	require.NoError(t, err)
	_, err = s.HandleOwnedChange("head:1", 1, ChangeOptions{})
	require.NoError(t, err)

	other, err := sessions.Open(ctx, "user-1", "10179-1", false)
	require.NoError(t, err)
	assert.Equal(t, "10179-1", other.SetNumber())

	back, err := sessions.Open(ctx, "user-1", testSet, false)
	require.NoError(t, err)
	assert.NotSame(t, s, back)
	assert.Equal(t, 0, back.Owned("head:1"))
}

func TestSessions_CloudSyncLoadsOwned(t *testing.T) {
	repo := &mockOwnedRepo{owned: map[string]int{"head:1": 2}}
	sessions := NewSessions(newCatalog(), repo, nil, nil)

	s, err := sessions.Open(context.Background(), "user-1", testSet, true)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Owned("head:1"))

	local, err := sessions.Open(context.Background(), "user-2", testSet, false)
	require.NoError(t, err)
	assert.Equal(t, 0, local.Owned("head:1"))
}

func TestSessions_CloudSyncPrefersMirror(t *testing.T) {
	repo := &mockOwnedRepo{owned: map[string]int{"head:1": 2}}
	cache := newMockCacheRepo()
	_, err := cache.MirrorOwned(context.Background(), domain.OwnedChange{
		UserID: "user-1", SetNumber: testSet, Key: "legs:3", Quantity: 4,
	})
	require.NoError(t, err)
	sessions := NewSessions(newCatalog(), repo, cache, nil)

	s, err := sessions.Open(context.Background(), "user-1", testSet, true)
	require.NoError(t, err)
	assert.Equal(t, 4, s.Owned("legs:3"))
	assert.Equal(t, 0, s.Owned("head:1"))
}

func TestSessions_UnknownSet(t *testing.T) {
	sessions := NewSessions(newCatalog(), nil, nil, nil)

	_, err := sessions.Open(context.Background(), "user-1", "99999-1", false)
	assert.ErrorIs(t, err, ErrSetNotFound)
}

func TestSessions_CatalogError(t *testing.T) {
	boom := errors.New("catalog down")
	sessions := NewSessions(&mockCatalog{err: boom}, nil, nil, nil)

	_, err := sessions.Open(context.Background(), "user-1", testSet, false)
	assert.ErrorIs(t, err, boom)
}

func TestSessions_Close(t *testing.T) {
	sessions := NewSessions(newCatalog(), nil, nil, nil)
	ctx := context.Background()

	s, err := sessions.Open(ctx, "user-1", testSet, false)
	require.NoError(t, err)
	sessions.Close("user-1")

	again, err := sessions.Open(ctx, "user-1", testSet, false)
	require.NoError(t, err)
	assert.NotSame(t, s, again)
}

func TestSessions_TurningCloudSyncOnLoadsRemoteState(t *testing.T) {
	repo := &mockOwnedRepo{owned: map[string]int{"head:1": 2, "legs:3": 4, "fig:sw0001": 2}}
	sessions := NewSessions(newCatalog(), repo, nil, nil)
	ctx := context.Background()

	local, err := sessions.Open(ctx, "user-1", testSet, false)
	require.NoError(t, err)
	assert.Equal(t, 0, local.Owned("head:1"))
	assert.False(t, local.CloudSync())

	synced, err := sessions.Open(ctx, "user-1", testSet, true)
	require.NoError(t, err)
	assert.Same(t, local, synced)
	assert.True(t, synced.CloudSync())
	assert.Equal(t, 2, synced.Owned("head:1"))
	assert.Equal(t, 4, synced.Owned("legs:3"))
	assert.Equal(t, 2, synced.Owned("fig:sw0001"))

	// already on: the local map is kept
	_, err = synced.HandleOwnedChange("head:1", 1, ChangeOptions{SkipCascade: true})
	require.NoError(t, err)
	again, err := sessions.Open(ctx, "user-1", testSet, true)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Owned("head:1"))
}

func TestSessions_TurningCloudSyncOffKeepsLocalState(t *testing.T) {
	repo := &mockOwnedRepo{owned: map[string]int{"head:1": 2}}
	sessions := NewSessions(newCatalog(), repo, nil, nil)
	ctx := context.Background()

	s, err := sessions.Open(ctx, "user-1", testSet, true)
	require.NoError(t, err)
	off, err := sessions.Open(ctx, "user-1", testSet, false)
	require.NoError(t, err)
	assert.Same(t, s, off)
	assert.False(t, off.CloudSync())
	assert.Equal(t, 2, off.Owned("head:1"))
}
