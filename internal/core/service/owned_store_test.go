package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOwnedStore_GetSet(t *testing.T) {
	s := NewOwnedStore()

	assert.Equal(t, 0, s.Get("10179-1", "3001:5"))

	s.Set("10179-1", "3001:5", 7)
	assert.Equal(t, 7, s.Get("10179-1", "3001:5"))
	assert.Equal(t, 0, s.Get("75000-1", "3001:5"))

	// no upper bound here, only zero
	s.Set("10179-1", "3001:5", 1000)
	assert.Equal(t, 1000, s.Get("10179-1", "3001:5"))
	s.Set("10179-1", "3001:5", -3)
	assert.Equal(t, 0, s.Get("10179-1", "3001:5"))
}

func TestOwnedStore_ClearAll(t *testing.T) {
	s := NewOwnedStore()
	s.Set("a", "k1", 1)
	s.Set("a", "k2", 2)
	s.Set("b", "k1", 3)

	s.ClearAll("a")

	assert.Empty(t, s.Snapshot("a"))
	assert.Equal(t, 3, s.Get("b", "k1"))
}

func TestOwnedStore_LoadAndSnapshot(t *testing.T) {
	s := NewOwnedStore()
	s.Set("a", "old", 5)

	s.Load("a", map[string]int{"k1": 2, "k2": 0, "k3": -1})
	assert.Equal(t, map[string]int{"k1": 2}, s.Snapshot("a"))

	snap := s.Snapshot("a")
	snap["k1"] = 99
	assert.Equal(t, 2, s.Get("a", "k1"))
}

func TestOwnedStore_Concurrent(t *testing.T) {
	s := NewOwnedStore()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s.Set("a", "k", n)
			_ = s.Get("a", "k")
			_ = s.Snapshot("a")
		}(i)
	}
	wg.Wait()

	assert.Len(t, s.Snapshot("a"), 1)
}
