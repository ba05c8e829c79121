package service

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brickparty/brick-party/internal/core/domain"
)

var ErrUnknownKey = errors.New("unknown inventory key")

type ChangeOptions struct {
	// SkipCascade writes only the requested key. Bulk operations use it.
	SkipCascade bool
}

// ChangeForwarder receives every individual write after the store is updated.
type ChangeForwarder interface {
	Enqueue(change domain.OwnedChange) error
}

// Resolver keeps owned quantities of one set consistent across minifig
// parent rows and their subparts.
type Resolver struct {
	mu        sync.Mutex
	index     *InventoryIndex
	store     *OwnedStore
	forwarder ChangeForwarder
	userID    string
	cloudSync bool
	lastAt    time.Time
}

func NewResolver(index *InventoryIndex, store *OwnedStore, forwarder ChangeForwarder, userID string, cloudSync bool) *Resolver {
	return &Resolver{
		index:     index,
		store:     store,
		forwarder: forwarder,
		userID:    userID,
		cloudSync: cloudSync,
	}
}

func (r *Resolver) SetNumber() string { return r.index.SetNumber() }

func (r *Resolver) Index() *InventoryIndex { return r.index }

func (r *Resolver) Owned(key string) int {
	return r.store.Get(r.index.SetNumber(), key)
}

func (r *Resolver) SetCloudSync(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cloudSync = enabled
}

func (r *Resolver) CloudSync() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cloudSync
}

// ResumeCloudSync replaces the local map with the remote one and turns
// forwarding back on. Local values written while sync was off are dropped.
func (r *Resolver) ResumeCloudSync(owned map[string]int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store.Load(r.index.SetNumber(), owned)
	r.cloudSync = true
}

// HandleOwnedChange clamps requested into [0, quantityRequired], stores it
// and cascades to related rows. It returns the writes in the order they were
// applied; an unchanged target yields no writes at all.
func (r *Resolver) HandleOwnedChange(key string, requested int, opts ChangeOptions) ([]domain.OwnedWrite, error) {
	r.mu.Lock()
	row, ok := r.index.Lookup(key)
	if !ok {
		r.mu.Unlock()
		return nil, ErrUnknownKey
	}

	var writes []domain.OwnedWrite
	target := clamp(requested, 0, row.QuantityRequired)
	if r.apply(key, target, &writes) && !opts.SkipCascade {
		if len(row.ComponentRelations) > 0 {
			r.cascadeDown(row, target, &writes)
		}
		if len(row.ParentRelations) > 0 {
			r.cascadeUp(row, &writes)
		}
	}
	changes := r.changes(writes)
	r.mu.Unlock()

	r.forward(changes)
	return writes, nil
}

// MarkAllComplete sets each key to its own quantityRequired, without cascade.
// An empty list changes nothing; pass Index().Keys() for the whole set.
func (r *Resolver) MarkAllComplete(keys []string) []domain.OwnedWrite {
	return r.bulk(keys, func(row domain.InventoryRow) int { return row.QuantityRequired })
}

// MarkAllMissing sets each key to zero, without cascade.
func (r *Resolver) MarkAllMissing(keys []string) []domain.OwnedWrite {
	return r.bulk(keys, func(domain.InventoryRow) int { return 0 })
}

// ClearAll drops the set's map. Keys that were non-zero are reported (and
// forwarded) as zero writes.
func (r *Resolver) ClearAll() []domain.OwnedWrite {
	r.mu.Lock()
	set := r.index.SetNumber()
	var writes []domain.OwnedWrite
	for _, key := range r.index.Keys() {
		if prev := r.store.Get(set, key); prev != 0 {
			writes = append(writes, domain.OwnedWrite{Key: key, Previous: prev, Quantity: 0})
		}
	}
	r.store.ClearAll(set)
	changes := r.changes(writes)
	r.mu.Unlock()

	r.forward(changes)
	return writes
}

// Projection returns a read-only view over a snapshot of the store.
func (r *Resolver) Projection() *Projection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return NewProjection(r.index, r.store.Snapshot(r.index.SetNumber()))
}

func (r *Resolver) bulk(keys []string, value func(domain.InventoryRow) int) []domain.OwnedWrite {
	if len(keys) == 0 {
		return nil
	}

	r.mu.Lock()
	var writes []domain.OwnedWrite
	for _, key := range keys {
		row, ok := r.index.Lookup(key)
		if !ok {
			slog.Warn("bulk owned change skipped unknown key", "set", r.index.SetNumber(), "key", key)
			continue
		}
		r.apply(key, clamp(value(row), 0, row.QuantityRequired), &writes)
	}
	changes := r.changes(writes)
	r.mu.Unlock()

	r.forward(changes)
	return writes
}

// cascadeDown overwrites each subpart with the units implied by every parent
// that uses it, the changed parent counted at its new target.
func (r *Resolver) cascadeDown(parent domain.InventoryRow, target int, writes *[]domain.OwnedWrite) {
	for _, rel := range parent.ComponentRelations {
		if rel.Quantity <= 0 {
			continue
		}
		child, ok := r.index.Lookup(rel.Key)
		if !ok || !hasParent(child, parent.InventoryKey) {
			continue
		}
		demand := r.childDemand(child, parent.InventoryKey, target)
		r.apply(child.InventoryKey, clamp(demand, 0, child.QuantityRequired), writes)
	}
}

func (r *Resolver) childDemand(child domain.InventoryRow, changedParentKey string, target int) int {
	set := r.index.SetNumber()
	total := 0
	for _, rel := range child.ParentRelations {
		if rel.Quantity <= 0 {
			continue
		}
		units := target
		if rel.ParentKey != changedParentKey {
			other, ok := r.index.Lookup(rel.ParentKey)
			if !ok || !hasComponent(other, child.InventoryKey) {
				continue
			}
			units = r.store.Get(set, rel.ParentKey)
		}
		total += units * rel.Quantity
	}
	return total
}

// cascadeUp recomputes each parent of the changed subpart independently.
// Subparts shared between parents are not reserved: every parent sees the
// whole pool.
func (r *Resolver) cascadeUp(child domain.InventoryRow, writes *[]domain.OwnedWrite) {
	set := r.index.SetNumber()
	owned := func(key string) int { return r.store.Get(set, key) }

	for _, rel := range child.ParentRelations {
		parent, ok := r.index.Lookup(rel.ParentKey)
		if !ok || !hasComponent(parent, child.InventoryKey) {
			continue
		}
		completable, ok := completableCount(r.index, parent, owned)
		if !ok {
			continue
		}
		r.apply(parent.InventoryKey, completable, writes)
	}
}

// apply stores value for key unless it is already stored.
func (r *Resolver) apply(key string, value int, writes *[]domain.OwnedWrite) bool {
	set := r.index.SetNumber()
	prev := r.store.Get(set, key)
	if prev == value {
		return false
	}
	r.store.Set(set, key, value)
	*writes = append(*writes, domain.OwnedWrite{Key: key, Previous: prev, Quantity: value})
	return true
}

// changes stamps writes while r.mu is held, so change times follow store
// order. Times are strictly increasing at microsecond precision, which is
// what MySQL and the Redis mirror compare.
func (r *Resolver) changes(writes []domain.OwnedWrite) []domain.OwnedChange {
	if r.forwarder == nil || len(writes) == 0 {
		return nil
	}
	out := make([]domain.OwnedChange, 0, len(writes))
	for _, w := range writes {
		at := time.Now().Truncate(time.Microsecond)
		if !at.After(r.lastAt) {
			at = r.lastAt.Add(time.Microsecond)
		}
		r.lastAt = at

		out = append(out, domain.OwnedChange{
			ID:              uuid.NewString(),
			UserID:          r.userID,
			SetNumber:       r.index.SetNumber(),
			Key:             w.Key,
			Quantity:        w.Quantity,
			EnableCloudSync: r.cloudSync,
			Status:          domain.OwnedChangeStatusPending,
			CreatedAt:       at,
		})
	}
	return out
}

func (r *Resolver) forward(changes []domain.OwnedChange) {
	for _, change := range changes {
		if err := r.forwarder.Enqueue(change); err != nil {
			slog.Warn("owned change not forwarded",
				"set", change.SetNumber, "key", change.Key, "error", err)
		}
	}
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
