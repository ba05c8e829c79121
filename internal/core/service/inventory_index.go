package service

import "github.com/brickparty/brick-party/internal/core/domain"

// InventoryIndex is built once per loaded row set. Rows keep both relation
// directions as delivered by the catalog; nothing is derived here.
type InventoryIndex struct {
	setNumber string
	rows      []domain.InventoryRow
	byKey     map[string]int
}

func NewInventoryIndex(setNumber string, rows []domain.InventoryRow) *InventoryIndex {
	idx := &InventoryIndex{
		setNumber: setNumber,
		rows:      rows,
		byKey:     make(map[string]int, len(rows)),
	}
	for i, row := range rows {
		// first row wins if the catalog ever repeats a key
		if _, dup := idx.byKey[row.InventoryKey]; !dup {
			idx.byKey[row.InventoryKey] = i
		}
	}
	return idx
}

func (x *InventoryIndex) SetNumber() string { return x.setNumber }

func (x *InventoryIndex) Lookup(key string) (domain.InventoryRow, bool) {
	i, ok := x.byKey[key]
	if !ok {
		return domain.InventoryRow{}, false
	}
	return x.rows[i], true
}

// Rows returns the rows in catalog order. Callers must not modify them.
func (x *InventoryIndex) Rows() []domain.InventoryRow {
	return x.rows
}

func (x *InventoryIndex) Keys() []string {
	keys := make([]string, 0, len(x.rows))
	for _, row := range x.rows {
		keys = append(keys, row.InventoryKey)
	}
	return keys
}

// hasComponent reports whether parent lists childKey among its components.
func hasComponent(parent domain.InventoryRow, childKey string) bool {
	for _, rel := range parent.ComponentRelations {
		if rel.Key == childKey {
			return true
		}
	}
	return false
}

// hasParent reports whether child lists parentKey among its parents.
func hasParent(child domain.InventoryRow, parentKey string) bool {
	for _, rel := range child.ParentRelations {
		if rel.ParentKey == parentKey {
			return true
		}
	}
	return false
}
