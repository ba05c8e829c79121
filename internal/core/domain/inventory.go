package domain

import (
	"strconv"
	"strings"
)

const (
	MinifigKeyPrefix = "fig:"

	// Synthetic minifig rows carry this color.
	SentinelColorID   = 0
	SentinelColorName = "—"
)

// ComponentRelation lives on a minifig parent row and names one subpart.
type ComponentRelation struct {
	Key      string `json:"key"`
	Quantity int    `json:"quantity"` // units of the child per parent unit
}

// ParentRelation lives on a subpart row and names one minifig using it.
type ParentRelation struct {
	ParentKey string `json:"parentKey"`
	Quantity  int    `json:"quantity"`
}

type InventoryRow struct {
	SetNumber          string              `json:"setNumber"`
	PartID             string              `json:"partId"`
	PartName           string              `json:"partName"`
	ColorID            int                 `json:"colorId"`
	ColorName          string              `json:"colorName"`
	QuantityRequired   int                 `json:"quantityRequired"`
	InventoryKey       string              `json:"inventoryKey"`
	ParentCategory     string              `json:"parentCategory,omitempty"`
	PartCategoryName   string              `json:"partCategoryName,omitempty"`
	ElementID          string              `json:"elementId,omitempty"`
	SetCount           int                 `json:"setCount,omitempty"`
	ImageURL           string              `json:"imageUrl,omitempty"`
	ComponentRelations []ComponentRelation `json:"componentRelations,omitempty"`
	ParentRelations    []ParentRelation    `json:"parentRelations,omitempty"`
}

// IsMinifigParent reports whether the row is a synthetic fig:<id> row.
func (r InventoryRow) IsMinifigParent() bool {
	return strings.HasPrefix(r.InventoryKey, MinifigKeyPrefix)
}

// IsMinifigComponent reports whether the row is a part used by at least one minifig.
func (r InventoryRow) IsMinifigComponent() bool {
	return len(r.ParentRelations) > 0 || r.ParentCategory == "Minifig"
}

// MinifigID returns the id behind a fig:<id> key, or "" for other rows.
func (r InventoryRow) MinifigID() string {
	if !r.IsMinifigParent() {
		return ""
	}
	return strings.TrimPrefix(r.InventoryKey, MinifigKeyPrefix)
}

func PartKey(partID string, colorID int) string {
	return partID + ":" + strconv.Itoa(colorID)
}

func MinifigKey(minifigID string) string {
	return MinifigKeyPrefix + minifigID
}
