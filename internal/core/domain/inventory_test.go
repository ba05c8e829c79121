package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "3001:5", PartKey("3001", 5))
	assert.Equal(t, "fig:sw0001", MinifigKey("sw0001"))
}

func TestInventoryRow_MinifigParent(t *testing.T) {
	fig := InventoryRow{InventoryKey: MinifigKey("sw0001"), PartID: "fig:sw0001"}
	part := InventoryRow{InventoryKey: PartKey("3626", 1), PartID: "3626"}

	assert.True(t, fig.IsMinifigParent())
	assert.Equal(t, "sw0001", fig.MinifigID())
	assert.False(t, part.IsMinifigParent())
	assert.Equal(t, "", part.MinifigID())
}

func TestInventoryRow_MinifigComponent(t *testing.T) {
	sub := InventoryRow{
		InventoryKey:    "3626:1",
		ParentRelations: []ParentRelation{{ParentKey: "fig:sw0001", Quantity: 1}},
	}
	byCategory := InventoryRow{InventoryKey: "973:1", ParentCategory: "Minifig"}
	plain := InventoryRow{InventoryKey: "3001:5"}

	assert.True(t, sub.IsMinifigComponent())
	assert.True(t, byCategory.IsMinifigComponent())
	assert.False(t, plain.IsMinifigComponent())
}
