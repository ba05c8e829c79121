package service

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/brickparty/brick-party/internal/core/domain"
)

type FilterMode string

const (
	FilterAll     FilterMode = "all"
	FilterMissing FilterMode = "missing"
	FilterOwned   FilterMode = "owned"
)

type SortKey string

const (
	SortByName     SortKey = "name"
	SortByColor    SortKey = "color"
	SortByCategory SortKey = "category"
	SortByQuantity SortKey = "quantity"
	SortByRarity   SortKey = "rarity"
)

func ParseFilterMode(s string) (FilterMode, error) {
	switch m := FilterMode(strings.ToLower(s)); m {
	case "":
		return FilterAll, nil
	case FilterAll, FilterMissing, FilterOwned:
		return m, nil
	}
	return "", fmt.Errorf("unknown filter %q", s)
}

func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(strings.ToLower(s)); k {
	case "":
		return SortByName, nil
	case SortByName, SortByColor, SortByCategory, SortByQuantity, SortByRarity:
		return k, nil
	}
	return "", fmt.Errorf("unknown sort %q", s)
}

type Totals struct {
	TotalRequired int `json:"totalRequired"`
	OwnedTotal    int `json:"ownedTotal"`
	TotalMissing  int `json:"totalMissing"`
}

type RowView struct {
	domain.InventoryRow
	Owned          int `json:"owned"`
	EffectiveOwned int `json:"effectiveOwned"`
	Missing        int `json:"missing"`
}

// Projection is a read-only view of a row set against an owned snapshot.
type Projection struct {
	index *InventoryIndex
	owned map[string]int
}

func NewProjection(index *InventoryIndex, owned map[string]int) *Projection {
	if owned == nil {
		owned = map[string]int{}
	}
	return &Projection{index: index, owned: owned}
}

func (p *Projection) ownedOf(key string) int { return p.owned[key] }

// EffectiveOwned derives a minifig parent from its subparts; other rows use
// the stored value. The result never exceeds quantityRequired.
func (p *Projection) EffectiveOwned(row domain.InventoryRow) int {
	if row.IsMinifigParent() {
		if n, ok := completableCount(p.index, row, p.ownedOf); ok {
			return n
		}
	}
	return clamp(p.owned[row.InventoryKey], 0, row.QuantityRequired)
}

// Totals counts catalog parts only; minifig parents would double count their
// subparts.
func (p *Projection) Totals() Totals {
	var t Totals
	for _, row := range p.index.Rows() {
		if row.IsMinifigParent() {
			continue
		}
		eff := p.EffectiveOwned(row)
		t.TotalRequired += row.QuantityRequired
		t.OwnedTotal += eff
		t.TotalMissing += max(0, row.QuantityRequired-eff)
	}
	return t
}

func (p *Projection) View(row domain.InventoryRow) RowView {
	eff := p.EffectiveOwned(row)
	return RowView{
		InventoryRow:   row,
		Owned:          p.owned[row.InventoryKey],
		EffectiveOwned: eff,
		Missing:        max(0, row.QuantityRequired-eff),
	}
}

func (p *Projection) Filter(mode FilterMode) []RowView {
	out := make([]RowView, 0, len(p.index.Rows()))
	for _, row := range p.index.Rows() {
		v := p.View(row)
		switch mode {
		case FilterMissing:
			if v.Missing == 0 {
				continue
			}
		case FilterOwned:
			if v.EffectiveOwned == 0 {
				continue
			}
		}
		out = append(out, v)
	}
	return out
}

// Rows filters then sorts. The sort is stable; ties fall back to part name
// and then to the inventory key.
func (p *Projection) Rows(mode FilterMode, by SortKey, desc bool) []RowView {
	rows := p.Filter(mode)
	SortRowViews(rows, by, desc)
	return rows
}

func SortRowViews(rows []RowView, by SortKey, desc bool) {
	sort.SliceStable(rows, func(i, j int) bool {
		c := comparePrimary(rows[i], rows[j], by)
		if desc {
			c = -c
		}
		if c != 0 {
			return c < 0
		}
		if c = strings.Compare(nameKey(rows[i].PartName), nameKey(rows[j].PartName)); c != 0 {
			return c < 0
		}
		return rows[i].InventoryKey < rows[j].InventoryKey
	})
}

func comparePrimary(a, b RowView, by SortKey) int {
	switch by {
	case SortByName:
		return strings.Compare(nameKey(a.PartName), nameKey(b.PartName))
	case SortByColor:
		return strings.Compare(nameKey(a.ColorName), nameKey(b.ColorName))
	case SortByCategory:
		return strings.Compare(nameKey(category(a.InventoryRow)), nameKey(category(b.InventoryRow)))
	case SortByQuantity:
		return a.QuantityRequired - b.QuantityRequired
	case SortByRarity:
		return rarity(a.InventoryRow) - rarity(b.InventoryRow)
	}
	return 0
}

func category(row domain.InventoryRow) string {
	if row.PartCategoryName != "" {
		return row.PartCategoryName
	}
	return row.ParentCategory
}

// rarity orders parts found in fewer sets first; unknown counts go last.
func rarity(row domain.InventoryRow) int {
	if row.SetCount <= 0 {
		return int(^uint(0) >> 1)
	}
	return row.SetCount
}

func nameKey(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}

// MissingParts lists what is still needed, in catalog order.
func (p *Projection) MissingParts(includeMinifigs bool) []domain.MissingPart {
	var out []domain.MissingPart
	for _, row := range p.index.Rows() {
		fig := row.IsMinifigParent()
		if fig && !includeMinifigs {
			continue
		}
		missing := row.QuantityRequired - p.EffectiveOwned(row)
		if missing <= 0 {
			continue
		}
		partID := row.PartID
		if fig {
			partID = row.MinifigID()
		}
		out = append(out, domain.MissingPart{
			SetNumber:       row.SetNumber,
			PartID:          partID,
			PartName:        row.PartName,
			ColorID:         row.ColorID,
			ColorName:       row.ColorName,
			ElementID:       row.ElementID,
			Minifig:         fig,
			QuantityMissing: missing,
		})
	}
	return out
}

// completableCount is the number of parent units the scarcest subpart allows,
// clamped to the parent's quantityRequired. ok is false when no relation of
// the parent can constrain it.
func completableCount(index *InventoryIndex, parent domain.InventoryRow, owned func(string) int) (int, bool) {
	best := -1
	for _, rel := range parent.ComponentRelations {
		if rel.Quantity <= 0 {
			continue
		}
		child, ok := index.Lookup(rel.Key)
		if !ok || !hasParent(child, parent.InventoryKey) {
			continue
		}
		n := owned(rel.Key) / rel.Quantity
		if best < 0 || n < best {
			best = n
		}
	}
	if best < 0 {
		return 0, false
	}
	return clamp(best, 0, parent.QuantityRequired), true
}
