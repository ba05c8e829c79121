package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/brickparty/brick-party/internal/core/domain"
)

//go:embed mysql_schema.sql
var mysqlSchema string

type MySQLAdapter struct {
	db *sqlx.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: sqlx.NewDb(db, "mysql")}
}

// Migrate creates the tables if they do not exist.
func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(mysqlSchema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// UpsertOwned keeps the most recent change per key. A replayed change older
// than the stored one does not overwrite it.
func (m *MySQLAdapter) UpsertOwned(ctx context.Context, change domain.OwnedChange) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO owned_quantities (user_id, set_number, inventory_key, quantity, changed_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			quantity = IF(VALUES(changed_at) >= changed_at, VALUES(quantity), quantity),
			changed_at = GREATEST(changed_at, VALUES(changed_at))`,
		change.UserID, change.SetNumber, change.Key, change.Quantity, change.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert owned: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) LoadOwned(ctx context.Context, userID, setNumber string) (map[string]int, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT inventory_key, quantity
		FROM owned_quantities WHERE user_id = ? AND set_number = ? AND quantity > 0`,
		userID, setNumber,
	)
	if err != nil {
		return nil, fmt.Errorf("query owned: %w", err)
	}
	defer rows.Close()

	owned := make(map[string]int)
	for rows.Next() {
		var key string
		var qty int
		if err := rows.Scan(&key, &qty); err != nil {
			return nil, fmt.Errorf("scan owned: %w", err)
		}
		owned[key] = qty
	}
	return owned, rows.Err()
}

type catalogRow struct {
	SetNumber        string `db:"set_number"`
	InventoryKey     string `db:"inventory_key"`
	PartID           string `db:"part_id"`
	PartName         string `db:"part_name"`
	ColorID          int    `db:"color_id"`
	ColorName        string `db:"color_name"`
	QuantityRequired int    `db:"quantity_required"`
	ParentCategory   string `db:"parent_category"`
	PartCategoryName string `db:"part_category_name"`
	ElementID        string `db:"element_id"`
	SetCount         int    `db:"set_count"`
	ImageURL         string `db:"image_url"`
}

type componentRow struct {
	ParentKey string `db:"parent_key"`
	ChildKey  string `db:"child_key"`
	Quantity  int    `db:"quantity"`
}

// LoadInventory reads the rows of a set and fills both relation directions
// from minifig_components. Returns nil for an unknown set.
func (m *MySQLAdapter) LoadInventory(ctx context.Context, setNumber string) ([]domain.InventoryRow, error) {
	var rows []catalogRow
	err := m.db.SelectContext(ctx, &rows, `
		SELECT set_number, inventory_key, part_id, part_name, color_id, color_name,
		       quantity_required, parent_category, part_category_name, element_id,
		       set_count, image_url
		FROM inventory_rows WHERE set_number = ?
		ORDER BY position, inventory_key`, setNumber)
	if err != nil {
		return nil, fmt.Errorf("query inventory rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	var components []componentRow
	err = m.db.SelectContext(ctx, &components, `
		SELECT parent_key, child_key, quantity
		FROM minifig_components WHERE set_number = ?
		ORDER BY parent_key, position, child_key`, setNumber)
	if err != nil {
		return nil, fmt.Errorf("query minifig components: %w", err)
	}

	out := make([]domain.InventoryRow, len(rows))
	byKey := make(map[string]int, len(rows))
	for i, r := range rows {
		out[i] = domain.InventoryRow{
			SetNumber:        r.SetNumber,
			PartID:           r.PartID,
			PartName:         r.PartName,
			ColorID:          r.ColorID,
			ColorName:        r.ColorName,
			QuantityRequired: r.QuantityRequired,
			InventoryKey:     r.InventoryKey,
			ParentCategory:   r.ParentCategory,
			PartCategoryName: r.PartCategoryName,
			ElementID:        r.ElementID,
			SetCount:         r.SetCount,
			ImageURL:         r.ImageURL,
		}
		byKey[r.InventoryKey] = i
	}

	for _, c := range components {
		if pi, ok := byKey[c.ParentKey]; ok {
			out[pi].ComponentRelations = append(out[pi].ComponentRelations,
				domain.ComponentRelation{Key: c.ChildKey, Quantity: c.Quantity})
		}
		if ci, ok := byKey[c.ChildKey]; ok {
			out[ci].ParentRelations = append(out[ci].ParentRelations,
				domain.ParentRelation{ParentKey: c.ParentKey, Quantity: c.Quantity})
		}
	}
	return out, nil
}
