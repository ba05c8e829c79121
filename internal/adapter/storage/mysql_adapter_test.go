package storage

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/brickparty/brick-party/internal/core/domain"
)

func getMySQLDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/brickparty?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	return db
}

func newMigratedAdapter(t *testing.T, db *sql.DB) *MySQLAdapter {
	adapter := NewMySQLAdapter(db)
	if err := adapter.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	return adapter
}

func TestUpsertOwned_LastWriteWins(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := newMigratedAdapter(t, db)
	db.ExecContext(ctx, `DELETE FROM owned_quantities WHERE user_id = 'test-user'`)

	now := time.Now()
	change := domain.OwnedChange{
		UserID:    "test-user",
		SetNumber: "test-set",
		Key:       "3001:5",
		Quantity:  3,
		CreatedAt: now,
	}
	if err := adapter.UpsertOwned(ctx, change); err != nil {
		t.Fatalf("UpsertOwned failed: %v", err)
	}

	// an older replayed change must not win
	stale := change
	stale.Quantity = 1
	stale.CreatedAt = now.Add(-time.Minute)
	if err := adapter.UpsertOwned(ctx, stale); err != nil {
		t.Fatalf("UpsertOwned failed: %v", err)
	}

	owned, err := adapter.LoadOwned(ctx, "test-user", "test-set")
	if err != nil {
		t.Fatalf("LoadOwned failed: %v", err)
	}
	if owned["3001:5"] != 3 {
		t.Errorf("expected 3, got %d", owned["3001:5"])
	}

	newer := change
	newer.Quantity = 0
	newer.CreatedAt = now.Add(time.Minute)
	if err := adapter.UpsertOwned(ctx, newer); err != nil {
		t.Fatalf("UpsertOwned failed: %v", err)
	}

	owned, err = adapter.LoadOwned(ctx, "test-user", "test-set")
	if err != nil {
		t.Fatalf("LoadOwned failed: %v", err)
	}
	if _, ok := owned["3001:5"]; ok {
		t.Errorf("expected zero rows to be left out, got %v", owned)
	}
}

func TestLoadInventory(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := newMigratedAdapter(t, db)

	// Setup
	db.ExecContext(ctx, `DELETE FROM inventory_rows WHERE set_number = 'test-set'`)
	db.ExecContext(ctx, `DELETE FROM minifig_components WHERE set_number = 'test-set'`)
	_, err := db.ExecContext(ctx, `
		INSERT INTO inventory_rows (set_number, inventory_key, part_id, part_name, color_id, color_name, quantity_required, position)
		VALUES ('test-set', 'fig:sw0001', 'fig:sw0001', 'Clone Trooper', 0, '—', 2, 0),
		       ('test-set', '3626:1', '3626', 'Head', 1, 'White', 2, 1),
		       ('test-set', '970:1', '970', 'Legs', 1, 'White', 4, 2)`)
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO minifig_components (set_number, parent_key, child_key, quantity, position)
		VALUES ('test-set', 'fig:sw0001', '3626:1', 1, 0),
		       ('test-set', 'fig:sw0001', '970:1', 2, 1)`)
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	rows, err := adapter.LoadInventory(ctx, "test-set")
	if err != nil {
		t.Fatalf("LoadInventory failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].InventoryKey != "fig:sw0001" || len(rows[0].ComponentRelations) != 2 {
		t.Errorf("unexpected parent row: %+v", rows[0])
	}
	if rows[2].ParentRelations[0].Quantity != 2 {
		t.Errorf("expected legs per-unit quantity 2, got %+v", rows[2].ParentRelations)
	}
}

func TestLoadInventory_NotFound(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := newMigratedAdapter(t, db)

	rows, err := adapter.LoadInventory(ctx, "nonexistent-set")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rows != nil {
		t.Error("expected nil for nonexistent set")
	}
}
