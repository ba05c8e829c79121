package storage_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"

	"github.com/brickparty/brick-party/internal/adapter/storage"
	"github.com/brickparty/brick-party/internal/core/service"
)

const integrationSet = "integration-set"

type testEnv struct {
	redis   *redis.Client
	mysql   *sql.DB
	cache   *storage.RedisAdapter
	db      *storage.MySQLAdapter
	cleanup func()
}

func setupTestEnv(t *testing.T) *testEnv {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		mysqlDSN = "root:root@tcp(localhost:3306)/brickparty?parseTime=true"
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	env := &testEnv{
		redis: rdb,
		mysql: db,
		cache: storage.NewRedisAdapter(rdb, time.Minute),
		db:    storage.NewMySQLAdapter(db),
		cleanup: func() {
			rdb.Close()
			db.Close()
		},
	}
	if err := env.db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	env.seed(t)
	return env
}

// seed writes one minifig (head x1, legs x2 per fig) needed twice.
func (e *testEnv) seed(t *testing.T) {
	ctx := context.Background()
	e.redis.Del(ctx, "inventory:"+integrationSet,
		"owned:integration-user:"+integrationSet, "owned-at:integration-user:"+integrationSet)
	e.mysql.ExecContext(ctx, `DELETE FROM inventory_rows WHERE set_number = ?`, integrationSet)
	e.mysql.ExecContext(ctx, `DELETE FROM minifig_components WHERE set_number = ?`, integrationSet)
	e.mysql.ExecContext(ctx, `DELETE FROM owned_quantities WHERE set_number = ?`, integrationSet)

	_, err := e.mysql.ExecContext(ctx, `
		INSERT INTO inventory_rows (set_number, inventory_key, part_id, part_name, color_id, color_name, quantity_required, position)
		VALUES (?, 'fig:sw0001', 'fig:sw0001', 'Clone Trooper', 0, '—', 2, 0),
		       (?, '3626:1', '3626', 'Head', 1, 'White', 2, 1),
		       (?, '970:1', '970', 'Legs', 1, 'White', 4, 2)`,
		integrationSet, integrationSet, integrationSet)
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	_, err = e.mysql.ExecContext(ctx, `
		INSERT INTO minifig_components (set_number, parent_key, child_key, quantity, position)
		VALUES (?, 'fig:sw0001', '3626:1', 1, 0),
		       (?, 'fig:sw0001', '970:1', 2, 1)`,
		integrationSet, integrationSet)
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

func fastRetry() service.ForwarderOption {
	return service.WithRetryPolicy(service.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
}

func TestIntegration_CascadePersistsAndReloads(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	forwarder := service.NewSyncForwarder(env.db, 100, service.WithCache(env.cache), fastRetry())

	// Start workers
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		forwarder.Run(ctx, 3)
	}()

	sessions := service.NewSessions(env.db, env.db, env.cache, forwarder)
	session, err := sessions.Open(ctx, "integration-user", integrationSet, true)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	writes, err := session.HandleOwnedChange("fig:sw0001", 2, service.ChangeOptions{})
	if err != nil {
		t.Fatalf("change failed: %v", err)
	}
	if len(writes) != 3 {
		t.Fatalf("expected 3 writes, got %d", len(writes))
	}

	// Close forwarder and wait for workers
	forwarder.Close()
	wg.Wait()

	// Verify MySQL
	owned, err := env.db.LoadOwned(ctx, "integration-user", integrationSet)
	if err != nil {
		t.Fatalf("LoadOwned failed: %v", err)
	}
	if owned["fig:sw0001"] != 2 || owned["3626:1"] != 2 || owned["970:1"] != 4 {
		t.Errorf("unexpected persisted owned: %v", owned)
	}

	// Verify Redis mirror
	mirrored, hit, err := env.cache.MirroredOwned(ctx, "integration-user", integrationSet)
	if err != nil || !hit {
		t.Fatalf("expected mirror, hit=%v err=%v", hit, err)
	}
	if mirrored["970:1"] != 4 {
		t.Errorf("expected mirrored legs 4, got %d", mirrored["970:1"])
	}

	// A fresh process sees the same state
	reopened, err := service.NewSessions(env.db, env.db, env.cache, nil).Open(ctx, "integration-user", integrationSet, true)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if reopened.Projection().Totals().TotalMissing != 0 {
		t.Errorf("expected nothing missing, got %+v", reopened.Projection().Totals())
	}
}

func TestIntegration_OutboxReplayAfterOutage(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	outbox, err := storage.OpenSQLiteOutbox(filepath.Join(t.TempDir(), "outbox.db"))
	if err != nil {
		t.Fatalf("open outbox: %v", err)
	}
	defer outbox.Close()

	// a closed handle stands in for a MySQL outage
	down, err := sql.Open("mysql", "root:root@tcp(localhost:1)/brickparty")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	down.Close()

	failing := service.NewSyncForwarder(storage.NewMySQLAdapter(down), 10,
		service.WithCache(env.cache), service.WithOutbox(outbox), fastRetry())
	sessions := service.NewSessions(env.db, env.db, env.cache, failing)
	session, err := sessions.Open(ctx, "integration-user", integrationSet, true)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if _, err := session.HandleOwnedChange("3626:1", 1, service.ChangeOptions{}); err != nil {
		t.Fatalf("change failed: %v", err)
	}

	failing.Close()
	failing.Run(ctx, 1)

	pending, err := outbox.Pending(ctx, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 change in outbox, got %d", len(pending))
	}

	healthy := service.NewSyncForwarder(env.db, 10,
		service.WithCache(env.cache), service.WithOutbox(outbox), fastRetry())
	replayed, err := healthy.ReplayOutbox(ctx, 10)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replayed != 1 {
		t.Errorf("expected 1 replayed, got %d", replayed)
	}

	owned, err := env.db.LoadOwned(ctx, "integration-user", integrationSet)
	if err != nil {
		t.Fatalf("LoadOwned failed: %v", err)
	}
	if owned["3626:1"] != 1 {
		t.Errorf("expected head 1 after replay, got %v", owned)
	}
}
