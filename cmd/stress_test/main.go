package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brickparty/brick-party/internal/adapter/storage"
	"github.com/brickparty/brick-party/internal/core/domain"
	"github.com/brickparty/brick-party/internal/core/service"
)

const (
	redisAddr     = "localhost:6379"
	userID        = "stress-user"
	setNumber     = "stress-set"
	minifigs      = 10
	totalRequests = 5000
	workerCount   = 8
	queueSize     = 100000
)

// memOwned keeps the newest change per key, like the MySQL upsert.
type memOwned struct {
	mu    sync.Mutex
	rows  map[string]domain.OwnedChange
	count atomic.Int64
}

func (m *memOwned) UpsertOwned(ctx context.Context, change domain.OwnedChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count.Add(1)
	if cur, ok := m.rows[change.Key]; ok && cur.CreatedAt.After(change.CreatedAt) {
		return nil
	}
	m.rows[change.Key] = change
	return nil
}

func (m *memOwned) LoadOwned(ctx context.Context, userID, setNumber string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.rows))
	for k, c := range m.rows {
		out[k] = c.Quantity
	}
	return out, nil
}

type staticCatalog []domain.InventoryRow

func (c staticCatalog) LoadInventory(ctx context.Context, set string) ([]domain.InventoryRow, error) {
	return c, nil
}

// stressRows builds figs that all share one head and own a pair of legs each.
func stressRows() []domain.InventoryRow {
	head := domain.InventoryRow{
		SetNumber: setNumber, PartID: "3626", PartName: "Head", ColorID: 14,
		InventoryKey: domain.PartKey("3626", 14), QuantityRequired: minifigs * 2,
	}
	var rows []domain.InventoryRow
	for i := 0; i < minifigs; i++ {
		figKey := domain.MinifigKey(fmt.Sprintf("st%04d", i))
		legsKey := domain.PartKey(fmt.Sprintf("970c%02d", i), 1)
		rows = append(rows,
			domain.InventoryRow{
				SetNumber: setNumber, PartID: figKey, InventoryKey: figKey, QuantityRequired: 2,
				ColorID: domain.SentinelColorID, ColorName: domain.SentinelColorName,
				ComponentRelations: []domain.ComponentRelation{{Key: head.InventoryKey, Quantity: 1}, {Key: legsKey, Quantity: 1}},
			},
			domain.InventoryRow{
				SetNumber: setNumber, PartID: legsKey, InventoryKey: legsKey, QuantityRequired: 2,
				ParentRelations: []domain.ParentRelation{{ParentKey: figKey, Quantity: 1}},
			},
		)
		head.ParentRelations = append(head.ParentRelations, domain.ParentRelation{ParentKey: figKey, Quantity: 1})
	}
	return append(rows, head)
}

func main() {
	ctx := context.Background()

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	// Clear previous test data
	rdb.Del(ctx, "owned:"+userID+":"+setNumber, "owned-at:"+userID+":"+setNumber)

	redisAdapter := storage.NewRedisAdapter(rdb, time.Minute)
	repo := &memOwned{rows: make(map[string]domain.OwnedChange)}
	forwarder := service.NewSyncForwarder(repo, queueSize, service.WithCache(redisAdapter))

	var workers sync.WaitGroup
	workers.Add(1)
	go func() {
		defer workers.Done()
		forwarder.Run(ctx, workerCount)
	}()

	rows := stressRows()
	session, err := service.NewSessions(staticCatalog(rows), nil, nil, forwarder).Open(ctx, userID, setNumber, true)
	if err != nil {
		log.Fatalf("failed to open session: %v", err)
	}

	var writeCount atomic.Int64
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			row := rows[rand.Intn(len(rows))]
			writes, err := session.HandleOwnedChange(row.InventoryKey, rand.Intn(row.QuantityRequired+1), service.ChangeOptions{})
			if err != nil {
				log.Printf("change failed: %v", err)
				return
			}
			writeCount.Add(int64(len(writes)))
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	forwarder.Close()
	workers.Wait()

	local := session.Projection()
	mirrored, _, err := redisAdapter.MirroredOwned(ctx, userID, setNumber)
	if err != nil {
		log.Fatalf("failed to read mirror: %v", err)
	}
	persisted, _ := repo.LoadOwned(ctx, userID, setNumber)

	mirrorDiff, repoDiff := 0, 0
	for _, row := range rows {
		want := session.Owned(row.InventoryKey)
		if mirrored[row.InventoryKey] != want {
			mirrorDiff++
		}
		if persisted[row.InventoryKey] != want {
			repoDiff++
		}
	}

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Rows:             %d\n", len(rows))
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Cascade Writes:   %d\n", writeCount.Load())
	fmt.Printf("Persisted:        %d\n", repo.count.Load())
	fmt.Printf("Missing Parts:    %d\n", local.Totals().TotalMissing)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if mirrorDiff == 0 {
		fmt.Println("PASS: Redis mirror matches local state")
	} else {
		fmt.Printf("FAIL: %d rows differ between Redis mirror and local state\n", mirrorDiff)
	}
	if repoDiff == 0 {
		fmt.Println("PASS: persisted state matches local state")
	} else {
		fmt.Printf("FAIL: %d rows differ between persisted and local state\n", repoDiff)
	}
}
