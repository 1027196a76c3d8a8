package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/santiago-gil/tools-tracker/internal/adapter/storage"
	"github.com/santiago-gil/tools-tracker/internal/cache"
	"github.com/santiago-gil/tools-tracker/internal/core/domain"
	"github.com/santiago-gil/tools-tracker/internal/core/service"
)

const (
	collection   = "tools_v2"
	totalWriters = 50
	maxAttempts  = 200
)

// Hammers a single tool with concurrent read-check-update cycles. Each
// writer retries on version conflict until its own update lands, so every
// success increments the stored version exactly once.
func main() {
	ctx := context.Background()

	store := storage.NewMemoryStore()
	toolCache, err := cache.New[[]domain.Tool](cache.Config{
		TTL:    time.Minute,
		MaxAge: 10 * time.Minute,
	}, nil, nil)
	if err != nil {
		log.Fatalf("failed to build cache: %v", err)
	}

	audit := service.NewStoreAuditRecorder(store, "audit_logs", nil)
	versions := service.NewVersionController(store, collection, nil)
	tools := service.NewToolService(store, toolCache, versions, audit, collection, nil)

	actor := domain.UserInfo{UID: "stress", Email: "stress@example.com"}
	tool, err := tools.Create(ctx, service.CreateToolInput{
		Name:     "Contended Tool",
		Category: "analytics",
		Versions: []domain.ToolVersion{{VersionName: "v1"}},
	}, actor, nil)
	if err != nil {
		log.Fatalf("failed to create tool: %v", err)
	}

	var successCount atomic.Int32
	var conflictCount atomic.Int32
	var otherCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalWriters; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			name := fmt.Sprintf("Contended Tool %d", n)
			for attempt := 0; attempt < maxAttempts; attempt++ {
				current, err := tools.GetByID(ctx, tool.ID)
				if err != nil {
					otherCount.Add(1)
					log.Printf("writer %d: read failed: %v", n, err)
					return
				}

				_, err = tools.Update(ctx, tool.ID, service.UpdateToolInput{Name: &name},
					&current.OptimisticVersion, actor, nil)

				var conflict *domain.OptimisticConflictError
				switch {
				case err == nil:
					successCount.Add(1)
					return
				case errors.As(err, &conflict):
					conflictCount.Add(1)
				default:
					otherCount.Add(1)
					log.Printf("writer %d: unexpected error: %v", n, err)
					return
				}
			}
			otherCount.Add(1)
			log.Printf("writer %d: gave up after %d attempts", n, maxAttempts)
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	conflicts := conflictCount.Load()
	other := otherCount.Load()

	fmt.Println("========== CONTENTION TEST RESULTS ==========")
	fmt.Printf("Writers:          %d\n", totalWriters)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Conflicts (retried): %d\n", conflicts)
	fmt.Printf("Other Errors:     %d\n", other)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("=============================================")

	if success == totalWriters && other == 0 {
		fmt.Println("PASS: every writer eventually landed its update")
	} else {
		fmt.Printf("FAIL: expected %d successes, got %d (%d other errors)\n",
			totalWriters, success, other)
	}

	final, err := tools.GetByID(ctx, tool.ID)
	if err != nil {
		log.Fatalf("failed to read back tool: %v", err)
	}
	fmt.Printf("Final Version: %d\n", final.OptimisticVersion)

	if final.OptimisticVersion >= int64(success) {
		fmt.Println("PASS: stored version advanced with every landed update")
	} else {
		fmt.Printf("FAIL: version %d lower than success count %d\n",
			final.OptimisticVersion, success)
	}
}
