package webhooks

import (
	"strconv"
	"sync"

	"github.com/chainlens/chainlens/internal/pkg/database"
	"github.com/chainlens/chainlens/internal/pkg/env"
)

var (
	globalDispatcher *Dispatcher
	dispatcherOnce   sync.Once
)

// GetDispatcher returns the global dispatcher (singleton) backed by the
// shared database handle.
func GetDispatcher() *Dispatcher {
	dispatcherOnce.Do(func() {
		concurrency := DefaultConcurrency
		if v, err := strconv.Atoi(env.GetEnv("WEBHOOK_WORKERS", "")); err == nil && v > 0 {
			concurrency = v
		}
		globalDispatcher = NewDispatcher(NewRepository(database.GetDB()), concurrency)
	})
	return globalDispatcher
}
