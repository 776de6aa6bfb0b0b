package spatial

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aukilabs/crowdnav/geometry"
	"github.com/aukilabs/crowdnav/models"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/golang/geo/r3"
)

// IndexWithLogs returns an index that logs sync failures and periodically
// logs a summary of the sync operations and of the number of queries. A zero interval only logs the
// summary on close.
func IndexWithLogs(idx Index, summaryInterval time.Duration) Index {
	ctx, cancel := context.WithCancel(context.Background())

	index := &indexWithLogs{
		Index:              idx,
		summaryInterval:    summaryInterval,
		closeSummaryWorker: cancel,
		counter:            make(map[string]int),
	}

	if summaryInterval > 0 {
		go index.startSummaryWorker(ctx)
	}
	return index
}

type indexWithLogs struct {
	Index

	summaryInterval    time.Duration
	closeSummaryWorker func()
	counterMutex       sync.Mutex
	counter            map[string]int
	syncs              int

	// Queries run concurrently from module workers.
	queries atomic.Int64
}

func (idx *indexWithLogs) Sync(agents []models.Agent) (SyncStats, error) {
	stats, err := idx.Index.Sync(agents)
	if err != nil {
		logs.WithTag("backend", idx.Name()).
			WithTag("agents", len(agents)).
			Error(errors.New("synchronizing spatial index failed").Wrap(err))
		return stats, err
	}

	logs.WithTag("backend", idx.Name()).
		WithTag("added", stats.Added).
		WithTag("removed", stats.Removed).
		WithTag("reinserted", stats.Reinserted).
		WithTag("duration", stats.Duration).
		Debug("spatial index synchronized")

	idx.incCounters(stats)
	return stats, nil
}

func (idx *indexWithLogs) QueryLine(from, to r3.Vector, layers models.NavigationLayers, visit Visitor) int {
	idx.queries.Add(1)
	return idx.Index.QueryLine(from, to, layers, visit)
}

func (idx *indexWithLogs) QueryAABB(box geometry.AABB, layers models.NavigationLayers, visit Visitor) int {
	idx.queries.Add(1)
	return idx.Index.QueryAABB(box, layers, visit)
}

func (idx *indexWithLogs) QuerySphere(center r3.Vector, radius float64, layers models.NavigationLayers, visit Visitor) int {
	idx.queries.Add(1)
	return idx.Index.QuerySphere(center, radius, layers, visit)
}

func (idx *indexWithLogs) QueryCylinder(center r3.Vector, radius, height float64, layers models.NavigationLayers, visit Visitor) int {
	idx.queries.Add(1)
	return idx.Index.QueryCylinder(center, radius, height, layers, visit)
}

func (idx *indexWithLogs) QueryNearest(center r3.Vector, radius float64, maxCount int, layers models.NavigationLayers, visit Visitor) int {
	idx.queries.Add(1)
	return idx.Index.QueryNearest(center, radius, maxCount, layers, visit)
}

func (idx *indexWithLogs) QueryCircle(center r3.Vector, radius float64, maxCount int, layers models.NavigationLayers, visit Visitor) int {
	idx.queries.Add(1)
	return idx.Index.QueryCircle(center, radius, maxCount, layers, visit)
}

func (idx *indexWithLogs) QueryCylinderNearest(center r3.Vector, radius, height float64, maxCount int, layers models.NavigationLayers, visit Visitor) int {
	idx.queries.Add(1)
	return idx.Index.QueryCylinderNearest(center, radius, height, maxCount, layers, visit)
}

func (idx *indexWithLogs) Close() {
	idx.Index.Close()
	idx.closeSummaryWorker()
	idx.logSummary()
}

func (idx *indexWithLogs) startSummaryWorker(ctx context.Context) {
	ticker := time.NewTicker(idx.summaryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			idx.logSummary()
		}
	}
}

func (idx *indexWithLogs) incCounters(stats SyncStats) {
	idx.counterMutex.Lock()
	defer idx.counterMutex.Unlock()

	idx.syncs++
	idx.counter["added"] += stats.Added
	idx.counter["removed"] += stats.Removed
	idx.counter["reinserted"] += stats.Reinserted
}

func (idx *indexWithLogs) logSummary() {
	idx.counterMutex.Lock()
	defer idx.counterMutex.Unlock()

	if idx.syncs == 0 {
		return
	}

	entry := logs.WithTag("backend", idx.Name()).
		WithTag("syncs", idx.syncs).
		WithTag("queries", idx.queries.Swap(0)).
		WithTag("time_interval", idx.summaryInterval)

	for k, v := range idx.counter {
		entry = entry.WithTag(k, v)
		delete(idx.counter, k)
	}
	idx.syncs = 0

	entry.Info("spatial index sync summary")
}
