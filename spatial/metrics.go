package spatial

import (
	"github.com/aukilabs/crowdnav/models"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	backendLabel   = "backend"
	operationLabel = "operation"
	errTypeLabel   = "error_type"
)

var (
	spatialIndexAgents = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "spatial_index_agents",
		Help: "The number of indexed agents.",
	}, []string{backendLabel})

	spatialIndexOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spatial_index_operations_total",
		Help: "The number of agents added, removed, updated and reinserted by syncs.",
	}, []string{backendLabel, operationLabel})

	spatialIndexSyncErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spatial_index_sync_errors",
		Help: "The errors that occured while synchronizing a spatial index.",
	}, []string{backendLabel, errTypeLabel})

	spatialIndexSyncLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "spatial_index_sync_latency",
		Help: "The time to synchronize a spatial index.",
	}, []string{backendLabel})

	spatialTreeCost = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "spatial_tree_cost",
		Help: "The sum of the tree internal node surface areas.",
	})

	spatialTreeDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "spatial_tree_depth",
		Help: "The depth of the deepest tree leaf.",
	})

	spatialTreeBalanceFactor = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "spatial_tree_balance_factor",
		Help: "How balanced the tree is, from 0 (degenerated) to 1 (balanced).",
	})

	spatialTreeNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "spatial_tree_nodes",
		Help: "The number of tree nodes.",
	})

	spatialGridCells = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "spatial_grid_cells",
		Help: "The number of non empty grid cells.",
	})
)

// IndexWithMetrics returns an index that reports sync operations and index
// health to Prometheus.
func IndexWithMetrics(idx Index) Index {
	return &indexWithMetrics{
		Index: idx,
	}
}

type indexWithMetrics struct {
	Index
}

func (idx *indexWithMetrics) Sync(agents []models.Agent) (SyncStats, error) {
	backend := idx.Name()

	stats, err := idx.Index.Sync(agents)
	if err != nil {
		spatialIndexSyncErrors.
			With(prometheus.Labels{
				backendLabel: backend,
				errTypeLabel: errors.Type(err),
			}).
			Inc()
		return stats, err
	}

	spatialIndexSyncLatency.
		With(prometheus.Labels{backendLabel: backend}).
		Observe(stats.Duration.Seconds())

	for operation, n := range map[string]int{
		"add":      stats.Added,
		"remove":   stats.Removed,
		"update":   stats.Updated,
		"reinsert": stats.Reinserted,
	} {
		spatialIndexOperations.
			With(prometheus.Labels{
				backendLabel:   backend,
				operationLabel: operation,
			}).
			Add(float64(n))
	}

	instrumentStats(idx.Stats())
	return stats, nil
}

func instrumentStats(stats Stats) {
	spatialIndexAgents.
		With(prometheus.Labels{backendLabel: stats.Backend}).
		Set(float64(stats.Agents))

	if stats.Tree != nil {
		spatialTreeCost.Set(stats.Tree.Cost)
		spatialTreeDepth.Set(float64(stats.Tree.Depth))
		spatialTreeBalanceFactor.Set(stats.Tree.BalanceFactor)
		spatialTreeNodes.Set(float64(stats.Tree.Nodes))
	}

	if stats.Backend == BackendGrid {
		spatialGridCells.Set(float64(stats.Cells))
	}
}
