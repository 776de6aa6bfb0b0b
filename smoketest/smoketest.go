// Package smoketest checks on demand that a fresh tree stays consistent under
// randomized insertions, removals and queries.
package smoketest

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/aukilabs/crowdnav/bvh"
	"github.com/aukilabs/crowdnav/geometry"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
	"go.uber.org/multierr"
)

const (
	defaultLeaves     = 1000
	defaultOperations = 5000
	defaultExtent     = 100
	defaultQueries    = 100

	maxLeaves     = 100000
	maxOperations = 1000000
)

// Request is a smoke test run request. Zero values are replaced by defaults.
type Request struct {
	Leaves          int     `json:"leaves"`
	Operations      int     `json:"operations"`
	Queries         int     `json:"queries"`
	Extent          float64 `json:"extent"`
	Seed            int64   `json:"seed"`
	DisableRotation bool    `json:"disable_rotation"`
}

// Results is the outcome of a smoke test run.
type Results struct {
	RunID         string        `json:"run_id"`
	Leaves        int           `json:"leaves"`
	Operations    int           `json:"operations"`
	Queries       int           `json:"queries"`
	Cost          float64       `json:"cost"`
	Depth         int           `json:"depth"`
	BalanceFactor float64       `json:"balance_factor"`
	Duration      time.Duration `json:"duration"`
	Success       bool          `json:"success"`
	Errors        []string      `json:"errors,omitempty"`
}

type Options struct {
	// Called with the results of every run.
	SendResult func(context.Context, Results) error
}

type testCtxKey string

var testCtxKeyValue testCtxKey = "test-context"

type testContext struct {
	context.Context
	Cancel func()
}

func HandleSmokeTest(ctx context.Context, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		b, err := io.ReadAll(r.Body)
		if err != nil {
			logs.Warn(errors.New("reading body failed").Wrap(err))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		var req Request
		if len(b) != 0 {
			if err := json.Unmarshal(b, &req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
		}

		if req.Leaves < 0 || req.Leaves > maxLeaves ||
			req.Operations < 0 || req.Operations > maxOperations ||
			req.Queries < 0 || req.Extent < 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		runID := uuid.NewString()

		go func() {
			defer func() {
				// if context is of testContext
				// cancel context on exit to signal function exited
				// this is used for testing
				if tctx := ctx.Value(testCtxKeyValue); tctx != nil {
					testCtx := tctx.(testContext)
					if testCtx.Cancel != nil {
						testCtx.Cancel()
					}
				}
			}()

			res := Run(ctx, runID, req)
			if !res.Success {
				logs.WithTag("run_id", runID).
					WithTag("errors", res.Errors).
					Warn(errors.New("smoke test failed"))
			}

			if err := opts.SendResult(ctx, res); err != nil {
				logs.WithTag("run_id", runID).
					Warn(errors.New("sending smoke test result failed").Wrap(err))
			}
		}()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(struct {
			RunID string `json:"run_id"`
		}{RunID: runID})
	}
}

// Run inserts random boxes in a fresh tree, then randomly removes and inserts
// boxes, checking the tree invariants and query results along the way.
func Run(ctx context.Context, runID string, req Request) (res Results) {
	req = withDefaults(req)
	start := time.Now()
	rnd := rand.New(rand.NewSource(req.Seed))
	rebalance := !req.DisableRotation

	res = Results{
		RunID:      runID,
		Leaves:     req.Leaves,
		Operations: req.Operations,
		Queries:    req.Queries,
	}

	var err error
	defer func() {
		res.Duration = time.Since(start)
		res.Success = err == nil
		for _, e := range multierr.Errors(err) {
			res.Errors = append(res.Errors, e.Error())
		}
	}()

	// A freed node reached by a traversal panics in debug builds.
	defer func() {
		if r := recover(); r != nil {
			err = multierr.Append(err, errors.Newf("tree traversal panicked: %v", r))
		}
	}()

	tree := bvh.New[geometry.AABB, int](2 * req.Leaves)
	boxes := make(map[bvh.Handle]geometry.AABB, req.Leaves)
	handles := make([]bvh.Handle, 0, req.Leaves)
	next := 0

	insert := func() {
		box := randomBox(rnd, req.Extent)
		h := tree.Insert(box, next, rebalance)
		next++
		boxes[h] = box
		handles = append(handles, h)
	}

	for i := 0; i < req.Leaves; i++ {
		insert()
	}
	if err = tree.Validate(); err != nil {
		return res
	}

	for i := 0; i < req.Operations; i++ {
		if i%1024 == 0 && ctx.Err() != nil {
			err = ctx.Err()
			return res
		}

		if len(handles) == 0 || rnd.Intn(2) == 0 {
			insert()
			continue
		}

		j := rnd.Intn(len(handles))
		h := handles[j]
		handles[j] = handles[len(handles)-1]
		handles = handles[:len(handles)-1]
		delete(boxes, h)

		if removeErr := tree.RemoveAt(h); removeErr != nil {
			err = multierr.Append(err, removeErr)
		}
	}
	err = multierr.Append(err, tree.Validate())

	for i := 0; i < req.Queries; i++ {
		err = multierr.Append(err, checkQuery(tree, boxes, randomBox(rnd, req.Extent)))
	}

	stats := tree.Stats()
	res.Cost = stats.Cost
	res.Depth = stats.Depth
	res.BalanceFactor = stats.BalanceFactor

	for _, h := range handles {
		if removeErr := tree.RemoveAt(h); removeErr != nil {
			err = multierr.Append(err, removeErr)
		}
	}
	if !tree.IsEmpty() {
		err = multierr.Append(err, errors.New("tree is not empty after removing every leaf").
			WithTag("length", tree.Len()))
	}
	return res
}

func withDefaults(req Request) Request {
	if req.Leaves == 0 {
		req.Leaves = defaultLeaves
	}
	if req.Operations == 0 {
		req.Operations = defaultOperations
	}
	if req.Queries == 0 {
		req.Queries = defaultQueries
	}
	if req.Extent == 0 {
		req.Extent = defaultExtent
	}
	if req.Seed == 0 {
		req.Seed = time.Now().UnixNano()
	}
	return req
}

func randomBox(rnd *rand.Rand, extent float64) geometry.AABB {
	min := r3.Vector{
		X: rnd.Float64() * extent,
		Y: rnd.Float64() * extent / 10,
		Z: rnd.Float64() * extent,
	}
	size := r3.Vector{
		X: 0.1 + rnd.Float64()*extent/20,
		Y: 0.1 + rnd.Float64()*extent/20,
		Z: 0.1 + rnd.Float64()*extent/20,
	}
	return geometry.AABB{Min: min, Max: min.Add(size)}
}

// checkQuery compares a box query against a brute force scan.
func checkQuery(tree *bvh.Tree[geometry.AABB, int], boxes map[bvh.Handle]geometry.AABB, query geometry.AABB) error {
	expected := 0
	for _, b := range boxes {
		if b.Overlap(query) {
			expected++
		}
	}

	var err error
	visited := 0
	tree.Query(query.Overlap, func(h bvh.Handle, n bvh.Node[geometry.AABB, int]) bool {
		visited++
		if b, ok := boxes[h]; !ok || b != n.Volume {
			err = errors.New("query visited an unknown leaf").WithTag("handle", h)
			return false
		}
		return true
	})
	if err != nil {
		return err
	}

	if visited != expected {
		return errors.New("query results do not match a brute force scan").
			WithTag("query", query).
			WithTag("expected", expected).
			WithTag("visited", visited)
	}
	return nil
}
