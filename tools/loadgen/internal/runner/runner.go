// Package runner drives synthetic POS traffic against a ledger instance.
// Responses are mined for identifiers (batch IDs, location IDs) which go
// into a parameter pool so later requests can reference stock that actually
// exists.
package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/clinicpos/tools/loadgen/internal/pool"
)

// Config holds the knobs for one load run.
type Config struct {
	// BaseURL is the ledger API root, e.g. http://localhost:8080
	BaseURL string

	// QPS is the steady request rate across all workers.
	QPS float64

	// Workers is the number of concurrent request loops.
	Workers int

	// Duration is how long to run. Zero runs until the context is cancelled.
	Duration time.Duration

	// ActorID is stamped on every request as X-Actor-ID.
	ActorID string

	// Products is how many synthetic product IDs to seed the pool with.
	Products int

	// Timeout bounds each individual request.
	Timeout time.Duration
}

// DefaultConfig returns the rates used for smoke runs against a dev ledger.
func DefaultConfig() Config {
	return Config{
		BaseURL:  "http://localhost:8080",
		QPS:      50,
		Workers:  8,
		Duration: time.Minute,
		Products: 20,
		Timeout:  10 * time.Second,
	}
}

// Stats counts request outcomes for the whole run.
type Stats struct {
	Total     atomic.Int64
	Succeeded atomic.Int64
	Rejected  atomic.Int64 // 4xx: shortfalls, validation failures
	Failed    atomic.Int64 // 5xx and transport errors
	Skipped   atomic.Int64 // scenario had no pooled value to work with
}

// Runner owns the HTTP client, the parameter pool and the scenario mix.
type Runner struct {
	cfg     Config
	client  *http.Client
	pool    pool.ParameterPool
	limiter *rate.Limiter
	rng     *rand.Rand
	rngMu   sync.Mutex

	stats Stats
}

// New creates a Runner. The pool starts cold; Seed fills it before the
// request loops start.
func New(cfg Config) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.QPS <= 0 {
		cfg.QPS = 50
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ActorID == "" {
		cfg.ActorID = uuid.New().String()
	}

	poolCfg := pool.DefaultPoolConfig()
	poolCfg.MaxValuesPerType = 10000
	poolCfg.DefaultTTL = 30 * time.Minute
	poolCfg.ShardCount = 32

	return &Runner{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        200,
				MaxIdleConnsPerHost: 50,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		pool:    pool.NewShardedParameterPool(poolCfg),
		limiter: rate.NewLimiter(rate.Limit(cfg.QPS), int(cfg.QPS)+1),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Seed registers a load-test location and fabricates product IDs so the
// first receipts have something to reference. Products are owned by the POS
// catalog, not the ledger, so any UUID is a valid product reference here.
func (r *Runner) Seed(ctx context.Context) error {
	body := map[string]any{
		"code": fmt.Sprintf("LOADGEN-%d", time.Now().Unix()),
		"name": "Load test dispensary",
	}
	resp, err := r.post(ctx, "/api/v1/locations", body)
	if err != nil {
		return fmt.Errorf("registering load-test location: %w", err)
	}
	r.harvest(resp, map[string]pool.SemanticType{
		"id": pool.SemanticTypeLocationID,
	})

	count, err := r.pool.Count(ctx, pool.SemanticTypeLocationID)
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("location registration returned no id")
	}

	for range r.cfg.Products {
		v := pool.NewParameterValue(uuid.New().String(), pool.SemanticTypeProductID, 0)
		if _, err := r.pool.Add(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

// Run executes the scenario mix until the duration elapses or ctx is
// cancelled, then returns the final pool statistics.
func (r *Runner) Run(ctx context.Context) (pool.Stats, error) {
	if r.cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Duration)
		defer cancel()
	}

	var wg sync.WaitGroup
	for range r.cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.workerLoop(ctx)
		}()
	}
	wg.Wait()

	return r.pool.Stats(context.Background())
}

// Close releases the pool.
func (r *Runner) Close() error {
	return r.pool.Close()
}

// StatsSnapshot returns the request outcome counters.
func (r *Runner) StatsSnapshot() (total, succeeded, rejected, failed, skipped int64) {
	return r.stats.Total.Load(), r.stats.Succeeded.Load(), r.stats.Rejected.Load(),
		r.stats.Failed.Load(), r.stats.Skipped.Load()
}

func (r *Runner) workerLoop(ctx context.Context) {
	for {
		if err := r.limiter.Wait(ctx); err != nil {
			return
		}
		r.runScenario(ctx)
	}
}

// runScenario picks one weighted scenario. Receipts dominate so the pool
// keeps filling with batches the other scenarios can draw on.
func (r *Runner) runScenario(ctx context.Context) {
	r.rngMu.Lock()
	roll := r.rng.Intn(100)
	r.rngMu.Unlock()

	var err error
	switch {
	case roll < 35:
		err = r.receiveStock(ctx)
	case roll < 55:
		err = r.previewAllocation(ctx)
	case roll < 70:
		err = r.queryOnHand(ctx)
	case roll < 85:
		err = r.queryBalances(ctx)
	case roll < 95:
		err = r.queryExpiringBatches(ctx)
	default:
		err = r.adjustStock(ctx)
	}

	if err != nil {
		r.stats.Failed.Add(1)
	}
}

func (r *Runner) receiveStock(ctx context.Context) error {
	productID, locationID, ok := r.productAndLocation(ctx)
	if !ok {
		r.stats.Skipped.Add(1)
		return nil
	}

	r.rngMu.Lock()
	qty := int64(r.rng.Intn(500) + 10)
	batchNo := fmt.Sprintf("LG-%06d", r.rng.Intn(1000000))
	r.rngMu.Unlock()

	body := map[string]any{
		"product_id":   productID,
		"location_id":  locationID,
		"batch_number": batchNo,
		"expiry_date":  time.Now().AddDate(1, 0, 0).Format("2006-01-02"),
		"quantity":     qty,
		"unit_cost":    4.25,
		"reference":    "loadgen receipt " + batchNo,
	}
	resp, err := r.post(ctx, "/api/v1/ledger/receipts", body)
	if err != nil {
		return err
	}
	r.harvest(resp, map[string]pool.SemanticType{
		"batch_id":     pool.SemanticTypeBatchID,
		"batch_number": pool.SemanticTypeBatchNumber,
	})
	return nil
}

func (r *Runner) previewAllocation(ctx context.Context) error {
	pv, err := r.pool.GetRandom(ctx, pool.SemanticTypeProductID)
	if err != nil || pv == nil {
		r.stats.Skipped.Add(1)
		return err
	}

	r.rngMu.Lock()
	qty := int64(r.rng.Intn(20) + 1)
	r.rngMu.Unlock()

	_, err = r.post(ctx, "/api/v1/ledger/allocate", map[string]any{
		"product_id": pv.Value,
		"quantity":   qty,
	})
	return err
}

func (r *Runner) adjustStock(ctx context.Context) error {
	batch, err := r.pool.GetRandom(ctx, pool.SemanticTypeBatchID)
	if err != nil || batch == nil {
		r.stats.Skipped.Add(1)
		return err
	}
	productID, locationID, ok := r.productAndLocation(ctx)
	if !ok {
		r.stats.Skipped.Add(1)
		return nil
	}

	_, err = r.post(ctx, "/api/v1/ledger/adjustments", map[string]any{
		"product_id":  productID,
		"batch_id":    batch.Value,
		"location_id": locationID,
		"quantity":    int64(-1),
		"reason":      "cycle count variance",
		"reference":   "loadgen adjustment",
	})
	return err
}

func (r *Runner) queryOnHand(ctx context.Context) error {
	pv, err := r.pool.GetRandom(ctx, pool.SemanticTypeProductID)
	if err != nil || pv == nil {
		r.stats.Skipped.Add(1)
		return err
	}
	return r.get(ctx, fmt.Sprintf("/api/v1/ledger/on-hand?product_id=%v", pv.Value))
}

func (r *Runner) queryBalances(ctx context.Context) error {
	return r.get(ctx, "/api/v1/ledger/balances")
}

func (r *Runner) queryExpiringBatches(ctx context.Context) error {
	return r.get(ctx, "/api/v1/ledger/batches/expiring?within_days=90")
}

func (r *Runner) productAndLocation(ctx context.Context) (product, location any, ok bool) {
	p, err := r.pool.GetRandom(ctx, pool.SemanticTypeProductID)
	if err != nil || p == nil {
		return nil, nil, false
	}
	l, err := r.pool.GetRandom(ctx, pool.SemanticTypeLocationID)
	if err != nil || l == nil {
		return nil, nil, false
	}
	return p.Value, l.Value, true
}

func (r *Runner) post(ctx context.Context, path string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return r.do(req)
}

func (r *Runner) get(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.BaseURL+path, nil)
	if err != nil {
		return err
	}
	_, err = r.do(req)
	return err
}

func (r *Runner) do(req *http.Request) ([]byte, error) {
	req.Header.Set("X-Actor-ID", r.cfg.ActorID)

	r.stats.Total.Add(1)
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode >= 500:
		r.stats.Failed.Add(1)
		return body, fmt.Errorf("%s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	case resp.StatusCode >= 400:
		// Shortfalls and rejected refunds are expected ledger answers
		r.stats.Rejected.Add(1)
		return body, nil
	default:
		r.stats.Succeeded.Add(1)
		return body, nil
	}
}

// harvest walks a response body and pools every value whose JSON key is in
// the mapping. The ledger wraps payloads in {"success":..,"data":..}, so the
// walk is recursive rather than path-based.
func (r *Runner) harvest(body []byte, keys map[string]pool.SemanticType) {
	if len(body) == 0 {
		return
	}
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return
	}
	r.harvestNode(decoded, keys)
}

func (r *Runner) harvestNode(node any, keys map[string]pool.SemanticType) {
	switch n := node.(type) {
	case map[string]any:
		for k, v := range n {
			if st, ok := keys[k]; ok {
				if s, isStr := v.(string); isStr && s != "" {
					pv := pool.NewParameterValue(s, st, 0)
					_, _ = r.pool.Add(context.Background(), pv)
					continue
				}
			}
			r.harvestNode(v, keys)
		}
	case []any:
		for _, v := range n {
			r.harvestNode(v, keys)
		}
	}
}
