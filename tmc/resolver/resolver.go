// Package resolver turns TMC location codes into coordinates: it checks
// a local, operator-supplied file first, and falls back to querying the
// Overpass API (OpenStreetMap) in rate-limited batches when the location
// isn't available locally.
//
// Grounded on the teacher's retry/backoff posture in
// handler.ReadNextRTCM3Message (attempt counters, capped retries) and its
// daily-logger mutex-guarded shared state, generalized here to an
// HTTP-backed lookup with its own caching and request deduplication.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LocationStatus distinguishes a resolved location from a confirmed miss.
type LocationStatus int

const (
	Resolved LocationStatus = iota
	NotFound
)

// ResolvedLocation is the outcome of resolving a single TMC location code.
type ResolvedLocation struct {
	LCD     uint32
	Lat     float64
	Lon     float64
	Name    string
	RoadRef string
	PrevLCD uint32
	NextLCD uint32
	Status  LocationStatus
}

type cacheKey struct {
	CID, TABCD uint16
	LCD        uint32
}

type groupKey struct {
	CID, TABCD uint16
}

// Resolver resolves TMC (location_table, country, location_code) triples
// to coordinates, preferring local files and falling back to Overpass.
type Resolver struct {
	LocalDir   string
	HTTPClient *http.Client
	Endpoints  []string
	BatchSize  int
	Timeout    time.Duration

	limiter *rate.Limiter

	mu             sync.Mutex
	locationCache  map[cacheKey]ResolvedLocation
	strategyCache  map[groupKey]strategyKind
	localGroups    map[groupKey]map[uint32]ResolvedLocation
	localUnknown   map[groupKey]bool
	activeEndpoint int

	pendingMu sync.Mutex
	pending   map[cacheKey]chan struct{}
}

// New creates a Resolver. minBatchInterval is the minimum delay enforced
// between successive remote batch requests.
func New(localDir string, endpoints []string, batchSize int, minBatchInterval, timeout time.Duration) *Resolver {
	if batchSize <= 0 {
		batchSize = 50
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Resolver{
		LocalDir:      localDir,
		HTTPClient:    &http.Client{},
		Endpoints:     endpoints,
		BatchSize:     batchSize,
		Timeout:       timeout,
		limiter:       rate.NewLimiter(rate.Every(minBatchInterval), 1),
		locationCache: make(map[cacheKey]ResolvedLocation),
		strategyCache: make(map[groupKey]strategyKind),
		localGroups:   make(map[groupKey]map[uint32]ResolvedLocation),
		localUnknown:  make(map[groupKey]bool),
		pending:       make(map[cacheKey]chan struct{}),
	}
}

// Resolve resolves every lcd in lcds within the (cid, tabcd) location
// table, serving from cache (including NotFound) and local files first,
// deduplicating against any identical in-flight remote lookups, and
// querying Overpass in BatchSize-sized chunks for the rest.
func (r *Resolver) Resolve(ctx context.Context, lcds []uint32, cid, tabcd uint16) (map[uint32]ResolvedLocation, error) {
	results := make(map[uint32]ResolvedLocation)

	need := r.filterCached(cid, tabcd, lcds, results)
	if len(need) == 0 {
		return results, nil
	}

	need = r.resolveFromLocal(cid, tabcd, need, results)
	if len(need) == 0 {
		return results, nil
	}

	waitFor, mine := r.claimPending(cid, tabcd, need)
	defer r.releasePending(cid, tabcd, mine)

	for i := 0; i < len(mine); i += r.BatchSize {
		end := i + r.BatchSize
		if end > len(mine) {
			end = len(mine)
		}
		if err := r.resolveRemoteChunk(ctx, cid, tabcd, mine[i:end], results); err != nil {
			return results, err
		}
	}

	for _, lcd := range waitFor {
		ch := r.pendingChanFor(cid, tabcd, lcd)
		if ch != nil {
			select {
			case <-ch:
			case <-ctx.Done():
				return results, ctx.Err()
			}
		}
		r.mu.Lock()
		loc, ok := r.locationCache[cacheKey{cid, tabcd, lcd}]
		r.mu.Unlock()
		if ok {
			results[lcd] = loc
		}
	}

	return results, nil
}

func (r *Resolver) filterCached(cid, tabcd uint16, lcds []uint32, results map[uint32]ResolvedLocation) []uint32 {
	var need []uint32
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, lcd := range lcds {
		loc, ok := r.locationCache[cacheKey{cid, tabcd, lcd}]
		if ok {
			results[lcd] = loc
			continue
		}
		need = append(need, lcd)
	}
	return need
}

func (r *Resolver) resolveFromLocal(cid, tabcd uint16, need []uint32, results map[uint32]ResolvedLocation) []uint32 {
	gk := groupKey{cid, tabcd}

	r.mu.Lock()
	knownUnavailable := r.localUnknown[gk]
	group, loaded := r.localGroups[gk]
	r.mu.Unlock()

	if knownUnavailable {
		return need
	}

	if !loaded {
		group = r.loadLocalGroup(cid, tabcd)
		r.mu.Lock()
		if group == nil {
			r.localUnknown[gk] = true
		} else {
			r.localGroups[gk] = group
		}
		r.mu.Unlock()
	}
	if group == nil {
		return need
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, lcd := range need {
		loc, ok := group[lcd]
		if !ok {
			loc = ResolvedLocation{LCD: lcd, Status: NotFound}
		}
		r.locationCache[cacheKey{cid, tabcd, lcd}] = loc
		results[lcd] = loc
	}
	return nil
}

// loadLocalGroup reads the JSON blob at <LocalDir>/<cid>_<tabcd>.json,
// an object mapping stringified LCD to [lat, lon, name, prev_lcd,
// next_lcd].
func (r *Resolver) loadLocalGroup(cid, tabcd uint16) map[uint32]ResolvedLocation {
	if r.LocalDir == "" {
		return nil
	}
	path := filepath.Join(r.LocalDir, fmt.Sprintf("%d_%d.json", cid, tabcd))
	body, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var raw map[string][]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil
	}

	group := make(map[uint32]ResolvedLocation, len(raw))
	for lcdStr, entry := range raw {
		lcd64, err := strconv.ParseUint(lcdStr, 10, 32)
		if err != nil || len(entry) < 3 {
			continue
		}
		lcd := uint32(lcd64)
		lat, _ := entry[0].(float64)
		lon, _ := entry[1].(float64)
		name, _ := entry[2].(string)
		var prev, next uint32
		if len(entry) > 3 {
			if v, ok := entry[3].(float64); ok {
				prev = uint32(v)
			}
		}
		if len(entry) > 4 {
			if v, ok := entry[4].(float64); ok {
				next = uint32(v)
			}
		}
		group[lcd] = ResolvedLocation{
			LCD: lcd, Lat: lat, Lon: lon, Name: name,
			PrevLCD: prev, NextLCD: next, Status: Resolved,
		}
	}
	return group
}

func (r *Resolver) claimPending(cid, tabcd uint16, lcds []uint32) (waitFor, mine []uint32) {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	for _, lcd := range lcds {
		key := cacheKey{cid, tabcd, lcd}
		if _, ok := r.pending[key]; ok {
			waitFor = append(waitFor, lcd)
			continue
		}
		r.pending[key] = make(chan struct{})
		mine = append(mine, lcd)
	}
	return waitFor, mine
}

func (r *Resolver) pendingChanFor(cid, tabcd uint16, lcd uint32) chan struct{} {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	return r.pending[cacheKey{cid, tabcd, lcd}]
}

// releasePending closes and removes the pending markers for lcds,
// guaranteeing waiters are woken even if the chunk fetch above returned
// early due to context cancellation.
func (r *Resolver) releasePending(cid, tabcd uint16, lcds []uint32) {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	for _, lcd := range lcds {
		key := cacheKey{cid, tabcd, lcd}
		if ch, ok := r.pending[key]; ok {
			close(ch)
			delete(r.pending, key)
		}
	}
}

func (r *Resolver) resolveRemoteChunk(ctx context.Context, cid, tabcd uint16, lcds []uint32, results map[uint32]ResolvedLocation) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}

	gk := groupKey{cid, tabcd}
	r.mu.Lock()
	known, haveKnown := r.strategyCache[gk]
	r.mu.Unlock()

	candidates := []strategyImpl{nodeTagStrategy{}, relationStrategy{}}
	if haveKnown {
		candidates = []strategyImpl{strategyForKind(known)}
	}

	var found map[uint32]ResolvedLocation
	var lastErr error
	var winningKind strategyKind
	var haveWinner bool

	// The first strategy that completes without a transport/parse error
	// wins the round, even if it matched nothing: an empty Overpass
	// result is a legitimate negative answer, not a reason to keep
	// trying other query shapes.
	for _, s := range candidates {
		query := s.buildQuery(cid, tabcd, lcds)
		body, err := r.queryOverpass(ctx, query)
		if err != nil {
			lastErr = err
			continue
		}
		parsed, err := s.parse(body)
		if err != nil {
			lastErr = err
			continue
		}
		found = parsed
		winningKind = s.kind()
		haveWinner = true
		break
	}

	if !haveWinner {
		if lastErr != nil {
			return lastErr
		}
		found = map[uint32]ResolvedLocation{}
	} else {
		r.mu.Lock()
		r.strategyCache[gk] = winningKind
		r.mu.Unlock()
	}

	r.mu.Lock()
	for _, lcd := range lcds {
		key := cacheKey{cid, tabcd, lcd}
		loc, ok := found[lcd]
		if !ok {
			loc = ResolvedLocation{LCD: lcd, Status: NotFound}
		}
		r.locationCache[key] = loc
		results[lcd] = loc
	}
	r.mu.Unlock()

	return nil
}

// queryOverpass issues query against the endpoint rotation, retrying on
// failure or on a 429/504 response with an increasing backoff, and
// rotating to the next endpoint ((active+attempt) mod N) on every retry.
func (r *Resolver) queryOverpass(ctx context.Context, query string) ([]byte, error) {
	if len(r.Endpoints) == 0 {
		return nil, fmt.Errorf("resolver: no overpass endpoints configured")
	}

	var lastErr error
	for attempt := 0; attempt < len(r.Endpoints); attempt++ {
		if attempt > 0 {
			backoff := time.Duration(2000*attempt) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		idx := (r.activeEndpoint + attempt) % len(r.Endpoints)
		endpoint := r.Endpoints[idx]

		reqCtx, cancel := context.WithTimeout(ctx, r.Timeout)
		body, status, err := r.doRequest(reqCtx, endpoint, query)
		cancel()

		if err != nil {
			lastErr = err
			continue
		}
		if status == http.StatusTooManyRequests || status == http.StatusGatewayTimeout {
			lastErr = fmt.Errorf("resolver: overpass endpoint %s returned status %d", endpoint, status)
			continue
		}
		if status != http.StatusOK {
			lastErr = fmt.Errorf("resolver: overpass endpoint %s returned status %d", endpoint, status)
			continue
		}

		r.activeEndpoint = idx
		return body, nil
	}
	return nil, fmt.Errorf("resolver: all overpass endpoints failed: %w", lastErr)
}

func (r *Resolver) doRequest(ctx context.Context, endpoint, query string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader("data="+url.QueryEscape(query)))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := r.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

// ClearCache drops every cached location, strategy choice and local-file
// group, e.g. after the operator refreshes the local TMC files.
func (r *Resolver) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locationCache = make(map[cacheKey]ResolvedLocation)
	r.strategyCache = make(map[groupKey]strategyKind)
	r.localGroups = make(map[groupKey]map[uint32]ResolvedLocation)
	r.localUnknown = make(map[groupKey]bool)
}

// CacheSize returns the number of (cid, tabcd, lcd) entries currently
// cached, including negative entries.
func (r *Resolver) CacheSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locationCache)
}
