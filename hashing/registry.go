// Package hashing fetches and caches the per-account-generation field
// lists that the terminal-state replica excludes when computing
// incremental-resync content hashes.
package hashing

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// Generation identifies a hash-normalization profile.
type Generation string

const (
	GenerationG1 Generation = "g1"
	GenerationG2 Generation = "g2"
)

// FieldLists is the set of fields ignored per record kind for a given
// account generation.
type FieldLists struct {
	Specification []string `json:"specification"`
	Position      []string `json:"position"`
	Order         []string `json:"order"`
}

// Response is the full REST payload keyed by generation.
type Response struct {
	G1 FieldLists `json:"g1"`
	G2 FieldLists `json:"g2"`
}

const cacheTTL = time.Hour

// coalescedFetch tracks an in-flight fetch so concurrent callers share
// its result instead of issuing duplicate requests.
type coalescedFetch struct {
	done chan struct{}
	resp Response
	err  error
}

// Registry caches hashing-ignored field lists per region, coalescing
// concurrent fetches and never caching a failed result.
type Registry struct {
	httpClient *resty.Client
	baseURL    func(region string) (string, error)
	authToken  string

	mu       sync.Mutex
	cached   map[string]cachedEntry
	inflight map[string]*coalescedFetch
}

type cachedEntry struct {
	value     Response
	fetchedAt time.Time
}

// URLResolver resolves a region tag to a client-api base URL, the same
// pluggable indirection the reference SDK's domain client exposes.
type URLResolver func(region string) (string, error)

// NewRegistry creates a Registry. authToken is sent as the `auth-token`
// header on every request.
func NewRegistry(authToken string, resolver URLResolver) *Registry {
	return &Registry{
		httpClient: resty.New(),
		baseURL:    resolver,
		authToken:  authToken,
		cached:     make(map[string]cachedEntry),
		inflight:   make(map[string]*coalescedFetch),
	}
}

// Get returns the hashing-ignored field lists for the given account
// generation and region, fetching and caching the full per-region
// response for one hour. A failed fetch is surfaced to the caller and
// never populates the cache.
func (r *Registry) Get(ctx context.Context, region string, gen Generation) (FieldLists, error) {
	resp, err := r.getResponse(ctx, region)
	if err != nil {
		return FieldLists{}, err
	}
	if gen == GenerationG1 {
		return resp.G1, nil
	}
	return resp.G2, nil
}

func (r *Registry) getResponse(ctx context.Context, region string) (Response, error) {
	r.mu.Lock()
	if entry, ok := r.cached[region]; ok && time.Since(entry.fetchedAt) < cacheTTL {
		r.mu.Unlock()
		return entry.value, nil
	}
	if f, ok := r.inflight[region]; ok {
		r.mu.Unlock()
		<-f.done
		return f.resp, f.err
	}

	f := &coalescedFetch{done: make(chan struct{})}
	r.inflight[region] = f
	r.mu.Unlock()

	resp, err := r.fetch(ctx, region)

	r.mu.Lock()
	f.resp, f.err = resp, err
	if err == nil {
		r.cached[region] = cachedEntry{value: resp, fetchedAt: time.Now()}
	}
	delete(r.inflight, region)
	r.mu.Unlock()
	close(f.done)

	return resp, err
}

func (r *Registry) fetch(ctx context.Context, region string) (Response, error) {
	base, err := r.baseURL(region)
	if err != nil {
		return Response{}, err
	}

	var out Response
	request := r.httpClient.R().
		SetContext(ctx).
		SetHeader("auth-token", r.authToken).
		SetResult(&out)

	resp, err := request.Get(base + "/hashing-ignored-field-lists")
	if err != nil {
		return Response{}, err
	}
	if resp.IsError() {
		return Response{}, &httpStatusError{status: resp.StatusCode(), body: resp.String()}
	}
	return out, nil
}

type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return "hashing-ignored-field-lists request failed with status " + strconv.Itoa(e.status) + ": " + e.body
}
