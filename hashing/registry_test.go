package hashing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, handler http.HandlerFunc) (*Registry, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	reg := NewRegistry("header.payload.sign", func(region string) (string, error) {
		return srv.URL, nil
	})
	return reg, &calls
}

const expectedBody = `{"g1":{"specification":["description"],"position":["time"],"order":["expirationTime"]},` +
	`"g2":{"specification":["pipSize"],"position":["comment"],"order":["brokerComment"]}}`

func TestRegistry_Retrieve(t *testing.T) {
	var gotAuthHeader string
	reg, calls := newTestRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuthHeader = r.Header.Get("auth-token")
		assert.Equal(t, "/hashing-ignored-field-lists", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(expectedBody))
	})

	fields, err := reg.Get(context.Background(), "vint-hill", GenerationG1)
	require.NoError(t, err)
	assert.Equal(t, []string{"description"}, fields.Specification)
	assert.Equal(t, []string{"time"}, fields.Position)
	assert.Equal(t, []string{"expirationTime"}, fields.Order)
	assert.Equal(t, "header.payload.sign", gotAuthHeader)
	assert.EqualValues(t, 1, *calls)
}

func TestRegistry_ReturnsCachedData(t *testing.T) {
	reg, calls := newTestRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(expectedBody))
	})

	_, err := reg.Get(context.Background(), "vint-hill", GenerationG2)
	require.NoError(t, err)
	_, err = reg.Get(context.Background(), "vint-hill", GenerationG2)
	require.NoError(t, err)

	assert.EqualValues(t, 1, *calls)
}

func TestRegistry_UpdatesWhenCacheExpired(t *testing.T) {
	reg, calls := newTestRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(expectedBody))
	})

	_, err := reg.Get(context.Background(), "vint-hill", GenerationG1)
	require.NoError(t, err)

	// simulate the 1h TTL having elapsed by backdating the cache entry
	reg.mu.Lock()
	entry := reg.cached["vint-hill"]
	entry.fetchedAt = entry.fetchedAt.Add(-(cacheTTL + 1))
	reg.cached["vint-hill"] = entry
	reg.mu.Unlock()

	_, err = reg.Get(context.Background(), "vint-hill", GenerationG1)
	require.NoError(t, err)

	assert.EqualValues(t, 2, *calls)
}

func TestRegistry_CoalescesConcurrentCallers(t *testing.T) {
	reg, calls := newTestRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(expectedBody))
	})

	var wg sync.WaitGroup
	results := make([]FieldLists, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = reg.Get(context.Background(), "vint-hill", GenerationG1)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, results[0], results[1])
	assert.EqualValues(t, 1, *calls)
}

func TestRegistry_ConcurrentCallersShareFailure(t *testing.T) {
	reg, _ := newTestRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "test", http.StatusInternalServerError)
	})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = reg.Get(context.Background(), "vint-hill", GenerationG1)
		}(i)
	}
	wg.Wait()

	require.Error(t, errs[0])
	require.Error(t, errs[1])
	assert.Equal(t, errs[0].Error(), errs[1].Error())

	reg.mu.Lock()
	_, cached := reg.cached["vint-hill"]
	reg.mu.Unlock()
	assert.False(t, cached, "a failed fetch must never populate the cache")
}

func TestRegistry_ResolverErrorSurfaces(t *testing.T) {
	reg := NewRegistry("tok", func(region string) (string, error) {
		return "", errors.New("no route for region")
	})
	_, err := reg.Get(context.Background(), "unknown", GenerationG1)
	require.Error(t, err)
}
