package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"pricesync-service/internal/retry"
	"pricesync-service/internal/syncerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		Multiplier:   2,
		MaxDelay:     5 * time.Millisecond,
	}
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(server.URL, "client-id", "client-secret", 5*time.Second)
	client.SetRetryPolicy(fastPolicy())
	return client, server
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func authHandler(mux *http.ServeMux) {
	mux.HandleFunc("/auth/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"access_token": "test-token"})
	})
}

func TestAuthenticateStoresToken(t *testing.T) {
	mux := http.NewServeMux()
	authHandler(mux)
	client, _ := newTestClient(t, mux)

	require.NoError(t, client.Authenticate(context.Background()))
	assert.Equal(t, "test-token", client.currentToken())
}

func TestAuthenticateFailureIsFatal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/token", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	client, _ := newTestClient(t, mux)

	err := client.Authenticate(context.Background())
	require.Error(t, err)
	assert.Equal(t, syncerr.KindAuthentication, syncerr.KindOf(err))
	assert.False(t, syncerr.IsRetryable(err))
}

func TestFetchRequiresAuthentication(t *testing.T) {
	mux := http.NewServeMux()
	client, _ := newTestClient(t, mux)

	_, err := client.FetchAllRecords(context.Background())
	require.Error(t, err)
	assert.Equal(t, syncerr.KindAuthentication, syncerr.KindOf(err))
}

func TestFetchAggregatesSubAccounts(t *testing.T) {
	mux := http.NewServeMux()
	authHandler(mux)
	mux.HandleFunc("/accounts", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		writeJSON(w, map[string]any{
			"accounts": []map[string]string{{"id": "a1"}, {"id": "a2"}},
		})
	})
	mux.HandleFunc("/accounts/a1/items", func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		if page == "1" {
			writeJSON(w, map[string]any{
				"items":       []map[string]any{{"id": "1", "sku": "A", "price": "10.00"}},
				"page":        1,
				"total_pages": 2,
			})
			return
		}
		writeJSON(w, map[string]any{
			"items":       []map[string]any{{"id": "2", "sku": "B", "price": "20.00"}},
			"page":        2,
			"total_pages": 2,
		})
	})
	mux.HandleFunc("/accounts/a2/items", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"items":       []map[string]any{{"id": "3", "sku": "C", "price": 5.5}},
			"page":        1,
			"total_pages": 1,
		})
	})

	client, _ := newTestClient(t, mux)
	require.NoError(t, client.Authenticate(context.Background()))

	records, err := client.FetchAllRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "A", records[0].SKU)
	assert.Equal(t, "5.5", records[2].Price.String())
}

func TestClientSafeForConcurrentRuns(t *testing.T) {
	mux := http.NewServeMux()
	authHandler(mux)
	mux.HandleFunc("/accounts", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"accounts": []map[string]string{{"id": "a1"}},
		})
	})
	mux.HandleFunc("/accounts/a1/items", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"items":       []map[string]any{{"id": "1", "sku": "A", "price": "10.00"}},
			"page":        1,
			"total_pages": 1,
		})
	})
	client, _ := newTestClient(t, mux)

	// Every store run authenticates and fetches on the shared client.
	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := client.Authenticate(context.Background()); err != nil {
				errs <- err
				return
			}
			records, err := client.FetchAllRecords(context.Background())
			if err != nil {
				errs <- err
				return
			}
			if len(records) != 1 {
				errs <- fmt.Errorf("expected 1 record, got %d", len(records))
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestFallbackToFlatFeedWhenAccountsEndpointMissing(t *testing.T) {
	mux := http.NewServeMux()
	authHandler(mux)
	mux.HandleFunc("/accounts", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/items", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"items":       []map[string]any{{"id": "1", "sku": "FLAT", "price": "1.00"}},
			"page":        1,
			"total_pages": 1,
		})
	})

	client, _ := newTestClient(t, mux)
	require.NoError(t, client.Authenticate(context.Background()))

	records, err := client.FetchAllRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "FLAT", records[0].SKU)
}

func TestNoFallbackOnAuthFailure(t *testing.T) {
	mux := http.NewServeMux()
	authHandler(mux)
	mux.HandleFunc("/accounts", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	mux.HandleFunc("/items", func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("flat feed must not be used when the account listing fails auth")
	})

	client, _ := newTestClient(t, mux)
	require.NoError(t, client.Authenticate(context.Background()))

	_, err := client.FetchAllRecords(context.Background())
	require.Error(t, err)
	assert.Equal(t, syncerr.KindAuthentication, syncerr.KindOf(err))
}

func TestInvalidRecordsAreDropped(t *testing.T) {
	mux := http.NewServeMux()
	authHandler(mux)
	mux.HandleFunc("/accounts", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"accounts": []map[string]string{{"id": "a1"}}})
	})
	mux.HandleFunc("/accounts/a1/items", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"items": []map[string]any{
				{"id": "", "sku": "NO-ID", "price": "1.00"},
				{"id": "2", "sku": "BAD-PRICE", "price": "not-a-number"},
				{"id": "3", "sku": "OK", "price": "3.00"},
			},
			"page":        1,
			"total_pages": 1,
		})
	})

	client, _ := newTestClient(t, mux)
	require.NoError(t, client.Authenticate(context.Background()))

	records, err := client.FetchAllRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "OK", records[0].SKU)
}

func TestRetriesServerErrorsThenSucceeds(t *testing.T) {
	var itemCalls int
	mux := http.NewServeMux()
	authHandler(mux)
	mux.HandleFunc("/accounts", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"accounts": []map[string]string{{"id": "a1"}}})
	})
	mux.HandleFunc("/accounts/a1/items", func(w http.ResponseWriter, r *http.Request) {
		itemCalls++
		if itemCalls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{
			"items":       []map[string]any{{"id": "1", "sku": "A", "price": "1.00"}},
			"page":        1,
			"total_pages": 1,
		})
	})

	client, _ := newTestClient(t, mux)
	require.NoError(t, client.Authenticate(context.Background()))

	records, err := client.FetchAllRecords(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 3, itemCalls)
}

func TestRetryExhaustionMakesExactlyMaxAttempts(t *testing.T) {
	var calls int
	mux := http.NewServeMux()
	authHandler(mux)
	mux.HandleFunc("/accounts", func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	client, _ := newTestClient(t, mux)
	require.NoError(t, client.Authenticate(context.Background()))

	_, err := client.FetchAllRecords(context.Background())
	require.Error(t, err)
	assert.Equal(t, fastPolicy().MaxAttempts, calls)
	assert.Equal(t, syncerr.KindNetwork, syncerr.KindOf(err))
}

func TestRateLimitHonorsRetryAfter(t *testing.T) {
	var calls int
	mux := http.NewServeMux()
	authHandler(mux)
	mux.HandleFunc("/accounts", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(w, map[string]any{"accounts": []map[string]string{}})
	})

	client, _ := newTestClient(t, mux)
	require.NoError(t, client.Authenticate(context.Background()))

	records, err := client.FetchAllRecords(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 2, calls)
}

func TestOtherClientErrorsAreNotRetried(t *testing.T) {
	var calls int
	mux := http.NewServeMux()
	authHandler(mux)
	mux.HandleFunc("/accounts", func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, "bad request")
	})

	client, _ := newTestClient(t, mux)
	require.NoError(t, client.Authenticate(context.Background()))

	_, err := client.FetchAllRecords(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
