package cfpb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"stealthcompany.com/complaints/internal/retry"
)

func quickRetry() retry.Policy {
	return retry.Policy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2,
	}
}

func complaint(id string) map[string]any {
	return map[string]any{
		"complaint_id":  id,
		"date_received": "2023-01-02",
		"company":       "ACME BANK",
		"product":       "Checking or savings account",
		"state":         "NY",
	}
}

func dataset(n int) []map[string]any {
	out := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, complaint(strconv.Itoa(1000+i)))
	}
	return out
}

// searchServer serves a fixed dataset the way the complaint search API pages
// it, recording every request it sees.
type searchServer struct {
	mu       sync.Mutex
	records  []map[string]any
	bareList bool
	requests []url.Values

	*httptest.Server
}

func newSearchServer(records []map[string]any, bareList bool) *searchServer {
	s := &searchServer{records: records, bareList: bareList}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

func (s *searchServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.URL.Query())
	s.mu.Unlock()

	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	frm, _ := strconv.Atoi(r.URL.Query().Get("frm"))

	hits := make([]map[string]any, 0, size)
	for i := frm; i < len(s.records) && i < frm+size; i++ {
		hits = append(hits, map[string]any{
			"_index":  "complaint-public",
			"_id":     s.records[i]["complaint_id"],
			"_score":  0,
			"_source": s.records[i],
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if s.bareList {
		json.NewEncoder(w).Encode(hits)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		"hits": map[string]any{"hits": hits},
	})
}

func (s *searchServer) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func TestFetchPaginatesUntilShortPage(t *testing.T) {
	server := newSearchServer(dataset(7), false)
	defer server.Close()

	client := NewClient(server.URL, time.Second, WithPageSize(3))
	defer client.Close()

	records, err := client.Fetch(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, records, 7)
	require.Equal(t, "1000", records[0].ComplaintID)
	require.Equal(t, "1006", records[6].ComplaintID)

	// Three full-or-short pages: 3 + 3 + 1.
	require.Equal(t, 3, server.requestCount())
}

func TestFetchStopsAtMaxRecords(t *testing.T) {
	server := newSearchServer(dataset(6), false)
	defer server.Close()

	client := NewClient(server.URL, time.Second, WithPageSize(3))
	defer client.Close()

	records, err := client.Fetch(context.Background(), Query{MaxRecords: 5})
	require.NoError(t, err)
	require.Len(t, records, 5)

	// The second page only asks for the two remaining records.
	require.Equal(t, 2, server.requestCount())
	require.Equal(t, "3", server.requests[0].Get("size"))
	require.Equal(t, "2", server.requests[1].Get("size"))
}

func TestFetchDecodesBareListShape(t *testing.T) {
	server := newSearchServer(dataset(2), true)
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	defer client.Close()

	records, err := client.Fetch(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "ACME BANK", records[0].Company)
}

func TestFetchDropsDuplicateComplaintIDs(t *testing.T) {
	pages := [][]map[string]any{
		{complaint("1"), complaint("2"), complaint("3")},
		{complaint("3"), complaint("4")},
	}
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := pages[calls]
		calls++
		hits := make([]map[string]any, 0, len(page))
		for _, rec := range page {
			hits = append(hits, map[string]any{"_id": rec["complaint_id"], "_source": rec})
		}
		json.NewEncoder(w).Encode(map[string]any{"hits": map[string]any{"hits": hits}})
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, WithPageSize(3))
	defer client.Close()

	records, err := client.Fetch(context.Background(), Query{})
	require.NoError(t, err)

	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ComplaintID)
	}
	require.Equal(t, []string{"1", "2", "3", "4"}, ids)
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"hits": map[string]any{"hits": []map[string]any{
				{"_id": "1", "_source": complaint("1")},
			}},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, WithRetryPolicy(quickRetry()))
	defer client.Close()

	records, err := client.Fetch(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, 3, calls)
}

func TestFetchFailsFastOnClientError(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid date_received_min"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, WithRetryPolicy(quickRetry()))
	defer client.Close()

	_, err := client.Fetch(context.Background(), Query{})

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	require.Equal(t, http.StatusBadRequest, reqErr.StatusCode)
	require.Contains(t, reqErr.Body, "invalid date_received_min")
	require.Equal(t, 1, calls)
}

func TestFetchRetriesAfterRateLimit(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"hits": map[string]any{"hits": []map[string]any{}}})
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, WithRetryPolicy(quickRetry()))
	defer client.Close()

	records, err := client.Fetch(context.Background(), Query{})
	require.NoError(t, err)
	require.Empty(t, records)
	require.Equal(t, 2, calls)
}

func TestFetchEmptyRangeSkipsNetwork(t *testing.T) {
	server := newSearchServer(dataset(3), false)
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	defer client.Close()

	records, err := client.Fetch(context.Background(), Query{
		DateMin: time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC),
		DateMax: time.Date(2023, 1, 4, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Nil(t, records)
	require.Zero(t, server.requestCount())
}

func TestFetchByCompanySetsQueryParams(t *testing.T) {
	server := newSearchServer(dataset(1), false)
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	defer client.Close()

	_, err := client.FetchByCompany(context.Background(),
		"acme bank",
		time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC),
		0)
	require.NoError(t, err)
	require.Equal(t, 1, server.requestCount())

	params := server.requests[0]
	require.Equal(t, "acme bank", params.Get("search_term"))
	require.Equal(t, "company", params.Get("field"))
	require.Equal(t, "2023-01-01", params.Get("date_received_min"))
	require.Equal(t, "2023-01-05", params.Get("date_received_max"))
	require.Equal(t, "created_date_desc", params.Get("sort"))
	require.Equal(t, "true", params.Get("no_aggs"))
}

func TestFetchHonoursCancelledContext(t *testing.T) {
	server := newSearchServer(dataset(3), false)
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Fetch(ctx, Query{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestCloseIsIdempotent(t *testing.T) {
	client := NewClient("", 0)
	client.Close()
	client.Close()
}

func TestParseRetryAfter(t *testing.T) {
	require.Equal(t, 3*time.Second, parseRetryAfter("3"))
	require.Equal(t, time.Duration(0), parseRetryAfter(""))
	require.Equal(t, time.Duration(0), parseRetryAfter("soon"))

	future := time.Now().Add(time.Minute).UTC().Format(http.TimeFormat)
	require.Greater(t, parseRetryAfter(future), 30*time.Second)
}

func TestServerErrorIsTransient(t *testing.T) {
	err := retry.Transient(&ServerError{StatusCode: 503})
	require.True(t, retry.IsTransient(err))

	var srvErr *ServerError
	require.True(t, errors.As(err, &srvErr))
	require.Equal(t, 503, srvErr.StatusCode)
}
