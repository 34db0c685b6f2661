package koreaexim

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/langowen/exchange-rates/internal/entities"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, h http.HandlerFunc) (*HTTPClient, *atomic.Int32) {
	t.Helper()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	c := NewHTTPClient(Options{URL: srv.URL, AuthKey: "secret", Timeout: 200 * time.Millisecond})
	c.now = func() time.Time { return time.Date(2024, 1, 12, 9, 0, 0, 0, time.UTC) }

	return c, &calls
}

func TestFetchRates_Success(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("authkey"))
		assert.Equal(t, "20240110", r.URL.Query().Get("searchdate"))
		assert.Equal(t, "AP01", r.URL.Query().Get("data"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"result":1,"cur_unit":"USD","cur_nm":"미국 달러","ttb":"1,307.29","tts":"1,333.70","deal_bas_r":"1,320.50"},
			{"result":1,"cur_unit":"JPY(100)","cur_nm":"일본 옌","ttb":"900.1","tts":"918.3","deal_bas_r":"909.20"}
		]`))
	})

	records, err := c.FetchRates(context.Background(), day)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "USD", records[0].CurUnit)
	assert.Equal(t, "1,320.50", records[0].DealBasR)
	assert.Equal(t, "JPY(100)", records[1].CurUnit)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchRates_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name:    "empty payload",
			handler: func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`[]`)) },
			want:    entities.ErrNoDataForDate,
		},
		{
			name:    "not json",
			handler: func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`<html>`)) },
			want:    entities.ErrUpstreamMalformed,
		},
		{
			name:    "object instead of array",
			handler: func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"result":1}`)) },
			want:    entities.ErrUpstreamMalformed,
		},
		{
			name:    "server error",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) },
			want:    entities.ErrUpstreamUnavailable,
		},
		{
			name: "quota exceeded",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`[{"result":4}]`))
			},
			want: entities.ErrUpstreamUnavailable,
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(500 * time.Millisecond)
			},
			want: entities.ErrUpstreamUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, calls := newTestClient(t, tt.handler)

			_, err := c.FetchRates(context.Background(), day)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.NotContains(t, err.Error(), "secret")
			assert.Equal(t, int32(1), calls.Load(), "no retries expected")
		})
	}
}

func TestFetchRates_FutureDate(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := c.FetchRates(context.Background(), time.Date(2024, 1, 13, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.ErrorIs(t, err, entities.ErrInvalidDate)
	assert.Equal(t, int32(0), calls.Load())
}

func TestFetchRates_UsesProviderZone(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"result":1,"cur_unit":"USD","ttb":"1","tts":"1","deal_bas_r":"1"}]`))
	})
	c.location = seoul
	// 20:00 UTC on the 12th is already the 13th in Seoul.
	c.now = func() time.Time { return time.Date(2024, 1, 12, 20, 0, 0, 0, time.UTC) }

	_, err = c.FetchRates(context.Background(), time.Date(2024, 1, 13, 0, 0, 0, 0, time.UTC))
	assert.NoError(t, err)
}

func TestFetchRates_ConnectionRefusedHidesAuthKey(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	target := srv.URL
	srv.Close()

	c := NewHTTPClient(Options{URL: target + "/exchangeJSON", AuthKey: "TOPSECRETKEY", Timeout: 200 * time.Millisecond})
	c.now = func() time.Time { return time.Date(2024, 1, 12, 9, 0, 0, 0, time.UTC) }

	_, err := c.FetchRates(context.Background(), day)
	require.Error(t, err)
	assert.True(t, errors.Is(err, entities.ErrUpstreamUnavailable), "got %v", err)
	assert.NotContains(t, err.Error(), "TOPSECRETKEY")
	assert.NotContains(t, err.Error(), "authkey")
}
