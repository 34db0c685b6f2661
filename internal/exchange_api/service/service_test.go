package service

import (
	"context"
	"testing"
	"time"

	"github.com/langowen/exchange-rates/internal/entities"
	"github.com/langowen/exchange-rates/internal/exchange_api/adapter/api_client/koreaexim"
	"github.com/langowen/exchange-rates/internal/exchange_api/formatter"
	"github.com/langowen/exchange-rates/internal/metrics"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) Upsert(ctx context.Context, quotes []entities.RateQuote) (int, error) {
	args := m.Called(ctx, quotes)
	return args.Int(0), args.Error(1)
}

func (m *MockStorage) ReadWindow(ctx context.Context, days int) ([]entities.RateQuote, error) {
	args := m.Called(ctx, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entities.RateQuote), args.Error(1)
}

func (m *MockStorage) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type MockRateClient struct {
	mock.Mock
}

func (m *MockRateClient) FetchRates(ctx context.Context, date time.Time) ([]koreaexim.Record, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]koreaexim.Record), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Publish(ctx context.Context, event entities.RatesIngested) error {
	return m.Called(ctx, event).Error(0)
}

var (
	day = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	now = func() time.Time { return time.Date(2024, 1, 12, 3, 0, 0, 0, time.UTC) }
)

func fullPayload() []koreaexim.Record {
	return []koreaexim.Record{
		{Result: 1, CurUnit: "USD", TTB: "1,307.29", TTS: "1,333.70", DealBasR: "1,320.50"},
		{Result: 1, CurUnit: "EUR", TTB: "1,425.70", TTS: "1,454.50", DealBasR: "1,440.10"},
		{Result: 1, CurUnit: "JPY(100)", TTB: "900.10", TTS: "918.30", DealBasR: "909.20"},
		{Result: 1, CurUnit: "CNH", TTB: "180.10", TTS: "182.30", DealBasR: "181.20"},
		{Result: 1, CurUnit: "GBP", TTB: "1,650.00", TTS: "1,690.00", DealBasR: "1,670.00"},
	}
}

func newTestService(t *testing.T, opts ...Option) (*Service, *MockStorage, *MockRateClient) {
	t.Helper()

	st := &MockStorage{}
	cl := &MockRateClient{}

	svc, err := NewService(st, cl, append([]Option{WithClock(now)}, opts...)...)
	require.NoError(t, err)

	return svc, st, cl
}

func TestNewService_RequiresDependencies(t *testing.T) {
	_, err := NewService(nil, &MockRateClient{})
	assert.Error(t, err)

	_, err = NewService(&MockStorage{}, nil)
	assert.Error(t, err)
}

func TestIngest_Success(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	notifier := &MockNotifier{}

	svc, st, cl := newTestService(t, WithNotifier(notifier), WithMetrics(m))

	cl.On("FetchRates", mock.Anything, day).Return(fullPayload(), nil).Once()
	st.On("Upsert", mock.Anything, mock.MatchedBy(func(q []entities.RateQuote) bool {
		return len(q) == 4 &&
			q[0].Currency == entities.USD &&
			q[0].BuyRate.Equal(decimal.RequireFromString("1307.29")) &&
			q[2].Currency == entities.JPY100
	})).Return(4, nil).Once()
	notifier.On("Publish", mock.Anything, mock.MatchedBy(func(e entities.RatesIngested) bool {
		return e.Date == "2024-01-10" && e.Inserted == 4
	})).Return(nil).Once()

	n, err := svc.Ingest(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	st.AssertExpectations(t)
	cl.AssertExpectations(t)
	notifier.AssertExpectations(t)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestTotal.WithLabelValues("ok")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.UpsertedTotal))
}

func TestIngest_PublishFailureDoesNotFail(t *testing.T) {
	notifier := &MockNotifier{}
	svc, st, cl := newTestService(t, WithNotifier(notifier))

	cl.On("FetchRates", mock.Anything, day).Return(fullPayload(), nil)
	st.On("Upsert", mock.Anything, mock.Anything).Return(4, nil)
	notifier.On("Publish", mock.Anything, mock.Anything).Return(errors.New("redis down"))

	n, err := svc.Ingest(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestIngest_NoWriteOnFailure(t *testing.T) {
	tests := []struct {
		name    string
		records []koreaexim.Record
		err     error
		want    error
	}{
		{"provider unavailable", nil, errors.Wrap(entities.ErrUpstreamUnavailable, "HTTP 500"), entities.ErrUpstreamUnavailable},
		{"provider malformed", nil, entities.ErrUpstreamMalformed, entities.ErrUpstreamMalformed},
		{"holiday", nil, entities.ErrNoDataForDate, entities.ErrNoDataForDate},
		{
			name:    "normalization fails",
			records: []koreaexim.Record{{Result: 1, CurUnit: "USD", TTB: "n/a", TTS: "1", DealBasR: "1"}},
			want:    entities.ErrUpstreamMalformed,
		},
		{
			name:    "only unsupported currencies",
			records: []koreaexim.Record{{Result: 1, CurUnit: "GBP", TTB: "1", TTS: "1", DealBasR: "1"}},
			want:    entities.ErrNoDataForDate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.NewNop()
			svc, st, cl := newTestService(t, WithMetrics(m))

			cl.On("FetchRates", mock.Anything, day).Return(tt.records, tt.err)

			n, err := svc.Ingest(context.Background(), day)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, n)

			st.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestTotal.WithLabelValues(string(entities.KindOf(tt.want)))))
		})
	}
}

func TestIngest_StoreFailure(t *testing.T) {
	svc, st, cl := newTestService(t)

	cl.On("FetchRates", mock.Anything, day).Return(fullPayload(), nil)
	st.On("Upsert", mock.Anything, mock.Anything).Return(0, errors.Wrap(entities.ErrGatewayUnavailable, "timeout"))

	_, err := svc.Ingest(context.Background(), day)
	assert.ErrorIs(t, err, entities.ErrGatewayUnavailable)
}

func TestIngest_FutureDate(t *testing.T) {
	svc, st, cl := newTestService(t)

	_, err := svc.Ingest(context.Background(), time.Date(2024, 1, 13, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, entities.ErrInvalidDate)

	cl.AssertNotCalled(t, "FetchRates", mock.Anything, mock.Anything)
	st.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestToday_UsesLocation(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	svc, _, _ := newTestService(t, WithLocation(seoul),
		WithClock(func() time.Time { return time.Date(2024, 1, 12, 20, 0, 0, 0, time.UTC) }))

	assert.Equal(t, "2024-01-13", svc.Today().Format(entities.DateLayout))
}

func storedQuotes(t *testing.T) []entities.RateQuote {
	t.Helper()

	q, err := entities.NewRateQuote(entities.USD, day,
		decimal.RequireFromString("1307.29"), decimal.RequireFromString("1333.70"), decimal.RequireFromString("1320.50"))
	require.NoError(t, err)

	return []entities.RateQuote{*q}
}

func TestRates_FewerDatesThanRequested(t *testing.T) {
	svc, st, _ := newTestService(t)

	st.On("ReadWindow", mock.Anything, 2).Return(storedQuotes(t), nil)

	out, err := svc.Rates(context.Background(), 2, formatter.ShapeChat)
	require.NoError(t, err)

	require.Len(t, out.Data, 1)
	assert.Equal(t, "2024-01-10 USD 1320.50", out.Data[0].Text)
	assert.Equal(t, 2, out.Metadata.RequestedDays)
	assert.Equal(t, 1, out.Metadata.TotalDays)
}

func TestRates_Validation(t *testing.T) {
	svc, st, _ := newTestService(t, WithMaxWindowDays(30))

	_, err := svc.Rates(context.Background(), 0, formatter.ShapeWeb)
	assert.ErrorIs(t, err, entities.ErrInvalidWindow)

	_, err = svc.Rates(context.Background(), 31, formatter.ShapeWeb)
	assert.ErrorIs(t, err, entities.ErrInvalidWindow)

	_, err = svc.Rates(context.Background(), 3, formatter.Shape("xml"))
	assert.ErrorIs(t, err, entities.ErrInvalidFormat)

	st.AssertNotCalled(t, "ReadWindow", mock.Anything, mock.Anything)
}

func TestRates_GatewayUnavailable(t *testing.T) {
	svc, st, _ := newTestService(t)

	st.On("ReadWindow", mock.Anything, 7).Return(nil, errors.Wrap(entities.ErrGatewayUnavailable, "refused"))

	_, err := svc.Rates(context.Background(), 7, formatter.ShapeWeb)
	assert.ErrorIs(t, err, entities.ErrGatewayUnavailable)
}

func TestHealth(t *testing.T) {
	svc, st, _ := newTestService(t)

	st.On("Ping", mock.Anything).Return(nil).Once()
	assert.NoError(t, svc.Health(context.Background()))

	st.On("Ping", mock.Anything).Return(entities.ErrGatewayUnavailable).Once()
	assert.ErrorIs(t, svc.Health(context.Background()), entities.ErrGatewayUnavailable)
}

func TestLatestDate(t *testing.T) {
	svc, st, _ := newTestService(t)

	st.On("ReadWindow", mock.Anything, 1).Return([]entities.RateQuote{}, nil).Once()
	latest, err := svc.LatestDate(context.Background())
	require.NoError(t, err)
	assert.Empty(t, latest)

	st.On("ReadWindow", mock.Anything, 1).Return(storedQuotes(t), nil).Once()
	latest, err = svc.LatestDate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2024-01-10", latest)

	st.On("ReadWindow", mock.Anything, 1).Return(nil, entities.ErrGatewayUnavailable).Once()
	_, err = svc.LatestDate(context.Background())
	assert.ErrorIs(t, err, entities.ErrGatewayUnavailable)
}
