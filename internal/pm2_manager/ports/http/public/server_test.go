package public

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/langowen/exchange-rates/internal/entities"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockManager struct {
	mock.Mock
}

func (m *MockManager) Status(ctx context.Context) ([]entities.Process, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entities.Process), args.Error(1)
}

func (m *MockManager) Restart(ctx context.Context, name string) error {
	return m.Called(ctx, name).Error(0)
}

func serve(t *testing.T, manager ProcessManager, method, target string) *httptest.ResponseRecorder {
	t.Helper()

	s := NewServer(nil, manager)
	s.now = func() time.Time { return time.Date(2024, 1, 10, 3, 0, 0, 0, time.UTC) }

	rec := httptest.NewRecorder()
	NewRouter(s).ServeHTTP(rec, httptest.NewRequest(method, target, nil))

	return rec
}

func TestStatus(t *testing.T) {
	manager := &MockManager{}
	manager.On("Status", mock.Anything).Return([]entities.Process{
		{ID: 0, Name: "exchange-api", Status: "online", MemoryBytes: 50 << 20, CPUPercent: 1.5},
		{ID: 1, Name: "ingest-trigger", Status: "stopped", MemoryBytes: 0, CPUPercent: 0},
		{ID: 2, Name: "pm2-manager", Status: "errored", MemoryBytes: 1 << 19, CPUPercent: 0.25},
	}, nil)

	rec := serve(t, manager, http.MethodGet, "/api/pm2/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "2024-01-10T03:00:00Z", resp.Timestamp)
	assert.Equal(t, Summary{
		Total:         3,
		Online:        1,
		Stopped:       1,
		Errored:       1,
		TotalMemoryMB: 50.5,
		AvgCPUPercent: 0.58,
	}, resp.Summary)
	require.Len(t, resp.Processes, 3)
	assert.Equal(t, "exchange-api", resp.Processes[0].Name)
}

func TestStatus_ManagerFailure(t *testing.T) {
	manager := &MockManager{}
	manager.On("Status", mock.Anything).Return(nil, errors.Wrap(entities.ErrProcessCommand, "daemon not running"))

	rec := serve(t, manager, http.MethodGet, "/api/pm2/status")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestRestart(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"restarted", nil, http.StatusOK},
		{"unknown process", entities.ErrProcessNotFound, http.StatusNotFound},
		{"bad name", entities.ErrValidation, http.StatusBadRequest},
		{"pm2 failed", entities.ErrProcessCommand, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := &MockManager{}
			manager.On("Restart", mock.Anything, "exchange-api").Return(tt.err).Once()

			rec := serve(t, manager, http.MethodPost, "/api/pm2/process/name/exchange-api/restart")
			assert.Equal(t, tt.want, rec.Code)

			var resp RestartResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.err == nil, resp.Success)

			manager.AssertExpectations(t)
		})
	}
}

func TestRestart_RequiresPost(t *testing.T) {
	manager := &MockManager{}

	rec := serve(t, manager, http.MethodGet, "/api/pm2/process/name/exchange-api/restart")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	manager.AssertNotCalled(t, "Restart", mock.Anything, mock.Anything)
}

func TestHealth(t *testing.T) {
	rec := serve(t, &MockManager{}, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","timestamp":"2024-01-10T03:00:00Z"}`, rec.Body.String())
}
