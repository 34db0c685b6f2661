package pm2

import (
	"context"
	"testing"
	"time"

	"github.com/langowen/exchange-rates/internal/entities"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, binary string, args ...string) ([]byte, []byte, error) {
	call := m.Called(ctx, binary, args)

	var stdout, stderr []byte
	if v := call.Get(0); v != nil {
		stdout = v.([]byte)
	}
	if v := call.Get(1); v != nil {
		stderr = v.([]byte)
	}

	return stdout, stderr, call.Error(2)
}

const jlist = `[
	{"pid":4120,"name":"exchange-api","pm_id":0,"monit":{"memory":52428800,"cpu":1.5},
	 "pm2_env":{"status":"online","namespace":"rates","version":"1.2.0","restart_time":3,"pm_uptime":1704862800000,"exec_mode":"fork_mode"}},
	{"pid":0,"name":"ingest-trigger","pm_id":1,"monit":{"memory":0,"cpu":0},
	 "pm2_env":{"status":"stopped","restart_time":0,"pm_uptime":0,"exec_mode":"fork_mode"}}
]`

func TestStatus(t *testing.T) {
	runner := &MockRunner{}
	runner.On("Run", mock.Anything, "pm2", []string{"jlist"}).Return([]byte(jlist), nil, nil)

	m := NewManager(runner, "", time.Second)

	procs, err := m.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, procs, 2)

	assert.Equal(t, "exchange-api", procs[0].Name)
	assert.Equal(t, "online", procs[0].Status)
	assert.Equal(t, "rates", procs[0].Namespace)
	assert.Equal(t, 3, procs[0].Restarts)
	assert.Equal(t, int64(52428800), procs[0].MemoryBytes)
	assert.Equal(t, time.Date(2024, 1, 10, 5, 0, 0, 0, time.UTC), procs[0].UptimeSince)

	assert.Equal(t, "default", procs[1].Namespace)
	assert.True(t, procs[1].UptimeSince.IsZero())

	runner.AssertExpectations(t)
}

func TestStatus_Failures(t *testing.T) {
	tests := []struct {
		name   string
		stdout string
		stderr string
		err    error
	}{
		{"command fails", "", "daemon not running", errors.New("exit status 1")},
		{"garbage output", "not json", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &MockRunner{}
			runner.On("Run", mock.Anything, "pm2", []string{"jlist"}).
				Return([]byte(tt.stdout), []byte(tt.stderr), tt.err)

			_, err := NewManager(runner, "pm2", time.Second).Status(context.Background())
			assert.ErrorIs(t, err, entities.ErrProcessCommand)
		})
	}
}

func TestRestart(t *testing.T) {
	runner := &MockRunner{}
	runner.On("Run", mock.Anything, "pm2", []string{"restart", "exchange-api", "--no-color"}).
		Return([]byte("[PM2] Done"), nil, nil).Once()

	require.NoError(t, NewManager(runner, "pm2", time.Second).Restart(context.Background(), "exchange-api"))
	runner.AssertExpectations(t)
}

func TestRestart_NotFound(t *testing.T) {
	runner := &MockRunner{}
	runner.On("Run", mock.Anything, "pm2", []string{"restart", "ghost", "--no-color"}).
		Return(nil, []byte("[PM2][ERROR] Process or Namespace ghost not found"), errors.New("exit status 1"))

	err := NewManager(runner, "pm2", time.Second).Restart(context.Background(), "ghost")
	assert.ErrorIs(t, err, entities.ErrProcessNotFound)
}

func TestRestart_InvalidName(t *testing.T) {
	runner := &MockRunner{}

	for _, name := range []string{"", "all; rm -rf /", "../x y"} {
		err := NewManager(runner, "pm2", time.Second).Restart(context.Background(), name)
		assert.ErrorIs(t, err, entities.ErrValidation, name)
	}

	runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_Timeout(t *testing.T) {
	runner := &MockRunner{}
	runner.On("Run", mock.Anything, "pm2", []string{"jlist"}).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, nil, context.DeadlineExceeded)

	_, err := NewManager(runner, "pm2", 10*time.Millisecond).Status(context.Background())
	require.ErrorIs(t, err, entities.ErrProcessCommand)
	assert.Contains(t, err.Error(), "timed out")
}
