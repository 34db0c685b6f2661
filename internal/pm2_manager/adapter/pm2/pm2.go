package pm2

import (
	"bytes"
	"context"
	"encoding/json"
	"github.com/langowen/exchange-rates/internal/entities"
	"github.com/pkg/errors"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

var processName = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// Runner executes the pm2 binary and returns its stdout and stderr.
type Runner interface {
	Run(ctx context.Context, binary string, args ...string) (stdout, stderr []byte, err error)
}

type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, binary string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	return stdout.Bytes(), stderr.Bytes(), err
}

type Manager struct {
	runner  Runner
	binary  string
	timeout time.Duration
}

func NewManager(runner Runner, binary string, timeout time.Duration) *Manager {
	if runner == nil {
		runner = ExecRunner{}
	}
	if binary == "" {
		binary = "pm2"
	}

	return &Manager{runner: runner, binary: binary, timeout: timeout}
}

type jlistEntry struct {
	PID   int    `json:"pid"`
	Name  string `json:"name"`
	PMID  int    `json:"pm_id"`
	Monit struct {
		Memory int64   `json:"memory"`
		CPU    float64 `json:"cpu"`
	} `json:"monit"`
	Env struct {
		Status      string `json:"status"`
		Namespace   string `json:"namespace"`
		Version     string `json:"version"`
		RestartTime int    `json:"restart_time"`
		PMUptime    int64  `json:"pm_uptime"`
		ExecMode    string `json:"exec_mode"`
	} `json:"pm2_env"`
}

// Status lists every process pm2 knows about.
func (m *Manager) Status(ctx context.Context) ([]entities.Process, error) {
	const op = "pm2.Status"

	stdout, _, err := m.run(ctx, "jlist")
	if err != nil {
		return nil, errors.Wrap(err, op)
	}

	var entries []jlistEntry
	if err := json.Unmarshal(bytes.TrimSpace(stdout), &entries); err != nil {
		return nil, errors.Wrapf(entities.ErrProcessCommand, "%s: decode jlist: %v", op, err)
	}

	processes := make([]entities.Process, 0, len(entries))
	for _, e := range entries {
		p := entities.Process{
			ID:          e.PMID,
			Name:        e.Name,
			Namespace:   e.Env.Namespace,
			Version:     e.Env.Version,
			Status:      e.Env.Status,
			Restarts:    e.Env.RestartTime,
			CPUPercent:  e.Monit.CPU,
			MemoryBytes: e.Monit.Memory,
			PID:         e.PID,
			ExecMode:    e.Env.ExecMode,
		}
		if p.Namespace == "" {
			p.Namespace = "default"
		}
		if e.Env.PMUptime > 0 {
			p.UptimeSince = time.UnixMilli(e.Env.PMUptime).UTC()
		}
		processes = append(processes, p)
	}

	return processes, nil
}

// Restart restarts the named process.
func (m *Manager) Restart(ctx context.Context, name string) error {
	const op = "pm2.Restart"

	if !processName.MatchString(name) {
		return errors.Wrapf(entities.ErrValidation, "%s: invalid process name %q", op, name)
	}

	if _, _, err := m.run(ctx, "restart", name, "--no-color"); err != nil {
		return errors.Wrap(err, op)
	}

	return nil
}

func (m *Manager) run(ctx context.Context, args ...string) ([]byte, []byte, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	stdout, stderr, err := m.runner.Run(ctx, m.binary, args...)
	if err == nil {
		return stdout, stderr, nil
	}

	msg := strings.TrimSpace(string(stderr))
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return nil, nil, errors.Wrapf(entities.ErrProcessCommand, "%s %s: timed out", m.binary, args[0])
	case strings.Contains(strings.ToLower(msg), "not found"):
		return nil, nil, errors.Wrap(entities.ErrProcessNotFound, msg)
	default:
		return nil, nil, errors.Wrapf(entities.ErrProcessCommand, "%s %s: %v: %s", m.binary, args[0], err, msg)
	}
}
