package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	sharedConfig "github.com/vetiver-inc/vetiver/internal/shared/config"
	"github.com/vetiver-inc/vetiver/internal/shared/logger"
)

const (
	defaultLogBufferLines = 200

	// logChannelCapacity bounds the stdout/stderr line channel. Producers
	// drop lines instead of blocking when the consumer falls behind.
	logChannelCapacity = 256

	attachProbeTimeout = 2 * time.Second
	spawnProbeInterval = 500 * time.Millisecond
	spawnProbeAttempts = 20
	stopGracePeriod    = 5 * time.Second
)

// Master supervises the locally run proxy engine: process lifecycle,
// stdout/stderr capture, and the same control-API surface remote nodes
// expose. When an engine is already listening on the control port, Start
// attaches to it instead of spawning a second process.
type Master struct {
	cfg    sharedConfig.MasterConfig
	client *Client
	logger logger.Interface

	mu      sync.Mutex
	cmd     *exec.Cmd
	exited  chan struct{}
	owned   bool
	running bool
	version string

	window *logWindow
}

// NewMaster creates a master supervisor from config
func NewMaster(cfg sharedConfig.MasterConfig, log logger.Interface) *Master {
	bufLines := cfg.LogBufferLines
	if bufLines <= 0 {
		bufLines = defaultLogBufferLines
	}
	return &Master{
		cfg:    cfg,
		client: NewClient(cfg.APIHost, uint16(cfg.APIPort), cfg.APIToken, 0),
		logger: log.Named("master"),
		window: newLogWindow(bufLines),
	}
}

// Start brings the local engine up: attach when one is already serving the
// control API, otherwise spawn the configured binary and wait for its API
// to answer a version probe.
func (m *Master) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, attachProbeTimeout)
	version, err := m.client.GetVersion(probeCtx)
	cancel()
	if err == nil {
		m.owned = false
		m.running = true
		m.version = version
		m.logger.Infow("attached to running engine", "version", version)
		return nil
	}

	if m.cfg.BinaryPath == "" {
		return fmt.Errorf("%w: no engine on control port and no binary configured", ErrUnreachable)
	}

	cmd := exec.Command(m.cfg.BinaryPath, m.binaryArgs()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start engine binary: %w", err)
	}

	// Two pipe scanners feed one bounded channel; a single consumer logs
	// the lines and keeps the recent window. Wait runs only after both
	// scanners hit EOF, per the os/exec pipe contract.
	lines := make(chan string, logChannelCapacity)
	exited := make(chan struct{})
	var scanners sync.WaitGroup
	scanners.Add(2)
	go scanLines(stdout, lines, &scanners)
	go scanLines(stderr, lines, &scanners)
	go m.consumeLines(lines)
	go m.supervise(cmd, &scanners, lines, exited)

	version, err = m.probeSpawned(ctx)
	if err != nil {
		m.logger.Errorw("engine did not answer after spawn", "error", err)
		_ = cmd.Process.Kill()
		return err
	}

	m.cmd = cmd
	m.exited = exited
	m.owned = true
	m.running = true
	m.version = version
	m.logger.Infow("engine started", "pid", cmd.Process.Pid, "version", version)
	return nil
}

// Stop brings a spawned engine down with SIGTERM, escalating to SIGKILL
// after the grace period. Attached engines are only detached.
func (m *Master) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	if !m.owned || m.cmd == nil {
		m.running = false
		m.version = ""
		m.logger.Infow("detached from engine")
		return nil
	}

	cmd, exited := m.cmd, m.exited
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		_ = cmd.Process.Kill()
	}
	select {
	case <-exited:
	case <-time.After(stopGracePeriod):
		m.logger.Warnw("engine ignored SIGTERM, killing", "pid", cmd.Process.Pid)
		_ = cmd.Process.Kill()
		<-exited
	}

	m.cmd = nil
	m.exited = nil
	m.owned = false
	m.running = false
	m.version = ""
	return nil
}

// Restart restarts the engine. Attached engines restart through their
// control API with cfg; spawned engines are stopped and started again.
func (m *Master) Restart(ctx context.Context, cfg Config) error {
	m.mu.Lock()
	attached := m.running && !m.owned
	m.mu.Unlock()

	if attached {
		if err := m.client.Restart(ctx, cfg); err != nil {
			return err
		}
		version, err := m.client.GetVersion(ctx)
		if err != nil {
			return err
		}
		m.mu.Lock()
		m.version = version
		m.mu.Unlock()
		return nil
	}

	if err := m.Stop(); err != nil {
		return err
	}
	return m.Start(ctx)
}

// IsRunning reports whether the engine is up (spawned or attached)
func (m *Master) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Version returns the engine version from the last successful probe
func (m *Master) Version() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version
}

// RecentLogs returns up to n recent output lines, oldest first
func (m *Master) RecentLogs(n int) []string {
	return m.window.snapshot(n)
}

// PullUserStats reads and resets per-user counters
func (m *Master) PullUserStats(ctx context.Context) ([]UserStat, error) {
	if !m.IsRunning() {
		return nil, ErrNotRunning
	}
	return m.client.GetUserStats(ctx, true)
}

// PullOutboundStats reads and resets the aggregate outbound counters
func (m *Master) PullOutboundStats(ctx context.Context) (*OutboundStat, error) {
	if !m.IsRunning() {
		return nil, ErrNotRunning
	}
	return m.client.GetOutboundStats(ctx, true)
}

func (m *Master) binaryArgs() []string {
	if m.cfg.ConfigPath == "" {
		return nil
	}
	return []string{"-c", m.cfg.ConfigPath}
}

func (m *Master) probeSpawned(ctx context.Context) (string, error) {
	var lastErr error
	for attempt := 0; attempt < spawnProbeAttempts; attempt++ {
		probeCtx, cancel := context.WithTimeout(ctx, attachProbeTimeout)
		version, err := m.client.GetVersion(probeCtx)
		cancel()
		if err == nil {
			return version, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(spawnProbeInterval):
		}
	}
	return "", fmt.Errorf("engine never answered version probe: %w", lastErr)
}

func (m *Master) consumeLines(lines <-chan string) {
	for line := range lines {
		m.logger.Debugw("engine output", "line", line)
		m.window.append(line)
	}
}

// supervise reaps the process after both pipes drain and clears the
// running state unless Stop already took the process over.
func (m *Master) supervise(cmd *exec.Cmd, scanners *sync.WaitGroup, lines chan string, exited chan struct{}) {
	scanners.Wait()
	close(lines)
	err := cmd.Wait()
	close(exited)

	m.mu.Lock()
	if m.cmd == cmd {
		m.cmd = nil
		m.exited = nil
		m.owned = false
		m.running = false
		m.version = ""
		m.logger.Warnw("engine process exited", "error", err)
	}
	m.mu.Unlock()
}

func scanLines(r io.Reader, lines chan<- string, wg *sync.WaitGroup) {
	defer wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		default:
			// Consumer is behind; dropping beats blocking the pipe.
		}
	}
}

// logWindow keeps the most recent output lines for the ops API. Only the
// consumer goroutine appends; readers take snapshots.
type logWindow struct {
	mu    sync.Mutex
	max   int
	lines []string
}

func newLogWindow(max int) *logWindow {
	return &logWindow{
		max:   max,
		lines: make([]string, 0, max),
	}
}

func (w *logWindow) append(line string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.lines) == w.max {
		copy(w.lines, w.lines[1:])
		w.lines = w.lines[:len(w.lines)-1]
	}
	w.lines = append(w.lines, line)
}

func (w *logWindow) snapshot(n int) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if n <= 0 || n > len(w.lines) {
		n = len(w.lines)
	}
	out := make([]string, n)
	copy(out, w.lines[len(w.lines)-n:])
	return out
}
