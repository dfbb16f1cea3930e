// Package supervise launches and watches the skills-host and python-bridge
// subprocesses.
//
// The supervisor owns the subprocess handles exclusively: it starts the
// services in parallel, verifies their ports are free first, parses the
// structured progress markers they print during initialization, polls their
// health URLs, and terminates them gracefully on shutdown. A crashed service
// is marked unhealthy but never restarted automatically — restart is an
// explicit operation so the failure can be surfaced to the user first.
package supervise

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// ProgressPrefix marks a structured progress line on a service's stdout or
// stderr. The rest of the line is a JSON object with percent and message.
const ProgressPrefix = "ORAKLE_PROGRESS "

// Default operation budgets.
const (
	DefaultStartupTimeout  = 600 * time.Second // heavy ML initialization
	DefaultShutdownTimeout = 20 * time.Second
	healthPollInterval     = 500 * time.Millisecond
)

// State is a service's lifecycle state as observed by the supervisor.
type State string

const (
	StateStopped   State = "stopped"
	StateStarting  State = "starting"
	StateRunning   State = "running"
	StateUnhealthy State = "unhealthy"
)

// Progress is a parsed startup progress marker.
type Progress struct {
	// Percent is the completion estimate in [0, 100].
	Percent float64 `json:"percent"`

	// Message describes the current initialization step.
	Message string `json:"message"`
}

// Update is one state or progress transition pushed to observers.
type Update struct {
	Service  string    `json:"service"`
	State    State     `json:"state"`
	Progress *Progress `json:"progress,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// ServiceConfig describes one supervised subprocess.
type ServiceConfig struct {
	// Name identifies the service in updates and logs (e.g., "skills-host").
	Name string

	// Command is the argv to spawn. Must be non-empty.
	Command []string

	// Port is the loopback TCP port the service will listen on. Checked for
	// availability before spawning.
	Port int

	// HealthURL is polled until it answers 200 during startup and on the
	// periodic health loop.
	HealthURL string

	// StartupTimeout bounds the wait for the first healthy response. Defaults
	// to [DefaultStartupTimeout].
	StartupTimeout time.Duration
}

// service is the supervisor's private per-process state.
type service struct {
	cfg ServiceConfig

	mu    sync.Mutex
	state State
	cmd   *exec.Cmd
	// exited is closed by the wait goroutine when the process terminates.
	exited chan struct{}
}

// Supervisor manages the configured services. Safe for concurrent use.
type Supervisor struct {
	services   []*service
	httpClient *http.Client

	obsMu     sync.Mutex
	observers map[chan Update]struct{}

	shutdownTimeout time.Duration
}

// Option is a functional option for Supervisor.
type Option func(*Supervisor)

// WithHTTPClient replaces the health-poll HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Supervisor) { s.httpClient = c }
}

// WithShutdownTimeout bounds the graceful-stop wait before a force kill.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// New constructs a Supervisor for the given services.
func New(configs []ServiceConfig, opts ...Option) (*Supervisor, error) {
	s := &Supervisor{
		httpClient:      &http.Client{Timeout: 5 * time.Second},
		observers:       map[chan Update]struct{}{},
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, cfg := range configs {
		if cfg.Name == "" {
			return nil, fmt.Errorf("supervise: service with empty name")
		}
		if len(cfg.Command) == 0 {
			return nil, fmt.Errorf("supervise: service %q has no command", cfg.Name)
		}
		if cfg.StartupTimeout <= 0 {
			cfg.StartupTimeout = DefaultStartupTimeout
		}
		s.services = append(s.services, &service{cfg: cfg, state: StateStopped})
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Subscribe registers an observer for state and progress updates. The
// returned cancel function must be called to release the subscription. Slow
// observers lose updates rather than blocking the supervisor.
func (s *Supervisor) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, 32)
	s.obsMu.Lock()
	s.observers[ch] = struct{}{}
	s.obsMu.Unlock()

	cancel := func() {
		s.obsMu.Lock()
		if _, ok := s.observers[ch]; ok {
			delete(s.observers, ch)
			close(ch)
		}
		s.obsMu.Unlock()
	}
	return ch, cancel
}

// publish fans an update out to all observers without blocking.
func (s *Supervisor) publish(u Update) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	for ch := range s.observers {
		select {
		case ch <- u:
		default:
		}
	}
}

// States returns a snapshot of every service's current state, keyed by name.
func (s *Supervisor) States() map[string]State {
	out := make(map[string]State, len(s.services))
	for _, svc := range s.services {
		svc.mu.Lock()
		out[svc.cfg.Name] = svc.state
		svc.mu.Unlock()
	}
	return out
}

// Healthy reports whether the named service is currently running.
func (s *Supervisor) Healthy(name string) bool {
	for _, svc := range s.services {
		if svc.cfg.Name != name {
			continue
		}
		svc.mu.Lock()
		defer svc.mu.Unlock()
		return svc.state == StateRunning
	}
	return false
}

// StartAll verifies ports, spawns every service, and waits until each one
// answers its health URL. Services start in parallel; the first failure
// cancels the remaining waits and is returned.
func (s *Supervisor) StartAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, svc := range s.services {
		g.Go(func() error {
			return s.startOne(ctx, svc)
		})
	}
	return g.Wait()
}

// startOne runs the full startup sequence for one service.
func (s *Supervisor) startOne(ctx context.Context, svc *service) error {
	svc.mu.Lock()
	if svc.state == StateStarting || svc.state == StateRunning {
		svc.mu.Unlock()
		return fmt.Errorf("supervise: %s is already %s", svc.cfg.Name, svc.state)
	}
	svc.mu.Unlock()

	if err := PortFree(svc.cfg.Port); err != nil {
		return fmt.Errorf("supervise: cannot start %s: %w", svc.cfg.Name, err)
	}

	cmd := exec.Command(svc.cfg.Command[0], svc.cfg.Command[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("supervise: %s: stdout pipe: %w", svc.cfg.Name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("supervise: %s: stderr pipe: %w", svc.cfg.Name, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("supervise: spawn %s: %w", svc.cfg.Name, err)
	}

	svc.mu.Lock()
	svc.cmd = cmd
	svc.state = StateStarting
	svc.exited = make(chan struct{})
	exited := svc.exited
	svc.mu.Unlock()

	s.publish(Update{Service: svc.cfg.Name, State: StateStarting})
	slog.Info("service spawned", "service", svc.cfg.Name, "pid", cmd.Process.Pid)

	go s.scanOutput(svc, stdout)
	go s.scanOutput(svc, stderr)
	go func() {
		err := cmd.Wait()
		svc.mu.Lock()
		wasRunning := svc.state == StateRunning || svc.state == StateStarting
		if wasRunning {
			svc.state = StateUnhealthy
		}
		close(exited)
		svc.mu.Unlock()
		if wasRunning {
			slog.Warn("service exited unexpectedly", "service", svc.cfg.Name, "error", err)
			s.publish(Update{Service: svc.cfg.Name, State: StateUnhealthy, Message: "process exited"})
		}
	}()

	if err := s.awaitHealthy(ctx, svc, exited); err != nil {
		return err
	}

	svc.mu.Lock()
	svc.state = StateRunning
	svc.mu.Unlock()
	s.publish(Update{Service: svc.cfg.Name, State: StateRunning})
	slog.Info("service healthy", "service", svc.cfg.Name)
	return nil
}

// awaitHealthy polls the health URL until it answers, the startup budget
// elapses, or the process dies.
func (s *Supervisor) awaitHealthy(ctx context.Context, svc *service, exited <-chan struct{}) error {
	deadline := time.NewTimer(svc.cfg.StartupTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(healthPollInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-exited:
			return fmt.Errorf("supervise: %s exited during startup", svc.cfg.Name)
		case <-deadline.C:
			return fmt.Errorf("supervise: %s did not become healthy within %s",
				svc.cfg.Name, svc.cfg.StartupTimeout)
		case <-tick.C:
			if s.probe(ctx, svc.cfg.HealthURL) == nil {
				return nil
			}
		}
	}
}

// probe issues one health request.
func (s *Supervisor) probe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// scanOutput reads one output pipe line by line, surfacing progress markers
// as updates and everything else as debug logs.
func (s *Supervisor) scanOutput(svc *service, pipe io.Reader) {
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if progress, ok := ParseProgress(line); ok {
			s.publish(Update{
				Service:  svc.cfg.Name,
				State:    StateStarting,
				Progress: &progress,
				Message:  progress.Message,
			})
			slog.Info("service progress",
				"service", svc.cfg.Name,
				"percent", progress.Percent,
				"message", progress.Message)
			continue
		}
		slog.Debug("service output", "service", svc.cfg.Name, "line", line)
	}
}

// StopAll terminates every service in parallel. With force false each process
// gets a termination signal and the configured grace period before being
// killed; with force true it is killed immediately.
func (s *Supervisor) StopAll(ctx context.Context, force bool) error {
	g, _ := errgroup.WithContext(ctx)
	for _, svc := range s.services {
		g.Go(func() error {
			return s.stopOne(svc, force)
		})
	}
	return g.Wait()
}

// stopOne terminates a single service.
func (s *Supervisor) stopOne(svc *service, force bool) error {
	svc.mu.Lock()
	cmd := svc.cmd
	exited := svc.exited
	if cmd == nil || svc.state == StateStopped {
		svc.state = StateStopped
		svc.mu.Unlock()
		return nil
	}
	svc.state = StateStopped
	svc.mu.Unlock()

	if force {
		_ = cmd.Process.Kill()
	} else {
		if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
			_ = cmd.Process.Kill()
		}
		select {
		case <-exited:
		case <-time.After(s.shutdownTimeout):
			slog.Warn("service ignored termination signal, killing",
				"service", svc.cfg.Name)
			_ = cmd.Process.Kill()
		}
	}
	<-exited

	svc.mu.Lock()
	svc.cmd = nil
	svc.mu.Unlock()
	s.publish(Update{Service: svc.cfg.Name, State: StateStopped})
	slog.Info("service stopped", "service", svc.cfg.Name)
	return nil
}

// RestartAll stops every service and starts them again.
func (s *Supervisor) RestartAll(ctx context.Context) error {
	if err := s.StopAll(ctx, false); err != nil {
		return err
	}
	return s.StartAll(ctx)
}

// RunHealthLoop polls every running service's health URL on the given
// interval until ctx is cancelled, publishing state transitions to
// observers. It never blocks start or stop operations.
func (s *Supervisor) RunHealthLoop(ctx context.Context, interval time.Duration) {
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			for _, svc := range s.services {
				s.checkOne(ctx, svc)
			}
		}
	}
}

// checkOne probes one service and publishes a transition if its state
// changed.
func (s *Supervisor) checkOne(ctx context.Context, svc *service) {
	svc.mu.Lock()
	state := svc.state
	svc.mu.Unlock()
	if state != StateRunning && state != StateUnhealthy {
		return
	}

	err := s.probe(ctx, svc.cfg.HealthURL)

	svc.mu.Lock()
	// Re-read: a stop may have raced the probe.
	if svc.state != StateRunning && svc.state != StateUnhealthy {
		svc.mu.Unlock()
		return
	}
	var next State
	if err != nil {
		next = StateUnhealthy
	} else {
		next = StateRunning
	}
	changed := next != svc.state
	svc.state = next
	svc.mu.Unlock()

	if changed {
		slog.Warn("service health changed", "service", svc.cfg.Name, "state", next)
		s.publish(Update{Service: svc.cfg.Name, State: next})
	}
}

// PortFree reports whether the loopback TCP port can be bound, by attempting
// a transient bind and releasing it immediately.
func PortFree(port int) error {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return fmt.Errorf("port %d is already in use on 127.0.0.1", port)
	}
	return l.Close()
}

// ParseProgress extracts a structured progress marker from one output line.
// It reports false for ordinary log lines and for malformed marker payloads.
func ParseProgress(line string) (Progress, bool) {
	rest, found := strings.CutPrefix(strings.TrimSpace(line), strings.TrimSuffix(ProgressPrefix, " "))
	if !found {
		return Progress{}, false
	}
	rest = strings.TrimSpace(rest)
	if rest == "" || rest[0] != '{' {
		return Progress{}, false
	}
	var p Progress
	if err := json.Unmarshal([]byte(rest), &p); err != nil {
		return Progress{}, false
	}
	return p, true
}
