package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/haruo/kaigi/internal/observability"
)

// Endpoint probe states reported by Status.
const (
	StatusUnknown     = "unknown"
	StatusReachable   = "reachable"
	StatusUnreachable = "unreachable"
)

// HealthChecker probes a tool endpoint. *mcp.Client satisfies it.
type HealthChecker interface {
	Healthy(ctx context.Context) error
	Endpoint() string
}

// Prober watches a tool endpoint's health route on a cron schedule. It
// is advisory: dispatch never consults it, because the contract is
// attempt-then-fallback. The state feeds the health API, logs, and the
// endpoint gauge.
type Prober struct {
	checker  HealthChecker
	schedule string
	timeout  time.Duration
	cron     *cron.Cron
	logger   zerolog.Logger

	mu    sync.RWMutex
	state string
}

// DefaultProbeSchedule matches the endpoint call timeout ceiling.
const DefaultProbeSchedule = "@every 30s"

// NewProber creates a prober for the checker's endpoint. An empty
// schedule uses the default.
func NewProber(checker HealthChecker, schedule string, logger zerolog.Logger) *Prober {
	if schedule == "" {
		schedule = DefaultProbeSchedule
	}
	return &Prober{
		checker:  checker,
		schedule: schedule,
		timeout:  5 * time.Second,
		cron:     cron.New(),
		logger:   logger.With().Str("component", "prober").Logger(),
		state:    StatusUnknown,
	}
}

// Start probes once immediately and then on the schedule.
func (p *Prober) Start() error {
	if _, err := p.cron.AddFunc(p.schedule, p.probe); err != nil {
		return fmt.Errorf("invalid probe schedule %q: %w", p.schedule, err)
	}
	go p.probe()
	p.cron.Start()

	p.logger.Info().
		Str("endpoint", p.checker.Endpoint()).
		Str("schedule", p.schedule).
		Msg("Endpoint prober started")
	return nil
}

// Stop halts scheduled probes. A probe in flight finishes on its own.
func (p *Prober) Stop() {
	p.cron.Stop()
}

// Status returns the last observed endpoint state.
func (p *Prober) Status() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Prober) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	err := p.checker.Healthy(ctx)

	next := StatusReachable
	if err != nil {
		next = StatusUnreachable
	}

	p.mu.Lock()
	prev := p.state
	p.state = next
	p.mu.Unlock()

	observability.SetEndpointUp(next == StatusReachable)

	if prev == next {
		return
	}
	if next == StatusReachable {
		p.logger.Info().
			Str("endpoint", p.checker.Endpoint()).
			Msg("Tool endpoint reachable")
	} else {
		p.logger.Warn().
			Str("endpoint", p.checker.Endpoint()).
			Err(err).
			Msg("Tool endpoint unreachable")
	}
}
