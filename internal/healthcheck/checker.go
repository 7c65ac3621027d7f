// Package healthcheck probes catalog upstreams and tracks which of them may
// receive traffic.
package healthcheck

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Checker struct {
	mu             sync.RWMutex
	targets        []string
	healthStatus   map[string]*Status
	healthyTargets []string
	endpoint       string
	interval       time.Duration
	timeout        time.Duration
	maxFailures    int
	client         *http.Client
	log            *zap.Logger
	stopChan       chan struct{}
	running        bool
}

type Config struct {
	Targets     []string
	Endpoint    string        // Probe path. Default: /health
	Interval    time.Duration // Default: 10s
	Timeout     time.Duration // Per probe. Default: 5s
	MaxFailures int           // Consecutive failures before unhealthy. Default: 3
	Client      *http.Client
}

// NewChecker treats every target as healthy until probed.
func NewChecker(cfg Config, log *zap.Logger) *Checker {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "/health"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop()
	}

	checker := &Checker{
		targets:        append([]string(nil), cfg.Targets...),
		healthStatus:   make(map[string]*Status, len(cfg.Targets)),
		healthyTargets: append([]string(nil), cfg.Targets...),
		endpoint:       cfg.Endpoint,
		interval:       cfg.Interval,
		timeout:        cfg.Timeout,
		maxFailures:    cfg.MaxFailures,
		client:         cfg.Client,
		log:            log,
		stopChan:       make(chan struct{}),
	}

	now := time.Now()
	for _, target := range cfg.Targets {
		checker.healthStatus[target] = &Status{
			Target:    target,
			IsHealthy: true,
			LastCheck: now,
		}
	}

	return checker
}

// Start probes every target once, synchronously, then keeps probing on the
// configured interval until Stop.
func (c *Checker) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	c.log.Info("starting upstream health checks",
		zap.Int("targets", len(c.targets)),
		zap.Duration("interval", c.interval))

	c.CheckAll(context.Background())

	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.CheckAll(context.Background())
			case <-c.stopChan:
				return
			}
		}
	}()
}

func (c *Checker) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		close(c.stopChan)
		c.running = false
		c.log.Info("upstream health checks stopped")
	}
}

// CheckAll probes every target concurrently and refreshes the healthy set.
func (c *Checker) CheckAll(ctx context.Context) {
	var wg sync.WaitGroup

	for _, target := range c.targets {
		wg.Add(1)
		go func(t string) {
			defer wg.Done()
			c.checkTarget(ctx, t)
		}(target)
	}

	wg.Wait()
	c.updateHealthyTargets()
}

func (c *Checker) checkTarget(ctx context.Context, target string) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target+c.endpoint, nil)
	if err != nil {
		c.recordFailure(target, err)
		return
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.recordFailure(target, err)
		return
	}
	defer resp.Body.Close()

	// 2xx and 3xx are healthy.
	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		c.recordSuccess(target)
	} else {
		c.recordFailure(target, nil)
	}
}

func (c *Checker) recordSuccess(target string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	status := c.healthStatus[target]
	status.LastCheck = now
	status.LastSuccess = now
	status.FailureCount = 0

	if !status.IsHealthy {
		c.log.Info("upstream healthy again", zap.String("target", target))
		status.IsHealthy = true
	}
}

func (c *Checker) recordFailure(target string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	status := c.healthStatus[target]
	status.LastCheck = now
	status.LastFailure = now
	status.FailureCount++

	if status.IsHealthy && status.FailureCount >= c.maxFailures {
		c.log.Warn("upstream unhealthy",
			zap.String("target", target),
			zap.Int("failures", status.FailureCount),
			zap.Error(err))
		status.IsHealthy = false
	}
}

func (c *Checker) updateHealthyTargets() {
	c.mu.Lock()
	defer c.mu.Unlock()

	healthy := make([]string, 0, len(c.targets))
	for _, target := range c.targets {
		if c.healthStatus[target].IsHealthy {
			healthy = append(healthy, target)
		}
	}

	c.healthyTargets = healthy
}

// HealthyTargets returns a copy of the targets currently taking traffic.
func (c *Checker) HealthyTargets() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	targets := make([]string, len(c.healthyTargets))
	copy(targets, c.healthyTargets)
	return targets
}

func (c *Checker) AllTargets() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	targets := make([]string, len(c.targets))
	copy(targets, c.targets)
	return targets
}

func (c *Checker) Status(target string) *Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if status, exists := c.healthStatus[target]; exists {
		statusCopy := *status
		return &statusCopy
	}
	return nil
}

func (c *Checker) AllStatus() map[string]*Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	statusMap := make(map[string]*Status, len(c.healthStatus))
	for target, status := range c.healthStatus {
		statusCopy := *status
		statusMap[target] = &statusCopy
	}
	return statusMap
}

func (c *Checker) OverallHealth() HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	healthyCount := len(c.healthyTargets)
	switch {
	case healthyCount == 0:
		return Unhealthy
	case healthyCount < len(c.targets):
		return Degraded
	default:
		return Healthy
	}
}
