package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/metafuse/tenant-gateway/internal/healthcheck"
	"github.com/metafuse/tenant-gateway/internal/loadbalancer"
	"github.com/metafuse/tenant-gateway/internal/pool"
	"go.uber.org/zap"
)

var ErrNoHealthyUpstream = errors.New("no healthy catalog upstream")

// Upstreams is the catalog backend seen by the connection pool. A
// "connection" is a claim on one healthy upstream, chosen by the load
// balancer, for the duration of a request.
type Upstreams struct {
	proxies  map[string]*httputil.ReverseProxy
	balancer loadbalancer.Strategy
	checker  *healthcheck.Checker
	log      *zap.Logger
}

var _ pool.Backend = (*Upstreams)(nil)

type UpstreamsConfig struct {
	Targets              []string
	LoadBalancerStrategy string
	HealthCheck          healthcheck.Config
	// Transport defaults to http.DefaultTransport.
	Transport http.RoundTripper
	// ResponseHeaderTimeout bounds how long an upstream may take to answer.
	ResponseHeaderTimeout time.Duration
}

func NewUpstreams(cfg UpstreamsConfig, log *zap.Logger) (*Upstreams, error) {
	if len(cfg.Targets) == 0 {
		return nil, errors.New("at least one upstream is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	lb, err := loadbalancer.NewStrategy(cfg.LoadBalancerStrategy)
	if err != nil {
		return nil, err
	}

	transport := cfg.Transport
	if transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.ResponseHeaderTimeout > 0 {
			t.ResponseHeaderTimeout = cfg.ResponseHeaderTimeout
		}
		transport = t
	}

	proxies := make(map[string]*httputil.ReverseProxy, len(cfg.Targets))
	for _, targetURL := range cfg.Targets {
		target, err := url.Parse(targetURL)
		if err != nil {
			return nil, fmt.Errorf("invalid upstream %q: %w", targetURL, err)
		}
		if target.Scheme == "" || target.Host == "" {
			return nil, fmt.Errorf("invalid upstream %q: scheme and host are required", targetURL)
		}

		rp := httputil.NewSingleHostReverseProxy(target)
		rp.Transport = transport
		rp.ErrorHandler = upstreamErrorHandler(log, targetURL)
		proxies[targetURL] = rp
	}

	cfg.HealthCheck.Targets = cfg.Targets
	if cfg.HealthCheck.Client == nil {
		cfg.HealthCheck.Client = &http.Client{Transport: transport}
	}

	u := &Upstreams{
		proxies:  proxies,
		balancer: lb,
		checker:  healthcheck.NewChecker(cfg.HealthCheck, log),
		log:      log,
	}

	log.Info("catalog upstreams configured",
		zap.Strings("targets", cfg.Targets),
		zap.String("strategy", lb.Name()))
	return u, nil
}

func upstreamErrorHandler(log *zap.Logger, target string) func(http.ResponseWriter, *http.Request, error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		if !errors.Is(err, context.Canceled) {
			log.Warn("catalog upstream request failed", zap.String("target", target), zap.Error(err))
		}
		w.WriteHeader(http.StatusBadGateway)
	}
}

// Connect picks a healthy upstream.
func (u *Upstreams) Connect(ctx context.Context) (pool.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target := u.balancer.Next(u.checker.HealthyTargets())
	if target == "" {
		return nil, ErrNoHealthyUpstream
	}

	return &upstreamConn{target: target, proxy: u.proxies[target], done: u.balancer.Done}, nil
}

// Start begins health checking. The first round of probes runs before it
// returns.
func (u *Upstreams) Start() {
	u.checker.Start()
}

func (u *Upstreams) Stop() {
	u.checker.Stop()
}

func (u *Upstreams) Health() healthcheck.HealthStatus {
	return u.checker.OverallHealth()
}

func (u *Upstreams) Status() map[string]*healthcheck.Status {
	return u.checker.AllStatus()
}

type upstreamConn struct {
	target string
	proxy  *httputil.ReverseProxy
	done   func(string)
}

func (c *upstreamConn) Close() error {
	c.done(c.target)
	return nil
}
