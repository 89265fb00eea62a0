package poller

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"bitesync/internal/event"
	"bitesync/internal/registry"
)

// maxBodySize caps how much of a poll response is read per scope
const maxBodySize = 4 << 20

// Config holds the poller settings
type Config struct {
	BaseURL        string
	Interval       time.Duration
	RequestTimeout time.Duration
	DedupCacheSize int
}

// Poller approximates live delivery while the stream is down. Each tick it
// fetches the current state of every distinct subscribed scope and feeds a
// synthesized state_update event through the same dispatch path the stream
// uses, so subscriber code is agnostic to delivery mode.
type Poller struct {
	cfg        Config
	registry   *registry.Registry
	dispatch   func(event.Event)
	httpClient *http.Client
	logger     zerolog.Logger

	// lastSeen suppresses events for scopes whose polled state has not
	// changed since the previous tick
	lastSeen *lru.Cache[string, uint64]

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Poller delivering through dispatch
func New(cfg Config, reg *registry.Registry, dispatch func(event.Event), logger zerolog.Logger) (*Poller, error) {
	if cfg.Interval == 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if cfg.DedupCacheSize == 0 {
		cfg.DedupCacheSize = 1024
	}

	lastSeen, err := lru.New[string, uint64](cfg.DedupCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  true,
	}
	return &Poller{
		cfg:        cfg,
		registry:   reg,
		dispatch:   dispatch,
		httpClient: &http.Client{Transport: transport, Timeout: cfg.RequestTimeout},
		logger:     logger.With().Str("component", "poller").Logger(),
		lastSeen:   lastSeen,
	}, nil
}

// Start begins the poll timer. Idempotent while running.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.logger.Info().Dur("interval", p.cfg.Interval).Msg("degraded-mode polling started")
	p.wg.Add(1)
	go p.run(ctx)
}

// Stop cancels the poll timer and waits for an in-flight tick to finish.
// No-op if the poller is not running.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()
	p.logger.Info().Msg("degraded-mode polling stopped")
}

// Running returns true while the poll timer is active
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce fetches every distinct subscribed scope once. A failed fetch for
// one scope is logged and skipped; it does not affect other scopes or the
// timer.
func (p *Poller) PollOnce(ctx context.Context) {
	for _, scope := range p.registry.Scopes() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := p.pollScope(ctx, scope); err != nil {
			p.logger.Warn().Err(err).Str("scope", scope).Msg("poll failed for scope")
		}
	}
}

func (p *Poller) pollScope(ctx context.Context, scope string) error {
	endpoint := fmt.Sprintf("%s/%s", p.cfg.BaseURL, url.PathEscape(scope))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create poll request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("poll request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("poll returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("failed to read poll response: %w", err)
	}

	hash := hashBytes(body)
	if prev, ok := p.lastSeen.Get(scope); ok && prev == hash {
		p.logger.Debug().Str("scope", scope).Msg("polled state unchanged, skipping")
		return nil
	}
	p.lastSeen.Add(scope, hash)

	p.dispatch(event.Event{
		Kind:      event.KindStateUpdate,
		Timestamp: time.Now(),
		Scope:     scope,
		Payload:   body,
	})
	return nil
}

// hashBytes computes an FNV-1a hash for unchanged-state detection
func hashBytes(data []byte) uint64 {
	var hash uint64 = 14695981039346656037
	for _, b := range data {
		hash ^= uint64(b)
		hash *= 1099511628211
	}
	return hash
}
