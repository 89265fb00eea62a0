package client

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"bitesync/internal/config"
	"bitesync/internal/event"
	"bitesync/internal/poller"
	"bitesync/internal/registry"
	"bitesync/internal/router"
	"bitesync/internal/stream"
)

// Client is the live data synchronization client: one stream connection
// multiplexing many scope-and-kind subscriptions, with polling fallback when
// the stream cannot be kept alive. Construct one per application; tests
// construct their own instances for isolation.
type Client struct {
	registry *registry.Registry
	router   *router.Router
	poller   *poller.Poller
	stream   *stream.Client
	logger   zerolog.Logger
}

// New wires a Client from the configuration
func New(cfg *config.Config, logger zerolog.Logger) (*Client, error) {
	reg := registry.New(logger)
	rt := router.New(reg, logger)

	p, err := poller.New(poller.Config{
		BaseURL:        cfg.PollURL,
		Interval:       cfg.GetPollIntervalDuration(),
		RequestTimeout: cfg.GetPollRequestTimeoutDuration(),
		DedupCacheSize: cfg.DedupCacheSize,
	}, reg, rt.Dispatch, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create poller: %w", err)
	}

	st := stream.New(stream.Config{
		URL:               cfg.StreamURL,
		HeartbeatInterval: cfg.GetHeartbeatIntervalDuration(),
		InitialRetryDelay: cfg.GetReconnectInitialDelayDuration(),
		MaxRetryAttempts:  cfg.MaxReconnectAttempts,
		HandshakeTimeout:  cfg.GetHandshakeTimeoutDuration(),
		ReadTimeout:       cfg.GetReadTimeoutDuration(),
	}, reg, rt.Dispatch, p, logger)

	return &Client{
		registry: reg,
		router:   rt,
		poller:   p,
		stream:   st,
		logger:   logger.With().Str("component", "client").Logger(),
	}, nil
}

// Start opens the stream connection. Subscriptions added beforehand are
// announced as soon as the connection is up. Also the explicit recovery path
// out of degraded mode.
func (c *Client) Start(ctx context.Context) error {
	return c.stream.Start(ctx)
}

// Subscribe registers a callback for events of the given kinds within a
// scope, and returns the subscription id for a later Unsubscribe. The
// subscription survives reconnects and degraded-mode transitions until
// explicitly removed.
func (c *Client) Subscribe(scope string, kinds []event.Kind, cb func(event.Event)) string {
	return c.registry.Add(scope, kinds, registry.Callback(cb))
}

// Unsubscribe removes a subscription. Unknown ids are a no-op.
func (c *Client) Unsubscribe(id string) {
	c.registry.Remove(id)
}

// IsConnected returns true only while the stream connection is live
func (c *Client) IsConnected() bool {
	return c.stream.IsConnected()
}

// State returns the connection state, for a live/reconnecting/offline-polling
// indicator
func (c *Client) State() stream.State {
	return c.stream.State()
}

// Subscriptions returns the number of active subscriptions
func (c *Client) Subscriptions() int {
	return c.registry.Len()
}

// Stats returns a snapshot of the stream counters
func (c *Client) Stats() stream.Stats {
	return c.stream.Stats()
}

// Disconnect tears down the connection, stops all timers, and clears the
// registry. Full shutdown, not suspend.
func (c *Client) Disconnect() {
	c.stream.Close()
	c.poller.Stop()
	c.registry.Clear()
	c.logger.Info().Msg("client disconnected")
}
