package mqtt

import (
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/picobrewhouse/brewhouse-core/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang for the brewhouse event feed.
//
// The core only publishes: session transitions, telemetry samples and
// device status go out to the broker for dashboards and home-automation
// consumers. There is no subscribe side.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig

	// connected tracks current connection state.
	connected bool
	connMu    sync.RWMutex

	// logger for connection-event logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Connect establishes a connection to the MQTT broker.
//
// It performs the following setup:
//  1. Builds connection options from config (broker URL, auth, TLS)
//  2. Configures Last Will and Testament for offline detection
//  3. Sets up auto-reconnect with exponential backoff
//  4. Attempts initial connection with timeout
//  5. Publishes online status to brewhouse/system/status
//
// Parameters:
//   - cfg: MQTT configuration from config.yaml
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: If initial connection fails within timeout
func Connect(cfg config.MQTTConfig) (*Client, error) {
	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)

	c := &Client{
		cfg:     cfg,
		options: opts,
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.setConnected(true)
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.setConnected(false)
		c.warn("mqtt connection lost", "error", err)
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnectHandler runs asynchronously and may not have fired yet.
	c.setConnected(true)

	if err := c.publishOnlineStatus(); err != nil {
		c.warn("failed to publish online status", "error", err)
	}

	return c, nil
}

// IsConnected reports whether the client currently holds a broker
// connection.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// Close publishes the offline status and disconnects cleanly, allowing
// in-flight messages a short quiesce period.
func (c *Client) Close() {
	if c.IsConnected() {
		if err := c.publishOfflineStatus(); err != nil {
			c.warn("failed to publish offline status", "error", err)
		}
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.setConnected(false)
}

// SetLogger attaches a logger for connection-event reporting.
func (c *Client) SetLogger(l Logger) {
	c.loggerMu.Lock()
	defer c.loggerMu.Unlock()
	c.logger = l
}

// HealthCheck verifies the broker connection is alive.
func (c *Client) HealthCheck() error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

func (c *Client) setConnected(v bool) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	c.connected = v
}

func (c *Client) warn(msg string, args ...any) {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
