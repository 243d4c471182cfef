package report

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/flowtrace/errors"
)

// ConnStatus represents the state of a NATS connection
type ConnStatus int32

const (
	ConnDisconnected ConnStatus = iota
	ConnConnecting
	ConnConnected
	ConnReconnecting
	ConnClosed
)

// String returns a string representation of the connection status
func (s ConnStatus) String() string {
	switch s {
	case ConnDisconnected:
		return "disconnected"
	case ConnConnecting:
		return "connecting"
	case ConnConnected:
		return "connected"
	case ConnReconnecting:
		return "reconnecting"
	case ConnClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is a NATS connection used to publish failure reports
type Conn struct {
	url    string
	status atomic.Int32
	logger *slog.Logger

	mu   sync.RWMutex
	conn *nats.Conn

	maxReconnects int
	reconnectWait time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration
	clientName    string
	username      string
	password      string
	token         string
}

// ConnOption configures a Conn
type ConnOption func(*Conn)

// WithConnLogger sets the connection logger
func WithConnLogger(logger *slog.Logger) ConnOption {
	return func(c *Conn) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithName sets the client name reported to the server
func WithName(name string) ConnOption {
	return func(c *Conn) {
		c.clientName = name
	}
}

// WithReconnect sets the reconnect budget. A negative max retries forever.
func WithReconnect(max int, wait time.Duration) ConnOption {
	return func(c *Conn) {
		c.maxReconnects = max
		c.reconnectWait = wait
	}
}

// WithTimeout sets the dial timeout
func WithTimeout(d time.Duration) ConnOption {
	return func(c *Conn) {
		c.timeout = d
	}
}

// WithCredentials authenticates with a username and password
func WithCredentials(username, password string) ConnOption {
	return func(c *Conn) {
		c.username = username
		c.password = password
	}
}

// WithToken authenticates with a token
func WithToken(token string) ConnOption {
	return func(c *Conn) {
		c.token = token
	}
}

// NewConn creates an unconnected Conn for url
func NewConn(url string, opts ...ConnOption) *Conn {
	c := &Conn{
		url:           url,
		logger:        slog.Default(),
		maxReconnects: -1,
		reconnectWait: 2 * time.Second,
		timeout:       5 * time.Second,
		drainTimeout:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "report", "url", url)
	return c
}

// URL returns the server URL
func (c *Conn) URL() string {
	return c.url
}

// Status returns the current connection status
func (c *Conn) Status() ConnStatus {
	return ConnStatus(c.status.Load())
}

func (c *Conn) setStatus(s ConnStatus) {
	c.status.Store(int32(s))
}

func (c *Conn) options() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ReconnectHandler(c.handleReconnect),
		nats.ClosedHandler(c.handleClosed),
		nats.ErrorHandler(c.handleError),
	}
	if c.username != "" && c.password != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}
	if c.clientName != "" {
		opts = append(opts, nats.Name(c.clientName))
	}
	return opts
}

// Connect dials the server. It returns when the connection is established,
// the dial fails, or ctx is done. Connecting an already connected Conn is a
// no-op.
func (c *Conn) Connect(ctx context.Context) error {
	if c.Status() == ConnClosed {
		return errors.WrapFatal(errors.ErrNoConnection, "Conn", "Connect", "connect closed connection")
	}
	c.mu.RLock()
	live := c.conn != nil && !c.conn.IsClosed()
	c.mu.RUnlock()
	if live {
		return nil
	}

	c.setStatus(ConnConnecting)
	c.logger.Info("Connecting to NATS")

	type dialResult struct {
		nc  *nats.Conn
		err error
	}
	opts := c.options()
	connectDone := make(chan dialResult, 1)
	go func() {
		nc, err := nats.Connect(c.url, opts...)
		connectDone <- dialResult{nc: nc, err: err}
	}()

	var res dialResult
	select {
	case res = <-connectDone:
		if res.err != nil {
			c.setStatus(ConnDisconnected)
			return errors.WrapTransient(res.err, "Conn", "Connect", "establish connection")
		}
	case <-ctx.Done():
		// The dial keeps running; a connection it still produces is unwanted
		go func() {
			if late := <-connectDone; late.nc != nil {
				late.nc.Close()
			}
		}()
		c.setStatus(ConnDisconnected)
		return errors.WrapTransient(ctx.Err(), "Conn", "Connect", "connection cancelled")
	}

	c.mu.Lock()
	if c.Status() == ConnClosed || (c.conn != nil && !c.conn.IsClosed()) {
		// Closed meanwhile, or a concurrent Connect won
		c.mu.Unlock()
		res.nc.Close()
		return nil
	}
	prev := c.conn
	c.conn = res.nc
	c.mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	c.setStatus(ConnConnected)
	c.logger.Info("Connected to NATS")
	return nil
}

// Publish implements Publisher
func (c *Conn) Publish(ctx context.Context, subject string, data []byte) error {
	select {
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "Conn", "Publish", "publish")
	default:
	}

	c.mu.RLock()
	nc := c.conn
	c.mu.RUnlock()
	if nc == nil || !nc.IsConnected() {
		return errors.WrapTransient(errors.ErrNoConnection, "Conn", "Publish", "publish to "+subject)
	}
	if err := nc.Publish(subject, data); err != nil {
		return errors.WrapTransient(err, "Conn", "Publish", "publish to "+subject)
	}
	return nil
}

// Close drains pending reports and closes the connection
func (c *Conn) Close() error {
	c.mu.Lock()
	nc := c.conn
	c.conn = nil
	c.setStatus(ConnClosed)
	c.mu.Unlock()

	if nc == nil {
		return nil
	}
	if err := nc.Drain(); err != nil {
		nc.Close()
		return errors.Wrap(err, "Conn", "Close", "drain connection")
	}
	return nil
}

func (c *Conn) handleDisconnect(_ *nats.Conn, err error) {
	if c.Status() == ConnClosed {
		return
	}
	c.setStatus(ConnReconnecting)
	c.logger.Warn("Disconnected from NATS", "error", err)
}

func (c *Conn) handleReconnect(_ *nats.Conn) {
	c.setStatus(ConnConnected)
	c.logger.Info("Reconnected to NATS")
}

func (c *Conn) handleClosed(_ *nats.Conn) {
	if c.Status() != ConnClosed {
		c.setStatus(ConnDisconnected)
	}
}

func (c *Conn) handleError(_ *nats.Conn, _ *nats.Subscription, err error) {
	c.logger.Error("NATS error", "error", err)
}
