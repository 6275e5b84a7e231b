package extalife

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v3"
	"go.uber.org/zap"
)

const (
	// DefaultPort is the TCP port the EFC-01 controller listens on.
	DefaultPort = 20400

	defaultTimeout   = 10 * time.Second
	defaultKeepalive = 8 * time.Second
)

// ErrNotConnected is returned for commands issued without an established
// controller connection.
var ErrNotConnected = errors.New("extalife: not connected to controller")

// NotificationHandler receives status-change notifications pushed by the
// controller outside of any request/response exchange.
type NotificationHandler func(f *Frame)

// Client is the client for interacting with an EFC-01 controller over its
// native TCP API.
type Client struct {
	host      string
	port      int
	username  string
	password  string
	timeout   time.Duration
	keepalive time.Duration

	notifyFn NotificationHandler
	logger   *zap.Logger

	mu        sync.Mutex // guards conn, lastWrite and connection state
	conn      net.Conn
	lastWrite time.Time
	closing   bool

	execMu sync.Mutex // one command exchange in flight at a time

	handlersMu  sync.Mutex
	handlers    map[int]chan *Frame
	nextHandler int

	infoMu sync.Mutex
	mac    string
	name   string
	ver    VersionInfo
}

// NewClient creates a Client with given options.
func NewClient(opts ...ClientOption) (*Client, error) {
	c := &Client{
		port:      DefaultPort,
		timeout:   defaultTimeout,
		keepalive: defaultKeepalive,
		handlers:  make(map[int]chan *Frame),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if c.logger == nil {
		l, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		c.logger = l
	}

	return c, nil
}

// ClientOption provides mechanism to configure Client.
type ClientOption func(c *Client) error

// WithHost sets the controller address. An empty host enables multicast
// discovery at connect time.
func WithHost(host string) ClientOption {
	return func(c *Client) error {
		c.host = host
		return nil
	}
}

// WithPort sets the controller TCP port.
func WithPort(port int) ClientOption {
	return func(c *Client) error {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("extalife: invalid port %d", port)
		}
		c.port = port
		return nil
	}
}

// WithCredentials sets the controller login credentials.
func WithCredentials(username, password string) ClientOption {
	return func(c *Client) error {
		c.username = username
		c.password = password
		return nil
	}
}

// WithTimeout sets the per-command response timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return errors.New("extalife: non-positive timeout")
		}
		c.timeout = d
		return nil
	}
}

// WithKeepalive sets the NOOP keep-alive interval.
func WithKeepalive(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return errors.New("extalife: non-positive keepalive")
		}
		c.keepalive = d
		return nil
	}
}

// WithNotificationHandler sets the handler for controller push notifications.
func WithNotificationHandler(h NotificationHandler) ClientOption {
	return func(c *Client) error {
		c.notifyFn = h
		return nil
	}
}

// WithLogger sets the logger for Client.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

// Connect dials the controller, retrying with capped exponential backoff
// until the context is cancelled, then logs in and fetches controller
// identity (name, MAC, firmware version).
func (c *Client) Connect(ctx context.Context) error {
	host := c.host
	if host == "" {
		discovered, err := Discover(ctx)
		if err != nil {
			return err
		}
		host = discovered
		c.logger.Info("discovered controller", zap.String("host", host))
	}

	addr := net.JoinHostPort(host, fmt.Sprint(c.port))
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0

	dial := func() error {
		conn, err := net.DialTimeout("tcp", addr, c.timeout)
		if err != nil {
			c.logger.Warn("controller dial failed, will retry", zap.String("addr", addr), zap.Error(err))
			return err
		}
		c.mu.Lock()
		c.conn = conn
		c.closing = false
		c.lastWrite = time.Now()
		c.mu.Unlock()
		return nil
	}
	if err := backoff.Retry(dial, backoff.WithContext(bo, ctx)); err != nil {
		return &ConnError{Op: "connect " + addr, Err: err}
	}

	go c.readLoop()
	go c.pingLoop()

	if err := c.login(ctx); err != nil {
		c.Close()
		return err
	}
	if err := c.fetchIdentity(ctx); err != nil {
		c.Close()
		return err
	}

	c.logger.Info("controller connected",
		zap.String("addr", addr),
		zap.String("name", c.Name()),
		zap.String("mac", c.MAC()))
	return nil
}

// Connected reports whether the TCP connection is established.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close tears down the controller connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	c.closing = true
	err := c.conn.Close()
	c.conn = nil
	return err
}

// MAC returns the controller MAC address, colon separated and lower case.
func (c *Client) MAC() string {
	c.infoMu.Lock()
	defer c.infoMu.Unlock()
	return c.mac
}

// Name returns the controller name.
func (c *Client) Name() string {
	c.infoMu.Lock()
	defer c.infoMu.Unlock()
	return c.name
}

// Exec sends a command and waits for the closing success/failure frame,
// collecting any partial frames in between. The response timeout restarts
// whenever a frame for the command arrives. A failure frame is returned as
// a CmdError.
func (c *Client) Exec(ctx context.Context, cmd Command, data Data) (*Response, error) {
	c.execMu.Lock()
	defer c.execMu.Unlock()

	ch := make(chan *Frame, 64)
	id := c.addHandler(ch)
	defer c.removeHandler(id)

	if err := c.post(&Request{Command: cmd, Data: data}); err != nil {
		return nil, err
	}

	var frames []*Frame
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-timer.C:
			_ = c.Close()
			return nil, &ConnError{Op: fmt.Sprintf("command %s timed out", cmd)}

		case f := <-ch:
			if f.Command != cmd {
				continue
			}
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(c.timeout)

			switch f.Status {
			case StatusNotification:
				// keeps the exchange alive, carries no response data
			case StatusSearching, StatusPartial, StatusProgress:
				frames = append(frames, f)
			case StatusSuccess, StatusFailure:
				frames = append(frames, f)
				resp := newResponse(frames)
				return resp, resp.Err()
			}
		}
	}
}

// Post sends a command without waiting for any response.
func (c *Client) Post(cmd Command, data Data) error {
	return c.post(&Request{Command: cmd, Data: data})
}

// Restart sends the restart command to the controller.
func (c *Client) Restart(ctx context.Context) error {
	_, err := c.Exec(ctx, CmdRestart, Data{})
	return err
}

// DownloadBackup fetches the controller configuration backup. Only frames
// carrying a data element contribute to the result.
func (c *Client) DownloadBackup(ctx context.Context) ([]Data, error) {
	resp, err := c.Exec(ctx, CmdDownloadBackup, nil)
	if err != nil {
		return nil, err
	}
	var result []Data
	for _, frame := range resp.Data {
		if frame["data_element"] != nil {
			result = append(result, frame)
		}
	}
	return result, nil
}

// UploadBackup replays previously downloaded backup frames to the
// controller, restoring its configuration.
func (c *Client) UploadBackup(ctx context.Context, frames []Data) error {
	for _, frame := range frames {
		if _, err := c.Exec(ctx, CmdUploadBackup, frame); err != nil {
			return err
		}
	}
	return nil
}

// ConfigDetails fetches the controller configuration details document.
func (c *Client) ConfigDetails(ctx context.Context) (Data, error) {
	resp, err := c.Exec(ctx, CmdGetConfigDetails, nil)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, &ConnError{Op: "empty config details response"}
	}
	return resp.Data[0], nil
}

// NetworkSettings fetches network settings and controller name.
func (c *Client) NetworkSettings(ctx context.Context) (Data, error) {
	resp, err := c.Exec(ctx, CmdFetchNetworkSettings, nil)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, &ConnError{Op: "empty network settings response"}
	}
	return resp.Data[0], nil
}

func (c *Client) login(ctx context.Context) error {
	c.logger.Debug("logging in", zap.String("user", c.username))
	_, err := c.Exec(ctx, CmdLogin, Data{"login": c.username, "password": c.password})
	if err != nil {
		return err
	}
	c.logger.Debug("authenticated", zap.String("user", c.username))
	return nil
}

// fetchIdentity refreshes controller name, MAC and firmware version info
// after a successful login.
func (c *Client) fetchIdentity(ctx context.Context) error {
	details, err := c.ConfigDetails(ctx)
	if err != nil {
		return err
	}

	c.infoMu.Lock()
	if network, ok := details["network"].(map[string]interface{}); ok {
		c.name, _ = network["name"].(string)
		if mac, ok := network["mac"].(string); ok {
			c.mac = formatMAC(mac)
		}
	}
	c.infoMu.Unlock()

	ver, err := c.CheckVersion(ctx, false)
	if err != nil {
		// version info is informational, a failure does not break the session
		c.logger.Warn("version check failed", zap.Error(err))
		return nil
	}
	c.infoMu.Lock()
	c.ver = ver
	c.infoMu.Unlock()
	return nil
}

func (c *Client) post(req *Request) error {
	buf, err := req.Bytes()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	if req.Command != CmdNoop {
		c.logger.Debug("request", zap.Stringer("command", req.Command))
	}
	if _, err := c.conn.Write(buf); err != nil {
		return &ConnError{Op: "write", Err: err}
	}
	c.lastWrite = time.Now()
	return nil
}

func (c *Client) readLoop() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}

	r := bufio.NewReaderSize(conn, 8192)
	for {
		raw, err := r.ReadBytes(etx)
		if err != nil {
			c.mu.Lock()
			closing := c.closing
			if c.conn == conn {
				_ = c.conn.Close()
				c.conn = nil
			}
			c.mu.Unlock()
			if !closing {
				c.logger.Error("connection to controller lost", zap.Error(err))
			}
			return
		}

		frame, err := ParseFrame(raw[:len(raw)-1])
		if err != nil {
			c.logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		c.logger.Debug("response",
			zap.Stringer("command", frame.Command),
			zap.String("status", string(frame.Status)))

		if frame.Status == StatusNotification && c.notifyFn != nil {
			c.notifyFn(frame)
		}
		c.dispatch(frame)
	}
}

// pingLoop posts NOOP keep-alives while the connection it was started for
// is idle. It exits as soon as that connection is gone or replaced.
func (c *Client) pingLoop() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for range ticker.C {
		c.mu.Lock()
		current := c.conn
		idle := time.Since(c.lastWrite)
		c.mu.Unlock()
		if current != conn {
			return
		}
		if idle < c.keepalive {
			continue
		}
		if err := c.post(&Request{Command: CmdNoop}); err != nil {
			if !errors.Is(err, ErrNotConnected) {
				c.logger.Error("keep-alive failed", zap.Error(err))
			}
			return
		}
	}
}

func (c *Client) addHandler(ch chan *Frame) int {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.nextHandler++
	c.handlers[c.nextHandler] = ch
	return c.nextHandler
}

func (c *Client) removeHandler(id int) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	delete(c.handlers, id)
}

func (c *Client) dispatch(f *Frame) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	for id, ch := range c.handlers {
		select {
		case ch <- f:
		default:
			c.logger.Warn("handler buffer full, dropping frame",
				zap.Int("handler", id),
				zap.Stringer("command", f.Command),
				zap.String("status", string(f.Status)))
		}
	}
}

// formatMAC normalizes a bare controller MAC into colon separated, lower
// case form.
func formatMAC(mac string) string {
	mac = strings.ToLower(strings.ReplaceAll(mac, ":", ""))
	if len(mac)%2 != 0 {
		return mac
	}
	parts := make([]string, 0, len(mac)/2)
	for i := 0; i < len(mac); i += 2 {
		parts = append(parts, mac[i:i+2])
	}
	return strings.Join(parts, ":")
}
