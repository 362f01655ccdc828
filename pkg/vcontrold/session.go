package vcontrold

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ziutek/telnet"
)

// Endpoint identifies one daemon instance. Endpoints compare by value.
type Endpoint struct {
	Host string
	Port int
}

// String returns the endpoint in host:port form.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Session is a half-duplex line channel to the daemon. Every SendLine must
// be followed by exactly one ReadLine or ReadBlock before the next SendLine.
type Session interface {
	SendLine(ctx context.Context, text string) error
	ReadLine(ctx context.Context) (string, error)
	ReadBlock(ctx context.Context) ([]string, error)
	Prompt() string
	Close()
}

// Ensure Conn implements Session.
var _ Session = (*Conn)(nil)

// Conn is a Session over one TCP connection.
//
// Each call runs under a deadline: the caller's context deadline if it has
// one, otherwise the configured request timeout. Cancelling the context
// while a call is blocked force-closes the connection.
type Conn struct {
	tc             *telnet.Conn
	addr           string
	prompt         string
	requestTimeout time.Duration
	logger         *slog.Logger

	mu          sync.Mutex
	outstanding bool
	closed      bool
}

// Dial opens a session to ep. The port option is ignored; ep carries the
// port.
func Dial(ctx context.Context, ep Endpoint, opts ...ClientOption) (*Conn, error) {
	cfg, err := buildConfig(opts)
	if err != nil {
		return nil, fmt.Errorf("invalid option: %w", err)
	}
	return dial(ctx, ep, cfg)
}

func dial(ctx context.Context, ep Endpoint, cfg *clientConfig) (*Conn, error) {
	// Apply connect timeout to context if not already set
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.connectTimeout)
		defer cancel()
	}

	addr := ep.String()
	raw, err := cfg.dial(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnection, addr, err)
	}

	tc, err := telnet.NewConn(raw)
	if err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("%w: open stream to %s: %w", ErrConnection, addr, err)
	}

	c := &Conn{
		tc:             tc,
		addr:           addr,
		prompt:         cfg.prompt,
		requestTimeout: cfg.requestTimeout,
		logger:         cfg.logger,
	}

	if c.logger != nil {
		c.logger.Debug("connected to daemon", "addr", addr)
	}

	return c, nil
}

// Prompt returns the prompt token replies are prefixed with.
func (c *Conn) Prompt() string { return c.prompt }

// SendLine writes text followed by a newline.
func (c *Conn) SendLine(ctx context.Context, text string) error {
	if strings.ContainsAny(text, "\r\n") {
		return fmt.Errorf("%w: command %q contains a line break", ErrProtocol, text)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%w: %s: connection closed", ErrConnection, c.addr)
	}
	if c.outstanding {
		return ErrBusy
	}

	stop, err := c.arm(ctx)
	if err != nil {
		return err
	}
	defer stop()

	if _, err := c.tc.Write([]byte(text + "\n")); err != nil {
		if c.logger != nil {
			c.logger.Error("failed to send line", "addr", c.addr, "line", text, "error", err)
		}
		return c.wrap(ctx, "write", err)
	}
	c.outstanding = true

	if c.logger != nil {
		c.logger.Debug("line sent", "addr", c.addr, "line", text)
	}
	return nil
}

// ReadLine reads the next non-blank reply line, prompt included.
func (c *Conn) ReadLine(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", fmt.Errorf("%w: %s: connection closed", ErrConnection, c.addr)
	}

	stop, err := c.arm(ctx)
	if err != nil {
		return "", err
	}
	defer stop()

	line, err := readLine(c.tc)
	c.outstanding = false
	if err != nil {
		return "", c.wrap(ctx, "read line", err)
	}

	if c.logger != nil {
		c.logger.Debug("line received", "addr", c.addr, "line", line)
	}
	return line, nil
}

// ReadBlock reads a multi-line reply up to its terminator and returns the
// payload lines in order.
func (c *Conn) ReadBlock(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("%w: %s: connection closed", ErrConnection, c.addr)
	}

	stop, err := c.arm(ctx)
	if err != nil {
		return nil, err
	}
	defer stop()

	lines, err := ReadBlock(c.tc, c.prompt)
	c.outstanding = false
	if err != nil {
		return nil, c.wrap(ctx, "read block", err)
	}

	if c.logger != nil {
		c.logger.Debug("block received", "addr", c.addr, "lines", len(lines))
	}
	return lines, nil
}

// Close closes the connection. It is safe to call more than once and never
// fails; close errors are logged.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Conn) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	if err := c.tc.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		if c.logger != nil {
			c.logger.Warn("failed to close connection", "addr", c.addr, "error", err)
		}
		return
	}
	if c.logger != nil {
		c.logger.Debug("connection closed", "addr", c.addr)
	}
}

// arm sets the I/O deadline for one call and closes the socket if ctx is
// cancelled before the returned stop function runs.
func (c *Conn) arm(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnection, c.addr, err)
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		deadline = time.Now().Add(c.requestTimeout)
	}
	if err := c.tc.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: %s: set deadline: %w", ErrConnection, c.addr, err)
	}

	stopAbort := context.AfterFunc(ctx, func() {
		// The caller holds c.mu while blocked in I/O, so the socket is
		// closed directly; the next locked call sees the closed flag.
		if err := c.tc.Close(); err != nil && c.logger != nil {
			c.logger.Warn("failed to abort connection", "addr", c.addr, "error", err)
		}
	})
	return func() { stopAbort() }, nil
}

// wrap classifies a read or write failure. The connection is closed either
// way, since its framing position is unknown afterwards. Protocol errors
// pass through; everything else becomes ErrConnection.
func (c *Conn) wrap(ctx context.Context, op string, err error) error {
	c.closeLocked()
	if errors.Is(err, ErrProtocol) {
		return err
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %s: %s: %w", ErrConnection, c.addr, op, ctxErr)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		// The socket deadline may fire just before the context notices.
		if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) {
			return fmt.Errorf("%w: %s: %s: %w", ErrConnection, c.addr, op, context.DeadlineExceeded)
		}
		return fmt.Errorf("%w: %s: %s: deadline exceeded: %w", ErrConnection, c.addr, op, err)
	}
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %s: %s: connection closed by peer: %w", ErrConnection, c.addr, op, err)
	}
	return fmt.Errorf("%w: %s: %s: %w", ErrConnection, c.addr, op, err)
}
