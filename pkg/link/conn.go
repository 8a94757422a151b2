package link

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/gwillem/armctl/pkg/protocol"
)

var (
	ErrNotConnected  = errors.New("not connected")
	ErrAlreadyOpen   = errors.New("connection already open")
	ErrAlreadyClosed = errors.New("connection already closed")
)

// TransportError wraps a failure reported by the Transport.
type TransportError struct {
	Op  string // open, close or write
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Conn tracks whether the channel is open and serializes every write to it.
type Conn struct {
	transport Transport
	log       logrus.FieldLogger

	mu   sync.Mutex
	open bool
	port string
	baud int
}

// NewConn returns a closed connection over t.
func NewConn(t Transport) *Conn {
	return &Conn{transport: t, log: discard()}
}

// SetLogger sets the diagnostic logger.
func (c *Conn) SetLogger(l logrus.FieldLogger) {
	if l == nil {
		l = discard()
	}
	c.mu.Lock()
	c.log = l
	c.mu.Unlock()
}

// Open opens the transport. It never reconfigures a live connection.
func (c *Conn) Open(port string, baud int) error {
	if port == "" {
		return fmt.Errorf("%w: empty port name", protocol.ErrInvalidParameter)
	}
	if baud <= 0 {
		return fmt.Errorf("%w: baud rate %d", protocol.ErrInvalidParameter, baud)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.open {
		return ErrAlreadyOpen
	}
	if err := c.transport.Open(port, baud); err != nil {
		c.log.WithError(err).WithField("port", port).Warn("open failed")
		return &TransportError{Op: "open", Err: err}
	}
	c.open = true
	c.port = port
	c.baud = baud
	c.log.WithFields(logrus.Fields{"port": port, "baud": baud}).Info("connection opened")
	return nil
}

// Close closes the transport.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return ErrAlreadyClosed
	}
	if err := c.transport.Close(); err != nil {
		c.log.WithError(err).Warn("close failed")
		return &TransportError{Op: "close", Err: err}
	}
	c.log.WithField("port", c.port).Info("connection closed")
	c.open = false
	c.port = ""
	c.baud = 0
	return nil
}

// IsOpen reports whether the connection is open.
func (c *Conn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Port returns the open port name, or "" when closed.
func (c *Conn) Port() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.port
}

// Baud returns the open baud rate, or 0 when closed.
func (c *Conn) Baud() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.baud
}

// Send writes one line. Nothing is written when the connection is closed.
func (c *Conn) Send(l protocol.Line) error {
	if l.IsZero() {
		return fmt.Errorf("%w: empty line", protocol.ErrInvalidParameter)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return ErrNotConnected
	}
	if err := c.transport.Write(l.Bytes()); err != nil {
		c.log.WithError(err).WithField("line", l.String()).Warn("write failed")
		return &TransportError{Op: "write", Err: err}
	}
	c.log.WithField("line", l.String()).Debug("sent")
	return nil
}

func discard() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
