// Package link owns the serial channel to the arm.
package link

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"go.bug.st/serial"
)

// Transport is the raw byte channel. Implementations hold at most one open
// connection.
type Transport interface {
	Open(port string, baud int) error
	Close() error
	Write(p []byte) error
}

// SerialTransport implements Transport using go.bug.st/serial.
type SerialTransport struct {
	port serial.Port
}

// NewSerialTransport returns a closed serial transport.
func NewSerialTransport() *SerialTransport {
	return &SerialTransport{}
}

// Open opens the named device at the given baud rate, 8N1.
func (s *SerialTransport) Open(port string, baud int) error {
	if s.port != nil {
		return errors.New("serial port already open")
	}
	p, err := serial.Open(port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return fmt.Errorf("open serial %s: %w", port, err)
	}
	s.port = p
	return nil
}

// Close closes the underlying port.
func (s *SerialTransport) Close() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

// Write writes all of p or returns an error.
func (s *SerialTransport) Write(p []byte) error {
	if s.port == nil {
		return errors.New("serial port not open")
	}
	n, err := s.port.Write(p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return io.ErrShortWrite
	}
	return nil
}

// ListPorts returns the serial devices present on the system, skipping
// Bluetooth pseudo ports on macOS.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list ports: %w", err)
	}
	out := make([]string, 0, len(ports))
	for _, p := range ports {
		if strings.Contains(p, "Bluetooth") {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}
