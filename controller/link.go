package controller

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

const (
	// sendRetries bounds transient write retries before the link is
	// declared lost.
	sendRetries = 3
	retryDelay  = 50 * time.Millisecond
)

var (
	ErrNoUSBSerial = errors.New("no USB serial ports found")
	ErrLinkClosed  = errors.New("serial link closed")
)

// SerialPortNone lets the CLI run without hardware attached (host-replay
// rehearsals, log-only sessions).
const SerialPortNone = "none"

// TimedLine is one controller line stamped with the host monotonic clock at
// arrival. The stamp anchors controller events in the host clock domain.
type TimedLine struct {
	At   time.Time
	Text string
}

// Link is the transport the coordinator talks through. Satisfied by
// SerialLink and by in-memory fakes in tests.
type Link interface {
	Send(text string) error
	Lines() <-chan TimedLine
	Close() error
}

// SerialLink wraps a serial port with a background line reader. Reads never
// block callers: complete lines are delivered on a buffered channel with
// arrival timestamps.
type SerialLink struct {
	port  serial.Port
	name  string
	lines chan TimedLine

	mu     sync.Mutex
	closed bool
}

// OpenSerial opens the port and starts the reader goroutine.
func OpenSerial(portName string, baudRate int) (*SerialLink, error) {
	mode := &serial.Mode{BaudRate: baudRate}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("error opening %s: %w", portName, err)
	}

	l := &SerialLink{
		port:  port,
		name:  portName,
		lines: make(chan TimedLine, 64),
	}
	go l.readLoop()
	return l, nil
}

func (l *SerialLink) Name() string { return l.name }

func (l *SerialLink) readLoop() {
	defer close(l.lines)

	scanner := bufio.NewScanner(l.port)
	for scanner.Scan() {
		text := strings.TrimRight(scanner.Text(), "\r")
		if text == "" {
			continue
		}
		select {
		case l.lines <- TimedLine{At: time.Now(), Text: text}:
		default:
			// Receiver stalled; dropping is preferable to blocking the
			// port reader and backing up the OS buffer.
		}
	}
}

// Lines returns the inbound line channel. It is closed when the port closes.
func (l *SerialLink) Lines() <-chan TimedLine {
	return l.lines
}

// Send writes text to the port, retrying transient failures a bounded
// number of times before reporting the connection lost.
func (l *SerialLink) Send(text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrLinkClosed
	}

	data := []byte(text)
	var lastErr error
	for attempt := 0; attempt < sendRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(retryDelay)
		}
		_, lastErr = l.port.Write(data)
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("serial write failed after %d attempts: %w", sendRetries, lastErr)
}

func (l *SerialLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.port.Close()
}

// OpenLink opens the serial port, or a disconnected no-op link when the
// configured port is SerialPortNone.
func OpenLink(portName string, baudRate int) (Link, error) {
	if portName == SerialPortNone {
		return nullLink{lines: make(chan TimedLine)}, nil
	}
	return OpenSerial(portName, baudRate)
}

type nullLink struct {
	lines chan TimedLine
}

func (nullLink) Send(string) error         { return nil }
func (n nullLink) Lines() <-chan TimedLine { return n.lines }
func (nullLink) Close() error              { return nil }

// GetSerialPorts lists attached USB serial devices.
func GetSerialPorts() ([]string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("error listing serial ports: %w", err)
	}

	var names []string
	for _, p := range ports {
		if p.IsUSB {
			names = append(names, p.Name)
		}
	}
	if len(names) == 0 {
		return nil, ErrNoUSBSerial
	}
	return names, nil
}
