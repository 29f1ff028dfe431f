// Package sensormux multiplexes a single serial connection to a
// phone-sensor bridge device: a microcontroller that samples the host
// phone's accelerometer and GPS and forwards each reading as one
// line-delimited JSON record. Multiple subscribers (the ingest handler,
// the /debug tail endpoint) can watch the same stream, and a command
// channel lets the admin route push configuration strings back to the
// device.
package sensormux

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/redline-data/sfe/internal/monitoring"
)

// SerialPorter is the minimal interface needed for a serial port.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// subscriberBuffer bounds how many lines a slow subscriber may fall
// behind before newer lines are dropped for it.
const subscriberBuffer = 16

// SensorMux fans lines read from one physical bridge connection out to any
// number of subscribers, and serializes commands written back to it.
type SensorMux[T SerialPorter] struct {
	port T

	mu      sync.Mutex
	nextSub int
	subs    map[int]chan string

	writeMu sync.Mutex
}

// NewSensorMux wraps an already-open serial port.
func NewSensorMux[T SerialPorter](port T) *SensorMux[T] {
	return &SensorMux[T]{
		port: port,
		subs: make(map[int]chan string),
	}
}

// Subscribe registers a new watcher of the line stream. The returned ID
// releases it via Unsubscribe.
func (s *SensorMux[T]) Subscribe() (int, chan string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan string, subscriberBuffer)
	s.subs[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscriber's channel. Unknown IDs are
// ignored.
func (s *SensorMux[T]) Unsubscribe(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[id]; ok {
		close(ch)
		delete(s.subs, id)
	}
}

func (s *SensorMux[T]) broadcast(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- line:
		default:
			monitoring.Logf("sensormux: subscriber %d lagging, dropping line", id)
		}
	}
}

// SendCommand writes one newline-terminated command to the bridge, e.g. to
// ask it to resync its onboard clock. Concurrent commands are serialized so
// their bytes never interleave on the wire.
func (s *SensorMux[T]) SendCommand(command string) error {
	payload := strings.TrimRight(command, "\n") + "\n"

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := io.WriteString(s.port, payload)
	if err != nil {
		return fmt.Errorf("sensormux: write command: %w", err)
	}
	return nil
}

// Monitor reads lines from the bridge and broadcasts each one until ctx is
// cancelled, the stream ends, or the port fails. Cancellation closes the
// port to unblock the pending read.
func (s *SensorMux[T]) Monitor(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		s.port.Close()
	})
	defer stop()

	scan := bufio.NewScanner(s.port)
	for scan.Scan() {
		s.broadcast(scan.Text())
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return scan.Err()
}

// Close releases every subscriber and closes the underlying port.
func (s *SensorMux[T]) Close() error {
	s.mu.Lock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.mu.Unlock()
	return s.port.Close()
}
