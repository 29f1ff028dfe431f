package sensormux

import (
	"bytes"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/redline-data/sfe/internal/timeutil"
)

// PacedPort is a SerialPorter that replays pre-recorded fixture lines at
// their original cadence: before releasing each line it sleeps for the gap
// between that line's t_ms and the previous one's. With a real clock this
// makes a -dev server behave like a live sensor bridge; with a fake clock
// tests can assert the pacing without waiting.
type PacedPort struct {
	mu sync.Mutex

	lines [][]byte
	idx   int
	rest  []byte // unread tail of the current line

	clock       timeutil.Clock
	lastTMillis int64
	haveLast    bool

	closed bool
}

// NewPacedPort splits data into newline-terminated fixture lines to be
// replayed against clock.
func NewPacedPort(data []byte, clock timeutil.Clock) *PacedPort {
	var lines [][]byte
	for _, l := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(l)) == 0 {
			continue
		}
		lines = append(lines, append(l, '\n'))
	}
	return &PacedPort{lines: lines, clock: clock}
}

func (p *PacedPort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, io.ErrClosedPipe
	}
	if len(p.rest) == 0 {
		if p.idx >= len(p.lines) {
			return 0, io.EOF
		}
		line := p.lines[p.idx]
		p.idx++

		var stamp struct {
			TMillis int64 `json:"t_ms"`
		}
		if err := json.Unmarshal(bytes.TrimSuffix(line, []byte("\n")), &stamp); err == nil {
			if p.haveLast && stamp.TMillis > p.lastTMillis {
				p.clock.Sleep(time.Duration(stamp.TMillis-p.lastTMillis) * time.Millisecond)
			}
			p.lastTMillis = stamp.TMillis
			p.haveLast = true
		}
		p.rest = line
	}

	n := copy(buf, p.rest)
	p.rest = p.rest[n:]
	return n, nil
}

// Write discards commands; a fixture replay has no device to configure.
func (p *PacedPort) Write(b []byte) (int, error) {
	return len(b), nil
}

func (p *PacedPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// NewPacedSensorMux constructs a SensorMux that replays fixture data at its
// recorded cadence.
func NewPacedSensorMux(data []byte, clock timeutil.Clock) *SensorMux[*PacedPort] {
	return NewSensorMux[*PacedPort](NewPacedPort(data, clock))
}
