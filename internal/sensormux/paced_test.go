package sensormux

import (
	"bufio"
	"io"
	"testing"
	"time"

	"github.com/redline-data/sfe/internal/timeutil"
)

func TestPacedPortSleepsBetweenLines(t *testing.T) {
	data := []byte(
		`{"type":"accel","ax":0,"ay":0,"az":9.8,"t_ms":0}` + "\n" +
			`{"type":"accel","ax":0,"ay":0,"az":9.8,"t_ms":50}` + "\n" +
			`{"type":"gps","lat":1,"lon":2,"accuracy_m":5,"t_ms":150}` + "\n")

	clock := timeutil.NewFakeClock(time.Unix(0, 0))
	port := NewPacedPort(data, clock)

	scan := bufio.NewScanner(port)
	var n int
	for scan.Scan() {
		n++
	}
	if err := scan.Err(); err != nil && err != io.EOF {
		t.Fatalf("scan: %v", err)
	}
	if n != 3 {
		t.Fatalf("read %d lines, want 3", n)
	}

	sleeps := clock.Sleeps()
	want := []time.Duration{50 * time.Millisecond, 100 * time.Millisecond}
	if len(sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", sleeps, want)
	}
	for i := range want {
		if sleeps[i] != want[i] {
			t.Errorf("sleep[%d] = %v, want %v", i, sleeps[i], want[i])
		}
	}
}

func TestPacedPortReadAfterCloseFails(t *testing.T) {
	port := NewPacedPort([]byte(`{"type":"accel","t_ms":0}`+"\n"), timeutil.NewFakeClock(time.Unix(0, 0)))
	if err := port.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := port.Read(make([]byte, 16)); err != io.ErrClosedPipe {
		t.Errorf("Read after close = %v, want io.ErrClosedPipe", err)
	}
}

func TestPacedPortSmallReadBuffer(t *testing.T) {
	line := `{"type":"accel","ax":0,"ay":0,"az":9.8,"t_ms":0}` + "\n"
	port := NewPacedPort([]byte(line), timeutil.NewFakeClock(time.Unix(0, 0)))

	var got []byte
	buf := make([]byte, 7)
	for {
		n, err := port.Read(buf)
		got = append(got, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
	}
	if string(got) != line {
		t.Errorf("reassembled = %q, want %q", got, line)
	}
}
