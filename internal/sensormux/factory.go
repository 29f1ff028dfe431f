package sensormux

import (
	"fmt"

	"go.bug.st/serial"
)

// The bridge firmware always frames its JSON lines as 8N1; the only
// parameter that varies between firmware builds is the line rate.
const DefaultBaudRate = 115200

var supportedBaudRates = map[int]bool{
	57600:  true,
	115200: true,
	230400: true,
}

// bridgeMode builds the serial mode for a bridge connection at the given
// line rate, rejecting rates no firmware build ships with.
func bridgeMode(baudRate int) (*serial.Mode, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if !supportedBaudRates[baudRate] {
		return nil, fmt.Errorf("sensormux: unsupported bridge baud rate %d (supported: 57600, 115200, 230400)", baudRate)
	}
	return &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		StopBits: serial.OneStopBit,
		Parity:   serial.NoParity,
	}, nil
}

// NewRealSensorMux opens a serial connection to a phone-sensor bridge at
// path using the default line rate.
func NewRealSensorMux(path string) (*SensorMux[serial.Port], error) {
	return NewRealSensorMuxAtBaud(path, DefaultBaudRate)
}

// NewRealSensorMuxAtBaud opens a bridge connection at an explicit line
// rate, for firmware builds that do not run the default.
func NewRealSensorMuxAtBaud(path string, baudRate int) (*SensorMux[serial.Port], error) {
	mode, err := bridgeMode(baudRate)
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("sensormux: open %s: %w", path, err)
	}
	return NewSensorMux[serial.Port](port), nil
}
