// internal/sink/serial.go
package sink

import (
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"

	"github.com/tneurolab/crossdetect/internal/detect"
)

// SerialPort abstracts the serial connection for testing.
type SerialPort interface {
	io.ReadWriteCloser
}

// SerialSink drives a TTL line over a serial port: one byte per event,
// '1' on the onset and '0' on the offset.
type SerialSink struct {
	Port     string
	BaudRate int
	conn     SerialPort
}

// NewSerial creates an unopened serial sink.
func NewSerial(port string, baudRate int) *SerialSink {
	return &SerialSink{
		Port:     port,
		BaudRate: baudRate,
	}
}

// Open opens the serial connection.
func (s *SerialSink) Open() error {
	config := &serial.Config{
		Name:        s.Port,
		Baud:        s.BaudRate,
		ReadTimeout: time.Millisecond * 500,
	}
	conn, err := serial.OpenPort(config)
	if err != nil {
		return fmt.Errorf("open serial port %s: %w", s.Port, err)
	}
	s.conn = conn
	return nil
}

// Emit writes the event's state byte.
func (s *SerialSink) Emit(ev detect.Event) error {
	if s.conn == nil {
		return fmt.Errorf("serial connection not open")
	}
	b := byte('0')
	if ev.On {
		b = '1'
	}
	_, err := s.conn.Write([]byte{b})
	return err
}

// Close closes the serial connection.
func (s *SerialSink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
