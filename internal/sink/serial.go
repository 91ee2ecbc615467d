package sink

import (
	"context"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/ayusman/armmirror/internal/arm"
)

// SerialConfig configures a serial-attached arm controller.
type SerialConfig struct {
	Port     string `mapstructure:"port"`
	BaudRate int    `mapstructure:"baud_rate"`
	// Precision is the number of decimals written per joint.
	Precision int `mapstructure:"precision"`
}

// DefaultSerialConfig returns the settings most hobby servo boards expect.
func DefaultSerialConfig() SerialConfig {
	return SerialConfig{
		BaudRate:  115200,
		Precision: 1,
	}
}

// openPort is replaced in tests.
var openPort = func(cfg SerialConfig) (io.WriteCloser, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open serial port %s", cfg.Port)
	}
	return port, nil
}

// SerialSink writes one text line per state to a serial port:
//
//	J base=0.0 shoulder=12.5 elbow=-3.0 ...\n
//
// Joints are always written in arm.Joints order.
type SerialSink struct {
	name string
	cfg  SerialConfig

	mu   sync.Mutex
	port io.WriteCloser
}

// NewSerialSink opens the configured port.
func NewSerialSink(name string, cfg SerialConfig) (*SerialSink, error) {
	if cfg.Port == "" {
		return nil, errors.New("serial sink: port is required")
	}
	if cfg.BaudRate <= 0 {
		return nil, errors.Errorf("serial sink: invalid baud rate %d", cfg.BaudRate)
	}
	if cfg.Precision < 0 || cfg.Precision > 6 {
		return nil, errors.Errorf("serial sink: precision %d outside 0..6", cfg.Precision)
	}

	port, err := openPort(cfg)
	if err != nil {
		return nil, err
	}
	return &SerialSink{name: name, cfg: cfg, port: port}, nil
}

func (s *SerialSink) Name() string { return s.name }

// Send writes the state line. The context is not consulted once the write
// has started; serial writes are short.
func (s *SerialSink) Send(ctx context.Context, state arm.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line := FormatLine(state, s.cfg.Precision)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return errors.Errorf("sink %s: port closed", s.name)
	}
	if _, err := io.WriteString(s.port, line); err != nil {
		return errors.Wrapf(err, "sink %s: write", s.name)
	}
	return nil
}

// Close releases the port.
func (s *SerialSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

// FormatLine renders a state as a serial command line.
func FormatLine(state arm.State, precision int) string {
	var b strings.Builder
	b.WriteString("J")
	for _, j := range arm.Joints() {
		b.WriteByte(' ')
		b.WriteString(string(j))
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(state.Get(j), 'f', precision, 64))
	}
	b.WriteByte('\n')
	return b.String()
}

// PortInfo describes a serial port available on this machine.
type PortInfo struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
}

// ListPorts enumerates serial ports, with USB details where the OS reports them.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, errors.Wrap(err, "enumerate serial ports")
	}
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	return ports, nil
}
