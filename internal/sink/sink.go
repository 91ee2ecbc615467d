// Package sink forwards arm state to the outside world: external renderer
// plugins, serial-attached controllers, or in-memory recorders.
package sink

import (
	"context"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"

	"github.com/ayusman/armmirror/internal/arm"
	"github.com/ayusman/armmirror/internal/plugin"
)

// Kinds of sink that can be built from configuration.
const (
	KindPlugin = "plugin"
	KindSerial = "serial"
	KindMemory = "memory"
)

// ErrUnknownKind is returned by FromConfig for an unsupported sink kind.
var ErrUnknownKind = errors.New("unknown sink kind")

// Sink receives arm state updates.
type Sink interface {
	Name() string
	Send(ctx context.Context, state arm.State) error
	Close() error
}

// Deps are the shared services some sinks need.
type Deps struct {
	Plugins  *plugin.Manager
	Executor *plugin.Executor
}

// FromConfig builds a sink of the given kind from a loosely typed config map,
// as stored in the database or posted over the API.
func FromConfig(kind, name string, raw map[string]any, deps Deps) (Sink, error) {
	switch kind {
	case KindPlugin:
		var cfg PluginConfig
		if err := decode(raw, &cfg); err != nil {
			return nil, errors.Wrapf(err, "sink %s", name)
		}
		return NewPluginSink(name, cfg, deps)
	case KindSerial:
		cfg := DefaultSerialConfig()
		if err := decode(raw, &cfg); err != nil {
			return nil, errors.Wrapf(err, "sink %s", name)
		}
		return NewSerialSink(name, cfg)
	case KindMemory:
		return NewMemorySink(name), nil
	}
	return nil, errors.Wrapf(ErrUnknownKind, "%q", kind)
}

func decode(raw map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "config decoder")
	}
	return errors.Wrap(dec.Decode(raw), "decode config")
}

// MemorySink keeps every state it receives. It is used for tests and for
// previewing a session without hardware attached.
type MemorySink struct {
	name   string
	mu     sync.Mutex
	states []arm.State
	closed bool
}

// NewMemorySink returns an empty MemorySink.
func NewMemorySink(name string) *MemorySink {
	return &MemorySink{name: name}
}

func (m *MemorySink) Name() string { return m.name }

// Send records the state.
func (m *MemorySink) Send(ctx context.Context, state arm.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("sink closed")
	}
	m.states = append(m.states, state)
	return nil
}

// States returns a copy of the recorded states.
func (m *MemorySink) States() []arm.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]arm.State(nil), m.states...)
}

// Close marks the sink closed.
func (m *MemorySink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
