package sink

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/ayusman/armmirror/internal/arm"
	"github.com/ayusman/armmirror/internal/plugin"
)

// PluginConfig selects a discovered plugin and the settings passed to it.
type PluginConfig struct {
	Plugin   string         `mapstructure:"plugin"`
	Settings map[string]any `mapstructure:"settings"`
}

// PluginSink forwards state to an external plugin executable.
type PluginSink struct {
	name     string
	plugin   *plugin.Plugin
	executor *plugin.Executor
	settings json.RawMessage
}

// NewPluginSink resolves the configured plugin through deps.
func NewPluginSink(name string, cfg PluginConfig, deps Deps) (*PluginSink, error) {
	if deps.Plugins == nil || deps.Executor == nil {
		return nil, errors.New("plugin sink needs a plugin manager and executor")
	}
	if cfg.Plugin == "" {
		return nil, errors.New("plugin sink: plugin name is required")
	}

	p, err := deps.Plugins.Get(cfg.Plugin)
	if err != nil {
		return nil, errors.Wrapf(err, "plugin %q", cfg.Plugin)
	}
	if !p.Manifest.Supports(plugin.ActionUpdate) {
		return nil, errors.Errorf("plugin %q does not support %q", cfg.Plugin, plugin.ActionUpdate)
	}

	var settings json.RawMessage
	if len(cfg.Settings) > 0 {
		settings, err = json.Marshal(cfg.Settings)
		if err != nil {
			return nil, errors.Wrap(err, "encode plugin settings")
		}
	}

	return &PluginSink{
		name:     name,
		plugin:   p,
		executor: deps.Executor,
		settings: settings,
	}, nil
}

func (s *PluginSink) Name() string { return s.name }

// Send runs the plugin once with the state as an update request.
func (s *PluginSink) Send(ctx context.Context, state arm.State) error {
	joints := make(map[string]float64, len(state.Joints))
	for j, v := range state.Joints {
		joints[string(j)] = v
	}

	resp, err := s.executor.Execute(ctx, s.plugin, &plugin.Request{
		Action:    plugin.ActionUpdate,
		Joints:    joints,
		Source:    string(state.Source),
		Timestamp: state.UpdatedAt.UnixMilli(),
		Config:    s.settings,
	})
	if err != nil {
		return errors.Wrapf(err, "sink %s", s.name)
	}
	if !resp.Success {
		return errors.Errorf("sink %s: plugin reported: %s", s.name, resp.Error)
	}
	return nil
}

// Close asks the plugin to reset if it supports that.
func (s *PluginSink) Close() error {
	if !s.plugin.Manifest.Supports(plugin.ActionReset) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.executor.Timeout())
	defer cancel()
	_, err := s.executor.Execute(ctx, s.plugin, &plugin.Request{Action: plugin.ActionReset, Config: s.settings})
	return errors.Wrapf(err, "sink %s reset", s.name)
}
