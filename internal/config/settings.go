// Copyright 2026 Devlease Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads devlease settings from the XDG config directory and
// resolves the state directory the coordination records live in.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devlease/devlease/internal/retry"
)

// Duration wraps time.Duration so YAML values like "30s" parse with
// time.ParseDuration semantics.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// LockSettings bound lock acquisition and staleness.
type LockSettings struct {
	// MaxAge is how long a lock may be held before it is treated as
	// abandoned even if the holder is alive.
	MaxAge Duration `yaml:"max_age,omitempty"`
	// Timeout bounds how long an operation waits for the lock.
	Timeout Duration `yaml:"timeout,omitempty"`
	// Interval is the sleep between acquisition attempts.
	Interval Duration `yaml:"interval,omitempty"`
}

// DrainSettings bound the shutdown drain wait.
type DrainSettings struct {
	// Timeout bounds how long a stopping server waits for registrations
	// to drain.
	Timeout Duration `yaml:"timeout,omitempty"`
	// Interval is the sleep between drain checks.
	Interval Duration `yaml:"interval,omitempty"`
}

// Settings is the devlease configuration file model.
type Settings struct {
	// StateDir overrides where coordination records are kept. Empty means
	// the XDG state directory.
	StateDir string `yaml:"state_dir,omitempty"`

	Lock  LockSettings  `yaml:"lock,omitempty"`
	Drain DrainSettings `yaml:"drain,omitempty"`

	// AuditLog controls whether lifecycle events are appended to the
	// events.log file. Defaults to on.
	AuditLog *bool `yaml:"audit_log,omitempty"`

	// History controls whether lifecycle events are recorded in the
	// history database. Defaults to on.
	History *bool `yaml:"history,omitempty"`
}

// Defaults returns the settings used when no config file exists.
func Defaults() *Settings {
	return &Settings{
		Lock: LockSettings{
			MaxAge:   Duration(5 * time.Minute),
			Timeout:  Duration(30 * time.Second),
			Interval: Duration(time.Second),
		},
		Drain: DrainSettings{
			Timeout:  Duration(60 * time.Second),
			Interval: Duration(5 * time.Second),
		},
	}
}

// Load reads settings from the given path, falling back to the default
// settings file location when path is empty. A missing file is not an
// error; defaults apply.
func Load(path string) (*Settings, error) {
	if path == "" {
		var err error
		path, err = SettingsPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve settings path: %w", err)
		}
	}

	settings := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}

	// Zero durations after unmarshal mean the key was absent; restore the
	// defaults rather than degenerating to busy loops and instant timeouts.
	def := Defaults()
	if settings.Lock.MaxAge == 0 {
		settings.Lock.MaxAge = def.Lock.MaxAge
	}
	if settings.Lock.Timeout == 0 {
		settings.Lock.Timeout = def.Lock.Timeout
	}
	if settings.Lock.Interval == 0 {
		settings.Lock.Interval = def.Lock.Interval
	}
	if settings.Drain.Timeout == 0 {
		settings.Drain.Timeout = def.Drain.Timeout
	}
	if settings.Drain.Interval == 0 {
		settings.Drain.Interval = def.Drain.Interval
	}

	return settings, nil
}

// LockPolicy returns the configured lock acquisition policy.
func (s *Settings) LockPolicy() retry.Policy {
	return retry.Policy{
		Timeout:  s.Lock.Timeout.Std(),
		Interval: s.Lock.Interval.Std(),
	}
}

// DrainPolicy returns the configured drain wait policy.
func (s *Settings) DrainPolicy() retry.Policy {
	return retry.Policy{
		Timeout:  s.Drain.Timeout.Std(),
		Interval: s.Drain.Interval.Std(),
	}
}

// AuditEnabled reports whether audit logging is on.
func (s *Settings) AuditEnabled() bool {
	return s.AuditLog == nil || *s.AuditLog
}

// HistoryEnabled reports whether history recording is on.
func (s *Settings) HistoryEnabled() bool {
	return s.History == nil || *s.History
}

// ResolveStateDir returns the directory coordination records live in,
// preferring the explicit override, then the settings file, then the XDG
// state directory.
func (s *Settings) ResolveStateDir(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if s.StateDir != "" {
		return s.StateDir, nil
	}
	return StateDir()
}
