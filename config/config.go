/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config reads the daemon's YAML device/profile list, grounded on
// facebook-time's fbclock/daemon config loader (os.ReadFile + yaml.v2
// UnmarshalStrict, an EvalAndValidate pass, a govaluate-backed formula
// override).
package config

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v2"

	"github.com/facebook/pvtd/pvt"
)

// DeviceProfile configures one device path the daemon opens at startup.
// pvtd takes its device list only from these profiles; positional
// command-line arguments are not read.
type DeviceProfile struct {
	Path         string `yaml:"path"`
	Baud         int    `yaml:"baud"`
	KindHint     string `yaml:"kind"` // "serial", "can", "tcp"; not consulted: device.Open infers the transport from Path
	PPS          bool   `yaml:"pps"`
	ErrorFormula string `yaml:"error_formula"` // overrides the default UERE formula, see pvt.UEREFormula
}

// Config is the top-level daemon configuration.
type Config struct {
	Devices          []DeviceProfile `yaml:"devices"`
	ListenAddr       string          `yaml:"listen_addr"`
	ControlSocket    string          `yaml:"control_socket"`
	SHMUnit          int             `yaml:"shm_unit"`
	MetricsAddr      string          `yaml:"metrics_addr"`
	StaleAfter       time.Duration   `yaml:"stale_after"`
	SubscriberIdle   time.Duration   `yaml:"subscriber_idle"`
}

// defaultListenAddr matches gpsd's conventional default.
const defaultListenAddr = "127.0.0.1:2947"

// defaultControlSocket matches gpsd's conventional default.
const defaultControlSocket = "/var/run/pvtd.sock"

// EvalAndValidate fills in defaults and rejects a config that can't run,
// the same shape as fbclock/daemon.Config.EvalAndValidate.
func (c *Config) EvalAndValidate() error {
	if len(c.Devices) == 0 {
		return fmt.Errorf("bad config: at least one device is required")
	}
	for i, d := range c.Devices {
		if d.Path == "" {
			return fmt.Errorf("bad config: devices[%d] missing 'path'", i)
		}
		if d.ErrorFormula != "" {
			f := &pvt.UEREFormula{Expr: d.ErrorFormula}
			if err := f.Prepare(); err != nil {
				return fmt.Errorf("bad config: devices[%d] error_formula: %w", i, err)
			}
		}
	}
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}
	if c.ControlSocket == "" {
		c.ControlSocket = defaultControlSocket
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 10 * time.Second
	}
	if c.SubscriberIdle <= 0 {
		c.SubscriberIdle = 60 * time.Second
	}
	return nil
}

// ReadConfig reads and strictly unmarshals the YAML file at path.
func ReadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := &Config{}
	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return nil, err
	}
	return c, c.EvalAndValidate()
}
