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

package session

import (
	"encoding/hex"
	"strings"

	"github.com/facebook/pvtd/pvt"
)

// DeviceOpener is the minimal callback the control socket needs to open a
// new device's transport and write to an open one; the concrete
// implementation lives in the daemon, which owns the device package and
// poller goroutines.
type DeviceOpener interface {
	OpenDevice(path string) error
	WriteDevice(path string, data []byte) error
}

// HandleControlLine executes one privileged control-socket request:
//
//	-path        remove device
//	+path        add device
//	!path=bytes  send hex-encoded bytes to device
//
// and returns "OK" or "ERROR".
func (e *Engine) HandleControlLine(opener DeviceOpener, line string) string {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "ERROR"
	}

	switch line[0] {
	case '-':
		path := line[1:]
		if _, ok := e.Device(path); !ok {
			return "ERROR"
		}
		e.RemoveDevice(path)
		return "OK"

	case '+':
		path := line[1:]
		if _, ok := e.Device(path); ok {
			return "OK" // already open is not an error
		}
		if err := opener.OpenDevice(path); err != nil {
			return "ERROR"
		}
		e.AddDevice(pvt.NewDeviceSnapshot(path))
		return "OK"

	case '!':
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			return "ERROR"
		}
		path := line[1:eq]
		raw, err := hex.DecodeString(line[eq+1:])
		if err != nil {
			return "ERROR"
		}
		if _, ok := e.Device(path); !ok {
			return "ERROR"
		}
		if err := opener.WriteDevice(path, raw); err != nil {
			return "ERROR"
		}
		return "OK"

	default:
		return "ERROR"
	}
}
