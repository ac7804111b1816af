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

package device

import (
	"fmt"

	"go.bug.st/serial"
)

// defaultBaud matches the NMEA 0183 / SiRF default most receivers power up
// at before autobauding settles on their configured rate.
const defaultBaud = 4800

// Serial wraps a go.bug.st/serial port, grounded on sa53fw/mac's Mac type
// (open with an explicit Mode, plain Read/Write passthrough, Close on the
// underlying port).
type Serial struct {
	path string
	port serial.Port
}

// OpenSerial opens path at defaultBaud. Callers that know a receiver's
// configured rate can switch the open port to it with SetBaud once the
// sniffer or a driver reports NAK/garbage at the default rate.
func OpenSerial(path string) (*Serial, error) {
	mode := &serial.Mode{BaudRate: defaultBaud}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("device: open serial %s: %w", path, err)
	}
	return &Serial{path: path, port: port}, nil
}

// SetBaud reconfigures the open port's baud rate in place.
func (s *Serial) SetBaud(baud int) error {
	return s.port.SetMode(&serial.Mode{BaudRate: baud})
}

func (s *Serial) Read(b []byte) (int, error)  { return s.port.Read(b) }
func (s *Serial) Write(b []byte) (int, error) { return s.port.Write(b) }
func (s *Serial) Close() error                { return s.port.Close() }
func (s *Serial) Name() string                { return s.path }
