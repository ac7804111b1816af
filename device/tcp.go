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
	"context"
	"fmt"
	"net"
)

// TCP wraps a plain TCP connection to a networked GNSS receiver or an
// NTRIP-fed RTCM stream, grounded on facebook-time/responder's net.Dialer
// usage pattern.
type TCP struct {
	addr string
	conn net.Conn
}

// OpenTCP dials addr (host:port).
func OpenTCP(ctx context.Context, addr string) (*TCP, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("device: dial tcp %s: %w", addr, err)
	}
	return &TCP{addr: addr, conn: conn}, nil
}

func (t *TCP) Read(b []byte) (int, error)  { return t.conn.Read(b) }
func (t *TCP) Write(b []byte) (int, error) { return t.conn.Write(b) }
func (t *TCP) Close() error                { return t.conn.Close() }
func (t *TCP) Name() string                { return "tcp://" + t.addr }
