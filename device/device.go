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

// Package device opens the transports a location source can arrive over
// (serial, raw CAN bus, TCP) behind one narrow interface so the rest of the
// daemon never branches on transport kind. Grounded on aldas-go-nmea-client's
// RawMessageReaderWriter split, adapted to a single ReadWriteCloser since
// this daemon's packet sniffer already demultiplexes wire formats from a
// raw byte stream rather than needing transport-level framing.
package device

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// ReadWriter is the minimum a device transport must support: byte-stream
// reads for the sniffer, writes for the privileged control verbs, and a
// name for logging/diagnostics.
type ReadWriter interface {
	io.ReadWriteCloser
	Name() string
}

// Kind identifies which transport backs a device path.
type Kind int

const (
	KindUnknown Kind = iota
	KindSerial
	KindCAN
	KindTCP
)

// ParseKind infers the transport a device path names, following gpsd's own
// convention of prefixing non-serial paths with a scheme
// (tcp://host:port, can:can0). A path under /dev/ is serial; any other path
// is KindUnknown.
func ParseKind(path string) Kind {
	switch {
	case strings.HasPrefix(path, "tcp://"):
		return KindTCP
	case strings.HasPrefix(path, "can:"):
		return KindCAN
	case strings.HasPrefix(path, "/dev/"):
		return KindSerial
	default:
		return KindUnknown
	}
}

// Open opens path using the transport ParseKind infers for it.
func Open(ctx context.Context, path string) (ReadWriter, error) {
	switch ParseKind(path) {
	case KindSerial:
		return OpenSerial(path)
	case KindCAN:
		return OpenCAN(ctx, strings.TrimPrefix(path, "can:"))
	case KindTCP:
		u, err := url.Parse(path)
		if err != nil {
			return nil, fmt.Errorf("device: bad tcp path %q: %w", path, err)
		}
		return OpenTCP(ctx, u.Host)
	default:
		return nil, fmt.Errorf("device: cannot infer transport for %q", path)
	}
}
