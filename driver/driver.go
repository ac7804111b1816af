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

// Package driver dispatches a recognized packet to the decoder for its wire
// format and normalizes the result into a pvt.Fix delta plus change-set,
// mirroring gpsd's per-protocol driver table but expressed as a Go interface
// instead of a struct of function pointers.
package driver

import (
	"fmt"
	"time"

	"github.com/facebook/pvtd/packet"
	"github.com/facebook/pvtd/pvt"
)

// Result is what a driver produces from one recognized frame: the fields
// that changed, the new values for them, and anything that updates the
// device snapshot outside the Fix itself (DOP, satellites, status, a
// human-readable tag for the last sentence/PGN processed).
type Result struct {
	Changes pvt.ChangeSet
	Fix     pvt.Fix
	Status  pvt.Status

	DOP        pvt.DOP
	Satellites []pvt.Satellite

	// SentenceTag is a short identifier for the frame just decoded (e.g.
	// "GGA", "129025"), surfaced in DeviceSnapshot.LastSentence and the "$"
	// profiling verb.
	SentenceTag string

	// SentenceTime, if the wire format embeds one, is the time the receiver
	// itself stamped the sentence with, independent of pvt.Fix.Time (which
	// may be derived across several sentences in a reporting cycle).
	SentenceTime time.Time
}

// Driver decodes frames of one wire format dialect into Results. A Driver
// instance is stateful only in the sense of aldas-go-nmea-client's PGN
// decoder table: it holds no per-device mutable state itself, since that
// lives in the DeviceSnapshot the caller folds Results into.
type Driver interface {
	// Name identifies the driver, e.g. "NMEA0183", "SiRF binary", "Zodiac
	// binary", "NMEA2000".
	Name() string

	// Decode parses one complete, checksum-validated frame and returns the
	// normalized delta. An error means the frame was recognized by the
	// sniffer/reassembler but could not be decoded further (unsupported
	// sentence/PGN, truncated payload); the caller logs it at Debug and
	// drops the frame without changing the snapshot.
	Decode(frame []byte, now time.Time) (Result, error)
}

// PacketTypeDriver maps a packet.Type to the driver responsible for frames
// of that type. NMEA2000 is handled out of band (via DecodePGN) because its
// input is already-reassembled PGNFrame data, not a packet.Frame.
var PacketTypeDriver = map[packet.Type]Driver{
	packet.TypeNMEA:   NMEA0183{},
	packet.TypeSiRF:   SiRF{},
	packet.TypeZodiac: Zodiac{},
}

// ErrUnsupported is returned by a driver for a recognized-but-not-decoded
// sentence or message kind, e.g. a proprietary NMEA sentence this daemon
// does not translate.
type ErrUnsupported struct {
	Driver string
	Kind   string
}

func (e *ErrUnsupported) Error() string {
	return fmt.Sprintf("%s: unsupported message kind %q", e.Driver, e.Kind)
}
