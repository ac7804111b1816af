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

package driver

import (
	"time"

	"github.com/facebook/pvtd/bitfield"
	"github.com/facebook/pvtd/pvt"
)

// SiRF decodes SiRF binary messages framed A0 A2 <len> <payload> <cksum> B0
// B3. Only the two message IDs gpsd's sirf.c treats as primary navigation
// sources are decoded; everything else is reported via ErrUnsupported so the
// engine can still bump its packet counters without mutating the snapshot.
type SiRF struct{}

func (SiRF) Name() string { return "SiRF binary" }

// Payload offsets within a SiRF frame: 2 leader bytes, 2 length bytes, then
// the message payload starting with the 1-byte message ID.
const sirfPayloadOffset = 4

func (s SiRF) Decode(frame []byte, now time.Time) (Result, error) {
	if len(frame) < sirfPayloadOffset+1 {
		return Result{}, &ErrUnsupported{Driver: s.Name(), Kind: "short"}
	}
	payload := frame[sirfPayloadOffset:]
	msgID := payload[0]

	switch msgID {
	case 0x29: // Geodetic Navigation Data
		return decodeSiRFGeodetic(payload, now)
	case 0x02: // Measure Navigation Data Out
		return decodeSiRFMeasureNav(payload, now)
	default:
		return Result{}, &ErrUnsupported{Driver: s.Name(), Kind: msgIDHex(msgID)}
	}
}

func msgIDHex(id byte) string {
	const digits = "0123456789abcdef"
	return "0x" + string([]byte{digits[id>>4], digits[id&0xF]})
}

// decodeSiRFGeodetic parses message ID 0x29: scaled lat/lon/altitude, speed,
// heading, EHPE/EVPE uncertainties and the fix-mode nibble, all big-endian
// per SiRF's binary protocol spec.
func decodeSiRFGeodetic(p []byte, now time.Time) (Result, error) {
	if len(p) < 91 {
		return Result{}, &ErrUnsupported{Driver: "SiRF binary", Kind: "geodetic-short"}
	}
	var r Result
	r.SentenceTag = "0x29"
	r.SentenceTime = now

	navValid := bitfield.U16BE(p, 1)
	navType := bitfield.U16BE(p, 3)

	lat := float64(bitfield.I32BE(p, 23)) / 1e7
	lon := float64(bitfield.I32BE(p, 27)) / 1e7
	r.Fix.Latitude = pvt.Some(lat)
	r.Fix.Longitude = pvt.Some(lon)
	r.Changes |= pvt.ChangeLatLon

	altEllipsoid := float64(bitfield.I32BE(p, 31)) / 100.0
	r.Fix.Altitude = pvt.Some(altEllipsoid)
	r.Changes |= pvt.ChangeAltitude

	headingDeg := float64(bitfield.U16BE(p, 41)) / 100.0
	speedMps := float64(bitfield.U16BE(p, 39)) / 100.0
	r.Fix.Track = pvt.Some(headingDeg)
	r.Fix.Speed = pvt.Some(speedMps)
	r.Changes |= pvt.ChangeTrack | pvt.ChangeSpeed

	ehpe := float64(bitfield.U32BE(p, 50)) / 100.0
	evpe := float64(bitfield.U32BE(p, 54)) / 100.0
	r.Fix.EPH = pvt.Some(ehpe)
	r.Fix.EPV = pvt.Some(evpe)
	r.Changes |= pvt.ChangeEPE

	svUsed := p[88]
	if navValid&0x0001 != 0 || svUsed == 0 {
		r.Status = pvt.StatusNoFix
		r.Fix.Mode = pvt.ModeNoFix
	} else if navType&0x0007 == 0x0004 {
		r.Status = pvt.StatusDGPSFix
		r.Fix.Mode = pvt.Mode3D
	} else if svUsed >= 4 {
		r.Status = pvt.StatusFix
		r.Fix.Mode = pvt.Mode3D
	} else {
		r.Status = pvt.StatusFix
		r.Fix.Mode = pvt.Mode2D
	}
	r.Changes |= pvt.ChangeStatus | pvt.ChangeMode

	return r, nil
}

// decodeSiRFMeasureNav parses message ID 0x02: ECEF position/velocity and
// the coarse mode byte. gpsd's sirf.c uses this mostly to fill in velocity
// before a 0x29 arrives; here it only contributes mode/status.
func decodeSiRFMeasureNav(p []byte, now time.Time) (Result, error) {
	if len(p) < 20 {
		return Result{}, &ErrUnsupported{Driver: "SiRF binary", Kind: "measurenav-short"}
	}
	var r Result
	r.SentenceTag = "0x02"
	r.SentenceTime = now

	modeByte := p[19]
	switch modeByte & 0x07 {
	case 0:
		r.Status = pvt.StatusNoFix
		r.Fix.Mode = pvt.ModeNoFix
	default:
		r.Status = pvt.StatusFix
		r.Fix.Mode = pvt.Mode3D
	}
	r.Changes |= pvt.ChangeStatus | pvt.ChangeMode
	return r, nil
}
