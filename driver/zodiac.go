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

// Zodiac decodes Rockwell/Zodiac binary messages framed FF 81 <id> <words...>.
// Only message 1000 (PVT report), the sole navigation-bearing message type
// gpsd's zodiac.c normalizes into a Fix, is decoded; everything else is
// unsupported.
type Zodiac struct{}

func (Zodiac) Name() string { return "Zodiac binary" }

// zodiacHeaderBytes is the 5 little-endian 16-bit header words (sync, ID,
// data-word count, flags, header checksum) preceding the data words.
const zodiacHeaderBytes = 10

func (z Zodiac) Decode(frame []byte, now time.Time) (Result, error) {
	if len(frame) < zodiacHeaderBytes {
		return Result{}, &ErrUnsupported{Driver: z.Name(), Kind: "short"}
	}
	id := bitfield.U16LE(frame, 2)
	data := frame[zodiacHeaderBytes:]

	switch id {
	case 1000:
		return decodeZodiacPVT(data, now)
	default:
		return Result{}, &ErrUnsupported{Driver: z.Name(), Kind: msgIDHex(byte(id))}
	}
}

// decodeZodiacPVT parses message 1000's fixed-point lat/lon (semicircles),
// altitude (cm), speed (cm/s), and a 1-byte solution-type field gpsd's
// zodiac.c maps to a fix mode.
func decodeZodiacPVT(data []byte, now time.Time) (Result, error) {
	if len(data) < 40 {
		return Result{}, &ErrUnsupported{Driver: "Zodiac binary", Kind: "pvt-short"}
	}
	var r Result
	r.SentenceTag = "1000"
	r.SentenceTime = now

	const semicircle = 180.0 / (1 << 31)
	lat := float64(bitfield.I32LE(data, 0)) * semicircle
	lon := float64(bitfield.I32LE(data, 4)) * semicircle
	r.Fix.Latitude = pvt.Some(lat)
	r.Fix.Longitude = pvt.Some(lon)
	r.Changes |= pvt.ChangeLatLon

	altCM := bitfield.I32LE(data, 8)
	r.Fix.Altitude = pvt.Some(float64(altCM) / 100.0)
	r.Changes |= pvt.ChangeAltitude

	speedCMPS := bitfield.I32LE(data, 12)
	r.Fix.Speed = pvt.Some(float64(speedCMPS) / 100.0)
	r.Changes |= pvt.ChangeSpeed

	solutionType := data[36]
	switch solutionType {
	case 0:
		r.Status = pvt.StatusNoFix
		r.Fix.Mode = pvt.ModeNoFix
	case 1:
		r.Status = pvt.StatusFix
		r.Fix.Mode = pvt.Mode2D
	default:
		r.Status = pvt.StatusFix
		r.Fix.Mode = pvt.Mode3D
	}
	r.Changes |= pvt.ChangeStatus | pvt.ChangeMode
	return r, nil
}
