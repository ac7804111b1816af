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
	"github.com/facebook/pvtd/fastpacket"
	"github.com/facebook/pvtd/pvt"
)

// N2K decodes NMEA2000 PGNs already reassembled by fastpacket.Reassembler.
// It is not registered in PacketTypeDriver because its input comes from the
// CAN device layer's own frame loop, not the byte sniffer; the engine calls
// DecodePGN directly for CAN devices.
type N2K struct{}

func (N2K) Name() string { return "NMEA2000" }

// FastPacketPGNs lists the PGNs this driver expects delivered via
// fast-packet reassembly rather than as single CAN frames, for
// fastpacket.NewReassembler.
var FastPacketPGNs = []uint32{129029}

// DecodePGN dispatches a reassembled PGNFrame by PGN number.
func (n N2K) DecodePGN(f fastpacket.PGNFrame) (Result, error) {
	switch f.PGN {
	case 129025: // Position, Rapid Update
		return decodePGN129025(f)
	case 129026: // COG & SOG, Rapid Update
		return decodePGN129026(f)
	case 129029: // GNSS Position Data
		return decodePGN129029(f)
	default:
		return Result{}, &ErrUnsupported{Driver: n.Name(), Kind: pgnTag(f.PGN)}
	}
}

func pgnTag(pgn uint32) string {
	const digits = "0123456789"
	if pgn == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for pgn > 0 {
		i--
		buf[i] = digits[pgn%10]
		pgn /= 10
	}
	return string(buf[i:])
}

// decodePGN129025 parses Position, Rapid Update: lat/lon as signed 1e-7 deg
// units, little-endian, the single-frame PGN gpsd's driver_nmea2000.c uses
// for the cheapest possible position update.
func decodePGN129025(f fastpacket.PGNFrame) (Result, error) {
	if len(f.Data) < 8 {
		return Result{}, &ErrUnsupported{Driver: "NMEA2000", Kind: "129025-short"}
	}
	var r Result
	r.SentenceTag = pgnTag(f.PGN)
	r.SentenceTime = f.Time

	lat := bitfield.I32LE(f.Data, 0)
	lon := bitfield.I32LE(f.Data, 4)
	if uint32(lat) == bitfield.MissingU32 || uint32(lon) == bitfield.MissingU32 {
		return r, nil
	}
	r.Fix.Latitude = pvt.Some(float64(lat) / 1e7)
	r.Fix.Longitude = pvt.Some(float64(lon) / 1e7)
	r.Changes |= pvt.ChangeLatLon
	return r, nil
}

// decodePGN129026 parses COG & SOG, Rapid Update: course over ground
// (radians *1e-4) and speed over ground (m/s *1e-2).
func decodePGN129026(f fastpacket.PGNFrame) (Result, error) {
	if len(f.Data) < 8 {
		return Result{}, &ErrUnsupported{Driver: "NMEA2000", Kind: "129026-short"}
	}
	var r Result
	r.SentenceTag = pgnTag(f.PGN)
	r.SentenceTime = f.Time

	cog := bitfield.U16LE(f.Data, 2)
	sog := bitfield.U16LE(f.Data, 4)
	if cog != bitfield.MissingU16 {
		const radToDeg = 180.0 / 3.14159265358979323846
		r.Fix.Track = pvt.Some(float64(cog) * 1e-4 * radToDeg)
		r.Changes |= pvt.ChangeTrack
	}
	if sog != bitfield.MissingU16 {
		r.Fix.Speed = pvt.Some(float64(sog) * 1e-2)
		r.Changes |= pvt.ChangeSpeed
	}
	return r, nil
}

// decodePGN129029 parses GNSS Position Data, the richest single PGN: date,
// time-of-day, lat/lon/altitude, GNSS method (fix mode), and DOPs. It is
// always delivered via fast-packet reassembly since its payload exceeds one
// CAN frame.
func decodePGN129029(f fastpacket.PGNFrame) (Result, error) {
	if len(f.Data) < 43 {
		return Result{}, &ErrUnsupported{Driver: "NMEA2000", Kind: "129029-short"}
	}
	var r Result
	r.SentenceTag = pgnTag(f.PGN)
	r.SentenceTime = f.Time

	daysSinceEpoch := bitfield.U16LE(f.Data, 1)
	secondsOfDay := bitfield.U32LE(f.Data, 3)
	if daysSinceEpoch != bitfield.MissingU16 {
		t := time.Unix(int64(daysSinceEpoch)*86400, 0).UTC().Add(time.Duration(secondsOfDay) * 10 * time.Millisecond)
		r.Fix.Time = pvt.Some(float64(t.Unix()))
		r.Changes |= pvt.ChangeTime
	}

	lat := bitfield.I64LE(f.Data, 7)
	lon := bitfield.I64LE(f.Data, 15)
	r.Fix.Latitude = pvt.Some(float64(lat) * 1e-16)
	r.Fix.Longitude = pvt.Some(float64(lon) * 1e-16)
	r.Changes |= pvt.ChangeLatLon

	alt := bitfield.I64LE(f.Data, 23)
	r.Fix.Altitude = pvt.Some(float64(alt) * 1e-6)
	r.Changes |= pvt.ChangeAltitude

	method := (f.Data[31] >> 4) & 0x0F
	switch method {
	case 0:
		r.Status = pvt.StatusNoFix
		r.Fix.Mode = pvt.ModeNoFix
	case 2:
		r.Status = pvt.StatusDGPSFix
		r.Fix.Mode = pvt.Mode3D
	case 1, 3, 4, 5:
		r.Status = pvt.StatusFix
		r.Fix.Mode = pvt.Mode3D
	default:
		r.Status = pvt.StatusNoFix
		r.Fix.Mode = pvt.ModeNoFix
	}
	r.Changes |= pvt.ChangeStatus | pvt.ChangeMode

	hdop := bitfield.I16LE(f.Data, 34)
	pdop := bitfield.I16LE(f.Data, 36)
	if uint16(hdop) != bitfield.MissingU16 {
		r.DOP.HDOP = pvt.Some(float64(hdop) * 0.01)
	}
	if uint16(pdop) != bitfield.MissingU16 {
		r.DOP.PDOP = pvt.Some(float64(pdop) * 0.01)
	}
	r.Changes |= pvt.ChangeDOPs

	return r, nil
}
