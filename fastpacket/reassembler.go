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

// Package fastpacket reassembles NMEA2000 CAN fast-packet sequences (PGNs
// whose payload exceeds a single 8-byte CAN frame) into complete PGNFrames.
// One Reassembler is owned per device: gpsd completes a single PGN transfer
// before it will start accepting frames from the next, so there is no need
// for a pool of concurrently in-flight sequences keyed by source+PGN.
package fastpacket

import "time"

// MaxPayload bounds a reassembled fast-packet payload: 6 bytes in the first
// frame plus up to 31 continuation frames of 7 bytes each.
const MaxPayload = 6 + 31*7

// Frame is a single raw CAN frame as delivered by the device layer: an
// 8-byte (or shorter, for the final frame) payload carrying either a
// single-frame PGN or one fragment of a fast-packet sequence.
type Frame struct {
	PGN         uint32
	Priority    uint8
	Source      uint8
	Destination uint8
	Time        time.Time
	Data        []byte
}

// PGNFrame is a fully reassembled NMEA2000 parameter group, ready for driver
// decode.
type PGNFrame struct {
	PGN         uint32
	Priority    uint8
	Source      uint8
	Destination uint8
	Time        time.Time
	Data        []byte
}

// Reassembler holds the in-progress fast-packet sequence for one device. A
// nil-sequence state means no fast-packet transfer is currently open.
//
// A Reassembler locks onto the first CAN source unit it sees a frame from
// and ignores frames from every other unit for the rest of its life; only
// Reset unlocks it. This mirrors a bus carrying one GPS/AIS receiver's
// traffic alongside unrelated units' chatter that must never be blended
// into the same reassembly.
type Reassembler struct {
	// fastPGNs is the set of PGNs this device's active protocol dialect
	// delivers via the multi-frame fast-packet encoding rather than as
	// single CAN frames.
	fastPGNs map[uint32]bool

	unitLocked bool
	unit       uint8

	open *sequence
}

type sequence struct {
	pgn         uint32
	priority    uint8
	source      uint8
	destination uint8

	sequenceCounter uint8
	expectedIndex   uint8
	length          uint8
	ptr             int
	data            [MaxPayload]byte
}

// NewReassembler builds a Reassembler for a device whose protocol dialect
// carries the given PGNs as fast-packet transfers.
func NewReassembler(fastPGNs []uint32) *Reassembler {
	set := make(map[uint32]bool, len(fastPGNs))
	for _, p := range fastPGNs {
		set[p] = true
	}
	return &Reassembler{fastPGNs: set}
}

// Feed consumes one raw CAN frame. It returns a complete PGNFrame and true
// for a single-frame PGN (returned immediately) or once a fast-packet
// transfer finishes, and false for a fast-packet fragment that leaves the
// sequence still incomplete.
//
// Every frame, fast-packet or single-frame, is subject to the source-unit
// lock: the first frame Feed ever sees picks the bound unit, and any frame
// from a different unit is dropped before it can touch reassembly state.
func (r *Reassembler) Feed(f Frame) (PGNFrame, bool) {
	if !r.unitLocked {
		r.unitLocked = true
		r.unit = f.Source
	} else if f.Source != r.unit {
		return PGNFrame{}, false
	}

	if !r.fastPGNs[f.PGN] {
		return PGNFrame{
			PGN: f.PGN, Priority: f.Priority, Source: f.Source,
			Destination: f.Destination, Time: f.Time, Data: append([]byte(nil), f.Data...),
		}, true
	}
	if len(f.Data) < 2 {
		// Malformed fragment: too short to carry the sequence/length header.
		return PGNFrame{}, false
	}

	seqCounter := f.Data[0] >> 5
	frameNr := f.Data[0] & 0b0001_1111

	if frameNr == 0 {
		// Fragment index 0 always (re-)starts a transfer, even if one was
		// already open: a fresh fragment-0 is how the sender re-synchronizes
		// after any prior drop.
		s := &sequence{
			pgn: f.PGN, priority: f.Priority, source: f.Source,
			destination: f.Destination, sequenceCounter: seqCounter,
			length: f.Data[1], expectedIndex: 1,
		}
		n := copy(s.data[:], f.Data[2:])
		s.ptr = n
		r.open = s
		return r.maybeComplete(s, f.Time)
	}

	if r.open == nil || r.open.pgn != f.PGN || r.open.sequenceCounter != seqCounter || frameNr != r.open.expectedIndex {
		// Unexpected index for whatever transfer (if any) is open: reset
		// state and drop. A future fragment-0 will re-synchronize.
		r.open = nil
		return PGNFrame{}, false
	}
	s := r.open

	remaining := int(s.length) - s.ptr
	take := len(f.Data) - 1
	if take > remaining {
		take = remaining
	}
	if take > 0 {
		copy(s.data[s.ptr:s.ptr+take], f.Data[1:1+take])
		s.ptr += take
	}
	s.expectedIndex++

	return r.maybeComplete(s, f.Time)
}

func (r *Reassembler) maybeComplete(s *sequence, now time.Time) (PGNFrame, bool) {
	if s.ptr < int(s.length) {
		return PGNFrame{}, false
	}
	out := PGNFrame{
		PGN: s.pgn, Priority: s.priority, Source: s.source,
		Destination: s.destination, Time: now,
		Data: append([]byte(nil), s.data[:s.length]...),
	}
	r.open = nil
	return out, true
}

// Reset discards any in-progress fast-packet transfer and the source-unit
// lock, used when the device layer detects a gap (reconnect, buffer
// overflow) that invalidates whatever fragments had already arrived and
// whatever unit had been bound.
func (r *Reassembler) Reset() {
	r.open = nil
	r.unitLocked = false
	r.unit = 0
}
