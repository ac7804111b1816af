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

package packet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func nmeaSentence(body string) []byte {
	var crc byte
	for i := 0; i < len(body); i++ {
		crc ^= body[i]
	}
	return []byte("$" + body + "*" + hex(crc) + "\r\n")
}

func hex(b byte) string {
	const digits = "0123456789ABCDEF"
	return string([]byte{digits[b>>4], digits[b&0xF]})
}

func TestSniffRecognizesNMEAWithValidChecksum(t *testing.T) {
	s := NewSniffer()
	frame := nmeaSentence("GPGGA,123519,4807.038,N")

	frames := s.Feed(frame, time.Now())

	require.Len(t, frames, 1)
	require.Equal(t, TypeNMEA, frames[0].Type)
	require.Equal(t, frame, frames[0].Raw)
}

func TestSniffDiscardsLeadingGarbageBeforeNMEA(t *testing.T) {
	s := NewSniffer()
	garbage := []byte{0x11, 0x22, 0x33, 0x44}
	frame := nmeaSentence("GPRMC,123519,A")

	frames := s.Feed(append(garbage, frame...), time.Now())

	require.Len(t, frames, 1)
	require.Equal(t, TypeNMEA, frames[0].Type)
	require.Equal(t, frame, frames[0].Raw)
}

func TestSniffRejectsNMEAWithBadChecksum(t *testing.T) {
	s := NewSniffer()
	frame := nmeaSentence("GPGGA,123519,4807.038,N")
	frame[len(frame)-4] ^= 0xF0 // corrupt one checksum hex digit

	frames := s.Feed(frame, time.Now())

	require.Len(t, frames, 0)
	require.Equal(t, 1, s.ChecksumFailures)
}

func sirfFrame(payload []byte) []byte {
	var sum uint32
	for _, b := range payload {
		sum += uint32(b)
	}
	sum &= 0x7FFF
	out := []byte{0xA0, 0xA2, byte(len(payload) >> 8), byte(len(payload))}
	out = append(out, payload...)
	out = append(out, byte(sum>>8), byte(sum))
	out = append(out, 0xB0, 0xB3)
	return out
}

func TestSniffRecognizesSiRFWAASVersionID(t *testing.T) {
	s := NewSniffer()
	// message ID 0x06 (SW version) with a short ASCII payload.
	frame := sirfFrame([]byte{0x06, 'v', '1', '.', '0'})

	frames := s.Feed(frame, time.Now())

	require.Len(t, frames, 1)
	require.Equal(t, TypeSiRF, frames[0].Type)
	require.Equal(t, frame, frames[0].Raw)
}

func TestSniffRejectsSiRFWithWrongChecksum(t *testing.T) {
	s := NewSniffer()
	frame := sirfFrame([]byte{0x06, 'v', '1', '.', '0'})
	frame[len(frame)-3] ^= 0xFF // corrupt checksum low byte

	frames := s.Feed(frame, time.Now())

	require.Len(t, frames, 0)
	require.Equal(t, 1, s.ChecksumFailures)
}

func TestSniffRecognizesASTRALWakeupString(t *testing.T) {
	s := NewSniffer()
	frame := []byte("ASTRAL\n")

	frames := s.Feed(frame, time.Now())

	require.Len(t, frames, 1)
	require.Equal(t, TypeVendorWakeup, frames[0].Type)
	require.Equal(t, frame, frames[0].Raw)
}

func TestSniffRecognizesEARTHAWakeupString(t *testing.T) {
	s := NewSniffer()
	frame := []byte("EARTHA\n")

	frames := s.Feed(frame, time.Now())

	require.Len(t, frames, 1)
	require.Equal(t, TypeVendorWakeup, frames[0].Type)
	require.Equal(t, frame, frames[0].Raw)
}

func TestSniffVendorWakeupFallsBackToGroundOnMismatch(t *testing.T) {
	s := NewSniffer()
	// "ASTRAY" diverges from ASTRAL at the sixth byte; the state machine
	// must drop back to ground rather than get stuck mid-match.
	frames := s.Feed([]byte("ASTRAY"), time.Now())
	require.Len(t, frames, 0)

	frame := nmeaSentence("GPGSA,A,3")
	frames = s.Feed(frame, time.Now())
	require.Len(t, frames, 1)
	require.Equal(t, TypeNMEA, frames[0].Type)
}

func TestSniffResetsOnOverflow(t *testing.T) {
	s := NewSniffer()
	junk := make([]byte, MaxPacketLength+10)
	junk[0], junk[1] = '$', 'G' // opens an NMEA sentence that never terminates
	for i := 2; i < len(junk); i++ {
		junk[i] = 'x' // accumulates in the NMEA body until the buffer overflows
	}
	frames := s.Feed(junk, time.Now())
	require.Len(t, frames, 0)

	// The sniffer should still be usable afterward.
	frame := nmeaSentence("GPGSA,A,3")
	frames = s.Feed(frame, time.Now())
	require.Len(t, frames, 1)
}
