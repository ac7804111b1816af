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

// Package shmexport writes NTP SHM segments in the driver28 layout so ntpd
// or chrony can consume a device's time without an intervening socket.
// Grounded bit-for-bit on facebook-time's ntp/shm reader; generalized here
// into a writer covering two segments per device (the NMEA-derived clock
// sample and, when available, the PPS-disciplined sample), keyed the way
// gpsd's shmNTP does: base key plus unit number, PPS unit offset by one
// from its paired clock unit.
package shmexport

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/facebook/pvtd/hostendian"
)

// baseKey is NTP SHM segment 0's System V IPC key.
// http://doc.ntp.org/current-stable/drivers/driver28.html
const baseKey = 0x4e545030

// ipcCreate requests segment creation if the key doesn't already exist.
const ipcCreate = 00001000

// segmentSize is the size of the segment struct below.
const segmentSize = 96

// ClockUnitOffset and PPSUnitOffset give the conventional pairing ntpd's refclock_shm
// driver expects: unit N carries the coarse serial-derived time, unit N+1
// the PPS-disciplined time for the same device.
const (
	ClockUnitOffset = 0
	PPSUnitOffset   = 1
)

// segment is the SHM segment layout from ntpd/refclock_shm.c, unchanged
// from facebook-time's ntp/shm.NTPSHM.
type segment struct {
	Mode                 int32
	Count                int32
	ClockTimeStampSec    int64
	ClockTimeStampUSec   int32
	ReceiveTimeStampSec  int64
	ReceiveTimeStampUSec int32
	Leap                 int32
	Precision            int32
	Nsamples             int32
	Valid                int32
	ClockTimeStampNSec   int32
	ReceiveTimeStampNSec int32
	Dummy                [8]int32
}

// Sample is one time reading to publish: real is the time the reading
// refers to (the NMEA or PPS second), clock is the local wall clock at the
// moment it was observed.
type Sample struct {
	Real      time.Time
	Clock     time.Time
	Leap      int32
	Precision int32
}

// Writer owns one attached SHM segment and publishes samples into it using
// the seqlock-style parity-counter protocol ntpd's reader expects: Count is
// incremented (becoming odd) before the fields are written and incremented
// again (becoming even) after, so a concurrent reader can detect a
// torn read by checking Count is even and unchanged across its own read.
type Writer struct {
	unit int
	ptr  uintptr
}

// NewWriter creates (or attaches to an existing) SHM segment for unit and
// returns a Writer bound to it.
func NewWriter(unit int) (*Writer, error) {
	key := uintptr(baseKey + unit)
	shmID, _, errno := unix.Syscall(unix.SYS_SHMGET, key, segmentSize, uintptr(ipcCreate|0600))
	if errno != 0 {
		return nil, fmt.Errorf("shmexport: shmget unit %d: %s", unit, unix.ErrnoName(errno))
	}
	shmptr, _, errno := unix.Syscall(unix.SYS_SHMAT, shmID, 0, 0)
	if errno != 0 {
		return nil, fmt.Errorf("shmexport: shmat unit %d: %s", unit, unix.ErrnoName(errno))
	}
	return &Writer{unit: unit, ptr: shmptr}, nil
}

// Write publishes s into the segment using the parity-counter protocol.
func (w *Writer) Write(s Sample) error {
	seg := w.attached()

	seg.Valid = 0
	seg.Mode = 1
	seg.Count++ // now odd: readers must retry

	seg.ClockTimeStampSec = s.Clock.Unix()
	seg.ClockTimeStampUSec = int32(s.Clock.Nanosecond() / 1000)
	seg.ClockTimeStampNSec = int32(s.Clock.Nanosecond())
	seg.ReceiveTimeStampSec = s.Real.Unix()
	seg.ReceiveTimeStampUSec = int32(s.Real.Nanosecond() / 1000)
	seg.ReceiveTimeStampNSec = int32(s.Real.Nanosecond())
	seg.Leap = s.Leap
	seg.Precision = s.Precision
	seg.Nsamples++

	if err := w.store(seg); err != nil {
		return err
	}

	seg.Count++ // even again: safe to read
	seg.Valid = 1
	return w.store(seg)
}

// Close detaches the writer's segment.
func (w *Writer) Close() error {
	_, _, errno := unix.Syscall(unix.SYS_SHMDT, w.ptr, 0, 0)
	if errno != 0 {
		return fmt.Errorf("shmexport: shmdt unit %d: %s", w.unit, unix.ErrnoName(errno))
	}
	return nil
}

func (w *Writer) attached() *segment {
	seg, _ := ptrToSegment(w.ptr)
	return seg
}

func (w *Writer) store(seg *segment) error {
	b := ptrToBytes(w.ptr)
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, hostendian.Order, seg); err != nil {
		return err
	}
	copy(b, buf.Bytes())
	return nil
}

func ptrToBytes(shmptr uintptr) []byte {
	var sl = struct {
		addr uintptr
		len  int
		cap  int
	}{shmptr, segmentSize, segmentSize}
	return *(*[]byte)(unsafe.Pointer(&sl))
}

func ptrToSegment(shmptr uintptr) (*segment, error) {
	b := ptrToBytes(shmptr)
	s := &segment{}
	r := bytes.NewReader(b)
	err := binary.Read(r, hostendian.Order, s)
	return s, err
}

// Read attaches to unit's segment and returns its current contents,
// matching facebook-time's ntp/shm reader for cross-checking what was
// published.
func Read(unit int) (Sample, error) {
	key := uintptr(baseKey + unit)
	shmID, _, errno := unix.Syscall(unix.SYS_SHMGET, key, 0, uintptr(0400))
	if errno != 0 {
		return Sample{}, fmt.Errorf("shmexport: shmget unit %d: %s", unit, unix.ErrnoName(errno))
	}
	shmptr, _, errno := unix.Syscall(unix.SYS_SHMAT, shmID, 0, 0)
	if errno != 0 {
		return Sample{}, fmt.Errorf("shmexport: shmat unit %d: %s", unit, unix.ErrnoName(errno))
	}
	seg, err := ptrToSegment(shmptr)
	if err != nil {
		return Sample{}, err
	}
	return Sample{
		Clock:     time.Unix(seg.ClockTimeStampSec, int64(seg.ClockTimeStampNSec)),
		Real:      time.Unix(seg.ReceiveTimeStampSec, int64(seg.ReceiveTimeStampNSec)),
		Leap:      seg.Leap,
		Precision: seg.Precision,
	}, nil
}
