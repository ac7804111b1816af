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

package pvt

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// MaxChannels bounds the satellite table. 12 is the conventional GPS
// constellation-in-view limit; raising it is safe, silently truncating is
// not.
const MaxChannels = 12

// DOP holds the dilution-of-precision figures for the current solution.
type DOP struct {
	PDOP Value
	HDOP Value
	VDOP Value
	TDOP Value
	GDOP Value
}

// Satellite is one row of the in-view satellite table.
type Satellite struct {
	PRN       int
	Elevation Value // degrees
	Azimuth   Value // degrees
	SS        Value // signal strength, dB-Hz
	Used      bool
}

// Profiling carries the timestamps used by the "$" verb's latency snapshot.
type Profiling struct {
	SentenceTime time.Time // time embedded in the wire sentence, if any
	Transmit     time.Time // device transmit time, if the protocol carries it
	Receive      time.Time // daemon read-from-wire time
	Decode       time.Time // daemon finished decoding
	Poll         time.Time // last time a client polled this device
}

// DeviceSnapshot is the current view of one open device: its last fix, DOPs,
// satellite table, and decode bookkeeping. It is mutated exclusively by the
// poller goroutine for that device and read by the command layer under the
// engine's device-table discipline (see session.Engine).
type DeviceSnapshot struct {
	Path string

	Fix Fix
	DOP DOP

	Satellites   []Satellite // bounded to MaxChannels entries
	UsedPRNs     []int
	SatsVisible  int
	Status       Status
	PacketType   string // decoder-assigned packet type, e.g. "NMEA", "SiRF binary"
	DriverName   string
	Baud         int
	Parity       byte
	StopBits     int
	LastSentence string // 4-char tag of the last sentence/PGN processed

	Profiling Profiling

	// Active is false once the device has been deactivated (I/O error or
	// control-socket removal); the engine clears the fd and every
	// subscriber affinity pointing at this device in the same step.
	Active bool

	FD int
}

// NewDeviceSnapshot returns a zeroed, inactive-until-opened snapshot for path.
func NewDeviceSnapshot(path string) *DeviceSnapshot {
	return &DeviceSnapshot{
		Path:       path,
		Satellites: make([]Satellite, 0, MaxChannels),
		FD:         -1,
	}
}

// SetSatellites replaces the satellite table, enforcing the MaxChannels bound
// (logging a warning whenever entries are dropped) and the invariant that
// every used satellite's PRN also appears in UsedPRNs.
func (d *DeviceSnapshot) SetSatellites(sats []Satellite) {
	if len(sats) > MaxChannels {
		log.WithFields(log.Fields{"device": d.Path, "satellites": len(sats)}).Warnf("pvt: satellite table truncated to %d entries", MaxChannels)
		sats = sats[:MaxChannels]
	}
	d.Satellites = append(d.Satellites[:0], sats...)
	d.UsedPRNs = d.UsedPRNs[:0]
	for _, s := range d.Satellites {
		if s.Used {
			d.UsedPRNs = append(d.UsedPRNs, s.PRN)
		}
	}
	d.SatsVisible = len(d.Satellites)
}

// Deactivate marks the device inactive and clears its fd. The caller
// (session.Engine) is responsible for clearing subscriber affinities in the
// same critical section, so no subscriber is left pointing at a dead
// device.
func (d *DeviceSnapshot) Deactivate() {
	d.Active = false
	d.FD = -1
}
