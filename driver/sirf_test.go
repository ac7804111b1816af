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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/facebook/pvtd/pvt"
)

func putU32BE(b []byte, off int, v int32) {
	u := uint32(v)
	b[off] = byte(u >> 24)
	b[off+1] = byte(u >> 16)
	b[off+2] = byte(u >> 8)
	b[off+3] = byte(u)
}

func putU16BE(b []byte, off int, v uint16) {
	b[off] = byte(v >> 8)
	b[off+1] = byte(v)
}

func sirfTestFrame(payload []byte) []byte {
	frame := []byte{0xA0, 0xA2, byte(len(payload) >> 8), byte(len(payload))}
	return append(frame, payload...)
}

func TestDecodeSiRFGeodeticExtractsPositionAndMode(t *testing.T) {
	payload := make([]byte, 91)
	payload[0] = 0x29
	putU16BE(payload, 1, 0x0000) // nav valid: valid fix
	putU16BE(payload, 3, 0x0000) // nav type
	putU32BE(payload, 23, 481173000)  // lat *1e7
	putU32BE(payload, 27, 115166670) // lon *1e7
	putU32BE(payload, 31, 54540)     // altitude *100
	putU16BE(payload, 39, 500)       // speed cm/s
	putU16BE(payload, 41, 9000)      // heading *100
	putU32BE(payload, 50, 150)       // ehpe cm
	putU32BE(payload, 54, 300)       // evpe cm
	payload[88] = 6                  // svUsed

	d := SiRF{}
	res, err := d.Decode(sirfTestFrame(payload), time.Now())

	require.NoError(t, err)
	require.Equal(t, pvt.StatusFix, res.Status)
	require.Equal(t, pvt.Mode3D, res.Fix.Mode)

	lat, _ := res.Fix.Latitude.Get()
	require.InDelta(t, 48.1173, lat, 1e-4)
	alt, _ := res.Fix.Altitude.Get()
	require.InDelta(t, 545.4, alt, 1e-6)
	eph, _ := res.Fix.EPH.Get()
	require.InDelta(t, 1.5, eph, 1e-6)
}

func TestDecodeSiRFGeodeticNavInvalidIsNoFix(t *testing.T) {
	payload := make([]byte, 91)
	payload[0] = 0x29
	putU16BE(payload, 1, 0x0001) // nav valid bit set: invalid
	payload[88] = 0

	d := SiRF{}
	res, err := d.Decode(sirfTestFrame(payload), time.Now())

	require.NoError(t, err)
	require.Equal(t, pvt.StatusNoFix, res.Status)
	require.Equal(t, pvt.ModeNoFix, res.Fix.Mode)
}

func TestDecodeSiRFUnsupportedMessageID(t *testing.T) {
	payload := []byte{0x06, 'v', '1'}
	d := SiRF{}

	_, err := d.Decode(sirfTestFrame(payload), time.Now())

	require.Error(t, err)
}
