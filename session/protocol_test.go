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

package session

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/facebook/pvtd/pvt"
)

func newTestSubscriber(t *testing.T) (*Subscriber, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { server.Close(); client.Close() })
	return NewSubscriber(server), client
}

func TestHandleLineLVerbReportsVersionAndVerbs(t *testing.T) {
	e := NewEngine()
	sub, client := newTestSubscriber(t)
	defer client.Close()

	resp := e.HandleLine(sub, "L")
	require.Contains(t, resp, "GPSD,L="+ProtocolVersion)
}

func TestHandleLineUnassignedDeviceReturnsMissingFields(t *testing.T) {
	e := NewEngine()
	sub, _ := newTestSubscriber(t)

	resp := e.HandleLine(sub, "P")

	require.Equal(t, "GPSD,P=?", resp)
}

func TestHandleLinePVerbReportsPositionOnceAssigned(t *testing.T) {
	e := NewEngine()
	d := pvt.NewDeviceSnapshot("/dev/ttyUSB0")
	d.Active = true
	d.Fix.Latitude = pvt.Some(48.1173)
	d.Fix.Longitude = pvt.Some(11.516667)
	e.AddDevice(d)

	sub, _ := newTestSubscriber(t)
	resp := e.HandleLine(sub, "P")

	require.Equal(t, "GPSD,P=48.1173 11.516667", resp)
}

func TestPrivilegedVerbRejectedWhenNotSolo(t *testing.T) {
	e := NewEngine()
	d := pvt.NewDeviceSnapshot("/dev/ttyUSB0")
	d.Active = true
	e.AddDevice(d)

	sub1, _ := newTestSubscriber(t)
	sub1.DeviceID = d.Path
	e.AddSubscriber(sub1)
	sub2, _ := newTestSubscriber(t)
	sub2.DeviceID = d.Path
	e.AddSubscriber(sub2)

	resp := e.HandleLine(sub1, "B=4800")

	require.Equal(t, "GPSD,B=ERROR", resp)
}

func TestPrivilegedVerbAllowedWhenSolo(t *testing.T) {
	e := NewEngine()
	d := pvt.NewDeviceSnapshot("/dev/ttyUSB0")
	d.Active = true
	e.AddDevice(d)

	sub, _ := newTestSubscriber(t)
	sub.DeviceID = d.Path
	e.AddSubscriber(sub)

	resp := e.HandleLine(sub, "B=4800")

	require.Equal(t, "GPSD,B=4800", resp)
}

func TestWatcherVerbTogglesAndReportsState(t *testing.T) {
	e := NewEngine()
	sub, _ := newTestSubscriber(t)

	resp := e.HandleLine(sub, "W=1")
	require.Equal(t, "GPSD,W=1", resp)
	require.True(t, sub.Watcher)

	resp = e.HandleLine(sub, "W=0")
	require.Equal(t, "GPSD,W=0", resp)
	require.False(t, sub.Watcher)
}

func TestUnknownVerbIsSilentlySkipped(t *testing.T) {
	e := NewEngine()
	sub, _ := newTestSubscriber(t)

	resp := e.HandleLine(sub, "L,9")

	require.Equal(t, "GPSD,L="+ProtocolVersion+" "+SupportedVerbs, resp)
}
