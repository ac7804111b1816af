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
	"io"
	"sync"
)

// ShmSlot is the minimal write surface the time-export shared-memory slots
// need to expose to the core. No type in this module implements it;
// shmexport.Writer takes a shmexport.Sample through Write instead. Kept here,
// rather than importing shmexport, so pvt has no dependency on the transport
// that happens to carry its samples.
type ShmSlot interface {
	WriteSample(clockSec int64, clockNsec int32, receiveSec int64, receiveNsec int32, leap int, precision int) error
}

// Context is process-wide state initialized once at startup and shared by
// every device poller and the session engine.
type Context struct {
	mu sync.Mutex

	leapSeconds int
	centuryBase int

	dgpsConn    io.ReadWriter
	rtcmPending []byte

	fixCount int // gates auto-dgps peer selection

	ClockSHM ShmSlot
	PPSSHM   ShmSlot
}

// NewContext builds a Context with today's century base already applied by
// the caller (gpsd derives it from host time at startup; callers here should
// pass the four-digit century, e.g. 2000).
func NewContext(centuryBase int) *Context {
	return &Context{centuryBase: centuryBase}
}

// LeapSeconds returns the current leap-second count.
func (c *Context) LeapSeconds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.leapSeconds
}

// SetLeapSeconds refreshes the leap-second count, e.g. from NMEA2000 system
// time (PGN 126992) or GPS subframe 4/page 18 data.
func (c *Context) SetLeapSeconds(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leapSeconds = n
}

// CenturyBase returns the four-digit century base the Context was built
// with. The NMEA RMC decoder does not consult it; it reads a two-digit year
// as 2000+yy.
func (c *Context) CenturyBase() int {
	return c.centuryBase
}

// SetDGPSConn installs the DGPS/RTCM correction socket. A nil conn disables
// relaying.
func (c *Context) SetDGPSConn(conn io.ReadWriter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dgpsConn = conn
}

// DGPSConn returns the current DGPS socket, or nil.
func (c *Context) DGPSConn() io.ReadWriter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dgpsConn
}

// QueueRTCM appends pending RTCM bytes awaiting relay to a receiver.
func (c *Context) QueueRTCM(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rtcmPending = append(c.rtcmPending, b...)
}

// DrainRTCM returns and clears the pending RTCM buffer.
func (c *Context) DrainRTCM() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.rtcmPending
	c.rtcmPending = nil
	return b
}

// IncFixCount bumps the process-wide fix counter used to gate auto-dgps peer
// selection (gpsd picks a DGPS relay only after seeing a handful of fixes, to
// avoid flapping on a not-yet-synced receiver) and returns the new value.
func (c *Context) IncFixCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fixCount++
	return c.fixCount
}

// FixCount returns the current fix counter.
func (c *Context) FixCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fixCount
}
