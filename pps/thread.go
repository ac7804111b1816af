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

package pps

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// EdgeSource abstracts the two ways a device can deliver PPS edges: the
// kernel PPS API (time_pps_fetch, root only) or TIOCMIWAIT on the modem
// control lines. This package holds no syscall/ioctl code, and no transport
// in the device package implements the interface; a Thread runs only over a
// source that does.
type EdgeSource interface {
	// WaitEdge blocks until the next line-state transition (or the kernel
	// PPS API's next assert) and returns the wall-clock time it was
	// observed. err is non-nil only on a fatal device error.
	WaitEdge(ctx context.Context) (time.Time, error)
}

// cycleTolerance is the ±1ms tolerance allowed around each nominal cycle
// length.
const cycleTolerance = time.Millisecond

// classification is the recognized edge shape for one device, fixed for
// its lifetime once a PPS thread starts seeing a consistent cycle.
type classification int

const (
	unclassified classification = iota
	pulse1Hz
	square1Hz
	square0_5Hz
	pulse5Hz
)

// classify matches a cycle length against the four accepted shapes in
// the four accepted shapes, rejecting anything else.
func classify(cycle time.Duration) (classification, bool) {
	switch {
	case withinTolerance(cycle, time.Second):
		return pulse1Hz, true
	case withinTolerance(cycle, 500*time.Millisecond):
		return square1Hz, true
	case withinTolerance(cycle, 2*time.Second):
		return square0_5Hz, true
	case withinTolerance(cycle, 200*time.Millisecond):
		return pulse5Hz, true
	default:
		return unclassified, false
	}
}

func withinTolerance(got, want time.Duration) bool {
	d := got - want
	if d < 0 {
		d = -d
	}
	return d <= cycleTolerance
}

// Thread runs the PPS classification loop for one device. Exactly one
// Thread exists per device with working PPS hardware, parented off the
// daemon's shutdown context.
type Thread struct {
	DeviceID string
	Source   EdgeSource
	Store    *Store

	// LastFixtime returns the most recent NMEA/driver-derived second for
	// this device; PPS edges are assumed to mark the second immediately
	// after it.
	LastFixtime func() (time.Time, bool)

	lastSecondUsed time.Time
	lastEdge       time.Time
	unchangedRuns  int
}

// flappingThreshold is the number of consecutive un-changed line states
// the thread tolerates before backing off.
const flappingThreshold = 10

// flappingBackoff is how long the thread sleeps once flappingThreshold is
// reached.
const flappingBackoff = 10 * time.Second

// Run blocks classifying PPS edges until ctx is canceled.
func (t *Thread) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		edge, err := t.Source.WaitEdge(ctx)
		if err != nil {
			log.WithError(err).WithField("device", t.DeviceID).Warn("pps: edge source error")
			return
		}

		if t.lastEdge.IsZero() {
			t.lastEdge = edge
			continue
		}
		cycle := edge.Sub(t.lastEdge)
		t.lastEdge = edge

		if cycle == 0 {
			t.unchangedRuns++
			if t.unchangedRuns >= flappingThreshold {
				log.WithField("device", t.DeviceID).Debug("pps: flapping guard engaged")
				t.unchangedRuns = 0
				select {
				case <-ctx.Done():
					return
				case <-time.After(flappingBackoff):
				}
			}
			continue
		}
		t.unchangedRuns = 0

		if _, ok := classify(cycle); !ok {
			continue
		}

		t.accept(edge)
	}
}

// accept applies the duplicate-suppression and second-assignment rule from
// duplicate-suppression and second-assignment rule, then records a drift
// sample.
func (t *Thread) accept(edge time.Time) {
	fixtime, ok := t.LastFixtime()
	if !ok {
		return
	}
	if !t.lastSecondUsed.Before(fixtime) {
		// Already handled: this fixtime has already been assigned to an
		// earlier edge.
		return
	}
	t.lastSecondUsed = fixtime
	assignedSecond := fixtime.Add(time.Second)

	t.Store.Record(t.DeviceID, Sample{Real: assignedSecond, Clock: edge})
}
