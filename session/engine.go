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
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/facebook/pvtd/pvt"
)

// Engine is the process-wide table of open devices and connected
// subscribers, replacing global arrays with a single value. Devices are
// indexed by path (their stable identity) rather than a pointer; removing a
// device clears every subscriber affinity to it.
type Engine struct {
	mu sync.RWMutex

	devices     map[string]*pvt.DeviceSnapshot
	subscribers map[*Subscriber]bool
}

// NewEngine returns an empty Engine.
func NewEngine() *Engine {
	return &Engine{
		devices:     make(map[string]*pvt.DeviceSnapshot),
		subscribers: make(map[*Subscriber]bool),
	}
}

// AddDevice registers a newly opened device.
func (e *Engine) AddDevice(d *pvt.DeviceSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.devices[d.Path] = d
}

// RemoveDevice deactivates and removes a device, clearing every
// subscriber's affinity to it in the same critical section so no
// subscriber is left with a dangling reference.
func (e *Engine) RemoveDevice(path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d, ok := e.devices[path]; ok {
		d.Deactivate()
	}
	delete(e.devices, path)
	for s := range e.subscribers {
		if s.DeviceID == path {
			s.DeviceID = ""
		}
	}
}

// Device looks up a device snapshot by path.
func (e *Engine) Device(path string) (*pvt.DeviceSnapshot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d, ok := e.devices[path]
	return d, ok
}

// Devices returns every open device's snapshot, ordered by path, for
// the 'K' verb and the control socket.
func (e *Engine) Devices() []*pvt.DeviceSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*pvt.DeviceSnapshot, 0, len(e.devices))
	for _, d := range e.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// AddSubscriber registers a connected client.
func (e *Engine) AddSubscriber(s *Subscriber) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscribers[s] = true
}

// RemoveSubscriber drops a disconnected or timed-out client.
func (e *Engine) RemoveSubscriber(s *Subscriber) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.subscribers, s)
}

// Subscribers returns the currently connected subscribers.
func (e *Engine) Subscribers() []*Subscriber {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Subscriber, 0, len(e.subscribers))
	for s := range e.subscribers {
		out = append(out, s)
	}
	return out
}

// IsSolo reports whether sub is the only subscriber bound to deviceID,
// gating the privileged verbs.
func (e *Engine) IsSolo(sub *Subscriber, deviceID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if sub.DeviceID != deviceID || !e.subscribers[sub] {
		return false
	}
	count := 0
	for s := range e.subscribers {
		if s.DeviceID == deviceID {
			count++
		}
	}
	return count == 1
}

// AssignDevice picks the device with the most recently decoded sentence
// among those matching kind, and
// binds sub to it. Returns false if no matching device is open.
func (e *Engine) AssignDevice(sub *Subscriber, kind KindFilter) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var best *pvt.DeviceSnapshot
	for _, d := range e.devices {
		if !d.Active {
			continue
		}
		if !kindMatches(d, kind) {
			continue
		}
		if best == nil || d.Profiling.Decode.After(best.Profiling.Decode) {
			best = d
		}
	}
	if best == nil {
		return false
	}
	sub.DeviceID = best.Path
	return true
}

func kindMatches(d *pvt.DeviceSnapshot, kind KindFilter) bool {
	switch kind {
	case KindRTCM104:
		return d.PacketType == "RTCM"
	case KindGPS:
		return d.PacketType != "RTCM"
	default:
		return true
	}
}

// UpdateProfiling records the per-stage timestamps for a device's most
// recent frame (wire receive time, decode-finished time, and the
// sentence's own embedded time if it carried one). AssignDevice's
// most-recently-decoded comparison relies on Profiling.Decode being kept
// current here.
func (e *Engine) UpdateProfiling(deviceID string, p pvt.Profiling) {
	e.mu.RLock()
	d, ok := e.devices[deviceID]
	e.mu.RUnlock()
	if !ok {
		return
	}
	d.Profiling.Receive = p.Receive
	d.Profiling.Decode = p.Decode
	if !p.SentenceTime.IsZero() {
		d.Profiling.SentenceTime = p.SentenceTime
	}
}

// Dispatch folds a driver Result into a device's snapshot and every bound
// subscriber's fix buffer, then fires watcher pushes for subscribers in
// watcher mode. This is the engine's single point of mutation for
// cross-cutting state, mirroring ptp4u/server's worker-to-subscription
// fan-out.
func (e *Engine) Dispatch(deviceID string, changes pvt.ChangeSet, fix pvt.Fix, status pvt.Status, sentenceTag string) {
	e.mu.RLock()
	d, ok := e.devices[deviceID]
	if !ok {
		e.mu.RUnlock()
		return
	}
	d.Fix.Merge(fix, changes)
	if changes.Has(pvt.ChangeStatus) {
		d.Status = status
	}
	d.LastSentence = sentenceTag

	targets := make([]*Subscriber, 0, len(e.subscribers))
	for s := range e.subscribers {
		if s.DeviceID == deviceID {
			targets = append(targets, s)
		}
	}
	e.mu.RUnlock()

	for _, s := range targets {
		s.MergeChangeSet(fix, changes)
		if s.Watcher {
			if line, ok := BuildWatcherPush(s, d, changes); ok {
				if err := s.Send(line); err != nil {
					log.WithError(err).Debug("session: watcher push failed")
				}
			}
		}
	}
}
