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

// Package pps classifies pulse-per-second edges from a device's modem
// control lines (or the kernel PPS API) into drift samples, and hands them
// to a time-sync consumer. Grounded on facebook-time's phc PPS source
// abstraction and its servo drift bookkeeping, adapted from PHC hardware
// timestamp edges to gpsd's TIOCMIWAIT modem-line edges.
package pps

import (
	"sync"
	"time"

	"github.com/eclesh/welford"
)

// Sample is one accepted PPS edge: the whole second the edge was assigned
// to (real) against the wall-clock time the edge was observed (clock).
type Sample struct {
	Real  time.Time
	Clock time.Time
	Count uint64
}

// Store is the process-wide, mutex-guarded record of the most recent PPS
// edge and a running jitter statistic, readable by clients via the
// equivalent of gpsd's pps_thread_lastpps. One Store is shared by however
// many device PPS goroutines are running; each writes only its own
// device's slot.
type Store struct {
	mu      sync.Mutex
	last    map[string]Sample
	jitters map[string]*welford.Stats
}

// NewStore returns an empty drift store.
func NewStore() *Store {
	return &Store{
		last:    make(map[string]Sample),
		jitters: make(map[string]*welford.Stats),
	}
}

// Record stores a new accepted sample for deviceID and folds its
// real-minus-clock delta into that device's running jitter statistic.
func (s *Store) Record(deviceID string, sample Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prevCount := s.last[deviceID].Count
	sample.Count = prevCount + 1
	s.last[deviceID] = sample

	stats, ok := s.jitters[deviceID]
	if !ok {
		stats = welford.New()
		s.jitters[deviceID] = stats
	}
	stats.Add(sample.Real.Sub(sample.Clock).Seconds())
}

// Last returns the most recently recorded sample for deviceID and its
// monotone edge count, mirroring pps_thread_lastpps.
func (s *Store) Last(deviceID string) (Sample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sample, ok := s.last[deviceID]
	return sample, ok
}

// JitterStats returns the running mean and standard deviation of
// real-minus-clock deltas for deviceID, or ok=false if no sample has been
// recorded yet.
func (s *Store) JitterStats(deviceID string) (mean, stddev float64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats, exists := s.jitters[deviceID]
	if !exists {
		return 0, 0, false
	}
	return stats.Mean(), stats.Stddev(), true
}
