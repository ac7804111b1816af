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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClassifyAcceptsAllFourShapesWithinTolerance(t *testing.T) {
	cases := []struct {
		cycle time.Duration
		want  classification
	}{
		{time.Second, pulse1Hz},
		{time.Second + 900*time.Microsecond, pulse1Hz},
		{500 * time.Millisecond, square1Hz},
		{2 * time.Second, square0_5Hz},
		{200 * time.Millisecond, pulse5Hz},
	}
	for _, c := range cases {
		got, ok := classify(c.cycle)
		require.True(t, ok, "cycle %s should classify", c.cycle)
		require.Equal(t, c.want, got)
	}
}

func TestClassifyRejectsOutOfToleranceCycle(t *testing.T) {
	_, ok := classify(900 * time.Millisecond)
	require.False(t, ok)
}

// scriptedSource replays a fixed sequence of edge times, then blocks until
// ctx is canceled.
type scriptedSource struct {
	edges []time.Time
	i     int
}

func (s *scriptedSource) WaitEdge(ctx context.Context) (time.Time, error) {
	if s.i < len(s.edges) {
		e := s.edges[s.i]
		s.i++
		return e, nil
	}
	<-ctx.Done()
	return time.Time{}, ctx.Err()
}

func TestThreadAcceptsOneSampleOncePerFixtimeSecond(t *testing.T) {
	base := time.Unix(1000, 0)
	src := &scriptedSource{edges: []time.Time{
		base,
		base.Add(time.Second),
		base.Add(2 * time.Second),
	}}
	store := NewStore()
	fixtime := base.Add(-time.Second) // most recent NMEA second precedes the first edge
	th := &Thread{
		DeviceID: "/dev/ttyUSB0",
		Source:   src,
		Store:    store,
		LastFixtime: func() (time.Time, bool) {
			return fixtime, true
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	th.Run(ctx)

	sample, ok := store.Last("/dev/ttyUSB0")
	require.True(t, ok)
	require.Equal(t, uint64(1), sample.Count, "duplicate edges for the same fixtime must be suppressed")
	require.Equal(t, fixtime.Add(time.Second), sample.Real)
}

func TestThreadAdvancesAcrossSuccessiveFixtimes(t *testing.T) {
	base := time.Unix(2000, 0)
	src := &scriptedSource{edges: []time.Time{
		base,
		base.Add(time.Second),
		base.Add(2 * time.Second),
	}}
	store := NewStore()
	fixtime := base.Add(-time.Second)
	calls := 0
	th := &Thread{
		DeviceID: "/dev/ttyUSB0",
		Source:   src,
		Store:    store,
		LastFixtime: func() (time.Time, bool) {
			calls++
			if calls > 1 {
				fixtime = base // the serial reader advanced the second between edges
			}
			return fixtime, true
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	th.Run(ctx)

	sample, ok := store.Last("/dev/ttyUSB0")
	require.True(t, ok)
	require.Equal(t, uint64(2), sample.Count)
}
