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

package shmexport

import (
	"unsafe"

	"github.com/stretchr/testify/require"

	"testing"
)

func TestSegmentRoundTrip(t *testing.T) {
	testBytes := make([]byte, segmentSize)
	want := &segment{
		Mode:                 1,
		Count:                2,
		ClockTimeStampSec:    1700000000,
		ClockTimeStampUSec:   500000,
		ReceiveTimeStampSec:  1700000000,
		ReceiveTimeStampUSec: 500100,
		Leap:                 0,
		Precision:            -9,
		Nsamples:             1,
		Valid:                1,
		ClockTimeStampNSec:   500000000,
		ReceiveTimeStampNSec: 500100000,
	}

	ptr := uintptr(unsafe.Pointer(&testBytes[0]))
	w := &Writer{unit: 0, ptr: ptr}
	require.NoError(t, w.store(want))

	got, err := ptrToSegment(ptr)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestWriteIncrementsParityCounterAndNsamples(t *testing.T) {
	testBytes := make([]byte, segmentSize)
	ptr := uintptr(unsafe.Pointer(&testBytes[0]))
	w := &Writer{unit: 0, ptr: ptr}

	require.NoError(t, w.Write(Sample{Leap: 0, Precision: -9}))
	first, err := ptrToSegment(ptr)
	require.NoError(t, err)
	require.Equal(t, int32(0), first.Count%2, "count must be even (settled) after a completed write")
	require.Equal(t, int32(1), first.Valid)
	require.Equal(t, int32(1), first.Nsamples)

	require.NoError(t, w.Write(Sample{Leap: 0, Precision: -9}))
	second, err := ptrToSegment(ptr)
	require.NoError(t, err)
	require.Equal(t, int32(2), second.Nsamples)
	require.True(t, second.Count > first.Count)
}

func TestNewWriterAndReadRoundTrip(t *testing.T) {
	w, err := NewWriter(900)
	if err != nil {
		t.Skip("no permission to allocate SHM segments in this environment")
	}
	defer w.Close()

	sample := Sample{Leap: 0, Precision: -9}
	require.NoError(t, w.Write(sample))

	got, err := Read(900)
	require.NoError(t, err)
	require.Equal(t, int32(0), got.Leap)
}
